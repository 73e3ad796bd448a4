package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/transport-university/chatbot/backend/internal/model/chat"
	"github.com/transport-university/chatbot/backend/internal/model/user"
)

const (
	exchangeSeqKey   = "chat:exchange:seq"
	exchangePrefix   = "chat:exchange:"
	userLogPrefix    = "chat:log:"
	questionFreqKey  = "chat:questions:freq"
	questionTotalKey = "chat:questions:total"
	userPrefix       = "chat:user:"
	usernameIndexKey = "chat:users:by-name"
	emailIndexKey    = "chat:users:by-email"
)

// RedisStore implements Repository on Redis. Each exchange is a JSON
// value; each user's log is a list of exchange ids in append order.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis connects using a redis:// URL.
func NewRedis(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// WithPrefix namespaces every key, which keeps test runs apart.
func (s *RedisStore) WithPrefix(prefix string) *RedisStore {
	return &RedisStore{rdb: s.rdb, prefix: prefix}
}

func (s *RedisStore) key(parts ...string) string {
	return s.prefix + strings.Join(parts, "")
}

func (s *RedisStore) exchangeKey(id int64) string {
	return s.key(exchangePrefix, strconv.FormatInt(id, 10))
}

func (s *RedisStore) CreateExchange(ctx context.Context, ex chat.Exchange) (chat.Exchange, error) {
	id, err := s.rdb.Incr(ctx, s.key(exchangeSeqKey)).Result()
	if err != nil {
		return chat.Exchange{}, fmt.Errorf("allocate exchange id: %w", err)
	}
	ex.ID = id
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(ex)
	if err != nil {
		return chat.Exchange{}, fmt.Errorf("marshal exchange: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.exchangeKey(id), data, 0)
		pipe.RPush(ctx, s.key(userLogPrefix, ex.UserID), id)
		if ex.Role == "user" {
			pipe.Incr(ctx, s.key(questionTotalKey))
			pipe.ZIncrBy(ctx, s.key(questionFreqKey), 1, ex.Message)
		}
		return nil
	})
	if err != nil {
		return chat.Exchange{}, fmt.Errorf("save exchange: %w", err)
	}
	return ex, nil
}

func (s *RedisStore) loadExchange(ctx context.Context, userID string, id int64) (chat.Exchange, error) {
	data, err := s.rdb.Get(ctx, s.exchangeKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return chat.Exchange{}, ErrExchangeNotFound
	}
	if err != nil {
		return chat.Exchange{}, fmt.Errorf("load exchange: %w", err)
	}

	var ex chat.Exchange
	if err := json.Unmarshal(data, &ex); err != nil {
		return chat.Exchange{}, fmt.Errorf("unmarshal exchange: %w", err)
	}
	if ex.UserID != userID {
		return chat.Exchange{}, ErrExchangeNotFound
	}
	return ex, nil
}

func (s *RedisStore) SetResponse(ctx context.Context, userID string, id int64, response string) error {
	ex, err := s.loadExchange(ctx, userID, id)
	if err != nil {
		return err
	}
	ex.Response = chat.StringPtr(response)

	data, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("marshal exchange: %w", err)
	}
	if err := s.rdb.Set(ctx, s.exchangeKey(id), data, 0).Err(); err != nil {
		return fmt.Errorf("save exchange: %w", err)
	}
	return nil
}

func (s *RedisStore) ListExchanges(ctx context.Context, userID string, limit, offset int) ([]chat.Exchange, int, error) {
	logKey := s.key(userLogPrefix, userID)
	total, err := s.rdb.LLen(ctx, logKey).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("count exchanges: %w", err)
	}

	start, end := window(int(total), limit, offset)
	if start == end {
		return []chat.Exchange{}, int(total), nil
	}

	ids, err := s.rdb.LRange(ctx, logKey, int64(start), int64(end-1)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("read exchange ids: %w", err)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(exchangePrefix, id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("load exchanges: %w", err)
	}

	items := make([]chat.Exchange, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var ex chat.Exchange
		if err := json.Unmarshal([]byte(raw), &ex); err != nil {
			return nil, 0, fmt.Errorf("unmarshal exchange: %w", err)
		}
		items = append(items, ex)
	}
	return items, int(total), nil
}

func (s *RedisStore) DeleteExchange(ctx context.Context, userID string, id int64) error {
	ex, err := s.loadExchange(ctx, userID, id)
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.exchangeKey(id))
		pipe.LRem(ctx, s.key(userLogPrefix, userID), 1, id)
		if ex.Role == "user" {
			pipe.Decr(ctx, s.key(questionTotalKey))
			pipe.ZIncrBy(ctx, s.key(questionFreqKey), -1, ex.Message)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete exchange: %w", err)
	}
	return nil
}

func (s *RedisStore) QuestionStats(ctx context.Context, n int) (int, []string, error) {
	total, err := s.rdb.Get(ctx, s.key(questionTotalKey)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, nil, fmt.Errorf("count questions: %w", err)
	}

	ranked, err := s.rdb.ZRevRangeByScore(ctx, s.key(questionFreqKey), &redis.ZRangeBy{
		Min:   "1",
		Max:   "+inf",
		Count: int64(n),
	}).Result()
	if err != nil {
		return 0, nil, fmt.Errorf("rank questions: %w", err)
	}
	return total, ranked, nil
}

func (s *RedisStore) CreateUser(ctx context.Context, u user.User) error {
	name := strings.ToLower(u.Username)
	email := strings.ToLower(u.Email)

	ok, err := s.rdb.HSetNX(ctx, s.key(usernameIndexKey), name, u.ID).Result()
	if err != nil {
		return fmt.Errorf("reserve username: %w", err)
	}
	if !ok {
		return ErrUserExists
	}
	ok, err = s.rdb.HSetNX(ctx, s.key(emailIndexKey), email, u.ID).Result()
	if err != nil || !ok {
		s.rdb.HDel(ctx, s.key(usernameIndexKey), name)
		if err != nil {
			return fmt.Errorf("reserve email: %w", err)
		}
		return ErrUserExists
	}

	data, err := json.Marshal(redisUser{User: u, PasswordHash: u.PasswordHash})
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(userPrefix, u.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// redisUser keeps the password hash, which user.User hides from JSON.
type redisUser struct {
	user.User
	PasswordHash string `json:"password_hash"`
}

func (s *RedisStore) GetUser(ctx context.Context, id string) (user.User, error) {
	data, err := s.rdb.Get(ctx, s.key(userPrefix, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return user.User{}, ErrUserNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("load user: %w", err)
	}

	var stored redisUser
	if err := json.Unmarshal(data, &stored); err != nil {
		return user.User{}, fmt.Errorf("unmarshal user: %w", err)
	}
	u := stored.User
	u.PasswordHash = stored.PasswordHash
	return u, nil
}

func (s *RedisStore) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	id, err := s.rdb.HGet(ctx, s.key(usernameIndexKey), strings.ToLower(username)).Result()
	if errors.Is(err, redis.Nil) {
		return user.User{}, ErrUserNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("lookup username: %w", err)
	}
	return s.GetUser(ctx, id)
}

func (s *RedisStore) CountUsers(ctx context.Context) (int, error) {
	n, err := s.rdb.HLen(ctx, s.key(usernameIndexKey)).Result()
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return int(n), nil
}

// Ping verifies connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
