package store

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/transport-university/chatbot/backend/internal/model/chat"
	"github.com/transport-university/chatbot/backend/internal/model/user"
)

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	nextID    int64
	exchanges map[string][]chat.Exchange
	users     map[string]user.User
}

// NewMemory returns an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		exchanges: make(map[string][]chat.Exchange),
		users:     make(map[string]user.User),
	}
}

func (s *MemoryStore) CreateExchange(_ context.Context, ex chat.Exchange) (chat.Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	ex.ID = s.nextID
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	s.exchanges[ex.UserID] = append(s.exchanges[ex.UserID], ex)
	return ex, nil
}

func (s *MemoryStore) SetResponse(_ context.Context, userID string, id int64, response string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.exchanges[userID]
	for i := range items {
		if items[i].ID == id {
			items[i].Response = chat.StringPtr(response)
			return nil
		}
	}
	return ErrExchangeNotFound
}

func (s *MemoryStore) ListExchanges(_ context.Context, userID string, limit, offset int) ([]chat.Exchange, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.exchanges[userID]
	start, end := window(len(items), limit, offset)
	out := make([]chat.Exchange, end-start)
	copy(out, items[start:end])
	return out, len(items), nil
}

func (s *MemoryStore) DeleteExchange(_ context.Context, userID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.exchanges[userID]
	idx := slices.IndexFunc(items, func(ex chat.Exchange) bool { return ex.ID == id })
	if idx < 0 {
		return ErrExchangeNotFound
	}
	s.exchanges[userID] = slices.Delete(items, idx, idx+1)
	return nil
}

func (s *MemoryStore) QuestionStats(_ context.Context, n int) (int, []string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	counts := make(map[string]int)
	for _, items := range s.exchanges {
		for _, ex := range items {
			if ex.Role != "user" {
				continue
			}
			total++
			counts[ex.Message]++
		}
	}
	return total, topQuestions(counts, n), nil
}

func (s *MemoryStore) CreateUser(_ context.Context, u user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) || strings.EqualFold(existing.Email, u.Email) {
			return ErrUserExists
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return user.User{}, ErrUserNotFound
}

func (s *MemoryStore) CountUsers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// topQuestions ranks by count, ties broken alphabetically.
func topQuestions(counts map[string]int, n int) []string {
	questions := make([]string, 0, len(counts))
	for q := range counts {
		questions = append(questions, q)
	}
	slices.SortFunc(questions, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if len(questions) > n {
		questions = questions[:n]
	}
	return questions
}
