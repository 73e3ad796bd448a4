package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/transport-university/chatbot/backend/internal/model/chat"
	"github.com/transport-university/chatbot/backend/internal/model/locale"
	"github.com/transport-university/chatbot/backend/internal/store"
)

var (
	ErrMessageEmpty   = errors.New("message must not be empty")
	ErrMessageTooLong = errors.New("message must be at most 5000 characters")
	ErrInvalidLimit   = errors.New("limit must be between 1 and 200")
	ErrInvalidOffset  = errors.New("offset must not be negative")
	ErrNoReply        = errors.New("assistant could not produce a reply")
)

const (
	MaxMessageLength = 5000
	DefaultLimit     = 50
	MaxLimit         = 200
	DefaultRole      = "user"
	frequentCount    = 5
)

// Responder produces the assistant's answer to one question.
type Responder interface {
	Reply(ctx context.Context, history []chat.Exchange, query string, catalog locale.Catalog) (string, error)
}

// Options tune a Service.
type Options struct {
	// HistoryLimit is how many earlier exchanges the responder sees.
	HistoryLimit int
	Logger       *slog.Logger
	Now          func() time.Time
}

// Service owns each user's append-only exchange log.
type Service struct {
	repo         store.Repository
	responder    Responder
	historyLimit int
	logger       *slog.Logger
	now          func() time.Time
}

// NewService wires the log to its repository and responder.
func NewService(repo store.Repository, responder Responder, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:         repo,
		responder:    responder,
		historyLimit: max(opts.HistoryLimit, 0),
		logger:       opts.Logger.With("component", "chat"),
		now:          opts.Now,
	}
}

// Send stores the question, asks the responder and attaches its answer.
// When the responder fails the exchange stays stored without a response and
// ErrNoReply is returned.
func (s *Service) Send(ctx context.Context, userID string, req chat.SendRequest, catalog locale.Catalog) (chat.Exchange, error) {
	text, err := validateMessage(req.Message)
	if err != nil {
		return chat.Exchange{}, err
	}

	var earlier []chat.Exchange
	if s.historyLimit > 0 {
		earlier, _, err = s.repo.ListExchanges(ctx, userID, s.historyLimit, 0)
		if err != nil {
			return chat.Exchange{}, fmt.Errorf("load context: %w", err)
		}
	}

	ex, err := s.repo.CreateExchange(ctx, chat.Exchange{
		UserID:    userID,
		Role:      roleOrDefault(req.Role),
		Message:   text,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return chat.Exchange{}, fmt.Errorf("store exchange: %w", err)
	}

	reply, err := s.responder.Reply(ctx, earlier, text, catalog)
	if err != nil {
		s.logger.Error("responder failed", "user", userID, "chat_id", ex.ID, "err", err)
		return ex, fmt.Errorf("%w: %v", ErrNoReply, err)
	}
	if err := s.repo.SetResponse(ctx, userID, ex.ID, reply); err != nil {
		return ex, fmt.Errorf("store response: %w", err)
	}

	ex.Response = chat.StringPtr(reply)
	s.logger.Info("exchange answered", "user", userID, "chat_id", ex.ID, "length", len(reply))
	return ex, nil
}

// Save stores a question together with an answer produced elsewhere.
func (s *Service) Save(ctx context.Context, userID string, req chat.SaveRequest) (chat.Exchange, error) {
	text, err := validateMessage(req.Message)
	if err != nil {
		return chat.Exchange{}, err
	}

	ex, err := s.repo.CreateExchange(ctx, chat.Exchange{
		UserID:    userID,
		Role:      roleOrDefault(req.Role),
		Message:   text,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return chat.Exchange{}, fmt.Errorf("store exchange: %w", err)
	}

	if req.Response != nil {
		if err := s.repo.SetResponse(ctx, userID, ex.ID, *req.Response); err != nil {
			return ex, fmt.Errorf("store response: %w", err)
		}
		ex.Response = chat.StringPtr(*req.Response)
	}
	return ex, nil
}

// History returns one page of the user's log. A zero limit selects the
// default page size.
func (s *Service) History(ctx context.Context, userID string, limit, offset int) (chat.HistoryPage, error) {
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 1 || limit > MaxLimit {
		return chat.HistoryPage{}, ErrInvalidLimit
	}
	if offset < 0 {
		return chat.HistoryPage{}, ErrInvalidOffset
	}

	items, total, err := s.repo.ListExchanges(ctx, userID, limit, offset)
	if err != nil {
		return chat.HistoryPage{}, fmt.Errorf("list exchanges: %w", err)
	}
	if items == nil {
		items = []chat.Exchange{}
	}
	return chat.HistoryPage{Total: total, Limit: limit, Offset: offset, Items: items}, nil
}

// Delete removes one of the user's exchanges.
func (s *Service) Delete(ctx context.Context, userID string, id int64) error {
	if err := s.repo.DeleteExchange(ctx, userID, id); err != nil {
		return err
	}
	s.logger.Info("exchange deleted", "user", userID, "chat_id", id)
	return nil
}

// Dashboard summarises usage across all users.
func (s *Service) Dashboard(ctx context.Context) (chat.DashboardStats, error) {
	users, err := s.repo.CountUsers(ctx)
	if err != nil {
		return chat.DashboardStats{}, fmt.Errorf("count users: %w", err)
	}

	total, frequent, err := s.repo.QuestionStats(ctx, frequentCount)
	if err != nil {
		return chat.DashboardStats{}, fmt.Errorf("question stats: %w", err)
	}
	if frequent == nil {
		frequent = []string{}
	}

	return chat.DashboardStats{
		TotalUsers:        users,
		TotalQuestions:    total,
		FrequentQuestions: frequent,
	}, nil
}

func validateMessage(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ErrMessageEmpty
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return text, nil
}

func roleOrDefault(role string) string {
	if role = strings.TrimSpace(role); role != "" {
		return role
	}
	return DefaultRole
}
