// Package store persists accounts and the per-user exchange log.
package store

import (
	"context"
	"errors"

	"github.com/transport-university/chatbot/backend/internal/model/chat"
	"github.com/transport-university/chatbot/backend/internal/model/user"
)

var (
	ErrExchangeNotFound = errors.New("exchange not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrUserExists       = errors.New("username or email already registered")
)

// Repository defines the persistence contract shared by every driver.
type Repository interface {
	// CreateExchange stores a new exchange and assigns its id and timestamp.
	CreateExchange(ctx context.Context, ex chat.Exchange) (chat.Exchange, error)

	// SetResponse attaches the reply to an exchange owned by userID.
	SetResponse(ctx context.Context, userID string, id int64, response string) error

	// ListExchanges returns up to limit exchanges of one user, skipping the
	// offset newest ones, ordered oldest first, plus the user's total.
	ListExchanges(ctx context.Context, userID string, limit, offset int) ([]chat.Exchange, int, error)

	// DeleteExchange removes an exchange owned by userID.
	DeleteExchange(ctx context.Context, userID string, id int64) error

	// QuestionStats counts stored questions and returns the n most frequent.
	QuestionStats(ctx context.Context, n int) (int, []string, error)

	CreateUser(ctx context.Context, u user.User) error
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByUsername(ctx context.Context, username string) (user.User, error)
	CountUsers(ctx context.Context) (int, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// window converts newest-first paging into oldest-first slice bounds over
// a log of total entries.
func window(total, limit, offset int) (start, end int) {
	end = total - offset
	if end < 0 {
		end = 0
	}
	start = end - limit
	if start < 0 {
		start = 0
	}
	return start, end
}
