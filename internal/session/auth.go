package session

import (
	"context"
	"errors"

	"github.com/transport-university/chatbot/backend/internal/model/chat"
)

var (
	// ErrAuthRequired is returned when an action needs a signed-in user.
	ErrAuthRequired = errors.New("authentication required")
	// ErrEmptyMessage rejects sends whose text is blank after trimming.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrBusy rejects a send or history load while another one is in flight.
	ErrBusy = errors.New("another request is in flight")
	// ErrUnanswered is matched by ExchangeLog send errors for a question the
	// log stored without a reply.
	ErrUnanswered = errors.New("exchange stored without a reply")
)

// AuthContext is the read-only view of the signed-in user.
type AuthContext interface {
	IsAuthenticated() bool
	Token() string
}

// StaticAuth is an AuthContext with a fixed bearer token. An empty token
// means signed out.
type StaticAuth struct {
	token string
}

// NewStaticAuth wraps a token.
func NewStaticAuth(token string) StaticAuth {
	return StaticAuth{token: token}
}

func (a StaticAuth) IsAuthenticated() bool { return a.token != "" }

func (a StaticAuth) Token() string { return a.token }

// ExchangeLog is the remote, per-user log of request/response pairs.
type ExchangeLog interface {
	Send(ctx context.Context, token, text string) (chat.SendResponse, error)
	FetchHistory(ctx context.Context, token string, limit, offset int) (chat.HistoryPage, error)
	DeleteExchange(ctx context.Context, token string, id int64) error
}
