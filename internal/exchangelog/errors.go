package exchangelog

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/transport-university/chatbot/backend/internal/session"
)

var (
	// ErrNotFound matches a 404 from the server.
	ErrNotFound = errors.New("exchange not found")
	// ErrUnauthorized matches a 401 from the server.
	ErrUnauthorized = errors.New("not authenticated")
)

// NetworkError means the request never produced an HTTP response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is any non-success HTTP response.
type ServerError struct {
	Op      string
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: server returned %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.Status, e.Message)
}

// Is lets callers test for ErrNotFound and ErrUnauthorized. A 502 from
// send means the question was stored but no reply was generated, so it
// also matches session.ErrUnanswered.
func (e *ServerError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case session.ErrUnanswered:
		return e.Op == opSend && e.Status == http.StatusBadGateway
	}
	return false
}
