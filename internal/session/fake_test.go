package session

import (
	"context"
	"sync"

	"github.com/transport-university/chatbot/backend/internal/model/chat"
)

type fakeLog struct {
	mu          sync.Mutex
	sendCalls   int
	fetchCalls  int
	deleteCalls int
	lastToken   string
	lastLimit   int
	lastOffset  int

	send   func(ctx context.Context, text string) (chat.SendResponse, error)
	fetch  func(limit, offset int) (chat.HistoryPage, error)
	delete func(id int64) error
}

func (f *fakeLog) Send(ctx context.Context, token, text string) (chat.SendResponse, error) {
	f.mu.Lock()
	f.sendCalls++
	f.lastToken = token
	fn := f.send
	f.mu.Unlock()
	if fn == nil {
		return chat.SendResponse{Message: text, Response: "echo: " + text}, nil
	}
	return fn(ctx, text)
}

func (f *fakeLog) FetchHistory(_ context.Context, token string, limit, offset int) (chat.HistoryPage, error) {
	f.mu.Lock()
	f.fetchCalls++
	f.lastToken = token
	f.lastLimit = limit
	f.lastOffset = offset
	fn := f.fetch
	f.mu.Unlock()
	if fn == nil {
		return chat.HistoryPage{Limit: limit, Offset: offset}, nil
	}
	return fn(limit, offset)
}

func (f *fakeLog) DeleteExchange(_ context.Context, token string, id int64) error {
	f.mu.Lock()
	f.deleteCalls++
	fn := f.delete
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(id)
}

func (f *fakeLog) calls() (send, fetch int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCalls, f.fetchCalls
}

func exchange(id int64, message string, response *string) chat.Exchange {
	return chat.Exchange{ID: id, Message: message, Response: response}
}

const (
	testWelcome = "Xin chào! Tôi có thể giúp gì cho bạn?"
	testApology = "Xin lỗi, đã có lỗi xảy ra. Vui lòng thử lại sau."
)

func newTestController(log ExchangeLog, auth AuthContext) *Controller {
	return NewController(log, auth, Options{Welcome: testWelcome, Apology: testApology, HistoryLimit: 2})
}
