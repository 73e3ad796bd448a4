package chat

import (
	"strconv"
	"time"
)

// Exchange is one stored user-input/bot-reply pair.
// Response stays nil while the reply is being produced or when generation failed.
type Exchange struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	Response  *string   `json:"response"`
	CreatedAt time.Time `json:"timestamp"`
}

// Answered reports whether the exchange carries a bot reply.
func (e Exchange) Answered() bool {
	return e.Response != nil
}

// UserMessageID is the stable display id of the exchange's user half.
func (e Exchange) UserMessageID() string {
	return strconv.FormatInt(e.ID, 10) + ":u"
}

// BotMessageID is the stable display id of the exchange's reply half.
func (e Exchange) BotMessageID() string {
	return strconv.FormatInt(e.ID, 10) + ":b"
}

// HistoryPage is one page of a user's exchange log, oldest first.
type HistoryPage struct {
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
	Items  []Exchange `json:"items"`
}

// SendRequest is the body of POST /api/chat/send.
type SendRequest struct {
	Message string `json:"message"`
	Role    string `json:"role,omitempty"`
}

// SendResponse answers POST /api/chat/send.
type SendResponse struct {
	ChatID    int64     `json:"chat_id"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// SaveRequest stores a pre-answered pair through POST /api/chat/save.
type SaveRequest struct {
	Message  string  `json:"message"`
	Response *string `json:"response,omitempty"`
	Role     string  `json:"role,omitempty"`
}

// DashboardStats summarises usage for administrators.
type DashboardStats struct {
	TotalUsers        int      `json:"total_users"`
	TotalQuestions    int      `json:"total_questions"`
	FrequentQuestions []string `json:"frequent_questions"`
}

// StringPtr is a small helper for optional responses.
func StringPtr(s string) *string {
	return &s
}
