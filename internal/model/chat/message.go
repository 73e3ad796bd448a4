package chat

// Sender identifies who authored a displayed message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Status tracks delivery of a displayed message.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Message is one chat bubble in the client-side conversation.
type Message struct {
	ID     string `json:"id"`
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
	Status Status `json:"status"`
}

// IsUser reports whether the message was authored locally.
func (m Message) IsUser() bool {
	return m.Sender == SenderUser
}
