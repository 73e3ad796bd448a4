package session

import (
	"slices"
	"strings"

	"github.com/transport-university/chatbot/backend/internal/model/chat"
)

// WelcomeID is the display id of the synthetic greeting.
const WelcomeID = "welcome"

// State is the immutable view of one conversation. Transitions return a
// new State and never write through to the receiver's message slice.
type State struct {
	Messages  []chat.Message `json:"messages"`
	IsLoading bool           `json:"isLoading"`
	IsOpen    bool           `json:"isOpen"`
}

// NewState starts a conversation holding only the welcome message.
func NewState(welcome string) State {
	return State{Messages: []chat.Message{WelcomeMessage(welcome)}}
}

// WelcomeMessage builds the greeting shown on mount and after restart.
func WelcomeMessage(text string) chat.Message {
	return chat.Message{ID: WelcomeID, Sender: chat.SenderBot, Text: text, Status: chat.StatusSent}
}

// AppendUser adds an optimistic user message. It reports false and leaves
// the state untouched when the trimmed text is empty.
func (s State) AppendUser(id, text string) (State, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return s, false
	}
	next := s.clone(1)
	next.Messages = append(next.Messages, chat.Message{
		ID:     id,
		Sender: chat.SenderUser,
		Text:   text,
		Status: chat.StatusSent,
	})
	return next, true
}

// AppendBot places a reply right after the user message it answers. Empty
// replies are dropped. A reply whose user message is no longer in view is
// dropped too; an empty forID appends at the end.
func (s State) AppendBot(id, text, forID string) State {
	if strings.TrimSpace(text) == "" {
		return s
	}
	msg := chat.Message{ID: id, Sender: chat.SenderBot, Text: text, Status: chat.StatusSent}

	at := len(s.Messages)
	if forID != "" {
		idx := s.indexOf(forID)
		if idx < 0 {
			return s
		}
		at = idx + 1
	}

	next := s.clone(1)
	next.Messages = slices.Insert(next.Messages, at, msg)
	return next
}

// ReplaceAll swaps the whole message list.
func (s State) ReplaceAll(messages []chat.Message) State {
	next := s
	next.Messages = slices.Clone(messages)
	return next
}

// SetLoading toggles the in-flight flag.
func (s State) SetLoading(loading bool) State {
	next := s
	next.IsLoading = loading
	return next
}

// SetOpen toggles widget visibility.
func (s State) SetOpen(open bool) State {
	next := s
	next.IsOpen = open
	return next
}

// Remove drops the messages with the given ids.
func (s State) Remove(ids ...string) State {
	next := s.clone(0)
	next.Messages = slices.DeleteFunc(next.Messages, func(m chat.Message) bool {
		return slices.Contains(ids, m.ID)
	})
	return next
}

// Rename gives the message with id from the id to. Nothing changes when
// from is absent or to is already taken.
func (s State) Rename(from, to string) State {
	idx := s.indexOf(from)
	if idx < 0 || from == to || s.indexOf(to) >= 0 {
		return s
	}
	next := s.clone(0)
	next.Messages[idx].ID = to
	return next
}

// Len returns the number of displayed messages.
func (s State) Len() int {
	return len(s.Messages)
}

// Last returns the most recent message, if any.
func (s State) Last() (chat.Message, bool) {
	if len(s.Messages) == 0 {
		return chat.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

func (s State) indexOf(id string) int {
	return slices.IndexFunc(s.Messages, func(m chat.Message) bool { return m.ID == id })
}

func (s State) clone(extra int) State {
	next := s
	next.Messages = make([]chat.Message, len(s.Messages), len(s.Messages)+extra)
	copy(next.Messages, s.Messages)
	return next
}
