package session

import (
	"cmp"
	"slices"

	"github.com/transport-university/chatbot/backend/internal/model/chat"
)

// Flatten turns stored exchanges into display messages. Exchanges are put
// in canonical order (id, then creation time) and each yields its user
// message followed by the reply, when there is one.
func Flatten(exchanges []chat.Exchange) []chat.Message {
	ordered := slices.Clone(exchanges)
	slices.SortStableFunc(ordered, func(a, b chat.Exchange) int {
		if c := cmp.Compare(a.ID, b.ID); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	messages := make([]chat.Message, 0, len(ordered)*2)
	for _, ex := range ordered {
		messages = append(messages, chat.Message{
			ID:     ex.UserMessageID(),
			Sender: chat.SenderUser,
			Text:   ex.Message,
			Status: chat.StatusSent,
		})
		if ex.Response == nil {
			continue
		}
		messages = append(messages, chat.Message{
			ID:     ex.BotMessageID(),
			Sender: chat.SenderBot,
			Text:   *ex.Response,
			Status: chat.StatusSent,
		})
	}
	return messages
}

// Prepend puts an older page in front of the current view. Messages from
// the older page that are already displayed are skipped, so overlapping
// pages never duplicate an exchange. Neither page is reordered.
func Prepend(older, current []chat.Message) []chat.Message {
	seen := make(map[string]struct{}, len(current))
	for _, m := range current {
		seen[m.ID] = struct{}{}
	}

	out := make([]chat.Message, 0, len(older)+len(current))
	for _, m := range older {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		out = append(out, m)
	}
	for _, m := range current {
		if m.ID == WelcomeID && len(out) > 0 {
			continue
		}
		out = append(out, m)
	}
	return out
}
