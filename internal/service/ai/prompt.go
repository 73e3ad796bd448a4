package ai

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/transport-university/chatbot/backend/internal/model/chat"
	"github.com/transport-university/chatbot/backend/internal/model/locale"
)

func buildChainInput(history []chat.Exchange, query string, catalog locale.Catalog, limit int) map[string]any {
	return map[string]any{
		"system":  buildSystemPrompt(catalog),
		"history": buildHistoryMessages(history, limit),
		"query":   query,
	}
}

func buildSystemPrompt(catalog locale.Catalog) string {
	system := strings.TrimSpace(catalog.SystemPrompt)
	if system == "" {
		system = "You are a university support assistant."
	}
	return system
}

// buildHistoryMessages keeps the last limit exchanges. Unanswered exchanges
// contribute only their question.
func buildHistoryMessages(history []chat.Exchange, limit int) []*schema.Message {
	if len(history) == 0 || limit <= 0 {
		return nil
	}

	start := 0
	if len(history) > limit {
		start = len(history) - limit
	}

	messages := make([]*schema.Message, 0, 2*(len(history)-start))
	for _, ex := range history[start:] {
		messages = append(messages, schema.UserMessage(ex.Message))
		if ex.Answered() && *ex.Response != "" {
			messages = append(messages, schema.AssistantMessage(*ex.Response, nil))
		}
	}
	return messages
}
