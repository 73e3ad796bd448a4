package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/transport-university/chatbot/backend/internal/config"
	"github.com/transport-university/chatbot/backend/internal/model/chat"
	"github.com/transport-university/chatbot/backend/internal/model/locale"
)

// Service answers student questions through an eino chain over an Ark model.
type Service struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	historyLimit int
	logger       *slog.Logger
}

// NewService creates the chat model from cfg and compiles the prompt chain.
func NewService(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(newPromptTemplate())
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return newService(runnable, cfg.HistoryLimit, logger), nil
}

func newService(chain compose.Runnable[map[string]any, *schema.Message], historyLimit int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		chain:        chain,
		historyLimit: historyLimit,
		logger:       logger.With("component", "ai"),
	}
}

func newPromptTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)
}

// Reply generates the answer to query given the user's earlier exchanges.
func (s *Service) Reply(ctx context.Context, history []chat.Exchange, query string, catalog locale.Catalog) (string, error) {
	response, err := s.chain.Invoke(ctx, buildChainInput(history, query, catalog, s.historyLimit))
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	content := strings.TrimSpace(response.Content)
	if content == "" {
		content = catalog.Fallback
	}

	s.logger.Debug("generated reply", "lang", catalog.Tag, "history", len(history), "length", len(content))
	return content, nil
}
