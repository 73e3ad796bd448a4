package ai

import (
	"context"

	"github.com/transport-university/chatbot/backend/internal/model/chat"
	"github.com/transport-university/chatbot/backend/internal/model/locale"
)

// CannedResponder answers every question with the catalog's fallback
// sentence. It stands in when no model credentials are configured.
type CannedResponder struct{}

func (CannedResponder) Reply(_ context.Context, _ []chat.Exchange, _ string, catalog locale.Catalog) (string, error) {
	return catalog.Fallback, nil
}
