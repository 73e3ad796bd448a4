package ai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/transport-university/chatbot/backend/internal/model/chat"
	"github.com/transport-university/chatbot/backend/internal/model/locale"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func vietnamese(t *testing.T) locale.Catalog {
	t.Helper()
	cat, ok := locale.NewMemoryStore(locale.Seed()).FindByTag("vi")
	if !ok {
		t.Fatal("vi catalog missing")
	}
	return cat
}

func history(n int) []chat.Exchange {
	items := make([]chat.Exchange, n)
	for i := range items {
		items[i] = chat.Exchange{ID: int64(i + 1), Message: "q", Response: chat.StringPtr("a")}
	}
	return items
}

func TestBuildHistoryMessagesKeepsTail(t *testing.T) {
	items := history(5)
	items[4].Response = nil

	msgs := buildHistoryMessages(items, 3)
	// exchanges 3 and 4 are answered, 5 is not
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	if msgs[0].Role != schema.User || msgs[1].Role != schema.Assistant {
		t.Fatalf("unexpected roles %s %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[4].Role != schema.User {
		t.Fatalf("expected trailing user message, got %s", msgs[4].Role)
	}

	if got := buildHistoryMessages(items, 0); got != nil {
		t.Fatalf("expected nil history when limit is zero, got %d", len(got))
	}
}

func TestBuildChainInputUsesCatalogPrompt(t *testing.T) {
	cat := vietnamese(t)
	input := buildChainInput(nil, "Học phí bao nhiêu?", cat, 10)

	if input["system"] != buildSystemPrompt(cat) || input["system"] == "" {
		t.Fatalf("unexpected system prompt %q", input["system"])
	}
	if input["query"] != "Học phí bao nhiêu?" {
		t.Fatalf("unexpected query %v", input["query"])
	}
}

func compileLambda(t *testing.T, fn func(context.Context, map[string]any) (*schema.Message, error)) compose.Runnable[map[string]any, *schema.Message] {
	t.Helper()
	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendLambda(compose.InvokableLambda(fn))
	runnable, err := chain.Compile(context.Background())
	if err != nil {
		t.Fatalf("compile err: %v", err)
	}
	return runnable
}

func TestServiceReply(t *testing.T) {
	var seen map[string]any
	runnable := compileLambda(t, func(_ context.Context, in map[string]any) (*schema.Message, error) {
		seen = in
		return schema.AssistantMessage("  **Học phí** là 12 triệu.  ", nil), nil
	})
	svc := newService(runnable, 2, quietLogger())

	got, err := svc.Reply(context.Background(), history(4), "Học phí?", vietnamese(t))
	if err != nil {
		t.Fatalf("Reply err: %v", err)
	}
	if got != "**Học phí** là 12 triệu." {
		t.Fatalf("unexpected reply %q", got)
	}
	if msgs, _ := seen["history"].([]*schema.Message); len(msgs) != 4 {
		t.Fatalf("expected 4 history messages, got %d", len(msgs))
	}
}

func TestServiceReplyEmptyFallsBack(t *testing.T) {
	runnable := compileLambda(t, func(context.Context, map[string]any) (*schema.Message, error) {
		return schema.AssistantMessage("   ", nil), nil
	})
	cat := vietnamese(t)

	got, err := newService(runnable, 10, quietLogger()).Reply(context.Background(), nil, "?", cat)
	if err != nil {
		t.Fatalf("Reply err: %v", err)
	}
	if got != cat.Fallback {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestServiceReplyError(t *testing.T) {
	boom := errors.New("model unavailable")
	runnable := compileLambda(t, func(context.Context, map[string]any) (*schema.Message, error) {
		return nil, boom
	})

	got, err := newService(runnable, 10, quietLogger()).Reply(context.Background(), nil, "?", vietnamese(t))
	if err == nil {
		t.Fatal("expected model error")
	}
	if got != "" {
		t.Fatalf("expected empty reply on error, got %q", got)
	}
}

func TestCannedResponder(t *testing.T) {
	cat := vietnamese(t)
	got, err := CannedResponder{}.Reply(context.Background(), nil, "Lịch thi?", cat)
	if err != nil {
		t.Fatalf("Reply err: %v", err)
	}
	if got != "Xin lỗi, tôi chưa có thông tin về vấn đề này." {
		t.Fatalf("unexpected canned reply %q", got)
	}
}
