package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/transport-university/chatbot/backend/internal/model/chat"
	"github.com/transport-university/chatbot/backend/internal/model/user"
)

func TestWindow(t *testing.T) {
	cases := []struct {
		total, limit, offset int
		start, end           int
	}{
		{total: 5, limit: 2, offset: 0, start: 3, end: 5},
		{total: 5, limit: 2, offset: 4, start: 0, end: 1},
		{total: 5, limit: 10, offset: 0, start: 0, end: 5},
		{total: 5, limit: 2, offset: 9, start: 0, end: 0},
		{total: 0, limit: 50, offset: 0, start: 0, end: 0},
	}
	for _, tc := range cases {
		start, end := window(tc.total, tc.limit, tc.offset)
		if start != tc.start || end != tc.end {
			t.Fatalf("window(%d,%d,%d) = %d,%d want %d,%d", tc.total, tc.limit, tc.offset, start, end, tc.start, tc.end)
		}
	}
}

func TestMemoryRepository(t *testing.T) {
	runRepositoryContract(t, NewMemory())
}

func TestSQLiteRepository(t *testing.T) {
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("NewSQLite err: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	runRepositoryContract(t, repo)
}

func TestRedisRepository(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	repo, err := NewRedis(context.Background(), url)
	if err != nil {
		t.Fatalf("NewRedis err: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	runRepositoryContract(t, repo.WithPrefix("test:"+strconv.FormatInt(time.Now().UnixNano(), 36)+":"))
}

func runRepositoryContract(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	alice := user.User{ID: "u-alice", Username: "alice", Email: "alice@utc.edu.vn", PasswordHash: "hash", IsActive: true, CreatedAt: time.Now().UTC()}
	if err := repo.CreateUser(ctx, alice); err != nil {
		t.Fatalf("CreateUser err: %v", err)
	}
	dup := alice
	dup.ID = "u-other"
	dup.Email = "other@utc.edu.vn"
	if err := repo.CreateUser(ctx, dup); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	got, err := repo.GetUserByUsername(ctx, "ALICE")
	if err != nil {
		t.Fatalf("GetUserByUsername err: %v", err)
	}
	if got.ID != alice.ID || got.PasswordHash != "hash" || !got.IsActive {
		t.Fatalf("unexpected user: %+v", got)
	}
	if _, err := repo.GetUser(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if n, err := repo.CountUsers(ctx); err != nil || n != 1 {
		t.Fatalf("CountUsers = %d, %v", n, err)
	}

	var ids []int64
	for i, q := range []string{"học phí", "lịch thi", "học phí"} {
		ex, err := repo.CreateExchange(ctx, chat.Exchange{UserID: alice.ID, Role: "user", Message: q})
		if err != nil {
			t.Fatalf("CreateExchange %d err: %v", i, err)
		}
		if ex.Response != nil {
			t.Fatalf("new exchange should have nil response")
		}
		ids = append(ids, ex.ID)
	}
	if _, err := repo.CreateExchange(ctx, chat.Exchange{UserID: "u-bob", Role: "user", Message: "xin chào"}); err != nil {
		t.Fatalf("CreateExchange bob err: %v", err)
	}

	if err := repo.SetResponse(ctx, alice.ID, ids[0], "10 triệu"); err != nil {
		t.Fatalf("SetResponse err: %v", err)
	}
	if err := repo.SetResponse(ctx, "u-bob", ids[1], "nope"); !errors.Is(err, ErrExchangeNotFound) {
		t.Fatalf("expected ownership check, got %v", err)
	}

	page, total, err := repo.ListExchanges(ctx, alice.ID, 2, 0)
	if err != nil {
		t.Fatalf("ListExchanges err: %v", err)
	}
	if total != 3 || len(page) != 2 {
		t.Fatalf("expected 2 of 3, got %d of %d", len(page), total)
	}
	if page[0].ID != ids[1] || page[1].ID != ids[2] {
		t.Fatalf("expected newest page oldest first, got %d,%d", page[0].ID, page[1].ID)
	}

	older, _, err := repo.ListExchanges(ctx, alice.ID, 2, 2)
	if err != nil {
		t.Fatalf("ListExchanges older err: %v", err)
	}
	if len(older) != 1 || older[0].ID != ids[0] {
		t.Fatalf("unexpected older page: %+v", older)
	}
	if older[0].Response == nil || *older[0].Response != "10 triệu" {
		t.Fatalf("expected stored response, got %v", older[0].Response)
	}

	totalQ, top, err := repo.QuestionStats(ctx, 1)
	if err != nil {
		t.Fatalf("QuestionStats err: %v", err)
	}
	if totalQ != 4 || len(top) != 1 || top[0] != "học phí" {
		t.Fatalf("unexpected stats: %d %v", totalQ, top)
	}

	if err := repo.DeleteExchange(ctx, "u-bob", ids[0]); !errors.Is(err, ErrExchangeNotFound) {
		t.Fatalf("expected not found for foreign delete, got %v", err)
	}
	if err := repo.DeleteExchange(ctx, alice.ID, ids[0]); err != nil {
		t.Fatalf("DeleteExchange err: %v", err)
	}
	if err := repo.DeleteExchange(ctx, alice.ID, ids[0]); !errors.Is(err, ErrExchangeNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if _, total, _ := repo.ListExchanges(ctx, alice.ID, 50, 0); total != 2 {
		t.Fatalf("expected 2 remaining, got %d", total)
	}

	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("Ping err: %v", err)
	}
}
