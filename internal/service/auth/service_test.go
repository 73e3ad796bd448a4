package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/transport-university/chatbot/backend/internal/model/user"
	"github.com/transport-university/chatbot/backend/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	repo := store.NewMemory()
	return NewService(repo, "test-secret-0123456789", time.Hour, []string{"Admin"}), repo
}

func register(t *testing.T, svc *Service, name string) user.User {
	t.Helper()
	u, err := svc.Register(context.Background(), user.RegisterRequest{
		Username: name,
		Email:    name + "@utc.edu.vn",
		Password: "secret1",
	})
	if err != nil {
		t.Fatalf("Register err: %v", err)
	}
	return u
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  user.RegisterRequest
		want error
	}{
		{"short username", user.RegisterRequest{Username: "ab", Email: "ab@utc.edu.vn", Password: "secret1"}, ErrInvalidUsername},
		{"long username", user.RegisterRequest{Username: strings.Repeat("a", 151), Email: "a@utc.edu.vn", Password: "secret1"}, ErrInvalidUsername},
		{"bad email", user.RegisterRequest{Username: "student", Email: "not-an-email", Password: "secret1"}, ErrInvalidEmail},
		{"named email", user.RegisterRequest{Username: "student", Email: "Bob <bob@utc.edu.vn>", Password: "secret1"}, ErrInvalidEmail},
		{"weak password", user.RegisterRequest{Username: "student", Email: "s@utc.edu.vn", Password: "12345"}, ErrWeakPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRegisterHashesPasswordAndGrantsAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	u := register(t, svc, "student")
	if u.PasswordHash == "" || u.PasswordHash == "secret1" {
		t.Fatalf("password not hashed: %q", u.PasswordHash)
	}
	if !u.IsActive || u.IsAdmin {
		t.Fatalf("unexpected flags active=%v admin=%v", u.IsActive, u.IsAdmin)
	}

	admin := register(t, svc, "admin")
	if !admin.IsAdmin {
		t.Fatal("expected admin flag for configured username")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "student")

	_, err := svc.Register(context.Background(), user.RegisterRequest{
		Username: "student",
		Email:    "other@utc.edu.vn",
		Password: "secret1",
	})
	if !errors.Is(err, store.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLoginAndAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u := register(t, svc, "student")

	tok, err := svc.Login(ctx, user.LoginRequest{Username: "student", Password: "secret1"})
	if err != nil {
		t.Fatalf("Login err: %v", err)
	}
	if tok.TokenType != "bearer" || tok.ExpiresIn != 3600 {
		t.Fatalf("unexpected token %+v", tok)
	}

	got, err := svc.Authenticate(ctx, tok.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate err: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("unexpected user %s", got.ID)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	register(t, svc, "student")

	if _, err := svc.Login(ctx, user.LoginRequest{Username: "student", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, user.LoginRequest{Username: "ghost", Password: "secret1"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	u := register(t, svc, "student")
	u.ID = "inactive-id"
	u.Username = "dormant"
	u.Email = "dormant@utc.edu.vn"
	u.IsActive = false
	if err := repo.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser err: %v", err)
	}

	if _, err := svc.Login(ctx, user.LoginRequest{Username: "dormant", Password: "secret1"}); !errors.Is(err, ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, svc.Issue("inactive-id")); !errors.Is(err, ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}
}

func TestAuthenticateRejectsTamperedAndExpiredTokens(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u := register(t, svc, "student")

	tok := svc.Issue(u.ID)
	tampered := "x" + tok
	for _, bad := range []string{"", "garbage", tampered, tok[:len(tok)-1]} {
		if _, err := svc.Authenticate(ctx, bad); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", bad, err)
		}
	}

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := svc.Authenticate(ctx, tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestAuthenticateUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Authenticate(context.Background(), svc.Issue("nobody")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
