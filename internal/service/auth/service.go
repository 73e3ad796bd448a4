// Package auth registers accounts and issues signed access tokens.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/transport-university/chatbot/backend/internal/model/user"
	"github.com/transport-university/chatbot/backend/internal/store"
)

var (
	ErrInvalidUsername    = errors.New("username must be 3 to 150 characters")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrInactive           = errors.New("inactive user")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const tokenType = "bearer"

// Users is the slice of the repository the auth service needs.
type Users interface {
	CreateUser(ctx context.Context, u user.User) error
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByUsername(ctx context.Context, username string) (user.User, error)
}

// Service validates credentials against the user store.
type Service struct {
	users  Users
	secret []byte
	ttl    time.Duration
	admins map[string]struct{}
	now    func() time.Time
}

// NewService builds a Service signing tokens with secret. Usernames listed in
// admins are granted dashboard access when they register.
func NewService(users Users, secret string, ttl time.Duration, admins []string) *Service {
	set := make(map[string]struct{}, len(admins))
	for _, name := range admins {
		set[strings.ToLower(name)] = struct{}{}
	}
	return &Service{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		admins: set,
		now:    time.Now,
	}
}

// Register validates the request and stores a new active account.
func (s *Service) Register(ctx context.Context, req user.RegisterRequest) (user.User, error) {
	username := strings.TrimSpace(req.Username)
	if n := utf8.RuneCountInString(username); n < 3 || n > 150 {
		return user.User{}, ErrInvalidUsername
	}

	email := strings.TrimSpace(req.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return user.User{}, ErrInvalidEmail
	}

	if utf8.RuneCountInString(req.Password) < 6 {
		return user.User{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return user.User{}, fmt.Errorf("hash password: %w", err)
	}

	_, admin := s.admins[strings.ToLower(username)]
	u := user.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		IsActive:     true,
		IsAdmin:      admin,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return user.User{}, err
	}
	return u, nil
}

// Login checks the password and returns a fresh access token.
func (s *Service) Login(ctx context.Context, req user.LoginRequest) (user.Token, error) {
	u, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(req.Username))
	if errors.Is(err, store.ErrUserNotFound) {
		return user.Token{}, ErrInvalidCredentials
	}
	if err != nil {
		return user.Token{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return user.Token{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		return user.Token{}, ErrInactive
	}

	return user.Token{
		AccessToken: s.Issue(u.ID),
		TokenType:   tokenType,
		ExpiresIn:   int(s.ttl / time.Second),
	}, nil
}

// Authenticate resolves a token to an active user.
func (s *Service) Authenticate(ctx context.Context, token string) (user.User, error) {
	userID, err := s.verify(token)
	if err != nil {
		return user.User{}, err
	}

	u, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrUserNotFound) {
		return user.User{}, ErrInvalidToken
	}
	if err != nil {
		return user.User{}, err
	}
	if !u.IsActive {
		return user.User{}, ErrInactive
	}
	return u, nil
}

// Issue signs a token of the form "<userID>.<unix expiry>.<hex hmac>".
func (s *Service) Issue(userID string) string {
	payload := userID + "." + strconv.FormatInt(s.now().Add(s.ttl).Unix(), 10)
	return payload + "." + s.sign(payload)
}

func (s *Service) verify(token string) (string, error) {
	cut := strings.LastIndexByte(token, '.')
	if cut <= 0 {
		return "", ErrInvalidToken
	}
	payload, sig := token[:cut], token[cut+1:]
	if !hmac.Equal([]byte(s.sign(payload)), []byte(sig)) {
		return "", ErrInvalidToken
	}

	userID, rawExpiry, ok := strings.Cut(payload, ".")
	if !ok || userID == "" {
		return "", ErrInvalidToken
	}
	expiry, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil || s.now().Unix() >= expiry {
		return "", ErrInvalidToken
	}
	return userID, nil
}

func (s *Service) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
