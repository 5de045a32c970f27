// Package auth implements account registration and login for the receipt
// tracker. Accounts are gated on a single allowed email domain: registration
// and login both reject addresses outside it, so a domain change locks out
// existing accounts as well.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"ricevute/internal/core"
	"ricevute/internal/storage"
)

var (
	ErrDomainNotAllowed   = errors.New("email domain is not allowed")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// UserStore is the subset of the repository the auth service needs.
type UserStore interface {
	CreateUser(ctx context.Context, u core.User, passwordHash string) (core.User, error)
	GetUserByEmail(ctx context.Context, email string) (core.User, string, error)
}

type Service struct {
	users         UserStore
	tokens        *TokenManager
	allowedDomain string
}

func NewService(users UserStore, tokens *TokenManager, allowedDomain string) *Service {
	return &Service{users: users, tokens: tokens, allowedDomain: allowedDomain}
}

// DomainAllowed reports whether the address passes the domain gate. An empty
// configured domain disables the gate.
func (s *Service) DomainAllowed(email string) bool {
	if s.allowedDomain == "" {
		return true
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	return strings.EqualFold(email[at+1:], s.allowedDomain)
}

func (s *Service) Register(ctx context.Context, email, password, userName string) (core.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return core.User{}, ErrInvalidEmail
	}
	if len(password) < 8 {
		return core.User{}, ErrWeakPassword
	}
	if !s.DomainAllowed(email) {
		slog.WarnContext(ctx, "Registration rejected for disallowed domain", "email", email)
		return core.User{}, ErrDomainNotAllowed
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, core.User{Email: email, UserName: strings.TrimSpace(userName)}, string(hash))
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and returns a signed access token. The domain
// gate is re-checked here so accounts created before a domain change cannot
// keep signing in.
func (s *Service) Login(ctx context.Context, email, password string) (string, core.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, hash, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return "", core.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", core.User{}, fmt.Errorf("look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", core.User{}, ErrInvalidCredentials
	}

	if user.Disabled {
		slog.WarnContext(ctx, "Login rejected for disabled account", "user_id", user.ID)
		return "", core.User{}, ErrAccountDisabled
	}
	if !s.DomainAllowed(user.Email) {
		slog.WarnContext(ctx, "Login rejected for disallowed domain", "email", user.Email)
		return "", core.User{}, ErrDomainNotAllowed
	}

	token, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		return "", core.User{}, err
	}
	return token, user, nil
}
