package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quiz-attempt-service/internal/domain"
)

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	Issue(u domain.User) (string, error)
}

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) (bool, error)
}

type AccountConfig struct {
	Store  Store
	Tokens TokenIssuer
	Hasher PasswordHasher
	Clock  func() time.Time
}

type AccountService struct {
	store  Store
	tokens TokenIssuer
	hasher PasswordHasher
	clock  func() time.Time
}

func NewAccountService(c AccountConfig) *AccountService {
	s := &AccountService{store: c.Store, tokens: c.Tokens, hasher: c.Hasher, clock: c.Clock}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

type RegisterInput struct {
	Username string `json:"username" validate:"required,max=150"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,maxbytes=72"`
}

// Register creates a regular user account.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validateInput(in); err != nil {
		return domain.User{}, err
	}
	u, err := s.create(ctx, in, domain.RoleUser)
	if err != nil {
		return domain.User{}, err
	}
	slog.InfoContext(ctx, "account: registered", "user_id", u.ID)
	return u, nil
}

// EnsureAdmin creates an admin account unless the username is already taken.
// It reports whether a new account was created.
func (s *AccountService) EnsureAdmin(ctx context.Context, in RegisterInput) (bool, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validateInput(in); err != nil {
		return false, err
	}

	var exists bool
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.GetUserByUsername(ctx, in.Username)
		switch {
		case err == nil:
			exists = true
			return nil
		case errors.Is(err, domain.ErrUserNotFound):
			return nil
		default:
			return err
		}
	})
	if err != nil || exists {
		return false, err
	}

	u, err := s.create(ctx, in, domain.RoleAdmin)
	if err != nil {
		return false, err
	}
	slog.InfoContext(ctx, "account: admin created", "user_id", u.ID)
	return true, nil
}

func (s *AccountService) create(ctx context.Context, in RegisterInput, role domain.Role) (domain.User, error) {
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, err
	}

	u := domain.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    s.clock().UTC(),
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		exists, err := tx.UserExists(ctx, u.Username, u.Email)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrUserExists
		}
		return tx.InsertUser(ctx, &u)
	})
	return u, err
}

type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type Session struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        domain.User `json:"user"`
}

// Login checks credentials and issues an access token.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (Session, error) {
	if err := validateInput(in); err != nil {
		return Session{}, err
	}

	var u domain.User
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		u, err = tx.GetUserByUsername(ctx, strings.TrimSpace(in.Username))
		return err
	})
	if errors.Is(err, domain.ErrUserNotFound) {
		return Session{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}

	ok, err := s.hasher.Compare(u.PasswordHash, in.Password)
	if err != nil {
		slog.WarnContext(ctx, "account: stored hash unusable", "user_id", u.ID, "err", err)
		return Session{}, domain.ErrInvalidCredentials
	}
	if !ok {
		return Session{}, domain.ErrInvalidCredentials
	}

	tok, err := s.tokens.Issue(u)
	if err != nil {
		return Session{}, err
	}
	return Session{AccessToken: tok, TokenType: "bearer", User: u}, nil
}

// Resolve reloads the caller's account so role changes and deletions take
// effect before the token expires.
func (s *AccountService) Resolve(ctx context.Context, caller domain.Caller) (domain.Caller, error) {
	var u domain.User
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		u, err = tx.GetUser(ctx, caller.UserID)
		return err
	})
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.Caller{}, fmt.Errorf("account no longer exists: %w", domain.ErrUnauthenticated)
	}
	if err != nil {
		return domain.Caller{}, err
	}
	return domain.Caller{UserID: u.ID, Role: u.Role}, nil
}
