package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/auth"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

func newAccounts() (*app.AccountService, *auth.Tokens) {
	tokens := auth.NewTokens("test-secret", time.Hour)
	return app.NewAccountService(app.AccountConfig{
		Store:  memory.NewStore(),
		Tokens: tokens,
		Hasher: auth.Bcrypt{Cost: bcrypt.MinCost},
	}), tokens
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	accounts, tokens := newAccounts()

	u, err := accounts.Register(ctx, app.RegisterInput{Username: "ada", Email: "ada@example.com", Password: "lovelace"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.ID == 0 || u.Role != domain.RoleUser || u.PasswordHash == "lovelace" {
		t.Fatalf("unexpected user: %+v", u)
	}

	session, err := accounts.Login(ctx, app.LoginInput{Username: "ada", Password: "lovelace"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	caller, err := tokens.Verify(session.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if caller.UserID != u.ID || caller.Role != domain.RoleUser {
		t.Fatalf("unexpected caller: %+v", caller)
	}
}

func TestRegisterRejects(t *testing.T) {
	ctx := context.Background()
	accounts, _ := newAccounts()
	if _, err := accounts.Register(ctx, app.RegisterInput{Username: "ada", Email: "ada@example.com", Password: "pw"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	tests := map[string]struct {
		in   app.RegisterInput
		want error
	}{
		"same username":     {in: app.RegisterInput{Username: "ada", Email: "other@example.com", Password: "pw"}, want: domain.ErrUserExists},
		"same email":        {in: app.RegisterInput{Username: "bob", Email: "ada@example.com", Password: "pw"}, want: domain.ErrConflict},
		"bad email":         {in: app.RegisterInput{Username: "bob", Email: "nope", Password: "pw"}, want: domain.ErrValidation},
		"missing password":  {in: app.RegisterInput{Username: "bob", Email: "bob@example.com"}, want: domain.ErrValidation},
		"password too long": {in: app.RegisterInput{Username: "bob", Email: "bob@example.com", Password: strings.Repeat("é", 37)}, want: domain.ErrValidation},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := accounts.Register(ctx, tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLoginFailures(t *testing.T) {
	ctx := context.Background()
	accounts, _ := newAccounts()
	if _, err := accounts.Register(ctx, app.RegisterInput{Username: "ada", Email: "ada@example.com", Password: "pw"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	for _, in := range []app.LoginInput{
		{Username: "ada", Password: "wrong"},
		{Username: "ghost", Password: "pw"},
	} {
		if _, err := accounts.Login(ctx, in); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("login %q: expected invalid credentials, got %v", in.Username, err)
		}
	}
	if _, err := accounts.Login(ctx, app.LoginInput{Username: "ada"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	ctx := context.Background()
	accounts, tokens := newAccounts()
	in := app.RegisterInput{Username: "root", Email: "root@example.com", Password: "toor"}

	created, err := accounts.EnsureAdmin(ctx, in)
	if err != nil || !created {
		t.Fatalf("expected admin created, created=%v err=%v", created, err)
	}
	created, err = accounts.EnsureAdmin(ctx, in)
	if err != nil || created {
		t.Fatalf("expected no-op, created=%v err=%v", created, err)
	}

	session, err := accounts.Login(ctx, app.LoginInput{Username: "root", Password: "toor"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	caller, err := tokens.Verify(session.AccessToken)
	if err != nil || !caller.IsAdmin() {
		t.Fatalf("expected admin caller, got %+v err=%v", caller, err)
	}
}

func TestResolveUsesStoredRole(t *testing.T) {
	ctx := context.Background()
	accounts, _ := newAccounts()
	u, err := accounts.Register(ctx, app.RegisterInput{Username: "ada", Email: "ada@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	caller, err := accounts.Resolve(ctx, domain.Caller{UserID: u.ID, Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if caller.Role != domain.RoleUser || caller.UserID != u.ID {
		t.Fatalf("expected stored role user, got %+v", caller)
	}

	if _, err := accounts.Resolve(ctx, domain.Caller{UserID: u.ID + 100, Role: domain.RoleUser}); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated for unknown account, got %v", err)
	}
}
