package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vaibhav071104/vaultguard/internal/domain"
	"github.com/vaibhav071104/vaultguard/internal/infra/memory"

	"go.uber.org/zap"
)

func newTestAuth(t *testing.T) (*AuthService, *memory.UserStore, *memory.LedgerStore) {
	t.Helper()
	users := memory.NewUserStore()
	ledger := memory.NewLedgerStore(users)
	auth := NewAuthService(users, ledger, "test-secret", time.Hour, zap.NewNop())
	return auth, users, ledger
}

func TestRegister_CreatesUserAndWallet(t *testing.T) {
	auth, _, ledger := newTestAuth(t)
	ctx := context.Background()

	user, err := auth.Register(ctx, &domain.RegisterRequest{Username: "alice", Password: "correcthorse"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.PasswordHash == "correcthorse" {
		t.Fatal("password stored in plaintext")
	}
	if !user.IsActive || user.IsAdmin {
		t.Errorf("unexpected flags: %+v", user)
	}

	wallet, err := ledger.GetWalletByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("wallet not provisioned: %v", err)
	}
	if !wallet.Balance.IsZero() {
		t.Errorf("new wallet balance = %s, want 0", wallet.Balance)
	}
}

func TestRegister_Validation(t *testing.T) {
	auth, _, _ := newTestAuth(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"empty username", "", "correcthorse"},
		{"short password", "alice", "short"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := auth.Register(ctx, &domain.RegisterRequest{Username: tc.username, Password: tc.password})
			var validation *domain.ErrValidation
			if !errors.As(err, &validation) {
				t.Errorf("got %v, want ErrValidation", err)
			}
		})
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	auth, _, _ := newTestAuth(t)
	ctx := context.Background()

	if _, err := auth.Register(ctx, &domain.RegisterRequest{Username: "alice", Password: "correcthorse"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := auth.Register(ctx, &domain.RegisterRequest{Username: "alice", Password: "otherpassword"})
	var conflict *domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Errorf("got %v, want ErrConflict", err)
	}
}

func TestLogin_RoundTrip(t *testing.T) {
	auth, _, _ := newTestAuth(t)
	ctx := context.Background()

	user, err := auth.Register(ctx, &domain.RegisterRequest{Username: "alice", Password: "correcthorse"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	resp, err := auth.Login(ctx, &domain.LoginRequest{Username: "alice", Password: "correcthorse"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.TokenType != "Bearer" || resp.UserID != user.ID {
		t.Errorf("unexpected response: %+v", resp)
	}

	claims, err := auth.ValidateAccessToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Sub != user.ID || claims.Admin {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	auth, _, _ := newTestAuth(t)
	ctx := context.Background()

	if _, err := auth.Register(ctx, &domain.RegisterRequest{Username: "alice", Password: "correcthorse"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "alice", "wrong"},
		{"unknown user", "mallory", "correcthorse"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := auth.Login(ctx, &domain.LoginRequest{Username: tc.username, Password: tc.password})
			var unauthorized *domain.ErrUnauthorized
			if !errors.As(err, &unauthorized) {
				t.Errorf("got %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestLogin_DeletedUserRejected(t *testing.T) {
	auth, users, _ := newTestAuth(t)
	ctx := context.Background()

	user, err := auth.Register(ctx, &domain.RegisterRequest{Username: "alice", Password: "correcthorse"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := users.SoftDeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	_, err = auth.Login(ctx, &domain.LoginRequest{Username: "alice", Password: "correcthorse"})
	var unauthorized *domain.ErrUnauthorized
	if !errors.As(err, &unauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestValidateAccessToken_Garbage(t *testing.T) {
	auth, _, _ := newTestAuth(t)

	if _, err := auth.ValidateAccessToken("not-a-token"); err == nil {
		t.Error("garbage token accepted")
	}
}

func TestValidateAccessToken_WrongSecret(t *testing.T) {
	auth, _, _ := newTestAuth(t)
	other, _, _ := newTestAuth(t)
	other.jwtSecret = []byte("different-secret")
	ctx := context.Background()

	if _, err := auth.Register(ctx, &domain.RegisterRequest{Username: "alice", Password: "correcthorse"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	resp, err := auth.Login(ctx, &domain.LoginRequest{Username: "alice", Password: "correcthorse"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := other.ValidateAccessToken(resp.AccessToken); err == nil {
		t.Error("token accepted across secrets")
	}
}
