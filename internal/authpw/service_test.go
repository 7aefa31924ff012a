package authpw

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"propie/api/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Repository) {
	t.Helper()
	repo, err := store.Open(context.Background(), store.Options{
		Backend:    store.BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "auth.db"),
	})
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return NewService(repo.Users, bcrypt.MinCost), repo
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	resp, err := svc.SignUp(ctx, SignUpRequest{Email: "Ciara@Example.ie", Password: "correct-horse", DisplayName: "Ciara"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if !resp.RequiresEmailVerify || resp.VerificationToken == "" {
		t.Fatalf("expected verification to be required: %+v", resp)
	}
	user, err := repo.Users.GetUserByID(ctx, resp.UserID)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	if user.Role != "buyer" || user.Email != "ciara@example.ie" {
		t.Fatalf("unexpected user: %+v", user)
	}

	_, err = svc.SignUp(ctx, SignUpRequest{Email: "ciara@example.ie", Password: "correct-horse", DisplayName: "Dup"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	cases := []struct {
		name string
		req  SignUpRequest
		want error
	}{
		{name: "missing name", req: SignUpRequest{Email: "a@b.ie", Password: "longenough"}, want: ErrMissingFields},
		{name: "bad email", req: SignUpRequest{Email: "nope", Password: "longenough", DisplayName: "A"}, want: ErrInvalidEmail},
		{name: "short password", req: SignUpRequest{Email: "a@b.ie", Password: "short", DisplayName: "A"}, want: ErrWeakPassword},
		{name: "admin role", req: SignUpRequest{Email: "a@b.ie", Password: "longenough", DisplayName: "A", Role: "admin"}, want: ErrInvalidRole},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.SignUp(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSignInRequiresVerificationAndPassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	resp, err := svc.SignUp(ctx, SignUpRequest{Email: "sean@example.ie", Password: "correct-horse", DisplayName: "Sean", Role: "agent"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "sean@example.ie", Password: "wrong-horse"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	result, err := svc.SignIn(ctx, SignInRequest{Email: "sean@example.ie", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if !result.RequiresVerify {
		t.Fatal("expected unverified account to require verification")
	}

	if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail() error = %v", err)
	}
	result, err = svc.SignIn(ctx, SignInRequest{Email: "SEAN@example.ie", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if result.RequiresVerify || result.User.Role != "agent" {
		t.Fatalf("unexpected sign-in result: %+v", result)
	}

	if err := svc.VerifyEmail(ctx, resp.VerificationToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected reused token to fail, got %v", err)
	}
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "niamh@example.ie", Password: "old-password", DisplayName: "Niamh"}); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	token, _, err := svc.RequestPasswordReset(ctx, "missing@example.ie")
	if err != nil || token != "" {
		t.Fatalf("unknown email must not produce a token: %q %v", token, err)
	}

	token, user, err := svc.RequestPasswordReset(ctx, "niamh@example.ie")
	if err != nil || token == "" {
		t.Fatalf("RequestPasswordReset() = %q, %v", token, err)
	}
	if user.DisplayName != "Niamh" {
		t.Fatalf("unexpected user: %+v", user)
	}

	userID, err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "new-password"})
	if err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}
	if userID != user.ID {
		t.Fatalf("ResetPassword() user = %q, want %q", userID, user.ID)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "niamh@example.ie", Password: "new-password"}); err != nil {
		t.Fatalf("sign in with new password: %v", err)
	}
	if _, err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "another-one"}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected used token to fail, got %v", err)
	}
}
