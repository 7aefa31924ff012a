// Package authpw provides email/password authentication with verification.
package authpw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"propie/api/internal/rbac"
	"propie/api/internal/store"
	"propie/api/internal/util"
)

var (
	ErrMissingFields      = errors.New("email, password, and display name are required")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidRole        = errors.New("role cannot be self-assigned")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const (
	verificationTTL = 24 * time.Hour
	resetTTL        = time.Hour
)

// Service provides email/password authentication
type Service struct {
	store UserStore
	cost  int
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	VerifyUserEmail(ctx context.Context, token string) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error
}

// NewService creates a new auth service. cost 0 means bcrypt.DefaultCost.
func NewService(store UserStore, cost int) *Service {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{store: store, cost: cost}
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
	Role        string
}

// SignUpResponse contains sign-up result
type SignUpResponse struct {
	UserID              string
	VerificationToken   string
	RequiresEmailVerify bool
}

// SignUp creates a new unverified account. Any role but admin may be chosen;
// an empty role means buyer.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.Email == "" || req.Password == "" || req.DisplayName == "" {
		return nil, ErrMissingFields
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}
	role := rbac.RoleBuyer
	if req.Role != "" {
		if !rbac.Valid(req.Role) || rbac.Role(req.Role) == rbac.RoleAdmin {
			return nil, ErrInvalidRole
		}
		role = rbac.Role(req.Role)
	}

	if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	verificationToken, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}

	expiresAt := time.Now().Add(verificationTTL)
	user := store.User{
		ID:                    util.NewID("usr"),
		DisplayName:           req.DisplayName,
		Email:                 req.Email,
		PasswordHash:          string(hash),
		Role:                  string(role),
		VerificationToken:     verificationToken,
		VerificationExpiresAt: &expiresAt,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return &SignUpResponse{
		UserID:              user.ID,
		VerificationToken:   verificationToken,
		RequiresEmailVerify: true,
	}, nil
}

// SignInRequest contains sign-in parameters
type SignInRequest struct {
	Email    string
	Password string
}

// SignInResponse contains sign-in result
type SignInResponse struct {
	User           store.User
	RequiresVerify bool
}

// SignIn checks credentials. Unverified accounts with a correct password get
// RequiresVerify instead of a session.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*SignInResponse, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &SignInResponse{
		User:           user,
		RequiresVerify: !user.IsEmailVerified,
	}, nil
}

// VerifyEmail verifies an email address using a token
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	if err := s.store.VerifyUserEmail(ctx, token); err != nil {
		return ErrInvalidToken
	}
	return nil
}

// RequestPasswordReset creates a reset token. Unknown emails yield an empty
// token and no error so callers cannot probe for accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, store.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return "", store.User{}, nil
	}

	token, err := generateToken()
	if err != nil {
		return "", store.User{}, err
	}
	if err := s.store.CreatePasswordReset(ctx, user.ID, token, time.Now().Add(resetTTL)); err != nil {
		return "", store.User{}, err
	}
	return token, user, nil
}

// ResetPasswordRequest contains password reset parameters
type ResetPasswordRequest struct {
	Token       string
	NewPassword string
}

// ResetPassword resets a user's password using a reset token
// ResetPassword sets a new password for the holder of token and returns
// their user id.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) (string, error) {
	if req.Token == "" || req.NewPassword == "" {
		return "", ErrInvalidToken
	}
	if len(req.NewPassword) < 8 {
		return "", ErrWeakPassword
	}

	userID, err := s.store.GetPasswordReset(ctx, req.Token)
	if err != nil {
		return "", ErrInvalidToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateUserPassword(ctx, userID, string(hash)); err != nil {
		return "", fmt.Errorf("update password: %w", err)
	}
	// The password is already changed; a stale token only expires later.
	_ = s.store.MarkPasswordResetUsed(ctx, req.Token)
	return userID, nil
}

// HashPassword hashes a password for accounts created outside SignUp (seed data).
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// generateToken creates a secure random token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
