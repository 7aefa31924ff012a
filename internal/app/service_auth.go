package app

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"propie/api/internal/audit"
	"propie/api/internal/auth"
	"propie/api/internal/authpw"
	"propie/api/internal/fingerprint"
	"propie/api/internal/rbac"
	"propie/api/internal/store"
	"propie/api/internal/util"
)

type SignUpResult struct {
	UserID              string
	RequiresEmailVerify bool
	// DevVerificationToken is set only when no mailer is configured outside production.
	DevVerificationToken string
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (SignUpResult, error) {
	resp, err := s.passwords.SignUp(ctx, req)
	if err != nil {
		return SignUpResult{}, err
	}
	out := SignUpResult{UserID: resp.UserID, RequiresEmailVerify: resp.RequiresEmailVerify}

	link := s.appURL("/verify-email", resp.VerificationToken)
	switch {
	case s.email.IsConfigured():
		if err := s.email.SendVerificationEmail(req.Email, req.DisplayName, link); err != nil {
			s.logger.Warn("send verification email", zap.String("user_id", resp.UserID), zap.Error(err))
		}
	case !s.cfg.Production():
		out.DevVerificationToken = resp.VerificationToken
	}
	return out, nil
}

type SignInResult struct {
	Session    Session
	Assessment *fingerprint.Assessment
}

// SignIn checks credentials and, when the client sent one, scores the
// device snapshot against the stored baseline. CRITICAL risk blocks the
// sign-in and revokes every refresh session the user holds.
func (s *Service) SignIn(ctx context.Context, email, password string, snapshot *fingerprint.Snapshot) (SignInResult, error) {
	resp, err := s.passwords.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		s.audit.Record(ctx, store.AuditEntry{
			ActorName: strings.ToLower(strings.TrimSpace(email)),
			Action:    audit.ActionSignIn,
			Outcome:   audit.OutcomeFailure,
			Severity:  audit.SeverityWarning,
		})
		return SignInResult{}, err
	}
	user := resp.User
	if resp.RequiresVerify {
		return SignInResult{}, domainError(http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Email address has not been verified", nil)
	}

	var assessment *fingerprint.Assessment
	if snapshot != nil {
		result, err := s.evaluateFingerprint(ctx, user.ID, user.DisplayName, *snapshot)
		if err != nil {
			return SignInResult{}, err
		}
		assessment = &result
		if result.Action == fingerprint.ActionDeny {
			if err := s.sessions.RevokeUserSessions(ctx, user.ID); err != nil {
				return SignInResult{}, err
			}
			s.audit.Record(ctx, store.AuditEntry{
				ActorID:   user.ID,
				ActorName: user.DisplayName,
				Action:    audit.ActionSignIn,
				Outcome:   audit.OutcomeDenied,
				Severity:  audit.SeverityCritical,
				Metadata:  map[string]any{"riskScore": result.Score},
			})
			return SignInResult{}, domainError(http.StatusForbidden, "SESSION_DENIED", "Sign-in blocked for this device", result)
		}
	}

	session, err := s.issueSession(ctx, user)
	if err != nil {
		return SignInResult{}, err
	}
	s.audit.Record(ctx, store.AuditEntry{
		ActorID:   user.ID,
		ActorName: user.DisplayName,
		Action:    audit.ActionSignIn,
	})
	return SignInResult{Session: session, Assessment: assessment}, nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	return s.passwords.VerifyEmail(ctx, token)
}

// RequestPasswordReset always succeeds for unknown addresses. The returned
// token is non-empty only in development without a mailer.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	token, user, err := s.passwords.RequestPasswordReset(ctx, email)
	if err != nil || token == "" {
		return "", err
	}
	if s.email.IsConfigured() {
		if err := s.email.SendPasswordResetEmail(user.Email, user.DisplayName, s.appURL("/reset-password", token)); err != nil {
			s.logger.Warn("send password reset email", zap.String("user_id", user.ID), zap.Error(err))
		}
		return "", nil
	}
	if s.cfg.Production() {
		return "", nil
	}
	return token, nil
}

// ResetPassword sets the new password, then signs the user out everywhere and
// forgets their device baseline.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	userID, err := s.passwords.ResetPassword(ctx, authpw.ResetPasswordRequest{Token: token, NewPassword: newPassword})
	entry := store.AuditEntry{Action: audit.ActionPasswordResetFinish, ActorID: userID}
	if err != nil {
		if !errors.Is(err, authpw.ErrInvalidToken) {
			return err
		}
		entry.Outcome = audit.OutcomeFailure
		entry.Severity = audit.SeverityWarning
		s.audit.Record(ctx, entry)
		return err
	}
	s.audit.Record(ctx, entry)
	if err := s.sessions.RevokeUserSessions(ctx, userID); err != nil {
		return err
	}
	return s.fingerprints.Reset(ctx, userID)
}

func (s *Service) appURL(path, token string) string {
	return strings.TrimRight(s.cfg.AppBaseURL, "/") + path + "?token=" + url.QueryEscape(token)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}
	user, err := s.repo.Users.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes the access token and, when given, the refresh token.
func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			return err
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			return err
		}
	}
	s.record(ctx, session, audit.ActionSignOut, "user", session.UserID, nil)
	return nil
}

// Me returns the stored account behind a session.
func (s *Service) Me(ctx context.Context, session Session) (store.User, error) {
	user, err := s.repo.Users.GetUserByID(ctx, session.UserID)
	return user, orNotFound(err, "User not found")
}

// ProvisionUser creates a verified account with any role, admin included.
// It backs seeding and operator tooling, never a public endpoint.
func (s *Service) ProvisionUser(ctx context.Context, email, password, displayName, role string) (store.User, error) {
	errs := fieldErrors{}
	if strings.TrimSpace(email) == "" {
		errs.add("email", "is required")
	}
	if len(password) < 8 {
		errs.add("password", "must be at least 8 characters")
	}
	if strings.TrimSpace(displayName) == "" {
		errs.add("displayName", "is required")
	}
	if !rbac.Valid(role) {
		errs.add("role", "is not a valid role")
	}
	if err := errs.err(); err != nil {
		return store.User{}, err
	}
	hash, err := s.passwords.HashPassword(password)
	if err != nil {
		return store.User{}, err
	}
	u := store.User{
		ID:              util.NewID("usr"),
		Email:           strings.ToLower(strings.TrimSpace(email)),
		DisplayName:     strings.TrimSpace(displayName),
		PasswordHash:    hash,
		Role:            role,
		IsEmailVerified: true,
	}
	if err := s.repo.Users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.User{}, conflictError("EMAIL_EXISTS", "Email already registered")
		}
		return store.User{}, err
	}
	return u, nil
}

func (s *Service) UserByEmail(ctx context.Context, email string) (store.User, error) {
	user, err := s.repo.Users.GetUserByEmail(ctx, email)
	return user, orNotFound(err, "User not found")
}

// SessionFor builds an in-process actor for u without issuing tokens.
func SessionFor(u store.User) Session {
	return Session{UserID: u.ID, UserName: u.DisplayName, Email: u.Email, Role: u.Role}
}
