package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type UserRepository struct {
	c conn
}

const userColumns = `id, email, display_name, password_hash, role, is_email_verified, verification_token,
	verification_expires_at, created_at, updated_at`

func scanUser(row scanner) (User, error) {
	var (
		u         User
		token     sql.NullString
		expiresAt sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Role, &u.IsEmailVerified, &token,
		&expiresAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	u.VerificationToken = token.String
	u.VerificationExpiresAt = nullTime(expiresAt)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func (r *UserRepository) CreateUser(ctx context.Context, u User) error {
	ts := now()
	var token any
	if u.VerificationToken != "" {
		token = u.VerificationToken
	}
	_, err := r.c.exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, strings.ToLower(strings.TrimSpace(u.Email)), u.DisplayName, u.PasswordHash, u.Role, u.IsEmailVerified, token,
		u.VerificationExpiresAt, ts, ts)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create user: %w", ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetUserByID(ctx context.Context, id string) (User, error) {
	u, err := scanUser(r.c.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if err != nil {
		return User{}, notFound(err)
	}
	return u, nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(r.c.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		return User{}, notFound(err)
	}
	return u, nil
}

func (r *UserRepository) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := r.c.queryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (r *UserRepository) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	res, err := r.c.exec(ctx, `
		UPDATE users SET verification_token=$1, verification_expires_at=$2, updated_at=$3 WHERE id=$4
	`, token, expiresAt.UTC().Truncate(time.Microsecond), now(), userID)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return affectedOne(res)
}

// VerifyUserEmail marks the holder of an unexpired token as verified.
func (r *UserRepository) VerifyUserEmail(ctx context.Context, token string) error {
	ts := now()
	res, err := r.c.exec(ctx, `
		UPDATE users
		SET is_email_verified=$1, verification_token=NULL, verification_expires_at=NULL, updated_at=$2
		WHERE verification_token=$3 AND verification_expires_at > $2
	`, true, ts, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	return affectedOne(res)
}

func (r *UserRepository) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	res, err := r.c.exec(ctx, `UPDATE users SET password_hash=$1, updated_at=$2 WHERE id=$3`, passwordHash, now(), userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return affectedOne(res)
}

func (r *UserRepository) UpdateUserRole(ctx context.Context, userID, role string) error {
	res, err := r.c.exec(ctx, `UPDATE users SET role=$1, updated_at=$2 WHERE id=$3`, role, now(), userID)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	return affectedOne(res)
}

func (r *UserRepository) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := r.c.exec(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expiresAt.UTC().Truncate(time.Microsecond))
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

// GetPasswordReset returns the user id for an unused, unexpired reset token.
func (r *UserRepository) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := r.c.queryRow(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > $2
	`, token, now()).Scan(&userID)
	if err != nil {
		return "", notFound(err)
	}
	return userID, nil
}

func (r *UserRepository) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := r.c.exec(ctx, `UPDATE password_resets SET used_at=$1 WHERE token=$2`, now(), token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func (r *UserRepository) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := r.c.exec(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=excluded.user_id, expires_at=excluded.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt.UTC().Truncate(time.Microsecond))
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (r *UserRepository) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := r.c.exec(ctx, `UPDATE refresh_sessions SET revoked_at=$1 WHERE token_hash=$2`, now(), tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// RevokeUserSessions revokes every live refresh session the user holds.
func (r *UserRepository) RevokeUserSessions(ctx context.Context, userID string) error {
	_, err := r.c.exec(ctx, `
		UPDATE refresh_sessions SET revoked_at=$1 WHERE user_id=$2 AND revoked_at IS NULL
	`, now(), userID)
	if err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}

func (r *UserRepository) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	u, err := scanUser(r.c.queryRow(ctx, `
		SELECT u.id, u.email, u.display_name, u.password_hash, u.role, u.is_email_verified, u.verification_token,
			u.verification_expires_at, u.created_at, u.updated_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > $2
	`, tokenHash, now()))
	if err != nil {
		return User{}, notFound(err)
	}
	return u, nil
}

func (r *UserRepository) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := r.c.exec(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp.UTC().Truncate(time.Microsecond))
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (r *UserRepository) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var n int
	err := r.c.queryRow(ctx, `SELECT COUNT(*) FROM revoked_access_tokens WHERE jti=$1`, jti).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}
