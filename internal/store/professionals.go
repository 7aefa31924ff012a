package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type ProfessionalRepository struct {
	c conn
}

const professionalColumns = `id, name, email, phone, profession, organisation, registration_number, status,
	verified_by, verified_at, created_at, updated_at`

func scanProfessional(row scanner) (Professional, error) {
	var (
		p          Professional
		verifiedAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.Profession, &p.Organisation, &p.RegistrationNumber, &p.Status,
		&p.VerifiedBy, &verifiedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Professional{}, err
	}
	p.VerifiedAt = nullTime(verifiedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (r *ProfessionalRepository) Create(ctx context.Context, p Professional) (Professional, error) {
	ts := now()
	p.CreatedAt, p.UpdatedAt = ts, ts
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	_, err := r.c.exec(ctx, `
		INSERT INTO professionals (`+professionalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.Name, p.Email, p.Phone, p.Profession, p.Organisation, p.RegistrationNumber, p.Status,
		p.VerifiedBy, p.VerifiedAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Professional{}, fmt.Errorf("register professional: %w", ErrConflict)
		}
		return Professional{}, fmt.Errorf("register professional: %w", err)
	}
	return p, nil
}

func (r *ProfessionalRepository) Get(ctx context.Context, id string) (Professional, error) {
	p, err := scanProfessional(r.c.queryRow(ctx, `SELECT `+professionalColumns+` FROM professionals WHERE id=$1`, id))
	if err != nil {
		return Professional{}, notFound(err)
	}
	return p, nil
}

func (r *ProfessionalRepository) List(ctx context.Context, filter ProfessionalFilter) ([]Professional, error) {
	var w where
	if filter.Profession != "" {
		w.add("profession = ?", filter.Profession)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	limit, offset := limitOffset(filter.Limit, filter.Offset, 100)
	query := fmt.Sprintf(`SELECT %s FROM professionals%s ORDER BY name, id LIMIT %d OFFSET %d`, professionalColumns, w.sql(), limit, offset)
	rows, err := r.c.query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list professionals: %w", err)
	}
	defer rows.Close()

	items := make([]Professional, 0)
	for rows.Next() {
		p, err := scanProfessional(rows)
		if err != nil {
			return nil, fmt.Errorf("scan professional: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate professionals: %w", err)
	}
	return items, nil
}

// SetStatus records a verification decision. VERIFIED stamps verifier and time.
func (r *ProfessionalRepository) SetStatus(ctx context.Context, id, status, actorID string) (Professional, error) {
	ts := now()
	var a assignments
	a.set("status", status)
	if status == "VERIFIED" {
		a.set("verified_by", actorID)
		a.set("verified_at", ts)
	}
	a.set("updated_at", ts)

	query, args := a.update("professionals", id)
	res, err := r.c.exec(ctx, query, args...)
	if err != nil {
		return Professional{}, fmt.Errorf("update professional status: %w", err)
	}
	if err := affectedOne(res); err != nil {
		return Professional{}, err
	}
	return r.Get(ctx, id)
}

func (r *ProfessionalRepository) Appoint(ctx context.Context, m TeamMember) (TeamMember, error) {
	if m.AppointedAt.IsZero() {
		m.AppointedAt = now()
	}
	_, err := r.c.exec(ctx, `
		INSERT INTO development_team (development_id, professional_id, role, status, appointed_by, appointed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.DevelopmentID, m.ProfessionalID, m.Role, m.Status, m.AppointedBy, m.AppointedAt.UTC().Truncate(time.Microsecond))
	if err != nil {
		if isUniqueViolation(err) {
			return TeamMember{}, fmt.Errorf("appoint professional: %w", ErrConflict)
		}
		return TeamMember{}, fmt.Errorf("appoint professional: %w", err)
	}
	return m, nil
}

// Team lists the development's appointments with each professional's record.
func (r *ProfessionalRepository) Team(ctx context.Context, developmentID string) ([]TeamMember, error) {
	rows, err := r.c.query(ctx, `
		SELECT t.development_id, t.professional_id, t.role, t.status, t.appointed_by, t.appointed_at,
			p.id, p.name, p.email, p.phone, p.profession, p.organisation, p.registration_number, p.status,
			p.verified_by, p.verified_at, p.created_at, p.updated_at
		FROM development_team t
		JOIN professionals p ON p.id = t.professional_id
		WHERE t.development_id=$1
		ORDER BY t.appointed_at, p.name
	`, developmentID)
	if err != nil {
		return nil, fmt.Errorf("list team: %w", err)
	}
	defer rows.Close()

	items := make([]TeamMember, 0)
	for rows.Next() {
		var (
			m          TeamMember
			p          Professional
			verifiedAt sql.NullTime
		)
		if err := rows.Scan(&m.DevelopmentID, &m.ProfessionalID, &m.Role, &m.Status, &m.AppointedBy, &m.AppointedAt,
			&p.ID, &p.Name, &p.Email, &p.Phone, &p.Profession, &p.Organisation, &p.RegistrationNumber, &p.Status,
			&p.VerifiedBy, &verifiedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		p.VerifiedAt = nullTime(verifiedAt)
		m.AppointedAt = m.AppointedAt.UTC()
		m.Professional = p
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team: %w", err)
	}
	return items, nil
}

func (r *ProfessionalRepository) SetTeamStatus(ctx context.Context, developmentID, professionalID, status string) error {
	res, err := r.c.exec(ctx, `
		UPDATE development_team SET status=$1 WHERE development_id=$2 AND professional_id=$3
	`, status, developmentID, professionalID)
	if err != nil {
		return fmt.Errorf("update team member: %w", err)
	}
	return affectedOne(res)
}
