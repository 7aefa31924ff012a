package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type AuditRepository struct {
	c conn
}

func (r *AuditRepository) Insert(ctx context.Context, e AuditEntry) error {
	metadata := "{}"
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		metadata = string(raw)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}
	_, err := r.c.exec(ctx, `
		INSERT INTO audit_log (id, actor_id, actor_name, action, resource_type, resource_id, outcome, severity,
			ip, user_agent, request_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, e.ID, e.ActorID, e.ActorName, e.Action, e.ResourceType, e.ResourceID, e.Outcome, e.Severity,
		e.IP, e.UserAgent, e.RequestID, metadata, e.CreatedAt.UTC().Truncate(time.Microsecond))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns audit entries newest first.
func (r *AuditRepository) List(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	var w where
	if filter.ActorID != "" {
		w.add("actor_id = ?", filter.ActorID)
	}
	if filter.ResourceType != "" {
		w.add("resource_type = ?", filter.ResourceType)
	}
	if filter.ResourceID != "" {
		w.add("resource_id = ?", filter.ResourceID)
	}
	if filter.Action != "" {
		w.add("action = ?", filter.Action)
	}
	if filter.Since != nil {
		w.add("created_at >= ?", filter.Since.UTC().Truncate(time.Microsecond))
	}
	limit, _ := limitOffset(filter.Limit, 0, 100)
	query := fmt.Sprintf(`
		SELECT id, actor_id, actor_name, action, resource_type, resource_id, outcome, severity,
			ip, user_agent, request_id, metadata, created_at
		FROM audit_log%s
		ORDER BY created_at DESC, id
		LIMIT %d`, w.sql(), limit)
	rows, err := r.c.query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	items := make([]AuditEntry, 0)
	for rows.Next() {
		var (
			e        AuditEntry
			metadata string
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorName, &e.Action, &e.ResourceType, &e.ResourceID, &e.Outcome, &e.Severity,
			&e.IP, &e.UserAgent, &e.RequestID, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Metadata = map[string]any{}
		_ = json.Unmarshal([]byte(metadata), &e.Metadata)
		e.CreatedAt = e.CreatedAt.UTC()
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return items, nil
}
