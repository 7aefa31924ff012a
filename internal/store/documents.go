package store

import (
	"context"
	"fmt"
)

type DocumentRepository struct {
	c conn
}

const documentColumns = `id, entity_type, entity_id, name, type, status, object_key, content_type, size_bytes,
	checksum, version, uploaded_by, reviewed_by, review_note, created_at, updated_at`

func scanDocument(row scanner) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.EntityType, &d.EntityID, &d.Name, &d.Type, &d.Status, &d.ObjectKey, &d.ContentType, &d.SizeBytes,
		&d.Checksum, &d.Version, &d.UploadedBy, &d.ReviewedBy, &d.ReviewNote, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return d, nil
}

func (r *DocumentRepository) Create(ctx context.Context, d Document) (Document, error) {
	ts := now()
	d.CreatedAt, d.UpdatedAt = ts, ts
	_, err := r.c.exec(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, d.ID, d.EntityType, d.EntityID, d.Name, d.Type, d.Status, d.ObjectKey, d.ContentType, d.SizeBytes,
		d.Checksum, d.Version, d.UploadedBy, d.ReviewedBy, d.ReviewNote, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Document{}, fmt.Errorf("create document: %w", ErrConflict)
		}
		return Document{}, fmt.Errorf("create document: %w", err)
	}
	return d, nil
}

func (r *DocumentRepository) Get(ctx context.Context, id string) (Document, error) {
	d, err := scanDocument(r.c.queryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, id))
	if err != nil {
		return Document{}, notFound(err)
	}
	return d, nil
}

// List returns documents for the filter, newest version first within each name.
func (r *DocumentRepository) List(ctx context.Context, filter DocumentFilter) ([]Document, error) {
	var w where
	if filter.EntityType != "" {
		w.add("entity_type = ?", filter.EntityType)
	}
	if filter.EntityID != "" {
		w.add("entity_id = ?", filter.EntityID)
	}
	if filter.Type != "" {
		w.add("type = ?", filter.Type)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	rows, err := r.c.query(ctx, `SELECT `+documentColumns+` FROM documents`+w.sql()+` ORDER BY name, version DESC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

// NextVersion returns the version a new upload of name on the entity should take.
func (r *DocumentRepository) NextVersion(ctx context.Context, entityType, entityID, name string) (int, error) {
	var current int
	err := r.c.queryRow(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM documents
		WHERE entity_type=$1 AND entity_id=$2 AND name=$3
	`, entityType, entityID, name).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("next document version: %w", err)
	}
	return current + 1, nil
}

// SetStatus records a workflow change. Reviewer and note are stored as given.
func (r *DocumentRepository) SetStatus(ctx context.Context, id, status, reviewedBy, note string) (Document, error) {
	res, err := r.c.exec(ctx, `
		UPDATE documents SET status=$1, reviewed_by=$2, review_note=$3, updated_at=$4 WHERE id=$5
	`, status, reviewedBy, note, now(), id)
	if err != nil {
		return Document{}, fmt.Errorf("update document status: %w", err)
	}
	if err := affectedOne(res); err != nil {
		return Document{}, err
	}
	return r.Get(ctx, id)
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.c.exec(ctx, `DELETE FROM documents WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return affectedOne(res)
}
