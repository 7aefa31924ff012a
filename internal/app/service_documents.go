package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"propie/api/internal/audit"
	"propie/api/internal/objectstore"
	"propie/api/internal/rbac"
	"propie/api/internal/store"
	"propie/api/internal/util"
)

var documentEntities = map[string]bool{
	"DEVELOPMENT": true,
	"UNIT":        true,
	"SALE":        true,
}

var documentTypes = map[string]bool{
	"CONTRACT":         true,
	"FLOOR_PLAN":       true,
	"BROCHURE":         true,
	"BCAR_CERTIFICATE": true,
	"HTB_CLAIM":        true,
	"ID_VERIFICATION":  true,
	"OTHER":            true,
}

var documentStatuses = map[string]bool{
	"UPLOADED":       true,
	"PENDING_REVIEW": true,
	"APPROVED":       true,
	"REJECTED":       true,
}

type UploadInput struct {
	EntityType  string
	EntityID    string
	Name        string
	Type        string
	ContentType string
	// Size is -1 when unknown.
	Size int64
	Body io.Reader
}

// countingWriter tallies bytes passing through an io.TeeReader.
type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

// documentKey is unique per upload, so a failed upload only ever removes its
// own object.
func documentKey(entityType, entityID string, version int, docID, name string) string {
	return fmt.Sprintf("documents/%s/%s/v%d/%s/%s", strings.ToLower(entityType), entityID, version, docID, name)
}

// cleanDocumentName keeps the last path element so names cannot escape the key prefix.
func cleanDocumentName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

// entityAccess checks the entity exists and the actor may see it.
func (s *Service) entityAccess(ctx context.Context, actor Session, entityType, entityID string) error {
	switch entityType {
	case "DEVELOPMENT":
		_, err := s.GetDevelopment(ctx, actor, entityID)
		return err
	case "UNIT":
		_, err := s.GetUnit(ctx, actor, entityID)
		return err
	case "SALE":
		_, err := s.GetSale(ctx, actor, entityID)
		return err
	}
	return validationError("Unknown entity type")
}

func (s *Service) UploadDocument(ctx context.Context, actor Session, in UploadInput) (store.Document, error) {
	if err := s.authorize(ctx, actor, rbac.ActionUploadDocuments); err != nil {
		return store.Document{}, err
	}
	in.EntityType = strings.ToUpper(strings.TrimSpace(in.EntityType))
	in.Type = strings.ToUpper(strings.TrimSpace(in.Type))
	if in.Type == "" {
		in.Type = "OTHER"
	}
	in.Name = cleanDocumentName(in.Name)

	errs := fieldErrors{}
	if !documentEntities[in.EntityType] {
		errs.add("entityType", "must be DEVELOPMENT, UNIT or SALE")
	}
	if strings.TrimSpace(in.EntityID) == "" {
		errs.add("entityId", "is required")
	}
	if in.Name == "" {
		errs.add("name", "is required")
	}
	if !documentTypes[in.Type] {
		errs.add("type", "is not a valid document type")
	}
	if in.Body == nil {
		errs.add("file", "is required")
	}
	if err := errs.err(); err != nil {
		return store.Document{}, err
	}
	if err := s.entityAccess(ctx, actor, in.EntityType, in.EntityID); err != nil {
		return store.Document{}, err
	}
	if in.ContentType == "" {
		in.ContentType = "application/octet-stream"
	}

	version, err := s.repo.Documents.NextVersion(ctx, in.EntityType, in.EntityID, in.Name)
	if err != nil {
		return store.Document{}, err
	}
	docID := util.NewID("doc")
	key := documentKey(in.EntityType, in.EntityID, version, docID, in.Name)
	hash := sha256.New()
	counter := &countingWriter{}
	body := io.TeeReader(in.Body, io.MultiWriter(hash, counter))
	if err := s.objects.Put(ctx, key, body, in.Size, in.ContentType); err != nil {
		return store.Document{}, fmt.Errorf("store document object: %w", err)
	}

	doc, err := s.repo.Documents.Create(ctx, store.Document{
		ID:          docID,
		EntityType:  in.EntityType,
		EntityID:    in.EntityID,
		Name:        in.Name,
		Type:        in.Type,
		Status:      "UPLOADED",
		ObjectKey:   key,
		ContentType: in.ContentType,
		SizeBytes:   counter.n,
		Checksum:    hex.EncodeToString(hash.Sum(nil)),
		Version:     version,
		UploadedBy:  actor.UserID,
	})
	if err != nil {
		if delErr := s.objects.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.logger.Warn("remove orphaned document object", zap.String("key", key), zap.Error(delErr))
		}
		if errors.Is(err, store.ErrConflict) {
			return store.Document{}, conflictError("DOCUMENT_VERSION_CONFLICT", "Another upload of this document finished first; retry")
		}
		return store.Document{}, err
	}
	return doc, nil
}

// GetDocument returns the document when its entity is visible to the actor.
func (s *Service) GetDocument(ctx context.Context, actor Session, id string) (store.Document, error) {
	doc, err := s.repo.Documents.Get(ctx, id)
	if err != nil {
		return store.Document{}, orNotFound(err, "Document not found")
	}
	if err := s.entityAccess(ctx, actor, doc.EntityType, doc.EntityID); err != nil {
		if IsDomainError(err) {
			return store.Document{}, notFoundError("Document not found")
		}
		return store.Document{}, err
	}
	return doc, nil
}

func (s *Service) ListDocuments(ctx context.Context, actor Session, filter store.DocumentFilter) ([]store.Document, error) {
	filter.EntityType = strings.ToUpper(strings.TrimSpace(filter.EntityType))
	errs := fieldErrors{}
	if !documentEntities[filter.EntityType] {
		errs.add("entityType", "must be DEVELOPMENT, UNIT or SALE")
	}
	if filter.EntityID == "" {
		errs.add("entityId", "is required")
	}
	if filter.Type != "" && !documentTypes[filter.Type] {
		errs.add("type", "is not a valid document type")
	}
	if filter.Status != "" && !documentStatuses[filter.Status] {
		errs.add("status", "is not a valid document status")
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	if err := s.entityAccess(ctx, actor, filter.EntityType, filter.EntityID); err != nil {
		return nil, err
	}
	return s.repo.Documents.List(ctx, filter)
}

func invalidDocumentState(doc store.Document, want string) *DomainError {
	return domainError(http.StatusConflict, "INVALID_DOCUMENT_STATE",
		fmt.Sprintf("Document is %s, expected %s", doc.Status, want), map[string]string{"status": doc.Status})
}

// SubmitForReview moves UPLOADED or REJECTED documents to PENDING_REVIEW.
func (s *Service) SubmitForReview(ctx context.Context, actor Session, id string) (store.Document, error) {
	doc, err := s.GetDocument(ctx, actor, id)
	if err != nil {
		return store.Document{}, err
	}
	if doc.UploadedBy != actor.UserID && !s.Can(actor.Role, rbac.ActionReviewDocuments) {
		s.denied(ctx, actor, "document_owner", "document", id)
		return store.Document{}, forbiddenError()
	}
	if doc.Status != "UPLOADED" && doc.Status != "REJECTED" {
		return store.Document{}, invalidDocumentState(doc, "UPLOADED or REJECTED")
	}
	return s.repo.Documents.SetStatus(ctx, id, "PENDING_REVIEW", "", "")
}

// ReviewDocument approves or rejects a PENDING_REVIEW document. Rejections need a note.
func (s *Service) ReviewDocument(ctx context.Context, actor Session, id string, approve bool, note string) (store.Document, error) {
	if err := s.authorize(ctx, actor, rbac.ActionReviewDocuments); err != nil {
		return store.Document{}, err
	}
	doc, err := s.GetDocument(ctx, actor, id)
	if err != nil {
		return store.Document{}, err
	}
	note = strings.TrimSpace(note)
	if !approve && note == "" {
		return store.Document{}, validationError("A note is required when rejecting a document")
	}
	if doc.Status != "PENDING_REVIEW" {
		return store.Document{}, invalidDocumentState(doc, "PENDING_REVIEW")
	}
	status := "APPROVED"
	if !approve {
		status = "REJECTED"
	}
	doc, err = s.repo.Documents.SetStatus(ctx, id, status, actor.UserID, note)
	if err != nil {
		return store.Document{}, orNotFound(err, "Document not found")
	}
	s.record(ctx, actor, audit.ActionDocumentReviewed, "document", id, map[string]any{
		"status":     status,
		"entityType": doc.EntityType,
		"entityId":   doc.EntityID,
		"version":    doc.Version,
	})
	return doc, nil
}

// DeleteDocument removes the object, then the row.
func (s *Service) DeleteDocument(ctx context.Context, actor Session, id string) error {
	doc, err := s.GetDocument(ctx, actor, id)
	if err != nil {
		return err
	}
	if doc.UploadedBy != actor.UserID && !s.Can(actor.Role, rbac.ActionReviewDocuments) {
		s.denied(ctx, actor, "document_owner", "document", id)
		return forbiddenError()
	}
	if err := s.objects.Delete(ctx, doc.ObjectKey); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
		return fmt.Errorf("delete document object: %w", err)
	}
	if err := s.repo.Documents.Delete(ctx, id); err != nil {
		return orNotFound(err, "Document not found")
	}
	s.record(ctx, actor, audit.ActionDocumentDeleted, "document", id, map[string]any{
		"name":       doc.Name,
		"version":    doc.Version,
		"entityType": doc.EntityType,
		"entityId":   doc.EntityID,
	})
	return nil
}

// DocumentURL presigns a time-limited download link.
func (s *Service) DocumentURL(ctx context.Context, actor Session, id string) (string, time.Time, error) {
	doc, err := s.GetDocument(ctx, actor, id)
	if err != nil {
		return "", time.Time{}, err
	}
	ttl := s.cfg.DocumentURLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	url, err := s.objects.PresignGet(ctx, doc.ObjectKey, ttl)
	if err != nil {
		return "", time.Time{}, err
	}
	return url, s.now().Add(ttl).UTC(), nil
}

// OpenDocument streams the stored object. The caller closes the reader.
func (s *Service) OpenDocument(ctx context.Context, actor Session, id string) (store.Document, io.ReadCloser, objectstore.ObjectInfo, error) {
	doc, err := s.GetDocument(ctx, actor, id)
	if err != nil {
		return store.Document{}, nil, objectstore.ObjectInfo{}, err
	}
	body, info, err := s.objects.Get(ctx, doc.ObjectKey)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return store.Document{}, nil, objectstore.ObjectInfo{}, notFoundError("Document content not found")
		}
		return store.Document{}, nil, objectstore.ObjectInfo{}, err
	}
	return doc, body, info, nil
}
