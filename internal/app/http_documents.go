package app

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"propie/api/internal/store"
)

const maxUploadBytes = 50 << 20

func (s *HTTPServer) handleDocuments(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			q := r.URL.Query()
			docs, err := s.service.ListDocuments(r.Context(), session, store.DocumentFilter{
				EntityType: q.Get("entityType"),
				EntityID:   q.Get("entityId"),
				Type:       strings.ToUpper(q.Get("type")),
				Status:     strings.ToUpper(q.Get("status")),
			})
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"documents": documentsJSON(docs)})
		case http.MethodPost:
			s.uploadDocument(w, r, session)
		default:
			methodNotAllowed(w)
		}
		return
	}

	documentID := parts[2]
	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			doc, err := s.service.GetDocument(r.Context(), session, documentID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"document": documentJSON(doc)})
		case http.MethodDelete:
			if err := s.service.DeleteDocument(r.Context(), session, documentID); err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			methodNotAllowed(w)
		}
		return
	}

	if len(parts) != 4 {
		notFound(w)
		return
	}
	switch {
	case parts[3] == "submit" && r.Method == http.MethodPost:
		doc, err := s.service.SubmitForReview(r.Context(), session, documentID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"document": documentJSON(doc)})
	case parts[3] == "review" && r.Method == http.MethodPost:
		var body struct {
			Decision string `json:"decision"`
			Note     string `json:"note"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		var approve bool
		switch strings.ToUpper(strings.TrimSpace(body.Decision)) {
		case "APPROVE", "APPROVED":
			approve = true
		case "REJECT", "REJECTED":
		default:
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "decision must be APPROVE or REJECT", nil)
			return
		}
		doc, err := s.service.ReviewDocument(r.Context(), session, documentID, approve, body.Note)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"document": documentJSON(doc)})
	case parts[3] == "url" && r.Method == http.MethodGet:
		url, expiresAt, err := s.service.DocumentURL(r.Context(), session, documentID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"url": url, "expiresAt": expiresAt.Format(time.RFC3339)})
	case parts[3] == "download" && r.Method == http.MethodGet:
		s.downloadDocument(w, r, session, documentID)
	default:
		notFound(w)
	}
}

func (s *HTTPServer) uploadDocument(w http.ResponseWriter, r *http.Request, session Session) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the 50 MB limit", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Expected a multipart form", nil)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", map[string]string{"file": "is required"})
		return
	}
	defer file.Close()

	name := r.FormValue("name")
	if strings.TrimSpace(name) == "" {
		name = header.Filename
	}
	doc, err := s.service.UploadDocument(r.Context(), session, UploadInput{
		EntityType:  r.FormValue("entityType"),
		EntityID:    r.FormValue("entityId"),
		Name:        name,
		Type:        r.FormValue("type"),
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"document": documentJSON(doc)})
}

func (s *HTTPServer) downloadDocument(w http.ResponseWriter, r *http.Request, session Session, documentID string) {
	doc, body, info, err := s.service.OpenDocument(r.Context(), session, documentID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer body.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = doc.ContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Name}))
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.Header().Set("X-Content-Checksum-SHA256", doc.Checksum)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		s.logger.Warn("stream document", zap.String("document_id", doc.ID), zap.Error(err))
	}
}
