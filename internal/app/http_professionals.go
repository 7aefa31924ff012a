package app

import (
	"net/http"
	"strings"

	"propie/api/internal/search"
	"propie/api/internal/store"
)

func (s *HTTPServer) handleRegisterProfessional(w http.ResponseWriter, r *http.Request) {
	var body ProfessionalInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	p, err := s.service.RegisterProfessional(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"professional": professionalJSON(p)})
}

func (s *HTTPServer) handleProfessionals(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 && r.Method == http.MethodGet {
		limit, offset, err := pagination(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		items, err := s.service.ListProfessionals(r.Context(), session, store.ProfessionalFilter{
			Profession: strings.ToUpper(r.URL.Query().Get("profession")),
			Status:     strings.ToUpper(r.URL.Query().Get("status")),
			Limit:      limit,
			Offset:     offset,
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"professionals": professionalsJSON(items)})
		return
	}

	if len(parts) == 3 && r.Method == http.MethodGet {
		p, err := s.service.GetProfessional(r.Context(), session, parts[2])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"professional": professionalJSON(p)})
		return
	}

	if len(parts) == 4 && r.Method == http.MethodPost {
		var (
			p   store.Professional
			err error
		)
		switch parts[3] {
		case "verify":
			p, err = s.service.VerifyProfessional(r.Context(), session, parts[2])
		case "reject":
			p, err = s.service.RejectProfessional(r.Context(), session, parts[2])
		case "suspend":
			p, err = s.service.SuspendProfessional(r.Context(), session, parts[2])
		default:
			notFound(w)
			return
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"professional": professionalJSON(p)})
		return
	}

	notFound(w)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	limit, offset, err := pagination(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	var filterType search.ResultType
	switch strings.ToLower(q.Get("type")) {
	case "":
	case "development", "developments":
		filterType = search.ResultDevelopment
	case "unit", "units":
		filterType = search.ResultUnit
	default:
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "type must be development or unit", nil)
		return
	}
	resp := s.service.Search(r.Context(), session, search.Query{
		Text:          q.Get("q"),
		FilterType:    filterType,
		DevelopmentID: q.Get("developmentId"),
		Limit:         limit,
		Offset:        offset,
	})
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleAudit(w http.ResponseWriter, r *http.Request, session Session) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	since, err := queryTime(r, "since")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	entries, err := s.service.ListAudit(r.Context(), session, store.AuditFilter{
		ActorID:      q.Get("actorId"),
		ResourceType: q.Get("resourceType"),
		ResourceID:   q.Get("resourceId"),
		Action:       q.Get("action"),
		Since:        since,
		Limit:        limit,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": auditJSON(entries)})
}
