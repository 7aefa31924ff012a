package app

import (
	"net/http"
	"strings"

	"propie/api/internal/store"
)

func (s *HTTPServer) handleDevelopments(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			s.listDevelopments(w, r, session)
		case http.MethodPost:
			var body DevelopmentInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			d, err := s.service.CreateDevelopment(r.Context(), session, body)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"development": developmentJSON(d)})
		default:
			methodNotAllowed(w)
		}
		return
	}

	if len(parts) == 4 && parts[2] == "slug" && r.Method == http.MethodGet {
		d, err := s.service.GetDevelopmentBySlug(r.Context(), session, parts[3])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"development": developmentJSON(d)})
		return
	}

	developmentID := parts[2]
	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			summary, err := s.service.DevelopmentSummary(r.Context(), session, developmentID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"development":    developmentJSON(summary.Development),
				"availableUnits": summary.AvailableUnits,
				"priceRange":     summary.PriceRange,
			})
		case http.MethodPut:
			var patch store.DevelopmentPatch
			if err := decodeBody(r, &patch); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			d, err := s.service.UpdateDevelopment(r.Context(), session, developmentID, patch)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"development": developmentJSON(d)})
		case http.MethodDelete:
			if err := s.service.DeleteDevelopment(r.Context(), session, developmentID); err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			methodNotAllowed(w)
		}
		return
	}

	if len(parts) == 4 && parts[3] == "statistics" && r.Method == http.MethodGet {
		stats, err := s.service.DevelopmentStatistics(r.Context(), session, developmentID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"statistics": stats})
		return
	}

	if len(parts) == 4 && parts[3] == "units" {
		switch r.Method {
		case http.MethodGet:
			s.listUnits(w, r, session, developmentID)
		case http.MethodPost:
			var body UnitInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			u, err := s.service.CreateUnit(r.Context(), session, developmentID, body)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"unit": unitJSON(u)})
		default:
			methodNotAllowed(w)
		}
		return
	}

	if len(parts) == 4 && parts[3] == "team" {
		switch r.Method {
		case http.MethodGet:
			team, err := s.service.ListTeam(r.Context(), session, developmentID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			members := make([]map[string]any, 0, len(team))
			for _, m := range team {
				members = append(members, teamMemberJSON(m))
			}
			writeJSON(w, http.StatusOK, map[string]any{"team": members})
		case http.MethodPost:
			var body struct {
				ProfessionalID string `json:"professionalId"`
				Role           string `json:"role"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			m, err := s.service.AppointToDevelopment(r.Context(), session, developmentID, body.ProfessionalID, body.Role)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"member": teamMemberJSON(m)})
		default:
			methodNotAllowed(w)
		}
		return
	}

	if len(parts) == 5 && parts[3] == "team" && r.Method == http.MethodPut {
		var body struct {
			Status string `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.UpdateTeamMemberStatus(r.Context(), session, developmentID, parts[4], body.Status); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	notFound(w)
}

func (s *HTTPServer) listDevelopments(w http.ResponseWriter, r *http.Request, session Session) {
	limit, offset, err := pagination(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	items, total, err := s.service.ListDevelopments(r.Context(), session, store.DevelopmentFilter{
		Status:        strings.ToUpper(q.Get("status")),
		County:        q.Get("county"),
		DeveloperID:   q.Get("developerId"),
		PublishedOnly: q.Get("published") == "true",
		Query:         q.Get("q"),
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"developments": developmentsJSON(items), "total": total})
}

func (s *HTTPServer) listUnits(w http.ResponseWriter, r *http.Request, session Session, developmentID string) {
	limit, offset, err := pagination(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	filter := store.UnitFilter{
		DevelopmentID: developmentID,
		Status:        strings.ToUpper(r.URL.Query().Get("status")),
		Type:          strings.ToUpper(r.URL.Query().Get("type")),
		Query:         r.URL.Query().Get("q"),
		Limit:         limit,
		Offset:        offset,
	}
	if filter.MinBedrooms, err = queryInt(r, "minBedrooms"); err != nil {
		s.fail(w, r, err)
		return
	}
	if filter.MaxBedrooms, err = queryInt(r, "maxBedrooms"); err != nil {
		s.fail(w, r, err)
		return
	}
	if filter.MinPrice, err = queryDecimal(r, "minPrice"); err != nil {
		s.fail(w, r, err)
		return
	}
	if filter.MaxPrice, err = queryDecimal(r, "maxPrice"); err != nil {
		s.fail(w, r, err)
		return
	}
	items, total, err := s.service.ListUnits(r.Context(), session, filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"units": unitsJSON(items), "total": total})
}

func (s *HTTPServer) handleUnits(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 && r.Method == http.MethodGet {
		s.listUnits(w, r, session, r.URL.Query().Get("developmentId"))
		return
	}

	if len(parts) == 4 && parts[2] == "bulk" && (r.Method == http.MethodPost || r.Method == http.MethodPut) {
		switch parts[3] {
		case "status":
			var body struct {
				UnitIDs []string `json:"unitIds"`
				Status  string   `json:"status"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			units, err := s.service.BulkUpdateStatus(r.Context(), session, body.UnitIDs, strings.ToUpper(body.Status))
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"units": unitsJSON(units), "updated": len(units)})
		case "price":
			var body struct {
				Updates []store.PriceUpdate `json:"updates"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			units, err := s.service.BulkUpdatePrice(r.Context(), session, body.Updates)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"units": unitsJSON(units), "updated": len(units)})
		default:
			notFound(w)
		}
		return
	}

	if len(parts) != 3 {
		notFound(w)
		return
	}
	unitID := parts[2]
	switch r.Method {
	case http.MethodGet:
		u, err := s.service.GetUnit(r.Context(), session, unitID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"unit": unitJSON(u)})
	case http.MethodPut:
		var patch store.UnitPatch
		if err := decodeBody(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		u, err := s.service.UpdateUnit(r.Context(), session, unitID, patch)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"unit": unitJSON(u)})
	case http.MethodDelete:
		if err := s.service.DeleteUnit(r.Context(), session, unitID); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		methodNotAllowed(w)
	}
}
