package app

import (
	"net/http"
	"strconv"
	"strings"

	"propie/api/internal/export"
	"propie/api/internal/store"
)

func (s *HTTPServer) handleSales(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			filter, err := saleFilter(r)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			items, total, err := s.service.ListSales(r.Context(), session, filter)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"sales": salesJSON(items), "total": total})
		case http.MethodPost:
			var body SaleInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			sale, err := s.service.CreateSale(r.Context(), session, body)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"sale": saleJSON(sale)})
		default:
			methodNotAllowed(w)
		}
		return
	}

	if len(parts) == 3 && parts[2] == "summary" && r.Method == http.MethodGet {
		filter, err := saleFilter(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		summary, err := s.service.SalesSummary(r.Context(), session, filter)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"summary": summaryJSON(summary)})
		return
	}

	saleID := parts[2]
	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			sale, err := s.service.GetSale(r.Context(), session, saleID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"sale": saleJSON(sale)})
		case http.MethodPut:
			var patch store.SalePatch
			if err := decodeBody(r, &patch); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			sale, err := s.service.UpdateSale(r.Context(), session, saleID, patch)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"sale": saleJSON(sale)})
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
	case parts[3] == "status" && (r.Method == http.MethodPost || r.Method == http.MethodPut):
		var body struct {
			Status string `json:"status"`
			Note   string `json:"note"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		sale, err := s.service.TransitionSale(r.Context(), session, saleID, body.Status, body.Note)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sale": saleJSON(sale)})
	case parts[3] == "history" && r.Method == http.MethodGet:
		history, err := s.service.SaleHistory(r.Context(), session, saleID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": historyJSON(history)})
	case parts[3] == "notes" && r.Method == http.MethodPost:
		var body struct {
			Note string `json:"note"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		sale, err := s.service.AddSaleNote(r.Context(), session, saleID, body.Note)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sale": saleJSON(sale)})
	case parts[3] == "cancel" && r.Method == http.MethodPost:
		var body struct {
			Reason string `json:"reason"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		sale, err := s.service.CancelSale(r.Context(), session, saleID, body.Reason)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sale": saleJSON(sale)})
	case parts[3] == "export" && r.Method == http.MethodGet:
		format, err := export.ParseFormat(strings.ToLower(r.URL.Query().Get("format")))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		result, err := s.service.ExportSale(r.Context(), session, saleID, format)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
	default:
		notFound(w)
	}
}

func saleFilter(r *http.Request) (store.SaleFilter, error) {
	q := r.URL.Query()
	limit, offset, err := pagination(r)
	if err != nil {
		return store.SaleFilter{}, err
	}
	filter := store.SaleFilter{
		Status:        strings.ToUpper(q.Get("status")),
		BuyerID:       q.Get("buyerId"),
		AgentID:       q.Get("agentId"),
		UnitID:        q.Get("unitId"),
		DevelopmentID: q.Get("developmentId"),
		Limit:         limit,
		Offset:        offset,
	}
	if filter.MinPrice, err = queryDecimal(r, "minPrice"); err != nil {
		return store.SaleFilter{}, err
	}
	if filter.MaxPrice, err = queryDecimal(r, "maxPrice"); err != nil {
		return store.SaleFilter{}, err
	}
	return filter, nil
}
