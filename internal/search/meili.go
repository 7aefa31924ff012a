package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const (
	idxDevelopments = "propie_developments"
	idxUnits        = "propie_units"
)

var errUnhealthy = errors.New("meilisearch unhealthy")

// Meili implements search and indexing via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	logger  *zap.Logger
	healthy atomic.Bool
	done    chan struct{}
	closed  atomic.Bool
}

// NewMeili creates a Meilisearch client and configures indexes.
// The client is returned even when the first health check fails; the
// background monitor flips it to healthy once the server answers.
func NewMeili(url, apiKey string, logger *zap.Logger) *Meili {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		logger: logger.Named("search"),
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		m.logger.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop(10 * time.Second)
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxDevelopments,
			filterable: []string{"status", "county", "published"},
			searchable: []string{"name", "shortDescription", "city", "county"},
		},
		{
			uid:        idxUnits,
			filterable: []string{"developmentId", "status", "type", "bedrooms", "published"},
			searchable: []string{"name", "unitNumber", "developmentName", "type"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: "id",
		}); err != nil {
			m.logger.Debug("create index (may already exist)", zap.String("index", idx.uid), zap.Error(err))
		}

		index := m.client.Index(idx.uid)
		filterable := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterable[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			m.logger.Warn("update filterable attributes", zap.String("index", idx.uid), zap.Error(err))
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			m.logger.Warn("update searchable attributes", zap.String("index", idx.uid), zap.Error(err))
		}
	}
}

func (m *Meili) healthLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor. Safe to call twice.
func (m *Meili) Close() {
	if m.closed.CompareAndSwap(false, true) {
		close(m.done)
	}
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries both indexes (or the filtered one) and merges results.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, errUnhealthy
	}

	limit := int64(q.Limit)
	if limit <= 0 {
		limit = 20
	}

	targets := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxDevelopments, ResultDevelopment},
		{idxUnits, ResultUnit},
	}

	var queries []*meili.SearchRequest
	for _, target := range targets {
		if q.FilterType != "" && q.FilterType != target.rtyp {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              target.uid,
			Query:                 q.Text,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		}
		if filters := meiliFilters(q, target.rtyp); len(filters) > 0 {
			sr.Filter = filters
		}
		queries = append(queries, sr)
	}
	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}
	return results, total, nil
}

func meiliFilters(q Query, rtyp ResultType) []string {
	var filters []string
	if q.PublishedOnly {
		filters = append(filters, "published = true")
	}
	if q.DevelopmentID != "" {
		if rtyp == ResultUnit {
			filters = append(filters, fmt.Sprintf("developmentId = %q", q.DevelopmentID))
		} else {
			filters = append(filters, fmt.Sprintf("id = %q", q.DevelopmentID))
		}
	}
	return filters
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxDevelopments:
		return ResultDevelopment
	case idxUnits:
		return ResultUnit
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeString(hit, "id")
	r.Status = decodeString(hit, "status")

	switch rtyp {
	case ResultDevelopment:
		r.DevelopmentID = r.ID
		r.Slug = decodeString(hit, "slug")
		r.Title = firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "shortDescription"), decodeString(hit, "shortDescription"))
	case ResultUnit:
		r.DevelopmentID = decodeString(hit, "developmentId")
		r.Title = firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name"))
		r.Snippet = unitSnippet(decodeString(hit, "developmentName"), decodeString(hit, "type"), decodeNumber(hit, "bedrooms"))
		r.Price = firstNonBlank(decodeString(hit, "priceLabel"), formatPrice(decodeNumber(hit, "price")))
	}
	return r
}

func unitSnippet(developmentName, unitType string, bedrooms float64) string {
	parts := make([]string, 0, 3)
	if developmentName != "" {
		parts = append(parts, developmentName)
	}
	if unitType != "" {
		parts = append(parts, unitType)
	}
	if bedrooms > 0 {
		parts = append(parts, strconv.Itoa(int(bedrooms))+" bed")
	}
	return strings.Join(parts, " · ")
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeNumber(hit meili.Hit, key string) float64 {
	raw, ok := hit[key]
	if !ok {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	return 0
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexDevelopments adds or updates developments in the search index.
func (m *Meili) IndexDevelopments(records []DevelopmentRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxDevelopments).AddDocuments(records, nil)
	return err
}

// IndexUnits adds or updates units in the search index.
func (m *Meili) IndexUnits(records []UnitRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxUnits).AddDocuments(records, nil)
	return err
}

func (m *Meili) DeleteDevelopment(id string) error {
	_, err := m.client.Index(idxDevelopments).DeleteDocument(id, nil)
	return err
}

func (m *Meili) DeleteUnit(id string) error {
	_, err := m.client.Index(idxUnits).DeleteDocument(id, nil)
	return err
}
