package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"propie/api/internal/money"
	"propie/api/internal/store"
)

// ErrUnavailable is returned by Reindex when no healthy index is configured.
var ErrUnavailable = errors.New("search index unavailable")

// Service is the facade that tries Meilisearch first and falls back to SQL.
type Service struct {
	meili  *Meili
	repo   *store.Repository
	logger *zap.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, repo *store.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{meili: meili, repo: repo, logger: logger.Named("search")}
}

// Search tries Meilisearch if healthy, otherwise falls back to a SQL name match.
func (s *Service) Search(ctx context.Context, q Query) Response {
	q.Text = strings.TrimSpace(q.Text)
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to sql", zap.Error(err))
	}

	results, total, err := s.searchSQL(ctx, q)
	if err != nil {
		s.logger.Error("sql search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

func (s *Service) searchSQL(ctx context.Context, q Query) ([]Result, int, error) {
	if q.Text == "" || s.repo == nil {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	var (
		results []Result
		total   int
	)
	if q.FilterType == "" || q.FilterType == ResultDevelopment {
		developments, n, err := s.repo.Developments.List(ctx, store.DevelopmentFilter{
			Query:         q.Text,
			PublishedOnly: q.PublishedOnly,
			Limit:         limit,
			Offset:        q.Offset,
		})
		if err != nil {
			return nil, 0, err
		}
		for _, d := range developments {
			if q.DevelopmentID != "" && d.ID != q.DevelopmentID {
				n--
				continue
			}
			results = append(results, Result{
				Type:          ResultDevelopment,
				ID:            d.ID,
				Title:         d.Name,
				Snippet:       d.ShortDescription,
				DevelopmentID: d.ID,
				Slug:          d.Slug,
				Status:        d.Status,
			})
		}
		total += n
	}

	if q.FilterType == "" || q.FilterType == ResultUnit {
		units, n, err := s.repo.Units.List(ctx, store.UnitFilter{
			DevelopmentID: q.DevelopmentID,
			Query:         q.Text,
			PublishedOnly: q.PublishedOnly,
			Limit:         limit,
			Offset:        q.Offset,
		})
		if err != nil {
			return nil, 0, err
		}
		developments := map[string]store.Development{}
		for _, u := range units {
			d, ok := developments[u.DevelopmentID]
			if !ok {
				d, err = s.repo.Developments.Get(ctx, u.DevelopmentID)
				if err != nil {
					return nil, 0, fmt.Errorf("load development %s: %w", u.DevelopmentID, err)
				}
				developments[u.DevelopmentID] = d
			}
			results = append(results, Result{
				Type:          ResultUnit,
				ID:            u.ID,
				Title:         unitTitle(u.Name, u.UnitNumber),
				Snippet:       unitSnippet(d.Name, u.Type, float64(u.Bedrooms)),
				DevelopmentID: u.DevelopmentID,
				Status:        u.Status,
				Price:         money.FormatEUR(u.BasePrice),
			})
		}
		total += n
	}
	return results, total, nil
}

func (s *Service) available() bool {
	return s.meili != nil && s.meili.Healthy()
}

// IndexDevelopment indexes a development (fire-and-forget to Meilisearch).
func (s *Service) IndexDevelopment(d store.Development) {
	if !s.available() {
		return
	}
	record := DevelopmentRecordFrom(d)
	go func() {
		if err := s.meili.IndexDevelopments([]DevelopmentRecord{record}); err != nil {
			s.logger.Warn("index development", zap.String("id", record.ID), zap.Error(err))
		}
	}()
}

// IndexUnits indexes units of one development (fire-and-forget to Meilisearch).
func (s *Service) IndexUnits(d store.Development, units ...store.Unit) {
	if !s.available() || len(units) == 0 {
		return
	}
	records := make([]UnitRecord, 0, len(units))
	for _, u := range units {
		records = append(records, UnitRecordFrom(u, d))
	}
	go func() {
		if err := s.meili.IndexUnits(records); err != nil {
			s.logger.Warn("index units", zap.Int("count", len(records)), zap.Error(err))
		}
	}()
}

// DeleteDevelopment removes a development from the search index (fire-and-forget).
func (s *Service) DeleteDevelopment(id string) {
	if !s.available() {
		return
	}
	go func() {
		if err := s.meili.DeleteDevelopment(id); err != nil {
			s.logger.Warn("delete development", zap.String("id", id), zap.Error(err))
		}
	}()
}

// DeleteUnit removes a unit from the search index (fire-and-forget).
func (s *Service) DeleteUnit(id string) {
	if !s.available() {
		return
	}
	go func() {
		if err := s.meili.DeleteUnit(id); err != nil {
			s.logger.Warn("delete unit", zap.String("id", id), zap.Error(err))
		}
	}()
}

// ReindexCounts reports how many records a reindex pushed.
type ReindexCounts struct {
	Developments int `json:"developments"`
	Units        int `json:"units"`
}

func (c ReindexCounts) String() string {
	return strconv.Itoa(c.Developments) + " developments, " + strconv.Itoa(c.Units) + " units"
}

// Reindex reloads every development and unit from the repository and pushes
// them to Meilisearch. Loading and pushing each run concurrently.
func (s *Service) Reindex(ctx context.Context) (ReindexCounts, error) {
	if !s.available() {
		return ReindexCounts{}, ErrUnavailable
	}

	var (
		developments []store.Development
		units        []store.Unit
	)
	load, loadCtx := errgroup.WithContext(ctx)
	load.Go(func() error {
		var err error
		developments, err = s.repo.Developments.All(loadCtx)
		return err
	})
	load.Go(func() error {
		var err error
		units, err = s.repo.Units.All(loadCtx)
		return err
	})
	if err := load.Wait(); err != nil {
		return ReindexCounts{}, fmt.Errorf("reindex load: %w", err)
	}

	byID := make(map[string]store.Development, len(developments))
	developmentRecords := make([]DevelopmentRecord, 0, len(developments))
	for _, d := range developments {
		byID[d.ID] = d
		developmentRecords = append(developmentRecords, DevelopmentRecordFrom(d))
	}
	unitRecords := make([]UnitRecord, 0, len(units))
	for _, u := range units {
		unitRecords = append(unitRecords, UnitRecordFrom(u, byID[u.DevelopmentID]))
	}

	var push errgroup.Group
	push.Go(func() error { return s.meili.IndexDevelopments(developmentRecords) })
	push.Go(func() error { return s.meili.IndexUnits(unitRecords) })
	if err := push.Wait(); err != nil {
		return ReindexCounts{}, fmt.Errorf("reindex push: %w", err)
	}

	counts := ReindexCounts{Developments: len(developmentRecords), Units: len(unitRecords)}
	s.logger.Info("reindex complete", zap.Int("developments", counts.Developments), zap.Int("units", counts.Units))
	return counts, nil
}

// Healthy reports whether the Meilisearch index is serving queries.
func (s *Service) Healthy() bool {
	return s.available()
}

// Close stops the Meilisearch health monitor.
func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
