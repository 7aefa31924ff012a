package app

import (
	"context"

	"propie/api/internal/audit"
	"propie/api/internal/fingerprint"
	"propie/api/internal/rbac"
	"propie/api/internal/search"
	"propie/api/internal/store"
)

// evaluateFingerprint scores snapshot and audits MEDIUM and above.
func (s *Service) evaluateFingerprint(ctx context.Context, userID, userName string, snapshot fingerprint.Snapshot) (fingerprint.Assessment, error) {
	if snapshot.IP == "" {
		snapshot.IP, _ = audit.Client(ctx)
	}
	result, err := s.fingerprints.Evaluate(ctx, userID, snapshot)
	if err != nil {
		return fingerprint.Assessment{}, err
	}
	if result.Level == fingerprint.LevelLow {
		return result, nil
	}

	entry := store.AuditEntry{
		ActorID:      userID,
		ActorName:    userName,
		Action:       audit.ActionFingerprintRisk,
		ResourceType: "user",
		ResourceID:   userID,
		Severity:     audit.SeverityWarning,
		Metadata: map[string]any{
			"score":            result.Score,
			"level":            string(result.Level),
			"action":           string(result.Action),
			"similarity":       result.Similarity,
			"impossibleTravel": result.ImpossibleTravel,
			"ipChanged":        result.IPChanged,
			"reasons":          result.Reasons,
		},
	}
	switch result.Action {
	case fingerprint.ActionDeny:
		entry.Outcome = audit.OutcomeDenied
		entry.Severity = audit.SeverityCritical
	case fingerprint.ActionStepUp:
		entry.Outcome = audit.OutcomeDenied
	}
	s.audit.Record(ctx, entry)
	return result, nil
}

// CheckFingerprint re-scores a live session. STEP_UP revokes the access token
// so the client has to sign in again; DENY also revokes every refresh session.
func (s *Service) CheckFingerprint(ctx context.Context, actor Session, snapshot fingerprint.Snapshot) (fingerprint.Assessment, error) {
	result, err := s.evaluateFingerprint(ctx, actor.UserID, actor.UserName, snapshot)
	if err != nil {
		return fingerprint.Assessment{}, err
	}
	switch result.Action {
	case fingerprint.ActionDeny:
		if err := s.sessions.RevokeUserSessions(ctx, actor.UserID); err != nil {
			return fingerprint.Assessment{}, err
		}
		fallthrough
	case fingerprint.ActionStepUp:
		if actor.JTI != "" {
			if err := s.sessions.RevokeAccessToken(ctx, actor.JTI, actor.ExpiresAt); err != nil {
				return fingerprint.Assessment{}, err
			}
		}
	}
	return result, nil
}

func (s *Service) ListAudit(ctx context.Context, actor Session, filter store.AuditFilter) ([]store.AuditEntry, error) {
	if err := s.authorize(ctx, actor, rbac.ActionViewAudit); err != nil {
		return nil, err
	}
	return s.repo.Audit.List(ctx, filter)
}

// Search hides unpublished developments and their units from buyers and
// anonymous callers.
func (s *Service) Search(ctx context.Context, actor Session, q search.Query) search.Response {
	if !canSeeDrafts(actor) {
		q.PublishedOnly = true
	}
	return s.search.Search(ctx, q)
}

func (s *Service) Reindex(ctx context.Context) (search.ReindexCounts, error) {
	return s.search.Reindex(ctx)
}

func (s *Service) SearchHealthy() bool {
	return s.search.Healthy()
}
