package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"propie/api/internal/audit"
	"propie/api/internal/authpw"
	"propie/api/internal/config"
	"propie/api/internal/email"
	"propie/api/internal/export"
	"propie/api/internal/fingerprint"
	"propie/api/internal/objectstore"
	"propie/api/internal/rbac"
	"propie/api/internal/search"
	"propie/api/internal/session"
	"propie/api/internal/store"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

func (s Session) isAdmin() bool {
	return rbac.Normalize(s.Role) == rbac.RoleAdmin
}

// Deps wires a Service. Only Config and Repo are required; the rest fall back
// to SQL-backed sessions, in-memory baselines and blobs, SQL search and a
// disabled mailer.
type Deps struct {
	Config       config.Config
	Repo         *store.Repository
	Sessions     session.Store
	Fingerprints *fingerprint.Service
	Objects      objectstore.Store
	Search       *search.Service
	Email        *email.Service
	Export       *export.Service
	Audit        *audit.Recorder
	Logger       *zap.Logger
	PasswordCost int
}

type Service struct {
	cfg          config.Config
	repo         *store.Repository
	sessions     session.Store
	passwords    *authpw.Service
	fingerprints *fingerprint.Service
	objects      objectstore.Store
	search       *search.Service
	email        *email.Service
	export       *export.Service
	audit        *audit.Recorder
	logger       *zap.Logger
	now          func() time.Time
}

func New(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		cfg:          deps.Config,
		repo:         deps.Repo,
		sessions:     deps.Sessions,
		passwords:    authpw.NewService(deps.Repo.Users, deps.PasswordCost),
		fingerprints: deps.Fingerprints,
		objects:      deps.Objects,
		search:       deps.Search,
		email:        deps.Email,
		export:       deps.Export,
		audit:        deps.Audit,
		logger:       logger,
		now:          time.Now,
	}
	if s.sessions == nil {
		s.sessions = deps.Repo.Users
	}
	if s.fingerprints == nil {
		s.fingerprints = fingerprint.NewService(fingerprint.NewMemoryBaselines())
	}
	if s.objects == nil {
		s.objects = objectstore.NewMemory()
	}
	if s.search == nil {
		s.search = search.NewService(nil, deps.Repo, logger)
	}
	if s.email == nil {
		s.email = email.NewService(email.Config{}, logger)
	}
	if s.export == nil {
		s.export = export.NewService(export.RepositoryStore(deps.Repo))
	}
	if s.audit == nil {
		s.audit = audit.NewRecorder(deps.Repo.Audit, logger)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// Production reports whether internal error details must be hidden.
func (s *Service) Production() bool {
	return s.cfg.Production()
}

func (s *Service) EmailConfigured() bool {
	return s.email.IsConfigured()
}

// authorize checks the actor's role and audits denials.
func (s *Service) authorize(ctx context.Context, actor Session, action rbac.Action) error {
	if s.Can(actor.Role, action) {
		return nil
	}
	s.denied(ctx, actor, string(action), "", "")
	return forbiddenError()
}

func (s *Service) denied(ctx context.Context, actor Session, required, resourceType, resourceID string) {
	s.audit.Record(ctx, store.AuditEntry{
		ActorID:      actor.UserID,
		ActorName:    actor.UserName,
		Action:       audit.ActionAccessDenied,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Outcome:      audit.OutcomeDenied,
		Severity:     audit.SeverityWarning,
		Metadata:     map[string]any{"role": actor.Role, "required": required},
	})
}

func (s *Service) record(ctx context.Context, actor Session, action, resourceType, resourceID string, metadata map[string]any) {
	s.audit.Record(ctx, store.AuditEntry{
		ActorID:      actor.UserID,
		ActorName:    actor.UserName,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
	})
}

// canSeeDrafts reports whether the actor may read unpublished developments.
func canSeeDrafts(actor Session) bool {
	switch rbac.Normalize(actor.Role) {
	case rbac.RoleAgent, rbac.RoleSolicitor, rbac.RoleDeveloper, rbac.RoleAdmin:
		return actor.UserID != ""
	}
	return false
}

// ownsDevelopment reports whether the actor may change d.
func ownsDevelopment(actor Session, d store.Development) bool {
	return actor.isAdmin() || (actor.UserID != "" && d.DeveloperID == actor.UserID)
}

// Close releases background resources.
func (s *Service) Close() {
	s.search.Close()
}
