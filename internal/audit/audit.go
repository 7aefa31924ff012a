// Package audit records security-relevant actions to the audit log table and
// the structured log.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"propie/api/internal/store"
	"propie/api/internal/util"
)

const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFailure = "FAILURE"
	OutcomeDenied  = "DENIED"

	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityCritical = "CRITICAL"
)

const (
	ActionSignIn              = "AUTH_SIGN_IN"
	ActionSignOut             = "AUTH_SIGN_OUT"
	ActionAccessDenied        = "ACCESS_DENIED"
	ActionSaleCreated         = "SALE_CREATED"
	ActionSaleTransition      = "SALE_TRANSITION"
	ActionUnitBulkStatus      = "UNIT_BULK_STATUS"
	ActionUnitBulkPrice       = "UNIT_BULK_PRICE"
	ActionDocumentReviewed    = "DOCUMENT_REVIEWED"
	ActionDocumentDeleted     = "DOCUMENT_DELETED"
	ActionProfessionalStatus  = "PROFESSIONAL_STATUS"
	ActionFingerprintRisk     = "FINGERPRINT_RISK"
	ActionDevelopmentDeleted  = "DEVELOPMENT_DELETED"
	ActionPasswordResetFinish = "AUTH_PASSWORD_RESET"
)

type requestIDKey struct{}

// WithRequestID stores the HTTP request id for entries recorded under ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type clientKey struct{}

type client struct {
	ip        string
	userAgent string
}

// WithClient stores the caller's address and user agent for entries recorded under ctx.
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey{}, client{ip: ip, userAgent: userAgent})
}

// Client returns the address and user agent stored by WithClient.
func Client(ctx context.Context) (ip, userAgent string) {
	c, _ := ctx.Value(clientKey{}).(client)
	return c.ip, c.userAgent
}

// Sink persists entries; store.AuditRepository satisfies it.
type Sink interface {
	Insert(ctx context.Context, entry store.AuditEntry) error
}

type Recorder struct {
	sink   Sink
	logger *zap.Logger
	now    func() time.Time
}

func NewRecorder(sink Sink, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{sink: sink, logger: logger.Named("audit"), now: time.Now}
}

// Record fills id, timestamp and request id, then writes the entry. A storage
// failure is logged and swallowed so auditing never fails the caller.
func (r *Recorder) Record(ctx context.Context, entry store.AuditEntry) {
	if r == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = util.NewID("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	if entry.RequestID == "" {
		entry.RequestID = RequestID(ctx)
	}
	if entry.IP == "" && entry.UserAgent == "" {
		entry.IP, entry.UserAgent = Client(ctx)
	}
	if entry.Outcome == "" {
		entry.Outcome = OutcomeSuccess
	}
	if entry.Severity == "" {
		entry.Severity = SeverityInfo
	}

	fields := []zap.Field{
		zap.String("audit_id", entry.ID),
		zap.String("action", entry.Action),
		zap.String("actor_id", entry.ActorID),
		zap.String("resource_type", entry.ResourceType),
		zap.String("resource_id", entry.ResourceID),
		zap.String("outcome", entry.Outcome),
		zap.String("severity", entry.Severity),
		zap.String("request_id", entry.RequestID),
	}
	if len(entry.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", entry.Metadata))
	}
	switch entry.Severity {
	case SeverityCritical:
		r.logger.Error("audit", fields...)
	case SeverityWarning:
		r.logger.Warn("audit", fields...)
	default:
		r.logger.Info("audit", fields...)
	}

	if r.sink == nil {
		return
	}
	if err := r.sink.Insert(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Error("audit write failed", zap.String("audit_id", entry.ID), zap.Error(err))
	}
}
