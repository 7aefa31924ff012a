package graph

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	graphql "github.com/graph-gophers/graphql-go"
	qerrors "github.com/graph-gophers/graphql-go/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"propie/api/internal/app"
	"propie/api/internal/audit"
	"propie/api/internal/auth"
	"propie/api/internal/telemetry"
)

//go:embed schema.graphql
var schemaSDL string

type Handler struct {
	schema  *graphql.Schema
	service *app.Service
	logger  *zap.Logger
}

func NewHandler(service *app.Service, logger *zap.Logger) (*Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	schema, err := graphql.ParseSchema(schemaSDL, &Resolver{service: service},
		graphql.MaxDepth(8),
		graphql.MaxParallelism(8),
	)
	if err != nil {
		return nil, err
	}
	return &Handler{schema: schema, service: service, logger: logger.Named("graphql")}, nil
}

type request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeErrors(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "GraphQL requests must use POST")
		return
	}
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		writeErrors(w, http.StatusBadRequest, "BAD_REQUEST", "Body must be a JSON object with a query")
		return
	}

	ctx := r.Context()
	session := app.Session{}
	if token := bearerToken(r); token != "" {
		var err error
		session, err = h.service.SessionFromToken(ctx, token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
				writeErrors(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Unauthorized")
				return
			}
			h.logger.Error("session lookup", zap.Error(err), zap.String("request_id", audit.RequestID(ctx)))
			writeErrors(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
			return
		}
	}

	operation := req.OperationName
	if operation == "" {
		operation = "anonymous"
	}
	ctx, span := telemetry.Tracer().Start(WithSession(ctx, session), "graphql "+operation)
	defer span.End()

	resp := h.schema.Exec(ctx, req.Query, req.OperationName, req.Variables)
	h.formatErrors(ctx, resp.Errors)
	if len(resp.Errors) > 0 {
		span.SetAttributes(attribute.Int("graphql.errors", len(resp.Errors)))
		span.SetStatus(codes.Error, resp.Errors[0].Message)
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// formatErrors rewrites resolver errors into client-facing messages with an
// extensions code. Unexpected errors are logged and, in production, masked.
func (h *Handler) formatErrors(ctx context.Context, errs []*qerrors.QueryError) {
	for _, qe := range errs {
		if qe.ResolverError == nil {
			continue
		}
		var own *Error
		if errors.As(qe.ResolverError, &own) {
			qe.Message = own.Message
			qe.Extensions = own.Extensions()
			continue
		}
		code, message, details, ok := app.DescribeError(qe.ResolverError)
		if !ok {
			h.logger.Error("resolver failed",
				zap.Error(qe.ResolverError),
				zap.Any("path", qe.Path),
				zap.String("request_id", audit.RequestID(ctx)),
			)
			code = "INTERNAL_SERVER_ERROR"
			message = qe.ResolverError.Error()
			if h.service.Production() {
				message = "Internal server error"
			}
		}
		qe.Message = message
		qe.Extensions = map[string]any{"code": code}
		if details != nil {
			qe.Extensions["details"] = details
		}
	}
}

func writeErrors(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"errors": []map[string]any{{
			"message":    message,
			"extensions": map[string]any{"code": code},
		}},
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
