package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"propie/api/internal/audit"
	"propie/api/internal/auth"
	"propie/api/internal/telemetry"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
	graphql    http.Handler
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger.Named("http")}
}

// MountGraphQL serves h at /graphql.
func (s *HTTPServer) MountGraphQL(h http.Handler) {
	s.graphql = h
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(telemetry.Middleware(http.HandlerFunc(s.handle)))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
			"search":   map[string]any{"status": "sql_fallback"},
		}
		if s.service.SearchHealthy() {
			checks["search"] = map[string]any{"status": "ok"}
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			message := err.Error()
			if s.service.Production() {
				s.logger.Error("readiness database ping", zap.Error(err))
				message = "database unavailable"
			}
			checks["database"] = map[string]any{
				"status": "error",
				"error":  message,
			}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.URL.Path == "/graphql" && s.graphql != nil {
		s.graphql.ServeHTTP(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/verify-email" {
		s.handleAuthVerifyEmail(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password/request" {
		s.handleAuthRequestReset(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password" {
		s.handleAuthResetPassword(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		s.handleSession(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		s.handleSessionRefresh(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		s.handleSessionLogout(w, r)
		return
	}

	// Professional registration is open to anyone.
	if r.Method == http.MethodPost && r.URL.Path == "/api/professionals" {
		s.handleRegisterProfessional(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	// Catalogue reads work without a session; drafts stay hidden then.
	if r.Method == http.MethodGet && (parts[1] == "developments" || parts[1] == "units" || parts[1] == "search") {
		session, ok := s.optionalSession(w, r)
		if !ok {
			return
		}
		switch parts[1] {
		case "developments":
			s.handleDevelopments(w, r, session, parts)
		case "units":
			s.handleUnits(w, r, session, parts)
		default:
			s.handleSearch(w, r, session)
		}
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch parts[1] {
	case "developments":
		s.handleDevelopments(w, r, session, parts)
	case "units":
		s.handleUnits(w, r, session, parts)
	case "documents":
		s.handleDocuments(w, r, session, parts)
	case "sales":
		s.handleSales(w, r, session, parts)
	case "professionals":
		s.handleProfessionals(w, r, session, parts)
	case "security":
		if len(parts) == 3 && parts[2] == "fingerprint" && r.Method == http.MethodPost {
			s.handleFingerprint(w, r, session)
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	case "audit":
		if len(parts) == 2 && r.Method == http.MethodGet {
			s.handleAudit(w, r, session)
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	return s.sessionFromToken(w, r, token)
}

// optionalSession returns an anonymous session when no token is sent. A bad
// token is still rejected.
func (s *HTTPServer) optionalSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		return Session{}, true
	}
	return s.sessionFromToken(w, r, token)
}

func (s *HTTPServer) sessionFromToken(w http.ResponseWriter, r *http.Request, token string) (Session, bool) {
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		s.logger.Error("session lookup", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

// fail maps err to a response. Unexpected errors are logged with the request id.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", audit.RequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := audit.WithRequestID(r.Context(), requestID)
		ctx = audit.WithClient(ctx, clientIP(r), r.UserAgent())
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Duration("duration", time.Since(started)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// clientIP prefers the first X-Forwarded-For hop.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, validationError(key + " must be a whole number")
	}
	return n, nil
}

func queryDecimal(r *http.Request, key string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, validationError(key + " must be a number")
	}
	return &d, nil
}

func queryTime(r *http.Request, key string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, validationError(key + " must be an RFC3339 timestamp")
	}
	return &t, nil
}

// pagination reads limit and offset from the query string.
func pagination(r *http.Request) (int, int, error) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return 0, 0, err
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}
