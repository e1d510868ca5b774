package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"ventas/backend/internal/catalog"
	"ventas/backend/internal/domain"
	"ventas/backend/internal/logging"
	"ventas/backend/internal/saleform"
	"ventas/backend/internal/service"
	"ventas/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	logger        *logrus.Logger
	validate      *validator.Validate
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *logrus.Logger) *API {
	if logger == nil {
		logger = logging.Discard()
	}
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		logger:        logger,
		validate:      validator.New(),
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for an hour bucket.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	bucket := time.Now().UTC().Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken accepts the current and the previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	currentBucket := time.Now().UTC().Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(currentBucket))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(prevBucket)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

var allRoles = []string{domain.RoleSupervisor, domain.RoleCollector}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("POST /api/v1/sales/sessions", a.requireAuth(a.handleSessionOpen, allRoles...))
	mux.HandleFunc("GET /api/v1/sales/sessions/{id}", a.requireAuth(a.handleSessionGet, allRoles...))
	mux.HandleFunc("DELETE /api/v1/sales/sessions/{id}", a.requireAuth(a.handleSessionClose, allRoles...))
	mux.HandleFunc("POST /api/v1/sales/sessions/{id}/reopen", a.requireAuth(a.handleSessionReopen, allRoles...))
	mux.HandleFunc("POST /api/v1/sales/sessions/{id}/header", a.requireAuth(a.handleHeader, allRoles...))
	mux.HandleFunc("POST /api/v1/sales/sessions/{id}/lines", a.requireAuth(a.handleLineAdd, allRoles...))
	mux.HandleFunc("PATCH /api/v1/sales/sessions/{id}/lines/{idx}", a.requireAuth(a.handleLineUpdate, allRoles...))
	mux.HandleFunc("DELETE /api/v1/sales/sessions/{id}/lines/{idx}", a.requireAuth(a.handleLineRemove, allRoles...))
	mux.HandleFunc("GET /api/v1/sales/sessions/{id}/suggestions", a.requireAuth(a.handleSuggestions, allRoles...))
	mux.HandleFunc("POST /api/v1/sales/sessions/{id}/payments", a.requireAuth(a.handlePaymentAdd, allRoles...))
	mux.HandleFunc("PATCH /api/v1/sales/sessions/{id}/payments/{idx}", a.requireAuth(a.handlePaymentUpdate, allRoles...))
	mux.HandleFunc("DELETE /api/v1/sales/sessions/{id}/payments/{idx}", a.requireAuth(a.handlePaymentRemove, allRoles...))
	mux.HandleFunc("POST /api/v1/sales/sessions/{id}/save", a.requireAuth(a.handleSave, allRoles...))

	mux.HandleFunc("POST /api/v1/batches/open", a.requireAuth(a.handleBatchOpen, allRoles...))
	mux.HandleFunc("POST /api/v1/batches/close", a.requireAuth(a.handleBatchClose, allRoles...))
	mux.HandleFunc("GET /api/v1/batches/open", a.requireAuth(a.handleBatchActive, allRoles...))
	mux.HandleFunc("GET /api/v1/batches/{id}/summary", a.requireAuth(a.handleBatchSummary, allRoles...))

	mux.HandleFunc("GET /api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, domain.RoleSupervisor))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			a.writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := a.decodeValid(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) || errors.Is(err, errInactiveAccount) {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless token for the X-CSRF-Token header.
func (a *API) handleCSRFToken(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF enforces the token on state-changing methods.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		a.writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handleSessionOpen(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.OpenSession(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.Summary(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	if err := a.service.CloseSession(r.Context(), r.PathValue("id")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"closed": true})
}

func (a *API) handleSessionReopen(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ReopenSession(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// editSession looks up the session, runs fn and answers with the fresh summary.
func (a *API) editSession(w http.ResponseWriter, r *http.Request, fn func(s *saleform.Session) error) {
	id := r.PathValue("id")
	session, err := a.service.Session(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if err := fn(session); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, service.SessionResponse{ID: id, View: session.Summary(r.Context())})
}

func (a *API) handleHeader(w http.ResponseWriter, r *http.Request) {
	var req domain.HeaderRequest
	if err := a.decodeValid(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	a.editSession(w, r, func(s *saleform.Session) error {
		return s.SelectHeader(r.Context(), saleform.HeaderChange{
			CustomerID:     req.CustomerID,
			UserID:         req.UserID,
			DocumentTypeID: req.DocumentTypeID,
		})
	})
}

func (a *API) handleLineAdd(w http.ResponseWriter, r *http.Request) {
	a.editSession(w, r, func(s *saleform.Session) error {
		_, err := s.AddLine()
		return err
	})
}

func (a *API) handleLineUpdate(w http.ResponseWriter, r *http.Request) {
	idx, err := pathIndex(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req domain.LineRequest
	if err := a.decodeValid(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	a.editSession(w, r, func(s *saleform.Session) error {
		if req.SearchText != nil {
			if err := s.SetSearchText(idx, *req.SearchText); err != nil {
				return err
			}
		}
		if req.ArticleID != nil {
			if err := s.SelectArticle(idx, *req.ArticleID); err != nil {
				return err
			}
		}
		if req.Quantity != nil {
			if err := s.SetQuantity(idx, *req.Quantity); err != nil {
				return err
			}
		}
		if req.UnitPrice != nil {
			return s.SetUnitPrice(idx, *req.UnitPrice)
		}
		return nil
	})
}

func (a *API) handleLineRemove(w http.ResponseWriter, r *http.Request) {
	idx, err := pathIndex(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	a.editSession(w, r, func(s *saleform.Session) error { return s.RemoveLine(idx) })
}

func (a *API) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	session, err := a.service.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	articles, err := session.Suggestions(r.URL.Query().Get("q"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if articles == nil {
		articles = []domain.Article{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"articles": articles})
}

func (a *API) handlePaymentAdd(w http.ResponseWriter, r *http.Request) {
	a.editSession(w, r, func(s *saleform.Session) error {
		_, err := s.AddEntry()
		return err
	})
}

func (a *API) handlePaymentUpdate(w http.ResponseWriter, r *http.Request) {
	idx, err := pathIndex(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req domain.PaymentRequest
	if err := a.decodeValid(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	a.editSession(w, r, func(s *saleform.Session) error {
		if req.AccountID != nil {
			if err := s.SelectAccount(idx, *req.AccountID); err != nil {
				return err
			}
		}
		if req.Amount != nil {
			return s.SetAmount(idx, *req.Amount)
		}
		return nil
	})
}

func (a *API) handlePaymentRemove(w http.ResponseWriter, r *http.Request) {
	idx, err := pathIndex(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	a.editSession(w, r, func(s *saleform.Session) error { return s.RemoveEntry(idx) })
}

func (a *API) handleSave(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.SaveSession(r.Context(), r.PathValue("id"))
	if err == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	var cerr *saleform.CommitError
	if errors.As(err, &cerr) {
		// The message is meant for the form header, so it is not sanitized.
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   cerr.Message,
			"code":    "commit_failed",
			"report":  cerr.Report,
			"session": resp,
		})
		return
	}
	a.writeServiceError(w, err)
}

func (a *API) handleBatchOpen(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchOpenRequest
	if err := a.decodeValid(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	batch, err := a.service.OpenBatch(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}

func (a *API) handleBatchClose(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchCloseRequest
	if err := a.decodeValid(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	batch, err := a.service.CloseBatch(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (a *API) handleBatchActive(w http.ResponseWriter, r *http.Request) {
	batch, err := a.service.GetOpenBatch(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (a *API) handleBatchSummary(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		a.writeError(w, http.StatusBadRequest, errors.New("invalid batch id"))
		return
	}
	summary, err := a.service.BatchSummary(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), r.URL.Query().Get("date"), limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(startedAt).String(),
		}).Info("request")
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

// decodeValid decodes a JSON body strictly and runs its validate tags. An
// empty body decodes to the zero value.
func (a *API) decodeValid(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return a.validate.Struct(dest)
}

func pathIndex(r *http.Request) (int, error) {
	idx, err := strconv.Atoi(r.PathValue("idx"))
	if err != nil || idx < 0 {
		return 0, errors.New("invalid index")
	}
	return idx, nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// statusFor maps service and form errors to an HTTP status and error code.
func statusFor(err error) (int, string) {
	var verr *saleform.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, verr.Code()
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, service.ErrForbidden), errors.Is(err, saleform.ErrUserLocked):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, saleform.ErrCommitInProgress):
		return http.StatusConflict, "commit_in_progress"
	case errors.Is(err, saleform.ErrNotReady):
		return http.StatusConflict, "not_ready"
	case errors.Is(err, store.ErrBatchOpen):
		return http.StatusConflict, "batch_open"
	case errors.Is(err, catalog.ErrLoad):
		return http.StatusServiceUnavailable, "load_failed"
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, store.ErrInvalidRecord),
		errors.Is(err, saleform.ErrIndexOutOfRange),
		errors.Is(err, saleform.ErrLastLine),
		errors.Is(err, saleform.ErrLastEntry),
		errors.Is(err, saleform.ErrUnknownArticle),
		errors.Is(err, saleform.ErrUnknownAccount),
		errors.Is(err, saleform.ErrUnknownCustomer),
		errors.Is(err, saleform.ErrUnknownUser),
		errors.Is(err, saleform.ErrUnknownDocType):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	a.writeErrorCode(w, status, code, err)
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	a.writeErrorCode(w, status, "", err)
}

// 5xx bodies carry a generic message; the cause is only logged.
func (a *API) writeErrorCode(w http.ResponseWriter, status int, code string, err error) {
	msg := err.Error()
	if status >= 500 {
		logging.LogError(a.logger, "httpapi", "writeError", http.StatusText(status), status, err)
		msg = "internal server error"
		if status == http.StatusServiceUnavailable {
			msg = "service unavailable"
		}
	}
	body := map[string]any{"error": msg}
	if code != "" {
		body["code"] = code
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
