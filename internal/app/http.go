package app

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"manuscripts/api/internal/logging"
	"manuscripts/api/internal/manuscript"
	"manuscripts/api/internal/search"
	"manuscripts/api/internal/util"
)

const maxBodyBytes = 32 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
	apiToken   string
	logger     *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin, apiToken string, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, apiToken: apiToken, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
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
		s.handleReady(w, r)
		return
	}

	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", nil)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/compare" {
		var body struct {
			Original   *manuscript.Snapshot `json:"original"`
			Comparison *manuscript.Snapshot `json:"comparison"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidBody, err.Error(), nil)
			return
		}
		if body.Original == nil || body.Comparison == nil {
			writeError(w, http.StatusUnprocessableEntity, CodeValidation, "original and comparison are required", nil)
			return
		}
		result, err := s.service.CompareInline(r.Context(), *body.Original, *body.Comparison)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		query := search.Query{
			Text:       strings.TrimSpace(r.URL.Query().Get("q")),
			DocumentID: strings.TrimSpace(r.URL.Query().Get("documentId")),
			Limit:      queryInt(r, "limit", 20),
			Offset:     queryInt(r, "offset", 0),
		}
		writeJSON(w, http.StatusOK, s.service.Search(r.Context(), query))
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 4 && parts[0] == "api" && parts[1] == "documents" {
		s.handleDocuments(w, r, parts[2], parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, err := range s.service.Checks(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// handleDocuments serves /api/documents/{documentID}/{rest...}.
func (s *HTTPServer) handleDocuments(w http.ResponseWriter, r *http.Request, documentID string, rest []string) {
	switch {
	case len(rest) == 1 && rest[0] == "snapshots" && r.Method == http.MethodGet:
		items, err := s.service.ListSnapshots(r.Context(), documentID)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"snapshots": items})

	case len(rest) == 1 && rest[0] == "snapshots" && r.Method == http.MethodPost:
		var body SaveSnapshotInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidBody, err.Error(), nil)
			return
		}
		if body.Author == "" {
			body.Author = actor(r)
		}
		record, err := s.service.SaveSnapshot(r.Context(), documentID, body)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"snapshot": record})

	case len(rest) == 2 && rest[0] == "snapshots" && r.Method == http.MethodGet:
		detail, err := s.service.GetSnapshot(r.Context(), documentID, rest[1])
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)

	case len(rest) == 1 && rest[0] == "compare" && r.Method == http.MethodGet:
		from := strings.TrimSpace(r.URL.Query().Get("from"))
		to := strings.TrimSpace(r.URL.Query().Get("to"))
		if from == "" || to == "" {
			writeError(w, http.StatusUnprocessableEntity, CodeValidation, "from and to snapshot ids are required", nil)
			return
		}
		result, err := s.service.Compare(r.Context(), documentID, from, to, actor(r))
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case len(rest) == 1 && rest[0] == "comparisons" && r.Method == http.MethodGet:
		items, err := s.service.ListComparisons(r.Context(), documentID, queryInt(r, "limit", 50))
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"comparisons": items})

	case len(rest) == 1 && rest[0] == "history" && r.Method == http.MethodGet:
		items, err := s.service.History(r.Context(), documentID, queryInt(r, "limit", 50))
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"commits": items})

	default:
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
	}
}

func (s *HTTPServer) authorized(r *http.Request) bool {
	if s.apiToken == "" {
		return true
	}
	token := bearerToken(r)
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.apiToken)) == 1
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	domainErr := toDomainError(err)
	if domainErr.Status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String(logging.FieldRequestID, requestID(r.Context())),
			zap.String(logging.FieldPath, r.URL.Path),
			zap.String("code", domainErr.Code),
			zap.Error(err),
		)
	}
	writeError(w, domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = util.NewID("")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", id)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String(logging.FieldRequestID, id),
			zap.String(logging.FieldMethod, r.Method),
			zap.String(logging.FieldPath, r.URL.Path),
			zap.Int(logging.FieldStatus, writer.status),
			zap.Int64(logging.FieldDurationMS, time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Actor")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
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
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return errors.New("invalid JSON body")
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

func actor(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Actor"))
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
