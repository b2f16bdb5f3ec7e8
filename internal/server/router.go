package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vanshika/iamgraph/internal/domain"
)

const healthProbeTimeout = 2 * time.Second

// CORSPolicy lists the browser origins allowed to call the API. A "*" origin is
// answered with a literal wildcard and never with credentials.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

// RouterDependencies collects handler dependencies.
type RouterDependencies struct {
	// Database is the graph database the API reads and writes. It is attached to
	// every request log line.
	Database string
	Health   HealthService
	API      *APIHandlers
	CORS     CORSPolicy
}

// NewRouter wires the IAM API routes.
func NewRouter(logger *slog.Logger, deps RouterDependencies) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", healthHandler(logger, deps.Database, deps.Health))

	if deps.API != nil {
		mux.HandleFunc("/users", deps.API.handleUsers)
		mux.HandleFunc("/users/count", deps.API.handleUserCount)
		mux.HandleFunc("/files", deps.API.handleFiles)
	}

	handler := requestLogger(logger.With("component", "http", "database", deps.Database), mux)
	if len(deps.CORS.AllowedOrigins) > 0 {
		handler = corsMiddleware(deps.CORS)(handler)
	}
	return handler
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
	Error    string `json:"error,omitempty"`
}

func healthHandler(logger *slog.Logger, database string, health HealthService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Database: database}
		if health == nil {
			respondJSON(w, http.StatusOK, resp)
			return
		}
		if err := health.Probe(ctx); err != nil {
			logger.Error("graph health probe failed", "database", database, "error", err)
			resp.Status = "degraded"
			resp.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		respondJSON(w, http.StatusOK, resp)
	})
}

// requestLogger logs one line per request. Failed graph calls reported through
// respondError add their error and error code; server errors log at error level.
func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"outcome", outcome(rec.status),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if rec.err != nil {
			attrs = append(attrs, "error", rec.err)
			if code := domain.CodeOf(rec.err); code != "" {
				attrs = append(attrs, "error_code", string(code))
			}
		}

		switch {
		case rec.status >= http.StatusInternalServerError:
			logger.Error("request failed", attrs...)
		case rec.status >= http.StatusBadRequest:
			logger.Warn("request rejected", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	})
}

func outcome(status int) string {
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error"
	case status >= http.StatusBadRequest:
		return "client_error"
	default:
		return "ok"
	}
}

// respondError maps err to a status and writes it. Client errors keep their message;
// server errors are reported as msg. err is handed to the request logger.
func respondError(w http.ResponseWriter, msg string, err error) {
	if rec, ok := w.(*responseRecorder); ok {
		rec.err = err
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		writeError(w, status, msg)
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAmbiguousUser):
		return http.StatusConflict
	case errors.Is(err, domain.ErrFileCount):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	switch domain.CodeOf(err) {
	case domain.CodeConnection:
		return http.StatusServiceUnavailable
	case domain.CodeInsert:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	err    error
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

const corsAllowedMethods = "GET, POST, PATCH, DELETE, OPTIONS"

func corsMiddleware(policy CORSPolicy) func(http.Handler) http.Handler {
	origins := make(map[string]struct{}, len(policy.AllowedOrigins))
	wildcard := false
	for _, origin := range policy.AllowedOrigins {
		switch origin = strings.TrimSpace(origin); origin {
		case "":
		case "*":
			wildcard = true
		default:
			origins[origin] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			_, listed := origins[origin]
			if origin == "" || (!listed && !wildcard) {
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			if listed {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				if policy.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			} else {
				h.Set("Access-Control-Allow-Origin", "*")
			}
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Access-Control-Allow-Methods", corsAllowedMethods)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
