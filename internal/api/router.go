package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/payverify/internal/metrics"
)

// SetupRouter creates the HTTP router. Everything under /transactions
// requires a bearer token listed in tokens.
func SetupRouter(handler *Handler, tokens map[string]string) *mux.Router {
	router := mux.NewRouter()

	router.Use(recoveryMiddleware())
	router.Use(loggingMiddleware())

	router.HandleFunc("/health", handler.HandleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	tx := router.PathPrefix("/transactions").Subrouter()
	tx.Use(authMiddleware(tokens))

	tx.HandleFunc("/mark-consumed", handler.HandleMarkConsumed).Methods(http.MethodPost)
	tx.HandleFunc("/is-consumed/{hash}", handler.HandleIsConsumed).Methods(http.MethodGet)
	tx.HandleFunc("/save", handler.HandleSave).Methods(http.MethodPost)
	tx.HandleFunc("/history", handler.HandleHistory).Methods(http.MethodGet)

	return router
}

type accountKey struct{}

// accountFrom returns the account the request authenticated as.
func accountFrom(ctx context.Context) string {
	account, _ := ctx.Value(accountKey{}).(string)
	return account
}

// authMiddleware maps "Authorization: Bearer <token>" to an account id.
func authMiddleware(tokens map[string]string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			account, known := tokens[strings.TrimSpace(token)]
			if !ok || !known || token == "" {
				respondError(w, http.StatusUnauthorized, "unauthorized", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountKey{}, account)))
		})
	}
}

// loggingMiddleware logs and counts HTTP requests
func loggingMiddleware() mux.MiddlewareFunc {
	log := slog.With("component", "api")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()

			log.Debug("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration", time.Since(start),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// recoveryMiddleware recovers from panics and logs them
func recoveryMiddleware() mux.MiddlewareFunc {
	log := slog.With("component", "api")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("Panic recovered",
						"error", err,
						"method", r.Method,
						"path", r.URL.Path,
					)
					respondError(w, http.StatusInternalServerError, "internal server error", nil)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
