package adapthttp

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"storefront/internal/app"
	"storefront/internal/domain"
	"storefront/internal/logging"

	"github.com/google/uuid"
)

type contextKey string

const userContextKey contextKey = "user"

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// currentUser returns the authenticated user stored by requireAuth.
func currentUser(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userContextKey).(*domain.User)
	return u
}

// requireAuth resolves the bearer token to a user before calling next.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			writeUnauthorized(w, "Not authenticated")
			return
		}

		user, err := s.auth.Authenticate(r.Context(), strings.TrimSpace(token))
		if err != nil {
			if errors.Is(err, app.ErrInvalidToken) {
				s.log.DebugContext(r.Context(), "token rejected", "error", err)
				writeUnauthorized(w, "Could not validate credentials")
				return
			}
			s.writeServerError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next(w, r.WithContext(ctx))
	}
}

// requestIDMiddleware takes the request id from the X-Request-ID header or
// generates one, and echoes it on the response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// statusRecorder captures the response status and size.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// loggingMiddleware logs each response at a level chosen by its status.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		switch {
		case rec.status >= http.StatusInternalServerError:
			level = slog.LevelError
		case rec.status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		s.log.Log(r.Context(), level, "response",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
		)
	})
}

// rescueMiddleware turns a handler panic into an opaque 500.
func (s *Server) rescueMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}
			s.log.ErrorContext(r.Context(), "request panic",
				"method", r.Method,
				"path", r.URL.Path,
				"panic", p,
				"stack", string(debug.Stack()),
			)
			writeDetail(w, http.StatusInternalServerError, "Internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware answers preflight requests and marks responses as
// readable by the configured origin.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || s.corsOrigin == "" {
			next.ServeHTTP(w, r)
			return
		}
		if s.corsOrigin != "*" && origin != s.corsOrigin {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			}
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var errRollback = errors.New("rollback: server error response")

// bufferedResponse holds a response until the request's transaction has
// been settled, so a failed commit can still become a 500.
type bufferedResponse struct {
	w      http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) Header() http.Header { return b.w.Header() }

func (b *bufferedResponse) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) flush() {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	b.w.WriteHeader(b.status)
	_, _ = b.w.Write(b.body.Bytes())
}

// txMiddleware runs each request in one transaction. A 5xx response or a
// panic rolls it back; anything else commits.
func (s *Server) txMiddleware(next http.Handler) http.Handler {
	if s.tx == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := &bufferedResponse{w: w}
		err := s.tx.WithinTx(r.Context(), func(ctx context.Context) error {
			next.ServeHTTP(buf, r.WithContext(ctx))
			if buf.status >= http.StatusInternalServerError {
				return errRollback
			}
			return nil
		})
		if err != nil && !errors.Is(err, errRollback) {
			s.writeServerError(w, r, err)
			return
		}
		buf.flush()
	})
}
