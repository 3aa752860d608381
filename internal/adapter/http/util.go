package adapthttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"storefront/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeServerError logs err and answers with an opaque 500.
func (s *Server) writeServerError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.ErrorContext(r.Context(), "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	writeDetail(w, http.StatusInternalServerError, "Internal server error")
}

// writeUnauthorized answers 401 with a bearer challenge.
func writeUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeDetail(w, http.StatusUnauthorized, detail)
}

// writeDomainError maps business rule violations to 400 and anything else
// to 500.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidProduct):
		writeDetail(w, http.StatusBadRequest, "Invalid product data")
	case errors.Is(err, domain.ErrEmailTaken):
		writeDetail(w, http.StatusBadRequest, "Email already registered")
	case errors.Is(err, domain.ErrUsernameTaken):
		writeDetail(w, http.StatusBadRequest, "Username already taken")
	default:
		s.writeServerError(w, r, err)
	}
}

// pathID parses the {id} path value.
func pathID(r *http.Request, name string) (int64, *fieldError) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, &fieldError{
			Location: "path -> " + name,
			Message:  "value is not a valid integer",
			Type:     "type_error.integer",
		}
	}
	return id, nil
}

func withNoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
