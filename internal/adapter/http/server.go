package adapthttp

import (
	"log/slog"
	"net/http"

	"storefront/internal/app"
	"storefront/internal/domain"
)

// Options carries the optional collaborators of a Server.
type Options struct {
	// Log receives request and error logs. Nil discards them.
	Log *slog.Logger
	// Transactor scopes each /api request to one transaction. Nil runs
	// handlers without one.
	Transactor domain.Transactor
	// SSO enables the single sign-on routes when non-nil.
	SSO *SSOConfig
	// CORSOrigin is the allowed origin; "*" allows any.
	CORSOrigin string
}

// Server is the driving HTTP adapter that routes requests to application
// services.
type Server struct {
	products   *app.ProductService
	users      *app.UserService
	auth       *app.AuthService
	tx         domain.Transactor
	sso        *SSOConfig
	log        *slog.Logger
	corsOrigin string
}

// New creates a Server wired to the given application services.
func New(ps *app.ProductService, us *app.UserService, as *app.AuthService, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{
		products:   ps,
		users:      us,
		auth:       as,
		tx:         opts.Transactor,
		sso:        opts.SSO,
		log:        log,
		corsOrigin: opts.CORSOrigin,
	}
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /products", s.handleListProducts)
	api.HandleFunc("GET /products/{id}", s.handleGetProduct)
	api.HandleFunc("POST /products", s.requireAuth(s.handleCreateProduct))
	api.HandleFunc("PUT /products/{id}", s.requireAuth(s.handleUpdateProduct))
	api.HandleFunc("DELETE /products/{id}", s.requireAuth(s.handleDeleteProduct))

	api.HandleFunc("POST /users", s.handleCreateUser)
	api.HandleFunc("GET /users/me", s.requireAuth(s.handleCurrentUser))
	api.HandleFunc("POST /login", s.handleLogin)

	api.HandleFunc("GET /sso/login", s.handleSSOLogin)
	api.HandleFunc("GET /sso/callback", s.handleSSOCallback)
	api.HandleFunc("/", handleNotFound)

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", s.txMiddleware(api)))
	root.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	root.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the storefront API"})
	})
	root.HandleFunc("/", handleNotFound)

	var h http.Handler = root
	h = s.corsMiddleware(h)
	h = s.rescueMiddleware(h)
	h = s.loggingMiddleware(h)
	h = requestIDMiddleware(h)
	return withNoCache(h)
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeDetail(w, http.StatusNotFound, "Not Found")
}
