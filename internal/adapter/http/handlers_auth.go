// Package adapthttp implements the HTTP adapter for the application.
package adapthttp

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"mime"
	"net/http"

	"storefront/internal/app"

	"github.com/coreos/go-oidc/v3/oidc"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/oauth2"
)

// SSOConfig holds the OpenID Connect client used by the SSO routes.
type SSOConfig struct {
	OAuth2Config *oauth2.Config
	Verifier     *oidc.IDTokenVerifier
}

// NewSSOConfig discovers the provider at issuer and builds the client.
func NewSSOConfig(ctx context.Context, issuer, clientID, clientSecret, redirectURL string) (*SSOConfig, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, err
	}
	return &SSOConfig{
		OAuth2Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		Verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func writeToken(w http.ResponseWriter, token string) {
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

// loginBody accepts either a JSON {email, password} object or an OAuth2
// password grant form, where username carries the email.
type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	form     bool
}

func (b *loginBody) parse(r *http.Request) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		b.form = true
		if err := r.ParseForm(); err != nil {
			return newRequestError(fieldError{Location: "body", Message: "invalid form body", Type: "value_error"})
		}
		b.Email = r.PostFormValue("username")
		b.Password = r.PostFormValue("password")
	} else if err := decodeJSON(r, b); err != nil {
		return err
	}

	emailField := "email"
	if b.form {
		emailField = "username"
	}
	err := validation.Errors{
		emailField: validation.Validate(b.Email, validation.Required),
		"password": validation.Validate(b.Password, validation.Required),
	}.Filter()
	if err != nil {
		return newRequestError(fieldErrors(err)...)
	}
	return nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if !s.parseRequest(w, r, body.parse(r)) {
		return
	}

	token, err := s.auth.Login(r.Context(), body.Email, body.Password)
	if errors.Is(err, app.ErrInvalidCredentials) {
		writeUnauthorized(w, "Incorrect email or password")
		return
	}
	if err != nil {
		s.writeServerError(w, r, err)
		return
	}
	writeToken(w, token)
}

func (s *Server) handleSSOLogin(w http.ResponseWriter, r *http.Request) {
	if s.sso == nil {
		writeDetail(w, http.StatusNotFound, "SSO is not enabled")
		return
	}
	state := generateState()
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode, // Lax required for cross-site redirect returns
		MaxAge:   300,
	})
	http.Redirect(w, r, s.sso.OAuth2Config.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleSSOCallback(w http.ResponseWriter, r *http.Request) {
	if s.sso == nil {
		writeDetail(w, http.StatusNotFound, "SSO is not enabled")
		return
	}

	state, err := r.Cookie("oauth_state")
	if err != nil || state.Value == "" || r.URL.Query().Get("state") != state.Value {
		writeDetail(w, http.StatusBadRequest, "Invalid state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "oauth_state", MaxAge: -1, Path: "/"})

	token, err := s.sso.OAuth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		s.log.WarnContext(r.Context(), "sso code exchange failed", "error", err)
		writeUnauthorized(w, "Could not validate credentials")
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		writeUnauthorized(w, "Could not validate credentials")
		return
	}

	idToken, err := s.sso.Verifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		s.log.WarnContext(r.Context(), "sso id token rejected", "error", err)
		writeUnauthorized(w, "Could not validate credentials")
		return
	}

	var claims struct {
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err = idToken.Claims(&claims); err != nil {
		s.writeServerError(w, r, err)
		return
	}
	if claims.Email == "" {
		writeDetail(w, http.StatusBadRequest, "SSO identity has no email")
		return
	}

	accessToken, err := s.auth.LoginWithIdentity(r.Context(), claims.Email, claims.PreferredUsername)
	if err != nil {
		s.writeServerError(w, r, err)
		return
	}
	writeToken(w, accessToken)
}

func generateState() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
