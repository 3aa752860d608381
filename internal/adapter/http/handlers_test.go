package adapthttp_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	adapthttp "storefront/internal/adapter/http"
	"storefront/internal/adapter/localcache"
	"storefront/internal/adapter/memory"
	"storefront/internal/app"
	"storefront/internal/domain"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// ---------------------------------------------------------------------------
// Mock repositories (function-fields pattern)
// ---------------------------------------------------------------------------

type mockProductRepo struct {
	getAllFn  func(ctx context.Context) ([]domain.Product, error)
	getByIDFn func(ctx context.Context, id int64) (*domain.Product, error)
}

func (m *mockProductRepo) GetAll(ctx context.Context) ([]domain.Product, error) {
	if m.getAllFn != nil {
		return m.getAllFn(ctx)
	}
	return nil, nil
}

func (m *mockProductRepo) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockProductRepo) Create(ctx context.Context, p domain.Product) (*domain.Product, error) {
	p.ID = 1
	return &p, nil
}

func (m *mockProductRepo) Update(ctx context.Context, p domain.Product) (*domain.Product, error) {
	return &p, nil
}

func (m *mockProductRepo) Delete(ctx context.Context, id int64) (bool, error) {
	return false, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type testEnv struct {
	handler http.Handler
	db      *memory.DB
}

type envOption func(*envConfig)

type envConfig struct {
	products   domain.ProductRepository
	cacheCfg   app.ProductCacheConfig
	sso        *adapthttp.SSOConfig
	corsOrigin string
}

func withProducts(repo domain.ProductRepository) envOption {
	return func(c *envConfig) { c.products = repo }
}

func withInvalidateOnWrite() envOption {
	return func(c *envConfig) { c.cacheCfg.InvalidateOnWrite = true }
}

func withSSO(sso *adapthttp.SSOConfig) envOption {
	return func(c *envConfig) { c.sso = sso }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	db := memory.New()
	cfg := envConfig{products: db.Products(), corsOrigin: "*"}
	for _, o := range opts {
		o(&cfg)
	}

	local, err := localcache.New(localcache.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	cache := app.NewCacheService(local, nil)
	products := app.NewProductService(cfg.products, cache, cfg.cacheCfg, nil)
	users := app.NewUserService(db.Users())
	auth, err := app.NewAuthService(users, app.TokenConfig{Secret: "test-secret"})
	if err != nil {
		t.Fatal(err)
	}

	srv := adapthttp.New(products, users, auth, adapthttp.Options{
		Transactor: db,
		SSO:        cfg.sso,
		CORSOrigin: cfg.corsOrigin,
	})
	return &testEnv{handler: srv.Handler(), db: db}
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

// login registers a user and returns a bearer token for it.
func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	w := e.do(t, "POST", "/api/users", `{"username":"ann","email":"ann@example.com","password":"pa55word"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	w = e.do(t, "POST", "/api/login", `{"email":"ann@example.com","password":"pa55word"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	decode(t, w, &tok)
	if tok.TokenType != "bearer" || tok.AccessToken == "" {
		t.Fatalf("unexpected token response %+v", tok)
	}
	return tok.AccessToken
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	decode(t, w, &body)
	return body.Detail
}

type validationBody struct {
	Detail string `json:"detail"`
	Errors []struct {
		Location string `json:"location"`
		Message  string `json:"message"`
		Type     string `json:"type"`
	} `json:"errors"`
}

func (v validationBody) locations() []string {
	out := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		out = append(out, e.Location)
	}
	return out
}

type productJSON struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Price       string  `json:"price"`
	Stock       int     `json:"stock"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestHealthAndRoot(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/health", "", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"status":"ok"}` {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Error("expected Cache-Control: no-store")
	}

	w = env.do(t, "GET", "/", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "message") {
		t.Fatalf("root: %d %s", w.Code, w.Body.String())
	}

	for _, path := range []string{"/nope", "/api/nope"} {
		w = env.do(t, "GET", path, "", "")
		if w.Code != http.StatusNotFound || detail(t, w) != "Not Found" {
			t.Errorf("%s: %d %s", path, w.Code, w.Body.String())
		}
	}
}

func TestProductLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	// Create
	w := env.do(t, "POST", "/api/products", `{"name":"Widget","description":"blue","price":19.99,"stock":3}`, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var created productJSON
	decode(t, w, &created)
	if created.ID == 0 || created.Price != "19.99" || created.Stock != 3 || created.CreatedAt == "" {
		t.Fatalf("unexpected product %+v", created)
	}

	// Get (fills the cache)
	w = env.do(t, "GET", "/api/products/1", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d %s", w.Code, w.Body.String())
	}
	var got productJSON
	decode(t, w, &got)
	if got.ID != created.ID || got.Name != created.Name || got.Price != created.Price || got.CreatedAt != created.CreatedAt {
		t.Fatalf("get = %+v; want %+v", got, created)
	}
	if got.Description == nil || *got.Description != "blue" {
		t.Fatalf("description = %v; want blue", got.Description)
	}

	// List
	w = env.do(t, "GET", "/api/products", "", "")
	var list []productJSON
	decode(t, w, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 product, got %d", len(list))
	}

	// Partial update
	w = env.do(t, "PUT", "/api/products/1", `{"stock":7}`, token)
	if w.Code != http.StatusOK {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}
	var updated productJSON
	decode(t, w, &updated)
	if updated.Stock != 7 || updated.Name != "Widget" || updated.Price != "19.99" || updated.CreatedAt != created.CreatedAt {
		t.Fatalf("unexpected update %+v", updated)
	}

	// Cached reads keep serving the pre-update record until the TTL
	w = env.do(t, "GET", "/api/products/1", "", "")
	decode(t, w, &got)
	if got.Stock != 3 {
		t.Fatalf("expected cached stock 3, got %d", got.Stock)
	}
	// The list always reads the store
	w = env.do(t, "GET", "/api/products", "", "")
	decode(t, w, &list)
	if list[0].Stock != 7 {
		t.Fatalf("expected list stock 7, got %d", list[0].Stock)
	}

	// Delete
	w = env.do(t, "DELETE", "/api/products/1", "", token)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("delete: %d %q", w.Code, w.Body.String())
	}
	w = env.do(t, "DELETE", "/api/products/1", "", token)
	if w.Code != http.StatusNotFound || detail(t, w) != "Product not found" {
		t.Fatalf("second delete: %d %s", w.Code, w.Body.String())
	}
	w = env.do(t, "PUT", "/api/products/1", `{"stock":1}`, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("update deleted: %d %s", w.Code, w.Body.String())
	}
}

func TestProductInvalidateOnWrite(t *testing.T) {
	env := newTestEnv(t, withInvalidateOnWrite())
	token := env.login(t)

	env.do(t, "POST", "/api/products", `{"name":"Widget","price":"5.00","stock":1}`, token)
	env.do(t, "GET", "/api/products/1", "", "")
	env.do(t, "PUT", "/api/products/1", `{"stock":2}`, token)

	var got productJSON
	decode(t, env.do(t, "GET", "/api/products/1", "", ""), &got)
	if got.Stock != 2 {
		t.Fatalf("expected fresh stock 2, got %d", got.Stock)
	}

	env.do(t, "DELETE", "/api/products/1", "", token)
	if w := env.do(t, "GET", "/api/products/1", "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestProductNotFound(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/api/products/99", "", "")
	if w.Code != http.StatusNotFound || detail(t, w) != "Product not found" {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}

func TestProductValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantLocs []string
	}{
		{"negative price and empty name", "POST", "/api/products", `{"name":"","price":-1,"stock":1}`, []string{"body -> name", "body -> price"}},
		{"missing fields", "POST", "/api/products", `{}`, []string{"body -> name", "body -> price", "body -> stock"}},
		{"negative stock", "POST", "/api/products", `{"name":"x","price":1,"stock":-1}`, []string{"body -> stock"}},
		{"stock wrong type", "POST", "/api/products", `{"name":"x","price":1,"stock":"many"}`, []string{"body -> stock"}},
		{"price not a number", "POST", "/api/products", `{"name":"x","price":"cheap","stock":1}`, []string{"body -> price"}},
		{"name too long", "POST", "/api/products", `{"name":"` + strings.Repeat("n", 101) + `","price":1,"stock":1}`, []string{"body -> name"}},
		{"malformed json", "POST", "/api/products", `{"name":`, []string{"body"}},
		{"update zero price", "PUT", "/api/products/1", `{"price":0}`, []string{"body -> price"}},
		{"update empty name", "PUT", "/api/products/1", `{"name":""}`, []string{"body -> name"}},
		{"bad path id", "PUT", "/api/products/abc", `{"stock":1}`, []string{"path -> product_id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body, token)
			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d %s", w.Code, w.Body.String())
			}
			var body validationBody
			decode(t, w, &body)
			if body.Detail != "Validation error" {
				t.Errorf("detail = %q", body.Detail)
			}
			if got := strings.Join(body.locations(), ","); got != strings.Join(tt.wantLocs, ",") {
				t.Errorf("locations = %s; want %s", got, strings.Join(tt.wantLocs, ","))
			}
			for _, e := range body.Errors {
				if e.Message == "" || e.Type == "" {
					t.Errorf("incomplete field error %+v", e)
				}
			}
		})
	}

	w := env.do(t, "GET", "/api/products/abc", "", "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("get bad id: %d", w.Code)
	}
}

func TestProductKeepsPriceAndStockExactly(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	tests := []struct {
		body  string
		price string
		stock int
	}{
		{`{"name":"a","price":0.001,"stock":1}`, "0.001", 1},
		{`{"name":"b","price":9.999,"stock":1}`, "9.999", 1},
		{`{"name":"c","price":"123456789012.5","stock":3000000000}`, "123456789012.5", 3000000000},
	}
	for _, tt := range tests {
		w := env.do(t, "POST", "/api/products", tt.body, token)
		if w.Code != http.StatusCreated {
			t.Fatalf("%s: expected 201, got %d %s", tt.body, w.Code, w.Body.String())
		}
		var p productJSON
		decode(t, w, &p)
		if p.Price != tt.price || p.Stock != tt.stock {
			t.Errorf("%s: stored as %s/%d", tt.body, p.Price, p.Stock)
		}
	}
}

func TestProductBusinessRule(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	w := env.do(t, "POST", "/api/products", `{"name":"   ","price":1,"stock":1}`, token)
	if w.Code != http.StatusBadRequest || detail(t, w) != "Invalid product data" {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}

func TestProductWritesRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		method, path, body, token, wantDetail string
	}{
		{"POST", "/api/products", `{"name":"x","price":1,"stock":1}`, "", "Not authenticated"},
		{"PUT", "/api/products/1", `{"stock":1}`, "", "Not authenticated"},
		{"DELETE", "/api/products/1", "", "", "Not authenticated"},
		{"DELETE", "/api/products/1", "", "garbage", "Could not validate credentials"},
		{"GET", "/api/users/me", "", "", "Not authenticated"},
		{"GET", "/api/users/me", "", "a.b.c", "Could not validate credentials"},
	}
	for _, tt := range tests {
		w := env.do(t, tt.method, tt.path, tt.body, tt.token)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", tt.method, tt.path, w.Code)
			continue
		}
		if w.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Errorf("%s %s: missing bearer challenge", tt.method, tt.path)
		}
		if got := detail(t, w); got != tt.wantDetail {
			t.Errorf("%s %s: detail = %q; want %q", tt.method, tt.path, got, tt.wantDetail)
		}
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	u, _ := env.db.Users().GetByEmail(context.Background(), "ann@example.com")

	issued := time.Now().Add(-2 * time.Hour)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(u.ID, 10),
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(app.DefaultTokenExpiration)),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}

	w := env.do(t, "POST", "/api/products", `{"name":"Widget","price":1,"stock":1}`, expired)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("WWW-Authenticate") != "Bearer" || detail(t, w) != "Could not validate credentials" {
		t.Fatalf("unexpected rejection %v %s", w.Header(), w.Body.String())
	}
	var list []productJSON
	decode(t, env.do(t, "GET", "/api/products", "", ""), &list)
	if len(list) != 0 {
		t.Fatalf("expired token created %d products", len(list))
	}
}

func TestTokenForDeletedUser(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	u, _ := env.db.Users().GetByEmail(context.Background(), "ann@example.com")
	if _, err := env.db.Users().Delete(context.Background(), u.ID); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, "GET", "/api/users/me", "", token)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestUserRegistration(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/users", `{"username":"ann","email":"ann@example.com","password":"pa55word"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	var body map[string]any
	decode(t, w, &body)
	if body["username"] != "ann" || body["email"] != "ann@example.com" || body["id"] == nil {
		t.Fatalf("unexpected user %v", body)
	}
	for k := range body {
		if strings.Contains(k, "password") {
			t.Fatalf("response leaks %s", k)
		}
	}

	tests := []struct {
		name       string
		body       string
		wantCode   int
		wantDetail string
	}{
		{"duplicate email", `{"username":"other","email":"ann@example.com","password":"pa55word"}`, http.StatusBadRequest, "Email already registered"},
		{"duplicate username", `{"username":"ann","email":"other@example.com","password":"pa55word"}`, http.StatusBadRequest, "Username already taken"},
		{"short password", `{"username":"bob","email":"bob@example.com","password":"123"}`, http.StatusUnprocessableEntity, "Validation error"},
		{"bad email", `{"username":"bob","email":"not-an-email","password":"pa55word"}`, http.StatusUnprocessableEntity, "Validation error"},
		{"short username", `{"username":"bo","email":"bob@example.com","password":"pa55word"}`, http.StatusUnprocessableEntity, "Validation error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/users", tt.body, "")
			if w.Code != tt.wantCode || detail(t, w) != tt.wantDetail {
				t.Fatalf("got %d %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestLoginAndCurrentUser(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	w := env.do(t, "GET", "/api/users/me", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("me: %d %s", w.Code, w.Body.String())
	}
	var me map[string]any
	decode(t, w, &me)
	if me["email"] != "ann@example.com" {
		t.Fatalf("unexpected user %v", me)
	}

	// OAuth2 password form
	form := url.Values{"username": {"ann@example.com"}, "password": {"pa55word"}}
	req := httptest.NewRequest("POST", "/api/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "access_token") {
		t.Fatalf("form login: %d %s", w.Code, w.Body.String())
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	wrongPassword := env.do(t, "POST", "/api/login", `{"email":"ann@example.com","password":"nope!!"}`, "")
	unknownEmail := env.do(t, "POST", "/api/login", `{"email":"bob@example.com","password":"pa55word"}`, "")

	for _, w := range []*httptest.ResponseRecorder{wrongPassword, unknownEmail} {
		if w.Code != http.StatusUnauthorized || w.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Fatalf("expected 401 with challenge, got %d", w.Code)
		}
	}
	if wrongPassword.Body.String() != unknownEmail.Body.String() {
		t.Fatalf("bodies differ: %s vs %s", wrongPassword.Body.String(), unknownEmail.Body.String())
	}

	w := env.do(t, "POST", "/api/login", `{"email":"ann@example.com"}`, "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing password: %d", w.Code)
	}
}

func TestServerErrorsAreOpaque(t *testing.T) {
	repo := &mockProductRepo{
		getAllFn: func(context.Context) ([]domain.Product, error) {
			return nil, errors.New("dial tcp 10.0.0.5:5432: connection refused")
		},
		getByIDFn: func(context.Context, int64) (*domain.Product, error) {
			panic("driver exploded")
		},
	}
	env := newTestEnv(t, withProducts(repo))

	for _, path := range []string{"/api/products", "/api/products/1"} {
		w := env.do(t, "GET", path, "", "")
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("%s: expected 500, got %d", path, w.Code)
		}
		if strings.TrimSpace(w.Body.String()) != `{"detail":"Internal server error"}` {
			t.Fatalf("%s: body leaks details: %s", path, w.Body.String())
		}
	}
}

func TestSSODisabled(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/sso/login", "/api/sso/callback"} {
		if w := env.do(t, "GET", path, "", ""); w.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, w.Code)
		}
	}
}

func TestSSOFlow(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	const issuer, clientID = "https://id.example.com", "storefront"

	idToken, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":                issuer,
		"aud":                clientID,
		"sub":                "idp-123",
		"email":              "sso@example.com",
		"preferred_username": "sso-user",
		"iat":                time.Now().Unix(),
		"exp":                time.Now().Add(time.Hour).Unix(),
	}).SignedString(key)
	if err != nil {
		t.Fatal(err)
	}

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "provider-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		})
	}))
	defer tokenSrv.Close()

	sso := &adapthttp.SSOConfig{
		OAuth2Config: &oauth2.Config{
			ClientID:    clientID,
			RedirectURL: "http://localhost/api/sso/callback",
			Endpoint:    oauth2.Endpoint{AuthURL: "https://id.example.com/auth", TokenURL: tokenSrv.URL},
			Scopes:      []string{oidc.ScopeOpenID, "email"},
		},
		Verifier: oidc.NewVerifier(issuer, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}, &oidc.Config{ClientID: clientID}),
	}
	env := newTestEnv(t, withSSO(sso))

	// Login redirects to the provider with a state cookie
	w := env.do(t, "GET", "/api/sso/login", "", "")
	if w.Code != http.StatusFound {
		t.Fatalf("login: %d", w.Code)
	}
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil || loc.Host != "id.example.com" {
		t.Fatalf("unexpected redirect %q", w.Header().Get("Location"))
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("expected state in redirect")
	}

	// Callback with a mismatched state is rejected
	req := httptest.NewRequest("GET", "/api/sso/callback?state=other&code=abc", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: state})
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("mismatched state: %d", w.Code)
	}

	// Valid callback provisions the user and returns a token
	req = httptest.NewRequest("GET", "/api/sso/callback?state="+url.QueryEscape(state)+"&code=abc", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: state})
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("callback: %d %s", w.Code, w.Body.String())
	}
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, w, &tok)

	w = env.do(t, "GET", "/api/users/me", "", tok.AccessToken)
	var me map[string]any
	decode(t, w, &me)
	if me["email"] != "sso@example.com" || me["username"] != "sso-user" {
		t.Fatalf("unexpected provisioned user %v", me)
	}

	// The provisioned account cannot log in with a password
	w = env.do(t, "POST", "/api/login", `{"email":"sso@example.com","password":"anything"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("password login for SSO user: %d", w.Code)
	}
}
