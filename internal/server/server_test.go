package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"crm-service/internal/audit"
	"crm-service/internal/catalog"
	"crm-service/internal/identity"
	"crm-service/internal/middleware"
	"crm-service/internal/model"
	"crm-service/internal/registry"
	"crm-service/internal/tenantdb"
	"crm-service/internal/testutil"
	"crm-service/pkg/config"
	"crm-service/pkg/jwtutil"
	"crm-service/pkg/logger"
)

const password = "correct-horse"

type env struct {
	t      *testing.T
	cfg    *config.Config
	db     *gorm.DB
	store  *tenantdb.Store
	e      *echo.Echo
	tokens *jwtutil.JWTUtil
	hasher *identity.PasswordHasher
	a, b   *model.Tenant
}

func testConfig() *config.Config {
	return &config.Config{
		ServiceName: "crm-service-test",
		Server:      config.ServerConfig{TrustProxy: true},
		Password:    config.PasswordConfig{Hasher: config.HasherBcrypt, BcryptCost: 4},
		JWT:         config.JWTConfig{SigningKey: "test-signing-key", AccessTTL: time.Minute, RefreshTTL: time.Hour},
		Services:    config.ServicesConfig{PredictionTimeout: time.Second},
	}
}

func newEnv(t *testing.T, mutate ...func(*config.Config)) *env {
	log := zaptest.NewLogger(t)
	logger.SetLogger(log)

	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}
	db := testutil.NewDB(t)
	store := tenantdb.New(db, log)
	tokens := jwtutil.NewJWTUtil(&cfg.JWT)

	return &env{
		t:      t,
		cfg:    cfg,
		db:     db,
		store:  store,
		e:      New(Options{Config: cfg, Store: store, Tokens: tokens, Log: log}),
		tokens: tokens,
		hasher: identity.NewPasswordHasher(cfg.Password),
		a:      testutil.CreateTenant(t, db, "Tenant A", "a.test"),
		b:      testutil.CreateTenant(t, db, "Tenant B", "b.test"),
	}
}

func (v *env) user(tenant *model.Tenant, username string, staff bool) *model.User {
	v.t.Helper()
	hash, err := v.hasher.Hash(password)
	require.NoError(v.t, err)
	u := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		IsActive:     true,
		IsStaff:      staff,
	}
	if tenant != nil {
		u.TenantID = &tenant.ID
	} else {
		u.IsStaff = true
		u.IsSuperuser = true
	}
	return testutil.CreateUser(v.t, v.db, u)
}

func (v *env) token(u *model.User) string {
	v.t.Helper()
	pair, err := v.tokens.Issue(context.Background(), u.Principal())
	require.NoError(v.t, err)
	return pair.Access
}

type request struct {
	method  string
	host    string
	path    string
	body    interface{}
	token   string
	headers map[string]string
}

func (v *env) do(r request) *httptest.ResponseRecorder {
	v.t.Helper()
	var body bytes.Buffer
	if r.body != nil {
		require.NoError(v.t, json.NewEncoder(&body).Encode(r.body))
	}
	req := httptest.NewRequest(r.method, r.path, &body)
	req.Host = r.host
	req.RemoteAddr = "192.0.2.10:40000"
	if r.body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if r.token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+r.token)
	}
	for k, val := range r.headers {
		req.Header.Set(k, val)
	}
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	return rec
}

func (v *env) records() []model.AuditRecord {
	v.t.Helper()
	var recs []model.AuditRecord
	require.NoError(v.t, v.db.Order("id asc").Find(&recs).Error)
	return recs
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func TestTenantResolutionMiss(t *testing.T) {
	v := newEnv(t)

	rec := v.do(request{method: http.MethodGet, host: "unknown.example", path: "/api/tenant-info/"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"tenant_not_found"}`, rec.Body.String())
	assert.Empty(t, v.records())
}

func TestTenantResolutionHit(t *testing.T) {
	v := newEnv(t)
	testutil.CreateTenant(t, v.db, "Acme", "acme.test")

	for _, host := range []string{"ACME.test:8080", "acme.test.", "acme.test"} {
		rec := v.do(request{method: http.MethodGet, host: host, path: "/api/tenant-info/"})
		require.Equal(t, http.StatusOK, rec.Code, host)

		var got model.Tenant
		decode(t, rec, &got)
		assert.Equal(t, "acme.test", got.Domain)
	}
}

func TestCrossTenantIsolation(t *testing.T) {
	v := newEnv(t)
	u1 := v.user(v.a, "u1", true)
	u2 := v.user(v.b, "u2", true)

	// one login each produces records in both tenants
	for _, c := range []struct {
		host string
		user *model.User
	}{{"a.test", u1}, {"b.test", u2}} {
		rec := v.do(request{method: http.MethodPost, host: c.host, path: "/api/users/login/",
			body: echo.Map{"username": c.user.Username, "password": password}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := v.do(request{method: http.MethodGet, host: "a.test", path: "/api/bitacora/", token: v.token(u1)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var page audit.Page
	decode(t, rec, &page)
	require.NotEmpty(t, page.Results)
	assert.Equal(t, int64(len(page.Results)), page.Count)
	for _, r := range page.Results {
		require.NotNil(t, r.TenantID)
		assert.Equal(t, v.a.ID, *r.TenantID)
	}

	var other model.AuditRecord
	require.NoError(t, v.db.Where("tenant_id = ?", v.b.ID).First(&other).Error)
	rec = v.do(request{method: http.MethodGet, host: "a.test",
		path: fmt.Sprintf("/api/bitacora/%d/", other.ID), token: v.token(u1)})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))
}

func TestLoginAudit(t *testing.T) {
	v := newEnv(t)
	u1 := v.user(v.a, "u1", false)

	rec := v.do(request{
		method:  http.MethodPost,
		host:    "a.test",
		path:    "/api/users/login/",
		body:    echo.Map{"username": "u1", "password": password},
		headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		User   model.Principal `json:"user"`
		Access string          `json:"access"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, u1.ID, resp.User.UserID)
	assert.NotEmpty(t, resp.Access)

	recs := v.records()
	require.Len(t, recs, 1)
	assert.Equal(t, model.ActionLogin, recs[0].Action)
	require.NotNil(t, recs[0].UserID)
	assert.Equal(t, u1.ID, *recs[0].UserID)
	require.NotNil(t, recs[0].TenantID)
	assert.Equal(t, v.a.ID, *recs[0].TenantID)
	require.NotNil(t, recs[0].IPAddress)
	assert.Equal(t, "203.0.113.7", *recs[0].IPAddress)
}

func TestFailedLoginDoesNotAudit(t *testing.T) {
	v := newEnv(t)
	v.user(v.a, "u1", false)
	v.user(v.b, "u2", false)

	attempts := []request{
		{host: "a.test", body: echo.Map{"username": "u1", "password": "wrong-password"}},
		{host: "a.test", body: echo.Map{"username": "nobody", "password": password}},
		// correct credentials, wrong tenant
		{host: "a.test", body: echo.Map{"username": "u2", "password": password}},
	}
	var bodies []string
	for _, r := range attempts {
		r.method, r.path = http.MethodPost, "/api/users/login/"
		rec := v.do(r)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		bodies = append(bodies, rec.Body.String())
	}
	assert.Equal(t, bodies[0], bodies[1])
	assert.Equal(t, bodies[0], bodies[2])
	assert.Empty(t, v.records())
}

func TestTransactionAbortSuppressesAudit(t *testing.T) {
	v := newEnv(t)
	u1 := v.user(v.a, "u1", false)

	log := zaptest.NewLogger(t)
	reg := registry.New(v.store, log)
	ident := identity.NewService(v.store, v.hasher)
	svc := catalog.NewService(v.store)
	bus := audit.NewBus(audit.NewRecorder(v.store))

	api := v.e.Group("/api", middleware.TenantResolver(reg))
	api.POST("/explode/", func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := svc.CreateCategory(ctx, catalog.CategoryInput{Name: "Doomed"}); err != nil {
			return err
		}
		bus.Publish(ctx, nil, model.ActionCreate)
		return errors.New("handler failed after writing")
	}, middleware.Auth(v.tokens, ident), middleware.Transaction(v.store))

	rec := v.do(request{method: http.MethodPost, host: "a.test", path: "/api/explode/", token: v.token(u1)})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal","detail":"internal server error"}`, rec.Body.String())

	var categories int64
	require.NoError(t, v.db.Model(&model.Category{}).Count(&categories).Error)
	assert.Zero(t, categories)
	assert.Empty(t, v.records())
}

func TestPipelineOrder(t *testing.T) {
	v := newEnv(t)
	u1 := v.user(v.a, "u1", false)
	u2 := v.user(v.b, "u2", true)

	// tenant resolution runs before authentication
	rec := v.do(request{method: http.MethodGet, host: "unknown.example", path: "/api/users/user/", token: "garbage"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "tenant_not_found", errorCode(t, rec))

	// authentication runs before the handler
	rec = v.do(request{method: http.MethodGet, host: "a.test", path: "/api/users/user/"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "auth_failed", errorCode(t, rec))

	rec = v.do(request{method: http.MethodGet, host: "a.test", path: "/api/users/user/", token: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// a valid token of another tenant is rejected
	rec = v.do(request{method: http.MethodGet, host: "a.test", path: "/api/users/user/", token: v.token(u2)})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = v.do(request{method: http.MethodGet, host: "a.test", path: "/api/users/user/", token: v.token(u1)})
	require.Equal(t, http.StatusOK, rec.Code)
	var p model.Principal
	decode(t, rec, &p)
	assert.Equal(t, u1.ID, p.UserID)
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRequestID))

	// role checks follow authentication
	rec = v.do(request{method: http.MethodGet, host: "a.test", path: "/api/bitacora/", token: v.token(u1)})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", errorCode(t, rec))
}

func TestHealthBypassesTenantResolution(t *testing.T) {
	v := newEnv(t)

	rec := v.do(request{method: http.MethodGet, host: "unknown.example", path: "/health?check=db"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"db_status":"ok"`)
}

func TestTokenEndpoints(t *testing.T) {
	v := newEnv(t)
	u1 := v.user(v.a, "u1", false)

	rec := v.do(request{method: http.MethodPost, host: "a.test", path: "/api/token/",
		body: echo.Map{"username": "u1@example.com", "password": password}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pair model.TokenPair
	decode(t, rec, &pair)
	assert.NotEmpty(t, pair.Refresh)

	recs := v.records()
	require.Len(t, recs, 1)
	assert.Equal(t, model.ActionToken, recs[0].Action)
	assert.Equal(t, u1.ID, *recs[0].UserID)

	rec = v.do(request{method: http.MethodPost, host: "a.test", path: "/api/token/refresh/",
		body: echo.Map{"refresh": pair.Refresh}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// an access token is not a refresh token
	rec = v.do(request{method: http.MethodPost, host: "a.test", path: "/api/token/refresh/",
		body: echo.Map{"refresh": pair.Access}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = v.do(request{method: http.MethodPost, host: "a.test", path: "/api/token/", body: echo.Map{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body ErrorResponse
	decode(t, rec, &body)
	assert.Equal(t, "validation_error", body.Error)
	assert.Contains(t, body.Fields, "username")
	assert.Contains(t, body.Fields, "password")
}

func TestTenantAdministration(t *testing.T) {
	v := newEnv(t)
	root := v.user(nil, "root", true)
	staff := v.user(v.a, "staff", true)

	body := echo.Map{"name": "Initech", "domain": "Initech.Test."}
	rec := v.do(request{method: http.MethodPost, host: "a.test", path: "/api/tenants/register/", body: body, token: v.token(staff)})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = v.do(request{method: http.MethodPost, host: "a.test", path: "/api/tenants/register/", body: body, token: v.token(root)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created model.Tenant
	decode(t, rec, &created)
	assert.Equal(t, "initech.test", created.Domain)

	rec = v.do(request{method: http.MethodPost, host: "a.test", path: "/api/tenants/register/",
		body: echo.Map{"name": "Again", "domain": "INITECH.test"}, token: v.token(root)})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = v.do(request{method: http.MethodGet, host: "initech.test", path: "/api/tenant-info/"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// platform actions are recorded under the tenant serving the request
	recs := v.records()
	require.Len(t, recs, 1)
	assert.Equal(t, model.ActionRegister, recs[0].Action)
	assert.Equal(t, v.a.ID, *recs[0].TenantID)
	assert.Equal(t, root.ID, *recs[0].UserID)

	rec = v.do(request{method: http.MethodGet, host: "a.test", path: "/api/tenants/", token: v.token(root)})
	require.Equal(t, http.StatusOK, rec.Code)
	var tenants []model.Tenant
	decode(t, rec, &tenants)
	assert.Len(t, tenants, 3)

	rec = v.do(request{method: http.MethodDelete, host: "a.test", path: fmt.Sprintf("/api/tenants/%d/", v.a.ID), token: v.token(root)})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = v.do(request{method: http.MethodDelete, host: "a.test", path: fmt.Sprintf("/api/tenants/%d/", created.ID), token: v.token(root)})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = v.do(request{method: http.MethodGet, host: "initech.test", path: "/api/tenant-info/"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUserManagement(t *testing.T) {
	v := newEnv(t)
	staff := v.user(v.a, "staff", true)
	tok := v.token(staff)

	rec := v.do(request{method: http.MethodPost, host: "a.test", path: "/api/users/", token: tok,
		body: echo.Map{"username": "clerk", "email": "Clerk@Example.com", "password": "long-enough"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var clerk model.User
	decode(t, rec, &clerk)
	assert.Equal(t, "clerk@example.com", clerk.Email)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = v.do(request{method: http.MethodPost, host: "a.test", path: "/api/users/", token: tok,
		body: echo.Map{"username": "clerk", "email": "other@example.com", "password": "long-enough"}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// the new account can log in through its tenant only
	rec = v.do(request{method: http.MethodPost, host: "b.test", path: "/api/users/login/",
		body: echo.Map{"username": "clerk", "password": "long-enough"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = v.do(request{method: http.MethodDelete, host: "a.test", path: fmt.Sprintf("/api/users/%d/", staff.ID), token: tok})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = v.do(request{method: http.MethodDelete, host: "a.test", path: fmt.Sprintf("/api/users/%d/", clerk.ID), token: tok})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	var actions []string
	for _, r := range v.records() {
		actions = append(actions, r.Action)
	}
	assert.Equal(t, []string{model.ActionCreate, model.ActionDelete}, actions)
}

func TestCatalog(t *testing.T) {
	v := newEnv(t)
	tokA := v.token(v.user(v.a, "ua", false))
	tokB := v.token(v.user(v.b, "ub", false))

	rec := v.do(request{method: http.MethodPost, host: "a.test", path: "/api/categories/", token: tokA,
		body: echo.Map{"name": "Tools"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var category model.Category
	decode(t, rec, &category)

	rec = v.do(request{method: http.MethodPost, host: "a.test", path: "/api/products/", token: tokA,
		body: echo.Map{"name": "Hammer", "sku": "H-1", "price": 12.5, "stock": 3, "category_id": category.ID}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var product model.Product
	decode(t, rec, &product)
	assert.Equal(t, v.a.ID, product.TenantID)

	rec = v.do(request{method: http.MethodPost, host: "a.test", path: "/api/products/", token: tokA,
		body: echo.Map{"name": "Other", "sku": "H-1", "price": 1}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = v.do(request{method: http.MethodPost, host: "a.test", path: "/api/products/", token: tokA,
		body: echo.Map{"price": -1}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := fmt.Sprintf("/api/products/%d/", product.ID)
	rec = v.do(request{method: http.MethodGet, host: "b.test", path: path, token: tokB})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = v.do(request{method: http.MethodGet, host: "b.test", path: "/api/products/", token: tokB})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = v.do(request{method: http.MethodPost, host: "a.test", path: path + "stock/", token: tokA,
		body: echo.Map{"delta": -5}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = v.do(request{method: http.MethodPost, host: "a.test", path: path + "stock/", token: tokA,
		body: echo.Map{"delta": -3}})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &product)
	assert.Zero(t, product.Stock)

	rec = v.do(request{method: http.MethodDelete, host: "a.test", path: fmt.Sprintf("/api/categories/%d/", category.ID), token: tokA})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = v.do(request{method: http.MethodGet, host: "a.test", path: path, token: tokA})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &product)
	assert.Nil(t, product.CategoryID)

	var actions []string
	for _, r := range v.records() {
		actions = append(actions, r.Action)
	}
	assert.Equal(t, []string{model.ActionCreate, model.ActionCreate, model.ActionUpdate, model.ActionDelete}, actions)
}

func TestPredict(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Tenant-ID") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"score":0.9}`))
	}))
	defer upstream.Close()

	v := newEnv(t, func(c *config.Config) { c.Services.PredictionServiceURL = upstream.URL })
	tok := v.token(v.user(v.a, "u1", false))

	rec := v.do(request{method: http.MethodPost, host: "a.test", path: "/api/predict/", token: tok, body: echo.Map{"x": 1}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"score":0.9}`, rec.Body.String())

	recs := v.records()
	require.Len(t, recs, 1)
	assert.Equal(t, model.ActionPredict, recs[0].Action)
}

func TestPredict_UpstreamRejects(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"missing features"}`))
	}))
	defer upstream.Close()

	v := newEnv(t, func(c *config.Config) { c.Services.PredictionServiceURL = upstream.URL })
	tok := v.token(v.user(v.a, "u1", false))

	rec := v.do(request{method: http.MethodPost, host: "a.test", path: "/api/predict/", token: tok, body: echo.Map{"x": 1}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"detail":"missing features"}`, rec.Body.String())
	assert.Empty(t, v.records())
}

func TestPredict_UpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	v := newEnv(t, func(c *config.Config) { c.Services.PredictionServiceURL = url })
	tok := v.token(v.user(v.a, "u1", false))

	rec := v.do(request{method: http.MethodPost, host: "a.test", path: "/api/predict/", token: tok, body: echo.Map{"x": 1}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "upstream_unavailable", errorCode(t, rec))
	assert.Empty(t, v.records())
}

func TestUnknownRoute(t *testing.T) {
	v := newEnv(t)

	rec := v.do(request{method: http.MethodGet, host: "a.test", path: "/nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	decode(t, rec, &body)
	return body.Error
}
