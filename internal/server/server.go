// Package server assembles the echo application: the fixed middleware order,
// the routes and the error envelope.
package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"crm-service/internal/audit"
	"crm-service/internal/catalog"
	"crm-service/internal/handler"
	"crm-service/internal/identity"
	"crm-service/internal/middleware"
	"crm-service/internal/prediction"
	"crm-service/internal/registry"
	"crm-service/internal/tenantdb"
	"crm-service/pkg/config"
	"crm-service/pkg/logger"
)

// Options configures New. Metrics, when set, is served on /metrics.
type Options struct {
	Config  *config.Config
	Store   *tenantdb.Store
	Tokens  identity.TokenService
	Log     *zap.Logger
	Metrics http.Handler
}

// New wires the services over opts.Store and returns the echo application.
//
// Request pipeline: request id, tenant resolution, authentication where the
// route requires it, then the handler inside a unit of work whose response is
// buffered until the audit records are written and the unit commits.
func New(opts Options) *echo.Echo {
	cfg := opts.Config
	store := opts.Store

	reg := registry.New(store, opts.Log)
	ident := identity.NewService(store, identity.NewPasswordHasher(cfg.Password))
	h := &handler.Handler{
		Store:     store,
		Registry:  reg,
		Identity:  ident,
		Tokens:    opts.Tokens,
		Audit:     audit.NewBus(audit.NewRecorder(store)),
		Bitacora:  audit.NewReader(store),
		Catalog:   catalog.NewService(store),
		Predictor: prediction.NewForwarder(cfg.Services.PredictionServiceURL, cfg.Services.PredictionTimeout),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestID(cfg.Server.TrustProxy))
	e.Use(middleware.Metrics)
	e.Use(logger.Middleware())

	// Public routes - no tenant
	e.GET("/health", h.HealthCheck)
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}

	auth := middleware.Auth(opts.Tokens, ident)
	tx := middleware.Transaction(store)
	staff := []echo.MiddlewareFunc{auth, middleware.RequireStaff, tx}
	super := []echo.MiddlewareFunc{auth, middleware.RequireSuperuser, tx}
	bearer := []echo.MiddlewareFunc{auth, tx}

	api := e.Group("/api", middleware.TenantResolver(reg))

	// Tokens
	api.POST("/token/", h.ObtainToken, tx)
	api.POST("/token/refresh/", h.RefreshToken)

	// Tenants
	api.GET("/tenant-info/", h.TenantInfo)
	api.POST("/tenants/register/", h.RegisterTenant, super...)
	api.GET("/tenants/", h.ListTenants, super...)
	api.DELETE("/tenants/:id/", h.DeleteTenant, super...)

	// Users
	api.POST("/users/login/", h.Login, tx)
	api.GET("/users/user/", h.CurrentUser, auth)
	api.GET("/users/", h.ListUsers, staff...)
	api.POST("/users/", h.CreateUser, staff...)
	api.DELETE("/users/:id/", h.DeleteUser, staff...)

	// Bitácora
	api.GET("/bitacora/", h.ListBitacora, staff...)
	api.GET("/bitacora/:id/", h.GetBitacora, staff...)

	// Catalog
	api.GET("/categories/", h.ListCategories, bearer...)
	api.POST("/categories/", h.CreateCategory, bearer...)
	api.GET("/categories/:id/", h.GetCategory, bearer...)
	api.PUT("/categories/:id/", h.UpdateCategory, bearer...)
	api.DELETE("/categories/:id/", h.DeleteCategory, bearer...)
	api.GET("/products/", h.ListProducts, bearer...)
	api.POST("/products/", h.CreateProduct, bearer...)
	api.GET("/products/:id/", h.GetProduct, bearer...)
	api.PUT("/products/:id/", h.UpdateProduct, bearer...)
	api.DELETE("/products/:id/", h.DeleteProduct, bearer...)
	api.POST("/products/:id/stock/", h.AdjustStock, bearer...)

	// Prediction calls can take long; they do not hold a transaction open
	// and their audit record is written right away.
	api.POST("/predict/", h.Predict, auth)

	return e
}
