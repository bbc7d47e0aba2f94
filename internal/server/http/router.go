// Package httpserver exposes the accounts service as a JSON HTTP API.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/goph-accounts/internal/admin"
	"github.com/and161185/goph-accounts/internal/metrics"
	"github.com/and161185/goph-accounts/internal/model"
	"github.com/and161185/goph-accounts/internal/service"
)

// Authenticator resolves a bearer token to its account.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (*model.Account, error)
}

// Config wires the router.
type Config struct {
	Accounts service.AccountService
	Auth     Authenticator
	Guard    *admin.Guard
	Log      *zap.Logger
	// Metrics enables latency recording and the metrics endpoint when set.
	Metrics     *metrics.Metrics
	MetricsPath string
	// Ready reports storage health for /healthz; nil means always ready.
	Ready func(ctx context.Context) error
}

// NewRouter builds the gin engine.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	log := cfg.Log.Named("http")

	r := gin.New()
	r.Use(Recovery(log), Logger(log))
	if cfg.Metrics != nil {
		r.Use(Metrics(cfg.Metrics))
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.Metrics.Handler()))
	}
	r.NoRoute(NotFoundHandler)
	r.GET("/healthz", healthHandler(cfg.Ready))

	h := &handlers{accounts: cfg.Accounts, guard: cfg.Guard}
	api := r.Group("/api")
	api.POST("/signup", h.signup)
	api.POST("/verify-email", h.verifyEmail)
	api.POST("/login", h.login)
	api.POST("/forgot-password", h.forgotPassword)
	api.POST("/reset-password", h.resetPassword)
	api.POST("/restore-account", h.restoreAccount)

	authed := api.Group("", Auth(cfg.Auth, log))
	authed.POST("/logout", h.logout)
	authed.DELETE("/account", h.softDeleteAccount)

	return r
}

func healthHandler(ready func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checked_at": time.Now().UTC()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "checked_at": time.Now().UTC()})
	}
}
