package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/goph-accounts/internal/authctx"
	"github.com/and161185/goph-accounts/internal/errs"
	"github.com/and161185/goph-accounts/internal/metrics"
	"github.com/and161185/goph-accounts/internal/service"
)

// Logger writes a concise structured access log for each request.
func Logger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if status >= http.StatusInternalServerError {
			log.Error("request", fields...)
			return
		}
		log.Info("request", fields...)
	}
}

// Recovery converts panics into a 500 response and logs the error.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.String("path", c.Request.URL.Path),
					zap.Any("error", r),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error."})
			}
		}()
		c.Next()
	}
}

// Metrics records request latency for each HTTP request.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.APILatency.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// Auth resolves "Authorization: Bearer <token>" into the request context.
// A missing header passes through unauthenticated; a bad token is answered with 401.
func Auth(auth Authenticator, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			c.Next()
			return
		}

		acc, err := auth.Authenticate(c.Request.Context(), strings.TrimSpace(authz[7:]))
		if err != nil {
			if !errors.Is(err, errs.ErrUnauthorized) {
				log.Error("authenticate", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error."})
				return
			}
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": service.MsgUnauthenticated})
			return
		}

		c.Request = c.Request.WithContext(authctx.WithAccountID(c.Request.Context(), acc.ID))
		c.Next()
	}
}

// NotFoundHandler returns a JSON 404 response for unknown routes.
func NotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "Route " + c.Request.URL.Path + " not found."})
}
