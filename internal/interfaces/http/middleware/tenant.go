package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Context keys used to store tenant information in gin.Context
const (
	TenantIDKey     = "tenant_id"
	TenantHeaderKey = "X-Tenant-ID"
)

// TenantMiddlewareConfig holds configuration for tenant middleware
type TenantMiddlewareConfig struct {
	// SkipPaths are paths that don't require tenant context (e.g., health check)
	SkipPaths []string
	// Required determines if tenant context is mandatory
	Required bool
	// Logger for middleware logging
	Logger *zap.Logger
}

// DefaultTenantConfig returns default tenant middleware configuration
func DefaultTenantConfig() TenantMiddlewareConfig {
	return TenantMiddlewareConfig{
		SkipPaths: []string{"/health", "/healthz", "/ready", "/api/v1/health"},
		Required:  true,
		Logger:    nil,
	}
}

// TenantMiddleware extracts the tenant ID from the X-Tenant-ID header
func TenantMiddleware() gin.HandlerFunc {
	return TenantMiddlewareWithConfig(DefaultTenantConfig())
}

// TenantMiddlewareWithConfig returns tenant middleware with custom configuration
func TenantMiddlewareWithConfig(cfg TenantMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check if path should be skipped
		path := c.Request.URL.Path
		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath || strings.HasPrefix(path, skipPath+"/") {
				c.Next()
				return
			}
		}

		tenantID := c.GetHeader(TenantHeaderKey)

		// Validate tenant ID format if present
		if tenantID != "" {
			if _, err := uuid.Parse(tenantID); err != nil {
				respondUnauthorized(c, "Invalid tenant ID format")
				return
			}
		}

		if tenantID == "" && cfg.Required {
			respondUnauthorized(c, "Tenant identification required")
			return
		}

		if tenantID != "" {
			// Set in gin context for easy access in handlers
			c.Set(TenantIDKey, tenantID)

			// Set in request context for service layer access
			ctx := c.Request.Context()
			log := logger.FromContext(ctx)
			ctx, _ = logger.WithTenantID(ctx, log, tenantID)
			c.Request = c.Request.WithContext(ctx)

			if cfg.Logger != nil {
				cfg.Logger.Debug("Tenant identified",
					zap.String("tenant_id", tenantID),
				)
			}
		}

		c.Next()
	}
}

// respondUnauthorized sends an unauthorized response
func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	})
}

// GetTenantID retrieves the tenant ID from gin.Context
func GetTenantID(c *gin.Context) string {
	if tenantID, exists := c.Get(TenantIDKey); exists {
		if tid, ok := tenantID.(string); ok {
			return tid
		}
	}
	return ""
}

// GetTenantUUID retrieves the tenant ID as UUID from gin.Context
func GetTenantUUID(c *gin.Context) (uuid.UUID, error) {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(tenantID)
}

// MustGetTenantUUID retrieves the tenant ID as UUID or panics if not found
// Use this only in handlers where tenant is guaranteed to exist
func MustGetTenantUUID(c *gin.Context) uuid.UUID {
	tenantUUID, err := GetTenantUUID(c)
	if err != nil || tenantUUID == uuid.Nil {
		panic("valid tenant_id not found in context")
	}
	return tenantUUID
}

// OptionalTenantMiddleware creates middleware that doesn't require tenant
func OptionalTenantMiddleware() gin.HandlerFunc {
	cfg := DefaultTenantConfig()
	cfg.Required = false
	return TenantMiddlewareWithConfig(cfg)
}
