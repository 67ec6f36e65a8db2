package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/riftworks/taskqueue/internal/auth"
	"github.com/riftworks/taskqueue/internal/models"
)

// Context keys the auth middleware populates for downstream handlers.
const (
	producerContextKey   = "producer"
	producerIDContextKey = "producer_id"
)

// AuthMiddleware guards the submission surface: every protected route
// requires a producer access token.
type AuthMiddleware struct {
	authService auth.AuthService
	logger      *slog.Logger
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(authService auth.AuthService, logger *slog.Logger) *AuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{authService: authService, logger: logger}
}

// RequireAuth rejects requests without a valid producer bearer token
// and stores the authenticated producer in the request context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
			c.Abort()
			return
		}

		producer, err := m.authService.ValidateAccessToken(c.Request.Context(), token)
		if err != nil {
			m.logger.Warn("rejected producer token", "error", err, "path", c.Request.URL.Path)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(producerContextKey, producer)
		c.Set(producerIDContextKey, producer.ID)
		c.Next()
	}
}

// OptionalAuth resolves a producer when a token is present but lets
// anonymous requests through.
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if producer, err := m.authService.ValidateAccessToken(c.Request.Context(), token); err == nil {
				c.Set(producerContextKey, producer)
				c.Set(producerIDContextKey, producer.ID)
			}
		}
		c.Next()
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// GetProducerFromContext returns the authenticated producer, or nil
// when the request carried no valid token.
func GetProducerFromContext(c *gin.Context) *models.Producer {
	value, exists := c.Get(producerContextKey)
	if !exists {
		return nil
	}
	producer, ok := value.(*models.Producer)
	if !ok {
		return nil
	}
	return producer
}
