package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/riftworks/taskqueue/internal/api/middleware"
	"github.com/riftworks/taskqueue/internal/auth"
	"github.com/riftworks/taskqueue/internal/models"
)

// AuthHandler serves producer registration and token endpoints.
type AuthHandler struct {
	authService auth.AuthService
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService auth.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Register handles producer registration
//
//	@Summary		Register a producer
//	@Description	Creates a producer credential that may submit tasks, and returns its first token pair
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			request	body		models.RegisterProducerRequest	true	"Producer registration details"
//	@Success		201		{object}	models.AuthResponse				"Producer registered"
//	@Failure		400		{object}	models.ErrorResponse			"Validation error"
//	@Failure		409		{object}	models.ErrorResponse			"Producer already exists"
//	@Router			/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterProducerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		h.renderAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Login handles producer authentication
//
//	@Summary		Log a producer in
//	@Description	Exchanges email and password for a token pair
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			request	body		models.LoginRequest		true	"Producer credentials"
//	@Success		200		{object}	models.AuthResponse		"Authenticated"
//	@Failure		401		{object}	models.ErrorResponse	"Invalid credentials"
//	@Router			/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		h.renderAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RefreshToken handles token refresh
//
//	@Summary		Refresh tokens
//	@Description	Exchanges a valid refresh token for a fresh token pair
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			request	body		models.RefreshTokenRequest	true	"Refresh token"
//	@Success		200		{object}	models.AuthResponse			"Tokens refreshed"
//	@Failure		401		{object}	models.ErrorResponse		"Invalid refresh token"
//	@Router			/auth/refresh [post]
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req models.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	resp, err := h.authService.Refresh(c.Request.Context(), req)
	if err != nil {
		h.renderAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Logout acknowledges a logout. Tokens are stateless, so the client
// simply discards them; the endpoint exists for API symmetry.
//
//	@Summary	Log a producer out
//	@Tags		Authentication
//	@Produce	json
//	@Success	200	{object}	map[string]string	"Logged out"
//	@Router		/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the authenticated producer
//
//	@Summary	Current producer
//	@Tags		Authentication
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	models.ProducerResponse	"Producer details"
//	@Failure	401	{object}	models.ErrorResponse	"Unauthorized"
//	@Router		/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	producer := middleware.GetProducerFromContext(c)
	if producer == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
		return
	}
	c.JSON(http.StatusOK, producer.ToResponse())
}

// renderAuthError maps service-level auth errors onto HTTP statuses.
func (h *AuthHandler) renderAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrValidationFailed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrProducerExists):
		c.JSON(http.StatusConflict, gin.H{"error": "Producer already registered"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
	case errors.Is(err, auth.ErrInvalidRefreshToken), errors.Is(err, auth.ErrProducerNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
	default:
		h.logger.Error("auth operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Authentication failed"})
	}
}
