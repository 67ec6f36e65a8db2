package auth

import (
	"context"

	"github.com/riftworks/taskqueue/internal/models"
)

// AuthService is what the HTTP layer needs from the authentication
// service; *Service satisfies it, and tests substitute mocks.
type AuthService interface {
	Register(ctx context.Context, req models.RegisterProducerRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.AuthResponse, error)
	ValidateAccessToken(ctx context.Context, token string) (*models.Producer, error)
}
