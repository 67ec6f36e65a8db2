package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/riftworks/taskqueue/internal/config"
	"github.com/riftworks/taskqueue/internal/database"
	"github.com/riftworks/taskqueue/internal/models"
)

// Typed authentication errors, mapped to HTTP statuses by the handler.
var (
	ErrProducerExists      = errors.New("producer already registered")
	ErrProducerNotFound    = errors.New("producer not found")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrValidationFailed    = errors.New("validation error")
)

// Service authenticates task producers against the producers table
// and hands out JWT pairs for the submission surface.
type Service struct {
	producers database.ProducerRepository
	jwtSvc    *JWTService
	logger    *slog.Logger
	config    *config.Config
}

// NewService creates a new authentication service
func NewService(producers database.ProducerRepository, jwtSvc *JWTService, logger *slog.Logger, config *config.Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		producers: producers,
		jwtSvc:    jwtSvc,
		logger:    logger,
		config:    config,
	}
}

// Register creates a producer credential and returns its first token
// pair. The default queue falls back to the engine-wide default when
// the request names none.
func (s *Service) Register(ctx context.Context, req models.RegisterProducerRequest) (*models.AuthResponse, error) {
	if err := models.ValidateEmail(req.Email); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if err := models.ValidatePassword(req.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if req.Name == "" || len(req.Name) > 255 {
		return nil, fmt.Errorf("%w: producer name must be 1-255 characters", ErrValidationFailed)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	producer := &models.Producer{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		DefaultQueue: req.DefaultQueue,
	}
	if producer.DefaultQueue == "" {
		producer.DefaultQueue = s.config.Queue.DefaultQueueName
	}

	if err := s.producers.Create(ctx, producer); err != nil {
		if errors.Is(err, database.ErrProducerExists) {
			return nil, ErrProducerExists
		}
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	s.logger.Info("producer registered",
		"producer_id", producer.ID,
		"producer_name", producer.Name,
		"default_queue", producer.DefaultQueue)

	return s.respond(producer)
}

// Login authenticates a producer by email and password.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	if err := models.ValidateEmail(req.Email); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if req.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrValidationFailed)
	}

	producer, err := s.producers.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, database.ErrProducerNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load producer: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(producer.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	s.logger.Info("producer logged in", "producer_id", producer.ID, "producer_name", producer.Name)
	return s.respond(producer)
}

// Refresh exchanges a valid refresh token for a fresh pair, reloading
// the producer so revoked credentials stop refreshing.
func (s *Service) Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.AuthResponse, error) {
	claims, err := s.jwtSvc.VerifyRefresh(req.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRefreshToken, err)
	}

	producer, err := s.producers.GetByID(ctx, claims.ProducerID)
	if err != nil {
		if errors.Is(err, database.ErrProducerNotFound) {
			return nil, ErrProducerNotFound
		}
		return nil, fmt.Errorf("failed to load producer: %w", err)
	}

	return s.respond(producer)
}

// ValidateAccessToken verifies an access token and loads its producer.
func (s *Service) ValidateAccessToken(ctx context.Context, tokenString string) (*models.Producer, error) {
	claims, err := s.jwtSvc.VerifyAccess(tokenString)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	producer, err := s.producers.GetByID(ctx, claims.ProducerID)
	if err != nil {
		if errors.Is(err, database.ErrProducerNotFound) {
			return nil, ErrProducerNotFound
		}
		return nil, fmt.Errorf("failed to load producer: %w", err)
	}
	return producer, nil
}

func (s *Service) respond(producer *models.Producer) (*models.AuthResponse, error) {
	pair, err := s.jwtSvc.MintPair(producer)
	if err != nil {
		return nil, fmt.Errorf("failed to mint tokens: %w", err)
	}
	return &models.AuthResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
		Producer:     producer.ToResponse(),
	}, nil
}
