package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/riftworks/taskqueue/internal/config"
	"github.com/riftworks/taskqueue/internal/models"
)

// Token type discriminators carried in the claims.
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// TokenPair is one minted access/refresh pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// JWTService signs and verifies producer tokens.
type JWTService struct {
	config *config.JWTConfig
}

// NewJWTService creates a new JWT service
func NewJWTService(config *config.JWTConfig) *JWTService {
	return &JWTService{config: config}
}

// MintPair issues an access and a refresh token for a producer.
func (s *JWTService) MintPair(producer *models.Producer) (*TokenPair, error) {
	if producer == nil {
		return nil, fmt.Errorf("producer cannot be nil")
	}

	access, err := s.sign(producer, tokenTypeAccess, s.config.AccessTokenDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := s.sign(producer, tokenTypeRefresh, s.config.RefreshTokenDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.config.AccessTokenDuration.Seconds()),
	}, nil
}

func (s *JWTService) sign(producer *models.Producer, tokenType string, ttl time.Duration) (string, error) {
	claims := producer.ToClaims(tokenType, s.config.Issuer, s.config.Audience, time.Now().Add(ttl))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.SecretKey))
}

// Verify parses a token string and returns its claims if the
// signature, issuer, audience, and validity window all check out.
func (s *JWTService) Verify(tokenString string) (*models.ProducerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.ProducerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.SecretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*models.ProducerClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Issuer != s.config.Issuer {
		return nil, fmt.Errorf("invalid issuer")
	}
	if len(claims.Audience) == 0 || claims.Audience[0] != s.config.Audience {
		return nil, fmt.Errorf("invalid audience")
	}
	return claims, nil
}

// VerifyAccess verifies tokenString and requires it to be an access
// token.
func (s *JWTService) VerifyAccess(tokenString string) (*models.ProducerClaims, error) {
	claims, err := s.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeAccess {
		return nil, fmt.Errorf("token is not an access token")
	}
	return claims, nil
}

// VerifyRefresh verifies tokenString and requires it to be a refresh
// token.
func (s *JWTService) VerifyRefresh(tokenString string) (*models.ProducerClaims, error) {
	claims, err := s.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeRefresh {
		return nil, fmt.Errorf("token is not a refresh token")
	}
	return claims, nil
}
