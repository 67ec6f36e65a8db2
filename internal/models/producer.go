package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Producer is an authenticated submitter of tasks: a service or team
// credential that may call the enqueue and listing endpoints. Each
// producer carries a default queue its submissions route to when the
// payload names none.
type Producer struct {
	BaseModel
	Name         string `json:"name" db:"name"`
	Email        string `json:"email" db:"email"`
	PasswordHash string `json:"-" db:"password_hash"`
	DefaultQueue string `json:"default_queue" db:"default_queue"`
}

// ProducerClaims is the JWT payload minted for a producer.
type ProducerClaims struct {
	jwt.RegisteredClaims
	ProducerID   uuid.UUID `json:"producer_id"`
	ProducerName string    `json:"producer_name"`
	DefaultQueue string    `json:"default_queue"`
	Type         string    `json:"type"` // "access" or "refresh"
}

// RegisterProducerRequest creates a new producer credential.
type RegisterProducerRequest struct {
	Name         string `json:"name" validate:"required,min=1,max=255"`
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=10"`
	DefaultQueue string `json:"default_queue,omitempty" validate:"omitempty,min=1,max=255"`
}

// LoginRequest authenticates an existing producer.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest exchanges a refresh token for a new pair.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// AuthResponse carries a freshly minted token pair.
type AuthResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	TokenType    string           `json:"token_type"`
	ExpiresIn    int64            `json:"expires_in"`
	Producer     ProducerResponse `json:"producer"`
}

// ProducerResponse is the wire form of a producer, without secrets.
type ProducerResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	DefaultQueue string    `json:"default_queue"`
	CreatedAt    string    `json:"created_at"`
	UpdatedAt    string    `json:"updated_at"`
}

// ToResponse converts a Producer to its wire form.
func (p *Producer) ToResponse() ProducerResponse {
	return ProducerResponse{
		ID:           p.ID,
		Name:         p.Name,
		Email:        p.Email,
		DefaultQueue: p.DefaultQueue,
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    p.UpdatedAt.Format(time.RFC3339),
	}
}

// ToClaims mints JWT claims for this producer.
func (p *Producer) ToClaims(tokenType, issuer, audience string, expiresAt time.Time) ProducerClaims {
	now := time.Now()
	return ProducerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   p.ID.String(),
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		ProducerID:   p.ID,
		ProducerName: p.Name,
		DefaultQueue: p.DefaultQueue,
		Type:         tokenType,
	}
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail validates a producer contact address.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > 255 {
		return fmt.Errorf("email is too long (max 255 characters)")
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidatePassword enforces the producer credential policy: at least
// ten characters with both a letter and a digit.
func ValidatePassword(password string) error {
	if len(password) < 10 {
		return fmt.Errorf("password must be at least 10 characters long")
	}
	if len(password) > 128 {
		return fmt.Errorf("password is too long (max 128 characters)")
	}
	if !strings.ContainsAny(password, "0123456789") {
		return fmt.Errorf("password must contain at least one digit")
	}
	if !regexp.MustCompile(`[a-zA-Z]`).MatchString(password) {
		return fmt.Errorf("password must contain at least one letter")
	}
	return nil
}
