package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftworks/taskqueue/internal/config"
	"github.com/riftworks/taskqueue/internal/models"
)

func testJWTService() *JWTService {
	return NewJWTService(&config.JWTConfig{
		SecretKey:            "test-secret-key-for-producers",
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: 24 * time.Hour,
		Issuer:               "taskqueue-test",
		Audience:             "taskqueue-api-test",
	})
}

func testAuthProducer() *models.Producer {
	p := &models.Producer{
		Name:         "reporting-service",
		Email:        "reports@example.com",
		DefaultQueue: "reports",
	}
	p.ID = models.NewID()
	return p
}

func TestMintPairAndVerify(t *testing.T) {
	svc := testJWTService()
	producer := testAuthProducer()

	pair, err := svc.MintPair(producer)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64(900), pair.ExpiresIn)

	claims, err := svc.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, producer.ID, claims.ProducerID)
	assert.Equal(t, "reporting-service", claims.ProducerName)
	assert.Equal(t, "reports", claims.DefaultQueue)

	refreshClaims, err := svc.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, producer.ID, refreshClaims.ProducerID)
}

func TestMintPairRequiresProducer(t *testing.T) {
	_, err := testJWTService().MintPair(nil)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	svc := testJWTService()
	pair, err := svc.MintPair(testAuthProducer())
	require.NoError(t, err)

	_, err = svc.VerifyAccess(pair.RefreshToken)
	assert.Error(t, err)

	_, err = svc.VerifyRefresh(pair.AccessToken)
	assert.Error(t, err)
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	svc := testJWTService()
	pair, err := svc.MintPair(testAuthProducer())
	require.NoError(t, err)

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.Verify("not.a.token")
		assert.Error(t, err)
	})

	t.Run("different secret", func(t *testing.T) {
		other := NewJWTService(&config.JWTConfig{
			SecretKey:            "a-completely-different-secret",
			AccessTokenDuration:  15 * time.Minute,
			RefreshTokenDuration: 24 * time.Hour,
			Issuer:               "taskqueue-test",
			Audience:             "taskqueue-api-test",
		})
		_, err := other.Verify(pair.AccessToken)
		assert.Error(t, err)
	})

	t.Run("different issuer", func(t *testing.T) {
		other := NewJWTService(&config.JWTConfig{
			SecretKey:            "test-secret-key-for-producers",
			AccessTokenDuration:  15 * time.Minute,
			RefreshTokenDuration: 24 * time.Hour,
			Issuer:               "someone-else",
			Audience:             "taskqueue-api-test",
		})
		_, err := other.Verify(pair.AccessToken)
		assert.Error(t, err)
	})
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc := NewJWTService(&config.JWTConfig{
		SecretKey:            "test-secret-key-for-producers",
		AccessTokenDuration:  -time.Minute, // already expired at mint time
		RefreshTokenDuration: 24 * time.Hour,
		Issuer:               "taskqueue-test",
		Audience:             "taskqueue-api-test",
	})

	pair, err := svc.MintPair(testAuthProducer())
	require.NoError(t, err)

	_, err = svc.VerifyAccess(pair.AccessToken)
	assert.Error(t, err)
}
