package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewJWTManager(t *testing.T) {
	secret := "test-secret-key-for-testing-purposes"
	accessExpiry := 15 * time.Minute

	manager := NewJWTManager(secret, accessExpiry)

	assert.NotNil(t, manager)
	assert.Equal(t, secret, manager.secretKey)
	assert.Equal(t, accessExpiry, manager.accessTokenDuration)
}

func TestGenerateAccessToken(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute)
	userID := uuid.New()

	token, err := manager.GenerateAccessToken(userID, "testuser", "user")

	assert.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestValidateToken_ValidToken(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute)
	userID := uuid.New()

	// Generate token
	token, err := manager.GenerateAccessToken(userID, "testuser", "user")
	assert.NoError(t, err)

	// Validate token
	claims, err := manager.ValidateToken(token)

	assert.NoError(t, err)
	assert.NotNil(t, claims)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "testuser", claims.Username)
	assert.Equal(t, "user", claims.Role)
}

func TestValidateToken_ExpiredToken(t *testing.T) {
	// Create manager with very short expiry
	manager := NewJWTManager("test-secret", 1*time.Nanosecond)
	userID := uuid.New()

	// Generate token
	token, err := manager.GenerateAccessToken(userID, "testuser", "user")
	assert.NoError(t, err)

	// Wait for token to expire
	time.Sleep(10 * time.Millisecond)

	// Validate expired token
	claims, err := manager.ValidateToken(token)

	assert.Error(t, err)
	assert.Nil(t, claims)
	assert.Contains(t, err.Error(), "expired")
}

func TestValidateToken_InvalidToken(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute)

	invalidToken := "invalid.token.here"

	claims, err := manager.ValidateToken(invalidToken)

	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	// Generate with one secret
	manager1 := NewJWTManager("secret-1", 15*time.Minute)
	userID := uuid.New()
	token, err := manager1.GenerateAccessToken(userID, "testuser", "user")
	assert.NoError(t, err)

	// Validate with different secret
	manager2 := NewJWTManager("secret-2", 15*time.Minute)
	claims, err := manager2.ValidateToken(token)

	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestExtractUserID(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute)
	userID := uuid.New()

	// Generate token
	token, err := manager.GenerateAccessToken(userID, "testuser", "user")
	assert.NoError(t, err)

	// Extract user ID
	extractedID, err := manager.ExtractUserID(token)
	assert.NoError(t, err)
	assert.Equal(t, userID, extractedID)
}

func TestTokenClaims(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute)
	userID := uuid.New()

	token, err := manager.GenerateAccessToken(userID, "testuser", "admin")
	assert.NoError(t, err)

	claims, err := manager.ValidateToken(token)
	assert.NoError(t, err)

	// Verify claims structure
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "testuser", claims.Username)
	assert.Equal(t, "admin", claims.Role)
	assert.NotZero(t, claims.IssuedAt)
	assert.NotZero(t, claims.ExpiresAt)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt.Time))
	assert.Equal(t, "peerpractice-auth", claims.Issuer)
	assert.Contains(t, claims.Audience, "peerpractice-api")
	assert.Equal(t, userID.String(), claims.Subject)
}
