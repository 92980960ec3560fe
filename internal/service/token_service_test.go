package service

import (
	"testing"
	"time"

	"token-sale-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTTokenService_GenerateAndValidate(t *testing.T) {
	svc := NewJWTTokenService("test-secret-key", time.Hour, "token-sale-engine")
	accountID := uuid.New()

	token, expiry, err := svc.Generate(accountID, domain.RoleOwner)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiry, 5*time.Second)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, accountID, claims.AccountID)
	assert.Equal(t, domain.RoleOwner, claims.Role)
}

func TestJWTTokenService_Validate_WrongSecret(t *testing.T) {
	svc := NewJWTTokenService("secret-a", time.Hour, "token-sale-engine")
	other := NewJWTTokenService("secret-b", time.Hour, "token-sale-engine")

	token, _, err := svc.Generate(uuid.New(), domain.RoleInvestor)
	require.NoError(t, err)

	_, err = other.Validate(token)
	assert.Error(t, err)
}

func TestJWTTokenService_Validate_Expired(t *testing.T) {
	svc := NewJWTTokenService("test-secret-key", -time.Minute, "token-sale-engine")

	token, _, err := svc.Generate(uuid.New(), domain.RoleInvestor)
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.Error(t, err)
}

func TestJWTTokenService_Validate_Garbage(t *testing.T) {
	svc := NewJWTTokenService("test-secret-key", time.Hour, "token-sale-engine")

	_, err := svc.Validate("not.a.jwt")
	assert.Error(t, err)
}
