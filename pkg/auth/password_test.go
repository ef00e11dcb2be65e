package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name       string
		password   string
		shouldFail bool
	}{
		{name: "valid strong password", password: "SecureP@ss123"},
		{name: "valid with symbols", password: "MyP@ssw0rd!"},
		{name: "too short", password: "Pass@1", shouldFail: true},
		{name: "missing uppercase", password: "securepass@123", shouldFail: true},
		{name: "missing lowercase", password: "SECUREPASS@123", shouldFail: true},
		{name: "missing digit", password: "SecurePass@xyz", shouldFail: true},
		{name: "missing special character", password: "SecurePass123", shouldFail: true},
		{name: "common password rejected", password: "password123", shouldFail: true},
		{name: "too long", password: "Aa1@" + strings.Repeat("x", 150), shouldFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.shouldFail {
				require.Error(t, err)
				assert.Equal(t, "invalid password", err.Error())
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidatePIN(t *testing.T) {
	assert.NoError(t, ValidatePIN("12345"))
	assert.NoError(t, ValidatePIN("00000"))
	assert.ErrorIs(t, ValidatePIN("1234"), ErrInvalidPINFormat)
	assert.ErrorIs(t, ValidatePIN("123456"), ErrInvalidPINFormat)
	assert.ErrorIs(t, ValidatePIN("12a45"), ErrInvalidPINFormat)
	assert.ErrorIs(t, ValidatePIN(""), ErrInvalidPINFormat)
}

func TestHasher_HashAndVerify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("SecureP@ss123")
	require.NoError(t, err)
	assert.NotEqual(t, "SecureP@ss123", hash)

	ok, err := h.Verify(hash, "SecureP@ss123")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify(hash, "WrongPassword123!")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasher_MalformedHashIsError(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	ok, err := h.Verify("not-a-bcrypt-hash", "12345")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestHasher_RejectsEmptySecret(t *testing.T) {
	_, err := NewHasher(bcrypt.MinCost).Hash("")
	assert.Error(t, err)
}

func TestNewHasher_OutOfRangeCostFallsBack(t *testing.T) {
	assert.Equal(t, BcryptCost, NewHasher(0).Cost)
	assert.Equal(t, BcryptCost, NewHasher(99).Cost)
	assert.Equal(t, 10, NewHasher(10).Cost)
}
