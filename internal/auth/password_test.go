package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{"8 characters", "password", nil},
		{"long with symbols", "poster-wall-and-stickers-2026!@#", nil},
		{"unicode", "पोस्टर-दीवार", nil},
		{"7 characters", "1234567", ErrPasswordTooShort},
		{"empty", "", ErrPasswordTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, hash)
				return
			}
			require.NoError(t, err)
			assert.GreaterOrEqual(t, len(hash), 60)
			assert.True(t, CheckPassword(tt.password, hash))
		})
	}
}

func TestHashPassword_Salted(t *testing.T) {
	hash1, err := HashPassword("same-password")
	require.NoError(t, err)
	hash2, err := HashPassword("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, hash1, hash2)
}

func TestCheckPassword_Rejects(t *testing.T) {
	hash, err := HashPassword("Password123")
	require.NoError(t, err)

	assert.False(t, CheckPassword("password123", hash))
	assert.False(t, CheckPassword("", hash))
	assert.False(t, CheckPassword("Password123", "invalid-hash"))
	assert.False(t, CheckPassword("Password123", ""))
}

func TestCheckHash(t *testing.T) {
	hash, err := HashPassword("poster-wall-42")
	require.NoError(t, err)

	assert.NoError(t, CheckHash(hash))
	assert.ErrorIs(t, CheckHash("poster-wall-42"), ErrMalformedHash)
	assert.ErrorIs(t, CheckHash(""), ErrMalformedHash)
}
