package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueThenValidateRoundTripsClaim(t *testing.T) {
	iss := NewIssuer([]byte("test-secret"), time.Minute)
	token, err := iss.Issue("Alice", 0xABCD)
	require.NoError(t, err)

	claim, err := iss.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "Alice", claim.Username)
	assert.Equal(t, uint16(0xABCD), claim.Nonce)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	iss := NewIssuer([]byte("secret-a"), time.Minute)
	token, err := iss.Issue("Alice", 1)
	require.NoError(t, err)

	other := NewIssuer([]byte("secret-b"), time.Minute)
	_, err = other.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidClaim)
}

func TestValidateRejectsExpiredClaim(t *testing.T) {
	iss := NewIssuer([]byte("test-secret"), -time.Second)
	token, err := iss.Issue("Alice", 1)
	require.NoError(t, err)

	_, err = iss.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidClaim)
}
