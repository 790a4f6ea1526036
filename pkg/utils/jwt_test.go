package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens_IssueAndVerify(t *testing.T) {
	tokens := NewTokens("test-secret", "go-bulkops")

	token, err := tokens.Issue("user-42", []string{"admin"}, time.Hour)
	require.NoError(t, err)

	claims, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.UserID)
	assert.Equal(t, "user-42", claims.Subject)
	assert.Equal(t, "go-bulkops", claims.Issuer)
	assert.Equal(t, []string{"admin"}, claims.Roles)
}

func TestTokens_Rejects(t *testing.T) {
	issuer := NewTokens("one", "go-bulkops")
	token, err := issuer.Issue("user-42", nil, time.Hour)
	require.NoError(t, err)

	_, err = NewTokens("two", "go-bulkops").Verify(token)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid, "wrong secret")

	_, err = NewTokens("one", "another-service").Verify(token)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	expired, err := issuer.Issue("user-42", nil, -time.Minute)
	require.NoError(t, err)
	_, err = issuer.Verify(expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokens_RejectsOtherAlgorithms(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, UserClaims{
		UserID: "user-42",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "go-bulkops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewTokens("secret", "go-bulkops").Verify(token)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestTokens_RequiresExpiryAndActor(t *testing.T) {
	tokens := NewTokens("secret", "go-bulkops")

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, UserClaims{
		UserID:           "user-42",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "go-bulkops"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = tokens.Verify(noExpiry)
	assert.ErrorIs(t, err, jwt.ErrTokenRequiredClaimMissing)

	anonymous, err := jwt.NewWithClaims(jwt.SigningMethodHS256, UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "go-bulkops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = tokens.Verify(anonymous)
	assert.ErrorIs(t, err, ErrTokenWithoutActor)

	_, err = tokens.Issue("", nil, time.Hour)
	assert.ErrorIs(t, err, ErrTokenWithoutActor)
}

func TestTokens_SubjectOnly(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "go-bulkops",
			Subject:   "svc-importer",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	claims, err := NewTokens("secret", "go-bulkops").Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "svc-importer", claims.UserID)
}
