package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

// UserClaimsKey is the fiber Locals / context key holding *UserClaims.
const UserClaimsKey contextKey = "user_claims"

// ErrTokenWithoutActor is returned for a valid token that names no actor.
var ErrTokenWithoutActor = errors.New("token names no actor")

// UserClaims identifies the actor behind a request. The actor id travels as the
// standard subject; user_id is still read from older tokens.
type UserClaims struct {
	UserID string   `json:"user_id,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 bearer tokens bound to one issuer.
type Tokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokens(secret, issuer string) *Tokens {
	return &Tokens{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a token for actorID that expires after ttl.
func (t *Tokens) Issue(actorID string, roles []string, ttl time.Duration) (string, error) {
	if actorID == "" {
		return "", ErrTokenWithoutActor
	}
	now := t.now()
	claims := UserClaims{
		UserID: actorID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   actorID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify checks signature, issuer and expiry and returns the claims with UserID filled in.
func (t *Tokens) Verify(tokenString string) (*UserClaims, error) {
	claims := &UserClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, ErrTokenWithoutActor
	}
	return claims, nil
}
