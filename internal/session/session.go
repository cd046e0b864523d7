// Package session issues and validates signed, short-lived session
// claims. netserver.New builds an Issuer from Config.SessionSecret, but
// the handshake neither issues nor checks a claim: ConnectAck carries only
// its success flag. It is the domain stack's concrete, swappable shape for "real
// peer authentication" noted as an Open Question in spec.md — not an
// attempt to implement it.
//
// Grounded on the teacher's internal/auth/jwt.go ProvideJWT/Parse idiom
// (jwt.MapClaims, HS256 signing, exp/iat claims), simplified from its
// ed25519-vs-HS256 dual-path to a single HS256 secret since there is no
// browser-facing login surface here to justify asymmetric keys.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidClaim is returned by Validate when the token fails signature
// or expiry verification.
var ErrInvalidClaim = errors.New("session: invalid or expired claim")

// Issuer signs and validates session claims with a single shared secret
// (spec's handshake has no public-key infrastructure to speak of).
type Issuer struct {
	secret []byte
	maxAge time.Duration
}

// NewIssuer returns an Issuer using secret to sign claims, each valid
// for maxAge from issuance.
func NewIssuer(secret []byte, maxAge time.Duration) *Issuer {
	return &Issuer{secret: secret, maxAge: maxAge}
}

// Claim is the decoded content of a session token.
type Claim struct {
	Username string
	Nonce    uint16
}

// Issue signs a new claim for username/nonce, the same pair carried in
// the wire ConnectAttempt/ConnectAck exchange (spec §6).
func (iss *Issuer) Issue(username string, nonce uint16) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   username,
		"nonce": nonce,
		"iat":   now.Unix(),
		"exp":   now.Add(iss.maxAge).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(iss.secret)
	if err != nil {
		return "", fmt.Errorf("session: sign claim: %w", err)
	}
	return token, nil
}

// Validate parses and verifies raw, returning the embedded Claim.
func (iss *Issuer) Validate(raw string) (Claim, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("session: unexpected signing method %v", t.Header["alg"])
		}
		return iss.secret, nil
	})
	if err != nil || !token.Valid {
		return Claim{}, ErrInvalidClaim
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claim{}, ErrInvalidClaim
	}
	sub, _ := claims["sub"].(string)
	nonceF, _ := claims["nonce"].(float64)
	return Claim{Username: sub, Nonce: uint16(nonceF)}, nil
}
