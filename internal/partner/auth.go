package partner

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenTTL = time.Minute

// TokenSigner issues the short-lived bearer tokens sent with every partner
// call. Tokens are HS256 with the partner's shared secret as key and the
// partner code as audience.
type TokenSigner struct {
	issuer string
	secret []byte
	now    func() time.Time
}

func NewTokenSigner(issuer, secret string) *TokenSigner {
	return &TokenSigner{issuer: issuer, secret: []byte(secret), now: time.Now}
}

// Sign returns a signed token for audience. An empty secret signs nothing and
// returns "", which adapters treat as "send no Authorization header".
func (s *TokenSigner) Sign(audience string) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", nil
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify parses a token produced by Sign. Partner simulators and tests use it
// to check what the adapters send.
func (s *TokenSigner) Verify(token, audience string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(s.issuer),
	)
	if err != nil {
		return nil, err
	}
	if !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
