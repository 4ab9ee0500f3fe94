package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carried in Circles access tokens. Subject is the user id.
type Claims struct {
	jwt.StandardClaims
	Email string `json:"email,omitempty"`
}

// TokenVerifier validates HS256 access tokens.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses and validates a token, returning its claims.
func (v *TokenVerifier) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Sign issues a token for the given user. Used by tests and local tooling; the
// production issuer lives outside this service.
func (v *TokenVerifier) Sign(userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   userID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
		Email: email,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// ParseUnverified extracts claims without checking the signature. The client
// session uses it to read its own identity out of a token it already trusts.
func ParseUnverified(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.Parser{}
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
