package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrInvalidClaim = errors.New("invalid token claims")
)

// AccessClaims are the claims the hosted auth service puts in its access tokens
type AccessClaims struct {
	Email     string `json:"email"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject, which is the auth user id
func (c *AccessClaims) UserID() string {
	return c.Subject
}

// ExpiresAt returns the expiry, or the zero time when the token carries none
func (c *AccessClaims) ExpiresAt() time.Time {
	if c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.ExpiresAt.Time
}

// Verifier parses access tokens. With a secret it checks the HMAC signature,
// without one it only decodes the claims and checks expiry.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a Verifier. An empty secret disables signature checks.
func NewVerifier(secret string) *Verifier {
	v := &Verifier{now: time.Now}
	if secret != "" {
		v.secret = []byte(secret)
	}
	return v
}

// Verifies reports whether signatures are checked
func (v *Verifier) Verifies() bool {
	return len(v.secret) > 0
}

// Parse decodes an access token and returns its claims
func (v *Verifier) Parse(tokenString string) (*AccessClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &AccessClaims{}
	if v.Verifies() {
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return v.secret, nil
		}, jwt.WithTimeFunc(v.now))
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return nil, ErrExpiredToken
			}
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if !token.Valid {
			return nil, ErrInvalidClaim
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if exp := claims.ExpiresAt(); !exp.IsZero() && !v.now().Before(exp) {
			return nil, ErrExpiredToken
		}
	}

	if claims.Subject == "" {
		return nil, ErrInvalidClaim
	}
	return claims, nil
}

// Sign issues an HS256 token for the given claims. Production tokens are
// signed by the auth service; this is for local fixtures.
func Sign(secret string, claims AccessClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// NewClaims builds claims for a user that expire after ttl
func NewClaims(userID, email string, ttl time.Duration) AccessClaims {
	now := time.Now()
	return AccessClaims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}
