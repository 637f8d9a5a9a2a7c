package auth

import (
	"fmt"
	"hobby-relay/errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "hobby-relay"

// Claims is what the registration service puts in the handshake token.
type Claims struct {
	Name  string `json:"name" validate:"required,max=64"`
	Hobby string `json:"hobby" validate:"max=128"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// GenerateToken signs a token for name and hobby, valid for ttl.
func (v *Verifier) GenerateToken(name, hobby string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Name:  name,
		Hobby: hobby,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify parses the token, checks signature, expiry and claims.
// Every failure is reported as ErrUnauthorized.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: %w", errors.ErrUnauthorized, jwt.ErrSignatureInvalid)
	}
	if err := ValidateClaims(claims); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrUnauthorized, err)
	}
	return claims, nil
}
