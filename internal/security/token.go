package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// PrincipalClaims is what the identity collaborator signs for us: a stable
// owner identifier and a role. The core never issues or refreshes tokens.
type PrincipalClaims struct {
	OwnerID int64  `json:"owner_id"`
	Role    string `json:"role"` // "student", "staff", "admin"
	jwt.RegisteredClaims
}

type TokenValidator interface {
	ValidateToken(tokenString string) (*PrincipalClaims, error)
}

type tokenValidator struct {
	secret []byte
}

func NewTokenValidator(secret string) TokenValidator {
	return &tokenValidator{secret: []byte(secret)}
}

func (v *tokenValidator) ValidateToken(tokenString string) (*PrincipalClaims, error) {
	claims := &PrincipalClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.OwnerID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SignToken mints a principal token. Only exercised by tests and local
// tooling; production tokens come from the identity service.
func SignToken(secret string, ownerID int64, role string, ttl time.Duration) (string, error) {
	claims := &PrincipalClaims{
		OwnerID: ownerID,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
