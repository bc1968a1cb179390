package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/momentapp/notifier/pkg/errors"
)

// ErrMissingToken is returned when a request carries no bearer credential.
var ErrMissingToken = apperrors.Unauthorized("authentication token required")

// JWTManager verifies the access tokens issued by the account service and
// can mint tokens for tooling and tests.
type JWTManager struct {
	secret    string
	issuer    string
	accessTTL time.Duration
}

// NewJWTManager creates a new JWT manager.
func NewJWTManager(secret, issuer string, accessTTL time.Duration) *JWTManager {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	return &JWTManager{
		secret:    secret,
		issuer:    issuer,
		accessTTL: accessTTL,
	}
}

// CustomClaims extends jwt.RegisteredClaims with the user id fields the
// account service has emitted over time. ID is the current claim; UserID and
// the registered subject are accepted for older tokens.
type CustomClaims struct {
	jwt.RegisteredClaims

	ID     string `json:"id,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

// Principal returns the user id carried by the claims, preferring id, then
// user_id, then sub.
func (c *CustomClaims) Principal() string {
	switch {
	case c.ID != "":
		return c.ID
	case c.UserID != "":
		return c.UserID
	default:
		return c.RegisteredClaims.Subject
	}
}

// GenerateToken signs an access token for userID.
func (j *JWTManager) GenerateToken(userID string) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.accessTTL)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		ID: userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(j.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken validates an access token and returns the claims.
func (j *JWTManager) ValidateAccessToken(tokenString string) (*CustomClaims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(j.secret), nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeUnauthorized, "invalid token", err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, apperrors.Unauthorized("invalid token")
	}
	if claims.Principal() == "" {
		return nil, apperrors.Wrap(apperrors.ErrorTypeUnauthorized, "invalid token", errors.New("no user id claim"))
	}
	return claims, nil
}

// Authenticate validates tokenString and returns the user id it carries.
func (j *JWTManager) Authenticate(tokenString string) (string, error) {
	claims, err := j.ValidateAccessToken(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Principal(), nil
}

// GenerateSecret generates a random secret for JWT signing.
func GenerateSecret() string {
	b := make([]byte, TokenKeySize)
	_, _ = rand.Read(b)
	return base64.StdEncoding.EncodeToString(b)
}
