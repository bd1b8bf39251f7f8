package httpapi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = 24 * time.Hour

const tokenIssuer = "reticulum-bridge"

// JWTClaims are the claims carried by an API token.
type JWTClaims struct {
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

// JWTAuth issues and verifies HS256 bearer tokens.
type JWTAuth struct {
	secretKey []byte
	ttl       time.Duration
}

// NewJWTAuth creates a token authority. A non-positive ttl means DefaultTokenTTL.
func NewJWTAuth(secretKey string, ttl time.Duration) *JWTAuth {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &JWTAuth{
		secretKey: []byte(secretKey),
		ttl:       ttl,
	}
}

// GenerateToken signs a token for clientID.
func (j *JWTAuth) GenerateToken(clientID string) (string, time.Time, error) {
	if clientID == "" {
		return "", time.Time{}, errors.New("clientID cannot be empty")
	}

	now := time.Now()
	expiresAt := now.Add(j.ttl)
	claims := JWTClaims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies signature, issuer and expiry and returns the claims.
// A leading "Bearer " is ignored.
func (j *JWTAuth) ValidateToken(tokenString string) (*JWTClaims, error) {
	tokenString = strings.TrimPrefix(strings.TrimSpace(tokenString), "Bearer ")
	if tokenString == "" {
		return nil, errors.New("token cannot be empty")
	}

	claims := &JWTClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return j.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims.ClientID == "" {
		return nil, errors.New("token has no client id")
	}
	return claims, nil
}
