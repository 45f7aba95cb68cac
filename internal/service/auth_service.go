package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/whitelist-backend/internal/config"
	"github.com/stemsi/whitelist-backend/internal/model"
)

// TokenType distinguishes applicant vs staff tokens.
type TokenType string

const (
	TokenTypeApplicant TokenType = "applicant"
	TokenTypeStaff     TokenType = "staff"
)

// Claims extends JWT standard claims with the Discord identity issued by the
// site login.
type Claims struct {
	jwt.RegisteredClaims
	TokenType   TokenType `json:"token_type"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	HighestRole string    `json:"highest_role,omitempty"`
}

// Identity returns the applicant identity carried by the token.
func (c *Claims) Identity() model.Identity {
	return model.Identity{
		UserID:      c.UserID,
		Username:    c.Username,
		HighestRole: c.HighestRole,
	}
}

// IsStaff reports whether the token grants staff access.
func (c *Claims) IsStaff() bool {
	return c.TokenType == TokenTypeStaff
}

// AuthService signs and validates JWTs.
type AuthService struct {
	secret []byte
	expiry time.Duration
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{secret: []byte(cfg.JWTSecret), expiry: cfg.JWTExpiry}
}

// GenerateToken creates a signed JWT for identity.
func (s *AuthService) GenerateToken(identity model.Identity, tokenType TokenType) (string, error) {
	if identity.UserID == "" {
		return "", errors.New("user id is required")
	}
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		TokenType:   tokenType,
		UserID:      identity.UserID,
		Username:    identity.Username,
		HighestRole: identity.HighestRole,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user id")
	}

	return claims, nil
}
