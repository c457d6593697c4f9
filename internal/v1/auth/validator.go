package auth

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/khanmassab/flixers/internal/v1/logging"
	"go.uber.org/zap"
)

// ErrInvalidToken is the single failure the verifier exposes. Malformed
// tokens, bad signatures, expired tokens, and a missing secret all collapse
// into it so callers cannot leak which check failed.
var ErrInvalidToken = errors.New("invalid token")

// SessionClaims are the claims carried by a session token minted by the
// auth collaborator. The hub trusts name/picture from here and never from
// inbound frames.
type SessionClaims struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// TokenValidator verifies a session token and returns the verified identity.
type TokenValidator interface {
	ValidateToken(tokenString string) (*SessionClaims, error)
}

// Validator verifies compact HS256 session tokens with a symmetric secret
// configured at startup.
type Validator struct {
	secret   []byte
	audience string
}

// NewValidator creates a Validator for the given signing secret. The audience
// is enforced when non-empty.
func NewValidator(secret, audience string) (*Validator, error) {
	if secret == "" {
		return nil, errors.New("session signing secret is not set")
	}
	return &Validator{secret: []byte(secret), audience: audience}, nil
}

// ValidateToken parses and verifies a session token. On success it returns
// the carried claims; every failure yields ErrInvalidToken.
func (v *Validator) ValidateToken(tokenString string) (*SessionClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// DevValidator is a development-only verifier that accepts unsigned claims.
// It must never be used when a real audience is configured.
type DevValidator struct{}

// NewDevValidator logs a prominent warning and returns the permissive verifier.
func NewDevValidator() *DevValidator {
	logging.Warn(context.Background(), "⚠️ Token verification DISABLED for development - DO NOT USE IN PRODUCTION")
	return &DevValidator{}
}

// ValidateToken decodes the token payload without verifying the signature.
func (m *DevValidator) ValidateToken(tokenString string) (*SessionClaims, error) {
	parser := jwt.NewParser()
	claims := &SessionClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		logging.GetLogger().Debug("DevValidator failed to parse token", zap.Error(err))
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		claims.Subject = "dev-user-123"
	}
	if claims.Name == "" {
		claims.Name = "Dev User"
	}

	logging.Info(context.Background(), "DevValidator accepted unsigned token",
		zap.String("subject", claims.Subject), zap.String("name", claims.Name))
	return claims, nil
}
