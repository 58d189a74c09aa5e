package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/toolcrib-backend/pkg/config"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
)

var signingMethod = jwt.SigningMethodHS256

var (
	errNoSecret   = errors.New("jwt secret is required")
	errNoIssuer   = errors.New("jwt issuer is required")
	errNoLifetime = errors.New("jwt expiration minutes must be positive")
	errNoSubject  = errors.New("user id is required")
)

// MintAccessToken signs claims for payload valid from now for the configured
// lifetime. Production tokens come from the identity provider; local tooling and
// tests mint their own.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	if err := checkSigningConfig(cfg); err != nil {
		return "", err
	}
	if cfg.Expiration() <= 0 {
		return "", errNoLifetime
	}
	if err := checkSubject(payload.UserID, payload.Role); err != nil {
		return "", err
	}

	id := strings.TrimSpace(payload.JTI)
	if id == "" {
		id = uuid.NewString()
	}
	issued := now.UTC()

	signed, err := jwt.NewWithClaims(signingMethod, AccessTokenClaims{
		UserID: payload.UserID,
		Role:   payload.Role,
		Name:   strings.TrimSpace(payload.Name),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(cfg.Expiration())),
		},
	}).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry. Expired tokens keep
// jwt.ErrTokenExpired in the chain so callers can tell them apart.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, errNoSecret
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	claims := &AccessTokenClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, secretKey(cfg.Secret)); err != nil {
		return nil, err
	}
	if err := checkSubject(claims.UserID, claims.Role); err != nil {
		return nil, fmt.Errorf("token claims: %w", err)
	}
	return claims, nil
}

func secretKey(secret string) jwt.Keyfunc {
	return func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}
}

func checkSigningConfig(cfg config.JWTConfig) error {
	switch {
	case cfg.Secret == "":
		return errNoSecret
	case cfg.Issuer == "":
		return errNoIssuer
	}
	return nil
}

func checkSubject(userID uuid.UUID, role enums.Role) error {
	if userID == uuid.Nil {
		return errNoSubject
	}
	if !role.IsValid() {
		return fmt.Errorf("invalid role %q", role)
	}
	return nil
}
