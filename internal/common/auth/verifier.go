package auth

import (
	"errors"
	"fmt"
	"strings"

	pkgerrors "codegrader/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the caller resolved from a verified access token.
type Identity struct {
	UserID string
	Role   string
}

// Config describes how tokens issued by the identity service are checked.
type Config struct {
	JWTSecret string `yaml:"jwtSecret"`
	JWTIssuer string `yaml:"jwtIssuer"`
	// TokenType, when set, must match the "typ" claim (e.g. "access").
	TokenType string `yaml:"tokenType"`
}

// Verifier validates HS256 bearer tokens. It never issues tokens.
type Verifier struct {
	secret    []byte
	issuer    string
	tokenType string
}

func NewVerifier(cfg Config) (*Verifier, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &Verifier{
		secret:    []byte(cfg.JWTSecret),
		issuer:    cfg.JWTIssuer,
		tokenType: cfg.TokenType,
	}, nil
}

type tokenClaims struct {
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Verify parses raw and returns the identity in its subject claim.
// Expired tokens map to TokenExpired, anything else to TokenInvalid.
func (v *Verifier) Verify(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, pkgerrors.New(pkgerrors.Unauthorized).WithMessage("missing bearer token")
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if v.tokenType != "" && claims.TokenType != v.tokenType {
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return Identity{UserID: claims.Subject, Role: claims.Role}, nil
}
