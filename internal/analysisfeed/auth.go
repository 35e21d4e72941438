package analysisfeed

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AuthManager validates the optional bearer token on the analysis feed. If
// no secret is configured the feed is open.
type AuthManager struct {
	secret []byte
}

// NewAuthManager builds an AuthManager. An empty secret disables auth.
func NewAuthManager(secret string) *AuthManager {
	return &AuthManager{secret: []byte(secret)}
}

// ValidateToken parses and validates tokenString, returning the subject
// claim ("sub") as the caller's identity.
func (a *AuthManager) ValidateToken(tokenString string) (string, error) {
	if len(a.secret) == 0 {
		return "anonymous", nil
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("analysisfeed: parse token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("analysisfeed: invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("analysisfeed: invalid token claims")
	}
	if sub, ok := claims["sub"].(string); ok {
		return sub, nil
	}
	return "", fmt.Errorf("analysisfeed: sub claim not found in token")
}

// ExtractTokenFromHeader pulls the bearer token out of an Authorization
// header value.
func (a *AuthManager) ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", fmt.Errorf("analysisfeed: authorization header is empty")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) == 2 {
		if strings.ToLower(parts[0]) != "bearer" {
			return "", fmt.Errorf("analysisfeed: invalid authorization header format")
		}
		return parts[1], nil
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "", fmt.Errorf("analysisfeed: invalid authorization header format")
}
