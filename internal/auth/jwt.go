package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey is the key type for values stored in request contexts
type contextKey string

// StoreIDKey is the context key carrying the authenticated store ID
const StoreIDKey contextKey = "store_id"

// JWTValidator handles JWT token validation for the trigger API
type JWTValidator struct {
	secret   []byte
	issuer   string
	audience string
}

// NewJWTValidator creates a new HS256 JWT validator
func NewJWTValidator(secret, issuer, audience string) (*JWTValidator, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret must not be empty")
	}
	return &JWTValidator{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
	}, nil
}

// ValidateToken validates a JWT token and returns the store ID claim
func (v *JWTValidator) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		return "", fmt.Errorf("failed to parse token: %v", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid claims")
	}

	// Validate issuer
	if iss, ok := claims["iss"].(string); !ok || iss != v.issuer {
		return "", fmt.Errorf("invalid issuer")
	}

	// Validate audience
	if aud, ok := claims["aud"].(string); !ok || aud != v.audience {
		return "", fmt.Errorf("invalid audience")
	}

	// Extract store ID
	storeID, ok := claims["store_id"].(string)
	if !ok || storeID == "" {
		return "", fmt.Errorf("missing or invalid store_id claim")
	}

	return storeID, nil
}

// Middleware wraps an HTTP handler with bearer-token authentication.
// The authenticated store ID is placed on the request context.
func (v *JWTValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			http.Error(w, `{"error":"authorization header must be a bearer token"}`, http.StatusUnauthorized)
			return
		}

		storeID, err := v.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), StoreIDKey, storeID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// StoreIDFromContext returns the authenticated store ID, if any
func StoreIDFromContext(ctx context.Context) (string, bool) {
	storeID, ok := ctx.Value(StoreIDKey).(string)
	return storeID, ok
}
