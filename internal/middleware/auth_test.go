package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// Feature: swap-matching, Property 12: Protected endpoints reject missing tokens
// Validates: AuthMiddleware
func TestProperty_ProtectedEndpointsRejectMissingTokens(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("requests without authorization header are rejected", prop.ForAll(
		func(pathSuffix string, method string) bool {
			handler := AuthMiddleware("test-secret", zap.NewNop())(okHandler())

			path := "/" + pathSuffix
			if path == "/" {
				path = "/test"
			}

			req := httptest.NewRequest(method, path, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			return w.Code == http.StatusUnauthorized
		},
		gen.AlphaString(),
		gen.OneConstOf("GET", "POST", "PUT", "DELETE"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: swap-matching, Property 13: Expired tokens are rejected
// Validates: AuthMiddleware
func TestProperty_ExpiredTokensAreRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)
	secret := "test-secret"

	properties.Property("expired tokens are rejected with 401", prop.ForAll(
		func(userID string) bool {
			handler := AuthMiddleware(secret, zap.NewNop())(okHandler())
			tokenString := signToken(t, secret, jwt.MapClaims{
				"user_id": userID,
				"exp":     time.Now().Add(-1 * time.Hour).Unix(),
			})

			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set("Authorization", "Bearer "+tokenString)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			return w.Code == http.StatusUnauthorized
		},
		gen.Identifier(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: swap-matching, Property 14: Valid tokens expose the caller
// Validates: AuthMiddleware, GetUserID
func TestProperty_ValidTokensAllowProcessing(t *testing.T) {
	properties := gopter.NewProperties(nil)
	secret := "test-secret"

	properties.Property("valid tokens put user id and username in context", prop.ForAll(
		func(userID string, username string) bool {
			tokenString := signToken(t, secret, jwt.MapClaims{
				"user_id":  userID,
				"username": username,
				"exp":      time.Now().Add(1 * time.Hour).Unix(),
			})

			handlerCalled := false
			handler := AuthMiddleware(secret, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				ctxUserID, ok1 := GetUserID(r.Context())
				ctxUsername, ok2 := GetUsername(r.Context())
				if !ok1 || !ok2 || ctxUserID != userID || ctxUsername != username {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set("Authorization", "Bearer "+tokenString)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			return handlerCalled && w.Code == http.StatusOK
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestAuthMiddleware_UsernameOptional(t *testing.T) {
	secret := "test-secret"
	tokenString := signToken(t, secret, jwt.MapClaims{"user_id": "u-1"})

	var hasUsername bool
	handler := AuthMiddleware(secret, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasUsername = GetUsername(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK || hasUsername {
		t.Fatalf("expected 200 without username, got %d (username=%v)", w.Code, hasUsername)
	}
}

func TestAuthMiddleware_MissingUserIDRejected(t *testing.T) {
	secret := "test-secret"
	tokenString := signToken(t, secret, jwt.MapClaims{"username": "ghost"})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	w := httptest.NewRecorder()
	AuthMiddleware(secret, zap.NewNop())(okHandler()).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthMiddleware_WrongSecretRejected(t *testing.T) {
	tokenString := signToken(t, "other-secret", jwt.MapClaims{"user_id": "u-1"})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	w := httptest.NewRecorder()
	AuthMiddleware("test-secret", zap.NewNop())(okHandler()).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestOptionalAuthMiddleware(t *testing.T) {
	secret := "test-secret"
	var seen string
	handler := OptionalAuthMiddleware(secret, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// anonymous
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
	if w.Code != http.StatusOK || seen != "" {
		t.Fatalf("anonymous request: status %d, user %q", w.Code, seen)
	}

	// authenticated
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, secret, jwt.MapClaims{"user_id": "u-9"}))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK || seen != "u-9" {
		t.Fatalf("authenticated request: status %d, user %q", w.Code, seen)
	}

	// broken token
	req = httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer nonsense")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("broken token: expected 401, got %d", w.Code)
	}
}

// Feature: swap-matching, Property 15: Malformed tokens are rejected
// Validates: AuthMiddleware
func TestProperty_InvalidTokenFormatRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("invalid token formats are rejected", prop.ForAll(
		func(invalidToken string) bool {
			handler := AuthMiddleware("test-secret", zap.NewNop())(okHandler())

			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set("Authorization", "Bearer "+invalidToken)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			return w.Code == http.StatusUnauthorized
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
