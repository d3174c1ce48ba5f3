package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UsernameKey contextKey = "username"
)

var (
	errMissingHeader = errors.New("missing authorization header")
	errBadHeader     = errors.New("invalid authorization header format")
	errBadClaims     = errors.New("invalid token claims")
	errInvalidToken  = errors.New("invalid token")
)

// identity is what a verified token says about the caller
type identity struct {
	userID   string
	username string
}

// AuthMiddleware rejects requests without a valid bearer token and
// stores the caller's user id (and username when present) in the context
func AuthMiddleware(jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := authenticate(r, jwtSecret)
			if err != nil {
				logger.Debug("Authentication failed", zap.Error(err))
				RespondWithError(w, http.StatusUnauthorized, err.Error())
				return
			}

			logger.Debug("User authenticated", zap.String("user_id", id.userID))
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
		})
	}
}

// OptionalAuthMiddleware lets anonymous requests through but still rejects
// a bearer token that fails verification
func OptionalAuthMiddleware(jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := authenticate(r, jwtSecret)
			switch {
			case errors.Is(err, errMissingHeader):
				next.ServeHTTP(w, r)
			case err != nil:
				logger.Debug("Authentication failed", zap.Error(err))
				RespondWithError(w, http.StatusUnauthorized, err.Error())
			default:
				next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
			}
		})
	}
}

func authenticate(r *http.Request, jwtSecret string) (identity, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return identity{}, errMissingHeader
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return identity{}, errBadHeader
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return identity{}, jwt.ErrTokenExpired
		}
		return identity{}, errInvalidToken
	}
	if !token.Valid {
		return identity{}, errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return identity{}, errBadClaims
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return identity{}, errBadClaims
	}
	username, _ := claims["username"].(string)

	return identity{userID: userID, username: username}, nil
}

func withIdentity(ctx context.Context, id identity) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, id.userID)
	if id.username != "" {
		ctx = context.WithValue(ctx, UsernameKey, id.username)
	}
	return ctx
}

// GetUserID extracts user ID from request context
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// GetUsername extracts the username claim from request context
func GetUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UsernameKey).(string)
	return username, ok
}
