package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	apperrors "wasteops/pkg/errors"
	httputil "wasteops/pkg/http"
	"wasteops/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

// TokenQueryParam carries the token for WebSocket clients that cannot set headers.
const TokenQueryParam = "access_token"

// JWTAuth requires an HMAC-signed bearer token and stores its subject in the
// request context.
func JWTAuth(secret string, log *logger.Logger) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, problem := bearerToken(r)
			if problem != "" {
				rejectUnauthorized(w, log, r, problem)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return key, nil
			})
			if err != nil || !token.Valid {
				message := "Invalid token"
				switch {
				case errors.Is(err, jwt.ErrTokenExpired):
					message = "Token has expired"
				case errors.Is(err, jwt.ErrTokenMalformed):
					message = "Malformed token"
				}
				rejectUnauthorized(w, log, r, message)
				return
			}

			claims, _ := token.Claims.(jwt.MapClaims)
			subject := subjectFromClaims(claims)
			if subject == "" {
				rejectUnauthorized(w, log, r, "Token has no subject")
				return
			}

			ctx := context.WithValue(r.Context(), SubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectFrom returns the authenticated subject, or "" when auth is disabled.
func SubjectFrom(ctx context.Context) string {
	subject, _ := ctx.Value(SubjectKey).(string)
	return subject
}

// bearerToken returns the token, or a client-facing reason it is missing.
func bearerToken(r *http.Request) (token string, problem string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get(TokenQueryParam); token != "" {
			return token, ""
		}
		return "", "Missing Authorization header"
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", "Authorization header must be 'Bearer <token>'"
	}
	return strings.TrimSpace(parts[1]), ""
}

func subjectFromClaims(claims jwt.MapClaims) string {
	if claims == nil {
		return ""
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub
	}
	switch v := claims["user_id"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}

func rejectUnauthorized(w http.ResponseWriter, log *logger.Logger, r *http.Request, message string) {
	log.Warn("Request rejected by JWT auth",
		"request_id", RequestIDFrom(r.Context()),
		"reason", message,
		"path", r.URL.Path,
	)
	_ = httputil.WriteError(w, apperrors.Unauthorized(message))
}
