/**
 * @description
 * Authentication, authorization and rate limiting middleware for the RAVITO API.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: HS256 verification of BaaS access tokens.
 * - github.com/gorilla/websocket: detects upgrade requests that carry the token in the query.
 */
package api

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/ravito/ravito-backend/internal/app"
	"github.com/ravito/ravito-backend/internal/domain"
	"github.com/ravito/ravito-backend/internal/store"
)

type contextKey string

const (
	UserIDContextKey  = contextKey("userID")
	SessionContextKey = contextKey("session")
)

// SessionResolver resolves the profile of an authenticated user.
type SessionResolver interface {
	CurrentUser(ctx context.Context, userID string) (*domain.Session, error)
}

// JWTAuthMiddleware validates HS256 access tokens signed with secret and injects the
// subject into the context. Websocket upgrades may pass the token as ?token=.
func JWTAuthMiddleware(secret, audience string) func(http.Handler) http.Handler {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	parser := jwt.NewParser(opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			claims := jwt.MapClaims{}
			token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			userID, err := claims.GetSubject()
			if err != nil || userID == "" {
				writeError(w, http.StatusUnauthorized, "User ID not found in token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader || tokenString == "" {
			return "", false
		}
		return tokenString, true
	}
	if websocket.IsWebSocketUpgrade(r) {
		if tokenString := r.URL.Query().Get("token"); tokenString != "" {
			return tokenString, true
		}
	}
	return "", false
}

// SessionMiddleware resolves the profile of the authenticated user. It must run after
// JWTAuthMiddleware.
func SessionMiddleware(identity SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			session, err := identity.CurrentUser(r.Context(), userID)
			switch {
			case err == nil:
			case errors.Is(err, store.ErrProfileNotFound):
				writeError(w, http.StatusUnauthorized, "Profile not found")
				return
			case errors.Is(err, app.ErrProfileUnavailable):
				writeError(w, http.StatusServiceUnavailable, "Profile temporarily unavailable")
				return
			default:
				log.Printf("level=error component=api msg=\"session resolution failed\" user_id=%s err=%v", userID, err)
				writeError(w, http.StatusInternalServerError, "Failed to resolve session")
				return
			}

			if !session.Profile.IsActive {
				writeError(w, http.StatusForbidden, "Account is disabled")
				return
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects sessions whose role is not listed.
func RequireRole(roles ...domain.UserRole) func(http.Handler) http.Handler {
	allowed := make(map[domain.UserRole]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := SessionFromContext(r.Context())
			if !ok || !allowed[session.Profile.Role] {
				writeError(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// InternalAuthMiddleware validates the internal API key of server-to-server calls.
// An empty key rejects every request.
func InternalAuthMiddleware(requiredKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-Internal-API-Key")
			if requiredKey == "" || provided == "" || provided != requiredKey {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware limits each caller to limit requests per window. Behind
// JWTAuthMiddleware the caller is the token's user; otherwise it is the client IP.
// Limiter failures let the request through.
func RateLimitMiddleware(limiter app.RateLimiter, scope string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count, retryAfter, err := limiter.ConsumeRateLimit(r.Context(), scope, rateLimitSubject(r), limit, window)
			if err != nil {
				log.Printf("level=warn component=api msg=\"rate limiter unavailable\" scope=%s err=%v", scope, err)
				next.ServeHTTP(w, r)
				return
			}
			if count > limit {
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitSubject(r *http.Request) string {
	if userID, ok := UserFromContext(r.Context()); ok {
		return "user:" + userID
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// UserFromContext retrieves the user ID from the request context.
func UserFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(string)
	return userID, ok
}

// SessionFromContext retrieves the resolved session from the request context.
func SessionFromContext(ctx context.Context) (*domain.Session, bool) {
	session, ok := ctx.Value(SessionContextKey).(*domain.Session)
	return session, ok && session != nil
}

func actorFromContext(ctx context.Context) (domain.Actor, bool) {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return domain.Actor{}, false
	}
	return app.ActorFromSession(session), true
}
