/**
 * @description
 * This file contains custom middleware for the HTTP router. Authentication is
 * a symmetric JWT (HS256): the `sub` claim carries the caller's account id
 * and the `role` claim distinguishes admins. The authenticated identity is
 * placed on the request context; handlers thread it into the engine
 * explicitly so no engine call depends on ambient request state.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: JWT parsing and validation.
 */

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	accountIDKey contextKey = "accountID"
	actorRoleKey contextKey = "actorRole"
)

// RoleAdmin marks tokens allowed onto the admin routes.
const RoleAdmin = "admin"

// AuthMiddleware validates the bearer token and stores the caller's account
// id and role on the request context.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil {
				http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
				return
			}
			if !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			sub, ok := claims["sub"].(string)
			if !ok {
				http.Error(w, "Subject not found in token", http.StatusUnauthorized)
				return
			}
			accountID, err := uuid.Parse(sub)
			if err != nil {
				http.Error(w, "Subject is not a valid account id", http.StatusUnauthorized)
				return
			}

			role, _ := claims["role"].(string)

			ctx := context.WithValue(r.Context(), accountIDKey, accountID)
			ctx = context.WithValue(ctx, actorRoleKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin gates a route group on the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := GetActorRole(r.Context())
		if role != RoleAdmin {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetAccountID retrieves the authenticated account id from the request
// context.
func GetAccountID(ctx context.Context) (uuid.UUID, bool) {
	accountID, ok := ctx.Value(accountIDKey).(uuid.UUID)
	return accountID, ok
}

// GetActorRole retrieves the authenticated caller's role.
func GetActorRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(actorRoleKey).(string)
	return role, ok
}
