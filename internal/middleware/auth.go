package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"anoa.com/studentrecords/internal/access"
	"anoa.com/studentrecords/internal/entity"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const currentUserKey = "current_user"

type TokenParser interface {
	Parse(tokenString string) (*jwt.RegisteredClaims, error)
}

type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type UserFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
}

type AuthMiddleware struct {
	tokens      TokenParser
	revocations RevocationChecker
	users       UserFinder
}

func NewAuthMiddleware(tokens TokenParser, revocations RevocationChecker, users UserFinder) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:      tokens,
		revocations: revocations,
		users:       users,
	}
}

// RequireAuth validates the bearer token, rejects revoked tokens and inactive
// accounts, and stores the user on the context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")

		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}

		// Fallback to query parameter "token" (useful for WebSockets)
		if tokenString == "" {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}

		claims, err := m.tokens.Parse(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		if m.revocations != nil && claims.ID != "" {
			revoked, err := m.revocations.IsRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				log.Printf("[Internal Error]: %v", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
				return
			}
			if revoked {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session has ended, please log in again"})
				return
			}
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			return
		}

		user, err := m.users.FindByID(c.Request.Context(), userID)
		if err != nil || !user.IsActive {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found or inactive"})
			return
		}

		c.Set("user_id", userID.String())
		c.Set("token_id", claims.ID)
		if claims.ExpiresAt != nil {
			c.Set("token_expires_at", claims.ExpiresAt.Time)
		}
		c.Set(currentUserKey, user)
		c.Next()
	}
}

// RequirePermission aborts with 403 unless the current user's role may perform action.
func (m *AuthMiddleware) RequirePermission(action access.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := CurrentUser(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			return
		}

		if !access.Can(user.Role, action) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have permission to access this page."})
			return
		}

		c.Next()
	}
}

// RequireRole aborts with 403 unless the current user holds one of roles.
func (m *AuthMiddleware) RequireRole(roles ...entity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := CurrentUser(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			return
		}

		for _, r := range roles {
			if user.Role == r {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have permission to access this page."})
	}
}

var errNoUser = errors.New("no authenticated user on context")

// CurrentUser returns the user stored by RequireAuth.
func CurrentUser(c *gin.Context) (*entity.User, error) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil, errNoUser
	}
	user, ok := v.(*entity.User)
	if !ok || user == nil {
		return nil, errNoUser
	}
	return user, nil
}
