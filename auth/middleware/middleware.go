package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mehra/filevault-backend/auth"
)

const (
	// UserIDKey holds the authenticated caller's uuid in the gin context.
	UserIDKey = "userID"
	// SessionTokenKey holds the raw bearer token so downstream code can hand
	// it to the session resolver.
	SessionTokenKey = "sessionToken"
)

// BearerToken extracts the raw bearer token from the Authorization header,
// or "" when absent or malformed.
func BearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

// AuthRequired aborts with 401 unless a valid session token is presented.
func AuthRequired(manager *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		subject, err := manager.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
			return
		}
		userID, err := uuid.Parse(subject)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
			return
		}
		c.Set(UserIDKey, userID)
		c.Set(SessionTokenKey, token)
		c.Next()
	}
}

// AuthOptional decorates the context when a valid bearer token is present
// and continues unauthenticated otherwise.
func AuthOptional(manager *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token != "" {
			if subject, err := manager.ValidateToken(token); err == nil {
				if userID, err := uuid.Parse(subject); err == nil {
					c.Set(UserIDKey, userID)
					c.Set(SessionTokenKey, token)
				}
			}
		}
		c.Next()
	}
}

// SessionToken returns the raw bearer token stashed by the auth middleware,
// or "" for anonymous requests.
func SessionToken(c *gin.Context) string {
	if token, ok := c.Get(SessionTokenKey); ok {
		return token.(string)
	}
	return ""
}

// UserID returns the authenticated caller's id. Only valid behind
// AuthRequired.
func UserID(c *gin.Context) uuid.UUID {
	return c.MustGet(UserIDKey).(uuid.UUID)
}
