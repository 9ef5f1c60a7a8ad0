package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/odilabs/odi-auth/internal/domain"
	"github.com/odilabs/odi-auth/internal/service"
	"github.com/odilabs/odi-auth/internal/token"
)

const (
	claimsKey   = "accessClaims"
	rawTokenKey = "rawAccessToken"
)

// Auth validates the Authorization header and attaches identity claims.
type Auth struct {
	AuthService *service.AuthService
}

// ValidateJWT ensures the request carries a valid, unrevoked bearer token.
func (m *Auth) ValidateJWT(c *gin.Context) {
	header := c.GetHeader("Authorization")
	var value string
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Bearer token required."})
			return
		}
		value = parts[1]
	}

	claims, err := m.AuthService.ValidateAccess(c.Request.Context(), value)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnauthenticated):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Not authenticated. Please log in."})
		case errors.Is(err, domain.ErrTokenRevoked):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "Token has been invalidated."})
		case errors.Is(err, domain.ErrTokenInvalid):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid or expired token."})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Unable to verify token. Please retry."})
		}
		return
	}

	c.Set(claimsKey, claims)
	c.Set(rawTokenKey, value)
	c.Next()
}

// RequireRole gates a route behind a minimum role. Runs after ValidateJWT.
func RequireRole(required domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Not authenticated. Please log in."})
			return
		}
		if err := token.Authorize(claims, required); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "Insufficient role."})
			return
		}
		c.Next()
	}
}

// GetClaims exposes the validated identity claims to handlers.
func GetClaims(c *gin.Context) (*token.Claims, bool) {
	value, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*token.Claims)
	return claims, ok
}

// RawToken returns the bearer token the auth middleware validated.
func RawToken(c *gin.Context) string {
	value, ok := c.Get(rawTokenKey)
	if !ok {
		return ""
	}
	raw, _ := value.(string)
	return raw
}
