package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/staffportal/staffportal/pkg/auth"
)

const claimsKey = "staffportal.claims"

// TokenValidator is satisfied by auth.TokenManager.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

func Auth(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authorization := c.GetHeader("Authorization")
		if authorization == "" {
			abortUnauthorized(c, "missing authorization")
			return
		}
		parts := strings.SplitN(authorization, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c, "invalid authorization")
			return
		}
		token := strings.TrimSpace(parts[1])
		if token == "" {
			abortUnauthorized(c, "empty token")
			return
		}
		if tokens == nil {
			abortUnauthorized(c, "authentication is not configured")
			return
		}

		claims, err := tokens.Validate(token)
		if err != nil {
			abortUnauthorized(c, err.Error())
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// Claims returns the claims stored by Auth.
func Claims(c *gin.Context) (*auth.Claims, bool) {
	value, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*auth.Claims)
	return claims, ok
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": message})
}
