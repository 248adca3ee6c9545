package middleware

import (
	"net/http"

	"maintenance-query-agent/internal/auth"
	"maintenance-query-agent/utils"

	"github.com/gin-gonic/gin"
)

type AuthMiddleware struct {
	tokens *auth.TokenService
}

func NewAuthMiddleware(tokens *auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// RequireAuth guards admin endpoints with a bearer token check.
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := auth.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, utils.ErrorResponse{
				ErrorCode: "unauthorized",
				Message:   "Authentication token is required",
			})
			c.Abort()
			return
		}

		claims, err := a.tokens.Validate(c.Request.Context(), tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, utils.ErrorResponse{
				ErrorCode: "unauthorized",
				Message:   "Invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set("username", claims.Username)
		c.Set("token_id", claims.ID)
		c.Next()
	}
}

// GetUsername returns the authenticated admin's username from the context.
func GetUsername(c *gin.Context) string {
	if username, exists := c.Get("username"); exists {
		if name, ok := username.(string); ok {
			return name
		}
	}
	return ""
}

// GetTokenID returns the current bearer token's ID from the context.
func GetTokenID(c *gin.Context) string {
	if jti, exists := c.Get("token_id"); exists {
		if id, ok := jti.(string); ok {
			return id
		}
	}
	return ""
}
