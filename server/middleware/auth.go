package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"
)

// ContextUserID is the Gin context key holding the authenticated user id.
const ContextUserID = "user_id"

// AuthConfig configures the JWT authentication middleware.
type AuthConfig struct {
	// Secret is the HMAC signing key for HS256 tokens.
	Secret string
	// SkipPaths are URL path prefixes that bypass authentication.
	SkipPaths []string
}

// Auth returns a Gin middleware that validates Bearer tokens and stores the
// subject claim in the Gin context under ContextUserID. Tokens signed with
// anything other than HMAC are rejected.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	keyFunc := func(token *gojwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*gojwt.SigningMethodHMAC); !ok {
			return nil, gojwt.ErrSignatureInvalid
		}
		return []byte(cfg.Secret), nil
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skip := range cfg.SkipPaths {
			if strings.HasPrefix(path, skip) {
				c.Next()
				return
			}
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "Authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "Invalid authorization header format")
			return
		}

		claims := gojwt.RegisteredClaims{}
		token, err := gojwt.ParseWithClaims(parts[1], &claims, keyFunc,
			gojwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
		if err != nil || !token.Valid {
			abortUnauthorized(c, "Invalid token")
			return
		}
		if claims.Subject == "" {
			abortUnauthorized(c, "Token has no subject")
			return
		}

		c.Set(ContextUserID, claims.Subject)
		c.Next()
	}
}

// UserID returns the authenticated user id from the Gin context.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": msg,
	})
}
