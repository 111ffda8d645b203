package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/elqbulk/pkg/auth"
)

const (
	ContextClaims    = "claims"
	ContextPrincipal = "principal"
)

// AuthMiddleware rejects requests without a bearer token accepted by
// validator. A nil validator disables authentication (dev only).
func AuthMiddleware(validator auth.Validator, requiredScope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if validator == nil {
			c.Set(ContextPrincipal, "anonymous")
			c.Next()
			return
		}
		claims, err := validateBearer(validator, c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if requiredScope != "" && !claims.HasScope(requiredScope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing scope " + requiredScope})
			return
		}
		c.Set(ContextClaims, claims)
		c.Set(ContextPrincipal, claims.Principal())
		c.Next()
	}
}

func validateBearer(validator auth.Validator, authHeader string) (*auth.Claims, error) {
	if strings.TrimSpace(authHeader) == "" {
		return nil, fmt.Errorf("missing Authorization header")
	}
	token := bearerToken(authHeader)
	if token == "" {
		return nil, fmt.Errorf("invalid Authorization format")
	}
	return validator.Validate(token)
}

func bearerToken(authHeader string) string {
	authHeader = strings.TrimSpace(authHeader)
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
