package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-rewards/internal/response"
	"github.com/stemsi/exstem-rewards/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"
)

// TokenValidator verifies a bearer token; *service.AuthService implements it.
type TokenValidator interface {
	ValidateToken(tokenStr string) (*service.Claims, error)
}

// RequireParticipantJWT validates a participant JWT from the Authorization header.
func RequireParticipantJWT(auth TokenValidator) gin.HandlerFunc {
	return requireToken(auth, service.TokenTypeParticipant, response.ErrParticipantAccessOnly, bearerOrQuery)
}

// RequireOperatorJWT validates an operator JWT from the Authorization header.
func RequireOperatorJWT(auth TokenValidator) gin.HandlerFunc {
	return requireToken(auth, service.TokenTypeOperator, response.ErrOperatorAccessOnly, bearerOrQuery)
}

// RequireParticipantWSAuth validates a participant JWT from the query param
// ?token=... Browsers cannot set headers on WebSocket upgrade requests.
func RequireParticipantWSAuth(auth TokenValidator) gin.HandlerFunc {
	return requireToken(auth, service.TokenTypeParticipant, response.ErrParticipantAccessOnly, func(c *gin.Context) string {
		return c.Query("token")
	})
}

func requireToken(auth TokenValidator, want service.TokenType, wrongType response.ErrCode, extract func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := extract(c)
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := auth.ValidateToken(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		if claims.TokenType != want {
			response.AbortFail(c, http.StatusForbidden, wrongType)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

func bearerOrQuery(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return c.Query("token")
}
