package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/admingate/admingate/internal/permissions"
	"github.com/admingate/admingate/internal/services"
	"github.com/admingate/admingate/pkg/errors"
	"github.com/admingate/admingate/pkg/response"
)

const (
	CtxPrincipalKey = "principal"
	CtxTokenIDKey   = "tokenID"
)

// Auth enforces bearer token authentication through the credential store and
// places the resolved principal into the request context.
func Auth(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		token, err := tokens.Verify(c.Request.Context(), strings.TrimSpace(authz[7:]))
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxPrincipalKey, services.PrincipalFor(token))
		c.Set(CtxTokenIDKey, token.ID)

		c.Next()
	}
}

// PrincipalFrom extracts the authenticated principal placed by Auth. It
// returns nil when the request went through an unauthenticated path.
func PrincipalFrom(c *gin.Context) *permissions.Principal {
	value, ok := c.Get(CtxPrincipalKey)
	if !ok {
		return nil
	}
	principal, _ := value.(*permissions.Principal)
	return principal
}
