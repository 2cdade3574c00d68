package runauth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinGate is the gin form of Gate. Verified claims are stored on the
// request context, so handlers read them with ClaimsFromContext(c.Request.Context()).
func GinGate(v Verifier, opts ...GateOption) gin.HandlerFunc {
	g := newGate(v, opts...)
	return func(c *gin.Context) {
		claims, err := g.authenticate(c.Request)
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": err.Message(),
			})
			return
		}
		c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}
