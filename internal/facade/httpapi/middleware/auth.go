// Package middleware holds the gin middleware chain httpapi.NewRouter
// wires: auth, request ID propagation, and security headers. Grounded on
// internal/http/middleware (the teacher's Clerk-JWKS-or-HMAC bearer auth)
// and internal/transport/http/middleware (request ID and metrics), merged
// into one coherent chain for this module's API.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const errUnauthorized = "Unauthorized"

// Auth validates a Bearer JWT and sets "callerID" in the gin context.
//
// When jwksURL is non-empty the token is verified against that JWKS
// endpoint (RS256 — e.g. Clerk). The key set is cached and refreshed on
// jwk's own schedule. When jwksURL is empty, hmacKey verifies an HS256
// token instead (local/dev deployments without an external IdP).
func Auth(jwksURL string, hmacKey []byte) gin.HandlerFunc {
	var cache *jwk.Cache
	if jwksURL != "" {
		c := jwk.NewCache(context.Background())
		if err := c.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
			panic("jwk cache register: " + err.Error())
		}
		cache = c
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}
		rawToken := strings.TrimPrefix(header, "Bearer ")

		var (
			tok jwt.Token
			err error
		)
		if cache != nil {
			keySet, fetchErr := cache.Get(c.Request.Context(), jwksURL)
			if fetchErr != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
				return
			}
			tok, err = jwt.Parse([]byte(rawToken), jwt.WithKeySet(keySet), jwt.WithValidate(true))
		} else {
			tok, err = jwt.Parse([]byte(rawToken), jwt.WithKey(jwa.HS256, hmacKey), jwt.WithValidate(true))
		}
		if err != nil || tok == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		callerID := tok.Subject()
		if callerID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}
		c.Set("callerID", callerID)
		c.Next()
	}
}
