package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tautanid/marketauth"
)

const identityKey = "marketauth.identity"

// TwoFactorHeader carries the verified-marker token on sensitive routes.
const TwoFactorHeader = "x-2fa-token"

// Authenticate validates the Bearer session token and stores the resulting
// identity in the request context.
func (s *Server) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			abort(c, http.StatusUnauthorized, "Authentication required")
			return
		}

		id, err := s.engine.Authenticate(c.Request.Context(), token)
		if err != nil {
			s.respondError(c, err)
			c.Abort()
			return
		}

		c.Set(identityKey, id)
		c.Next()
	}
}

// RequireRoles rejects authenticated requests whose role is not listed.
func (s *Server) RequireRoles(roles ...marketauth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identityFrom(c)
		for _, role := range roles {
			if id.Role == role {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "You do not have access to this resource")
	}
}

// RequireMembership rejects requests below the given tier.
func (s *Server) RequireMembership(min marketauth.Membership) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identityFrom(c)
		if !id.Membership.AtLeast(min) {
			abort(c, http.StatusForbidden, "Upgrade your membership to access this feature")
			return
		}
		c.Next()
	}
}

// RequireTwoFactorVerified demands a valid verified-marker token for
// accounts that have two-factor enabled. Accounts without 2FA pass through.
func (s *Server) RequireTwoFactorVerified() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identityFrom(c)
		if !id.TwoFactorEnabled {
			c.Next()
			return
		}

		marker := c.GetHeader(TwoFactorHeader)
		if marker == "" {
			abort(c, http.StatusUnauthorized, "Two-factor verification required")
			return
		}
		if err := s.engine.VerifyTwoFactorMarker(c.Request.Context(), marker, id.AccountID); err != nil {
			abort(c, http.StatusUnauthorized, "Two-factor verification required")
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) *marketauth.Identity {
	v, _ := c.Get(identityKey)
	id, _ := v.(*marketauth.Identity)
	if id == nil {
		// Route wired without Authenticate; treat as anonymous.
		return &marketauth.Identity{}
	}
	return id
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: message})
}
