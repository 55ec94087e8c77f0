package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/perishables/internal/auth/domain"
	inventorydomain "github.com/smallbiznis/perishables/internal/inventory/domain"
	obslogger "github.com/smallbiznis/perishables/internal/observability/logger"
)

const contextClaimsKey = "auth_claims"

// AuthRequired accepts a bearer token from the Authorization header.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims, err := s.tokens.Parse(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextClaimsKey, claims)
		ctx := obslogger.WithActor(c.Request.Context(), claims.UserID, claims.StoreID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func claimsFrom(c *gin.Context) *authdomain.Claims {
	v, ok := c.Get(contextClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*authdomain.Claims)
	return claims
}

func canAccessStore(claims *authdomain.Claims, storeID string) bool {
	if claims == nil {
		return false
	}
	return claims.Role == authdomain.RoleAdmin || claims.StoreID == storeID
}

// StoreScope rejects tokens for another store unless the caller is an admin.
func StoreScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		storeID := strings.TrimSpace(c.Param("storeId"))
		if storeID == "" {
			AbortWithError(c, inventorydomain.ErrInvalidStore)
			return
		}
		if !canAccessStore(claimsFrom(c), storeID) {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func (s *Server) RequirePermission(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFrom(c)
		if claims == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authz.Authorize(c.Request.Context(), string(claims.Role), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// RateLimit keys the limiter by user so store kiosks behind one NAT do not share a budget.
func (s *Server) RateLimit() gin.HandlerFunc {
	if s.limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return s.limiter.Middleware(func(c *gin.Context) string {
		if claims := claimsFrom(c); claims != nil {
			return "user:" + claims.UserID
		}
		return ""
	})
}

// loadScopedItem resolves an item and checks the caller may touch its store.
func (s *Server) loadScopedItem(c *gin.Context) (*inventorydomain.ItemView, bool) {
	item, err := s.inventorySvc.GetItem(c.Request.Context(), c.Param("itemId"))
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	if !canAccessStore(claimsFrom(c), item.StoreID) {
		AbortWithError(c, ErrForbidden)
		return nil, false
	}
	return item, true
}
