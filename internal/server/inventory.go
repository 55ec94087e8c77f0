package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/perishables/internal/auth/domain"
	inventorydomain "github.com/smallbiznis/perishables/internal/inventory/domain"
)

func (s *Server) ListStores(c *gin.Context) {
	claims := claimsFrom(c)
	stores, err := s.inventorySvc.ListStores(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if claims.Role != authdomain.RoleAdmin {
		visible := make([]inventorydomain.Store, 0, 1)
		for _, store := range stores {
			if store.ID == claims.StoreID {
				visible = append(visible, store)
			}
		}
		stores = visible
	}
	c.JSON(http.StatusOK, gin.H{"data": stores})
}

func (s *Server) ListInventory(c *gin.Context) {
	items, err := s.inventorySvc.ListByStore(c.Request.Context(), c.Param("storeId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) ListExpiring(c *gin.Context) {
	threshold, ok := parsePositiveInt(c.Query("daysThreshold"), inventorydomain.DefaultExpiringThreshold)
	if !ok {
		AbortWithError(c, newValidationError("daysThreshold", "invalid_days_threshold", "daysThreshold must be a positive integer"))
		return
	}

	items, err := s.inventorySvc.GetExpiringItems(c.Request.Context(), c.Param("storeId"), threshold)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateItem(c *gin.Context) {
	var req inventorydomain.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.inventorySvc.AddItem(c.Request.Context(), c.Param("storeId"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) GetItem(c *gin.Context) {
	item, ok := s.loadScopedItem(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) UpdateQuantity(c *gin.Context) {
	var req inventorydomain.UpdateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.QuantityOnHand == nil {
		AbortWithError(c, newValidationError("quantityOnHand", "invalid_quantity", "quantityOnHand is required"))
		return
	}

	item, ok := s.loadScopedItem(c)
	if !ok {
		return
	}

	updated, err := s.inventorySvc.UpdateQuantity(c.Request.Context(), item.ID, *req.QuantityOnHand)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}
