package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	markdowndomain "github.com/smallbiznis/perishables/internal/markdown/domain"
	pricingdomain "github.com/smallbiznis/perishables/internal/pricing/domain"
)

type applyMarkdownRequest struct {
	DiscountPercent *float64 `json:"discountPercent"`
	Reason          string   `json:"reason"`
}

type applySelectionMarkdownRequest struct {
	ItemIDs         []string `json:"itemIds"`
	DiscountPercent *float64 `json:"discountPercent"`
	Reason          string   `json:"reason"`
}

func (s *Server) MarkdownRecommendations(c *gin.Context) {
	threshold, ok := parsePositiveInt(c.Query("daysThreshold"), 0)
	if !ok {
		AbortWithError(c, newValidationError("daysThreshold", "invalid_days_threshold", "daysThreshold must be a positive integer"))
		return
	}

	resp, err := s.markdownSvc.Recommend(c.Request.Context(), c.Param("storeId"), threshold)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SelectionDiscount(c *gin.Context) {
	var req markdowndomain.SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.markdownSvc.RecommendSelection(c.Request.Context(), c.Param("storeId"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApplyMarkdown(c *gin.Context) {
	var req applyMarkdownRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DiscountPercent == nil {
		AbortWithError(c, newValidationError("discountPercent", "invalid_discount", "discountPercent is required"))
		return
	}

	item, ok := s.loadScopedItem(c)
	if !ok {
		return
	}

	change, err := s.pricingSvc.ApplyDiscount(c.Request.Context(), pricingdomain.ApplyRequest{
		ItemID:          item.ID,
		DiscountPercent: *req.DiscountPercent,
		AppliedBy:       appliedBy(c),
		Reason:          strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": change})
}

func (s *Server) ApplySelectionMarkdown(c *gin.Context) {
	var req applySelectionMarkdownRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DiscountPercent == nil {
		AbortWithError(c, newValidationError("discountPercent", "invalid_discount", "discountPercent is required"))
		return
	}

	changes, err := s.pricingSvc.ApplySelection(c.Request.Context(), pricingdomain.SelectionApplyRequest{
		StoreID:         c.Param("storeId"),
		ItemIDs:         req.ItemIDs,
		DiscountPercent: *req.DiscountPercent,
		AppliedBy:       appliedBy(c),
		Reason:          strings.TrimSpace(req.Reason),
	})
	if err != nil {
		if len(changes) > 0 {
			AbortWithPartial(c, err, changes)
			return
		}
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": changes})
}

func (s *Server) MarkdownHistory(c *gin.Context) {
	limit, ok := parsePositiveInt(c.Query("limit"), pricingdomain.DefaultHistoryLimit)
	if !ok {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be a positive integer"))
		return
	}

	records, err := s.pricingSvc.History(c.Request.Context(), c.Param("storeId"), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

func (s *Server) MarkdownLabels(c *gin.Context) {
	storeID := c.Param("storeId")
	doc, err := s.labels.StorePDF(c.Request.Context(), storeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="markdown-labels-%s.pdf"`, storeID))
	c.Data(http.StatusOK, "application/pdf", doc)
}

func appliedBy(c *gin.Context) string {
	if claims := claimsFrom(c); claims != nil && claims.UserID != "" {
		return claims.UserID
	}
	return "system"
}
