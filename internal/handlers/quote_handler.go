package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"otc-backend/internal/services"
)

// QuoteHandler exposes the quote lifecycle over HTTP.
type QuoteHandler struct {
	quoteService *services.QuoteService
}

// NewQuoteHandler creates a new QuoteHandler instance
func NewQuoteHandler(quoteService *services.QuoteService) *QuoteHandler {
	return &QuoteHandler{quoteService: quoteService}
}

// CreateQuote handles POST /api/v1/quotes
func (h *QuoteHandler) CreateQuote(c *gin.Context) {
	var req services.CreateQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	quote, err := h.quoteService.CreateQuote(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "quote": quote})
}

// GetQuote handles GET /api/v1/quotes/:id
func (h *QuoteHandler) GetQuote(c *gin.Context) {
	quote, err := h.quoteService.GetQuote(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "quote": quote})
}

// ListQuotes handles GET /api/v1/quotes?entity=<id>
func (h *QuoteHandler) ListQuotes(c *gin.Context) {
	entityID := c.Query("entity")
	if entityID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "entity query parameter is required",
		})
		return
	}

	quotes, err := h.quoteService.ListQuotesByEntity(c.Request.Context(), entityID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "quotes": quotes, "count": len(quotes)})
}

// RequiredPayment handles GET /api/v1/quotes/:id/payment
func (h *QuoteHandler) RequiredPayment(c *gin.Context) {
	amount, err := h.quoteService.RequiredPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "requiredPayment": amount.String()})
}

// ApproveRequest identifies the acting approver.
type ApproveRequest struct {
	Approver string `json:"approver" binding:"required"`
}

// ApproveQuote handles POST /api/v1/quotes/:id/approve
func (h *QuoteHandler) ApproveQuote(c *gin.Context) {
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	quote, err := h.quoteService.ApproveQuote(c.Request.Context(), c.Param("id"), req.Approver)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "quote": quote})
}

// FulfillRequest carries the payment details.
type FulfillRequest struct {
	Payer      string `json:"payer" binding:"required"`
	AmountSent string `json:"amountSent" binding:"required"`
}

// FulfillQuote handles POST /api/v1/quotes/:id/fulfill
func (h *QuoteHandler) FulfillQuote(c *gin.Context) {
	var req FulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	quote, err := h.quoteService.FulfillQuote(c.Request.Context(), c.Param("id"), req.Payer, req.AmountSent)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "quote": quote})
}

// ClaimQuote handles POST /api/v1/quotes/:id/claim
func (h *QuoteHandler) ClaimQuote(c *gin.Context) {
	quote, err := h.quoteService.ClaimQuote(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "quote": quote})
}

// CallerRequest identifies the caller of a permissioned transition.
type CallerRequest struct {
	Caller string `json:"caller" binding:"required"`
}

// CancelQuote handles POST /api/v1/quotes/:id/cancel
func (h *QuoteHandler) CancelQuote(c *gin.Context) {
	var req CallerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	quote, err := h.quoteService.CancelQuote(c.Request.Context(), c.Param("id"), req.Caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "quote": quote})
}

// RefundQuote handles POST /api/v1/quotes/:id/refund
func (h *QuoteHandler) RefundQuote(c *gin.Context) {
	var req CallerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	quote, err := h.quoteService.RefundQuote(c.Request.Context(), c.Param("id"), req.Caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "quote": quote})
}
