package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"otc-backend/internal/desk"
	"otc-backend/internal/services"
)

// OfferHandler exposes read access to the settlement engine itself.
type OfferHandler struct {
	desk         *desk.Desk
	quoteService *services.QuoteService
}

// NewOfferHandler creates a new OfferHandler instance
func NewOfferHandler(d *desk.Desk, quoteService *services.QuoteService) *OfferHandler {
	return &OfferHandler{desk: d, quoteService: quoteService}
}

// GetOffer handles GET /api/v1/offers/:id
func (h *OfferHandler) GetOffer(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid offer id",
		})
		return
	}

	offer, err := h.desk.GetOffer(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"offer": gin.H{
			"id":                offer.ID,
			"beneficiary":       offer.Beneficiary,
			"tokenAmount":       offer.TokenAmount.String(),
			"discountBps":       offer.DiscountBps,
			"currency":          offer.Currency.String(),
			"lockupSeconds":     offer.LockupSeconds,
			"createdAt":         offer.CreatedAt,
			"unlockTime":        offer.UnlockTime,
			"approved":          offer.Approved,
			"paid":              offer.Paid,
			"fulfilled":         offer.Fulfilled,
			"cancelled":         offer.Cancelled,
			"emergencyRefunded": offer.EmergencyRefunded,
		},
	})
}

// OpenOffers handles GET /api/v1/offers/open
func (h *OfferHandler) OpenOffers(c *gin.Context) {
	ids := h.desk.OpenOfferIDs()
	c.JSON(http.StatusOK, gin.H{"success": true, "offerIds": ids, "count": len(ids)})
}

// AutoClaimRequest names the offers to sweep.
type AutoClaimRequest struct {
	OfferIDs []uint64 `json:"offerIds" binding:"required"`
}

// AutoClaim handles POST /api/v1/offers/auto-claim
func (h *OfferHandler) AutoClaim(c *gin.Context) {
	var req AutoClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "offerIds is required",
		})
		return
	}

	results, err := h.quoteService.AutoClaim(req.OfferIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "results": results})
}

// Treasury handles GET /api/v1/treasury
func (h *OfferHandler) Treasury(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"balance":  h.desk.TreasuryBalance().String(),
		"reserved": h.desk.ReservedTokens().String(),
		"payments": gin.H{
			"stable": gin.H{
				"balance":  h.desk.PaymentBalance(desk.AssetStable).String(),
				"reserved": h.desk.ReservedPayments(desk.AssetStable).String(),
			},
			"native": gin.H{
				"balance":  h.desk.PaymentBalance(desk.AssetNative).String(),
				"reserved": h.desk.ReservedPayments(desk.AssetNative).String(),
			},
		},
	})
}
