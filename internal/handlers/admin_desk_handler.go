package handlers

import (
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"otc-backend/internal/desk"
	"otc-backend/internal/pricing"
)

// AdminDeskHandler exposes the owner-only desk controls. Routes mounting it
// sit behind admin JWT auth; the acting owner identity comes from config.
type AdminDeskHandler struct {
	desk  *desk.Desk
	owner string
}

// NewAdminDeskHandler creates a new AdminDeskHandler instance
func NewAdminDeskHandler(d *desk.Desk, owner string) *AdminDeskHandler {
	return &AdminDeskHandler{desk: d, owner: owner}
}

// SetApproverRequest registers or removes an approver.
type SetApproverRequest struct {
	Approver string `json:"approver" binding:"required"`
	Allowed  *bool  `json:"allowed" binding:"required"`
}

// SetApprover handles POST /api/v1/admin/desk/approvers
func (h *AdminDeskHandler) SetApprover(c *gin.Context) {
	var req SetApproverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("Invalid request: %v", err)})
		return
	}
	if err := h.desk.SetApprover(h.owner, req.Approver, *req.Allowed); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SetLimitsRequest updates order limits and time windows.
type SetLimitsRequest struct {
	MinUsd8            string `json:"minUsd8" binding:"required"`
	MinToken           string `json:"minToken" binding:"required"`
	MaxToken           string `json:"maxToken" binding:"required"`
	QuoteExpirySeconds int64  `json:"quoteExpirySeconds" binding:"required"`
	MaxLockupSeconds   int64  `json:"maxLockupSeconds" binding:"required"`
}

// SetLimits handles POST /api/v1/admin/desk/limits
func (h *AdminDeskHandler) SetLimits(c *gin.Context) {
	var req SetLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("Invalid request: %v", err)})
		return
	}

	limits, err := parseLimits(req.MinUsd8, req.MinToken, req.MaxToken)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	err = h.desk.SetLimits(h.owner, limits,
		time.Duration(req.QuoteExpirySeconds)*time.Second,
		time.Duration(req.MaxLockupSeconds)*time.Second)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SetPausedRequest flips the desk pause flag.
type SetPausedRequest struct {
	Paused *bool `json:"paused" binding:"required"`
}

// SetPaused handles POST /api/v1/admin/desk/pause
func (h *AdminDeskHandler) SetPaused(c *gin.Context) {
	var req SetPausedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("Invalid request: %v", err)})
		return
	}
	if err := h.desk.SetPaused(h.owner, *req.Paused); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "paused": *req.Paused})
}

// SetEmergencyRefundRequest configures the refund escape hatch.
type SetEmergencyRefundRequest struct {
	Enabled  *bool  `json:"enabled" binding:"required"`
	Deadline string `json:"deadline"` // RFC3339; empty means no deadline
}

// SetEmergencyRefund handles POST /api/v1/admin/desk/emergency-refund
func (h *AdminDeskHandler) SetEmergencyRefund(c *gin.Context) {
	var req SetEmergencyRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("Invalid request: %v", err)})
		return
	}

	var deadline time.Time
	if req.Deadline != "" {
		parsed, err := time.Parse(time.RFC3339, req.Deadline)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "deadline must be RFC3339"})
			return
		}
		deadline = parsed
	}

	if err := h.desk.SetEmergencyRefund(h.owner, *req.Enabled, deadline); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SetCapsRequest updates the bounded-result and batch caps.
type SetCapsRequest struct {
	MaxOpenOffersReturned int `json:"maxOpenOffersReturned" binding:"required"`
	MaxAutoClaimBatch     int `json:"maxAutoClaimBatch" binding:"required"`
}

// SetCaps handles POST /api/v1/admin/desk/caps
func (h *AdminDeskHandler) SetCaps(c *gin.Context) {
	var req SetCapsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("Invalid request: %v", err)})
		return
	}
	if err := h.desk.SetCaps(h.owner, req.MaxOpenOffersReturned, req.MaxAutoClaimBatch); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AmountRequest carries a base-unit token amount.
type AmountRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// DepositTokens handles POST /api/v1/admin/desk/treasury/deposit
func (h *AdminDeskHandler) DepositTokens(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("Invalid request: %v", err)})
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid amount"})
		return
	}
	if err := h.desk.DepositTokens(h.owner, amount); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "balance": h.desk.TreasuryBalance().String()})
}

// WithdrawTokens handles POST /api/v1/admin/desk/treasury/withdraw
func (h *AdminDeskHandler) WithdrawTokens(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("Invalid request: %v", err)})
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid amount"})
		return
	}
	if err := h.desk.WithdrawTokens(h.owner, amount); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "balance": h.desk.TreasuryBalance().String()})
}

// WithdrawPaymentsRequest names the payment asset and amount to sweep.
type WithdrawPaymentsRequest struct {
	Asset  string `json:"asset" binding:"required"` // "stable" or "native"
	Amount string `json:"amount" binding:"required"`
}

// WithdrawPayments handles POST /api/v1/admin/desk/treasury/withdraw-payments
func (h *AdminDeskHandler) WithdrawPayments(c *gin.Context) {
	var req WithdrawPaymentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("Invalid request: %v", err)})
		return
	}

	var asset desk.Asset
	switch req.Asset {
	case "stable":
		asset = desk.AssetStable
	case "native":
		asset = desk.AssetNative
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "asset must be stable or native"})
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid amount"})
		return
	}

	if err := h.desk.WithdrawPayments(h.owner, asset, amount); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "balance": h.desk.PaymentBalance(asset).String()})
}

func parseLimits(minUsd8, minToken, maxToken string) (pricing.Limits, error) {
	var limits pricing.Limits
	var ok bool
	if limits.MinUsd8, ok = new(big.Int).SetString(minUsd8, 10); !ok {
		return limits, fmt.Errorf("invalid minUsd8 %q", minUsd8)
	}
	if limits.MinToken, ok = new(big.Int).SetString(minToken, 10); !ok {
		return limits, fmt.Errorf("invalid minToken %q", minToken)
	}
	if limits.MaxToken, ok = new(big.Int).SetString(maxToken, 10); !ok {
		return limits, fmt.Errorf("invalid maxToken %q", maxToken)
	}
	return limits, nil
}
