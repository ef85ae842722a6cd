package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"otc-backend/internal/desk"
	"otc-backend/internal/ledger"
	"otc-backend/internal/oracle"
	"otc-backend/internal/repository"
)

// respondError maps the engine's error classes onto HTTP statuses:
// validation 400, not found 404, state conflicts 409, policy rejections 422.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case desk.IsValidation(err):
		status = http.StatusBadRequest
	case desk.IsNotFound(err),
		errors.Is(err, repository.ErrQuoteNotFound),
		errors.Is(err, ledger.ErrOfferUnknown):
		status = http.StatusNotFound
	case desk.IsState(err):
		status = http.StatusConflict
	case desk.IsPolicy(err), errors.Is(err, oracle.ErrStaleFeed):
		status = http.StatusUnprocessableEntity
	}

	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}
