package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/example/poster-shop/internal/auth"
	"github.com/example/poster-shop/internal/checkout"
	"github.com/example/poster-shop/internal/domain/cart"
	"github.com/example/poster-shop/internal/domain/inventory"
	"github.com/example/poster-shop/internal/domain/invoice"
	"github.com/example/poster-shop/internal/domain/product"
	"github.com/gin-gonic/gin"
)

var errForbidden = errors.New("invoice belongs to another session")

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, inventory.ErrOutOfStock),
		errors.Is(err, inventory.ErrNotEnoughStock):
		return http.StatusConflict
	case errors.Is(err, cart.ErrCartNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, product.ErrProductNotFound),
		errors.Is(err, invoice.ErrInvoiceNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidCustomer),
		errors.Is(err, product.ErrInvalidName),
		errors.Is(err, product.ErrInvalidType),
		errors.Is(err, product.ErrInvalidPrice),
		errors.Is(err, product.ErrInvalidStock),
		errors.Is(err, product.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrAdminDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes a JSON error response
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[API] %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input: " + err.Error()})
}
