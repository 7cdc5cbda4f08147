package api

import (
	"errors"
	"net/http"

	"github.com/example/poster-shop/internal/api/middleware"
	"github.com/example/poster-shop/internal/cartstate"
	"github.com/example/poster-shop/internal/checkout"
	"github.com/example/poster-shop/internal/domain/invoice"
	"github.com/gin-gonic/gin"
)

type CheckoutHandlers struct {
	registry  *cartstate.Registry
	finalizer *checkout.Finalizer
	invoices  *invoice.Service
}

func NewCheckoutHandlers(registry *cartstate.Registry, finalizer *checkout.Finalizer, invoices *invoice.Service) *CheckoutHandlers {
	return &CheckoutHandlers{registry: registry, finalizer: finalizer, invoices: invoices}
}

// Checkout handles POST /checkout
func (h *CheckoutHandlers) Checkout(c *gin.Context) {
	var details invoice.CustomerDetails
	if err := c.ShouldBindJSON(&details); err != nil {
		badRequest(c, err)
		return
	}
	r, err := h.registry.Get(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.finalizer.Checkout(c.Request.Context(), r.Snapshot(), details)
	if err != nil {
		respondError(c, err)
		return
	}
	if result.CartCleared {
		r.Forget()
	}

	body := gin.H{
		"invoice":     result.Invoice,
		"emailed":     result.Emailed,
		"cartCleared": result.CartCleared,
	}
	if result.EmailErr != nil {
		body["emailError"] = result.EmailErr.Error()
	}
	c.JSON(http.StatusCreated, body)
}

// ownInvoice loads an invoice that belongs to the caller's session
func (h *CheckoutHandlers) ownInvoice(c *gin.Context) (*invoice.Invoice, bool) {
	inv, err := h.invoices.Get(c.Request.Context(), c.Param("invoiceId"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if inv.SessionID != middleware.SessionID(c) {
		respondError(c, errForbidden)
		return nil, false
	}
	return inv, true
}

// DownloadInvoice handles GET /invoices/:invoiceId/download
func (h *CheckoutHandlers) DownloadInvoice(c *gin.Context) {
	inv, ok := h.ownInvoice(c)
	if !ok {
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+invoice.Filename(inv))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(invoice.BuildText(inv)))
}

// ResendInvoice handles POST /invoices/:invoiceId/resend
func (h *CheckoutHandlers) ResendInvoice(c *gin.Context) {
	if _, ok := h.ownInvoice(c); !ok {
		return
	}
	resend(c, h.finalizer, c.Param("invoiceId"))
}

func resend(c *gin.Context, finalizer *checkout.Finalizer, invoiceID string) {
	inv, err := finalizer.Resend(c.Request.Context(), invoiceID)
	if errors.Is(err, invoice.ErrInvoiceNotFound) {
		respondError(c, err)
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "invoice": inv})
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoice": inv})
}
