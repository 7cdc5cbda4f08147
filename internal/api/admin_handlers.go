package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/example/poster-shop/internal/api/middleware"
	"github.com/example/poster-shop/internal/auth"
	"github.com/example/poster-shop/internal/checkout"
	"github.com/example/poster-shop/internal/domain/cart"
	"github.com/example/poster-shop/internal/domain/invoice"
	"github.com/example/poster-shop/internal/domain/saleslog"
	"github.com/example/poster-shop/internal/sweeper"
	"github.com/gin-gonic/gin"
)

type AdminHandlers struct {
	admin     *auth.Admin
	carts     *cart.Service
	sweeper   *sweeper.Sweeper
	invoices  *invoice.Service
	finalizer *checkout.Finalizer
	sales     *saleslog.Service
	secure    bool
	now       func() time.Time
}

type AdminDeps struct {
	Admin        *auth.Admin
	Carts        *cart.Service
	Sweeper      *sweeper.Sweeper
	Invoices     *invoice.Service
	Finalizer    *checkout.Finalizer
	Sales        *saleslog.Service
	CookieSecure bool
}

func NewAdminHandlers(deps AdminDeps) *AdminHandlers {
	return &AdminHandlers{
		admin:     deps.Admin,
		carts:     deps.Carts,
		sweeper:   deps.Sweeper,
		invoices:  deps.Invoices,
		finalizer: deps.Finalizer,
		sales:     deps.Sales,
		secure:    deps.CookieSecure,
		now:       time.Now,
	}
}

func (h *AdminHandlers) setTokenCookie(c *gin.Context, pair *auth.TokenPair) {
	maxAge := int(time.Until(pair.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AdminCookie, pair.AccessToken, maxAge, "/", "", h.secure, true)
}

// Login handles POST /admin/login
func (h *AdminHandlers) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	pair, err := h.admin.Login(req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	h.setTokenCookie(c, pair)
	c.JSON(http.StatusOK, pair)
}

// Refresh handles POST /admin/refresh
func (h *AdminHandlers) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	pair, err := h.admin.Refresh(req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}
	h.setTokenCookie(c, pair)
	c.JSON(http.StatusOK, pair)
}

// Logout handles POST /admin/logout
func (h *AdminHandlers) Logout(c *gin.Context) {
	c.SetCookie(middleware.AdminCookie, "", -1, "/", "", h.secure, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// ActiveCarts handles GET /admin/carts
func (h *AdminHandlers) ActiveCarts(c *gin.Context) {
	now := h.now()
	carts, err := h.carts.ListActive(c.Request.Context(), now)
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]CartView, 0, len(carts))
	for _, ct := range carts {
		views = append(views, newCartView(ct.SessionID, ct, now))
	}
	c.JSON(http.StatusOK, views)
}

// Sweep handles POST /admin/carts/sweep
func (h *AdminHandlers) Sweep(c *gin.Context) {
	swept, err := h.sweeper.SweepExpired(c.Request.Context())
	body := gin.H{"expired": swept}
	if err != nil {
		body["error"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

// RecentInvoices handles GET /admin/invoices?limit=
func (h *AdminHandlers) RecentInvoices(c *gin.Context) {
	invoices, err := h.invoices.Recent(c.Request.Context(), queryInt(c, "limit"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoices)
}

// ResendInvoice handles POST /admin/invoices/:invoiceId/resend
func (h *AdminHandlers) ResendInvoice(c *gin.Context) {
	resend(c, h.finalizer, c.Param("invoiceId"))
}

// Sales handles GET /admin/sales?productId=&category=&from=&to=&limit=
func (h *AdminHandlers) Sales(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		entries []saleslog.Entry
		err     error
	)
	switch {
	case c.Query("productId") != "":
		entries, err = h.sales.ByProduct(ctx, c.Query("productId"))
	case c.Query("category") != "":
		entries, err = h.sales.ByCategory(ctx, c.Query("category"))
	case c.Query("from") != "" || c.Query("to") != "":
		from, to, parseErr := timeRange(c.Query("from"), c.Query("to"), h.now())
		if parseErr != nil {
			badRequest(c, parseErr)
			return
		}
		entries, err = h.sales.Between(ctx, from, to)
	case c.Query("limit") != "":
		entries, err = h.sales.Recent(ctx, queryInt(c, "limit"))
	default:
		entries, err = h.sales.All(ctx)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []saleslog.Entry{}
	}
	c.JSON(http.StatusOK, entries)
}

// SalesSummary handles GET /admin/sales/summary
func (h *AdminHandlers) SalesSummary(c *gin.Context) {
	ctx := c.Request.Context()
	total, err := h.sales.Count(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	top, err := h.sales.TopSellers(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"totalSales": total, "topSellers": top})
}

// ClearSales handles DELETE /admin/sales
func (h *AdminHandlers) ClearSales(c *gin.Context) {
	removed, err := h.sales.Clear(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}

// timeRange parses RFC 3339 bounds; a missing bound is open
func timeRange(fromValue, toValue string, now time.Time) (time.Time, time.Time, error) {
	from, to := time.Unix(0, 0), now
	var err error
	if fromValue != "" {
		if from, err = time.Parse(time.RFC3339, fromValue); err != nil {
			return from, to, err
		}
	}
	if toValue != "" {
		if to, err = time.Parse(time.RFC3339, toValue); err != nil {
			return from, to, err
		}
	}
	return from, to, nil
}
