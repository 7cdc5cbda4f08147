package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/example/poster-shop/internal/api/middleware"
	"github.com/example/poster-shop/internal/auth"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	Catalog        *CatalogHandlers
	Cart           *CartHandlers
	Checkout       *CheckoutHandlers
	Admin          *AdminHandlers
	JWTService     *auth.JWTService
	AllowedOrigins []string
	SessionMaxAge  time.Duration
	CookieSecure   bool
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowOriginFunc = func(origin string) bool { return true }
	}
	r.Use(cors.New(corsConfig))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Catalog
	r.GET("/products", cfg.Catalog.ListProducts)
	r.GET("/products/:productId", cfg.Catalog.GetProduct)

	// Shopper routes carry the session cookie
	shop := r.Group("/", middleware.Session(cfg.SessionMaxAge, cfg.CookieSecure))
	{
		shop.GET("/cart", cfg.Cart.GetCart)
		shop.DELETE("/cart", cfg.Cart.ClearCart)
		shop.POST("/cart/refresh", cfg.Cart.RefreshCart)
		shop.POST("/cart/items", cfg.Cart.AddToCart)
		shop.PUT("/cart/items/:productId", cfg.Cart.UpdateQuantity)
		shop.DELETE("/cart/items/:productId", cfg.Cart.RemoveFromCart)
		shop.GET("/cart/ws", cfg.Cart.Stream)

		shop.POST("/checkout", cfg.Checkout.Checkout)
		shop.GET("/invoices/:invoiceId/download", cfg.Checkout.DownloadInvoice)
		shop.POST("/invoices/:invoiceId/resend", cfg.Checkout.ResendInvoice)
	}

	r.POST("/admin/login", cfg.Admin.Login)
	r.POST("/admin/refresh", cfg.Admin.Refresh)

	admin := r.Group("/admin", middleware.AdminAuth(cfg.JWTService))
	{
		admin.POST("/logout", cfg.Admin.Logout)

		admin.POST("/products", cfg.Catalog.CreateProduct)
		admin.GET("/products/export", cfg.Catalog.ExportProducts)
		admin.PUT("/products/:productId/price", cfg.Catalog.UpdatePrice)
		admin.POST("/products/:productId/restock", cfg.Catalog.Restock)
		admin.DELETE("/products/:productId", cfg.Catalog.DeleteProduct)

		admin.GET("/carts", cfg.Admin.ActiveCarts)
		admin.POST("/carts/sweep", cfg.Admin.Sweep)

		admin.GET("/invoices", cfg.Admin.RecentInvoices)
		admin.POST("/invoices/:invoiceId/resend", cfg.Admin.ResendInvoice)

		admin.GET("/sales", cfg.Admin.Sales)
		admin.GET("/sales/summary", cfg.Admin.SalesSummary)
		admin.DELETE("/sales", cfg.Admin.ClearSales)
	}

	return r
}

// originChecker allows websocket upgrades from the configured origins, or
// from the request's own host when none are configured.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(set) > 0 {
			return set[origin]
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
