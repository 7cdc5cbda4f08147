package api

import (
	"bytes"
	"net/http"
	"time"

	"github.com/example/poster-shop/internal/domain/product"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const spreadsheetType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type CatalogHandlers struct {
	products *product.Service
}

func NewCatalogHandlers(products *product.Service) *CatalogHandlers {
	return &CatalogHandlers{products: products}
}

// ListProducts handles GET /products?category=&subcategory=&q=
func (h *CatalogHandlers) ListProducts(c *gin.Context) {
	var (
		products []*product.Product
		err      error
	)
	switch {
	case c.Query("q") != "":
		products, err = h.products.Search(c.Request.Context(), c.Query("q"))
	case c.Query("category") != "":
		products, err = h.products.ListByCategory(c.Request.Context(), c.Query("category"), c.Query("subcategory"))
	default:
		products, err = h.products.List(c.Request.Context())
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if products == nil {
		products = []*product.Product{}
	}
	c.JSON(http.StatusOK, products)
}

// GetProduct handles GET /products/:productId
func (h *CatalogHandlers) GetProduct(c *gin.Context) {
	p, err := h.products.Get(c.Request.Context(), c.Param("productId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// CreateProduct handles POST /admin/products
func (h *CatalogHandlers) CreateProduct(c *gin.Context) {
	var input product.NewProduct
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.products.Create(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// UpdatePrice handles PUT /admin/products/:productId/price
func (h *CatalogHandlers) UpdatePrice(c *gin.Context) {
	var req struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.products.UpdatePrice(c.Request.Context(), c.Param("productId"), req.Price); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Price updated"})
}

// Restock handles POST /admin/products/:productId/restock
func (h *CatalogHandlers) Restock(c *gin.Context) {
	var req struct {
		Quantity int `json:"quantity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	stock, err := h.products.AddStock(c.Request.Context(), c.Param("productId"), req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"productId": c.Param("productId"), "stock": stock})
}

// DeleteProduct handles DELETE /admin/products/:productId
func (h *CatalogHandlers) DeleteProduct(c *gin.Context) {
	if err := h.products.Delete(c.Request.Context(), c.Param("productId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
}

// ExportProducts handles GET /admin/products/export
func (h *CatalogHandlers) ExportProducts(c *gin.Context) {
	products, err := h.products.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := product.WriteSpreadsheet(&buf, products); err != nil {
		respondError(c, err)
		return
	}
	filename := "inventory-" + time.Now().Format("2006-01-02") + ".xlsx"
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, spreadsheetType, buf.Bytes())
}
