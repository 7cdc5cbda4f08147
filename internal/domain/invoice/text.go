package invoice

import (
	"fmt"
	"strings"

	"github.com/example/poster-shop/internal/money"
	"github.com/shopspring/decimal"
)

const dateLayout = "2 Jan 2006, 3:04 PM"

// FormatCurrency renders an amount in rupees with Indian digit grouping
func FormatCurrency(d decimal.Decimal) string {
	return money.Format(d)
}

// AddressLine joins the non-empty address parts
func (inv *Invoice) AddressLine() string {
	var parts []string
	for _, p := range []string{inv.Address, inv.City, inv.PostalCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// BuildText renders the plain-text receipt offered for download
func BuildText(inv *Invoice) string {
	lines := []string{
		"POSTRO • ORDER RECEIPT",
		"Order: " + inv.OrderNumber,
		"Date: " + inv.CreatedAt.Format(dateLayout),
		"Name: " + inv.Name,
		"Email: " + inv.Email,
	}
	if address := inv.AddressLine(); address != "" {
		lines = append(lines, "Ship To: "+address)
	}

	lines = append(lines, "", "Items:")
	for _, item := range inv.Items {
		lines = append(lines, fmt.Sprintf("- %d x %s @ %s = %s",
			item.Quantity, item.ProductName, FormatCurrency(item.Price), FormatCurrency(item.LineTotal())))
	}

	lines = append(lines, "", "Totals:", "Subtotal: "+FormatCurrency(inv.Subtotal))
	if inv.Shipping.IsPositive() {
		lines = append(lines, "Shipping: "+FormatCurrency(inv.Shipping))
	}
	lines = append(lines, "Total: "+FormatCurrency(inv.Total))

	if inv.Notes != "" {
		lines = append(lines, "", "Notes:", inv.Notes)
	}
	return strings.Join(lines, "\n")
}

// Filename is the download name of the receipt
func Filename(inv *Invoice) string {
	return inv.OrderNumber + ".txt"
}
