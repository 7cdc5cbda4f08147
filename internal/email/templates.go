package email

import (
	"fmt"
	"strings"

	"github.com/example/poster-shop/internal/domain/invoice"
	"github.com/example/poster-shop/internal/money"
)

// TemplateParams are the variables the hosted email template renders
type TemplateParams struct {
	ToEmail     string `json:"to_email"`
	ToName      string `json:"to_name"`
	OrderNumber string `json:"order_number"`
	Subtotal    string `json:"subtotal"`
	Shipping    string `json:"shipping"`
	Total       string `json:"total"`
	Items       string `json:"items"`
	Message     string `json:"message"`
}

// BuildItemsTable renders one line per cart item
func BuildItemsTable(inv *invoice.Invoice) string {
	rows := make([]string, 0, len(inv.Items))
	for _, item := range inv.Items {
		rows = append(rows, fmt.Sprintf("%d x %s — %s", item.Quantity, item.ProductName, money.Format(item.LineTotal())))
	}
	return strings.Join(rows, "\n")
}

// BuildSubject returns the subject line for an invoice email
func BuildSubject(inv *invoice.Invoice) string {
	return "Your Postro Order " + inv.OrderNumber
}

// BuildMessage builds the plain-text body of the receipt email
func BuildMessage(inv *invoice.Invoice) string {
	lines := []string{
		fmt.Sprintf("Hi %s,", inv.Name),
		"",
		fmt.Sprintf("Thanks for shopping at Postro. Here is your receipt for order %s.", inv.OrderNumber),
		"",
		BuildItemsTable(inv),
		"",
		"Subtotal: " + money.Format(inv.Subtotal),
	}
	if inv.Shipping.IsPositive() {
		lines = append(lines, "Shipping: "+money.Format(inv.Shipping))
	}
	lines = append(lines,
		"Total: "+money.Format(inv.Total),
		"",
		"Stay bold,",
		"Team Postro",
	)
	return strings.Join(lines, "\n")
}

// BuildTemplateParams fills the template variables for inv
func BuildTemplateParams(inv *invoice.Invoice) TemplateParams {
	return TemplateParams{
		ToEmail:     inv.Email,
		ToName:      inv.Name,
		OrderNumber: inv.OrderNumber,
		Subtotal:    money.Format(inv.Subtotal),
		Shipping:    money.Format(money.Sanitize(inv.Shipping)),
		Total:       money.Format(inv.Total),
		Items:       BuildItemsTable(inv),
		Message:     BuildMessage(inv),
	}
}
