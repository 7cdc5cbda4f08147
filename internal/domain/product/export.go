package product

import (
	"fmt"
	"io"
	"strings"

	"github.com/tealeg/xlsx"
)

var spreadsheetHeaders = []string{
	"ID", "Name", "Type", "Category", "Subcategory", "Tags", "Price", "Stock", "Image", "CreatedAt",
}

// WriteSpreadsheet writes the inventory sheet used by the admin console
func WriteSpreadsheet(w io.Writer, products []*Product) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Inventory")
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, h := range spreadsheetHeaders {
		header.AddCell().SetValue(h)
	}

	for _, p := range products {
		row := sheet.AddRow()
		row.AddCell().SetValue(p.ID)
		row.AddCell().SetValue(p.Name)
		row.AddCell().SetValue(string(p.Type))
		row.AddCell().SetValue(p.Category)
		row.AddCell().SetValue(p.Subcategory)
		row.AddCell().SetValue(strings.Join(p.Tags, ","))
		row.AddCell().SetFloat(p.Price.InexactFloat64())
		row.AddCell().SetInt(p.Stock)
		row.AddCell().SetValue(p.ImageURL)
		row.AddCell().SetValue(p.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write spreadsheet: %w", err)
	}
	return nil
}
