package export

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Aaron-Tawil/super-order-automation/internal"
)

// OrdersToXLSX writes a review workbook, one row per line item, with the
// order-level fields repeated so a reviewer can filter by invoice.
func OrdersToXLSX(orders []internal.Order, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{
		"invoice_number", "supplier_code", "supplier_name", "currency",
		"barcode", "description", "quantity", "raw_unit_price", "vat_status",
		"line_discount_pct", "global_discount_pct", "final_net_price",
		"document_total_with_vat", "document_total_quantity", "vat_rate",
		"processing_cost", "warnings",
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	r := 1
	for _, order := range orders {
		for _, item := range order.LineItems {
			r++
			set := func(col int, value any) {
				cell, _ := excelize.CoordinatesToCellName(col, r)
				_ = f.SetCellValue(sheet, cell, value)
			}

			set(1, order.InvoiceNumber)
			set(2, order.SupplierCode)
			set(3, order.SupplierName)
			set(4, order.Currency)
			set(5, item.Barcode)
			set(6, item.Description)
			set(7, item.Quantity)
			set(8, item.RawUnitPrice)
			set(9, string(item.VatStatus))
			set(10, item.DiscountPercentage)
			set(11, order.GlobalDiscountPercentage)
			set(12, item.FinalNetPrice)
			set(13, derefFloat(order.DocumentTotalWithVat))
			set(14, derefFloat(order.DocumentTotalQuantity))
			set(15, derefFloat(order.VatRate))
			set(16, order.ProcessingCost)
			set(17, strings.Join(order.Warnings, "; "))
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
