package pipeline

import (
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"voucherpipe/internal"
)

const sheetName = "combined"

var workbookHeaders = []string{
	"Source PDF",
	"Unique Reference Number",
	"Invoice No.",
	"Invoice Date",
	"Name of the Supplier",
	"Payment to be made in the name of",
	"Purchase Type (Import/Indigenous)",
	"Type of Stock (Asset/Cons./Service)",
	"Subcategory of the stock",
	"Description of the Item (Item Name)",
	"Net Amount",
	"Remarks",
	"Total Amount (INR)",
	"Advance taken (if any) in INR",
	"Less: Penalty Deducted in INR",
	"Net Amount Payable (figure) INR",
	"Net Amount Payable (words) INR",
	"Project No",
	"Project Title",
	"Balance in Project",
	"Overhead Deducted",
	"Source of payment",
	"Head of expense",
}

func WriteWorkbook(rows []internal.VoucherRow, outputPath string) error {
	f := excelize.NewFile()
	defaultSheet := f.GetSheetName(0)
	if err := f.SetSheetName(defaultSheet, sheetName); err != nil {
		return err
	}

	widths := make([]int, len(workbookHeaders))
	for i, h := range workbookHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
		widths[i] = utf8.RuneCountInString(h)
	}

	for r, row := range rows {
		for c, value := range cellValues(row) {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheetName, cell, value)
			if n := utf8.RuneCountInString(value); n > widths[c] {
				widths[c] = n
			}
		}
	}

	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			continue
		}
		_ = f.SetColWidth(sheetName, col, col, float64(clampWidth(width+2)))
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func cellValues(row internal.VoucherRow) []string {
	return []string{
		row.SourcePDF,
		row.ReferenceNumber,
		row.InvoiceNumber,
		row.InvoiceDate,
		row.SupplierName,
		row.PayeeName,
		row.PurchaseType,
		row.StockType,
		row.StockSubcategory,
		row.ItemDescription,
		derefDecimal(row.NetAmount),
		row.Remarks,
		derefDecimal(row.TotalAmount),
		derefDecimal(row.AdvanceTaken),
		derefDecimal(row.PenaltyDeducted),
		derefDecimal(row.NetPayable),
		row.NetPayableWords,
		row.ProjectNo,
		row.ProjectTitle,
		derefDecimal(row.ProjectBalance),
		derefDecimal(row.OverheadDeducted),
		row.PaymentSource,
		row.ExpenseHead,
	}
}

func derefDecimal(v *decimal.Decimal) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func clampWidth(width int) int {
	if width < 10 {
		return 10
	}
	if width > 50 {
		return 50
	}
	return width
}
