package pipeline

import (
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func wantAmount(t *testing.T, got *decimal.Decimal, want string) {
	t.Helper()
	if got == nil {
		t.Fatalf("amount is nil, want %s", want)
	}
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("got %s want %s", got.String(), want)
	}
}

func TestNormalizeRoundTrip(t *testing.T) {
	payload := map[string]any{
		"invoice_number": "INV-1",
		"items": []any{
			map[string]any{"description": "Paper", "net_amount": "500"},
			map[string]any{"description": "Pens", "net_amount": "200"},
		},
	}

	rows, err := Normalize("voucher_001", payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows=%d", len(rows))
	}
	for _, row := range rows {
		if row.SourcePDF != "voucher_001" {
			t.Fatalf("source=%q", row.SourcePDF)
		}
		if row.InvoiceNumber != "INV-1" {
			t.Fatalf("invoice=%q", row.InvoiceNumber)
		}
	}
	if rows[0].ItemDescription != "Paper" || rows[1].ItemDescription != "Pens" {
		t.Fatalf("descriptions=%q,%q", rows[0].ItemDescription, rows[1].ItemDescription)
	}
	wantAmount(t, rows[0].NetAmount, "500")
	wantAmount(t, rows[1].NetAmount, "200")
}

func TestNormalizeSnakeCaseSections(t *testing.T) {
	payload := map[string]any{
		"payment_voucher": map[string]any{
			"general_details": map[string]any{
				"unique_reference_number":           "URN-42",
				"invoice_no":                        "INV-9",
				"invoice_date":                      "2026-07-14",
				"name_of_the_supplier":              "Acme Supplies",
				"payment_to_be_made_in_the_name_of": "Acme Supplies Pvt Ltd",
				"purchase_type":                     "Indigenous",
			},
			"details_of_bills_claimed": []any{
				map[string]any{
					"type_of_stock":            "Consumable",
					"subcategory_of_the_stock": "Stationery",
					"item_name":                "A4 Paper",
					"net_amount":               "₹1,500.00",
					"remarks":                  "two reams",
				},
				map[string]any{
					"type_of_stock": "Asset",
					"item_name":     "Stapler",
					"net_amount":    350.0,
				},
			},
			"amount_summary": map[string]any{
				"total_amount_in_inr":              "₹1,850.00",
				"advance_taken_in_inr":             "",
				"net_amount_payable_in_figure_inr": "1850",
				"net_amount_payable_in_words_inr":  "One Thousand Eight Hundred Fifty Only",
			},
			"project_fund_details": map[string]any{
				"project_no":         "PRJ-7",
				"project_title":      "Lab Upgrade",
				"balance_in_project": "₹2,00,000",
				"source_of_payment":  "Grant",
				"head_of_expense":    "Consumables",
			},
		},
	}

	rows, err := Normalize("voucher_042", payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows=%d", len(rows))
	}

	for _, row := range rows {
		if row.ReferenceNumber != "URN-42" || row.InvoiceNumber != "INV-9" || row.SupplierName != "Acme Supplies" {
			t.Fatalf("voucher fields not shared: %+v", row)
		}
		wantAmount(t, row.TotalAmount, "1850")
		wantAmount(t, row.ProjectBalance, "200000")
		if row.PaymentSource != "Grant" || row.ExpenseHead != "Consumables" {
			t.Fatalf("classification=%q/%q", row.PaymentSource, row.ExpenseHead)
		}
		if row.AdvanceTaken != nil {
			t.Fatalf("advance should be nil, got %s", row.AdvanceTaken.String())
		}
	}

	if rows[0].ItemDescription != "A4 Paper" || rows[0].StockSubcategory != "Stationery" || rows[0].Remarks != "two reams" {
		t.Fatalf("first item: %+v", rows[0])
	}
	wantAmount(t, rows[0].NetAmount, "1500")
	if rows[1].ItemDescription != "Stapler" || rows[1].StockType != "Asset" || rows[1].Remarks != "" {
		t.Fatalf("second item: %+v", rows[1])
	}
	wantAmount(t, rows[1].NetAmount, "350")
}

func TestNormalizePascalCaseSections(t *testing.T) {
	payload := map[string]any{
		"PaymentVoucher": map[string]any{
			"VoucherDetails": map[string]any{
				"InvoiceNo":       "INV-77",
				"SupplierName":    "Gamma Traders",
				"PaymentInNameOf": "Gamma Traders",
				"PurchaseType":    "Import",
			},
			"FinancialSummary": map[string]any{
				"TotalAmountINR":            "9,999.99",
				"NetAmountPayableFigureINR": 9999.99,
				"NetAmountPayableWordsINR":  "Nine Thousand Nine Hundred Ninety Nine and Paise Ninety Nine Only",
			},
			"ItemDetails": map[string]any{
				"BillsClaimed": []any{
					map[string]any{
						"TypeOfStock":        "Service",
						"SubcategoryOfStock": "Calibration",
						"Description":        "Annual calibration",
						"NetAmount":          "9,999.99",
					},
				},
			},
			"ProjectFundDetails": map[string]any{
				"ProjectNo":    "PRJ-1",
				"ProjectTitle": "Metrology",
			},
		},
	}

	rows, err := Normalize("voucher_077", payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows=%d", len(rows))
	}
	row := rows[0]
	if row.InvoiceNumber != "INV-77" || row.SupplierName != "Gamma Traders" || row.PurchaseType != "Import" {
		t.Fatalf("voucher fields: %+v", row)
	}
	if row.StockType != "Service" || row.ItemDescription != "Annual calibration" {
		t.Fatalf("item fields: %+v", row)
	}
	wantAmount(t, row.NetAmount, "9999.99")
	if row.ProjectNo != "PRJ-1" || row.ProjectTitle != "Metrology" {
		t.Fatalf("project fields: %+v", row)
	}
}

func TestNormalizeNoItemsYieldsSingleRow(t *testing.T) {
	payload := map[string]any{
		"general_details": map[string]any{
			"invoice_no":           "INV-5",
			"name_of_the_supplier": "Beta Works",
		},
		"amount_summary": map[string]any{
			"total_amount_in_inr": "1200",
		},
	}

	rows, err := Normalize("voucher_005", payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows=%d", len(rows))
	}
	row := rows[0]
	if row.InvoiceNumber != "INV-5" {
		t.Fatalf("invoice=%q", row.InvoiceNumber)
	}
	wantAmount(t, row.TotalAmount, "1200")
	if row.ItemDescription != "" || row.Remarks != "" || row.StockType != "" || row.StockSubcategory != "" {
		t.Fatalf("item fields should be empty: %+v", row)
	}
	if row.NetAmount != nil {
		t.Fatalf("net amount should be nil, got %s", row.NetAmount.String())
	}
}

func TestNormalizeMissingFieldsStayEmpty(t *testing.T) {
	payload := map[string]any{
		"general_details": map[string]any{"invoice_no": "INV-2"},
		"items": []any{
			map[string]any{"description": "Widget"},
		},
	}

	rows, err := Normalize("voucher_002", payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows=%d", len(rows))
	}
	row := rows[0]
	if row.SupplierName != "" || row.PayeeName != "" || row.ProjectNo != "" {
		t.Fatalf("expected empty voucher fields: %+v", row)
	}
	if row.TotalAmount != nil || row.NetAmount != nil {
		t.Fatal("expected nil amounts")
	}
}

func TestNormalizeWrappedItemLists(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]any
	}{
		{
			name: "bill_details items_claimed",
			payload: map[string]any{
				"general_details": map[string]any{"invoice_no": "INV-3"},
				"bill_details": map[string]any{
					"items_claimed": []any{map[string]any{"description": "Cable", "net_amount": "75"}},
				},
			},
		},
		{
			name: "claimed_items items",
			payload: map[string]any{
				"general_details": map[string]any{"invoice_no": "INV-3"},
				"claimed_items": map[string]any{
					"items": []any{map[string]any{"description": "Cable", "net_amount": "75"}},
				},
			},
		},
		{
			name: "details list",
			payload: map[string]any{
				"general_details": map[string]any{"invoice_no": "INV-3"},
				"details":         []any{map[string]any{"description": "Cable", "net_amount": "75"}},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rows, err := Normalize("voucher_003", tc.payload)
			if err != nil {
				t.Fatal(err)
			}
			if len(rows) != 1 {
				t.Fatalf("rows=%d", len(rows))
			}
			if rows[0].ItemDescription != "Cable" {
				t.Fatalf("description=%q", rows[0].ItemDescription)
			}
			wantAmount(t, rows[0].NetAmount, "75")
		})
	}
}

func TestNormalizeCheckboxClassification(t *testing.T) {
	payload := map[string]any{
		"general_details": map[string]any{"invoice_no": "INV-6"},
		"administrative_approvals": map[string]any{
			"source_of_payment": map[string]any{"Grant": true, "Institute": false, "Endowment": true},
			"head_of_expense":   map[string]any{"Equipment": true},
		},
	}

	rows, err := Normalize("voucher_006", payload)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].PaymentSource != "Endowment, Grant" {
		t.Fatalf("source=%q", rows[0].PaymentSource)
	}
	if rows[0].ExpenseHead != "Equipment" {
		t.Fatalf("head=%q", rows[0].ExpenseHead)
	}
}

func TestNormalizeSelectedClassificationWins(t *testing.T) {
	payload := map[string]any{
		"general_details": map[string]any{"invoice_no": "INV-8"},
		"project_fund_details": map[string]any{
			"source_of_payment": "Grant",
		},
		"categorization_of_expense": map[string]any{
			"source_of_payment": map[string]any{"selected": "Institute Fund"},
			"head_of_expense":   map[string]any{"selected": "Travel"},
		},
	}

	rows, err := Normalize("voucher_008", payload)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].PaymentSource != "Institute Fund" {
		t.Fatalf("source=%q", rows[0].PaymentSource)
	}
	if rows[0].ExpenseHead != "Travel" {
		t.Fatalf("head=%q", rows[0].ExpenseHead)
	}
}

func TestNormalizeProjectContentsTable(t *testing.T) {
	payload := map[string]any{
		"general_details": map[string]any{"invoice_no": "INV-4"},
		"project_fund_details": map[string]any{
			"items": []any{
				map[string]any{"contents": "Project No", "details": "PRJ-55"},
				map[string]any{"contents": "Project Title", "details": "Thermal Lab"},
			},
		},
	}

	rows, err := Normalize("voucher_004", payload)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].ProjectNo != "PRJ-55" || rows[0].ProjectTitle != "Thermal Lab" {
		t.Fatalf("project=%q/%q", rows[0].ProjectNo, rows[0].ProjectTitle)
	}
}

func TestNormalizeStringPayloadReparsed(t *testing.T) {
	rows, err := Normalize("voucher_009", `{"invoice_number": "INV-S", "items": [{"description": "Tape", "net_amount": "30"}]}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].InvoiceNumber != "INV-S" {
		t.Fatalf("rows=%+v", rows)
	}
}

func TestNormalizeUnusablePayloads(t *testing.T) {
	cases := []struct {
		name    string
		payload any
	}{
		{name: "bare text", payload: "this is not a voucher"},
		{name: "number", payload: 42.0},
		{name: "list", payload: []any{map[string]any{"invoice_no": "INV-1"}}},
		{name: "json string of list", payload: `[1, 2, 3]`},
		{name: "object with no recognizable fields", payload: map[string]any{"foo": "bar"}},
		{name: "nil", payload: nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rows, err := Normalize("voucher_bad", tc.payload)
			if !errors.Is(err, ErrUnusablePayload) {
				t.Fatalf("err=%v", err)
			}
			if len(rows) != 0 {
				t.Fatalf("rows=%d", len(rows))
			}
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	payload := map[string]any{
		"general_details": map[string]any{"invoice_no": "INV-10", "name_of_the_supplier": "Delta"},
		"items": []any{
			map[string]any{"description": "Bolts", "net_amount": "120"},
			map[string]any{"description": "Nuts", "net_amount": "80"},
		},
	}

	first, err := Normalize("voucher_010", payload)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Normalize("voucher_010", payload)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("runs differ:\n%+v\n%+v", first, second)
	}
}

func TestNormalizeKeepsItemOrder(t *testing.T) {
	items := make([]any, 0, 5)
	names := []string{"one", "two", "three", "four", "five"}
	for _, n := range names {
		items = append(items, map[string]any{"description": n})
	}
	payload := map[string]any{
		"general_details": map[string]any{"invoice_no": "INV-11"},
		"items":           items,
	}

	rows, err := Normalize("voucher_011", payload)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, row := range rows {
		got = append(got, row.ItemDescription)
	}
	if !reflect.DeepEqual(got, names) {
		t.Fatalf("order=%v", got)
	}
}

func TestNormalizeRowsShareVoucherContext(t *testing.T) {
	payload := map[string]any{
		"general_details": map[string]any{"invoice_no": "INV-12", "name_of_the_supplier": "Epsilon"},
		"amount_summary":  map[string]any{"total_amount_in_inr": "400"},
		"items": []any{
			map[string]any{"description": "Left", "net_amount": "100"},
			map[string]any{"description": "Right", "net_amount": "300"},
		},
	}

	rows, err := Normalize("voucher_012", payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows=%d", len(rows))
	}
	a, b := rows[0], rows[1]
	a.ItemDescription, b.ItemDescription = "", ""
	a.NetAmount, b.NetAmount = nil, nil
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("voucher context differs:\n%+v\n%+v", a, b)
	}
}
