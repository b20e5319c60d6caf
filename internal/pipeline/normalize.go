package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"voucherpipe/internal"
	"voucherpipe/internal/util"
)

// ErrUnusablePayload marks a payload that cannot be interpreted as a voucher
// at all. The caller records it as a per-document failure and moves on.
var ErrUnusablePayload = errors.New("unusable payload")

// keyPath is a chain of keys probed through nested sub-mappings.
type keyPath []string

// The extraction service does not commit to a fixed output schema, so every
// section and field is located through a prioritized list of alternative
// key paths. Probe order is fixed; the first present, non-empty value wins;
// a miss on every alternative means "empty", not "error".
var (
	rootPaths = []keyPath{
		{"payment_voucher"},
		{"PaymentVoucher"},
	}
	generalPaths = []keyPath{
		{"general_details"},
		{"voucher_metadata"},
		{"reference_details"},
		{"general_information"},
		{"VoucherDetails"},
		{"HeaderInfo"},
	}
	amountPaths = []keyPath{
		{"amount_summary"},
		{"financial_summary"},
		{"amount_details"},
		{"details_of_bills", "amount_summary"},
		{"bill_details", "amount_summary"},
		{"FinancialSummary"},
	}
	projectPaths = []keyPath{
		{"project_fund_details"},
		{"project_details"},
		{"ProjectFundDetails"},
	}
	itemsPaths = []keyPath{
		{"details_of_bills_claimed"},
		{"bills_claimed_details"},
		{"bill_details", "items_claimed"},
		{"claimed_items", "items"},
		{"details_of_bills", "items"},
		{"items"},
		{"details"},
		{"ItemDetails", "BillsClaimed"},
		{"ItemDetails"},
	}
	classificationPaths = []keyPath{
		{"administrative_approvals"},
		{"AccountingClassification"},
	}
)

var (
	refNumberKeys     = []string{"unique_reference_number", "UniqueReferenceNumber"}
	invoiceNoKeys     = []string{"invoice_no", "invoice_number", "InvoiceNo"}
	invoiceDateKeys   = []string{"invoice_date", "InvoiceDate"}
	supplierKeys      = []string{"name_of_the_supplier", "supplier_name", "SupplierName"}
	payeeKeys         = []string{"payment_to_be_made_in_the_name_of", "payment_to_name", "payment_to_be_made_in_name_of", "PaymentInNameOf"}
	purchaseTypeKeys  = []string{"purchase_type", "PurchaseType"}
	stockTypeKeys     = []string{"type_of_stock", "TypeOfStock", "TypeofStock_Asset_ConsService"}
	subcategoryKeys   = []string{"subcategory_of_the_stock", "subcategory_of_stock", "SubcategoryOfStock"}
	descriptionKeys   = []string{"item_name", "description_item_name", "description", "Description", "ItemName"}
	itemNetKeys       = []string{"net_amount", "net_amount_inr", "NetAmount"}
	remarksKeys       = []string{"remarks", "Remarks"}
	totalKeys         = []string{"total_amount_in_inr", "total_amount_inr", "total_amount", "TotalAmountINR"}
	advanceKeys       = []string{"advance_taken_in_inr", "advance_taken_inr", "advance_taken", "AdvanceTakenINR"}
	penaltyKeys       = []string{"penalty_deducted_in_inr", "penalty_deducted_inr", "penalty_deducted", "PenaltyDeductedINR"}
	netFigureKeys     = []string{"net_amount_payable_in_figure_inr", "net_amount_payable_figure_inr", "net_amount_payable", "NetAmountPayableFigureINR"}
	netWordsKeys      = []string{"net_amount_payable_in_words_inr", "net_amount_payable_words_inr", "net_amount_payable_words", "NetAmountPayableWordsINR"}
	projectNoKeys     = []string{"project_no", "ProjectNo"}
	projectTitleKeys  = []string{"project_title", "ProjectTitle"}
	balanceKeys       = []string{"balance_in_project", "BalanceInProject"}
	overheadKeys      = []string{"overhead_deducted", "OverheadDeducted"}
	paymentSourceKeys = []string{"source_of_payment", "SourceOfPayment"}
	expenseHeadKeys   = []string{"head_of_expense", "HeadOfExpense"}
)

// Normalize converts one raw extraction payload into canonical voucher rows.
// A voucher with N line items yields N rows sharing every voucher-level
// field; a voucher without an item list yields exactly one row with the
// item-level fields left empty. Pure function of its inputs.
func Normalize(sourceName string, payload any) ([]internal.VoucherRow, error) {
	root, err := asVoucherMap(payload)
	if err != nil {
		return nil, err
	}

	pv := root
	for _, path := range rootPaths {
		if m := lookupMap(root, path); len(m) > 0 {
			pv = m
			break
		}
	}

	// Some payloads skip the section wrappers and carry fields directly on
	// the voucher root; a missing section falls back to probing the root.
	gen := firstMap(pv, generalPaths)
	if len(gen) == 0 {
		gen = pv
	}
	amount := firstMap(pv, amountPaths)
	if len(amount) == 0 {
		amount = pv
	}
	proj := firstMap(pv, projectPaths)

	projectNo, projectTitle := projectIdentity(proj)
	paymentSource, expenseHead := resolveClassification(pv, proj)

	voucher := internal.VoucherRow{
		SourcePDF:        sourceName,
		ReferenceNumber:  firstString(gen, refNumberKeys),
		InvoiceNumber:    firstString(gen, invoiceNoKeys),
		InvoiceDate:      firstString(gen, invoiceDateKeys),
		SupplierName:     firstString(gen, supplierKeys),
		PayeeName:        firstString(gen, payeeKeys),
		PurchaseType:     firstString(gen, purchaseTypeKeys),
		TotalAmount:      firstAmount(amount, totalKeys),
		AdvanceTaken:     firstAmount(amount, advanceKeys),
		PenaltyDeducted:  firstAmount(amount, penaltyKeys),
		NetPayable:       firstAmount(amount, netFigureKeys),
		NetPayableWords:  firstString(amount, netWordsKeys),
		ProjectNo:        projectNo,
		ProjectTitle:     projectTitle,
		ProjectBalance:   firstAmount(proj, balanceKeys),
		OverheadDeducted: firstAmount(proj, overheadKeys),
		PaymentSource:    paymentSource,
		ExpenseHead:      expenseHead,
	}

	items := firstItems(pv)
	if len(items) == 0 {
		if voucherIsEmpty(voucher) {
			return nil, fmt.Errorf("%w: no recognizable voucher fields in %s", ErrUnusablePayload, sourceName)
		}
		return []internal.VoucherRow{voucher}, nil
	}

	rows := make([]internal.VoucherRow, 0, len(items))
	for _, item := range items {
		row := voucher
		row.StockType = firstString(item, stockTypeKeys)
		row.StockSubcategory = firstString(item, subcategoryKeys)
		row.ItemDescription = firstString(item, descriptionKeys)
		row.NetAmount = firstAmount(item, itemNetKeys)
		row.Remarks = firstString(item, remarksKeys)
		rows = append(rows, row)
	}
	return rows, nil
}

func asVoucherMap(payload any) (map[string]any, error) {
	switch t := payload.(type) {
	case map[string]any:
		return t, nil
	case string:
		// The extraction stage saves raw text verbatim; give a string one
		// chance to decode before declaring it unusable.
		var decoded any
		if err := json.Unmarshal([]byte(t), &decoded); err != nil {
			return nil, fmt.Errorf("%w: payload is a non-JSON string", ErrUnusablePayload)
		}
		if m, ok := decoded.(map[string]any); ok {
			return m, nil
		}
		return nil, fmt.Errorf("%w: payload decodes to %T, not a mapping", ErrUnusablePayload, decoded)
	default:
		return nil, fmt.Errorf("%w: payload is %T, not a mapping", ErrUnusablePayload, payload)
	}
}

func lookupMap(m map[string]any, path keyPath) map[string]any {
	v, ok := lookupValue(m, path)
	if !ok {
		return nil
	}
	inner, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return inner
}

func lookupValue(m map[string]any, path keyPath) (any, bool) {
	var current any = m
	for _, key := range path {
		inner, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = inner[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func firstMap(m map[string]any, paths []keyPath) map[string]any {
	for _, path := range paths {
		if found := lookupMap(m, path); len(found) > 0 {
			return found
		}
	}
	return nil
}

func firstValue(m map[string]any, keys []string) (any, bool) {
	for _, key := range keys {
		v, ok := m[key]
		if ok && !isEmptyValue(v) {
			return v, true
		}
	}
	return nil, false
}

func firstString(m map[string]any, keys []string) string {
	v, ok := firstValue(m, keys)
	if !ok {
		return ""
	}
	return renderString(v)
}

func firstAmount(m map[string]any, keys []string) *decimal.Decimal {
	v, ok := firstValue(m, keys)
	if !ok {
		return nil
	}
	return util.ParseAmount(v)
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

// renderString flattens any payload value into cell text. Mappings with a
// "selected" marker collapse to the chosen value; other composites are kept
// as compact JSON so no extracted data is silently lost.
func renderString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case map[string]any:
		if selected, ok := t["selected"]; ok {
			return renderString(selected)
		}
		blob, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(blob)
	case []any:
		blob, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(blob)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func firstItems(pv map[string]any) []map[string]any {
	for _, path := range itemsPaths {
		v, ok := lookupValue(pv, path)
		if !ok {
			continue
		}
		if list := toItemList(v); len(list) > 0 {
			return list
		}
	}
	return nil
}

func toItemList(v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, entry := range t {
			if m, ok := entry.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		for _, key := range []string{"items", "BillsClaimed", "items_claimed"} {
			if inner, ok := t[key]; ok {
				if list := toItemList(inner); len(list) > 0 {
					return list
				}
			}
		}
	}
	return nil
}

// projectIdentity reads project no/title directly, falling back to the
// tabular {contents, details} rows some payloads use for that section.
func projectIdentity(proj map[string]any) (string, string) {
	projectNo := firstString(proj, projectNoKeys)
	projectTitle := firstString(proj, projectTitleKeys)
	if projectNo != "" {
		return projectNo, projectTitle
	}

	entries, ok := proj["items"].([]any)
	if !ok {
		return projectNo, projectTitle
	}
	for _, entry := range entries {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		switch renderString(m["contents"]) {
		case "Project No":
			projectNo = renderString(m["details"])
		case "Project Title":
			projectTitle = renderString(m["details"])
		}
	}
	return projectNo, projectTitle
}

// resolveClassification locates payment source and expense head, which show
// up as plain strings in the project section, as checkbox maps (key → bool)
// under an approvals section, or as {selected: ...} wrappers under a
// categorization section. The later shapes override the earlier ones.
func resolveClassification(pv, proj map[string]any) (string, string) {
	source := firstString(proj, paymentSourceKeys)
	head := firstString(proj, expenseHeadKeys)

	admin := firstMap(pv, classificationPaths)
	if m, ok := admin["source_of_payment"].(map[string]any); ok {
		source = joinTrueKeys(m)
	}
	if m, ok := admin["head_of_expense"].(map[string]any); ok {
		head = joinTrueKeys(m)
	}

	if cat := lookupMap(pv, keyPath{"categorization_of_expense"}); len(cat) > 0 {
		if m, ok := cat["source_of_payment"].(map[string]any); ok {
			source = renderString(m["selected"])
		}
		if m, ok := cat["head_of_expense"].(map[string]any); ok {
			head = renderString(m["selected"])
		}
	}
	return source, head
}

func joinTrueKeys(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for key, v := range m {
		if checked, ok := v.(bool); ok && checked {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

func voucherIsEmpty(row internal.VoucherRow) bool {
	strs := []string{
		row.ReferenceNumber, row.InvoiceNumber, row.InvoiceDate,
		row.SupplierName, row.PayeeName, row.PurchaseType,
		row.NetPayableWords, row.ProjectNo, row.ProjectTitle,
		row.PaymentSource, row.ExpenseHead,
	}
	for _, s := range strs {
		if s != "" {
			return false
		}
	}
	decs := []*decimal.Decimal{
		row.TotalAmount, row.AdvanceTaken, row.PenaltyDeducted,
		row.NetPayable, row.ProjectBalance, row.OverheadDeducted,
	}
	for _, d := range decs {
		if d != nil {
			return false
		}
	}
	return true
}
