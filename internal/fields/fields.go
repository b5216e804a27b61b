// Package fields shapes MYOB responses before they go back over MCP.
// AccountRight payloads are verbose; whitelist projection keeps tool output
// down to what a caller can act on.
package fields

import "math"

// Spec is a field whitelist. A nil value keeps the field as-is; a nested
// Spec recurses into an object, or into each object of a list.
type Spec map[string]Spec

// Pick returns a copy of obj containing only whitelisted fields. Fields
// absent from obj are skipped, never invented.
func Pick(obj map[string]interface{}, spec Spec) map[string]interface{} {
	out := make(map[string]interface{}, len(spec))
	for key, sub := range spec {
		val, ok := obj[key]
		if !ok {
			continue
		}
		if sub == nil {
			out[key] = val
			continue
		}

		switch typed := val.(type) {
		case map[string]interface{}:
			out[key] = Pick(typed, sub)
		case []interface{}:
			picked := make([]interface{}, 0, len(typed))
			for _, item := range typed {
				if m, ok := item.(map[string]interface{}); ok {
					picked = append(picked, Pick(m, sub))
				}
			}
			out[key] = picked
		}
	}
	return out
}

// PickList applies Pick to every object in items. Non-object entries are
// dropped.
func PickList(items []interface{}, spec Spec) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, Pick(m, spec))
		}
	}
	return out
}

// FixSubtotal corrects Subtotal to the pre-tax amount. On tax-inclusive
// documents MYOB sets Subtotal equal to TotalAmount, so callers would see
// the tax counted twice; this rewrites it to TotalAmount - TotalTax.
func FixSubtotal(obj map[string]interface{}) map[string]interface{} {
	inclusive, _ := obj["IsTaxInclusive"].(bool)
	if !inclusive {
		return obj
	}

	total := numberOrZero(obj["TotalAmount"])
	tax := numberOrZero(obj["TotalTax"])

	out := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	out["Subtotal"] = math.Round((total-tax)*100) / 100
	return out
}

// StripMetadata removes URI and RowVersion from the top level of obj.
func StripMetadata(obj map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		if k == "URI" || k == "RowVersion" {
			continue
		}
		out[k] = v
	}
	return out
}

func numberOrZero(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

// Entity references kept on list and detail projections.
var (
	customerRef = Spec{"UID": nil, "Name": nil}
	supplierRef = Spec{"UID": nil, "Name": nil}
	taxCodeRef  = Spec{"UID": nil, "Code": nil}
	accountRef  = Spec{"UID": nil, "Name": nil}
)

// List projections drop everything a summary row does not need.
var (
	AccountListFields = Spec{
		"UID":            nil,
		"Name":           nil,
		"Number":         nil,
		"Type":           nil,
		"IsActive":       nil,
		"Classification": nil,
		"CurrentBalance": nil,
	}

	ContactListFields = Spec{
		"UID":          nil,
		"CompanyName":  nil,
		"FirstName":    nil,
		"LastName":     nil,
		"IsIndividual": nil,
		"IsActive":     nil,
		"Type":         nil,
	}

	InvoiceListFields = Spec{
		"UID":              nil,
		"Number":           nil,
		"Date":             nil,
		"Status":           nil,
		"Customer":         customerRef,
		"Subtotal":         nil,
		"TotalTax":         nil,
		"TotalAmount":      nil,
		"BalanceDueAmount": nil,
	}

	BillListFields = Spec{
		"UID":              nil,
		"Number":           nil,
		"Date":             nil,
		"Status":           nil,
		"Supplier":         supplierRef,
		"Subtotal":         nil,
		"TotalTax":         nil,
		"TotalAmount":      nil,
		"BalanceDueAmount": nil,
	}

	SalesOrderListFields = Spec{
		"UID":         nil,
		"Number":      nil,
		"Date":        nil,
		"Status":      nil,
		"Customer":    customerRef,
		"Subtotal":    nil,
		"TotalTax":    nil,
		"TotalAmount": nil,
	}

	BankAccountListFields = Spec{
		"UID":            nil,
		"Name":           nil,
		"Number":         nil,
		"CurrentBalance": nil,
		"IsActive":       nil,
		"BSBNumber":      nil,
	}

	BankTxnListFields = Spec{
		"UID":         nil,
		"Date":        nil,
		"Amount":      nil,
		"Description": nil,
		"Memo":        nil,
		"PayeeName":   nil,
		"Account":     accountRef,
	}

	TaxCodeListFields = Spec{
		"UID":         nil,
		"Code":        nil,
		"Description": nil,
		"Type":        nil,
		"Rate":        nil,
	}

	JobListFields = Spec{
		"UID":         nil,
		"Number":      nil,
		"Name":        nil,
		"Description": nil,
		"IsActive":    nil,
	}

	EmployeeListFields = Spec{
		"UID":       nil,
		"FirstName": nil,
		"LastName":  nil,
		"IsActive":  nil,
	}
)

// Detail projections keep line items but still drop link metadata.
var (
	invoiceLine = Spec{
		"Description": nil,
		"Quantity":    nil,
		"UnitPrice":   nil,
		"Total":       nil,
		"TaxCode":     taxCodeRef,
		"Account":     accountRef,
	}

	InvoiceDetailFields = Spec{
		"UID":              nil,
		"Number":           nil,
		"Date":             nil,
		"BalanceDueDate":   nil,
		"Status":           nil,
		"Customer":         customerRef,
		"Lines":            invoiceLine,
		"Subtotal":         nil,
		"TotalTax":         nil,
		"TotalAmount":      nil,
		"BalanceDueAmount": nil,
		"Comment":          nil,
		"IsTaxInclusive":   nil,
		"JournalMemo":      nil,
	}

	billLine = Spec{
		"Description": nil,
		"Quantity":    nil,
		"UnitPrice":   nil,
		"Total":       nil,
		"TaxCode":     taxCodeRef,
		"Account":     accountRef,
	}

	BillDetailFields = Spec{
		"UID":              nil,
		"Number":           nil,
		"Date":             nil,
		"BalanceDueDate":   nil,
		"Status":           nil,
		"Supplier":         supplierRef,
		"Lines":            billLine,
		"Subtotal":         nil,
		"TotalTax":         nil,
		"TotalAmount":      nil,
		"BalanceDueAmount": nil,
		"Comment":          nil,
		"IsTaxInclusive":   nil,
		"JournalMemo":      nil,
	}

	salesOrderLine = Spec{
		"Type":         nil,
		"Description":  nil,
		"ShipQuantity": nil,
		"UnitPrice":    nil,
		"Total":        nil,
		"Amount":       nil,
		"TaxCode":      taxCodeRef,
		"Account":      accountRef,
	}

	SalesOrderDetailFields = Spec{
		"UID":            nil,
		"Number":         nil,
		"Date":           nil,
		"Status":         nil,
		"Customer":       customerRef,
		"Lines":          salesOrderLine,
		"Subtotal":       nil,
		"TotalTax":       nil,
		"TotalAmount":    nil,
		"Comment":        nil,
		"ShipToAddress":  nil,
		"IsTaxInclusive": nil,
		"Freight":        nil,
	}
)

// Mutation confirmations carry just enough to reference what was written.
var (
	CreateResultFields = Spec{
		"UID":         nil,
		"Number":      nil,
		"Status":      nil,
		"CompanyName": nil,
		"Type":        nil,
	}

	CustomerPaymentResultFields = Spec{
		"UID":            nil,
		"ReceiptNumber":  nil,
		"Date":           nil,
		"AmountReceived": nil,
	}

	SalesOrderDepositResultFields = CustomerPaymentResultFields

	AttachmentListFields = Spec{
		"UID":              nil,
		"OriginalFileName": nil,
	}

	AttachmentUploadResultFields = AttachmentListFields
)
