package tools

import (
	"strings"

	"github.com/fixxdigital/myob-mcp-server/internal/common/errors"
	"github.com/fixxdigital/myob-mcp-server/internal/fields"
)

// normalizeLayout canonicalizes an Item/Service layout argument. An empty
// value defaults to Item, matching how AccountRight names its default forms.
func normalizeLayout(value, param string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "item":
		return "Item", nil
	case "service":
		return "Service", nil
	}
	return "", errors.ValidationErrorf("invalid %s %q, must be 'Item' or 'Service'", param, value)
}

// buildTransactionLines converts line_items arguments into AccountRight
// transaction lines. Item layout lines need ship_quantity, unit_price, and
// total; Service layout lines need amount. Both need account_id and accept
// optional description, tax_code_id, and job_id. quantityKey is the wire
// name for the quantity field: sale documents use ShipQuantity, purchase
// bills use BillQuantity.
func buildTransactionLines(items []map[string]interface{}, layout, quantityKey string) ([]map[string]interface{}, error) {
	lines := make([]map[string]interface{}, 0, len(items))
	for i, item := range items {
		accountID, ok := stringField(item, "account_id")
		if !ok {
			return nil, errors.ValidationErrorf("line_items[%d]: account_id is required", i)
		}

		description, _ := stringField(item, "description")
		line := map[string]interface{}{
			"Type":        "Transaction",
			"Description": description,
			"Account":     map[string]interface{}{"UID": accountID},
		}

		if layout == "Item" {
			quantity, ok := numberField(item, "ship_quantity")
			if !ok {
				return nil, errors.ValidationErrorf("line_items[%d]: ship_quantity is required for Item layout", i)
			}
			unitPrice, ok := numberField(item, "unit_price")
			if !ok {
				return nil, errors.ValidationErrorf("line_items[%d]: unit_price is required for Item layout", i)
			}
			total, ok := numberField(item, "total")
			if !ok {
				return nil, errors.ValidationErrorf("line_items[%d]: total is required for Item layout", i)
			}
			line[quantityKey] = quantity
			line["UnitPrice"] = unitPrice
			line["Total"] = total
		} else {
			amount, ok := numberField(item, "amount")
			if !ok {
				return nil, errors.ValidationErrorf("line_items[%d]: amount is required for Service layout", i)
			}
			line["Total"] = amount
		}

		if taxCodeID, ok := stringField(item, "tax_code_id"); ok {
			line["TaxCode"] = map[string]interface{}{"UID": taxCodeID}
		}
		if jobID, ok := stringField(item, "job_id"); ok {
			line["Job"] = map[string]interface{}{"UID": jobID}
		}

		lines = append(lines, line)
	}
	return lines, nil
}

// shapeSaleList recomputes tax-inclusive subtotals and projects each sale
// document in items down to the fields named in spec.
func shapeSaleList(items []interface{}, spec fields.Spec) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, fields.Pick(fields.FixSubtotal(m), spec))
	}
	return out
}

// shapeCreateResult projects a write response down to its confirmation
// fields. AccountRight sometimes answers a write with an empty body; those
// pass through untouched.
func shapeCreateResult(result interface{}, spec fields.Spec) interface{} {
	m, ok := result.(map[string]interface{})
	if !ok {
		return result
	}
	return fields.Pick(m, spec)
}
