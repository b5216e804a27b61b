package tools

import (
	"context"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fixxdigital/myob-mcp-server/internal/common/errors"
	"github.com/fixxdigital/myob-mcp-server/internal/fields"
	"github.com/fixxdigital/myob-mcp-server/internal/myob"
	"github.com/fixxdigital/myob-mcp-server/internal/odata"
)

func (r *Registry) registerSalesOrderTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("list_sales_orders",
		mcp.WithDescription("Get sales orders. Can filter by date range, status, customer, "+
			"and search by order number. Use top to limit results and orderby to sort "+
			"(e.g. orderby='Date desc' for most recent first)."),
		mcp.WithString("date_from", mcp.Description("Earliest order date, YYYY-MM-DD")),
		mcp.WithString("date_to", mcp.Description("Latest order date, YYYY-MM-DD")),
		mcp.WithString("status", mcp.Description("Order status, e.g. Open, ConvertedToInvoice")),
		mcp.WithString("customer_id", mcp.Description("Customer UID to filter by")),
		mcp.WithString("search", mcp.Description("Substring to match against order numbers")),
		mcp.WithNumber("top", mcp.Description("Maximum number of orders to return")),
		mcp.WithString("orderby", mcp.Description("Sort order, e.g. 'Date desc'")),
	), r.handle("list_sales_orders", r.listSalesOrders))

	s.AddTool(mcp.NewTool("get_sales_order",
		mcp.WithDescription("Get detailed information about a specific sales order by its UID"),
		mcp.WithString("sales_order_id", mcp.Required(), mcp.Description("Sales order UID")),
	), r.handle("get_sales_order", r.getSalesOrder))

	s.AddTool(mcp.NewTool("create_sales_order",
		mcp.WithDescription("Create a new sales order for a customer. "+
			"Set order_layout to 'Item' (default) for quantity-based orders "+
			"(line items need: description, ship_quantity, unit_price, total, account_id, "+
			"optional tax_code_id, optional job_id), or 'Service' for amount-based orders "+
			"(line items need: description, amount, account_id, optional tax_code_id, "+
			"optional job_id). "+
			"Use salesperson_id (employee UID) to assign a salesperson. "+
			"Use customer_purchase_order_number for the customer's PO reference."),
		mcp.WithString("customer_id", mcp.Required(), mcp.Description("Customer UID")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Order date, YYYY-MM-DD")),
		mcp.WithArray("line_items", mcp.Required(), mcp.Description("Order line items"),
			mcp.Items(map[string]interface{}{"type": "object"})),
		mcp.WithString("order_layout", mcp.Description("Order layout: Item (default) or Service")),
		mcp.WithString("number", mcp.Description("Order number to assign")),
		mcp.WithString("comment", mcp.Description("Comment to store on the order")),
		mcp.WithString("ship_to_address", mcp.Description("Shipping address")),
		mcp.WithBoolean("is_tax_inclusive", mcp.Description("Whether line totals include tax")),
		mcp.WithNumber("freight", mcp.Description("Freight charge")),
		mcp.WithString("customer_purchase_order_number", mcp.Description("Customer's purchase order reference")),
		mcp.WithString("salesperson_id", mcp.Description("Employee UID to record as salesperson")),
	), r.handle("create_sales_order", r.createSalesOrder))

	s.AddTool(mcp.NewTool("edit_sales_order",
		mcp.WithDescription("Edit/update an existing sales order. Only orders with status 'Open' "+
			"can be edited. Set order_layout to match the order's layout: 'Item' (default) "+
			"for quantity-based orders, or 'Service' for amount-based orders. "+
			"Item line items need: description, ship_quantity, unit_price, total, account_id. "+
			"Service line items need: description, amount, account_id. "+
			"Both accept optional tax_code_id and job_id. "+
			"Use salesperson_id (employee UID) to assign a salesperson. "+
			"Use customer_purchase_order_number for the customer's PO reference."),
		mcp.WithString("sales_order_id", mcp.Required(), mcp.Description("Sales order UID")),
		mcp.WithString("order_layout", mcp.Description("Order layout: Item (default) or Service")),
		mcp.WithString("date", mcp.Description("New order date, YYYY-MM-DD")),
		mcp.WithString("customer_id", mcp.Description("New customer UID")),
		mcp.WithArray("line_items", mcp.Description("Replacement line items"),
			mcp.Items(map[string]interface{}{"type": "object"})),
		mcp.WithString("number", mcp.Description("New order number")),
		mcp.WithString("comment", mcp.Description("New comment")),
		mcp.WithString("ship_to_address", mcp.Description("New shipping address")),
		mcp.WithBoolean("is_tax_inclusive", mcp.Description("Whether line totals include tax")),
		mcp.WithNumber("freight", mcp.Description("New freight charge")),
		mcp.WithString("customer_purchase_order_number", mcp.Description("Customer's purchase order reference")),
		mcp.WithString("salesperson_id", mcp.Description("Employee UID to record as salesperson")),
	), r.handle("edit_sales_order", r.editSalesOrder))
}

func (r *Registry) listSalesOrders(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	filter, err := saleDocumentFilter(req, "Customer")
	if err != nil {
		return nil, err
	}

	query := odata.QueryOptions{Filter: filter, OrderBy: req.GetString("orderby", "")}
	items, err := r.client.RequestPaged(ctx, "/Sale/Order", &myob.PagedOptions{
		Params:     query.Params(),
		Top:        req.GetInt("top", 0),
		CacheLabel: "sales_orders",
	})
	if err != nil {
		return nil, err
	}
	return shapeSaleList(items, fields.SalesOrderListFields), nil
}

func (r *Registry) getSalesOrder(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	salesOrderID, err := requireGUID(req, "sales_order_id")
	if err != nil {
		return nil, err
	}

	result, err := r.client.Request(ctx, http.MethodGet, "/Sale/Order/"+salesOrderID, nil)
	if err != nil {
		return nil, err
	}
	if m, ok := result.(map[string]interface{}); ok {
		return fields.Pick(fields.FixSubtotal(m), fields.SalesOrderDetailFields), nil
	}
	return result, nil
}

// applyOrderArgs overlays the optional order arguments onto body.
func applyOrderArgs(req mcp.CallToolRequest, body map[string]interface{}) {
	if number := req.GetString("number", ""); number != "" {
		body["Number"] = number
	}
	if comment := req.GetString("comment", ""); comment != "" {
		body["Comment"] = comment
	}
	if shipTo := req.GetString("ship_to_address", ""); shipTo != "" {
		body["ShipToAddress"] = shipTo
	}
	if isTaxInclusive, set := optionalBool(req, "is_tax_inclusive"); set {
		body["IsTaxInclusive"] = isTaxInclusive
	}
	if freight, ok := numberField(req.GetArguments(), "freight"); ok {
		body["Freight"] = freight
	}
	if po := req.GetString("customer_purchase_order_number", ""); po != "" {
		body["CustomerPurchaseOrderNumber"] = po
	}
	if salespersonID := req.GetString("salesperson_id", ""); salespersonID != "" {
		body["Salesperson"] = map[string]interface{}{"UID": salespersonID}
	}
}

func (r *Registry) createSalesOrder(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	customerID, err := requireString(req, "customer_id")
	if err != nil {
		return nil, err
	}
	date, err := requireString(req, "date")
	if err != nil {
		return nil, err
	}
	if _, err := odata.ValidateDate(date); err != nil {
		return nil, err
	}
	layout, err := normalizeLayout(req.GetString("order_layout", ""), "order_layout")
	if err != nil {
		return nil, err
	}
	items, err := objectList(req, "line_items")
	if err != nil {
		return nil, err
	}
	lines, err := buildTransactionLines(items, layout, "ShipQuantity")
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"Customer": map[string]interface{}{"UID": customerID},
		"Date":     date,
		"Lines":    lines,
	}
	applyOrderArgs(req, body)

	result, err := r.client.Request(ctx, http.MethodPost, "/Sale/Order/"+layout, &myob.RequestOptions{
		Body: body,
	})
	if err != nil {
		return nil, err
	}
	r.client.Invalidate("sales_orders")
	return shapeCreateResult(result, fields.CreateResultFields), nil
}

func (r *Registry) editSalesOrder(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	salesOrderID, err := requireGUID(req, "sales_order_id")
	if err != nil {
		return nil, err
	}
	layout, err := normalizeLayout(req.GetString("order_layout", ""), "order_layout")
	if err != nil {
		return nil, err
	}

	// Fetch the full current order. The PUT needs its RowVersion, so this
	// read must bypass any cached projection.
	result, err := r.client.Request(ctx, http.MethodGet, "/Sale/Order/"+salesOrderID, nil)
	if err != nil {
		return nil, err
	}
	current, ok := result.(map[string]interface{})
	if !ok {
		return nil, errors.NotFoundError("sales order " + salesOrderID)
	}

	if status, _ := current["Status"].(string); status != "Open" {
		return nil, errors.ValidationErrorf(
			"cannot edit order with status %q, only orders with status 'Open' can be edited", status)
	}
	if actualLayout, _ := current["Layout"].(string); actualLayout != "" && actualLayout != layout {
		return nil, errors.ValidationErrorf(
			"layout mismatch: order has layout %q but order_layout %q was specified", actualLayout, layout)
	}
	if _, ok := current["RowVersion"]; !ok {
		return nil, errors.ValidationError(
			"cannot update order: RowVersion missing from fetched order, " +
				"the order may have been deleted or the API response format changed")
	}

	body := make(map[string]interface{}, len(current))
	for k, v := range current {
		body[k] = v
	}

	if date := req.GetString("date", ""); date != "" {
		if _, err := odata.ValidateDate(date); err != nil {
			return nil, err
		}
		body["Date"] = date
	}
	if customerID := req.GetString("customer_id", ""); customerID != "" {
		body["Customer"] = map[string]interface{}{"UID": customerID}
	}
	applyOrderArgs(req, body)

	if _, present := req.GetArguments()["line_items"]; present {
		items, err := objectList(req, "line_items")
		if err != nil {
			return nil, err
		}
		lines, err := buildTransactionLines(items, layout, "ShipQuantity")
		if err != nil {
			return nil, err
		}
		body["Lines"] = lines
	}

	updated, err := r.client.Request(ctx, http.MethodPut, "/Sale/Order/"+layout+"/"+salesOrderID, &myob.RequestOptions{
		Body: body,
	})
	if err != nil {
		return nil, err
	}
	r.client.Invalidate("sales_orders")
	return shapeCreateResult(updated, fields.CreateResultFields), nil
}
