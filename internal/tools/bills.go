package tools

import (
	"context"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fixxdigital/myob-mcp-server/internal/fields"
	"github.com/fixxdigital/myob-mcp-server/internal/myob"
	"github.com/fixxdigital/myob-mcp-server/internal/odata"
)

func (r *Registry) registerBillTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("list_bills",
		mcp.WithDescription("Get purchase bills. Can filter by date range, status, supplier, "+
			"and search by bill number. Use top to limit results and orderby to sort "+
			"(e.g. orderby='Date desc' for most recent first)."),
		mcp.WithString("date_from", mcp.Description("Earliest bill date, YYYY-MM-DD")),
		mcp.WithString("date_to", mcp.Description("Latest bill date, YYYY-MM-DD")),
		mcp.WithString("status", mcp.Description("Bill status, e.g. Open, Closed, Debit")),
		mcp.WithString("supplier_id", mcp.Description("Supplier UID to filter by")),
		mcp.WithString("search", mcp.Description("Substring to match against bill numbers")),
		mcp.WithNumber("top", mcp.Description("Maximum number of bills to return")),
		mcp.WithString("orderby", mcp.Description("Sort order, e.g. 'Date desc'")),
	), r.handle("list_bills", r.listBills))

	s.AddTool(mcp.NewTool("get_bill",
		mcp.WithDescription("Get detailed information about a specific purchase bill by its UID"),
		mcp.WithString("bill_id", mcp.Required(), mcp.Description("Bill UID")),
	), r.handle("get_bill", r.getBill))

	s.AddTool(mcp.NewTool("create_bill",
		mcp.WithDescription("Create a new purchase bill from a supplier. "+
			"Set bill_layout to 'Item' (default) for quantity-based bills "+
			"(line items need: description, ship_quantity, unit_price, total, account_id, "+
			"optional tax_code_id, optional job_id), or 'Service' for amount-based bills "+
			"(line items need: description, amount, account_id, optional tax_code_id, "+
			"optional job_id)."),
		mcp.WithString("supplier_id", mcp.Required(), mcp.Description("Supplier UID")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Bill date, YYYY-MM-DD")),
		mcp.WithString("due_date", mcp.Required(), mcp.Description("Payment due date, YYYY-MM-DD")),
		mcp.WithArray("line_items", mcp.Required(), mcp.Description("Bill line items"),
			mcp.Items(map[string]interface{}{"type": "object"})),
		mcp.WithString("bill_layout", mcp.Description("Bill layout: Item (default) or Service")),
		mcp.WithString("reference", mcp.Description("Bill number to assign")),
		mcp.WithString("notes", mcp.Description("Comment to store on the bill")),
	), r.handle("create_bill", r.createBill))
}

func (r *Registry) listBills(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	filter, err := saleDocumentFilter(req, "Supplier")
	if err != nil {
		return nil, err
	}

	query := odata.QueryOptions{Filter: filter, OrderBy: req.GetString("orderby", "")}
	items, err := r.client.RequestPaged(ctx, "/Purchase/Bill", &myob.PagedOptions{
		Params:     query.Params(),
		Top:        req.GetInt("top", 0),
		CacheLabel: "bills",
	})
	if err != nil {
		return nil, err
	}
	return shapeSaleList(items, fields.BillListFields), nil
}

func (r *Registry) getBill(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	billID, err := requireGUID(req, "bill_id")
	if err != nil {
		return nil, err
	}

	result, err := r.client.Request(ctx, http.MethodGet, "/Purchase/Bill/"+billID, nil)
	if err != nil {
		return nil, err
	}
	if m, ok := result.(map[string]interface{}); ok {
		return fields.Pick(fields.FixSubtotal(m), fields.BillDetailFields), nil
	}
	return result, nil
}

func (r *Registry) createBill(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	supplierID, err := requireString(req, "supplier_id")
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
	dueDate, err := requireString(req, "due_date")
	if err != nil {
		return nil, err
	}
	if _, err := odata.ValidateDate(dueDate); err != nil {
		return nil, err
	}
	layout, err := normalizeLayout(req.GetString("bill_layout", ""), "bill_layout")
	if err != nil {
		return nil, err
	}
	items, err := objectList(req, "line_items")
	if err != nil {
		return nil, err
	}
	lines, err := buildTransactionLines(items, layout, "BillQuantity")
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"Supplier":       map[string]interface{}{"UID": supplierID},
		"Date":           date,
		"BalanceDueDate": dueDate,
		"Lines":          lines,
	}
	if reference := req.GetString("reference", ""); reference != "" {
		body["Number"] = reference
	}
	if notes := req.GetString("notes", ""); notes != "" {
		body["Comment"] = notes
	}

	result, err := r.client.Request(ctx, http.MethodPost, "/Purchase/Bill/"+layout, &myob.RequestOptions{
		Body: body,
	})
	if err != nil {
		return nil, err
	}
	r.client.Invalidate("bills")
	return shapeCreateResult(result, fields.CreateResultFields), nil
}
