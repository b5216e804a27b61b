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

func (r *Registry) registerInvoiceTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("list_invoices",
		mcp.WithDescription("Get sales invoices. Can filter by date range, status, customer, "+
			"and search by invoice number. Use top to limit results and orderby to sort "+
			"(e.g. orderby='Date desc' for most recent first)."),
		mcp.WithString("date_from", mcp.Description("Earliest invoice date, YYYY-MM-DD")),
		mcp.WithString("date_to", mcp.Description("Latest invoice date, YYYY-MM-DD")),
		mcp.WithString("status", mcp.Description("Invoice status, e.g. Open, Closed, Credit")),
		mcp.WithString("customer_id", mcp.Description("Customer UID to filter by")),
		mcp.WithString("search", mcp.Description("Substring to match against invoice numbers")),
		mcp.WithNumber("top", mcp.Description("Maximum number of invoices to return")),
		mcp.WithString("orderby", mcp.Description("Sort order, e.g. 'Date desc'")),
	), r.handle("list_invoices", r.listInvoices))

	s.AddTool(mcp.NewTool("get_invoice",
		mcp.WithDescription("Get detailed information about a specific sales invoice by its UID"),
		mcp.WithString("invoice_id", mcp.Required(), mcp.Description("Invoice UID")),
	), r.handle("get_invoice", r.getInvoice))

	s.AddTool(mcp.NewTool("create_invoice",
		mcp.WithDescription("Create a new sales invoice for a customer. "+
			"Set invoice_layout to 'Item' (default) for quantity-based invoices "+
			"(line items need: description, ship_quantity, unit_price, total, account_id, "+
			"optional tax_code_id, optional job_id), or 'Service' for amount-based invoices "+
			"(line items need: description, amount, account_id, optional tax_code_id, "+
			"optional job_id)."),
		mcp.WithString("customer_id", mcp.Required(), mcp.Description("Customer UID")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Invoice date, YYYY-MM-DD")),
		mcp.WithString("due_date", mcp.Required(), mcp.Description("Payment due date, YYYY-MM-DD")),
		mcp.WithArray("line_items", mcp.Required(), mcp.Description("Invoice line items"),
			mcp.Items(map[string]interface{}{"type": "object"})),
		mcp.WithString("invoice_layout", mcp.Description("Invoice layout: Item (default) or Service")),
		mcp.WithString("reference", mcp.Description("Invoice number to assign")),
		mcp.WithString("notes", mcp.Description("Comment to store on the invoice")),
	), r.handle("create_invoice", r.createInvoice))
}

// saleDocumentFilter builds the filter shared by invoice, bill, and sales
// order listings: a date window, a status, a counterparty, and a document
// number search.
func saleDocumentFilter(req mcp.CallToolRequest, partyField string) (string, error) {
	clauses := make([]string, 0, 5)
	if dateFrom := req.GetString("date_from", ""); dateFrom != "" {
		clause, err := odata.DateClause("Date", "ge", dateFrom)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}
	if dateTo := req.GetString("date_to", ""); dateTo != "" {
		clause, err := odata.DateClause("Date", "le", dateTo)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}
	if status := req.GetString("status", ""); status != "" {
		clauses = append(clauses, odata.EqualsClause("Status", status))
	}
	if partyID := req.GetString(partyArg(partyField), ""); partyID != "" {
		clause, err := odata.IdentifierEquals(partyField+"/UID", partyID)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}
	if search := req.GetString("search", ""); search != "" {
		clause, err := odata.SearchClause(search, []string{"Number"})
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}
	return odata.Combine("and", clauses...), nil
}

func partyArg(partyField string) string {
	if partyField == "Supplier" {
		return "supplier_id"
	}
	return "customer_id"
}

func (r *Registry) listInvoices(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	filter, err := saleDocumentFilter(req, "Customer")
	if err != nil {
		return nil, err
	}

	query := odata.QueryOptions{Filter: filter, OrderBy: req.GetString("orderby", "")}
	items, err := r.client.RequestPaged(ctx, "/Sale/Invoice", &myob.PagedOptions{
		Params:     query.Params(),
		Top:        req.GetInt("top", 0),
		CacheLabel: "invoices",
	})
	if err != nil {
		return nil, err
	}
	return shapeSaleList(items, fields.InvoiceListFields), nil
}

func (r *Registry) getInvoice(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	invoiceID, err := requireGUID(req, "invoice_id")
	if err != nil {
		return nil, err
	}

	result, err := r.client.Request(ctx, http.MethodGet, "/Sale/Invoice/"+invoiceID, nil)
	if err != nil {
		return nil, err
	}
	if m, ok := result.(map[string]interface{}); ok {
		return fields.Pick(fields.FixSubtotal(m), fields.InvoiceDetailFields), nil
	}
	return result, nil
}

func (r *Registry) createInvoice(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
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
	dueDate, err := requireString(req, "due_date")
	if err != nil {
		return nil, err
	}
	if _, err := odata.ValidateDate(dueDate); err != nil {
		return nil, err
	}
	layout, err := normalizeLayout(req.GetString("invoice_layout", ""), "invoice_layout")
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
		"Customer":       map[string]interface{}{"UID": customerID},
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

	result, err := r.client.Request(ctx, http.MethodPost, "/Sale/Invoice/"+layout, &myob.RequestOptions{
		Body: body,
	})
	if err != nil {
		return nil, err
	}
	r.client.Invalidate("invoices")
	return shapeCreateResult(result, fields.CreateResultFields), nil
}
