package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fixxdigital/myob-mcp-server/internal/fields"
	"github.com/fixxdigital/myob-mcp-server/internal/myob"
)

func (r *Registry) registerTaxCodeTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("list_tax_codes",
		mcp.WithDescription("Get all tax codes for the company file. "+
			"Returns UID, Code, Description, Type, and Rate for each tax code. "+
			"Use the UID when setting tax codes on invoice, bill, or sales order line items. "+
			"Common codes include GST, FRE (GST-Free), and N-T (No Tax)."),
	), r.handle("list_tax_codes", r.listTaxCodes))
}

func (r *Registry) listTaxCodes(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	items, err := r.client.RequestPaged(ctx, "/GeneralLedger/TaxCode", &myob.PagedOptions{
		CacheLabel: "tax_codes",
	})
	if err != nil {
		return nil, err
	}
	return fields.PickList(items, fields.TaxCodeListFields), nil
}
