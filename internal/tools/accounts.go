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

func (r *Registry) registerAccountTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("list_accounts",
		mcp.WithDescription("Get all accounts from the chart of accounts. "+
			"Can filter by account type (Asset, Liability, Income, Expense, Equity) "+
			"and active status."),
		mcp.WithString("filter", mcp.Description("Account type to filter by (Asset, Liability, Income, Expense, Equity)")),
		mcp.WithBoolean("is_active", mcp.Description("Filter by active status")),
		mcp.WithString("search", mcp.Description("Substring to match against account names")),
	), r.handle("list_accounts", r.listAccounts))

	s.AddTool(mcp.NewTool("get_account",
		mcp.WithDescription("Get detailed information about a specific account by its UID"),
		mcp.WithString("account_id", mcp.Required(), mcp.Description("Account UID")),
	), r.handle("get_account", r.getAccount))
}

func (r *Registry) listAccounts(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	clauses := make([]string, 0, 3)
	if accountType := req.GetString("filter", ""); accountType != "" {
		clauses = append(clauses, odata.EqualsClause("Type", accountType))
	}
	if isActive, set := optionalBool(req, "is_active"); set {
		clauses = append(clauses, odata.BoolClause("IsActive", isActive))
	}
	if search := req.GetString("search", ""); search != "" {
		clause, err := odata.SearchClause(search, []string{"Name"})
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}

	query := odata.QueryOptions{Filter: odata.Combine("and", clauses...)}
	items, err := r.client.RequestPaged(ctx, "/GeneralLedger/Account", &myob.PagedOptions{
		Params:     query.Params(),
		CacheLabel: "accounts",
	})
	if err != nil {
		return nil, err
	}
	return fields.PickList(items, fields.AccountListFields), nil
}

func (r *Registry) getAccount(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	accountID, err := requireGUID(req, "account_id")
	if err != nil {
		return nil, err
	}

	result, err := r.client.Request(ctx, http.MethodGet, "/GeneralLedger/Account/"+accountID, nil)
	if err != nil {
		return nil, err
	}
	if m, ok := result.(map[string]interface{}); ok {
		return fields.StripMetadata(m), nil
	}
	return result, nil
}
