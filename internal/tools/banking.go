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

func (r *Registry) registerBankingTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("list_bank_accounts",
		mcp.WithDescription("Get all bank accounts from the chart of accounts"),
	), r.handle("list_bank_accounts", r.listBankAccounts))

	s.AddTool(mcp.NewTool("list_bank_transactions",
		mcp.WithDescription("Get bank transactions for a specific bank account. "+
			"Can filter by date range."),
		mcp.WithString("bank_account_id", mcp.Required(), mcp.Description("Bank account UID")),
		mcp.WithString("date_from", mcp.Description("Earliest transaction date, YYYY-MM-DD")),
		mcp.WithString("date_to", mcp.Description("Latest transaction date, YYYY-MM-DD")),
	), r.handle("list_bank_transactions", r.listBankTransactions))

	s.AddTool(mcp.NewTool("create_spend_money",
		mcp.WithDescription("Record a spend money transaction paid from a bank account. "+
			"Each entry in the lines array needs: account_id (the expense account UID) "+
			"and amount, with optional memo, tax_code_id, and job_id."),
		mcp.WithString("bank_account_id", mcp.Required(), mcp.Description("UID of the bank account the money is paid from")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Transaction date, YYYY-MM-DD")),
		mcp.WithArray("lines", mcp.Required(), mcp.Description("Allocation lines"),
			mcp.Items(map[string]interface{}{"type": "object"})),
		mcp.WithString("contact_id", mcp.Description("UID of the payee contact")),
		mcp.WithString("memo", mcp.Description("Memo to store on the transaction")),
		mcp.WithBoolean("is_tax_inclusive", mcp.Description("Whether line amounts include tax")),
	), r.handle("create_spend_money", r.createSpendMoney))
}

func (r *Registry) listBankAccounts(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	items, err := r.client.RequestPaged(ctx, "/Banking/BankAccount", &myob.PagedOptions{
		CacheLabel: "bank_accounts",
	})
	if err != nil {
		return nil, err
	}
	return fields.PickList(items, fields.BankAccountListFields), nil
}

func (r *Registry) listBankTransactions(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	bankAccountID, err := requireString(req, "bank_account_id")
	if err != nil {
		return nil, err
	}

	clauses := make([]string, 0, 3)
	accountClause, err := odata.IdentifierEquals("Account/UID", bankAccountID)
	if err != nil {
		return nil, err
	}
	clauses = append(clauses, accountClause)

	if dateFrom := req.GetString("date_from", ""); dateFrom != "" {
		clause, err := odata.DateClause("Date", "ge", dateFrom)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	if dateTo := req.GetString("date_to", ""); dateTo != "" {
		clause, err := odata.DateClause("Date", "le", dateTo)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}

	query := odata.QueryOptions{Filter: odata.Combine("and", clauses...)}
	items, err := r.client.RequestPaged(ctx, "/Banking/SpendMoneyTxn", &myob.PagedOptions{
		Params: query.Params(),
	})
	if err != nil {
		return nil, err
	}
	return fields.PickList(items, fields.BankTxnListFields), nil
}

func (r *Registry) createSpendMoney(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	bankAccountID, err := requireString(req, "bank_account_id")
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

	items, err := objectList(req, "lines")
	if err != nil {
		return nil, err
	}
	lines := make([]interface{}, 0, len(items))
	for i, item := range items {
		accountID, ok := stringField(item, "account_id")
		if !ok {
			return nil, errors.ValidationErrorf("lines[%d]: account_id is required", i)
		}
		amount, ok := numberField(item, "amount")
		if !ok {
			return nil, errors.ValidationErrorf("lines[%d]: amount is required", i)
		}

		line := map[string]interface{}{
			"Account": map[string]interface{}{"UID": accountID},
			"Amount":  amount,
		}
		if memo, ok := stringField(item, "memo"); ok {
			line["Memo"] = memo
		}
		if taxCodeID, ok := stringField(item, "tax_code_id"); ok {
			line["TaxCode"] = map[string]interface{}{"UID": taxCodeID}
		}
		if jobID, ok := stringField(item, "job_id"); ok {
			line["Job"] = map[string]interface{}{"UID": jobID}
		}
		lines = append(lines, line)
	}

	body := map[string]interface{}{
		"PayFrom": "Account",
		"Account": map[string]interface{}{"UID": bankAccountID},
		"Date":    date,
		"Lines":   lines,
	}
	if contactID := req.GetString("contact_id", ""); contactID != "" {
		body["Contact"] = map[string]interface{}{"UID": contactID}
	}
	if memo := req.GetString("memo", ""); memo != "" {
		body["Memo"] = memo
	}
	if isTaxInclusive, set := optionalBool(req, "is_tax_inclusive"); set {
		body["IsTaxInclusive"] = isTaxInclusive
	}

	result, err := r.client.Request(ctx, http.MethodPost, "/Banking/SpendMoneyTxn", &myob.RequestOptions{
		Body: body,
	})
	if err != nil {
		return nil, err
	}
	r.client.Invalidate("bank_accounts", "accounts")
	return shapeCreateResult(result, fields.CreateResultFields), nil
}
