package tools

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fixxdigital/myob-mcp-server/internal/common/errors"
	"github.com/fixxdigital/myob-mcp-server/internal/fields"
	"github.com/fixxdigital/myob-mcp-server/internal/myob"
	"github.com/fixxdigital/myob-mcp-server/internal/odata"
)

var validPaymentMethods = map[string]bool{
	"CreditCard":         true,
	"Cash":               true,
	"Cheque":             true,
	"BankDeposit":        true,
	"ElectronicPayments": true,
}

func (r *Registry) registerPaymentTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("create_customer_payment",
		mcp.WithDescription("Create a new customer payment to record money received "+
			"from a customer and apply it to one or more outstanding invoices. "+
			"Each entry in the invoices array needs: invoice_id (the invoice UID) "+
			"and amount_applied (the amount to apply to that invoice)."),
		mcp.WithString("customer_id", mcp.Required(), mcp.Description("Customer UID")),
		mcp.WithString("payment_date", mcp.Required(), mcp.Description("Payment date, YYYY-MM-DD")),
		mcp.WithNumber("amount", mcp.Required(), mcp.Description("Total amount received")),
		mcp.WithString("bank_account_id", mcp.Required(), mcp.Description("UID of the bank account receiving the payment")),
		mcp.WithArray("invoices", mcp.Required(), mcp.Description("Invoices to apply the payment to"),
			mcp.Items(map[string]interface{}{"type": "object"})),
		mcp.WithString("memo", mcp.Description("Memo to store on the payment")),
		mcp.WithString("payment_method", mcp.Description("Payment method, defaults to BankDeposit")),
	), r.handle("create_customer_payment", r.createCustomerPayment))

	s.AddTool(mcp.NewTool("create_sales_order_deposit",
		mcp.WithDescription("Record a customer deposit/prepayment against a sales order. "+
			"Applies a payment to the specified sales order and deposits it into "+
			"the given bank account."),
		mcp.WithString("sales_order_id", mcp.Required(), mcp.Description("Sales order UID")),
		mcp.WithString("customer_id", mcp.Required(), mcp.Description("Customer UID")),
		mcp.WithString("payment_date", mcp.Required(), mcp.Description("Payment date, YYYY-MM-DD")),
		mcp.WithNumber("amount", mcp.Required(), mcp.Description("Deposit amount")),
		mcp.WithString("bank_account_id", mcp.Required(), mcp.Description("UID of the bank account receiving the deposit")),
		mcp.WithString("memo", mcp.Description("Memo to store on the payment")),
		mcp.WithString("payment_method", mcp.Description("Payment method, defaults to BankDeposit")),
	), r.handle("create_sales_order_deposit", r.createSalesOrderDeposit))
}

// paymentMethod validates the payment_method argument against the values
// AccountRight accepts, defaulting to BankDeposit.
func paymentMethod(req mcp.CallToolRequest) (string, error) {
	method := req.GetString("payment_method", "BankDeposit")
	if validPaymentMethods[method] {
		return method, nil
	}

	allowed := make([]string, 0, len(validPaymentMethods))
	for m := range validPaymentMethods {
		allowed = append(allowed, m)
	}
	sort.Strings(allowed)
	return "", errors.ValidationErrorf("invalid payment_method %q, must be one of: %s",
		method, strings.Join(allowed, ", "))
}

func (r *Registry) createCustomerPayment(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	customerID, err := requireString(req, "customer_id")
	if err != nil {
		return nil, err
	}
	paymentDate, err := requireString(req, "payment_date")
	if err != nil {
		return nil, err
	}
	if _, err := odata.ValidateDate(paymentDate); err != nil {
		return nil, err
	}
	bankAccountID, err := requireString(req, "bank_account_id")
	if err != nil {
		return nil, err
	}
	method, err := paymentMethod(req)
	if err != nil {
		return nil, err
	}

	amount, ok := numberField(req.GetArguments(), "amount")
	if !ok {
		return nil, errors.ValidationError("amount is required")
	}

	invoices, err := objectList(req, "invoices")
	if err != nil {
		return nil, err
	}
	applications := make([]interface{}, 0, len(invoices))
	for i, inv := range invoices {
		invoiceID, ok := stringField(inv, "invoice_id")
		if !ok {
			return nil, errors.ValidationErrorf("invoices[%d]: invoice_id is required", i)
		}
		applied, ok := numberField(inv, "amount_applied")
		if !ok {
			return nil, errors.ValidationErrorf("invoices[%d]: amount_applied is required", i)
		}
		applications = append(applications, map[string]interface{}{
			"UID":           invoiceID,
			"AmountApplied": applied,
		})
	}

	body := map[string]interface{}{
		"Customer":       map[string]interface{}{"UID": customerID},
		"Date":           paymentDate,
		"AmountReceived": amount,
		"Account":        map[string]interface{}{"UID": bankAccountID},
		"PaymentMethod":  method,
		"Invoices":       applications,
	}
	if memo := req.GetString("memo", ""); memo != "" {
		body["Memo"] = memo
	}

	result, err := r.client.Request(ctx, http.MethodPost, "/Sale/CustomerPayment", &myob.RequestOptions{
		Body: body,
	})
	if err != nil {
		return nil, err
	}
	r.client.Invalidate("invoices")
	return shapeCreateResult(result, fields.CustomerPaymentResultFields), nil
}

func (r *Registry) createSalesOrderDeposit(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	salesOrderID, err := requireString(req, "sales_order_id")
	if err != nil {
		return nil, err
	}
	customerID, err := requireString(req, "customer_id")
	if err != nil {
		return nil, err
	}
	paymentDate, err := requireString(req, "payment_date")
	if err != nil {
		return nil, err
	}
	if _, err := odata.ValidateDate(paymentDate); err != nil {
		return nil, err
	}
	bankAccountID, err := requireString(req, "bank_account_id")
	if err != nil {
		return nil, err
	}
	method, err := paymentMethod(req)
	if err != nil {
		return nil, err
	}

	amount, ok := numberField(req.GetArguments(), "amount")
	if !ok {
		return nil, errors.ValidationError("amount is required")
	}

	body := map[string]interface{}{
		"Customer":       map[string]interface{}{"UID": customerID},
		"Date":           paymentDate,
		"AmountReceived": amount,
		"DepositTo":      "Account",
		"Account":        map[string]interface{}{"UID": bankAccountID},
		"PaymentMethod":  method,
		"Invoices": []interface{}{
			map[string]interface{}{
				"UID":           salesOrderID,
				"Type":          "Order",
				"AmountApplied": amount,
			},
		},
	}
	if memo := req.GetString("memo", ""); memo != "" {
		body["Memo"] = memo
	}

	result, err := r.client.Request(ctx, http.MethodPost, "/Sale/CustomerPayment", &myob.RequestOptions{
		Body: body,
	})
	if err != nil {
		return nil, err
	}
	r.client.Invalidate("sales_orders")
	return shapeCreateResult(result, fields.SalesOrderDepositResultFields), nil
}
