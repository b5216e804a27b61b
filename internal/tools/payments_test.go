package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixxdigital/myob-mcp-server/internal/common/errors"
)

func TestCreateCustomerPayment_Body(t *testing.T) {
	stub := newAPIStub(t)
	reg := newTestRegistry(t, stub)
	stub.respond("POST /cf-1/Sale/CustomerPayment", map[string]interface{}{
		"UID":            "pay-1",
		"ReceiptNumber":  "CR000001",
		"Date":           "2024-06-01T00:00:00",
		"AmountReceived": 150.0,
		"URI":            "https://example/payment",
	})

	result, err := reg.createCustomerPayment(context.Background(), toolRequest(map[string]interface{}{
		"customer_id":     "cust-1",
		"payment_date":    "2024-06-01",
		"amount":          150.0,
		"bank_account_id": "bank-1",
		"memo":            "Invoice settlement",
		"invoices": []interface{}{
			map[string]interface{}{"invoice_id": "inv-1", "amount_applied": 100.0},
			map[string]interface{}{"invoice_id": "inv-2", "amount_applied": 50.0},
		},
	}))
	require.NoError(t, err)

	call := stub.lastCall()
	assert.Equal(t, "/cf-1/Sale/CustomerPayment", call.Path)
	assert.Equal(t, map[string]interface{}{"UID": "cust-1"}, call.Body["Customer"])
	assert.Equal(t, map[string]interface{}{"UID": "bank-1"}, call.Body["Account"])
	assert.Equal(t, "2024-06-01", call.Body["Date"])
	assert.Equal(t, 150.0, call.Body["AmountReceived"])
	assert.Equal(t, "BankDeposit", call.Body["PaymentMethod"])
	assert.Equal(t, "Invoice settlement", call.Body["Memo"])
	assert.NotContains(t, call.Body, "DepositTo")

	applications, ok := call.Body["Invoices"].([]interface{})
	require.True(t, ok)
	require.Len(t, applications, 2)
	first := applications[0].(map[string]interface{})
	assert.Equal(t, "inv-1", first["UID"])
	assert.Equal(t, 100.0, first["AmountApplied"])

	shaped, ok := result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "CR000001", shaped["ReceiptNumber"])
	assert.NotContains(t, shaped, "URI")
}

func TestCreateCustomerPayment_Validation(t *testing.T) {
	stub := newAPIStub(t)
	reg := newTestRegistry(t, stub)

	base := func() map[string]interface{} {
		return map[string]interface{}{
			"customer_id":     "cust-1",
			"payment_date":    "2024-06-01",
			"amount":          150.0,
			"bank_account_id": "bank-1",
			"invoices": []interface{}{
				map[string]interface{}{"invoice_id": "inv-1", "amount_applied": 150.0},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(args map[string]interface{})
		wantErr string
	}{
		{
			"bad date",
			func(args map[string]interface{}) { args["payment_date"] = "01-06-2024" },
			"invalid date",
		},
		{
			"unknown method",
			func(args map[string]interface{}) { args["payment_method"] = "Barter" },
			"invalid payment_method",
		},
		{
			"no invoices",
			func(args map[string]interface{}) { args["invoices"] = []interface{}{} },
			"invoices cannot be empty",
		},
		{
			"missing amount",
			func(args map[string]interface{}) { delete(args, "amount") },
			"amount is required",
		},
		{
			"application without invoice id",
			func(args map[string]interface{}) {
				args["invoices"] = []interface{}{
					map[string]interface{}{"amount_applied": 10.0},
				}
			},
			"invoices[0]: invoice_id is required",
		},
		{
			"application without amount",
			func(args map[string]interface{}) {
				args["invoices"] = []interface{}{
					map[string]interface{}{"invoice_id": "inv-1"},
				}
			},
			"invoices[0]: amount_applied is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := base()
			tt.mutate(args)

			_, err := reg.createCustomerPayment(context.Background(), toolRequest(args))
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.Equal(t, 0, stub.callCount(), "validation failures must not reach the network")
}

func TestPaymentMethodWhitelist(t *testing.T) {
	for _, method := range []string{"CreditCard", "Cash", "Cheque", "BankDeposit", "ElectronicPayments"} {
		got, err := paymentMethod(toolRequest(map[string]interface{}{"payment_method": method}))
		require.NoError(t, err, method)
		assert.Equal(t, method, got)
	}

	got, err := paymentMethod(toolRequest(map[string]interface{}{}))
	require.NoError(t, err)
	assert.Equal(t, "BankDeposit", got)

	_, err = paymentMethod(toolRequest(map[string]interface{}{"payment_method": "IOU"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BankDeposit, Cash, Cheque, CreditCard, ElectronicPayments")
}

func TestCreateSalesOrderDeposit_Body(t *testing.T) {
	stub := newAPIStub(t)
	reg := newTestRegistry(t, stub)
	stub.respond("POST /cf-1/Sale/CustomerPayment", map[string]interface{}{
		"UID":            "pay-2",
		"ReceiptNumber":  "CR000002",
		"Date":           "2024-06-02T00:00:00",
		"AmountReceived": 500.0,
	})

	_, err := reg.createSalesOrderDeposit(context.Background(), toolRequest(map[string]interface{}{
		"sales_order_id":  "ord-1",
		"customer_id":     "cust-1",
		"payment_date":    "2024-06-02",
		"amount":          500.0,
		"bank_account_id": "bank-1",
		"payment_method":  "Cash",
	}))
	require.NoError(t, err)

	call := stub.lastCall()
	assert.Equal(t, "Account", call.Body["DepositTo"])
	assert.Equal(t, "Cash", call.Body["PaymentMethod"])

	applications, ok := call.Body["Invoices"].([]interface{})
	require.True(t, ok)
	require.Len(t, applications, 1)
	application := applications[0].(map[string]interface{})
	assert.Equal(t, "ord-1", application["UID"])
	assert.Equal(t, "Order", application["Type"])
	assert.Equal(t, 500.0, application["AmountApplied"])
}
