package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixxdigital/myob-mcp-server/internal/common/errors"
)

func TestValidateAttachment(t *testing.T) {
	content := "aGVsbG8="

	tests := []struct {
		name     string
		fileName string
		content  string
		wantErr  string
	}{
		{"valid pdf", "receipt.pdf", content, ""},
		{"valid uppercase extension", "SCAN.PDF", content, ""},
		{"valid jpeg", "photo.jpeg", content, ""},
		{"empty name", "  ", content, "file_name must not be empty"},
		{"no extension", "receipt", content, "unsupported file extension"},
		{"bad extension", "malware.exe", content, "unsupported file extension"},
		{"empty content", "receipt.pdf", "  ", "file_base64_content must not be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAttachment(tt.fileName, tt.content)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAttachment_SizeLimit(t *testing.T) {
	// 3 MB decodes from 4 MiB of base64; one byte over the line fails
	overLimit := strings.Repeat("A", maxAttachmentBytes*4/3+4)
	err := validateAttachment("big.pdf", overLimit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file too large")
	assert.Contains(t, err.Error(), "maximum is 3 MB")

	underLimit := strings.Repeat("A", 1024)
	require.NoError(t, validateAttachment("small.pdf", underLimit))
}

func TestExtractAttachments(t *testing.T) {
	attachment := map[string]interface{}{"UID": "att-1", "OriginalFileName": "receipt.pdf"}

	assert.Equal(t, []interface{}{attachment}, extractAttachments([]interface{}{attachment}))
	assert.Equal(t, []interface{}{attachment}, extractAttachments(map[string]interface{}{
		"Attachments": []interface{}{attachment},
	}))
	assert.Empty(t, extractAttachments(nil))
	assert.Empty(t, extractAttachments(map[string]interface{}{"Items": []interface{}{}}))
}

func TestUploadSpendMoneyAttachment(t *testing.T) {
	stub := newAPIStub(t)
	reg := newTestRegistry(t, stub)

	txnID := "b1b1b1b1-0000-4000-8000-000000000001"
	stub.respond("POST /cf-1/Banking/SpendMoneyTxn/"+txnID+"/Attachment", map[string]interface{}{
		"Attachments": []interface{}{
			map[string]interface{}{
				"UID":              "att-1",
				"OriginalFileName": "receipt.pdf",
				"URI":              "https://example/att-1",
			},
		},
	})

	result, err := reg.uploadSpendMoneyAttachment(context.Background(), toolRequest(map[string]interface{}{
		"transaction_id":      txnID,
		"file_name":           "receipt.pdf",
		"file_base64_content": "aGVsbG8=",
	}))
	require.NoError(t, err)

	call := stub.lastCall()
	assert.Equal(t, "POST", call.Method)
	assert.Equal(t, "/cf-1/Banking/SpendMoneyTxn/"+txnID+"/Attachment", call.Path)
	attachments, ok := call.Body["Attachments"].([]interface{})
	require.True(t, ok)
	entry := attachments[0].(map[string]interface{})
	assert.Equal(t, "receipt.pdf", entry["OriginalFileName"])
	assert.Equal(t, "aGVsbG8=", entry["FileBase64Content"])

	shaped, ok := result.([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, shaped, 1)
	assert.Equal(t, "att-1", shaped[0]["UID"])
	assert.NotContains(t, shaped[0], "URI")
}

func TestUploadBillAttachment_LayoutInPath(t *testing.T) {
	stub := newAPIStub(t)
	reg := newTestRegistry(t, stub)

	billID := "b1b1b1b1-0000-4000-8000-000000000002"
	_, err := reg.uploadBillAttachment(context.Background(), toolRequest(map[string]interface{}{
		"bill_id":             billID,
		"bill_layout":         "service",
		"file_name":           "invoice.png",
		"file_base64_content": "aGVsbG8=",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/cf-1/Purchase/Bill/Service/"+billID+"/Attachment", stub.lastCall().Path)
}

func TestUploadBillAttachment_RejectsBadLayout(t *testing.T) {
	stub := newAPIStub(t)
	reg := newTestRegistry(t, stub)

	_, err := reg.uploadBillAttachment(context.Background(), toolRequest(map[string]interface{}{
		"bill_id":             "b1b1b1b1-0000-4000-8000-000000000002",
		"bill_layout":         "Professional",
		"file_name":           "invoice.png",
		"file_base64_content": "aGVsbG8=",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bill_layout")
	assert.Equal(t, 0, stub.callCount())
}

func TestDeleteBillAttachment(t *testing.T) {
	stub := newAPIStub(t)
	reg := newTestRegistry(t, stub)

	billID := "b1b1b1b1-0000-4000-8000-000000000002"
	attID := "b1b1b1b1-0000-4000-8000-000000000003"

	result, err := reg.deleteBillAttachment(context.Background(), toolRequest(map[string]interface{}{
		"bill_id":       billID,
		"attachment_id": attID,
	}))
	require.NoError(t, err)

	call := stub.lastCall()
	assert.Equal(t, "DELETE", call.Method)
	assert.Equal(t, "/cf-1/Purchase/Bill/Item/"+billID+"/Attachment/"+attID, call.Path)
	assert.Equal(t, map[string]string{"status": "deleted", "attachment_id": attID}, result)
}
