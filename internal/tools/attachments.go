package tools

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fixxdigital/myob-mcp-server/internal/common/errors"
	"github.com/fixxdigital/myob-mcp-server/internal/fields"
	"github.com/fixxdigital/myob-mcp-server/internal/myob"
)

// maxAttachmentBytes is AccountRight's per-file attachment limit.
const maxAttachmentBytes = 3 * 1024 * 1024

var allowedAttachmentExtensions = map[string]bool{
	"pdf":  true,
	"tiff": true,
	"tif":  true,
	"jpg":  true,
	"jpeg": true,
	"png":  true,
}

func (r *Registry) registerAttachmentTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("upload_spend_money_attachment",
		mcp.WithDescription("Attach a file (receipt, invoice image, etc.) to a spend "+
			"money transaction. The file must be base64-encoded. Accepted formats: "+
			"PDF, TIFF, JPG, JPEG, PNG. Maximum size: 3 MB. "+
			"Call multiple times to attach multiple files."),
		mcp.WithString("transaction_id", mcp.Required(), mcp.Description("Spend money transaction UID")),
		mcp.WithString("file_name", mcp.Required(), mcp.Description("Original file name including extension")),
		mcp.WithString("file_base64_content", mcp.Required(), mcp.Description("Base64-encoded file content")),
	), r.handle("upload_spend_money_attachment", r.uploadSpendMoneyAttachment))

	s.AddTool(mcp.NewTool("list_spend_money_attachments",
		mcp.WithDescription("List file attachments on a spend money transaction. "+
			"Returns attachment UIDs and original file names. "+
			"Note: file content is not returned by the API."),
		mcp.WithString("transaction_id", mcp.Required(), mcp.Description("Spend money transaction UID")),
	), r.handle("list_spend_money_attachments", r.listSpendMoneyAttachments))

	s.AddTool(mcp.NewTool("delete_spend_money_attachment",
		mcp.WithDescription("Remove a file attachment from a spend money transaction. "+
			"Use list_spend_money_attachments to find the attachment UID first."),
		mcp.WithString("transaction_id", mcp.Required(), mcp.Description("Spend money transaction UID")),
		mcp.WithString("attachment_id", mcp.Required(), mcp.Description("Attachment UID")),
	), r.handle("delete_spend_money_attachment", r.deleteSpendMoneyAttachment))

	s.AddTool(mcp.NewTool("upload_bill_attachment",
		mcp.WithDescription("Attach a file (receipt, invoice image, etc.) to a purchase "+
			"bill. Set bill_layout to 'Item' (default) or 'Service' to match "+
			"the bill's layout. Accepted formats: PDF, TIFF, JPG, JPEG, PNG. "+
			"Maximum size: 3 MB. Call multiple times to attach multiple files."),
		mcp.WithString("bill_id", mcp.Required(), mcp.Description("Bill UID")),
		mcp.WithString("file_name", mcp.Required(), mcp.Description("Original file name including extension")),
		mcp.WithString("file_base64_content", mcp.Required(), mcp.Description("Base64-encoded file content")),
		mcp.WithString("bill_layout", mcp.Description("Bill layout: Item (default) or Service")),
	), r.handle("upload_bill_attachment", r.uploadBillAttachment))

	s.AddTool(mcp.NewTool("list_bill_attachments",
		mcp.WithDescription("List file attachments on a purchase bill. "+
			"Set bill_layout to 'Item' (default) or 'Service' to match "+
			"the bill's layout. Returns attachment UIDs and original file names."),
		mcp.WithString("bill_id", mcp.Required(), mcp.Description("Bill UID")),
		mcp.WithString("bill_layout", mcp.Description("Bill layout: Item (default) or Service")),
	), r.handle("list_bill_attachments", r.listBillAttachments))

	s.AddTool(mcp.NewTool("delete_bill_attachment",
		mcp.WithDescription("Remove a file attachment from a purchase bill. "+
			"Set bill_layout to 'Item' (default) or 'Service' to match "+
			"the bill's layout. Use list_bill_attachments to find the "+
			"attachment UID first."),
		mcp.WithString("bill_id", mcp.Required(), mcp.Description("Bill UID")),
		mcp.WithString("attachment_id", mcp.Required(), mcp.Description("Attachment UID")),
		mcp.WithString("bill_layout", mcp.Description("Bill layout: Item (default) or Service")),
	), r.handle("delete_bill_attachment", r.deleteBillAttachment))
}

// validateAttachment enforces the file constraints AccountRight publishes
// for attachments so oversized or unsupported files fail before upload. The
// size check estimates decoded bytes from the base64 length.
func validateAttachment(fileName, content string) error {
	if strings.TrimSpace(fileName) == "" {
		return errors.ValidationError("file_name must not be empty")
	}

	ext := ""
	if i := strings.LastIndex(fileName, "."); i >= 0 {
		ext = strings.ToLower(fileName[i+1:])
	}
	if !allowedAttachmentExtensions[ext] {
		allowed := make([]string, 0, len(allowedAttachmentExtensions))
		for e := range allowedAttachmentExtensions {
			allowed = append(allowed, e)
		}
		sort.Strings(allowed)
		return errors.ValidationErrorf("unsupported file extension %q, allowed: %s",
			"."+ext, strings.Join(allowed, ", "))
	}

	if strings.TrimSpace(content) == "" {
		return errors.ValidationError("file_base64_content must not be empty")
	}

	approxBytes := len(content) * 3 / 4
	if approxBytes > maxAttachmentBytes {
		return errors.ValidationErrorf("file too large (~%.1f MB), maximum is 3 MB",
			float64(approxBytes)/(1024*1024))
	}
	return nil
}

func attachmentBody(fileName, content string) map[string]interface{} {
	return map[string]interface{}{
		"Attachments": []interface{}{
			map[string]interface{}{
				"OriginalFileName":  fileName,
				"FileBase64Content": content,
			},
		},
	}
}

// extractAttachments normalizes the attachment endpoint's response shapes:
// a bare list, an object wrapping an Attachments list, or an empty body.
func extractAttachments(result interface{}) []interface{} {
	switch v := result.(type) {
	case []interface{}:
		return v
	case map[string]interface{}:
		if attachments, ok := v["Attachments"].([]interface{}); ok {
			return attachments
		}
	}
	return []interface{}{}
}

func (r *Registry) uploadSpendMoneyAttachment(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	transactionID, err := requireGUID(req, "transaction_id")
	if err != nil {
		return nil, err
	}
	fileName, content, err := attachmentArgs(req)
	if err != nil {
		return nil, err
	}

	result, err := r.client.Request(ctx, http.MethodPost,
		fmt.Sprintf("/Banking/SpendMoneyTxn/%s/Attachment", transactionID),
		&myob.RequestOptions{Body: attachmentBody(fileName, content)})
	if err != nil {
		return nil, err
	}
	return fields.PickList(extractAttachments(result), fields.AttachmentUploadResultFields), nil
}

func (r *Registry) listSpendMoneyAttachments(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	transactionID, err := requireGUID(req, "transaction_id")
	if err != nil {
		return nil, err
	}

	result, err := r.client.Request(ctx, http.MethodGet,
		fmt.Sprintf("/Banking/SpendMoneyTxn/%s/Attachment", transactionID), nil)
	if err != nil {
		return nil, err
	}
	return fields.PickList(extractAttachments(result), fields.AttachmentListFields), nil
}

func (r *Registry) deleteSpendMoneyAttachment(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	transactionID, err := requireGUID(req, "transaction_id")
	if err != nil {
		return nil, err
	}
	attachmentID, err := requireGUID(req, "attachment_id")
	if err != nil {
		return nil, err
	}

	if _, err := r.client.Request(ctx, http.MethodDelete,
		fmt.Sprintf("/Banking/SpendMoneyTxn/%s/Attachment/%s", transactionID, attachmentID), nil); err != nil {
		return nil, err
	}
	return map[string]string{"status": "deleted", "attachment_id": attachmentID}, nil
}

func (r *Registry) uploadBillAttachment(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	billID, err := requireGUID(req, "bill_id")
	if err != nil {
		return nil, err
	}
	layout, err := normalizeLayout(req.GetString("bill_layout", ""), "bill_layout")
	if err != nil {
		return nil, err
	}
	fileName, content, err := attachmentArgs(req)
	if err != nil {
		return nil, err
	}

	result, err := r.client.Request(ctx, http.MethodPost,
		fmt.Sprintf("/Purchase/Bill/%s/%s/Attachment", layout, billID),
		&myob.RequestOptions{Body: attachmentBody(fileName, content)})
	if err != nil {
		return nil, err
	}
	return fields.PickList(extractAttachments(result), fields.AttachmentUploadResultFields), nil
}

func (r *Registry) listBillAttachments(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	billID, err := requireGUID(req, "bill_id")
	if err != nil {
		return nil, err
	}
	layout, err := normalizeLayout(req.GetString("bill_layout", ""), "bill_layout")
	if err != nil {
		return nil, err
	}

	result, err := r.client.Request(ctx, http.MethodGet,
		fmt.Sprintf("/Purchase/Bill/%s/%s/Attachment", layout, billID), nil)
	if err != nil {
		return nil, err
	}
	return fields.PickList(extractAttachments(result), fields.AttachmentListFields), nil
}

func (r *Registry) deleteBillAttachment(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	billID, err := requireGUID(req, "bill_id")
	if err != nil {
		return nil, err
	}
	attachmentID, err := requireGUID(req, "attachment_id")
	if err != nil {
		return nil, err
	}
	layout, err := normalizeLayout(req.GetString("bill_layout", ""), "bill_layout")
	if err != nil {
		return nil, err
	}

	if _, err := r.client.Request(ctx, http.MethodDelete,
		fmt.Sprintf("/Purchase/Bill/%s/%s/Attachment/%s", layout, billID, attachmentID), nil); err != nil {
		return nil, err
	}
	return map[string]string{"status": "deleted", "attachment_id": attachmentID}, nil
}

// attachmentArgs extracts and validates the shared upload arguments.
func attachmentArgs(req mcp.CallToolRequest) (fileName, content string, err error) {
	fileName, err = requireString(req, "file_name")
	if err != nil {
		return "", "", err
	}
	content, err = requireString(req, "file_base64_content")
	if err != nil {
		return "", "", err
	}
	if err := validateAttachment(fileName, content); err != nil {
		return "", "", err
	}
	return fileName, content, nil
}
