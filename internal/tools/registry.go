// Package tools exposes the MYOB AccountRight API as MCP tools. Each file
// registers one resource family; handlers validate arguments, build OData
// filters, call the API client, and shape responses down to the fields an
// LLM actually needs.
package tools

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fixxdigital/myob-mcp-server/internal/auth"
	"github.com/fixxdigital/myob-mcp-server/internal/common/errors"
	"github.com/fixxdigital/myob-mcp-server/internal/common/logging"
	"github.com/fixxdigital/myob-mcp-server/internal/myob"
	"github.com/fixxdigital/myob-mcp-server/internal/odata"
)

// Registry wires every tool handler to its dependencies and registers them
// on an MCP server.
type Registry struct {
	client       *myob.Client
	auth         *auth.Manager
	logger       logging.Logger
	callbackPort int
	callbackWait time.Duration
}

// Options configures a Registry.
type Options struct {
	Client       *myob.Client
	Auth         *auth.Manager
	Logger       logging.Logger
	CallbackPort int
	CallbackWait time.Duration
}

// NewRegistry creates a tool registry. Client and Auth are required.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Client == nil {
		return nil, errors.ConfigError("tool registry requires an API client")
	}
	if opts.Auth == nil {
		return nil, errors.ConfigError("tool registry requires an auth manager")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	wait := opts.CallbackWait
	if wait <= 0 {
		wait = auth.DefaultCallbackWait
	}

	return &Registry{
		client:       opts.Client,
		auth:         opts.Auth,
		logger:       logger,
		callbackPort: opts.CallbackPort,
		callbackWait: wait,
	}, nil
}

// RegisterAll registers every tool on the server.
func (r *Registry) RegisterAll(s *server.MCPServer) {
	r.registerOAuthTools(s)
	r.registerCompanyTools(s)
	r.registerAccountTools(s)
	r.registerTaxCodeTools(s)
	r.registerContactTools(s)
	r.registerEmployeeTools(s)
	r.registerInvoiceTools(s)
	r.registerPaymentTools(s)
	r.registerBillTools(s)
	r.registerBankingTools(s)
	r.registerAttachmentTools(s)
	r.registerJobTools(s)
	r.registerSalesOrderTools(s)
}

// handlerFunc is a tool handler before result encoding. It returns the raw
// value to serialize, or an error to surface as a tool error.
type handlerFunc func(ctx context.Context, req mcp.CallToolRequest) (interface{}, error)

// handle adapts a handlerFunc to the MCP server signature. Handler errors
// become tool error results rather than protocol errors so the model sees
// the message and can correct its call.
func (r *Registry) handle(name string, fn handlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := fn(ctx, req)
		if err != nil {
			r.logger.Warn("Tool call failed",
				logging.Field{Key: "tool", Value: name},
				logging.Field{Key: "error", Value: err.Error()})
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(result)
	}
}

// jsonResult renders a handler result as indented JSON text.
func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError("failed to encode result: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// requireString extracts a required string argument, surfacing absence as a
// validation error so every tool reports missing arguments the same way.
func requireString(req mcp.CallToolRequest, key string) (string, error) {
	value, err := req.RequireString(key)
	if err != nil || strings.TrimSpace(value) == "" {
		return "", errors.ValidationErrorf("%s is required", key)
	}
	return value, nil
}

// requireGUID extracts a required identifier argument in canonical GUID form.
func requireGUID(req mcp.CallToolRequest, key string) (string, error) {
	value, err := requireString(req, key)
	if err != nil {
		return "", err
	}
	id, err := odata.ValidateGUID(value)
	if err != nil {
		return "", errors.ValidationErrorf("invalid %s %q, expected a GUID", key, value)
	}
	return id, nil
}

// optionalBool reports a boolean argument and whether the caller set it.
// Filters distinguish "unset" from "false", which GetBool cannot.
func optionalBool(req mcp.CallToolRequest, key string) (value bool, set bool) {
	raw, ok := req.GetArguments()[key]
	if !ok {
		return false, false
	}
	b, ok := raw.(bool)
	if !ok {
		return false, false
	}
	return b, true
}

// objectList extracts a required array-of-objects argument.
func objectList(req mcp.CallToolRequest, key string) ([]map[string]interface{}, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil, errors.ValidationErrorf("%s is required", key)
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, errors.ValidationErrorf("%s must be an array of objects", key)
	}
	if len(list) == 0 {
		return nil, errors.ValidationErrorf("%s cannot be empty", key)
	}

	out := make([]map[string]interface{}, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.ValidationErrorf("%s[%d] must be an object", key, i)
		}
		out = append(out, m)
	}
	return out, nil
}

// objectArg extracts an optional object argument. Returns nil when unset.
func objectArg(req mcp.CallToolRequest, key string) (map[string]interface{}, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errors.ValidationErrorf("%s must be an object", key)
	}
	return m, nil
}

// stringField reads a non-empty string field from a nested object.
func stringField(m map[string]interface{}, key string) (string, bool) {
	raw, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// numberField reads a numeric field from a nested object. JSON numbers
// decode as float64; integers sent by strict clients are accepted too.
func numberField(m map[string]interface{}, key string) (float64, bool) {
	raw, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := raw.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
