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

func (r *Registry) registerCompanyTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("list_company_files",
		mcp.WithDescription("Get all company files the authenticated user has access to. "+
			"Useful for discovering available company file IDs."),
	), r.handle("list_company_files", r.listCompanyFiles))

	s.AddTool(mcp.NewTool("get_company_file_info",
		mcp.WithDescription("Get details for one company file. Defaults to the "+
			"currently selected company file when company_file_id is omitted."),
		mcp.WithString("company_file_id", mcp.Description("Company file ID to inspect")),
	), r.handle("get_company_file_info", r.getCompanyFileInfo))
}

func (r *Registry) listCompanyFiles(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	result, err := r.client.RequestGlobal(ctx, http.MethodGet, "/", &myob.RequestOptions{
		CacheLabel: "company_files",
	})
	if err != nil {
		return nil, err
	}

	// The index endpoint answers with a list; normalize stray shapes anyway.
	switch v := result.(type) {
	case []interface{}:
		return v, nil
	case nil:
		return []interface{}{}, nil
	default:
		return []interface{}{v}, nil
	}
}

func (r *Registry) getCompanyFileInfo(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	fileID := req.GetString("company_file_id", "")
	if fileID != "" {
		id, err := odata.ValidateGUID(fileID)
		if err != nil {
			return nil, errors.ValidationErrorf("invalid company_file_id %q, expected a GUID", fileID)
		}
		fileID = id
	}

	result, err := r.client.Request(ctx, http.MethodGet, "", &myob.RequestOptions{
		CompanyFileID: fileID,
	})
	if err != nil {
		return nil, err
	}
	if m, ok := result.(map[string]interface{}); ok {
		return fields.StripMetadata(m), nil
	}
	return result, nil
}
