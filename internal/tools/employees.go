package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fixxdigital/myob-mcp-server/internal/fields"
	"github.com/fixxdigital/myob-mcp-server/internal/myob"
	"github.com/fixxdigital/myob-mcp-server/internal/odata"
)

func (r *Registry) registerEmployeeTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("list_employees",
		mcp.WithDescription("Get all employees. Can filter by active status and search by name. "+
			"Use top to limit results and orderby to sort. "+
			"Use the employee UID as salesperson_id when creating sales orders."),
		mcp.WithBoolean("is_active", mcp.Description("Filter by active status")),
		mcp.WithString("search", mcp.Description("Substring to match against first or last names")),
		mcp.WithNumber("top", mcp.Description("Maximum number of employees to return")),
		mcp.WithString("orderby", mcp.Description("Sort order, e.g. 'LastName asc'")),
	), r.handle("list_employees", r.listEmployees))
}

func (r *Registry) listEmployees(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	clauses := make([]string, 0, 2)
	if isActive, set := optionalBool(req, "is_active"); set {
		clauses = append(clauses, odata.BoolClause("IsActive", isActive))
	}
	if search := req.GetString("search", ""); search != "" {
		clause, err := odata.SearchClause(search, []string{"FirstName", "LastName"})
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}

	query := odata.QueryOptions{
		Filter:  odata.Combine("and", clauses...),
		OrderBy: req.GetString("orderby", ""),
	}
	items, err := r.client.RequestPaged(ctx, "/Contact/Employee", &myob.PagedOptions{
		Params:     query.Params(),
		Top:        req.GetInt("top", 0),
		CacheLabel: "employees",
	})
	if err != nil {
		return nil, err
	}
	return fields.PickList(items, fields.EmployeeListFields), nil
}
