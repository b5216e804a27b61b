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

func (r *Registry) registerJobTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("list_jobs",
		mcp.WithDescription("Get all jobs. Can filter by active status and search by name or number. "+
			"Use top to limit results and orderby to sort. "+
			"Use the job UID as job_id on sales order line items."),
		mcp.WithBoolean("is_active", mcp.Description("Filter by active status")),
		mcp.WithString("search", mcp.Description("Substring to match against job names or numbers")),
		mcp.WithNumber("top", mcp.Description("Maximum number of jobs to return")),
		mcp.WithString("orderby", mcp.Description("Sort order, e.g. 'Number asc'")),
	), r.handle("list_jobs", r.listJobs))

	s.AddTool(mcp.NewTool("create_job",
		mcp.WithDescription("Create a new job for tracking income and expenses against "+
			"a project or cost centre."),
		mcp.WithString("number", mcp.Required(), mcp.Description("Job number, unique within the company file")),
		mcp.WithString("name", mcp.Description("Job name")),
		mcp.WithString("description", mcp.Description("Job description")),
	), r.handle("create_job", r.createJob))
}

func (r *Registry) listJobs(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	clauses := make([]string, 0, 2)
	if isActive, set := optionalBool(req, "is_active"); set {
		clauses = append(clauses, odata.BoolClause("IsActive", isActive))
	}
	if search := req.GetString("search", ""); search != "" {
		clause, err := odata.SearchClause(search, []string{"Name", "Number"})
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}

	query := odata.QueryOptions{
		Filter:  odata.Combine("and", clauses...),
		OrderBy: req.GetString("orderby", ""),
	}
	items, err := r.client.RequestPaged(ctx, "/GeneralLedger/Job", &myob.PagedOptions{
		Params:     query.Params(),
		Top:        req.GetInt("top", 0),
		CacheLabel: "jobs",
	})
	if err != nil {
		return nil, err
	}
	return fields.PickList(items, fields.JobListFields), nil
}

func (r *Registry) createJob(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	number, err := requireString(req, "number")
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"Number":   number,
		"IsActive": true,
	}
	if name := req.GetString("name", ""); name != "" {
		body["Name"] = name
	}
	if description := req.GetString("description", ""); description != "" {
		body["Description"] = description
	}

	result, err := r.client.Request(ctx, http.MethodPost, "/GeneralLedger/Job", &myob.RequestOptions{
		Body: body,
	})
	if err != nil {
		return nil, err
	}
	r.client.Invalidate("jobs")
	return shapeCreateResult(result, fields.CreateResultFields), nil
}
