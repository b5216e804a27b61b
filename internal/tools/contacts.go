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

// contactSearchFields covers both company and individual contacts.
var contactSearchFields = []string{"CompanyName", "FirstName", "LastName"}

func (r *Registry) registerContactTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("list_contacts",
		mcp.WithDescription("Get all contacts (customers and suppliers). "+
			"Can filter by contact type, active status, and search by name."),
		mcp.WithString("contact_type", mcp.Description("Contact type: Customer or Supplier. Omit for all contacts.")),
		mcp.WithBoolean("is_active", mcp.Description("Filter by active status")),
		mcp.WithString("search", mcp.Description("Substring to match against contact names")),
	), r.handle("list_contacts", r.listContacts))

	s.AddTool(mcp.NewTool("get_contact",
		mcp.WithDescription("Get detailed information about a specific contact by its UID"),
		mcp.WithString("contact_id", mcp.Required(), mcp.Description("Contact UID")),
	), r.handle("get_contact", r.getContact))

	s.AddTool(mcp.NewTool("create_contact",
		mcp.WithDescription("Create a new contact (customer or supplier)"),
		mcp.WithString("display_name", mcp.Required(), mcp.Description("Company or display name for the contact")),
		mcp.WithString("contact_type", mcp.Required(), mcp.Description("Contact type: Customer or Supplier")),
		mcp.WithString("email", mcp.Description("Email address")),
		mcp.WithString("phone", mcp.Description("Phone number")),
		mcp.WithObject("address", mcp.Description("Postal address with street, city, state, postcode, and country keys")),
	), r.handle("create_contact", r.createContact))
}

func contactPath(contactType string) string {
	switch contactType {
	case "Customer":
		return "/Contact/Customer"
	case "Supplier":
		return "/Contact/Supplier"
	default:
		return "/Contact"
	}
}

func (r *Registry) listContacts(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	clauses := make([]string, 0, 2)
	if isActive, set := optionalBool(req, "is_active"); set {
		clauses = append(clauses, odata.BoolClause("IsActive", isActive))
	}
	if search := req.GetString("search", ""); search != "" {
		clause, err := odata.SearchClause(search, contactSearchFields)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}

	query := odata.QueryOptions{Filter: odata.Combine("and", clauses...)}
	items, err := r.client.RequestPaged(ctx, contactPath(req.GetString("contact_type", "")), &myob.PagedOptions{
		Params:     query.Params(),
		CacheLabel: "contacts",
	})
	if err != nil {
		return nil, err
	}
	return fields.PickList(items, fields.ContactListFields), nil
}

func (r *Registry) getContact(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	contactID, err := requireGUID(req, "contact_id")
	if err != nil {
		return nil, err
	}

	result, err := r.client.Request(ctx, http.MethodGet, "/Contact/"+contactID, nil)
	if err != nil {
		return nil, err
	}
	if m, ok := result.(map[string]interface{}); ok {
		return fields.StripMetadata(m), nil
	}
	return result, nil
}

func (r *Registry) createContact(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	displayName, err := requireString(req, "display_name")
	if err != nil {
		return nil, err
	}
	contactType, err := requireString(req, "contact_type")
	if err != nil {
		return nil, err
	}
	if contactType != "Customer" && contactType != "Supplier" {
		return nil, errors.ValidationError("contact_type must be 'Customer' or 'Supplier'")
	}

	address, err := objectArg(req, "address")
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"CompanyName":  displayName,
		"IsIndividual": false,
	}

	entry := map[string]interface{}{"Location": 1}
	if email := req.GetString("email", ""); email != "" {
		entry["Email"] = email
	}
	if phone := req.GetString("phone", ""); phone != "" {
		entry["Phone1"] = phone
	}
	for argKey, wireKey := range map[string]string{
		"street":   "Street",
		"city":     "City",
		"state":    "State",
		"postcode": "PostCode",
		"country":  "Country",
	} {
		if value, ok := stringField(address, argKey); ok {
			entry[wireKey] = value
		}
	}
	if len(entry) > 1 {
		body["Addresses"] = []interface{}{entry}
	}

	result, err := r.client.Request(ctx, http.MethodPost, contactPath(contactType), &myob.RequestOptions{
		Body: body,
	})
	if err != nil {
		return nil, err
	}
	r.client.Invalidate("contacts")
	return shapeCreateResult(result, fields.CreateResultFields), nil
}
