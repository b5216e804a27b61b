// Package odata assembles OData v2 query fragments for the MYOB
// AccountRight API. All string literals pass through EscapeLiteral exactly
// once, dates and GUIDs are validated before they reach the wire, and
// search clauses match case-insensitively.
package odata

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fixxdigital/myob-mcp-server/internal/common/errors"
)

// dateLayout is the only accepted date input format.
const dateLayout = "2006-01-02"

// comparisonOps are the operators DateClause accepts.
var comparisonOps = map[string]bool{
	"eq": true,
	"ne": true,
	"gt": true,
	"ge": true,
	"lt": true,
	"le": true,
}

// EscapeLiteral doubles single quotes for safe embedding in an OData string
// literal. It is not idempotent: callers escape a raw value exactly once,
// never an already-escaped one.
func EscapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// SearchClause builds a case-insensitive substring match for term across
// the given fields, joined with "or". The term is lowercased to pair with
// tolower() on the field, so "ACME" finds "Acme Pty Ltd".
func SearchClause(term string, fields []string) (string, error) {
	if strings.TrimSpace(term) == "" {
		return "", errors.ValidationError("search term cannot be empty")
	}
	if len(fields) == 0 {
		return "", errors.ValidationError("search requires at least one field")
	}

	escaped := EscapeLiteral(strings.ToLower(term))

	clauses := make([]string, 0, len(fields))
	for _, field := range fields {
		clauses = append(clauses, fmt.Sprintf("substringof('%s', tolower(%s)) eq true", escaped, field))
	}

	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return "(" + strings.Join(clauses, " or ") + ")", nil
}

// DateClause builds a date comparison such as "Date ge datetime'2024-01-31'".
// The date must be YYYY-MM-DD and op one of eq, ne, gt, ge, lt, le.
func DateClause(field, op, date string) (string, error) {
	if !comparisonOps[op] {
		return "", errors.ValidationErrorf("invalid comparison operator %q", op)
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return "", errors.ValidationErrorf("invalid date %q, expected YYYY-MM-DD", date)
	}

	return fmt.Sprintf("%s %s datetime'%s'", field, op, date), nil
}

// ValidateDate checks that date is in YYYY-MM-DD form and returns it
// unchanged. Body fields go through this before any network call.
func ValidateDate(date string) (string, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return "", errors.ValidationErrorf("invalid date %q, expected YYYY-MM-DD", date)
	}
	return date, nil
}

// IdentifierEquals builds a GUID equality clause after validating the value
// parses as a UUID, so malformed identifiers fail before a network call.
func IdentifierEquals(field, id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", errors.ValidationErrorf("invalid identifier %q, expected a GUID", id)
	}

	return fmt.Sprintf("%s eq guid'%s'", field, parsed.String()), nil
}

// ValidateGUID checks that id parses as a UUID and returns its canonical
// lowercase form.
func ValidateGUID(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", errors.ValidationErrorf("invalid identifier %q, expected a GUID", id)
	}
	return parsed.String(), nil
}

// EqualsClause builds a string equality clause with the literal escaped.
func EqualsClause(field, value string) string {
	return fmt.Sprintf("%s eq '%s'", field, EscapeLiteral(value))
}

// BoolClause builds a boolean equality clause.
func BoolClause(field string, value bool) string {
	return fmt.Sprintf("%s eq %t", field, value)
}

// Combine joins non-empty clauses with the given operator, parenthesizing
// when more than one clause survives. Returns "" when nothing survives.
func Combine(op string, clauses ...string) string {
	nonEmpty := make([]string, 0, len(clauses))
	for _, clause := range clauses {
		if clause != "" {
			nonEmpty = append(nonEmpty, clause)
		}
	}

	switch len(nonEmpty) {
	case 0:
		return ""
	case 1:
		return nonEmpty[0]
	default:
		return "(" + strings.Join(nonEmpty, " "+op+" ") + ")"
	}
}

// QueryOptions carries the OData system options a read accepts.
type QueryOptions struct {
	Filter  string
	OrderBy string
	Top     int
	Skip    int
}

// Params renders the options as query parameters, omitting unset values.
func (o QueryOptions) Params() map[string]string {
	params := make(map[string]string)
	if o.Filter != "" {
		params["$filter"] = o.Filter
	}
	if o.OrderBy != "" {
		params["$orderby"] = o.OrderBy
	}
	if o.Top > 0 {
		params["$top"] = strconv.Itoa(o.Top)
	}
	if o.Skip > 0 {
		params["$skip"] = strconv.Itoa(o.Skip)
	}
	return params
}
