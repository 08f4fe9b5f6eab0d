// Package query converts validated request intents into parameterized SQL.
// Builders are pure functions over the schema model; no untrusted value is
// ever concatenated into statement text.
package query

import (
	"fmt"
	"strings"

	"github.com/pgcrud/pgcrud/internal/catalog"
	"github.com/pgcrud/pgcrud/internal/dberr"
)

// MaxInValues caps the number of items accepted by the in operator.
const MaxInValues = 100

// operators maps filter operator names to their SQL realization.
var operators = map[string]string{
	"eq":    "=",
	"neq":   "!=",
	"gt":    ">",
	"gte":   ">=",
	"lt":    "<",
	"lte":   "<=",
	"like":  "LIKE",
	"ilike": "ILIKE",
}

// OperatorNames lists every filter operator the grammar accepts, for the
// capabilities envelope.
func OperatorNames() []string {
	return []string{"eq", "neq", "gt", "gte", "lt", "lte", "like", "ilike", "is", "in"}
}

// splitOperator splits a raw filter value into (operator, operand). A prefix
// before the first colon that names a known operator applies; anything else
// is an equals match on the whole value.
func splitOperator(raw string) (string, string) {
	if op, rest, ok := strings.Cut(raw, ":"); ok {
		if _, known := operators[op]; known || op == "is" || op == "in" {
			return op, rest
		}
	}
	return "eq", raw
}

// filterClause renders one column filter. Parameters are appended to args
// and numbered from *n.
func filterClause(e *catalog.Entity, column, raw string, n *int, args *[]any) (string, error) {
	if !e.HasColumn(column) {
		return "", &dberr.Error{
			Kind:    dberr.KindValidation,
			Message: fmt.Sprintf("Unknown filter column %q", column),
			Details: e.ColumnNames(),
		}
	}
	quoted := catalog.QuoteIdent(column)

	op, operand := splitOperator(raw)
	switch op {
	case "is":
		switch strings.ToLower(operand) {
		case "null":
			return quoted + " IS NULL", nil
		case "notnull":
			return quoted + " IS NOT NULL", nil
		default:
			return "", dberr.Validation("Operator is expects null or notnull, got %q", operand)
		}
	case "in":
		items := strings.Split(operand, ",")
		if len(items) > MaxInValues {
			return "", dberr.Validation("Operator in accepts at most %d values, got %d", MaxInValues, len(items))
		}
		placeholders := make([]string, len(items))
		for i, item := range items {
			placeholders[i] = fmt.Sprintf("$%d", *n)
			*n++
			*args = append(*args, item)
		}
		return quoted + " IN (" + strings.Join(placeholders, ", ") + ")", nil
	default:
		clause := fmt.Sprintf("%s %s $%d", quoted, operators[op], *n)
		*n++
		*args = append(*args, operand)
		return clause, nil
	}
}

// likeEscaper escapes the LIKE metacharacters of a search term before it is
// bound as a parameter. Backslash first, so escapes are not double-escaped.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// searchClause renders the search disjunction across the searchable columns.
// Returns an empty clause when no usable column remains.
func searchClause(e *catalog.Entity, term string, columns []string, n *int, args *[]any) string {
	var search []string
	if len(columns) > 0 {
		// Explicit list restricts the default set; unknown names are skipped.
		for _, c := range columns {
			if e.HasColumn(c) {
				search = append(search, c)
			}
		}
	} else {
		search = e.SearchableColumns()
	}
	if len(search) == 0 {
		return ""
	}

	bound := "%" + likeEscaper.Replace(term) + "%"
	parts := make([]string, len(search))
	for i, c := range search {
		parts[i] = fmt.Sprintf("%s::text ILIKE $%d", catalog.QuoteIdent(c), *n)
		*n++
		*args = append(*args, bound)
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// buildWhere renders the conjunction of filter clauses and the optional
// search disjunction. Filters apply in lexicographic column order so the
// emitted text is deterministic.
func buildWhere(e *catalog.Entity, filters map[string]string, filterOrder []string,
	search string, searchColumns []string, n *int, args *[]any) (string, error) {

	var clauses []string
	for _, column := range filterOrder {
		clause, err := filterClause(e, column, filters[column], n, args)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}

	if search != "" {
		if clause := searchClause(e, search, searchColumns, n, args); clause != "" {
			clauses = append(clauses, clause)
		}
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), nil
}
