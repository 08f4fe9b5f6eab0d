package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pgcrud/pgcrud/internal/catalog"
	"github.com/pgcrud/pgcrud/internal/dberr"
)

// SQL is a statement text with positional placeholders and the values bound
// to them, in placeholder order.
type SQL struct {
	Text string
	Args []any
}

// ListParams carries the validated parameters of a list intent.
type ListParams struct {
	// Filters maps column name to a raw operator:value string.
	Filters       map[string]string
	SortBy        string
	SortDesc      bool
	Page          int
	PageSize      int
	Select        []string
	Search        string
	SearchColumns []string
}

// ClampPage returns the page number, at least 1.
func (p ListParams) ClampPage() int {
	if p.Page < 1 {
		return 1
	}
	return p.Page
}

// ClampPageSize returns the page size clamped to [1, maxPageSize].
func (p ListParams) ClampPageSize(maxPageSize int) int {
	switch {
	case p.PageSize < 1:
		return 1
	case p.PageSize > maxPageSize:
		return maxPageSize
	default:
		return p.PageSize
	}
}

func (p ListParams) filterOrder() []string {
	order := make([]string, 0, len(p.Filters))
	for column := range p.Filters {
		order = append(order, column)
	}
	sort.Strings(order)
	return order
}

// projection renders the column list of a list query: * when nothing was
// selected, otherwise the requested columns that exist. Unknown columns drop
// out silently unless none match.
func projection(e *catalog.Entity, selected []string) (string, error) {
	if len(selected) == 0 {
		return "*", nil
	}
	var cols []string
	for _, name := range selected {
		if e.HasColumn(name) {
			cols = append(cols, catalog.QuoteIdent(name))
		}
	}
	if len(cols) == 0 {
		return "", &dberr.Error{
			Kind:    dberr.KindValidation,
			Message: "None of the selected columns exist",
			Details: e.ColumnNames(),
		}
	}
	return strings.Join(cols, ", "), nil
}

// sortColumn resolves the ORDER BY column: the requested column if it
// exists, else the first primary-key column, else the first declared column.
func sortColumn(e *catalog.Entity, requested string) string {
	if requested != "" && e.HasColumn(requested) {
		return requested
	}
	if len(e.PrimaryKey) > 0 {
		return e.PrimaryKey[0]
	}
	return e.Columns[0].Name
}

// List builds the page query for a list intent.
func List(e *catalog.Entity, p ListParams, maxPageSize int) (SQL, error) {
	cols, err := projection(e, p.Select)
	if err != nil {
		return SQL{}, err
	}

	n := 1
	var args []any
	where, err := buildWhere(e, p.Filters, p.filterOrder(), p.Search, p.SearchColumns, &n, &args)
	if err != nil {
		return SQL{}, err
	}

	dir := "ASC"
	if p.SortDesc {
		dir = "DESC"
	}

	page := p.ClampPage()
	pageSize := p.ClampPageSize(maxPageSize)
	text := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		cols, e.Qualified(), where, catalog.QuoteIdent(sortColumn(e, p.SortBy)), dir, n, n+1)
	args = append(args, pageSize, (page-1)*pageSize)

	return SQL{Text: text, Args: args}, nil
}

// Count builds the total-count query over the same WHERE clause as List.
func Count(e *catalog.Entity, p ListParams) (SQL, error) {
	n := 1
	var args []any
	where, err := buildWhere(e, p.Filters, p.filterOrder(), p.Search, p.SearchColumns, &n, &args)
	if err != nil {
		return SQL{}, err
	}
	return SQL{
		Text: fmt.Sprintf("SELECT COUNT(*) AS total FROM %s%s", e.Qualified(), where),
		Args: args,
	}, nil
}

// keyWhere renders the primary-key conjunction, numbering parameters from n.
// The caller supplies one value per PK column, in PK order.
func keyWhere(e *catalog.Entity, keyValues []string, n int, args *[]any) string {
	parts := make([]string, len(e.PrimaryKey))
	for i, pk := range e.PrimaryKey {
		parts[i] = fmt.Sprintf("%s = $%d", catalog.QuoteIdent(pk), n)
		n++
		*args = append(*args, keyValues[i])
	}
	return " WHERE " + strings.Join(parts, " AND ")
}

// Read builds the by-key lookup query.
func Read(e *catalog.Entity, keyValues []string) SQL {
	var args []any
	where := keyWhere(e, keyValues, 1, &args)
	return SQL{
		Text: fmt.Sprintf("SELECT * FROM %s%s LIMIT 1", e.Qualified(), where),
		Args: args,
	}
}
