package query

import (
	"fmt"
	"strings"

	"github.com/pgcrud/pgcrud/internal/catalog"
	"github.com/pgcrud/pgcrud/internal/dberr"
)

// Timestamp columns the builder manages automatically.
const (
	updatedAtColumn = "updated_at"
	deletedAtColumn = "deleted_at"
)

// insertColumns returns the entity columns, in declared order, that appear
// in at least one payload row. Unknown payload keys are silently dropped.
func insertColumns(e *catalog.Entity, rows []map[string]any) []string {
	present := make(map[string]bool)
	for _, row := range rows {
		for key := range row {
			present[key] = true
		}
	}
	var cols []string
	for _, c := range e.Columns {
		if present[c.Name] {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

// valuesRow renders one VALUES tuple. Columns absent from the payload bind a
// NULL parameter, except updated_at, which becomes the literal NOW() so the
// database assigns the write time. Explicit nulls bind as null parameters;
// null and absent stay distinguishable in the payload but not in the
// emitted row.
func valuesRow(e *catalog.Entity, cols []string, payload map[string]any, n *int, args *[]any) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		value, ok := payload[col]
		if !ok && col == updatedAtColumn {
			parts[i] = "NOW()"
			continue
		}
		parts[i] = fmt.Sprintf("$%d", *n)
		*n++
		if ok {
			*args = append(*args, value)
		} else {
			*args = append(*args, nil)
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Insert builds a single-row INSERT … RETURNING *.
func Insert(e *catalog.Entity, payload map[string]any) (SQL, error) {
	cols := insertColumns(e, []map[string]any{payload})
	if len(cols) == 0 {
		return SQL{}, &dberr.Error{
			Kind:    dberr.KindValidation,
			Message: "Payload contains no known columns",
			Details: e.ColumnNames(),
		}
	}
	if _, hasUpdated := e.Column(updatedAtColumn); hasUpdated && !contains(cols, updatedAtColumn) {
		cols = append(cols, updatedAtColumn)
	}

	n := 1
	var args []any
	row := valuesRow(e, cols, payload, &n, &args)

	return SQL{
		Text: fmt.Sprintf("INSERT INTO %s (%s) VALUES %s RETURNING *",
			e.Qualified(), quoteJoin(cols), row),
		Args: args,
	}, nil
}

// BulkInsert builds a multi-row INSERT … RETURNING *. The column list is the
// union of the rows' known keys; rows omitting a column bind NULL for it.
func BulkInsert(e *catalog.Entity, rows []map[string]any, maxRows int) (SQL, error) {
	if len(rows) == 0 {
		return SQL{}, dberr.Validation("Bulk insert requires at least one row")
	}
	if len(rows) > maxRows {
		return SQL{}, dberr.Validation("Bulk insert accepts at most %d rows, got %d", maxRows, len(rows))
	}

	cols := insertColumns(e, rows)
	if len(cols) == 0 {
		return SQL{}, &dberr.Error{
			Kind:    dberr.KindValidation,
			Message: "No row contains a known column",
			Details: e.ColumnNames(),
		}
	}
	if _, hasUpdated := e.Column(updatedAtColumn); hasUpdated && !contains(cols, updatedAtColumn) {
		cols = append(cols, updatedAtColumn)
	}

	n := 1
	var args []any
	tuples := make([]string, len(rows))
	for i, row := range rows {
		tuples[i] = valuesRow(e, cols, row, &n, &args)
	}

	return SQL{
		Text: fmt.Sprintf("INSERT INTO %s (%s) VALUES %s RETURNING *",
			e.Qualified(), quoteJoin(cols), strings.Join(tuples, ", ")),
		Args: args,
	}, nil
}

// Update builds a partial or full update by key. Primary-key columns in the
// payload are dropped; they cannot be modified.
func Update(e *catalog.Entity, keyValues []string, payload map[string]any) (SQL, error) {
	pk := make(map[string]bool, len(e.PrimaryKey))
	for _, name := range e.PrimaryKey {
		pk[name] = true
	}

	n := 1
	var (
		args []any
		set  []string
	)
	for _, c := range e.Columns {
		if pk[c.Name] {
			continue
		}
		value, ok := payload[c.Name]
		if !ok {
			continue
		}
		set = append(set, fmt.Sprintf("%s = $%d", catalog.QuoteIdent(c.Name), n))
		n++
		args = append(args, value)
	}
	if len(set) == 0 {
		return SQL{}, &dberr.Error{
			Kind:    dberr.KindValidation,
			Message: "Payload contains no updatable columns",
			Details: e.ColumnNames(),
		}
	}

	if _, ok := payload[updatedAtColumn]; !ok && e.HasColumn(updatedAtColumn) {
		set = append(set, catalog.QuoteIdent(updatedAtColumn)+" = NOW()")
	}

	where := keyWhere(e, keyValues, n, &args)
	return SQL{
		Text: fmt.Sprintf("UPDATE %s SET %s%s RETURNING *",
			e.Qualified(), strings.Join(set, ", "), where),
		Args: args,
	}, nil
}

// Delete builds the delete statement. Entities with a deleted_at column get
// a soft delete: an UPDATE stamping deleted_at (and updated_at when present)
// instead of removing the row. The soft flag reports which path was taken.
func Delete(e *catalog.Entity, keyValues []string) (stmt SQL, soft bool) {
	var args []any
	if e.HasColumn(deletedAtColumn) {
		set := catalog.QuoteIdent(deletedAtColumn) + " = NOW()"
		if e.HasColumn(updatedAtColumn) {
			set += ", " + catalog.QuoteIdent(updatedAtColumn) + " = NOW()"
		}
		where := keyWhere(e, keyValues, 1, &args)
		return SQL{
			Text: fmt.Sprintf("UPDATE %s SET %s%s RETURNING *", e.Qualified(), set, where),
			Args: args,
		}, true
	}

	where := keyWhere(e, keyValues, 1, &args)
	return SQL{
		Text: fmt.Sprintf("DELETE FROM %s%s RETURNING *", e.Qualified(), where),
		Args: args,
	}, false
}

func quoteJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = catalog.QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
