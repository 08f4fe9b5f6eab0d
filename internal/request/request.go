// Package request validates inbound request shapes before any SQL is built.
// It never touches the database.
package request

import (
	"bytes"
	"encoding/json"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/pgcrud/pgcrud/internal/catalog"
	"github.com/pgcrud/pgcrud/internal/dberr"
	"github.com/pgcrud/pgcrud/internal/query"
)

// Query parameter names of the list surface.
const (
	ParamPage          = "page"
	ParamPageSize      = "pageSize"
	ParamSortBy        = "sortBy"
	ParamSortOrder     = "sortOrder"
	ParamSelect        = "select"
	ParamSearch        = "search"
	ParamSearchColumns = "searchColumns"
	FilterPrefix       = "filter."
)

// ParseListParams extracts pagination, sorting, selection, search and
// filters from a query string. Unparseable numbers fall back to defaults;
// clamping happens in the builder.
func ParseListParams(values url.Values, defaultPageSize int) query.ListParams {
	p := query.ListParams{
		Page:     1,
		PageSize: defaultPageSize,
		SortBy:   values.Get(ParamSortBy),
		SortDesc: strings.EqualFold(values.Get(ParamSortOrder), "desc"),
		Search:   values.Get(ParamSearch),
		Filters:  make(map[string]string),
	}

	if raw := values.Get(ParamPage); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			p.Page = n
		}
	}
	if raw := values.Get(ParamPageSize); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			p.PageSize = n
		}
	}
	if raw := values.Get(ParamSelect); raw != "" {
		p.Select = splitCSV(raw)
	}
	if raw := values.Get(ParamSearchColumns); raw != "" {
		p.SearchColumns = splitCSV(raw)
	}

	for key := range values {
		if column, ok := strings.CutPrefix(key, FilterPrefix); ok && column != "" {
			p.Filters[column] = values.Get(key)
		}
	}
	return p
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseKey splits the key segment of a by-key operation into one value per
// primary-key column, in PK order. Wrong arity or empty parts fail with the
// expected arity in the message.
func ParseKey(e *catalog.Entity, raw string) ([]string, error) {
	arity := len(e.PrimaryKey)
	if arity == 0 {
		return nil, dberr.Validation("Table %s has no primary key; by-key operations are not available", e.FullName())
	}

	parts := strings.Split(raw, ",")
	if len(parts) != arity || hasEmpty(parts) {
		if arity > 1 {
			return nil, dberr.Validation("Composite primary key expects %d values", arity)
		}
		return nil, dberr.Validation("Primary key expects 1 value")
	}
	return parts, nil
}

func hasEmpty(parts []string) bool {
	for _, p := range parts {
		if p == "" {
			return true
		}
	}
	return false
}

// WritePayload is the tagged union of write-operation bodies: a single
// record or a bulk array of records.
type WritePayload struct {
	Single map[string]any
	Bulk   []map[string]any
}

// IsBulk reports whether the payload is the array form.
func (p *WritePayload) IsBulk() bool {
	return p.Bulk != nil
}

// DecodeWrite parses a write body. Single-record operations require an
// object; bulk create additionally accepts a non-empty array of objects,
// bounded by maxBulkRows.
func DecodeWrite(r io.Reader, allowBulk bool, maxBulkRows int) (*WritePayload, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, dberr.Validation("Failed to read request body")
	}
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, dberr.Validation("Request body must not be empty")
	}

	if trimmed[0] == '[' {
		if !allowBulk {
			return nil, dberr.Validation("Request body must be a single JSON object")
		}
		var rows []map[string]any
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, dberr.Validation("Request body must be an array of JSON objects")
		}
		if len(rows) == 0 {
			return nil, dberr.Validation("Bulk insert requires at least one row")
		}
		if len(rows) > maxBulkRows {
			return nil, dberr.Validation("Bulk insert accepts at most %d rows, got %d", maxBulkRows, len(rows))
		}
		for i, row := range rows {
			if row == nil {
				return nil, dberr.Validation("Bulk row %d is not a JSON object", i)
			}
		}
		return &WritePayload{Bulk: rows}, nil
	}

	var row map[string]any
	if err := json.Unmarshal(trimmed, &row); err != nil {
		return nil, dberr.Validation("Request body must be a JSON object")
	}
	return &WritePayload{Single: row}, nil
}
