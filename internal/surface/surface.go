// Package surface produces the machine-readable self-description of the
// gateway: per-table descriptions and the API capabilities envelope. The
// same payloads back the REST meta endpoints and the agent resources.
package surface

import (
	"github.com/pgcrud/pgcrud/internal/auth"
	"github.com/pgcrud/pgcrud/internal/catalog"
	"github.com/pgcrud/pgcrud/internal/config"
	"github.com/pgcrud/pgcrud/internal/query"
)

// ColumnDescription is the agent-facing view of one column.
type ColumnDescription struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Format     string `json:"format,omitempty"`
	Nullable   bool   `json:"nullable"`
	HasDefault bool   `json:"has_default"`
	PrimaryKey bool   `json:"primary_key"`
	// InsertRequired marks non-nullable columns without a default: an insert
	// omitting them will fail at the database.
	InsertRequired bool `json:"insert_required"`
	MaxLength      int  `json:"max_length,omitempty"`
}

// ForeignKeyDescription is the agent-facing view of one foreign key.
type ForeignKeyDescription struct {
	Constraint string `json:"constraint"`
	Column     string `json:"column"`
	RefTable   string `json:"ref_table"`
	RefColumn  string `json:"ref_column"`
	// RefPath is the route segment of the referenced table, derived by the
	// same rule as the owning table's path.
	RefPath string `json:"ref_path"`
}

// TableDescription is the full agent-facing view of one entity.
type TableDescription struct {
	Name              string                  `json:"name"`
	Namespace         string                  `json:"namespace"`
	Path              string                  `json:"path"`
	Operations        []string                `json:"operations"`
	PrimaryKey        []string                `json:"primary_key"`
	Columns           []ColumnDescription     `json:"columns"`
	ForeignKeys       []ForeignKeyDescription `json:"foreign_keys"`
	SearchableColumns []string                `json:"searchable_columns"`
}

// Capabilities is the API capabilities envelope.
type Capabilities struct {
	BasePath        string   `json:"base_path"`
	AuthEnabled     bool     `json:"auth_enabled"`
	AuthHeaders     []string `json:"auth_headers,omitempty"`
	DefaultPageSize int      `json:"default_page_size"`
	MaxPageSize     int      `json:"max_page_size"`
	MaxBulkRows     int      `json:"max_bulk_rows"`
	FilterOperators []string `json:"filter_operators"`
	FilterParam     string   `json:"filter_param"`
	SortParams      []string `json:"sort_params"`
	SearchParams    []string `json:"search_params"`
	SelectParam     string   `json:"select_param"`
}

// ModelDump is the canonical dump of the accessible model.
type ModelDump struct {
	DatabaseHash string             `json:"database_hash"`
	Namespaces   []string           `json:"namespaces"`
	Tables       []TableDescription `json:"tables"`
	Capabilities Capabilities       `json:"capabilities"`
}

// DescribeTable emits the description of one entity. List and create are
// always available; by-key operations require a primary key.
func DescribeTable(e *catalog.Entity) TableDescription {
	operations := []string{"list", "create"}
	if len(e.PrimaryKey) > 0 {
		operations = append(operations, "read", "update", "replace", "delete")
	}

	pk := make(map[string]bool, len(e.PrimaryKey))
	for _, name := range e.PrimaryKey {
		pk[name] = true
	}

	cols := make([]ColumnDescription, len(e.Columns))
	for i, c := range e.Columns {
		portable := catalog.MapTypeTag(c.TypeTag)
		cols[i] = ColumnDescription{
			Name:           c.Name,
			Type:           portable.Kind,
			Format:         portable.Format,
			Nullable:       c.Nullable,
			HasDefault:     c.HasDefault,
			PrimaryKey:     pk[c.Name],
			InsertRequired: !c.Nullable && !c.HasDefault,
			MaxLength:      c.MaxLength,
		}
	}

	fks := make([]ForeignKeyDescription, len(e.ForeignKeys))
	for i, fk := range e.ForeignKeys {
		fks[i] = ForeignKeyDescription{
			Constraint: fk.ConstraintName,
			Column:     fk.Column,
			RefTable:   fk.RefNamespace + "." + fk.RefTable,
			RefColumn:  fk.RefColumn,
			RefPath:    catalog.RouteSegmentFor(fk.RefNamespace, fk.RefTable),
		}
	}

	return TableDescription{
		Name:              e.Name,
		Namespace:         e.Namespace,
		Path:              "/api/" + e.RouteSegment(),
		Operations:        operations,
		PrimaryKey:        append([]string(nil), e.PrimaryKey...),
		Columns:           cols,
		ForeignKeys:       fks,
		SearchableColumns: e.SearchableColumns(),
	}
}

// AccessibleTables describes every entity the token can read, sorted by
// qualified identifier. A nil token (auth disabled) sees everything.
func AccessibleTables(m *catalog.Model, tok *auth.Token) []TableDescription {
	out := []TableDescription{}
	for _, e := range m.SortedEntities() {
		if !tok.Permits(e.Namespace, auth.AccessRead) {
			continue
		}
		out = append(out, DescribeTable(e))
	}
	return out
}

// AccessibleNamespaces lists the model namespaces the token can read.
func AccessibleNamespaces(m *catalog.Model, tok *auth.Token) []string {
	out := []string{}
	for _, ns := range m.Namespaces {
		if tok.Permits(ns, auth.AccessRead) {
			out = append(out, ns)
		}
	}
	return out
}

// APICapabilities emits the capabilities envelope for the configuration.
func APICapabilities(cfg *config.Config) Capabilities {
	caps := Capabilities{
		BasePath:        "/api",
		AuthEnabled:     cfg.Auth.Enabled,
		DefaultPageSize: cfg.Pagination.DefaultPageSize,
		MaxPageSize:     cfg.Pagination.MaxPageSize,
		MaxBulkRows:     cfg.Pagination.MaxBulkRows,
		FilterOperators: query.OperatorNames(),
		FilterParam:     "filter.{column}",
		SortParams:      []string{"sortBy", "sortOrder"},
		SearchParams:    []string{"search", "searchColumns"},
		SelectParam:     "select",
	}
	if cfg.Auth.Enabled {
		caps.AuthHeaders = []string{"Authorization: Bearer", "X-API-Key"}
	}
	return caps
}

// Dump assembles the canonical model dump for a token's view of the model.
func Dump(m *catalog.Model, tok *auth.Token, cfg *config.Config) ModelDump {
	return ModelDump{
		DatabaseHash: m.Hash(),
		Namespaces:   AccessibleNamespaces(m, tok),
		Tables:       AccessibleTables(m, tok),
		Capabilities: APICapabilities(cfg),
	}
}
