package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"
)

// systemNamespaces are never exposed, regardless of include configuration.
var systemNamespaces = map[string]bool{
	"pg_catalog":         true,
	"information_schema": true,
	"pg_toast":           true,
}

const namespaceQuery = `
	SELECT schema_name
	FROM information_schema.schemata
	WHERE schema_name NOT LIKE 'pg\_%'
	  AND schema_name <> 'information_schema'
	ORDER BY schema_name`

const columnQuery = `
	SELECT c.table_schema, c.table_name, c.column_name, c.udt_name,
	       c.data_type, c.is_nullable, c.column_default,
	       c.character_maximum_length, c.ordinal_position
	FROM information_schema.columns c
	JOIN information_schema.tables t
	  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
	WHERE t.table_type = 'BASE TABLE'
	  AND c.table_schema = ANY($1)
	ORDER BY c.table_schema, c.table_name, c.ordinal_position`

const primaryKeyQuery = `
	SELECT tc.table_schema, tc.table_name, kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
	  ON kcu.constraint_name = tc.constraint_name
	 AND kcu.table_schema = tc.table_schema
	WHERE tc.constraint_type = 'PRIMARY KEY'
	  AND tc.table_schema = ANY($1)
	ORDER BY tc.table_schema, tc.table_name, kcu.ordinal_position`

const foreignKeyQuery = `
	SELECT tc.table_schema, tc.table_name, tc.constraint_name, kcu.column_name,
	       ccu.table_schema, ccu.table_name, ccu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
	  ON kcu.constraint_name = tc.constraint_name
	 AND kcu.table_schema = tc.table_schema
	JOIN information_schema.constraint_column_usage ccu
	  ON ccu.constraint_name = tc.constraint_name
	 AND ccu.table_schema = tc.table_schema
	WHERE tc.constraint_type = 'FOREIGN KEY'
	  AND tc.table_schema = ANY($1)
	ORDER BY tc.constraint_name`

// Options control which namespaces and tables are introspected.
type Options struct {
	IncludeNamespaces []string
	ExcludeNamespaces []string
	// ExcludeTables holds namespace.table full identifiers.
	ExcludeTables []string
	Logger        *slog.Logger
}

type columnRow struct {
	namespace, table string
	column           Column
}

type pkRow struct {
	namespace, table, column string
}

// Introspect reads the database catalog and assembles the schema model. Any
// catalog query failure is fatal; an empty post-filter namespace set is a
// configuration error.
func Introspect(ctx context.Context, db *sql.DB, opts Options) (*Model, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	namespaces, err := listNamespaces(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}

	namespaces = filterNamespaces(namespaces, opts)
	if len(namespaces) == 0 {
		return nil, fmt.Errorf("no namespaces remain after include/exclude filtering")
	}

	var (
		colRows []columnRow
		pkRows  []pkRow
		fkRows  []ForeignKey
		fkOwner []string // namespace.table per fkRows entry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		colRows, err = listColumns(gctx, db, namespaces)
		return err
	})
	g.Go(func() error {
		var err error
		pkRows, err = listPrimaryKeys(gctx, db, namespaces)
		return err
	})
	g.Go(func() error {
		var err error
		fkRows, fkOwner, err = listForeignKeys(gctx, db, namespaces)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(opts.ExcludeTables))
	for _, t := range opts.ExcludeTables {
		excluded[strings.TrimSpace(t)] = true
	}

	// One entity per distinct (namespace, table) pair, columns appended in
	// ordinal order. Map for merge, slice for stable assembly order.
	byName := make(map[string]*Entity)
	var entities []*Entity
	for _, row := range colRows {
		full := row.namespace + "." + row.table
		if excluded[full] {
			continue
		}
		e, ok := byName[full]
		if !ok {
			e = &Entity{Namespace: row.namespace, Name: row.table}
			byName[full] = e
			entities = append(entities, e)
		}
		e.Columns = append(e.Columns, row.column)
	}

	for _, row := range pkRows {
		if e, ok := byName[row.namespace+"."+row.table]; ok {
			e.PrimaryKey = append(e.PrimaryKey, row.column)
		}
	}

	for i, fk := range fkRows {
		if e, ok := byName[fkOwner[i]]; ok {
			e.ForeignKeys = append(e.ForeignKeys, fk)
		}
	}

	model, err := NewModel(namespaces, entities)
	if err != nil {
		return nil, err
	}

	for _, e := range entities {
		if len(e.PrimaryKey) == 0 {
			logger.Warn("table has no primary key, by-key operations disabled",
				slog.String("table", e.FullName()))
		}
		if strings.Contains(e.Name, RouteSeparator) || strings.Contains(e.Namespace, RouteSeparator) {
			logger.Warn("catalog name contains route separator",
				slog.String("table", e.FullName()))
		}
		for _, fk := range e.ForeignKeys {
			ref := QualifiedIdent(fk.RefNamespace, fk.RefTable)
			if _, ok := model.Entities[ref]; !ok {
				logger.Warn("foreign key references a table outside the model",
					slog.String("table", e.FullName()),
					slog.String("constraint", fk.ConstraintName),
					slog.String("references", fk.RefNamespace+"."+fk.RefTable))
			}
		}
	}

	logger.Info("catalog introspected",
		slog.Int("namespaces", len(namespaces)),
		slog.Int("tables", len(entities)))
	return model, nil
}

func listNamespaces(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, namespaceQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, err
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

func filterNamespaces(candidates []string, opts Options) []string {
	include := make(map[string]bool, len(opts.IncludeNamespaces))
	for _, ns := range opts.IncludeNamespaces {
		include[strings.TrimSpace(ns)] = true
	}
	exclude := make(map[string]bool, len(opts.ExcludeNamespaces))
	for _, ns := range opts.ExcludeNamespaces {
		exclude[strings.TrimSpace(ns)] = true
	}

	var out []string
	for _, ns := range candidates {
		if systemNamespaces[ns] || exclude[ns] {
			continue
		}
		if strings.HasPrefix(ns, "pg_temp") || strings.HasPrefix(ns, "pg_toast_temp") {
			continue
		}
		if len(include) > 0 && !include[ns] {
			continue
		}
		out = append(out, ns)
	}
	return out
}

func listColumns(ctx context.Context, db *sql.DB, namespaces []string) ([]columnRow, error) {
	rows, err := db.QueryContext(ctx, columnQuery, pq.Array(namespaces))
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var out []columnRow
	for rows.Next() {
		var (
			r          columnRow
			isNullable string
			defaultVal sql.NullString
			maxLen     sql.NullInt64
		)
		if err := rows.Scan(&r.namespace, &r.table, &r.column.Name, &r.column.TypeTag,
			&r.column.DeclaredType, &isNullable, &defaultVal, &maxLen, &r.column.Position); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		r.column.Nullable = isNullable == "YES"
		r.column.HasDefault = defaultVal.Valid
		r.column.Default = defaultVal.String
		r.column.MaxLength = int(maxLen.Int64)
		out = append(out, r)
	}
	return out, rows.Err()
}

func listPrimaryKeys(ctx context.Context, db *sql.DB, namespaces []string) ([]pkRow, error) {
	rows, err := db.QueryContext(ctx, primaryKeyQuery, pq.Array(namespaces))
	if err != nil {
		return nil, fmt.Errorf("list primary keys: %w", err)
	}
	defer rows.Close()

	var out []pkRow
	for rows.Next() {
		var r pkRow
		if err := rows.Scan(&r.namespace, &r.table, &r.column); err != nil {
			return nil, fmt.Errorf("scan primary key row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func listForeignKeys(ctx context.Context, db *sql.DB, namespaces []string) ([]ForeignKey, []string, error) {
	rows, err := db.QueryContext(ctx, foreignKeyQuery, pq.Array(namespaces))
	if err != nil {
		return nil, nil, fmt.Errorf("list foreign keys: %w", err)
	}
	defer rows.Close()

	var (
		fks    []ForeignKey
		owners []string
	)
	for rows.Next() {
		var (
			fk               ForeignKey
			namespace, table string
		)
		if err := rows.Scan(&namespace, &table, &fk.ConstraintName, &fk.Column,
			&fk.RefNamespace, &fk.RefTable, &fk.RefColumn); err != nil {
			return nil, nil, fmt.Errorf("scan foreign key row: %w", err)
		}
		fks = append(fks, fk)
		owners = append(owners, namespace+"."+table)
	}
	return fks, owners, rows.Err()
}
