package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Column describes one column of an entity.
type Column struct {
	Name         string
	TypeTag      string // low-level udt_name, e.g. int4, varchar, _int4
	DeclaredType string // portable textual type for documentation
	Nullable     bool
	HasDefault   bool
	Default      string // default expression text, empty when absent
	MaxLength    int    // character_maximum_length, 0 when absent
	Position     int    // ordinal position, 1-based
}

// ForeignKey describes one foreign-key constraint column.
type ForeignKey struct {
	ConstraintName string
	Column         string
	RefNamespace   string
	RefTable       string
	RefColumn      string
}

// Entity is one relational table. Entities are assembled once at startup and
// never mutated afterwards.
type Entity struct {
	Namespace   string
	Name        string
	Columns     []Column // ordered by declared position
	PrimaryKey  []string // PK member columns in PK-position order
	ForeignKeys []ForeignKey
}

// Qualified returns the two-part quoted SQL identifier of the entity.
func (e *Entity) Qualified() string {
	return QualifiedIdent(e.Namespace, e.Name)
}

// FullName returns the unquoted namespace.name pair, used for exclusion
// matching and log output.
func (e *Entity) FullName() string {
	return e.Namespace + "." + e.Name
}

// RouteSegment returns the URL identifier the entity is addressed by.
func (e *Entity) RouteSegment() string {
	return RouteSegmentFor(e.Namespace, e.Name)
}

// Column returns the named column, if present.
func (e *Entity) Column(name string) (*Column, bool) {
	for i := range e.Columns {
		if e.Columns[i].Name == name {
			return &e.Columns[i], true
		}
	}
	return nil, false
}

// HasColumn reports whether the entity has the named column.
func (e *Entity) HasColumn(name string) bool {
	_, ok := e.Column(name)
	return ok
}

// ColumnNames returns the column names in declared order.
func (e *Entity) ColumnNames() []string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = c.Name
	}
	return names
}

// SearchableColumns returns the names of all text-tagged columns.
func (e *Entity) SearchableColumns() []string {
	var names []string
	for _, c := range e.Columns {
		if IsTextTag(c.TypeTag) {
			names = append(names, c.Name)
		}
	}
	return names
}

// Model is the immutable schema model produced by introspection.
type Model struct {
	// Namespaces is the sorted list of namespaces that were introspected.
	Namespaces []string
	// Entities maps qualified identifier to entity.
	Entities map[string]*Entity

	routes map[string]*Entity
}

// NewModel assembles a model from its parts and indexes route segments.
// A route-segment collision (possible when catalog names contain the route
// separator) is a configuration error.
func NewModel(namespaces []string, entities []*Entity) (*Model, error) {
	m := &Model{
		Namespaces: append([]string(nil), namespaces...),
		Entities:   make(map[string]*Entity, len(entities)),
		routes:     make(map[string]*Entity, len(entities)),
	}
	sort.Strings(m.Namespaces)

	for _, e := range entities {
		m.Entities[e.Qualified()] = e
		seg := e.RouteSegment()
		if prev, ok := m.routes[seg]; ok {
			return nil, fmt.Errorf("route segment %q maps to both %s and %s", seg, prev.FullName(), e.FullName())
		}
		m.routes[seg] = e
	}
	return m, nil
}

// ByRoute resolves a route segment to its entity.
func (m *Model) ByRoute(segment string) (*Entity, bool) {
	e, ok := m.routes[segment]
	return e, ok
}

// SortedEntities returns the entities sorted by qualified identifier.
func (m *Model) SortedEntities() []*Entity {
	keys := make([]string, 0, len(m.Entities))
	for k := range m.Entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Entity, len(keys))
	for i, k := range keys {
		out[i] = m.Entities[k]
	}
	return out
}

// canonical digest serialization. Only semantic fields participate, in a
// fixed order, so the digest is stable across introspection runs.
type digestColumn struct {
	Name       string `json:"name"`
	TypeTag    string `json:"type_tag"`
	Nullable   bool   `json:"nullable"`
	HasDefault bool   `json:"has_default"`
	MaxLength  int    `json:"max_length,omitempty"`
	Position   int    `json:"position"`
}

type digestFK struct {
	Constraint   string `json:"constraint"`
	Column       string `json:"column"`
	RefNamespace string `json:"ref_namespace"`
	RefTable     string `json:"ref_table"`
	RefColumn    string `json:"ref_column"`
}

type digestEntity struct {
	Namespace   string         `json:"namespace"`
	Name        string         `json:"name"`
	Columns     []digestColumn `json:"columns"`
	PrimaryKey  []string       `json:"primary_key"`
	ForeignKeys []digestFK     `json:"foreign_keys"`
}

type digestModel struct {
	Namespaces []string       `json:"namespaces"`
	Entities   []digestEntity `json:"entities"`
}

// Hash returns the deterministic SHA-256 digest of the model, as 64
// lowercase hex characters. It is used to expose schema drift between
// process runs.
func (m *Model) Hash() string {
	dm := digestModel{Namespaces: m.Namespaces}

	for _, e := range m.SortedEntities() {
		de := digestEntity{
			Namespace:   e.Namespace,
			Name:        e.Name,
			Columns:     make([]digestColumn, 0, len(e.Columns)),
			PrimaryKey:  append([]string(nil), e.PrimaryKey...),
			ForeignKeys: make([]digestFK, 0, len(e.ForeignKeys)),
		}

		cols := append([]Column(nil), e.Columns...)
		sort.Slice(cols, func(i, j int) bool { return cols[i].Position < cols[j].Position })
		for _, c := range cols {
			de.Columns = append(de.Columns, digestColumn{
				Name:       c.Name,
				TypeTag:    c.TypeTag,
				Nullable:   c.Nullable,
				HasDefault: c.HasDefault,
				MaxLength:  c.MaxLength,
				Position:   c.Position,
			})
		}

		sort.Strings(de.PrimaryKey)

		fks := append([]ForeignKey(nil), e.ForeignKeys...)
		sort.Slice(fks, func(i, j int) bool { return fks[i].ConstraintName < fks[j].ConstraintName })
		for _, fk := range fks {
			de.ForeignKeys = append(de.ForeignKeys, digestFK{
				Constraint:   fk.ConstraintName,
				Column:       fk.Column,
				RefNamespace: fk.RefNamespace,
				RefTable:     fk.RefTable,
				RefColumn:    fk.RefColumn,
			})
		}

		dm.Entities = append(dm.Entities, de)
	}

	data, _ := json.Marshal(dm)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
