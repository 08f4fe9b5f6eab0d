// Package catalog provides the introspected schema model: entities, columns,
// primary and foreign keys, identifier quoting, and the portable type mapping.
package catalog

import "strings"

// RouteSeparator joins namespace and table name in route segments for
// entities outside the public namespace.
const RouteSeparator = "__"

// QuoteIdent quotes a catalog name for use as a SQL identifier. Embedded
// double quotes are doubled. Every identifier emitted into SQL goes through
// this function.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifiedIdent returns the two-part quoted identifier for a table.
func QualifiedIdent(namespace, name string) string {
	return QuoteIdent(namespace) + "." + QuoteIdent(name)
}

// RouteSegmentFor derives the URL identifier for a (namespace, table) pair.
// Tables in the public namespace keep their bare name; all others are
// prefixed with their namespace.
func RouteSegmentFor(namespace, name string) string {
	if namespace == "public" {
		return name
	}
	return namespace + RouteSeparator + name
}
