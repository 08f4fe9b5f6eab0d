package catalog

import "strings"

// PortableType is the JSON-facing type of a column, derived from its
// low-level Postgres type tag (udt_name).
type PortableType struct {
	// Kind is one of "integer", "number", "boolean", "string", "object",
	// "array".
	Kind string
	// Format qualifies string kinds: uuid, date, date-time, time, byte.
	Format string
	// Minimum and Maximum carry range bounds for bit-width-limited integers.
	Minimum *int64
	Maximum *int64
	// Items is the element type for array kinds.
	Items *PortableType
}

func intBounds(bits uint) (*int64, *int64) {
	maximum := int64(1)<<(bits-1) - 1
	minimum := -maximum - 1
	return &minimum, &maximum
}

// MapTypeTag maps a Postgres type tag to its portable type. The mapping is
// total: a tag beginning with an underscore denotes an array of the base
// tag, and any tag not otherwise recognized maps to plain string.
func MapTypeTag(tag string) PortableType {
	if rest, ok := strings.CutPrefix(tag, "_"); ok && rest != "" {
		elem := MapTypeTag(rest)
		return PortableType{Kind: "array", Items: &elem}
	}

	switch tag {
	case "int2":
		minimum, maximum := intBounds(16)
		return PortableType{Kind: "integer", Minimum: minimum, Maximum: maximum}
	case "int4":
		minimum, maximum := intBounds(32)
		return PortableType{Kind: "integer", Minimum: minimum, Maximum: maximum}
	case "int8":
		return PortableType{Kind: "integer"}
	case "float4", "float8", "numeric", "money":
		return PortableType{Kind: "number"}
	case "bool":
		return PortableType{Kind: "boolean"}
	case "json", "jsonb":
		return PortableType{Kind: "object"}
	case "uuid":
		return PortableType{Kind: "string", Format: "uuid"}
	case "date":
		return PortableType{Kind: "string", Format: "date"}
	case "timestamp", "timestamptz":
		return PortableType{Kind: "string", Format: "date-time"}
	case "time", "timetz":
		return PortableType{Kind: "string", Format: "time"}
	case "bytea":
		return PortableType{Kind: "string", Format: "byte"}
	default:
		return PortableType{Kind: "string"}
	}
}

// textTags are the type tags considered searchable text. Search defaults to
// every column carrying one of these tags.
var textTags = map[string]bool{
	"text":    true,
	"varchar": true,
	"bpchar":  true,
	"char":    true,
	"name":    true,
	"citext":  true,
}

// IsTextTag reports whether a type tag denotes searchable text.
func IsTextTag(tag string) bool {
	return textTags[tag]
}
