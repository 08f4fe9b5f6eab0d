package handlers

import (
	"net/http"

	"github.com/pgcrud/pgcrud/internal/catalog"
	"github.com/pgcrud/pgcrud/internal/config"
)

// OpenAPI handles GET /openapi.json: an OpenAPI 3 document generated from
// the introspected model. Unlike a hand-written spec it is always current;
// it regenerates on every request from the in-memory model.
func (h *Handler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, openAPIDoc(h.core.Model(), h.core.Config(), h.version))
}

func openAPIDoc(m *catalog.Model, cfg *config.Config, version string) map[string]any {
	paths := map[string]any{}
	schemas := map[string]any{}

	for _, e := range m.SortedEntities() {
		seg := e.RouteSegment()
		ref := map[string]any{"$ref": "#/components/schemas/" + seg}
		schemas[seg] = entitySchema(e)

		collection := map[string]any{
			"get": map[string]any{
				"summary": "List " + e.FullName(),
				"parameters": []any{
					queryParam("page", "integer"),
					queryParam("pageSize", "integer"),
					queryParam("sortBy", "string"),
					queryParam("sortOrder", "string"),
					queryParam("select", "string"),
					queryParam("search", "string"),
					queryParam("searchColumns", "string"),
				},
				"responses": jsonResponse("200", "Paged records"),
			},
			"post": map[string]any{
				"summary": "Create " + e.FullName() + " records",
				"requestBody": map[string]any{
					"required": true,
					"content":  map[string]any{"application/json": map[string]any{"schema": ref}},
				},
				"responses": jsonResponse("201", "Created record"),
			},
		}
		paths["/api/"+seg] = collection

		if len(e.PrimaryKey) == 0 {
			continue
		}
		idParam := map[string]any{
			"name":     "id",
			"in":       "path",
			"required": true,
			"schema":   map[string]any{"type": "string"},
		}
		body := map[string]any{
			"required": true,
			"content":  map[string]any{"application/json": map[string]any{"schema": ref}},
		}
		paths["/api/"+seg+"/{id}"] = map[string]any{
			"get": map[string]any{
				"summary":    "Fetch one " + e.FullName() + " record",
				"parameters": []any{idParam},
				"responses":  jsonResponse("200", "Record"),
			},
			"put": map[string]any{
				"summary":     "Replace a " + e.FullName() + " record",
				"parameters":  []any{idParam},
				"requestBody": body,
				"responses":   jsonResponse("200", "Updated record"),
			},
			"patch": map[string]any{
				"summary":     "Update a " + e.FullName() + " record",
				"parameters":  []any{idParam},
				"requestBody": body,
				"responses":   jsonResponse("200", "Updated record"),
			},
			"delete": map[string]any{
				"summary":    "Delete a " + e.FullName() + " record",
				"parameters": []any{idParam},
				"responses":  jsonResponse("200", "Deletion result"),
			},
		}
	}

	doc := map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":       "pgcrud",
			"description": "REST CRUD over every table of the connected database.",
			"version":     version,
		},
		"paths": paths,
		"components": map[string]any{
			"schemas": schemas,
		},
	}

	if cfg.Auth.Enabled {
		doc["components"].(map[string]any)["securitySchemes"] = map[string]any{
			"bearer": map[string]any{"type": "http", "scheme": "bearer"},
			"apiKey": map[string]any{"type": "apiKey", "in": "header", "name": "X-API-Key"},
		}
		doc["security"] = []any{
			map[string]any{"bearer": []any{}},
			map[string]any{"apiKey": []any{}},
		}
	}
	return doc
}

func entitySchema(e *catalog.Entity) map[string]any {
	props := map[string]any{}
	required := []any{}
	for _, c := range e.Columns {
		props[c.Name] = columnSchema(catalog.MapTypeTag(c.TypeTag), c.Nullable, c.MaxLength)
		if !c.Nullable && !c.HasDefault {
			required = append(required, c.Name)
		}
	}
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func columnSchema(pt catalog.PortableType, nullable bool, maxLength int) map[string]any {
	s := map[string]any{"type": pt.Kind}
	if pt.Format != "" {
		s["format"] = pt.Format
	}
	if pt.Minimum != nil {
		s["minimum"] = *pt.Minimum
	}
	if pt.Maximum != nil {
		s["maximum"] = *pt.Maximum
	}
	if pt.Items != nil {
		s["items"] = columnSchema(*pt.Items, false, 0)
	}
	if maxLength > 0 {
		s["maxLength"] = maxLength
	}
	// Opaque structured values accept anything, null included; only concrete
	// types carry the nullability marker.
	if nullable && pt.Kind != "object" {
		s["nullable"] = true
	}
	return s
}

func queryParam(name, typ string) map[string]any {
	return map[string]any{
		"name":   name,
		"in":     "query",
		"schema": map[string]any{"type": typ},
	}
}

func jsonResponse(code, description string) map[string]any {
	return map[string]any{
		code: map[string]any{
			"description": description,
			"content":     map[string]any{"application/json": map[string]any{"schema": map[string]any{"type": "object"}}},
		},
	}
}
