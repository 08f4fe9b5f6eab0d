package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pgcrud/pgcrud/internal/auth"
	"github.com/pgcrud/pgcrud/internal/surface"
)

const (
	schemaResourceURI = "pgcrud://schema"
	tableResourceURI  = "pgcrud://tables/{segment}"
	tableURIPrefix    = "pgcrud://tables/"
)

func (b *Bridge) addResources(s *mcp.Server, tok *auth.Token) {
	s.AddResource(&mcp.Resource{
		URI:         schemaResourceURI,
		Name:        "Database schema",
		Description: "Full model of every accessible table: columns, keys, relationships and API capabilities.",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		dump := surface.Dump(b.core.Model(), tok, b.core.Config())
		return jsonResource(schemaResourceURI, dump)
	})

	s.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: tableResourceURI,
		Name:        "Table description",
		Description: "Description of a single table addressed by its route segment.",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		segment, ok := strings.CutPrefix(req.Params.URI, tableURIPrefix)
		if !ok || segment == "" {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		desc, err := b.core.Describe(tok, segment)
		if err != nil {
			return nil, err
		}
		return jsonResource(req.Params.URI, desc)
	})
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

func (b *Bridge) addPrompts(s *mcp.Server) {
	s.AddPrompt(&mcp.Prompt{
		Name:        "database_overview",
		Description: "Survey the database and summarize what it contains.",
	}, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return promptResult("Explore this database.",
			"Call list_tables to see every accessible table, then describe_table on the "+
				"ones that look central. Summarize what the database models, how the tables "+
				"relate through foreign keys, and which tables hold the most important data."), nil
	})

	s.AddPrompt(&mcp.Prompt{
		Name:        "table_crud_guide",
		Description: "Explain how to work with the records of one table.",
		Arguments: []*mcp.PromptArgument{{
			Name:        "table",
			Description: "Route segment of the table",
			Required:    true,
		}},
	}, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		table := req.Params.Arguments["table"]
		if table == "" {
			return nil, fmt.Errorf("table argument is required")
		}
		return promptResult(fmt.Sprintf("How do I work with the %q table?", table),
			fmt.Sprintf("Call describe_table with table %q, then explain which columns are "+
				"required on insert, how records are addressed by primary key, and give "+
				"example list_records, create_record, update_record and delete_record calls "+
				"for this table.", table)), nil
	})
}

func promptResult(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []*mcp.PromptMessage{{
			Role:    "user",
			Content: &mcp.TextContent{Text: text},
		}},
	}
}
