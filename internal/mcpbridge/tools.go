package mcpbridge

import (
	"context"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pgcrud/pgcrud/internal/auth"
	"github.com/pgcrud/pgcrud/internal/query"
	"github.com/pgcrud/pgcrud/internal/request"
	"github.com/pgcrud/pgcrud/internal/surface"
)

type tableArgs struct {
	Table string `json:"table" jsonschema:"Route segment of the table, as reported by list_tables"`
}

type recordArgs struct {
	Table string `json:"table" jsonschema:"Route segment of the table"`
	ID    string `json:"id" jsonschema:"Primary key value; composite keys are comma-separated in key order"`
}

type listArgs struct {
	Table         string            `json:"table" jsonschema:"Route segment of the table"`
	Page          int               `json:"page,omitempty" jsonschema:"Page number, starting at 1"`
	PageSize      int               `json:"page_size,omitempty" jsonschema:"Records per page"`
	SortBy        string            `json:"sort_by,omitempty" jsonschema:"Column to sort by"`
	SortOrder     string            `json:"sort_order,omitempty" jsonschema:"asc or desc"`
	Select        []string          `json:"select,omitempty" jsonschema:"Columns to return; omit for all"`
	Search        string            `json:"search,omitempty" jsonschema:"Case-insensitive substring match across text columns"`
	SearchColumns []string          `json:"search_columns,omitempty" jsonschema:"Restrict search to these columns"`
	Filters       map[string]string `json:"filters,omitempty" jsonschema:"Column to operator:value pairs, e.g. {\"age\": \"gte:21\"}; bare values mean equality"`
}

type createArgs struct {
	Table   string           `json:"table" jsonschema:"Route segment of the table"`
	Record  map[string]any   `json:"record,omitempty" jsonschema:"Single record to insert"`
	Records []map[string]any `json:"records,omitempty" jsonschema:"Records for a bulk insert; mutually exclusive with record"`
}

type updateArgs struct {
	Table  string         `json:"table" jsonschema:"Route segment of the table"`
	ID     string         `json:"id" jsonschema:"Primary key value; composite keys are comma-separated"`
	Record map[string]any `json:"record" jsonschema:"Columns to set"`
}

func (b *Bridge) addTools(s *mcp.Server, tok *auth.Token) {
	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_tables",
		Description: "List every table the credential can read, with columns, keys and supported operations.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
		return b.call(ctx, "list_tables", func() (any, error) {
			return surface.AccessibleTables(b.core.Model(), tok), nil
		})
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "describe_table",
		Description: "Describe one table: columns with portable types, primary key, foreign keys and operations.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args tableArgs) (*mcp.CallToolResult, any, error) {
		return b.call(ctx, "describe_table", func() (any, error) {
			return b.core.Describe(tok, args.Table)
		})
	})

	listSchema, _ := jsonschema.For[listArgs](nil)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_records",
		Description: "List records from a table with pagination, filtering, sorting, column selection and text search.",
		InputSchema: listSchema,
	}, func(ctx context.Context, req *mcp.CallToolRequest, args listArgs) (*mcp.CallToolResult, any, error) {
		return b.call(ctx, "list_records", func() (any, error) {
			return b.core.List(ctx, tok, args.Table, listParams(args, b.core.Config().Pagination.DefaultPageSize))
		})
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_record",
		Description: "Fetch a single record by primary key.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args recordArgs) (*mcp.CallToolResult, any, error) {
		return b.call(ctx, "get_record", func() (any, error) {
			return b.core.Get(ctx, tok, args.Table, args.ID)
		})
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "create_record",
		Description: "Insert one record, or several with the records array. Returns the created rows.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args createArgs) (*mcp.CallToolResult, any, error) {
		return b.call(ctx, "create_record", func() (any, error) {
			payload := &request.WritePayload{Single: args.Record, Bulk: args.Records}
			return b.core.Create(ctx, tok, args.Table, payload)
		})
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "update_record",
		Description: "Update columns of a record identified by primary key. Returns the updated row.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args updateArgs) (*mcp.CallToolResult, any, error) {
		return b.call(ctx, "update_record", func() (any, error) {
			return b.core.Update(ctx, tok, args.Table, args.ID, args.Record, "update_record")
		})
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "delete_record",
		Description: "Delete a record by primary key. Tables with a deleted_at column are soft-deleted.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args recordArgs) (*mcp.CallToolResult, any, error) {
		return b.call(ctx, "delete_record", func() (any, error) {
			return b.core.Delete(ctx, tok, args.Table, args.ID)
		})
	})
}

// call runs a tool body and folds its outcome into the MCP result shape.
func (b *Bridge) call(ctx context.Context, tool string, fn func() (any, error)) (*mcp.CallToolResult, any, error) {
	result, err := fn()
	if err != nil {
		b.logger.Warn("tool call failed", slog.String("tool", tool), slog.String("error", err.Error()))
		b.metrics.ToolCalls.WithLabelValues(tool, "error").Inc()
		return toolError(err), nil, nil
	}
	b.metrics.ToolCalls.WithLabelValues(tool, "ok").Inc()
	out, err := toolJSON(result)
	if err != nil {
		return nil, nil, err
	}
	return out, nil, nil
}

func listParams(args listArgs, defaultPageSize int) query.ListParams {
	p := query.ListParams{
		Page:          args.Page,
		PageSize:      args.PageSize,
		SortBy:        args.SortBy,
		SortDesc:      args.SortOrder == "desc",
		Select:        args.Select,
		Search:        args.Search,
		SearchColumns: args.SearchColumns,
		Filters:       args.Filters,
	}
	if p.Page == 0 {
		p.Page = 1
	}
	if p.PageSize == 0 {
		p.PageSize = defaultPageSize
	}
	if p.Filters == nil {
		p.Filters = map[string]string{}
	}
	return p
}
