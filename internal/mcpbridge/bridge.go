// Package mcpbridge exposes the dispatch core over the Model Context
// Protocol so agents can discover and manipulate the database through
// typed tools instead of raw HTTP.
package mcpbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pgcrud/pgcrud/internal/auth"
	"github.com/pgcrud/pgcrud/internal/dberr"
	"github.com/pgcrud/pgcrud/internal/gateway"
	"github.com/pgcrud/pgcrud/internal/metrics"
)

const serverName = "pgcrud"

// Bridge builds MCP servers bound to an authenticated credential.
type Bridge struct {
	core    *gateway.Dispatcher
	logger  *slog.Logger
	metrics *metrics.Metrics
	version string
}

// New creates a Bridge over the dispatch core.
func New(core *gateway.Dispatcher, logger *slog.Logger, m *metrics.Metrics, version string) *Bridge {
	return &Bridge{core: core, logger: logger, metrics: m, version: version}
}

// Handler returns the streamable HTTP handler. A fresh server is built per
// request so tool handlers close over the claims of the presented
// credential; the outer auth middleware has already verified it.
func (b *Bridge) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return b.serverFor(auth.TokenFromContext(r.Context()))
	}, nil)
}

// serverFor assembles a server whose handlers act as tok.
func (b *Bridge) serverFor(tok *auth.Token) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: b.version}, nil)
	b.addTools(s, tok)
	b.addResources(s, tok)
	b.addPrompts(s)
	return s
}

// toolError renders a pipeline error as a failed tool call. Protocol-level
// errors are reserved for malformed requests; a denied or failed operation
// is still a well-formed call.
func toolError(err error) *mcp.CallToolResult {
	var e *dberr.Error
	if !errors.As(err, &e) {
		e = &dberr.Error{Kind: dberr.KindInternal, Message: "Internal error"}
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if len(e.Details) > 0 {
		msg += fmt.Sprintf(" (%v)", e.Details)
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}

// toolJSON renders a result payload as a JSON text block.
func toolJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}
