package gateway

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/pgcrud/pgcrud/internal/auth"
	"github.com/pgcrud/pgcrud/internal/catalog"
	"github.com/pgcrud/pgcrud/internal/config"
	"github.com/pgcrud/pgcrud/internal/dberr"
	"github.com/pgcrud/pgcrud/internal/metrics"
	"github.com/pgcrud/pgcrud/internal/query"
	"github.com/pgcrud/pgcrud/internal/request"
	"github.com/pgcrud/pgcrud/internal/surface"
)

// Dispatcher runs the per-operation pipeline over the immutable model and
// the connection pools. It is safe for concurrent use; it holds no
// per-request state.
type Dispatcher struct {
	model   *catalog.Model
	pools   *Pools
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a dispatcher.
func New(model *catalog.Model, pools *Pools, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		model:   model,
		pools:   pools,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
}

// Model returns the schema model.
func (d *Dispatcher) Model() *catalog.Model { return d.model }

// Config returns the gateway configuration.
func (d *Dispatcher) Config() *config.Config { return d.cfg }

// Probe checks primary pool health.
func (d *Dispatcher) Probe(ctx context.Context) error { return d.pools.Probe(ctx) }

// Pagination is the list envelope's page descriptor.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

// ListResult is the list response envelope.
type ListResult struct {
	Data       []map[string]any `json:"data"`
	Pagination Pagination       `json:"pagination"`
}

// BulkResult is the bulk-create response envelope.
type BulkResult struct {
	Data  []map[string]any `json:"data"`
	Count int              `json:"count"`
}

// DeleteResult is the delete response envelope. SoftDelete reports whether
// the row was stamped rather than removed.
type DeleteResult struct {
	Deleted    bool           `json:"deleted"`
	SoftDelete bool           `json:"soft_delete"`
	Record     map[string]any `json:"record"`
}

// Entity resolves a route segment, or fails NotFound.
func (d *Dispatcher) Entity(segment string) (*catalog.Entity, error) {
	e, ok := d.model.ByRoute(segment)
	if !ok {
		return nil, dberr.NotFound("Unknown table %q", segment)
	}
	return e, nil
}

// Describe resolves a table and returns its description. Unlike the listing
// surface, which silently hides inaccessible tables, describing a table the
// credential cannot read is an explicit denial.
func (d *Dispatcher) Describe(tok *auth.Token, segment string) (*surface.TableDescription, error) {
	e, err := d.Entity(segment)
	if err != nil {
		return nil, err
	}
	if err := permit(tok, e, auth.AccessRead); err != nil {
		return nil, err
	}
	desc := surface.DescribeTable(e)
	return &desc, nil
}

// permit applies the credential's claim check on the entity's namespace.
func permit(tok *auth.Token, e *catalog.Entity, access auth.Access) error {
	if tok.Permits(e.Namespace, access) {
		return nil
	}
	word := "read"
	if access == auth.AccessWrite {
		word = "write"
	}
	return dberr.New(dberr.KindPermissionDenied, "No %s access to namespace %q", word, e.Namespace)
}

// fail classifies, redacts and logs an operation failure. This is the single
// point where native errors become taxonomic ones.
func (d *Dispatcher) fail(ctx context.Context, op string, err error) error {
	e := dberr.Classify(err)
	if !d.cfg.ExposeDBErrors {
		e.Detail = ""
		e.Constraint = ""
	}
	if d.metrics != nil {
		d.metrics.QueryErrors.WithLabelValues(op, string(e.Kind)).Inc()
	}
	d.logger.Error("operation failed",
		slog.String("operation", op),
		slog.String("kind", string(e.Kind)),
		slog.String("error", e.Message),
		slog.String("request_id", middleware.GetReqID(ctx)))
	return e
}

func (d *Dispatcher) run(ctx context.Context, db *sql.DB, op, pool string, stmt query.SQL) ([]map[string]any, error) {
	start := time.Now()
	rows, err := db.QueryContext(ctx, stmt.Text, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.QueriesTotal.WithLabelValues(op, pool).Inc()
		d.metrics.QueryDuration.WithLabelValues(op, pool).Observe(time.Since(start).Seconds())
	}
	return out, nil
}

// List runs the list pipeline: filterable, sortable, searchable pagination
// plus a total count over the identical WHERE clause.
func (d *Dispatcher) List(ctx context.Context, tok *auth.Token, segment string, p query.ListParams) (*ListResult, error) {
	e, err := d.Entity(segment)
	if err != nil {
		return nil, d.fail(ctx, "list", err)
	}
	if err := permit(tok, e, auth.AccessRead); err != nil {
		return nil, d.fail(ctx, "list", err)
	}

	listStmt, err := query.List(e, p, d.cfg.Pagination.MaxPageSize)
	if err != nil {
		return nil, d.fail(ctx, "list", err)
	}
	countStmt, err := query.Count(e, p)
	if err != nil {
		return nil, d.fail(ctx, "list", err)
	}

	reader := d.pools.reader()

	var total int64
	if err := reader.QueryRowContext(ctx, countStmt.Text, countStmt.Args...).Scan(&total); err != nil {
		return nil, d.fail(ctx, "count", err)
	}

	data, err := d.run(ctx, reader, "list", "read", listStmt)
	if err != nil {
		return nil, d.fail(ctx, "list", err)
	}

	pageSize := p.ClampPageSize(d.cfg.Pagination.MaxPageSize)
	totalPages := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		totalPages++
	}
	return &ListResult{
		Data: data,
		Pagination: Pagination{
			Page:       p.ClampPage(),
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
		},
	}, nil
}

// Get runs the by-key read pipeline.
func (d *Dispatcher) Get(ctx context.Context, tok *auth.Token, segment, key string) (map[string]any, error) {
	e, err := d.Entity(segment)
	if err != nil {
		return nil, d.fail(ctx, "get", err)
	}
	if err := permit(tok, e, auth.AccessRead); err != nil {
		return nil, d.fail(ctx, "get", err)
	}
	keyValues, err := request.ParseKey(e, key)
	if err != nil {
		return nil, d.fail(ctx, "get", err)
	}

	rows, err := d.run(ctx, d.pools.reader(), "get", "read", query.Read(e, keyValues))
	if err != nil {
		return nil, d.fail(ctx, "get", err)
	}
	if len(rows) == 0 {
		return nil, dberr.NotFound("Record not found")
	}
	return rows[0], nil
}

// Create runs the insert pipeline. A bulk payload inserts every row in one
// statement and returns the bulk envelope; a single payload returns the
// created row.
func (d *Dispatcher) Create(ctx context.Context, tok *auth.Token, segment string, payload *request.WritePayload) (any, error) {
	e, err := d.Entity(segment)
	if err != nil {
		return nil, d.fail(ctx, "create", err)
	}
	if err := permit(tok, e, auth.AccessWrite); err != nil {
		return nil, d.fail(ctx, "create", err)
	}

	if payload.IsBulk() {
		stmt, err := query.BulkInsert(e, payload.Bulk, d.cfg.Pagination.MaxBulkRows)
		if err != nil {
			return nil, d.fail(ctx, "bulk_create", err)
		}
		rows, err := d.run(ctx, d.pools.Primary, "bulk_create", "primary", stmt)
		if err != nil {
			return nil, d.fail(ctx, "bulk_create", err)
		}
		return &BulkResult{Data: rows, Count: len(rows)}, nil
	}

	stmt, err := query.Insert(e, payload.Single)
	if err != nil {
		return nil, d.fail(ctx, "create", err)
	}
	rows, err := d.run(ctx, d.pools.Primary, "create", "primary", stmt)
	if err != nil {
		return nil, d.fail(ctx, "create", err)
	}
	if len(rows) == 0 {
		return nil, dberr.New(dberr.KindInternal, "Insert returned no row")
	}
	return rows[0], nil
}

// Update runs the partial/full update pipeline. Replace and patch share the
// same builder; op names them apart in logs and metrics.
func (d *Dispatcher) Update(ctx context.Context, tok *auth.Token, segment, key string, body map[string]any, op string) (map[string]any, error) {
	e, err := d.Entity(segment)
	if err != nil {
		return nil, d.fail(ctx, op, err)
	}
	if err := permit(tok, e, auth.AccessWrite); err != nil {
		return nil, d.fail(ctx, op, err)
	}
	keyValues, err := request.ParseKey(e, key)
	if err != nil {
		return nil, d.fail(ctx, op, err)
	}

	stmt, err := query.Update(e, keyValues, body)
	if err != nil {
		return nil, d.fail(ctx, op, err)
	}
	rows, err := d.run(ctx, d.pools.Primary, op, "primary", stmt)
	if err != nil {
		return nil, d.fail(ctx, op, err)
	}
	if len(rows) == 0 {
		return nil, dberr.NotFound("Record not found")
	}
	return rows[0], nil
}

// Delete runs the delete pipeline: a soft delete for entities with a
// deleted_at column, a hard delete otherwise.
func (d *Dispatcher) Delete(ctx context.Context, tok *auth.Token, segment, key string) (*DeleteResult, error) {
	e, err := d.Entity(segment)
	if err != nil {
		return nil, d.fail(ctx, "delete", err)
	}
	if err := permit(tok, e, auth.AccessWrite); err != nil {
		return nil, d.fail(ctx, "delete", err)
	}
	keyValues, err := request.ParseKey(e, key)
	if err != nil {
		return nil, d.fail(ctx, "delete", err)
	}

	stmt, soft := query.Delete(e, keyValues)
	rows, err := d.run(ctx, d.pools.Primary, "delete", "primary", stmt)
	if err != nil {
		return nil, d.fail(ctx, "delete", err)
	}
	if len(rows) == 0 {
		return nil, dberr.NotFound("Record not found")
	}
	return &DeleteResult{Deleted: true, SoftDelete: soft, Record: rows[0]}, nil
}
