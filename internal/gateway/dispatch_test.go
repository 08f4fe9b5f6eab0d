package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/pgcrud/pgcrud/internal/auth"
	"github.com/pgcrud/pgcrud/internal/catalog"
	"github.com/pgcrud/pgcrud/internal/config"
	"github.com/pgcrud/pgcrud/internal/dberr"
	"github.com/pgcrud/pgcrud/internal/metrics"
	"github.com/pgcrud/pgcrud/internal/query"
	"github.com/pgcrud/pgcrud/internal/request"
)

func testModel(t *testing.T) *catalog.Model {
	t.Helper()
	users := &catalog.Entity{
		Namespace: "public",
		Name:      "users",
		Columns: []catalog.Column{
			{Name: "id", TypeTag: "int8", Position: 1},
			{Name: "name", TypeTag: "text", Position: 2},
		},
		PrimaryKey: []string{"id"},
	}
	posts := &catalog.Entity{
		Namespace: "public",
		Name:      "posts",
		Columns: []catalog.Column{
			{Name: "id", TypeTag: "int8", Position: 1},
			{Name: "title", TypeTag: "text", Position: 2},
			{Name: "updated_at", TypeTag: "timestamptz", Nullable: true, Position: 3},
			{Name: "deleted_at", TypeTag: "timestamptz", Nullable: true, Position: 4},
		},
		PrimaryKey: []string{"id"},
	}
	sales := &catalog.Entity{
		Namespace:  "reporting",
		Name:       "sales",
		Columns:    []catalog.Column{{Name: "id", TypeTag: "int8", Position: 1}},
		PrimaryKey: []string{"id"},
	}
	m, err := catalog.NewModel([]string{"public", "reporting"}, []*catalog.Entity{users, posts, sales})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func testDispatcher(t *testing.T) (*Dispatcher, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.DefaultConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := New(testModel(t), &Pools{Primary: db}, cfg, logger, metrics.New())
	return d, mock
}

func kindOf(t *testing.T, err error) dberr.Kind {
	t.Helper()
	var e *dberr.Error
	if !errors.As(err, &e) {
		t.Fatalf("error %v is not taxonomic", err)
	}
	return e.Kind
}

func TestListEnvelope(t *testing.T) {
	d, mock := testDispatcher(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) AS total FROM "public"."users" WHERE "name" = $1`)).
		WithArgs("Alice").
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(12))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."users" WHERE "name" = $1 ORDER BY "id" ASC LIMIT $2 OFFSET $3`)).
		WithArgs("Alice", 5, 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(6, "Alice").
			AddRow(7, "Alice"))

	got, err := d.List(context.Background(), nil, "users", query.ListParams{
		Filters:  map[string]string{"name": "Alice"},
		Page:     2,
		PageSize: 5,
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(got.Data) != 2 {
		t.Errorf("rows = %d", len(got.Data))
	}
	if got.Data[0]["name"] != "Alice" {
		t.Errorf("row = %v", got.Data[0])
	}
	p := got.Pagination
	if p.Page != 2 || p.PageSize != 5 || p.Total != 12 || p.TotalPages != 3 {
		t.Errorf("pagination = %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListUnknownTable(t *testing.T) {
	d, _ := testDispatcher(t)
	_, err := d.List(context.Background(), nil, "ghost", query.ListParams{Page: 1, PageSize: 10})
	if kindOf(t, err) != dberr.KindNotFound {
		t.Errorf("kind = %v", kindOf(t, err))
	}
}

func TestGet(t *testing.T) {
	d, mock := testDispatcher(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."users" WHERE "id" = $1 LIMIT 1`)).
		WithArgs("42").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(42, []byte("Alice")))

	row, err := d.Get(context.Background(), nil, "users", "42")
	if err != nil {
		t.Fatal(err)
	}
	// Byte slices surface as strings.
	if row["name"] != "Alice" {
		t.Errorf("name = %v (%T)", row["name"], row["name"])
	}
}

func TestGetNotFound(t *testing.T) {
	d, mock := testDispatcher(t)

	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	_, err := d.Get(context.Background(), nil, "users", "99")
	if kindOf(t, err) != dberr.KindNotFound {
		t.Errorf("kind = %v", kindOf(t, err))
	}
}

func TestCreateSingle(t *testing.T) {
	d, mock := testDispatcher(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "public"."users" ("name") VALUES ($1) RETURNING *`)).
		WithArgs("Alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "Alice"))

	got, err := d.Create(context.Background(), nil, "users", &request.WritePayload{
		Single: map[string]any{"name": "Alice"},
	})
	if err != nil {
		t.Fatal(err)
	}
	row, ok := got.(map[string]any)
	if !ok || row["name"] != "Alice" {
		t.Errorf("result = %#v", got)
	}
}

func TestCreateBulkEnvelope(t *testing.T) {
	d, mock := testDispatcher(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "public"."users" ("name") VALUES ($1), ($2) RETURNING *`)).
		WithArgs("a", "b").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(1, "a").
			AddRow(2, "b"))

	got, err := d.Create(context.Background(), nil, "users", &request.WritePayload{
		Bulk: []map[string]any{{"name": "a"}, {"name": "b"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	bulk, ok := got.(*BulkResult)
	if !ok || bulk.Count != 2 || len(bulk.Data) != 2 {
		t.Errorf("result = %#v", got)
	}
}

func TestCreateConflictRedacted(t *testing.T) {
	d, mock := testDispatcher(t)

	mock.ExpectQuery("INSERT").
		WillReturnError(&pq.Error{
			Code:       "23505",
			Constraint: "users_name_key",
			Detail:     "Key (name)=(Alice) already exists.",
		})

	_, err := d.Create(context.Background(), nil, "users", &request.WritePayload{
		Single: map[string]any{"name": "Alice"},
	})
	var e *dberr.Error
	if !errors.As(err, &e) {
		t.Fatal(err)
	}
	if e.Kind != dberr.KindConflict {
		t.Errorf("kind = %s", e.Kind)
	}
	// expose_db_errors defaults off: native detail never reaches clients.
	if e.Detail != "" || e.Constraint != "" {
		t.Errorf("detail/constraint not redacted: %+v", e)
	}
}

func TestCreateConflictExposed(t *testing.T) {
	d, mock := testDispatcher(t)
	d.cfg.ExposeDBErrors = true

	mock.ExpectQuery("INSERT").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_name_key", Detail: "dup"})

	_, err := d.Create(context.Background(), nil, "users", &request.WritePayload{
		Single: map[string]any{"name": "Alice"},
	})
	var e *dberr.Error
	if !errors.As(err, &e) {
		t.Fatal(err)
	}
	if e.Constraint != "users_name_key" || e.Detail != "dup" {
		t.Errorf("expected native detail, got %+v", e)
	}
}

func TestUpdateNotFound(t *testing.T) {
	d, mock := testDispatcher(t)

	mock.ExpectQuery("UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	_, err := d.Update(context.Background(), nil, "users", "99", map[string]any{"name": "x"}, "patch")
	if kindOf(t, err) != dberr.KindNotFound {
		t.Errorf("kind = %v", kindOf(t, err))
	}
}

func TestDeleteSoft(t *testing.T) {
	d, mock := testDispatcher(t)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE "public"."posts" SET "deleted_at" = NOW(), "updated_at" = NOW() WHERE "id" = $1 RETURNING *`)).
		WithArgs("7").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(7, "gone"))

	got, err := d.Delete(context.Background(), nil, "posts", "7")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Deleted || !got.SoftDelete {
		t.Errorf("result = %+v", got)
	}
	if got.Record["title"] != "gone" {
		t.Errorf("record = %v", got.Record)
	}
}

func TestDeleteHard(t *testing.T) {
	d, mock := testDispatcher(t)

	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM "public"."users" WHERE "id" = $1 RETURNING *`)).
		WithArgs("42").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(42, "x"))

	got, err := d.Delete(context.Background(), nil, "users", "42")
	if err != nil {
		t.Fatal(err)
	}
	if got.SoftDelete {
		t.Error("users delete should be hard")
	}
}

func TestPermissionChecks(t *testing.T) {
	d, mock := testDispatcher(t)
	readOnly := &auth.Token{Label: "ro", Claims: auth.Claims{"public": "r"}}
	scoped := &auth.Token{Label: "s", Claims: auth.Claims{"public": "rw"}}

	// Write with a read-only token is denied before any SQL runs.
	_, err := d.Create(context.Background(), readOnly, "users", &request.WritePayload{
		Single: map[string]any{"name": "x"},
	})
	if kindOf(t, err) != dberr.KindPermissionDenied {
		t.Errorf("kind = %v", kindOf(t, err))
	}

	// A namespace outside the claims is denied even for reads.
	_, err = d.List(context.Background(), scoped, "reporting__sales", query.ListParams{Page: 1, PageSize: 10})
	if kindOf(t, err) != dberr.KindPermissionDenied {
		t.Errorf("kind = %v", kindOf(t, err))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("denied operations must not reach the database: %v", err)
	}
}

func TestPipelineErrorsAreLogged(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	d := New(testModel(t), &Pools{Primary: db}, config.DefaultConfig(), logger, metrics.New())

	readOnly := &auth.Token{Label: "ro", Claims: auth.Claims{"public": "r"}}
	_, err = d.Create(context.Background(), readOnly, "users", &request.WritePayload{
		Single: map[string]any{"name": "x"},
	})
	if kindOf(t, err) != dberr.KindPermissionDenied {
		t.Fatalf("kind = %v", kindOf(t, err))
	}
	if !strings.Contains(buf.String(), "operation failed") ||
		!strings.Contains(buf.String(), "permission_denied") {
		t.Errorf("denial not logged: %q", buf.String())
	}

	// Key-shape failures pass through the same logging point.
	buf.Reset()
	_, _ = d.Get(context.Background(), nil, "users", "1,2")
	if !strings.Contains(buf.String(), "validation_failed") {
		t.Errorf("key arity failure not logged: %q", buf.String())
	}

	buf.Reset()
	_, _ = d.List(context.Background(), nil, "ghost", query.ListParams{Page: 1, PageSize: 10})
	if !strings.Contains(buf.String(), "not_found") {
		t.Errorf("unknown table not logged: %q", buf.String())
	}
}

func TestDescribe(t *testing.T) {
	d, _ := testDispatcher(t)

	desc, err := d.Describe(nil, "posts")
	if err != nil {
		t.Fatal(err)
	}
	if desc.Name != "posts" {
		t.Errorf("table = %q", desc.Name)
	}

	readOnly := &auth.Token{Label: "ro", Claims: auth.Claims{"public": "r"}}
	if _, err := d.Describe(readOnly, "reporting__sales"); kindOf(t, err) != dberr.KindPermissionDenied {
		t.Error("describing an inaccessible table must be denied, not hidden")
	}

	if _, err := d.Describe(nil, "ghost"); kindOf(t, err) != dberr.KindNotFound {
		t.Error("unknown table")
	}
}
