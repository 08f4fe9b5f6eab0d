package query

import (
	"errors"
	"reflect"
	"testing"

	"github.com/pgcrud/pgcrud/internal/catalog"
	"github.com/pgcrud/pgcrud/internal/dberr"
)

func usersEntity() *catalog.Entity {
	return &catalog.Entity{
		Namespace: "public",
		Name:      "users",
		Columns: []catalog.Column{
			{Name: "id", TypeTag: "int8", Position: 1},
			{Name: "name", TypeTag: "text", Position: 2},
			{Name: "email", TypeTag: "varchar", Nullable: true, Position: 3},
			{Name: "age", TypeTag: "int4", Nullable: true, Position: 4},
		},
		PrimaryKey: []string{"id"},
	}
}

func assertSQL(t *testing.T, got SQL, wantText string, wantArgs []any) {
	t.Helper()
	if got.Text != wantText {
		t.Errorf("text:\n got  %s\n want %s", got.Text, wantText)
	}
	if !reflect.DeepEqual(got.Args, wantArgs) {
		t.Errorf("args:\n got  %#v\n want %#v", got.Args, wantArgs)
	}
}

func TestListFilteredAndPaged(t *testing.T) {
	got, err := List(usersEntity(), ListParams{
		Filters:  map[string]string{"name": "Alice"},
		SortBy:   "id",
		Page:     2,
		PageSize: 5,
	}, 100)
	if err != nil {
		t.Fatal(err)
	}
	assertSQL(t, got,
		`SELECT * FROM "public"."users" WHERE "name" = $1 ORDER BY "id" ASC LIMIT $2 OFFSET $3`,
		[]any{"Alice", 5, 5})
}

func TestListDefaults(t *testing.T) {
	got, err := List(usersEntity(), ListParams{Page: 1, PageSize: 20}, 100)
	if err != nil {
		t.Fatal(err)
	}
	assertSQL(t, got,
		`SELECT * FROM "public"."users" ORDER BY "id" ASC LIMIT $1 OFFSET $2`,
		[]any{20, 0})
}

func TestListSortDescending(t *testing.T) {
	got, err := List(usersEntity(), ListParams{SortBy: "name", SortDesc: true, Page: 1, PageSize: 10}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != `SELECT * FROM "public"."users" ORDER BY "name" DESC LIMIT $1 OFFSET $2` {
		t.Errorf("text = %s", got.Text)
	}
}

func TestListSortFallback(t *testing.T) {
	// Unknown sort column falls back to the first PK column.
	got, err := List(usersEntity(), ListParams{SortBy: "nope", Page: 1, PageSize: 10}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != `SELECT * FROM "public"."users" ORDER BY "id" ASC LIMIT $1 OFFSET $2` {
		t.Errorf("text = %s", got.Text)
	}

	// Without a PK, the first declared column orders.
	noPK := usersEntity()
	noPK.PrimaryKey = nil
	got, err = List(noPK, ListParams{Page: 1, PageSize: 10}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != `SELECT * FROM "public"."users" ORDER BY "id" ASC LIMIT $1 OFFSET $2` {
		t.Errorf("text = %s", got.Text)
	}
}

func TestListClamping(t *testing.T) {
	got, err := List(usersEntity(), ListParams{Page: -3, PageSize: 9999}, 100)
	if err != nil {
		t.Fatal(err)
	}
	// Page clamps to 1, size to the configured maximum.
	if !reflect.DeepEqual(got.Args, []any{100, 0}) {
		t.Errorf("args = %#v", got.Args)
	}

	got, _ = List(usersEntity(), ListParams{Page: 1, PageSize: 0}, 100)
	if !reflect.DeepEqual(got.Args, []any{1, 0}) {
		t.Errorf("zero page size should clamp to 1, args = %#v", got.Args)
	}
}

func TestListProjection(t *testing.T) {
	got, err := List(usersEntity(), ListParams{Select: []string{"name", "id"}, Page: 1, PageSize: 10}, 100)
	if err != nil {
		t.Fatal(err)
	}
	// Requested order is preserved; unknown names drop out.
	if got.Text != `SELECT "name", "id" FROM "public"."users" ORDER BY "id" ASC LIMIT $1 OFFSET $2` {
		t.Errorf("text = %s", got.Text)
	}

	got, err = List(usersEntity(), ListParams{Select: []string{"name", "ghost"}, Page: 1, PageSize: 10}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != `SELECT "name" FROM "public"."users" ORDER BY "id" ASC LIMIT $1 OFFSET $2` {
		t.Errorf("text = %s", got.Text)
	}

	_, err = List(usersEntity(), ListParams{Select: []string{"ghost"}, Page: 1, PageSize: 10}, 100)
	var e *dberr.Error
	if !errors.As(err, &e) || e.Kind != dberr.KindValidation {
		t.Errorf("all-unknown selection should fail validation, got %v", err)
	}
	if len(e.Details) == 0 {
		t.Error("validation error should list the known columns")
	}
}

func TestCountSharesWhere(t *testing.T) {
	p := ListParams{
		Filters: map[string]string{"age": "gte:21", "name": "like:%Al%"},
		Search:  "smith",
		Page:    3, PageSize: 10,
	}
	list, err := List(usersEntity(), p, 100)
	if err != nil {
		t.Fatal(err)
	}
	count, err := Count(usersEntity(), p)
	if err != nil {
		t.Fatal(err)
	}

	wantWhere := ` WHERE "age" >= $1 AND "name" LIKE $2 AND ("name"::text ILIKE $3 OR "email"::text ILIKE $4)`
	if count.Text != `SELECT COUNT(*) AS total FROM "public"."users"`+wantWhere {
		t.Errorf("count text = %s", count.Text)
	}
	// The page query reuses the same clause with the same parameter numbering.
	wantList := `SELECT * FROM "public"."users"` + wantWhere + ` ORDER BY "id" ASC LIMIT $5 OFFSET $6`
	if list.Text != wantList {
		t.Errorf("list text = %s", list.Text)
	}
	if !reflect.DeepEqual(count.Args, list.Args[:4]) {
		t.Errorf("count args %#v diverge from list args %#v", count.Args, list.Args[:4])
	}
}

func TestRead(t *testing.T) {
	got := Read(usersEntity(), []string{"42"})
	assertSQL(t, got,
		`SELECT * FROM "public"."users" WHERE "id" = $1 LIMIT 1`,
		[]any{"42"})
}

func TestReadCompositeKey(t *testing.T) {
	e := &catalog.Entity{
		Namespace: "public",
		Name:      "memberships",
		Columns: []catalog.Column{
			{Name: "user_id", TypeTag: "int8", Position: 1},
			{Name: "team_id", TypeTag: "int8", Position: 2},
		},
		PrimaryKey: []string{"user_id", "team_id"},
	}
	got := Read(e, []string{"7", "9"})
	assertSQL(t, got,
		`SELECT * FROM "public"."memberships" WHERE "user_id" = $1 AND "team_id" = $2 LIMIT 1`,
		[]any{"7", "9"})
}
