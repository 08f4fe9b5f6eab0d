package query

import (
	"errors"
	"reflect"
	"testing"

	"github.com/pgcrud/pgcrud/internal/catalog"
	"github.com/pgcrud/pgcrud/internal/dberr"
)

func postsEntity() *catalog.Entity {
	return &catalog.Entity{
		Namespace: "public",
		Name:      "posts",
		Columns: []catalog.Column{
			{Name: "id", TypeTag: "int8", Position: 1},
			{Name: "title", TypeTag: "text", Position: 2},
			{Name: "body", TypeTag: "text", Nullable: true, Position: 3},
			{Name: "updated_at", TypeTag: "timestamptz", Nullable: true, Position: 4},
			{Name: "deleted_at", TypeTag: "timestamptz", Nullable: true, Position: 5},
		},
		PrimaryKey: []string{"id"},
	}
}

func TestInsert(t *testing.T) {
	got, err := Insert(usersEntity(), map[string]any{"name": "Alice", "age": 30})
	if err != nil {
		t.Fatal(err)
	}
	assertSQL(t, got,
		`INSERT INTO "public"."users" ("name", "age") VALUES ($1, $2) RETURNING *`,
		[]any{"Alice", 30})
}

func TestInsertStampsUpdatedAt(t *testing.T) {
	got, err := Insert(postsEntity(), map[string]any{"title": "Hello"})
	if err != nil {
		t.Fatal(err)
	}
	// Absent updated_at becomes the literal NOW(), not a parameter.
	assertSQL(t, got,
		`INSERT INTO "public"."posts" ("title", "updated_at") VALUES ($1, NOW()) RETURNING *`,
		[]any{"Hello"})
}

func TestInsertExplicitUpdatedAtBinds(t *testing.T) {
	got, err := Insert(postsEntity(), map[string]any{"title": "Hello", "updated_at": "2026-01-01T00:00:00Z"})
	if err != nil {
		t.Fatal(err)
	}
	assertSQL(t, got,
		`INSERT INTO "public"."posts" ("title", "updated_at") VALUES ($1, $2) RETURNING *`,
		[]any{"Hello", "2026-01-01T00:00:00Z"})
}

func TestInsertUnknownKeysDropped(t *testing.T) {
	got, err := Insert(usersEntity(), map[string]any{"name": "Alice", "ghost": "x"})
	if err != nil {
		t.Fatal(err)
	}
	assertSQL(t, got,
		`INSERT INTO "public"."users" ("name") VALUES ($1) RETURNING *`,
		[]any{"Alice"})

	_, err = Insert(usersEntity(), map[string]any{"ghost": "x"})
	var e *dberr.Error
	if !errors.As(err, &e) || e.Kind != dberr.KindValidation {
		t.Errorf("all-unknown payload should fail validation, got %v", err)
	}
}

func TestBulkInsertUnionColumns(t *testing.T) {
	got, err := BulkInsert(usersEntity(), []map[string]any{
		{"name": "Alice", "age": 30},
		{"name": "Bob"},
	}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	// Rows omitting a union column bind NULL for it.
	assertSQL(t, got,
		`INSERT INTO "public"."users" ("name", "age") VALUES ($1, $2), ($3, $4) RETURNING *`,
		[]any{"Alice", 30, "Bob", nil})
}

func TestBulkInsertRowCap(t *testing.T) {
	rows := make([]map[string]any, 3)
	for i := range rows {
		rows[i] = map[string]any{"name": "x"}
	}
	if _, err := BulkInsert(usersEntity(), rows, 2); err == nil {
		t.Error("exceeding the row cap should fail")
	}
	if _, err := BulkInsert(usersEntity(), nil, 2); err == nil {
		t.Error("empty bulk should fail")
	}
}

func TestUpdate(t *testing.T) {
	got, err := Update(usersEntity(), []string{"42"}, map[string]any{"name": "Carol"})
	if err != nil {
		t.Fatal(err)
	}
	assertSQL(t, got,
		`UPDATE "public"."users" SET "name" = $1 WHERE "id" = $2 RETURNING *`,
		[]any{"Carol", "42"})
}

func TestUpdateStampsUpdatedAt(t *testing.T) {
	got, err := Update(postsEntity(), []string{"7"}, map[string]any{"title": "New"})
	if err != nil {
		t.Fatal(err)
	}
	assertSQL(t, got,
		`UPDATE "public"."posts" SET "title" = $1, "updated_at" = NOW() WHERE "id" = $2 RETURNING *`,
		[]any{"New", "7"})
}

func TestUpdateDropsPrimaryKeyColumns(t *testing.T) {
	got, err := Update(usersEntity(), []string{"42"}, map[string]any{"id": 99, "name": "Carol"})
	if err != nil {
		t.Fatal(err)
	}
	assertSQL(t, got,
		`UPDATE "public"."users" SET "name" = $1 WHERE "id" = $2 RETURNING *`,
		[]any{"Carol", "42"})

	// A payload reduced to only PK columns has nothing to set.
	_, err = Update(usersEntity(), []string{"42"}, map[string]any{"id": 99})
	var e *dberr.Error
	if !errors.As(err, &e) || e.Kind != dberr.KindValidation {
		t.Errorf("err = %v", err)
	}
}

func TestDeleteSoft(t *testing.T) {
	got, soft := Delete(postsEntity(), []string{"7"})
	if !soft {
		t.Fatal("posts has deleted_at, delete should be soft")
	}
	assertSQL(t, got,
		`UPDATE "public"."posts" SET "deleted_at" = NOW(), "updated_at" = NOW() WHERE "id" = $1 RETURNING *`,
		[]any{"7"})
}

func TestDeleteSoftWithoutUpdatedAt(t *testing.T) {
	e := postsEntity()
	e.Columns = []catalog.Column{
		{Name: "id", TypeTag: "int8", Position: 1},
		{Name: "deleted_at", TypeTag: "timestamptz", Nullable: true, Position: 2},
	}
	got, soft := Delete(e, []string{"7"})
	if !soft {
		t.Fatal("delete should be soft")
	}
	if got.Text != `UPDATE "public"."posts" SET "deleted_at" = NOW() WHERE "id" = $1 RETURNING *` {
		t.Errorf("text = %s", got.Text)
	}
}

func TestDeleteHard(t *testing.T) {
	got, soft := Delete(usersEntity(), []string{"42"})
	if soft {
		t.Fatal("users has no deleted_at, delete should be hard")
	}
	assertSQL(t, got,
		`DELETE FROM "public"."users" WHERE "id" = $1 RETURNING *`,
		[]any{"42"})
}

func TestUpdateCompositeKeyNumbering(t *testing.T) {
	e := &catalog.Entity{
		Namespace: "public",
		Name:      "memberships",
		Columns: []catalog.Column{
			{Name: "user_id", TypeTag: "int8", Position: 1},
			{Name: "team_id", TypeTag: "int8", Position: 2},
			{Name: "role", TypeTag: "text", Position: 3},
		},
		PrimaryKey: []string{"user_id", "team_id"},
	}
	got, err := Update(e, []string{"7", "9"}, map[string]any{"role": "admin"})
	if err != nil {
		t.Fatal(err)
	}
	assertSQL(t, got,
		`UPDATE "public"."memberships" SET "role" = $1 WHERE "user_id" = $2 AND "team_id" = $3 RETURNING *`,
		[]any{"admin", "7", "9"})
}

func TestPayloadValueOrderFollowsColumns(t *testing.T) {
	// Payload key order is irrelevant: values bind in declared column order.
	a, _ := Insert(usersEntity(), map[string]any{"age": 1, "name": "x", "email": "e"})
	b, _ := Insert(usersEntity(), map[string]any{"email": "e", "age": 1, "name": "x"})
	if a.Text != b.Text || !reflect.DeepEqual(a.Args, b.Args) {
		t.Errorf("statements diverge:\n %s %#v\n %s %#v", a.Text, a.Args, b.Text, b.Args)
	}
}
