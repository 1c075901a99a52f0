package database

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/sead-import/internal/config"
	"github.com/JonMunkholm/sead-import/internal/schema"
)

// fakeDB answers Query with canned rows chosen by a substring of the SQL.
type fakeDB struct {
	results map[string][][]any
	err     error
	queries []string
	args    [][]any
}

func (f *fakeDB) Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("not supported")
}

func (f *fakeDB) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return nil
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	f.queries = append(f.queries, sql)
	f.args = append(f.args, args)
	if f.err != nil {
		return nil, f.err
	}
	for key, rows := range f.results {
		if strings.Contains(sql, key) {
			return &fakeRows{rows: rows}, nil
		}
	}
	return &fakeRows{}, nil
}

type fakeRows struct {
	rows   [][]any
	i      int
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.i-1], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.closed || r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.i-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d targets for %d values", len(dest), len(row))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d).Elem()
		if row[i] == nil {
			dv.Set(reflect.Zero(dv.Type()))
			continue
		}
		v := reflect.ValueOf(row[i])
		if dv.Kind() == reflect.Pointer {
			p := reflect.New(dv.Type().Elem())
			p.Elem().Set(v.Convert(dv.Type().Elem()))
			dv.Set(p)
			continue
		}
		dv.Set(v.Convert(dv.Type()))
	}
	return nil
}

func TestKeyService_PrimaryKeyValues(t *testing.T) {
	db := &fakeDB{results: map[string][][]any{
		`"sead"."tbl_sites"`: {{int64(1)}, {int64(5)}, {int64(9)}},
	}}
	ks := NewKeyService(db, "sead")

	keys, err := ks.PrimaryKeyValues(context.Background(), "tbl_sites", "site_id")
	if err != nil {
		t.Fatalf("PrimaryKeyValues() error = %v", err)
	}
	if !keys.Equal(mapset.NewThreadUnsafeSet[int64](1, 5, 9)) {
		t.Errorf("keys = %v", keys)
	}

	want := `SELECT "site_id" FROM "sead"."tbl_sites" WHERE "site_id" IS NOT NULL`
	if db.queries[0] != want {
		t.Errorf("query = %s, want %s", db.queries[0], want)
	}
}

func TestKeyService_QuotesIdentifiers(t *testing.T) {
	db := &fakeDB{}
	ks := NewKeyService(db, "")

	if _, err := ks.PrimaryKeyValues(context.Background(), `tbl"; drop table x; --`, "id"); err != nil {
		t.Fatalf("PrimaryKeyValues() error = %v", err)
	}
	if !strings.Contains(db.queries[0], `"public"."tbl""; drop table x; --"`) {
		t.Errorf("identifier not quoted: %s", db.queries[0])
	}
}

func TestKeyService_Error(t *testing.T) {
	db := &fakeDB{err: errors.New("connection refused")}
	ks := NewKeyService(db, "")

	_, err := ks.PrimaryKeyValues(context.Background(), "tbl_sites", "site_id")
	if err == nil || !strings.Contains(err.Error(), "tbl_sites") {
		t.Errorf("error = %v, want wrapped error naming the table", err)
	}
}

type countingKeys struct {
	calls int
	err   error
}

func (c *countingKeys) PrimaryKeyValues(context.Context, string, string) (mapset.Set[int64], error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return mapset.NewThreadUnsafeSet[int64](1, 2), nil
}

func TestCachedKeyService(t *testing.T) {
	next := &countingKeys{}
	cache := NewCachedKeyService(next)
	ctx := context.Background()

	first, err := cache.PrimaryKeyValues(ctx, "tbl_sites", "site_id")
	if err != nil {
		t.Fatal(err)
	}
	first.Add(99) // callers own the returned set

	second, err := cache.PrimaryKeyValues(ctx, "tbl_sites", "site_id")
	if err != nil {
		t.Fatal(err)
	}
	if next.calls != 1 {
		t.Errorf("calls = %d, want 1", next.calls)
	}
	if second.Contains(99) {
		t.Error("cached set was mutated through a returned copy")
	}

	if _, err := cache.PrimaryKeyValues(ctx, "tbl_locations", "location_id"); err != nil {
		t.Fatal(err)
	}
	if next.calls != 2 {
		t.Errorf("calls = %d, want 2", next.calls)
	}

	cache.Invalidate()
	if _, err := cache.PrimaryKeyValues(ctx, "tbl_sites", "site_id"); err != nil {
		t.Fatal(err)
	}
	if next.calls != 3 {
		t.Errorf("calls after Invalidate = %d, want 3", next.calls)
	}
}

func TestCachedKeyService_ErrorNotCached(t *testing.T) {
	next := &countingKeys{err: errors.New("timeout")}
	cache := NewCachedKeyService(next)

	for i := 0; i < 2; i++ {
		if _, err := cache.PrimaryKeyValues(context.Background(), "tbl_sites", "site_id"); err == nil {
			t.Fatal("expected error")
		}
	}
	if next.calls != 2 {
		t.Errorf("calls = %d, want 2", next.calls)
	}
}

func catalogDB() *fakeDB {
	return &fakeDB{results: map[string][][]any{
		"information_schema.columns": {
			{"tbl_datasets", "dataset_id", 1, "integer", "int4", nil, "NO"},
			{"tbl_datasets", "dataset_name", 2, "character varying", "varchar", 255, "NO"},
			{"tbl_datasets", "updated_dataset_id", 3, "integer", "int4", nil, "YES"},
			{"tbl_datasets", "contact_id", 4, "integer", "int4", nil, "YES"},
			{"tbl_datasets", "date_updated", 5, "timestamp with time zone", "timestamptz", nil, "YES"},
			{"tbl_contacts", "contact_id", 1, "integer", "int4", nil, "NO"},
			{"tbl_contacts", "last_name", 2, "text", "text", nil, "YES"},
			{"tbl_dataset_contacts", "dataset_id", 1, "integer", "int4", nil, "NO"},
			{"tbl_dataset_contacts", "contact_id", 2, "integer", "int4", nil, "NO"},
		},
		"'PRIMARY KEY'": {
			{"tbl_contacts", "contact_id"},
			{"tbl_datasets", "dataset_id"},
			{"tbl_dataset_contacts", "dataset_id"},
			{"tbl_dataset_contacts", "contact_id"},
		},
		"'FOREIGN KEY'": {
			{"tbl_datasets", "contact_id", "tbl_contacts", "contact_id"},
			{"tbl_dataset_contacts", "dataset_id", "tbl_datasets", "dataset_id"},
			{"tbl_dataset_contacts", "contact_id", "tbl_contacts", "contact_id"},
		},
	}}
}

func TestSchemaReader_Read(t *testing.T) {
	db := catalogDB()
	meta := map[string]config.TableMeta{
		"tbl_contacts": {Lookup: true, Sheet: "Contacts"},
		"tbl_missing":  {Lookup: true},
	}

	s, err := NewSchemaReader(db, "sead", meta).Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got := strings.Join(s.TableNames(), ","); got != "tbl_contacts,tbl_dataset_contacts,tbl_datasets" {
		t.Errorf("TableNames() = %s", got)
	}
	for _, args := range db.args {
		if len(args) != 1 || args[0] != "sead" {
			t.Errorf("query args = %v, want [sead]", args)
		}
	}

	contacts, err := s.Table("Contacts")
	if err != nil {
		t.Fatalf("lookup by sheet name: %v", err)
	}
	if !contacts.IsLookup || contacts.PKName != "contact_id" {
		t.Errorf("tbl_contacts = %+v", contacts)
	}

	datasets, err := s.Table("com.sead.database.TblDatasets")
	if err != nil {
		t.Fatalf("lookup by class: %v", err)
	}
	if datasets.PKName != "dataset_id" || !datasets.HasTimestamp() {
		t.Errorf("tbl_datasets = %+v", datasets)
	}

	col, err := s.Column("tbl_datasets", "dataset_name")
	if err != nil {
		t.Fatal(err)
	}
	if col.DataType != "varchar(255)" || col.Nullable || col.Position != 2 {
		t.Errorf("dataset_name = %+v", col)
	}
	if col, _ := s.Column("tbl_datasets", "date_updated"); schema.KindOf(col.DataType) != schema.KindDatetime {
		t.Errorf("date_updated type = %s", col.DataType)
	}

	if target, ok := s.FKTarget("tbl_datasets", "contact_id"); !ok || target != "tbl_contacts" {
		t.Errorf("FKTarget(contact_id) = %s, %v", target, ok)
	}
	if target, ok := s.FKTarget("tbl_datasets", "updated_dataset_id"); !ok || target != "tbl_datasets" {
		t.Errorf("FKTarget(updated_dataset_id) = %s, %v", target, ok)
	}

	assoc, err := s.Table("tbl_dataset_contacts")
	if err != nil {
		t.Fatal(err)
	}
	if assoc.PKName != "" {
		t.Errorf("composite key table PKName = %q, want empty", assoc.PKName)
	}
	if got := strings.Join(s.TablesReferencing("tbl_contacts"), ","); got != "tbl_dataset_contacts,tbl_datasets" {
		t.Errorf("TablesReferencing(tbl_contacts) = %s", got)
	}
}

func TestSchemaReader_QueryError(t *testing.T) {
	db := &fakeDB{err: errors.New("permission denied")}

	_, err := NewSchemaReader(db, "", nil).Read(context.Background())
	if err == nil || !strings.Contains(err.Error(), "columns") {
		t.Errorf("Read() error = %v", err)
	}
}

func TestSchemaReader_MetadataCollision(t *testing.T) {
	meta := map[string]config.TableMeta{
		"tbl_contacts": {Sheet: "tbl_datasets"},
	}

	_, err := NewSchemaReader(catalogDB(), "", meta).Read(context.Background())
	var collision *schema.CollisionError
	if !errors.As(err, &collision) {
		t.Errorf("Read() error = %v, want *schema.CollisionError", err)
	}
}

func TestNormalizeType(t *testing.T) {
	n := int32(40)
	tests := []struct {
		dataType, udt string
		length        *int32
		want          string
	}{
		{"timestamp without time zone", "timestamp", nil, "timestamp"},
		{"timestamp with time zone", "timestamptz", nil, "timestamptz"},
		{"character varying", "varchar", &n, "varchar(40)"},
		{"character varying", "varchar", nil, "varchar"},
		{"character", "bpchar", &n, "char(40)"},
		{"ARRAY", "_int4", nil, "int4[]"},
		{"USER-DEFINED", "mood", nil, "mood"},
		{"smallint", "int2", nil, "smallint"},
	}

	for _, tt := range tests {
		if got := normalizeType(tt.dataType, tt.udt, tt.length); got != tt.want {
			t.Errorf("normalizeType(%s, %s) = %s, want %s", tt.dataType, tt.udt, got, tt.want)
		}
	}
}
