package submission

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/JonMunkholm/sead-import/internal/schema"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New(
		schema.Table{
			Name:   "tbl_main",
			PKName: "main_id",
			Columns: []schema.Column{
				{Name: "main_id", DataType: "integer"},
				{Name: "name", DataType: "text"},
				{Name: "lookup_id", DataType: "integer", IsFK: true, FKTable: "tbl_lookup", FKColumn: "lookup_id"},
			},
		},
		schema.Table{
			Name:   "tbl_other",
			PKName: "other_id",
			Columns: []schema.Column{
				{Name: "other_id", DataType: "integer"},
				{Name: "lookup_id", DataType: "integer", IsFK: true, FKTable: "tbl_lookup", FKColumn: "lookup_id"},
			},
		},
		schema.Table{
			Name:      "tbl_lookup",
			PKName:    "lookup_id",
			IsLookup:  true,
			SheetName: "Lookup",
			Columns: []schema.Column{
				{Name: "lookup_id", DataType: "smallint"},
				{Name: "label", DataType: "text"},
			},
		},
	)
	if err != nil {
		t.Fatalf("schema.New() error = %v", err)
	}
	return s
}

func mustDataset(t *testing.T, columns []string, rows ...[]any) *Dataset {
	t.Helper()
	ds, err := FromRecords(columns, rows)
	if err != nil {
		t.Fatalf("FromRecords() error = %v", err)
	}
	return ds
}

type fakeSource map[string]*Dataset

func (f fakeSource) SheetNames() []string {
	names := make([]string, 0, len(f))
	for n := range f {
		names = append(names, n)
	}
	return names
}

func (f fakeSource) Sheet(name string) (*Dataset, error) {
	ds, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("no sheet %s", name)
	}
	return ds, nil
}

func TestLoad(t *testing.T) {
	s := testSchema(t)
	src := fakeSource{
		"tbl_main": mustDataset(t, []string{"system_id", "name"}, []any{int64(1), "a"}),
		"Lookup":   mustDataset(t, []string{"system_id", "lookup_id"}, []any{int64(1), int64(1)}),
		"Notes":    mustDataset(t, []string{"text"}),
		"Extra":    mustDataset(t, []string{"x"}),
	}

	sub, err := Load(context.Background(), s, src)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := sub.TableNames(); len(got) != 2 || got[0] != "tbl_lookup" || got[1] != "tbl_main" {
		t.Errorf("TableNames() = %v", got)
	}
	if len(sub.Unmapped) != 2 || sub.Unmapped[0] != "Extra" || sub.Unmapped[1] != "Notes" {
		t.Errorf("Unmapped = %v, want [Extra Notes]", sub.Unmapped)
	}
}

func TestSubmission_Get(t *testing.T) {
	s := testSchema(t)
	sub := New(s)
	ds := mustDataset(t, []string{"system_id", "lookup_id"}, []any{int64(1), nil})
	sub.Put("Lookup", ds)

	for _, key := range []string{"tbl_lookup", "Lookup", "com.sead.database.TblLookup"} {
		got, err := sub.Get(key)
		if err != nil {
			t.Fatalf("Get(%q) error = %v", key, err)
		}
		if got != ds {
			t.Errorf("Get(%q) returned a different dataset", key)
		}
	}

	_, err := sub.Get("tbl_main")
	if !errors.Is(err, schema.ErrNotFound) {
		t.Errorf("Get(tbl_main) error = %v, want ErrNotFound", err)
	}
	_, err = sub.Get("tbl_nope")
	if !errors.Is(err, schema.ErrNotFound) {
		t.Errorf("Get(tbl_nope) error = %v, want ErrNotFound", err)
	}
}

func TestSubmission_Predicates(t *testing.T) {
	s := testSchema(t)
	sub := New(s)
	sub.Put("tbl_lookup", mustDataset(t, []string{"system_id", "lookup_id"},
		[]any{int64(1), int64(1)},
		[]any{int64(2), nil},
	))
	sub.Put("tbl_main", mustDataset(t, []string{"name"}, []any{"a"}))
	sub.Put("tbl_other", mustDataset(t, []string{"system_id", "other_id"}, []any{int64(5), int64(5)}))

	if !sub.HasSystemID("tbl_lookup") || sub.HasSystemID("tbl_main") {
		t.Error("HasSystemID mismatch")
	}
	if !sub.HasPKID("Lookup") || sub.HasPKID("tbl_main") {
		t.Error("HasPKID mismatch")
	}
	if !sub.IsLookup("tbl_lookup") || sub.IsLookup("tbl_main") {
		t.Error("IsLookup mismatch")
	}
	if !sub.HasNewRows("tbl_lookup") {
		t.Error("tbl_lookup has a NULL public id")
	}
	if !sub.HasNewRows("tbl_main") {
		t.Error("tbl_main without pk column consists of new rows")
	}
	if sub.HasNewRows("tbl_other") {
		t.Error("tbl_other has only existing rows")
	}
}

func TestSubmission_ReferencedKeyset(t *testing.T) {
	s := testSchema(t)
	sub := New(s)
	sub.Put("tbl_main", mustDataset(t, []string{"system_id", "lookup_id"},
		[]any{int64(1), int64(100)},
		[]any{int64(2), nil},
		[]any{int64(3), int32(101)},
	))
	sub.Put("tbl_other", mustDataset(t, []string{"system_id", "lookup_id"},
		[]any{int64(1), "100"},
		[]any{int64(2), int64(102)},
	))

	keys, err := sub.ReferencedKeyset("tbl_lookup")
	if err != nil {
		t.Fatalf("ReferencedKeyset() error = %v", err)
	}
	if keys.Cardinality() != 3 || !keys.Contains(100, 101, 102) {
		t.Errorf("ReferencedKeyset() = %v, want {100 101 102}", keys)
	}

	// Recomputed from current data: dropping the column removes the reference.
	ds, _ := sub.Get("tbl_other")
	sub.Put("tbl_other", ds.DropColumns("lookup_id"))

	keys, err = sub.ReferencedKeyset("tbl_lookup")
	if err != nil {
		t.Fatalf("ReferencedKeyset() error = %v", err)
	}
	if keys.Cardinality() != 2 || keys.Contains(102) {
		t.Errorf("ReferencedKeyset() = %v, want {100 101}", keys)
	}

	if _, err := sub.ReferencedKeyset("tbl_nope"); !errors.Is(err, schema.ErrNotFound) {
		t.Errorf("unknown table error = %v", err)
	}
}

func TestSubmission_MissingReferencedKeys(t *testing.T) {
	s := testSchema(t)
	sub := New(s)
	sub.Put("tbl_main", mustDataset(t, []string{"system_id", "lookup_id"},
		[]any{int64(1), int64(100)},
		[]any{int64(2), int64(101)},
	))

	missing, err := sub.MissingReferencedKeys("tbl_lookup")
	if err != nil {
		t.Fatalf("MissingReferencedKeys() error = %v", err)
	}
	if missing.Cardinality() != 2 {
		t.Errorf("absent table should miss every key, got %v", missing)
	}

	sub.Put("tbl_lookup", mustDataset(t, []string{"system_id", "lookup_id"}, []any{int64(100), int64(100)}))
	missing, err = sub.MissingReferencedKeys("tbl_lookup")
	if err != nil {
		t.Fatalf("MissingReferencedKeys() error = %v", err)
	}
	if missing.Cardinality() != 1 || !missing.Contains(101) {
		t.Errorf("MissingReferencedKeys() = %v, want {101}", missing)
	}
}
