// Package submission holds one research-data submission: a typed record set
// per SEAD table, loaded from spreadsheet sheets and reconciled in place by
// the policy pipeline before export.
package submission

import (
	"context"
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/JonMunkholm/sead-import/internal/logging"
	"github.com/JonMunkholm/sead-import/internal/schema"
)

// Source provides raw sheet data by sheet name.
type Source interface {
	SheetNames() []string
	Sheet(name string) (*Dataset, error)
}

// Submission is the mutable collection of per-table datasets.
// Tables are stored under their canonical name and can be retrieved by name,
// class tag or sheet name.
type Submission struct {
	schema *schema.Schema
	tables map[string]*Dataset

	// Unmapped lists source sheets that match no schema table.
	Unmapped []string
}

// New creates an empty submission bound to a schema.
func New(s *schema.Schema) *Submission {
	return &Submission{
		schema: s,
		tables: make(map[string]*Dataset),
	}
}

// Load builds a submission from a source. Every schema table whose sheet
// name is present in the source is loaded; sheets no table maps to are
// recorded in Unmapped and otherwise ignored.
func Load(ctx context.Context, s *schema.Schema, src Source) (*Submission, error) {
	logger := logging.FromContext(ctx)
	sub := New(s)

	sheets := make(map[string]bool)
	for _, name := range src.SheetNames() {
		sheets[name] = true
	}

	mapped := make(map[string]bool)
	for _, t := range s.Tables() {
		if !sheets[t.SheetName] {
			continue
		}
		ds, err := src.Sheet(t.SheetName)
		if err != nil {
			return nil, fmt.Errorf("load sheet %s for %s: %w", t.SheetName, t.Name, err)
		}
		sub.tables[t.Name] = ds
		mapped[t.SheetName] = true
		logger.Debug("sheet loaded", "sheet", t.SheetName, "table", t.Name, "rows", ds.Len())
	}

	for name := range sheets {
		if !mapped[name] {
			sub.Unmapped = append(sub.Unmapped, name)
		}
	}
	sort.Strings(sub.Unmapped)
	if len(sub.Unmapped) > 0 {
		logger.Info("sheets not mapped to any table", "sheets", sub.Unmapped)
	}

	return sub, nil
}

// Schema returns the schema the submission is bound to.
func (s *Submission) Schema() *schema.Schema {
	return s.schema
}

// resolve maps a table name or alias to its canonical name.
func (s *Submission) resolve(key string) string {
	if _, ok := s.tables[key]; ok {
		return key
	}
	if t, err := s.schema.Table(key); err == nil {
		return t.Name
	}
	return key
}

// Get returns the dataset for a table name, class tag or sheet name.
func (s *Submission) Get(key string) (*Dataset, error) {
	ds, ok := s.tables[s.resolve(key)]
	if !ok {
		return nil, &schema.NotFoundError{Table: key}
	}
	return ds, nil
}

// Has reports whether the submission carries data for a table.
func (s *Submission) Has(key string) bool {
	_, ok := s.tables[s.resolve(key)]
	return ok
}

// Put stores ds as the dataset of a table, replacing any previous one.
func (s *Submission) Put(key string, ds *Dataset) {
	s.tables[s.resolve(key)] = ds
}

// TableNames returns the canonical names of all present tables, sorted.
func (s *Submission) TableNames() []string {
	names := make([]string, 0, len(s.tables))
	for n := range s.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HasSystemID reports whether the table's data carries a system_id column.
func (s *Submission) HasSystemID(table string) bool {
	ds, err := s.Get(table)
	return err == nil && ds.HasColumn(SystemID)
}

// HasPKID reports whether the table's data carries its primary key column.
func (s *Submission) HasPKID(table string) bool {
	t, err := s.schema.Table(table)
	if err != nil {
		return false
	}
	ds, err := s.Get(t.Name)
	return err == nil && ds.HasColumn(t.PKName)
}

// IsLookup reports whether the table is a lookup table.
func (s *Submission) IsLookup(table string) bool {
	t, err := s.schema.Table(table)
	return err == nil && t.IsLookup
}

// HasNewRows reports whether any row of the table has a NULL public id.
// A table without its primary key column consists of new rows only.
func (s *Submission) HasNewRows(table string) bool {
	t, err := s.schema.Table(table)
	if err != nil {
		return false
	}
	ds, err := s.Get(t.Name)
	if err != nil || ds.Empty() {
		return false
	}
	return ds.NullCount(t.PKName) > 0
}

// ReferencedKeyset returns the identities of table referenced by the other
// tables present in the submission.
//
// A referencing table contributes only if its data carries a column named
// after table's primary key; the schema alone is not enough. The set is
// derived from the current data on every call.
func (s *Submission) ReferencedKeyset(table string) (mapset.Set[int64], error) {
	t, err := s.schema.Table(table)
	if err != nil {
		return nil, err
	}

	keys := mapset.NewThreadUnsafeSet[int64]()
	for _, ref := range s.schema.TablesReferencing(t.Name) {
		if ref == t.Name {
			continue
		}
		ds, ok := s.tables[ref]
		if !ok || !ds.HasColumn(t.PKName) {
			continue
		}
		ids, err := ds.IntSet(t.PKName)
		if err != nil {
			return nil, fmt.Errorf("referenced keys of %s in %s: %w", t.Name, ref, err)
		}
		for id := range ids {
			keys.Add(id)
		}
	}
	return keys, nil
}

// MissingReferencedKeys returns the referenced identities of table that no
// row of table carries as system_id. A table absent from the submission
// misses every referenced identity.
func (s *Submission) MissingReferencedKeys(table string) (mapset.Set[int64], error) {
	keys, err := s.ReferencedKeyset(table)
	if err != nil {
		return nil, err
	}
	ds, err := s.Get(table)
	if err != nil {
		return keys, nil
	}
	present, err := ds.IntSet(SystemID)
	if err != nil {
		return nil, err
	}
	missing := keys.Clone()
	for id := range present {
		missing.Remove(id)
	}
	return missing, nil
}
