package policy

import (
	"context"

	"github.com/JonMunkholm/sead-import/internal/schema"
	"github.com/JonMunkholm/sead-import/internal/submission"
)

// AddReferencedLookupRows appends a row to a present lookup table for every
// identity referenced by other tables but missing from its system_id column.
// The new row carries the identity as system_id and as public id; every
// other column is NULL.
type AddReferencedLookupRows struct{}

func (AddReferencedLookupRows) ID() string { return "add_referenced_lookup_rows" }

func (AddReferencedLookupRows) Update(_ context.Context, pc *Context) error {
	for _, name := range pc.Schema.LookupTables() {
		if !pc.Submission.Has(name) {
			continue
		}
		t, err := pc.Schema.Table(name)
		if err != nil {
			return err
		}

		missing, err := pc.Submission.MissingReferencedKeys(t.Name)
		if err != nil {
			return err
		}
		if missing.Cardinality() == 0 {
			continue
		}

		ds, err := pc.Submission.Get(t.Name)
		if err != nil {
			return err
		}
		if !ds.HasColumn(submission.SystemID) {
			if ds, err = ds.Fill(submission.SystemID, systemIDKind, nil); err != nil {
				return err
			}
		}
		if !ds.HasColumn(t.PKName) {
			kind := schema.KindObject
			if c, ok := t.Column(t.PKName); ok {
				kind = schema.KindOf(c.DataType)
			}
			if ds, err = ds.Fill(t.PKName, kind, nil); err != nil {
				return err
			}
		}

		ids := sortedKeys(missing)
		rows := make([]submission.Row, len(ids))
		for i, id := range ids {
			rows[i] = submission.Row{submission.SystemID: id, t.PKName: id}
		}
		out, err := ds.AppendRows(rows...)
		if err != nil {
			return err
		}

		pc.Submission.Put(t.Name, out)
		pc.Log.Add(t.Name, "added %d referenced rows: %v", len(ids), ids)
	}

	return nil
}

// TrimUnchangedLookupTables reduces a lookup table without new rows to its
// system_id and primary key columns. Every row already exists, so no payload
// needs to be sent.
type TrimUnchangedLookupTables struct{}

func (TrimUnchangedLookupTables) ID() string { return "trim_unchanged_lookup_tables" }

func (TrimUnchangedLookupTables) Update(_ context.Context, pc *Context) error {
	for _, name := range pc.Schema.LookupTables() {
		if !pc.Submission.Has(name) || pc.Submission.HasNewRows(name) {
			continue
		}
		t, err := pc.Schema.Table(name)
		if err != nil {
			return err
		}
		ds, err := pc.Submission.Get(t.Name)
		if err != nil {
			return err
		}
		if !ds.HasColumn(t.PKName) {
			continue
		}

		out := ds.Select(submission.SystemID, t.PKName)
		dropped := len(ds.Columns()) - len(out.Columns())
		if dropped == 0 {
			continue
		}

		pc.Submission.Put(t.Name, out)
		pc.Log.Add(t.Name, "trimmed %d payload columns, no new rows", dropped)
	}

	return nil
}
