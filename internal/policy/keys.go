package policy

import (
	"context"

	"github.com/JonMunkholm/sead-import/internal/schema"
	"github.com/JonMunkholm/sead-import/internal/submission"
)

// systemIDKind is the storage kind of every system_id column.
const systemIDKind = schema.KindInt64

// AddPrimaryKeyColumn adds the declared primary key column, filled with
// NULL, to every table whose data lacks it. Every row of such a table is new.
type AddPrimaryKeyColumn struct{}

func (AddPrimaryKeyColumn) ID() string { return "add_primary_key_column" }

func (AddPrimaryKeyColumn) Update(_ context.Context, pc *Context) error {
	tables, err := presentTables(pc)
	if err != nil {
		return err
	}

	for _, t := range tables {
		ds, err := pc.Submission.Get(t.Name)
		if err != nil {
			return err
		}
		if t.PKName == "" || ds.HasColumn(t.PKName) {
			continue
		}

		kind := schema.KindObject
		if c, ok := t.Column(t.PKName); ok {
			kind = schema.KindOf(c.DataType)
		}
		out, err := ds.Fill(t.PKName, kind, nil)
		if err != nil {
			return err
		}
		pc.Submission.Put(t.Name, out)
		pc.Log.Add(t.Name, "added primary key column %s, %d rows marked new", t.PKName, ds.Len())
	}

	return nil
}

// BackfillSystemID copies the public id into system_id wherever system_id
// is NULL. A table without system_id gets the column. Needing this points at
// a gap in the upstream data, so every change is logged as a warning.
type BackfillSystemID struct{}

func (BackfillSystemID) ID() string { return "backfill_system_id" }

func (BackfillSystemID) Update(_ context.Context, pc *Context) error {
	tables, err := presentTables(pc)
	if err != nil {
		return err
	}

	for _, t := range tables {
		ds, err := pc.Submission.Get(t.Name)
		if err != nil {
			return err
		}
		if !ds.HasColumn(t.PKName) || ds.Empty() {
			continue
		}

		if !ds.HasColumn(submission.SystemID) {
			out, err := ds.WithColumn(submission.SystemID, ds.Kind(t.PKName), ds.Values(t.PKName))
			if err != nil {
				return err
			}
			out, err = out.Cast(submission.SystemID, systemIDKind)
			if err != nil {
				return err
			}
			pc.Submission.Put(t.Name, out)
			pc.Log.Warn(t.Name, "added %s from %s for %d rows", submission.SystemID, t.PKName,
				ds.Len()-ds.NullCount(t.PKName))
			continue
		}

		kind := ds.Kind(submission.SystemID)
		count := 0
		var convErr error
		out, err := ds.MapColumn(submission.SystemID, func(i int, v any) any {
			pk := ds.Value(i, t.PKName)
			if !submission.IsNull(v) || submission.IsNull(pk) {
				return v
			}
			cv, err := submission.Convert(pk, kind)
			if err != nil && convErr == nil {
				convErr = err
			}
			count++
			return cv
		})
		if err != nil {
			return err
		}
		if convErr != nil {
			return convErr
		}
		if count == 0 {
			continue
		}
		pc.Submission.Put(t.Name, out)
		pc.Log.Warn(t.Name, "copied %s into NULL %s for %d rows", t.PKName, submission.SystemID, count)
	}

	return nil
}
