package policy

import (
	"context"
	"strings"

	"github.com/JonMunkholm/sead-import/internal/config"
	"github.com/JonMunkholm/sead-import/internal/schema"
	"github.com/JonMunkholm/sead-import/internal/submission"
)

// CoerceColumnTypes casts integer columns to the width the schema declares,
// numeric columns to Float64, character columns to String and system_id to
// Int64. Temporal and boolean columns are formatted at export; columns the
// schema does not declare are left alone.
type CoerceColumnTypes struct{}

func (CoerceColumnTypes) ID() string { return "coerce_column_types" }

func (CoerceColumnTypes) Update(_ context.Context, pc *Context) error {
	tables, err := presentTables(pc)
	if err != nil {
		return err
	}

	for _, t := range tables {
		ds, err := pc.Submission.Get(t.Name)
		if err != nil {
			return err
		}

		var cast []string
		for _, column := range ds.Columns() {
			kind, ok := targetKind(t, column)
			if !ok || ds.Kind(column) == kind {
				continue
			}
			if ds, err = ds.Cast(column, kind); err != nil {
				return err
			}
			cast = append(cast, column+":"+string(kind))
		}

		if len(cast) == 0 {
			continue
		}
		pc.Submission.Put(t.Name, ds)
		pc.Log.Add(t.Name, "cast columns %s", strings.Join(cast, ", "))
	}

	return nil
}

// targetKind returns the kind a column is stored as.
func targetKind(t *schema.Table, column string) (schema.Kind, bool) {
	if column == submission.SystemID {
		return systemIDKind, true
	}
	c, ok := t.Column(column)
	if !ok {
		return "", false
	}
	kind := schema.KindOf(c.DataType)
	return kind, kind.IsInteger() || kind == schema.KindFloat64 || kind == schema.KindString
}

// DropIgnoredColumns removes columns that match any of the configured glob
// patterns. system_id and the primary key are never dropped.
type DropIgnoredColumns struct {
	Patterns config.ColumnPatterns
}

func (DropIgnoredColumns) ID() string { return "drop_ignored_columns" }

func (p DropIgnoredColumns) Update(_ context.Context, pc *Context) error {
	if len(p.Patterns) == 0 {
		return nil
	}

	tables, err := presentTables(pc)
	if err != nil {
		return err
	}

	for _, t := range tables {
		ds, err := pc.Submission.Get(t.Name)
		if err != nil {
			return err
		}

		var drop []string
		for _, column := range ds.Columns() {
			if column == submission.SystemID || column == t.PKName {
				continue
			}
			if p.Patterns.Match(t.Name, column) {
				drop = append(drop, column)
			}
		}

		if len(drop) == 0 {
			continue
		}
		pc.Submission.Put(t.Name, ds.DropColumns(drop...))
		pc.Log.Add(t.Name, "dropped ignored columns %s", strings.Join(drop, ", "))
	}

	return nil
}
