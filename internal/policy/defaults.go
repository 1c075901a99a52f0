package policy

import (
	"context"
	"fmt"
	"sort"

	"github.com/JonMunkholm/sead-import/internal/schema"
	"github.com/JonMunkholm/sead-import/internal/submission"
)

// AddDefaultForeignKeys fills configured foreign key columns with a default
// identity. An absent column is created, an all-NULL column is overwritten
// and a partially NULL column has only its NULL cells filled.
type AddDefaultForeignKeys struct {
	// Defaults maps table -> column -> default identity.
	Defaults map[string]map[string]int64
}

func (AddDefaultForeignKeys) ID() string { return "add_default_foreign_keys" }

func (p AddDefaultForeignKeys) Update(_ context.Context, pc *Context) error {
	tables := make([]string, 0, len(p.Defaults))
	for t := range p.Defaults {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	for _, name := range tables {
		t, err := pc.Schema.Table(name)
		if err != nil {
			return err
		}
		if !pc.Submission.Has(t.Name) {
			continue
		}

		columns := make([]string, 0, len(p.Defaults[name]))
		for c := range p.Defaults[name] {
			columns = append(columns, c)
		}
		sort.Strings(columns)

		for _, column := range columns {
			if err := p.fill(pc, t, column, p.Defaults[name][column]); err != nil {
				return err
			}
		}
	}

	return nil
}

func (p AddDefaultForeignKeys) fill(pc *Context, t *schema.Table, column string, def int64) error {
	col, err := pc.Schema.Column(t.Name, column)
	if err != nil {
		return err
	}

	ds, err := pc.Submission.Get(t.Name)
	if err != nil {
		return err
	}
	if ds.Empty() {
		return nil
	}

	var out *submission.Dataset

	switch nulls := ds.NullCount(column); {
	case !ds.HasColumn(column):
		kind := schema.KindOf(col.DataType)
		v, err := submission.Convert(def, kind)
		if err != nil {
			return fmt.Errorf("default for %s.%s: %w", t.Name, column, err)
		}
		if out, err = ds.Fill(column, kind, v); err != nil {
			return err
		}
		pc.Log.Add(t.Name, "added column %s with default %d for %d rows", column, def, ds.Len())

	case nulls == ds.Len():
		kind := ds.Kind(column)
		v, err := submission.Convert(def, kind)
		if err != nil {
			return fmt.Errorf("default for %s.%s: %w", t.Name, column, err)
		}
		if out, err = ds.Fill(column, kind, v); err != nil {
			return err
		}
		pc.Log.Add(t.Name, "set %s to default %d for all %d rows", column, def, nulls)

	case nulls > 0:
		v, err := submission.Convert(def, ds.Kind(column))
		if err != nil {
			return fmt.Errorf("default for %s.%s: %w", t.Name, column, err)
		}
		out, err = ds.MapColumn(column, func(_ int, cell any) any {
			if submission.IsNull(cell) {
				return v
			}
			return cell
		})
		if err != nil {
			return err
		}
		pc.Log.Add(t.Name, "set %s to default %d for %d of %d rows", column, def, nulls, ds.Len())

	default:
		return nil
	}

	pc.Submission.Put(t.Name, out)
	return nil
}
