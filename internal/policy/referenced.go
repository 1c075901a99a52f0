package policy

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/sead-import/internal/schema"
	"github.com/JonMunkholm/sead-import/internal/submission"
)

// AddReferencedTables synthesizes tables that other tables reference but the
// submission does not carry. The synthesized table has only system_id and
// the primary key, both set to the referenced identities: a reference into a
// table that was not submitted is taken to be a persisted primary key.
//
// Referenced identities that are not among the persisted keys are logged as
// a warning, or fail the run when Strict is set.
type AddReferencedTables struct {
	Include []string
	Exclude []string
	Strict  bool
}

func (AddReferencedTables) ID() string { return "add_referenced_tables" }

func (p AddReferencedTables) Update(ctx context.Context, pc *Context) error {
	include := make(map[string]bool, len(p.Include))
	for _, t := range p.Include {
		include[t] = true
	}
	exclude := make(map[string]bool, len(p.Exclude))
	for _, t := range p.Exclude {
		exclude[t] = true
	}

	for _, t := range pc.Schema.Tables() {
		if pc.Submission.Has(t.Name) || exclude[t.Name] {
			continue
		}
		if len(include) > 0 && !include[t.Name] {
			continue
		}

		keys, err := pc.Submission.ReferencedKeyset(t.Name)
		if err != nil {
			return err
		}
		if keys.Cardinality() == 0 {
			continue
		}
		if t.PKName == "" {
			return fmt.Errorf("referenced table %s has no primary key", t.Name)
		}

		ids := sortedKeys(keys)
		if err := p.checkPersisted(ctx, pc, t, ids); err != nil {
			return err
		}

		records := make([][]any, len(ids))
		for i, id := range ids {
			records[i] = []any{id, id}
		}
		ds, err := submission.FromRecords([]string{submission.SystemID, t.PKName}, records)
		if err != nil {
			return err
		}
		if ds, err = ds.Cast(submission.SystemID, systemIDKind); err != nil {
			return err
		}
		pkKind := schema.KindInt64
		if c, ok := t.Column(t.PKName); ok && schema.KindOf(c.DataType).IsInteger() {
			pkKind = schema.KindOf(c.DataType)
		}
		if ds, err = ds.Cast(t.PKName, pkKind); err != nil {
			return fmt.Errorf("referenced table %s: %w", t.Name, err)
		}

		pc.Submission.Put(t.Name, ds)
		pc.Log.Add(t.Name, "added referenced table with %d rows", len(ids))
	}

	return nil
}

// checkPersisted compares the referenced identities with the keys already
// stored in the database.
func (p AddReferencedTables) checkPersisted(ctx context.Context, pc *Context, t *schema.Table, ids []int64) error {
	if pc.Keys == nil {
		return nil
	}

	persisted, err := pc.Keys.PrimaryKeyValues(ctx, t.Name, t.PKName)
	if err != nil {
		return fmt.Errorf("persisted keys of %s: %w", t.Name, err)
	}

	var unknown []int64
	for _, id := range ids {
		if !persisted.Contains(id) {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) == 0 {
		return nil
	}

	if p.Strict {
		return fmt.Errorf("referenced table %s: %d identities are not persisted keys: %v", t.Name, len(unknown), unknown)
	}
	pc.Log.Warn(t.Name, "%d referenced identities are not persisted keys: %v", len(unknown), unknown)
	return nil
}
