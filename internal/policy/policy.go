// Package policy implements the repair rules that reconcile a submission with
// the database schema before export.
//
// Policies run in a fixed order resolved once at startup (see Registry).
// Each policy reads the shared Submission, replaces the datasets it changes
// with new values and records what it did in a per-table Log. Ordering is a
// data dependency: a later policy may rely on state written by an earlier one.
package policy

import (
	"context"
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/JonMunkholm/sead-import/internal/schema"
	"github.com/JonMunkholm/sead-import/internal/submission"
)

// KeyService returns the primary keys already persisted for a table.
type KeyService interface {
	PrimaryKeyValues(ctx context.Context, table, pk string) (mapset.Set[int64], error)
}

// Policy is a single repair rule.
type Policy interface {
	// ID is the configuration key of the policy.
	ID() string

	// Update applies the rule to pc.Submission.
	Update(ctx context.Context, pc *Context) error
}

// Context is the state shared with a policy during one Update.
type Context struct {
	Schema     *schema.Schema
	Submission *submission.Submission
	Keys       KeyService
	Log        *Log
}

// Entry is one logged action.
type Entry struct {
	Table   string
	Message string
	Warning bool
}

// Log collects the actions a policy took, in order.
type Log struct {
	entries []Entry
}

// Add records an action for table.
func (l *Log) Add(table, format string, args ...any) {
	l.entries = append(l.entries, Entry{Table: table, Message: fmt.Sprintf(format, args...)})
}

// Warn records an action that signals questionable input data.
func (l *Log) Warn(table, format string, args ...any) {
	l.entries = append(l.entries, Entry{Table: table, Message: fmt.Sprintf(format, args...), Warning: true})
}

// Entries returns all recorded actions.
func (l *Log) Entries() []Entry {
	if l == nil {
		return nil
	}
	return append([]Entry(nil), l.entries...)
}

// Len returns the number of recorded actions.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

// Tables returns the distinct tables with recorded actions, sorted.
func (l *Log) Tables() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range l.Entries() {
		if !seen[e.Table] {
			seen[e.Table] = true
			out = append(out, e.Table)
		}
	}
	sort.Strings(out)
	return out
}

// For returns the messages recorded for table.
func (l *Log) For(table string) []string {
	var out []string
	for _, e := range l.Entries() {
		if e.Table == table {
			out = append(out, e.Message)
		}
	}
	return out
}

// Error wraps a failure inside a policy. The pipeline stops at the first one.
type Error struct {
	Policy string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("policy %s: %v", e.Policy, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// sortedKeys returns the members of a key set in ascending order.
func sortedKeys(set mapset.Set[int64]) []int64 {
	keys := set.ToSlice()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// presentTables returns the schema tables present in the submission, by name.
func presentTables(pc *Context) ([]*schema.Table, error) {
	names := pc.Submission.TableNames()
	out := make([]*schema.Table, 0, len(names))
	for _, name := range names {
		t, err := pc.Schema.Table(name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
