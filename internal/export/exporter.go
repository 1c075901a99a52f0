// Package export writes a reconciled submission in the four-file
// tab-separated bulk-load format.
//
// Every exported table yields one tables row, one columns row per exported
// column and one records row per identifiable record. Records that already
// exist in the database (public id set) are exported by identity only; new
// records also get one recordvalues row per column, with foreign keys
// resolved from submission-local identities to persisted ones where possible.
package export

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/JonMunkholm/sead-import/internal/config"
	"github.com/JonMunkholm/sead-import/internal/logging"
	"github.com/JonMunkholm/sead-import/internal/schema"
	"github.com/JonMunkholm/sead-import/internal/submission"
)

// Options configures an Exporter.
type Options struct {
	// Tables restricts the export to these tables; empty exports all.
	Tables []string

	// IgnoreColumns are glob patterns of columns never exported.
	IgnoreColumns config.ColumnPatterns

	// Basename prefixes the output file names.
	Basename string

	// Now is the dateUpdated timestamp; zero means the time of NewExporter.
	Now time.Time
}

// Exporter renders submissions against one schema.
type Exporter struct {
	schema *schema.Schema
	opts   Options
	now    time.Time
}

// NewExporter creates an exporter. The dateUpdated timestamp is fixed here,
// so exporting the same submission twice yields identical output.
func NewExporter(s *schema.Schema, opts Options) *Exporter {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	if opts.Basename == "" {
		opts.Basename = "submission"
	}
	return &Exporter{schema: s, opts: opts, now: now.UTC()}
}

// Output holds the rendered rows of the four files, without headers.
type Output struct {
	Tables       [][]string
	Columns      [][]string
	Records      [][]string
	RecordValues [][]string
}

// TableResult summarizes one exported table.
type TableResult struct {
	Table       string
	Class       string
	Records     int
	New         int
	Values      int
	SkippedRows int
}

// Result summarizes an export.
type Result struct {
	Tables []TableResult
	Files  []string

	// Unresolved counts foreign key values whose target row was not found.
	Unresolved int

	// Dangling holds, per target table, identities referenced by a foreign
	// key but not present among the target's rows.
	Dangling map[string][]int64
}

// Records returns the total number of exported records.
func (r *Result) Records() int {
	n := 0
	for _, t := range r.Tables {
		n += t.Records
	}
	return n
}

// Export renders sub and writes the four files into dir, creating it if
// missing.
func (e *Exporter) Export(ctx context.Context, sub *submission.Submission, dir string) (*Result, error) {
	out, res, err := e.Render(ctx, sub)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	files := []outputFile{
		{e.opts.Basename + TablesSuffix, TablesHeader, out.Tables},
		{e.opts.Basename + ColumnsSuffix, ColumnsHeader, out.Columns},
		{e.opts.Basename + RecordsSuffix, RecordsHeader, out.Records},
		{e.opts.Basename + RecordValuesSuffix, RecordValuesHeader, out.RecordValues},
	}
	paths, err := writeFiles(dir, files)
	if err != nil {
		return nil, err
	}
	res.Files = paths

	logging.FromContext(ctx).Info("export written",
		"dir", dir,
		"tables", len(res.Tables),
		"records", res.Records(),
		"unresolved_fks", res.Unresolved,
	)
	return res, nil
}

// Render builds the rows of the four files in memory.
func (e *Exporter) Render(ctx context.Context, sub *submission.Submission) (*Output, *Result, error) {
	logger := logging.FromContext(ctx)

	names, err := e.selectTables(ctx, sub)
	if err != nil {
		return nil, nil, err
	}

	r := &render{
		exporter: e,
		sub:      sub,
		out:      &Output{},
		res:      &Result{Dangling: make(map[string][]int64)},
		targets:  make(map[string]map[int64]any),
		dangling: make(map[string]mapset.Set[int64]),
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if err := r.table(ctx, name); err != nil {
			return nil, nil, err
		}
	}

	targets := make([]string, 0, len(r.dangling))
	for t := range r.dangling {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	for _, t := range targets {
		ids := r.dangling[t].ToSlice()
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		r.res.Dangling[t] = ids
		logger.Warn("referenced identities missing from target table", "table", t, "count", len(ids), "ids", ids)
	}

	return r.out, r.res, nil
}

// selectTables returns the present tables to export, sorted by name.
func (e *Exporter) selectTables(ctx context.Context, sub *submission.Submission) ([]string, error) {
	names := sub.TableNames()
	if len(e.opts.Tables) == 0 {
		return names, nil
	}

	want := make(map[string]bool, len(e.opts.Tables))
	for _, key := range e.opts.Tables {
		t, err := e.schema.Table(key)
		if err != nil {
			return nil, fmt.Errorf("export table filter: %w", err)
		}
		want[t.Name] = true
	}

	var selected, filtered []string
	for _, n := range names {
		if want[n] {
			selected = append(selected, n)
		} else {
			filtered = append(filtered, n)
		}
	}
	if len(filtered) > 0 {
		logging.FromContext(ctx).Info("tables excluded from export", "tables", filtered)
	}
	return selected, nil
}

// render is the state of one Render call.
type render struct {
	exporter *Exporter
	sub      *submission.Submission
	out      *Output
	res      *Result

	// targets caches, per table, system_id -> public id.
	targets  map[string]map[int64]any
	dangling map[string]mapset.Set[int64]
}

// exportColumn is a dataset column with its export metadata.
type exportColumn struct {
	name     string
	wireName string
	javaType string
	fkTable  string
}

func (r *render) table(ctx context.Context, name string) error {
	logger := logging.WithFields(ctx, "table", name)
	e := r.exporter

	t, err := e.schema.Table(name)
	if err != nil {
		return err
	}
	ds, err := r.sub.Get(t.Name)
	if err != nil {
		return err
	}
	if ds.Empty() {
		logger.Debug("empty table skipped")
		return nil
	}

	columns, err := r.columns(t, ds)
	if err != nil {
		return err
	}

	tr := TableResult{Table: t.Name, Class: t.ClassName}
	unresolved := make(map[string]int)

	var records, values [][]string
	for i := 0; i < ds.Len(); i++ {
		publicID := FormatID(ds.Value(i, t.PKName))
		systemID := FormatID(ds.Value(i, submission.SystemID))

		if publicID == Null && systemID == Null {
			tr.SkippedRows++
			logger.Warn("row skipped, no identity", "row", i)
			continue
		}

		records = append(records, []string{t.ClassName, systemID, publicID})
		if publicID != Null {
			continue
		}
		tr.New++

		for _, c := range columns {
			row, ok, err := r.value(t, ds, i, c)
			if err != nil {
				return err
			}
			if !ok {
				unresolved[c.name]++
			}
			values = append(values, append([]string{t.ClassName, systemID, publicID}, row...))
		}
		values = append(values,
			[]string{t.ClassName, systemID, publicID, ClonedIDColumn, schema.JavaInteger, Null, Null, publicID},
		)
		if t.HasTimestamp() {
			values = append(values,
				[]string{t.ClassName, systemID, publicID, DateUpdatedColumn, schema.JavaDate, Null, Null, e.now.Format(datetimeLayout)},
			)
		}
	}

	tr.Records = len(records)
	tr.Values = len(values)

	r.out.Tables = append(r.out.Tables, []string{t.ClassName, strconv.Itoa(tr.Records)})
	for _, c := range columns {
		r.out.Columns = append(r.out.Columns, []string{t.ClassName, c.wireName, c.javaType})
	}
	r.out.Columns = append(r.out.Columns, []string{t.ClassName, ClonedIDColumn, schema.JavaInteger})
	if t.HasTimestamp() {
		r.out.Columns = append(r.out.Columns, []string{t.ClassName, DateUpdatedColumn, schema.JavaDate})
	}
	r.out.Records = append(r.out.Records, records...)
	r.out.RecordValues = append(r.out.RecordValues, values...)
	r.res.Tables = append(r.res.Tables, tr)

	fkColumns := make([]string, 0, len(unresolved))
	for c := range unresolved {
		fkColumns = append(fkColumns, c)
	}
	sort.Strings(fkColumns)
	for _, c := range fkColumns {
		r.res.Unresolved += unresolved[c]
		logger.Warn("foreign key values not resolved, exported as raw identity", "column", c, "count", unresolved[c])
	}

	logger.Debug("table rendered", "records", tr.Records, "new", tr.New, "values", tr.Values)
	return nil
}

// columns returns the dataset columns exported as values: schema-declared,
// not the primary key, not ignored and not the audit timestamp, which is
// always emitted as dateUpdated.
func (r *render) columns(t *schema.Table, ds *submission.Dataset) ([]exportColumn, error) {
	var out []exportColumn
	for _, name := range ds.Columns() {
		c, ok := t.Column(name)
		if !ok || c.IsPK || r.exporter.opts.IgnoreColumns.Match(t.Name, name) {
			continue
		}
		if name == schema.TimestampColumn {
			continue
		}

		ec := exportColumn{name: name, wireName: schema.CamelCase(name), javaType: c.ClassName}
		if target, ok := r.exporter.schema.FKTarget(t.Name, name); ok {
			tt, err := r.exporter.schema.Table(target)
			if err != nil {
				return nil, fmt.Errorf("foreign key %s.%s: %w", t.Name, name, err)
			}
			ec.fkTable = tt.Name
			if ec.javaType == "" || !c.IsFK {
				ec.javaType = tt.ClassName
			}
		}
		if ec.javaType == "" {
			ec.javaType = schema.JavaType(c.DataType)
		}
		out = append(out, ec)
	}
	return out, nil
}

// value renders the column_name..column_value fields of one cell. ok is
// false for a foreign key value whose target row was not found.
func (r *render) value(t *schema.Table, ds *submission.Dataset, i int, c exportColumn) ([]string, bool, error) {
	v := ds.Value(i, c.name)

	if c.fkTable == "" {
		return []string{c.wireName, c.javaType, Null, Null, FormatValue(v, c.javaType)}, true, nil
	}

	if submission.IsNull(v) {
		return []string{c.wireName, c.javaType, Null, Null, Null}, true, nil
	}
	id, ok := submission.ToInt64(v)
	if !ok {
		return nil, false, fmt.Errorf("%s.%s row %d: %v is not an integer identity", t.Name, c.name, i, v)
	}

	target, err := r.targetIndex(c.fkTable)
	if err != nil {
		return nil, false, err
	}
	raw := strconv.FormatInt(id, 10)

	publicID, found := target[id]
	if !found {
		if r.dangling[c.fkTable] == nil {
			r.dangling[c.fkTable] = mapset.NewThreadUnsafeSet[int64]()
		}
		r.dangling[c.fkTable].Add(id)
		return []string{c.wireName, c.javaType, raw, raw, Null}, false, nil
	}
	return []string{c.wireName, c.javaType, raw, FormatID(publicID), Null}, true, nil
}

// targetIndex maps system_id to public id for a foreign key target table.
// A target absent from the submission has an empty index.
func (r *render) targetIndex(table string) (map[int64]any, error) {
	if idx, ok := r.targets[table]; ok {
		return idx, nil
	}

	idx := make(map[int64]any)
	r.targets[table] = idx

	ds, err := r.sub.Get(table)
	if err != nil {
		return idx, nil
	}
	t, err := r.exporter.schema.Table(table)
	if err != nil {
		return nil, err
	}

	for i := 0; i < ds.Len(); i++ {
		sid, ok := submission.ToInt64(ds.Value(i, submission.SystemID))
		if !ok {
			continue
		}
		idx[sid] = ds.Value(i, t.PKName)
	}
	return idx, nil
}
