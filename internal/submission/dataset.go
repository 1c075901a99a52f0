package submission

// dataset.go holds the in-memory record set for one table.
//
// Cells are typed Go values: nil (NULL), int16, int32, int64, float64,
// string, bool or time.Time. Every column carries a schema.Kind so integer
// widths survive coercion.
//
// Datasets are values: every operation that changes data returns a new
// Dataset and leaves the receiver untouched. Policies replace the table in
// the Submission with the result, which keeps the data lineage of each
// policy observable.

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/sead-import/internal/schema"
)

// SystemID is the reserved column holding the submission-local identity.
const SystemID = "system_id"

// Row is a single record keyed by column name.
type Row map[string]any

// Dataset is an ordered set of typed columns and their rows.
type Dataset struct {
	columns []string
	kinds   []schema.Kind
	index   map[string]int
	rows    [][]any
}

// NewDataset creates an empty dataset with the given columns, all KindObject.
func NewDataset(columns ...string) *Dataset {
	d := &Dataset{
		columns: append([]string(nil), columns...),
		kinds:   make([]schema.Kind, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		d.kinds[i] = schema.KindObject
		d.index[c] = i
	}
	return d
}

// FromRecords builds a dataset from column names and positional rows.
// Short rows are padded with NULL; extra cells are an error.
func FromRecords(columns []string, records [][]any) (*Dataset, error) {
	d := NewDataset(columns...)
	if len(d.index) != len(columns) {
		return nil, fmt.Errorf("duplicate column in %v", columns)
	}
	for i, rec := range records {
		if len(rec) > len(columns) {
			return nil, fmt.Errorf("row %d has %d cells, want at most %d", i, len(rec), len(columns))
		}
		row := make([]any, len(columns))
		copy(row, rec)
		d.rows = append(d.rows, row)
	}
	return d, nil
}

func (d *Dataset) clone() *Dataset {
	c := &Dataset{
		columns: append([]string(nil), d.columns...),
		kinds:   append([]schema.Kind(nil), d.kinds...),
		index:   make(map[string]int, len(d.index)),
		rows:    make([][]any, len(d.rows)),
	}
	for k, v := range d.index {
		c.index[k] = v
	}
	for i, r := range d.rows {
		c.rows[i] = append([]any(nil), r...)
	}
	return c
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.rows)
}

// Empty reports whether the dataset has no rows.
func (d *Dataset) Empty() bool {
	return d.Len() == 0
}

// Columns returns the column names in order.
func (d *Dataset) Columns() []string {
	return append([]string(nil), d.columns...)
}

// HasColumn reports whether the dataset carries the named column.
func (d *Dataset) HasColumn(name string) bool {
	if d == nil {
		return false
	}
	_, ok := d.index[name]
	return ok
}

// Kind returns the storage kind of a column.
func (d *Dataset) Kind(column string) schema.Kind {
	i, ok := d.index[column]
	if !ok {
		return ""
	}
	return d.kinds[i]
}

// Value returns the cell at row i of column; nil when the column is absent.
func (d *Dataset) Value(i int, column string) any {
	c, ok := d.index[column]
	if !ok {
		return nil
	}
	return d.rows[i][c]
}

// Row returns row i keyed by column name.
func (d *Dataset) Row(i int) Row {
	r := make(Row, len(d.columns))
	for c, name := range d.columns {
		r[name] = d.rows[i][c]
	}
	return r
}

// Values returns a copy of every cell of a column.
func (d *Dataset) Values(column string) []any {
	c, ok := d.index[column]
	if !ok {
		return nil
	}
	out := make([]any, len(d.rows))
	for i, r := range d.rows {
		out[i] = r[c]
	}
	return out
}

// NullCount returns how many cells of column are NULL.
// An absent column counts every row.
func (d *Dataset) NullCount(column string) int {
	c, ok := d.index[column]
	if !ok {
		return d.Len()
	}
	n := 0
	for _, r := range d.rows {
		if IsNull(r[c]) {
			n++
		}
	}
	return n
}

// IntSet returns the non-null values of column converted to int64.
// Values that are not integral are reported as an error.
func (d *Dataset) IntSet(column string) (map[int64]struct{}, error) {
	set := make(map[int64]struct{})
	c, ok := d.index[column]
	if !ok {
		return set, nil
	}
	for i, r := range d.rows {
		if IsNull(r[c]) {
			continue
		}
		v, ok := ToInt64(r[c])
		if !ok {
			return nil, fmt.Errorf("column %s row %d: %v is not an integer identity", column, i, r[c])
		}
		set[v] = struct{}{}
	}
	return set, nil
}

// WithColumn returns a copy with column set to values. A new column is
// appended; an existing one is replaced. len(values) must equal Len().
func (d *Dataset) WithColumn(name string, kind schema.Kind, values []any) (*Dataset, error) {
	if len(values) != d.Len() {
		return nil, fmt.Errorf("column %s: %d values for %d rows", name, len(values), d.Len())
	}
	c := d.clone()
	i, ok := c.index[name]
	if !ok {
		i = len(c.columns)
		c.columns = append(c.columns, name)
		c.kinds = append(c.kinds, kind)
		c.index[name] = i
		for r := range c.rows {
			c.rows[r] = append(c.rows[r], nil)
		}
	}
	c.kinds[i] = kind
	for r, v := range values {
		c.rows[r][i] = v
	}
	return c, nil
}

// Fill returns a copy where column is filled with v; the column is added
// when missing.
func (d *Dataset) Fill(name string, kind schema.Kind, v any) (*Dataset, error) {
	values := make([]any, d.Len())
	for i := range values {
		values[i] = v
	}
	return d.WithColumn(name, kind, values)
}

// MapColumn returns a copy where each cell of column is replaced by fn(row, cell).
func (d *Dataset) MapColumn(name string, fn func(i int, v any) any) (*Dataset, error) {
	c, ok := d.index[name]
	if !ok {
		return nil, fmt.Errorf("column not found: %s", name)
	}
	out := d.clone()
	for i, r := range out.rows {
		r[c] = fn(i, r[c])
	}
	return out, nil
}

// Cast returns a copy with column converted to kind.
func (d *Dataset) Cast(name string, kind schema.Kind) (*Dataset, error) {
	c, ok := d.index[name]
	if !ok {
		return nil, fmt.Errorf("column not found: %s", name)
	}
	out := d.clone()
	for i, r := range out.rows {
		v, err := Convert(r[c], kind)
		if err != nil {
			return nil, fmt.Errorf("column %s row %d: %w", name, i, err)
		}
		r[c] = v
	}
	out.kinds[c] = kind
	return out, nil
}

// DropColumns returns a copy without the named columns. Unknown names are ignored.
func (d *Dataset) DropColumns(names ...string) *Dataset {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	var keep []string
	for _, c := range d.columns {
		if !drop[c] {
			keep = append(keep, c)
		}
	}
	return d.Select(keep...)
}

// Select returns a copy restricted to the named columns, in the given order.
// Unknown names are ignored.
func (d *Dataset) Select(names ...string) *Dataset {
	var cols []string
	var src []int
	for _, n := range names {
		if i, ok := d.index[n]; ok {
			cols = append(cols, n)
			src = append(src, i)
		}
	}
	out := NewDataset(cols...)
	for j, i := range src {
		out.kinds[j] = d.kinds[i]
	}
	out.rows = make([][]any, len(d.rows))
	for r, row := range d.rows {
		nr := make([]any, len(src))
		for j, i := range src {
			nr[j] = row[i]
		}
		out.rows[r] = nr
	}
	return out
}

// AppendRows returns a copy with rows appended. Cells are converted to the
// kind of their column; columns absent from a row are NULL. Row keys that
// are not columns of the dataset are an error.
func (d *Dataset) AppendRows(rows ...Row) (*Dataset, error) {
	out := d.clone()
	for n, row := range rows {
		nr := make([]any, len(out.columns))
		for name, v := range row {
			c, ok := out.index[name]
			if !ok {
				return nil, fmt.Errorf("appended row %d: unknown column %s", n, name)
			}
			cv, err := Convert(v, out.kinds[c])
			if err != nil {
				return nil, fmt.Errorf("appended row %d column %s: %w", n, name, err)
			}
			nr[c] = cv
		}
		out.rows = append(out.rows, nr)
	}
	return out, nil
}

// IsNull reports whether v is a NULL cell. Empty and whitespace-only strings
// and NaN floats count as NULL.
func IsNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case float64:
		return math.IsNaN(x)
	}
	return false
}

// ToInt64 converts an identity-like cell to int64, truncating floats.
func ToInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int64(x), true
	case string:
		s := strings.TrimSpace(x)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

// Convert converts a cell to the Go type backing kind. NULL stays nil.
func Convert(v any, kind schema.Kind) (any, error) {
	if IsNull(v) {
		return nil, nil
	}

	switch kind {
	case schema.KindInt16, schema.KindInt32, schema.KindInt64:
		i, ok := ToInt64(v)
		if !ok {
			return nil, fmt.Errorf("invalid number %v for %s", v, kind)
		}
		switch kind {
		case schema.KindInt16:
			if i < math.MinInt16 || i > math.MaxInt16 {
				return nil, fmt.Errorf("value %d overflows %s", i, kind)
			}
			return int16(i), nil
		case schema.KindInt32:
			if i < math.MinInt32 || i > math.MaxInt32 {
				return nil, fmt.Errorf("value %d overflows %s", i, kind)
			}
			return int32(i), nil
		}
		return i, nil

	case schema.KindFloat64:
		switch x := v.(type) {
		case float64:
			return x, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", x)
			}
			return f, nil
		}
		if i, ok := ToInt64(v); ok {
			return float64(i), nil
		}
		return nil, fmt.Errorf("invalid number %v", v)

	case schema.KindBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(x)) {
			case "true", "t", "yes", "y", "1":
				return true, nil
			case "false", "f", "no", "n", "0":
				return false, nil
			}
		}
		if i, ok := ToInt64(v); ok {
			return i != 0, nil
		}
		return nil, fmt.Errorf("invalid boolean %v", v)

	case schema.KindString:
		switch x := v.(type) {
		case string:
			return x, nil
		case time.Time:
			return x.Format(time.RFC3339), nil
		}
		return fmt.Sprint(v), nil

	case schema.KindDatetime:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case string:
			if t, ok := ParseTime(x); ok {
				return t, nil
			}
		}
		return nil, fmt.Errorf("invalid date %v", v)
	}

	return v, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// ParseTime parses the date and timestamp layouts found in submissions.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
