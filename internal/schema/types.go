// Package schema describes the importable SEAD tables: primary keys, lookup
// status, columns with their foreign keys, and the indexes needed to resolve a
// table by name, class tag or spreadsheet sheet name.
package schema

import "strings"

// ClassPrefix is prepended to the PascalCase table name to form a class tag.
const ClassPrefix = "com.sead.database."

// TimestampColumn is the audit column whose presence makes the exporter emit
// a synthetic date column for the table.
const TimestampColumn = "date_updated"

// Kind is the storage kind of a dataset column.
type Kind string

const (
	KindObject   Kind = "Object"
	KindInt16    Kind = "Int16"
	KindInt32    Kind = "Int32"
	KindInt64    Kind = "Int64"
	KindFloat64  Kind = "Float64"
	KindBool     Kind = "Bool"
	KindString   Kind = "String"
	KindDatetime Kind = "Datetime"
)

// IsInteger reports whether k is one of the fixed-width integer kinds.
func (k Kind) IsInteger() bool {
	return k == KindInt16 || k == KindInt32 || k == KindInt64
}

// Column describes a single table column.
type Column struct {
	Table     string
	Name      string
	Position  int
	DataType  string // Declared SQL type, e.g. "integer", "varchar(255)"
	Nullable  bool
	IsPK      bool
	IsFK      bool
	FKTable   string // Referenced table (FK only)
	FKColumn  string // Referenced column (FK only)
	ClassName string // Export type tag; derived from DataType when empty
}

// BaseType returns the declared type lowercased and without parameters,
// so "VARCHAR(255)" becomes "varchar".
func (c Column) BaseType() string {
	t := strings.ToLower(strings.TrimSpace(c.DataType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

// Table describes an importable table.
type Table struct {
	Name      string
	PKName    string
	IsLookup  bool
	SheetName string // Alternate source-sheet name; defaults to Name
	ClassName string // Class tag; defaults to ClassPrefix + PascalCase(Name)
	Columns   []Column

	byName map[string]int
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	if t.byName != nil {
		i, ok := t.byName[name]
		if !ok {
			return nil, false
		}
		return &t.Columns[i], true
	}
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// HasColumn reports whether the table declares the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// ColumnNames returns the declared column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// HasTimestamp reports whether the table declares the audit timestamp column.
func (t *Table) HasTimestamp() bool {
	return t.HasColumn(TimestampColumn)
}

// ForeignKeys returns the columns declared as foreign keys.
func (t *Table) ForeignKeys() []Column {
	var fks []Column
	for _, c := range t.Columns {
		if c.IsFK && c.FKTable != "" {
			fks = append(fks, c)
		}
	}
	return fks
}
