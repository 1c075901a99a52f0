package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// LegacyFKAliases maps foreign key column names that the database does not
// declare as FK to the key column they actually carry. Columns named
// updated_<x>_id that are not listed carry <x>_id.
var LegacyFKAliases = map[string]string{
	"updated_dataset_id": "dataset_id",
}

const legacyPrefix = "updated_"

// legacyKey returns the key column an undeclared legacy FK column carries.
func legacyKey(column string) (string, bool) {
	if key, ok := LegacyFKAliases[column]; ok {
		return key, true
	}
	if strings.HasPrefix(column, legacyPrefix) && strings.HasSuffix(column, "_id") && len(column) > len(legacyPrefix)+len("_id") {
		return strings.TrimPrefix(column, legacyPrefix), true
	}
	return "", false
}

// Schema is the full set of importable tables.
//
// A table can be resolved by its name, its class tag or its alternate sheet
// name. The three maps are built once by New and never change afterwards.
type Schema struct {
	tables  []*Table
	byName  map[string]*Table
	byClass map[string]*Table
	bySheet map[string]*Table

	pkOwners map[string]string // pk column name -> table name

	refOnce     sync.Once
	referencing map[string][]string

	viewOnce sync.Once
	lookups  []string
	aliased  []string
}

// New builds a Schema from table definitions.
// Returns a *CollisionError if a name, class tag or sheet name resolves to
// more than one table.
func New(tables ...Table) (*Schema, error) {
	s := &Schema{
		byName:   make(map[string]*Table, len(tables)),
		byClass:  make(map[string]*Table, len(tables)),
		bySheet:  make(map[string]*Table, len(tables)),
		pkOwners: make(map[string]string, len(tables)),
	}

	owners := make(map[string]string) // every lookup key -> owning table

	claim := func(key, table string) error {
		if key == "" {
			return nil
		}
		if owner, ok := owners[key]; ok && owner != table {
			return &CollisionError{Key: key, Existing: owner, Table: table}
		}
		owners[key] = table
		return nil
	}

	for i := range tables {
		t := tables[i]
		if t.Name == "" {
			return nil, fmt.Errorf("schema: table %d has no name", i)
		}
		if t.SheetName == "" {
			t.SheetName = t.Name
		}
		if t.ClassName == "" {
			t.ClassName = ClassName(t.Name)
		}

		t.Columns = append([]Column(nil), t.Columns...)
		t.byName = make(map[string]int, len(t.Columns))
		for j := range t.Columns {
			c := &t.Columns[j]
			c.Table = t.Name
			if _, dup := t.byName[c.Name]; dup {
				return nil, fmt.Errorf("schema: duplicate column %s.%s", t.Name, c.Name)
			}
			if c.Name == t.PKName {
				c.IsPK = true
			}
			if c.ClassName == "" && !c.IsFK {
				c.ClassName = JavaType(c.DataType)
			}
			t.byName[c.Name] = j
		}

		for _, key := range []string{t.Name, t.ClassName, t.SheetName} {
			if err := claim(key, t.Name); err != nil {
				return nil, err
			}
		}

		s.tables = append(s.tables, &t)
		s.byName[t.Name] = &t
		s.byClass[t.ClassName] = &t
		s.bySheet[t.SheetName] = &t
		if t.PKName != "" {
			s.pkOwners[t.PKName] = t.Name
		}
	}

	sort.Slice(s.tables, func(i, j int) bool {
		return s.tables[i].Name < s.tables[j].Name
	})

	return s, nil
}

// Tables returns all tables sorted by name.
func (s *Schema) Tables() []*Table {
	return s.tables
}

// TableNames returns all table names sorted.
func (s *Schema) TableNames() []string {
	names := make([]string, len(s.tables))
	for i, t := range s.tables {
		names[i] = t.Name
	}
	return names
}

// Table resolves a table by name, class tag or alternate sheet name.
func (s *Schema) Table(key string) (*Table, error) {
	if t, ok := s.byName[key]; ok {
		return t, nil
	}
	if t, ok := s.byClass[key]; ok {
		return t, nil
	}
	if t, ok := s.bySheet[key]; ok {
		return t, nil
	}
	return nil, &NotFoundError{Table: key}
}

// Has reports whether key resolves to a table.
func (s *Schema) Has(key string) bool {
	_, err := s.Table(key)
	return err == nil
}

// Column returns the named column of a table.
func (s *Schema) Column(table, column string) (*Column, error) {
	t, err := s.Table(table)
	if err != nil {
		return nil, err
	}
	c, ok := t.Column(column)
	if !ok {
		return nil, &NotFoundError{Table: t.Name, Column: column}
	}
	return c, nil
}

// IsPK reports whether column is the primary key of table.
func (s *Schema) IsPK(table, column string) bool {
	c, err := s.Column(table, column)
	if err != nil {
		return false
	}
	return c.IsPK
}

// IsFK reports whether column is a foreign key of table, either declared or
// through LegacyFKAliases.
func (s *Schema) IsFK(table, column string) bool {
	_, ok := s.FKTarget(table, column)
	return ok
}

// FKTarget returns the name of the table a foreign key column references.
// Undeclared legacy columns (see LegacyFKAliases) reference the table whose
// primary key they carry.
func (s *Schema) FKTarget(table, column string) (string, bool) {
	c, err := s.Column(table, column)
	if err != nil {
		return "", false
	}
	if c.IsFK && c.FKTable != "" {
		return c.FKTable, true
	}
	if key, ok := legacyKey(column); ok {
		owner, owned := s.pkOwners[key]
		return owner, owned
	}
	return "", false
}

// TablesReferencing returns the names of all tables that declare a foreign
// key into table. The index is built on first use.
func (s *Schema) TablesReferencing(table string) []string {
	s.refOnce.Do(s.buildReferencing)
	name := table
	if t, err := s.Table(table); err == nil {
		name = t.Name
	}
	return s.referencing[name]
}

func (s *Schema) buildReferencing() {
	seen := make(map[string]map[string]bool)
	for _, t := range s.tables {
		for _, fk := range t.ForeignKeys() {
			if seen[fk.FKTable] == nil {
				seen[fk.FKTable] = make(map[string]bool)
			}
			seen[fk.FKTable][t.Name] = true
		}
	}

	s.referencing = make(map[string][]string, len(seen))
	for target, sources := range seen {
		names := make([]string, 0, len(sources))
		for n := range sources {
			names = append(names, n)
		}
		sort.Strings(names)
		s.referencing[target] = names
	}
}

// LookupTables returns the names of all lookup tables, sorted.
func (s *Schema) LookupTables() []string {
	s.viewOnce.Do(s.buildViews)
	return s.lookups
}

// AliasedTables returns the names of tables whose sheet name differs from
// the table name, sorted.
func (s *Schema) AliasedTables() []string {
	s.viewOnce.Do(s.buildViews)
	return s.aliased
}

func (s *Schema) buildViews() {
	for _, t := range s.tables {
		if t.IsLookup {
			s.lookups = append(s.lookups, t.Name)
		}
		if !strings.EqualFold(t.SheetName, t.Name) {
			s.aliased = append(s.aliased, t.Name)
		}
	}
}

// TypeCoercion returns the storage kind for every declared column type
// present in the schema.
func (s *Schema) TypeCoercion() map[string]Kind {
	m := make(map[string]Kind)
	for _, t := range s.tables {
		for _, c := range t.Columns {
			m[c.BaseType()] = KindOf(c.DataType)
		}
	}
	return m
}
