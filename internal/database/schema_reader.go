package database

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/JonMunkholm/sead-import/internal/config"
	"github.com/JonMunkholm/sead-import/internal/logging"
	"github.com/JonMunkholm/sead-import/internal/schema"
)

const (
	columnsQuery = `
		SELECT
			c.table_name::text,
			c.column_name::text,
			c.ordinal_position::int4,
			c.data_type::text,
			c.udt_name::text,
			c.character_maximum_length::int4,
			c.is_nullable::text
		FROM information_schema.columns c
		JOIN information_schema.tables t
			ON t.table_schema = c.table_schema
			AND t.table_name = c.table_name
		WHERE c.table_schema = $1 AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position
	`

	primaryKeysQuery = `
		SELECT kcu.table_name::text, kcu.column_name::text
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.table_schema = $1 AND tc.constraint_type = 'PRIMARY KEY'
		ORDER BY kcu.table_name, kcu.ordinal_position
	`

	foreignKeysQuery = `
		SELECT
			tc.table_name::text,
			kcu.column_name::text,
			ccu.table_name::text AS foreign_table_name,
			ccu.column_name::text AS foreign_column_name
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1
		ORDER BY tc.table_name, kcu.ordinal_position
	`
)

// SchemaReader builds a schema.Schema from the Postgres catalog.
//
// The catalog supplies columns, primary keys and foreign keys. The lookup
// flag, alternate sheet name and class tag come from table metadata, since
// the database does not record them.
type SchemaReader struct {
	db     DBTX
	schema string
	meta   map[string]config.TableMeta
}

// NewSchemaReader returns a reader for the given Postgres schema.
func NewSchemaReader(db DBTX, schemaName string, meta map[string]config.TableMeta) *SchemaReader {
	return &SchemaReader{db: db, schema: schemaOrDefault(schemaName), meta: meta}
}

// Read loads the catalog and builds the schema.
func (r *SchemaReader) Read(ctx context.Context) (*schema.Schema, error) {
	logger := logging.FromContext(ctx)

	tables, order, err := r.readColumns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	if err := r.readPrimaryKeys(ctx, logger, tables); err != nil {
		return nil, fmt.Errorf("failed to read primary keys: %w", err)
	}

	if err := r.readForeignKeys(ctx, tables); err != nil {
		return nil, fmt.Errorf("failed to read foreign keys: %w", err)
	}

	for name := range r.meta {
		if _, ok := tables[name]; !ok {
			logger.Warn("table metadata for unknown table", "table", name)
		}
	}

	defs := make([]schema.Table, 0, len(order))
	for _, name := range order {
		t := tables[name]
		if m, ok := r.meta[name]; ok {
			t.IsLookup = m.Lookup
			t.SheetName = m.Sheet
			t.ClassName = m.Class
		}
		defs = append(defs, *t)
	}

	s, err := schema.New(defs...)
	if err != nil {
		return nil, err
	}

	logger.Info("schema loaded",
		"schema", r.schema,
		"tables", len(defs),
		"lookups", len(s.LookupTables()),
	)
	return s, nil
}

func (r *SchemaReader) readColumns(ctx context.Context) (map[string]*schema.Table, []string, error) {
	rows, err := r.db.Query(ctx, columnsQuery, r.schema)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	tables := make(map[string]*schema.Table)
	var order []string
	for rows.Next() {
		var (
			table, name, dataType, udtName, nullable string
			position                                 int32
			charMaxLength                            *int32
		)
		if err := rows.Scan(&table, &name, &position, &dataType, &udtName, &charMaxLength, &nullable); err != nil {
			return nil, nil, err
		}

		t, ok := tables[table]
		if !ok {
			t = &schema.Table{Name: table}
			tables[table] = t
			order = append(order, table)
		}
		t.Columns = append(t.Columns, schema.Column{
			Name:     name,
			Position: int(position),
			DataType: normalizeType(dataType, udtName, charMaxLength),
			Nullable: nullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	sort.Strings(order)
	return tables, order, nil
}

func (r *SchemaReader) readPrimaryKeys(ctx context.Context, logger *slog.Logger, tables map[string]*schema.Table) error {
	rows, err := r.db.Query(ctx, primaryKeysQuery, r.schema)
	if err != nil {
		return err
	}
	defer rows.Close()

	pks := make(map[string][]string)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return err
		}
		pks[table] = append(pks[table], column)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for table, cols := range pks {
		t, ok := tables[table]
		if !ok {
			continue
		}
		if len(cols) != 1 {
			// Association tables with composite keys have no public id.
			logger.Debug("composite primary key", "table", table, "columns", cols)
			continue
		}
		t.PKName = cols[0]
	}
	return nil
}

func (r *SchemaReader) readForeignKeys(ctx context.Context, tables map[string]*schema.Table) error {
	rows, err := r.db.Query(ctx, foreignKeysQuery, r.schema)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var table, column, fkTable, fkColumn string
		if err := rows.Scan(&table, &column, &fkTable, &fkColumn); err != nil {
			return err
		}
		t, ok := tables[table]
		if !ok {
			continue
		}
		for i := range t.Columns {
			if t.Columns[i].Name == column {
				t.Columns[i].IsFK = true
				t.Columns[i].FKTable = fkTable
				t.Columns[i].FKColumn = fkColumn
			}
		}
	}
	return rows.Err()
}

// normalizeType maps verbose catalog type names to the short forms the
// schema type maps use.
func normalizeType(dataType, udtName string, charMaxLength *int32) string {
	switch dataType {
	case "timestamp with time zone":
		return "timestamptz"
	case "timestamp without time zone":
		return "timestamp"
	case "time with time zone":
		return "timetz"
	case "time without time zone":
		return "time"
	case "character varying":
		if charMaxLength != nil {
			return fmt.Sprintf("varchar(%d)", *charMaxLength)
		}
		return "varchar"
	case "character":
		if charMaxLength != nil {
			return fmt.Sprintf("char(%d)", *charMaxLength)
		}
		return "char"
	case "ARRAY":
		if len(udtName) > 1 && udtName[0] == '_' {
			return udtName[1:] + "[]"
		}
		return "array"
	case "USER-DEFINED":
		return udtName
	default:
		return dataType
	}
}
