package schema

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// kindByType maps declared SQL base types to dataset storage kinds.
// Int16, Int32 and Int64 stay distinct so a value round-trips at the width
// the database declares.
var kindByType = map[string]Kind{
	"smallint":          KindInt16,
	"int2":              KindInt16,
	"smallserial":       KindInt16,
	"integer":           KindInt32,
	"int":               KindInt32,
	"int4":              KindInt32,
	"serial":            KindInt32,
	"bigint":            KindInt64,
	"int8":              KindInt64,
	"bigserial":         KindInt64,
	"numeric":           KindFloat64,
	"decimal":           KindFloat64,
	"real":              KindFloat64,
	"float4":            KindFloat64,
	"double precision":  KindFloat64,
	"float8":            KindFloat64,
	"boolean":           KindBool,
	"bool":              KindBool,
	"date":              KindDatetime,
	"timestamp":         KindDatetime,
	"timestamptz":       KindDatetime,
	"text":              KindString,
	"varchar":           KindString,
	"character varying": KindString,
	"char":              KindString,
	"character":         KindString,
}

// javaByType maps declared SQL base types to the type tags the bulk-load
// importer expects.
var javaByType = map[string]string{
	"smallint":         "java.lang.Short",
	"int2":             "java.lang.Short",
	"smallserial":      "java.lang.Short",
	"integer":          "java.lang.Integer",
	"int":              "java.lang.Integer",
	"int4":             "java.lang.Integer",
	"serial":           "java.lang.Integer",
	"bigint":           "java.lang.Long",
	"int8":             "java.lang.Long",
	"bigserial":        "java.lang.Long",
	"numeric":          "java.math.BigDecimal",
	"decimal":          "java.math.BigDecimal",
	"real":             "java.lang.Float",
	"float4":           "java.lang.Float",
	"double precision": "java.lang.Double",
	"float8":           "java.lang.Double",
	"boolean":          "java.lang.Boolean",
	"bool":             "java.lang.Boolean",
	"date":             "java.sql.Date",
	"timestamp":        "java.util.Date",
	"timestamptz":      "java.util.Date",
}

// Java type tags used by the exporter for synthetic columns.
const (
	JavaString  = "java.lang.String"
	JavaInteger = "java.lang.Integer"
	JavaDate    = "java.util.Date"
)

func baseType(dataType string) string {
	return Column{DataType: dataType}.BaseType()
}

// KindOf returns the storage kind for a declared SQL type.
// Unknown types are stored as KindObject.
func KindOf(dataType string) Kind {
	t := baseType(dataType)
	if k, ok := kindByType[t]; ok {
		return k
	}
	if strings.HasPrefix(t, "timestamp") {
		return KindDatetime
	}
	return KindObject
}

// JavaType returns the export type tag for a declared SQL type.
// Unknown types are exported as strings.
func JavaType(dataType string) string {
	t := baseType(dataType)
	if j, ok := javaByType[t]; ok {
		return j
	}
	if strings.HasPrefix(t, "timestamp") {
		return JavaDate
	}
	return JavaString
}

// ClassName derives the class tag of a table: tbl_sample_groups becomes
// com.sead.database.TblSampleGroups.
func ClassName(table string) string {
	return ClassPrefix + PascalCase(table)
}

// PascalCase converts a snake_case identifier to PascalCase.
func PascalCase(s string) string {
	caser := cases.Title(language.Und)
	var b strings.Builder
	for _, part := range strings.Split(s, "_") {
		if part == "" {
			continue
		}
		b.WriteString(caser.String(part))
	}
	return b.String()
}

// CamelCase converts a snake_case identifier to camelCase.
func CamelCase(s string) string {
	p := PascalCase(s)
	if p == "" {
		return p
	}
	return strings.ToLower(p[:1]) + p[1:]
}
