package export

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/sead-import/internal/schema"
	"github.com/JonMunkholm/sead-import/internal/submission"
)

// Null is the wire token for a missing value.
const Null = "NULL"

const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02 15:04:05"
)

// Synthetic columns emitted for every exported table.
const (
	ClonedIDColumn    = "clonedId"
	DateUpdatedColumn = "dateUpdated"
)

// quoteEscaper keeps a value on one line and inside one field.
var quoteEscaper = strings.NewReplacer(
	`"`, `""`,
	`\`, `\\`,
	"\t", `\t`,
	"\n", `\n`,
	"\r", `\r`,
)

// Quote wraps s in double quotes, doubling any quote inside. Backslash, tab,
// newline and carriage return are written as \\, \t, \n and \r.
func Quote(s string) string {
	return `"` + quoteEscaper.Replace(s) + `"`
}

// FormatID formats an identity cell as a bare integer or NULL.
func FormatID(v any) string {
	if submission.IsNull(v) {
		return Null
	}
	if i, ok := submission.ToInt64(v); ok {
		return strconv.FormatInt(i, 10)
	}
	return Null
}

// FormatValue formats a cell for the column_value field according to the
// export type tag of its column.
func FormatValue(v any, javaType string) string {
	if submission.IsNull(v) {
		return Null
	}

	switch javaType {
	case "java.lang.Short", "java.lang.Integer", "java.lang.Long":
		if i, ok := submission.ToInt64(v); ok {
			return strconv.FormatInt(i, 10)
		}
		return Quote(fmt.Sprint(v))

	case "java.math.BigDecimal", "java.lang.Double", "java.lang.Float":
		switch x := v.(type) {
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64)
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
				return strconv.FormatFloat(f, 'f', -1, 64)
			}
			return Quote(x)
		}
		if i, ok := submission.ToInt64(v); ok {
			return strconv.FormatInt(i, 10)
		}

	case "java.lang.Boolean":
		if b, err := submission.Convert(v, schema.KindBool); err == nil {
			return strconv.FormatBool(b.(bool))
		}

	case "java.sql.Date":
		if t, ok := asTime(v); ok {
			return t.Format(dateLayout)
		}

	case schema.JavaDate:
		if t, ok := asTime(v); ok {
			return t.Format(datetimeLayout)
		}
	}

	switch x := v.(type) {
	case string:
		return Quote(x)
	case time.Time:
		return Quote(x.Format(datetimeLayout))
	}
	return Quote(fmt.Sprint(v))
}

func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		return submission.ParseTime(x)
	}
	return time.Time{}, false
}
