package core

// error_messages.go maps technical errors to user-facing messages with codes
// for support reference.
//
// Codes are grouped by the stage that fails:
//
//	CFG001-CFG099  configuration (environment, policy file)
//	DB001-DB099    database connectivity and catalog access
//	SCH001-SCH099  schema resolution
//	SRC001-SRC099  reading the submission sheets
//	POL001-POL099  policy pipeline
//	EXP001-EXP099  writing the export files
//	RUN001-RUN099  run lifecycle (cancellation, timeouts, concurrency)
//	ERR000         no pattern matched; check the logs for the run id
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Configuration
	{
		pattern: "required environment variable",
		msg: UserMessage{
			Message: "A required setting is missing",
			Action:  "Set the named environment variable or add it to .env",
			Code:    "CFG001",
		},
	},
	{
		pattern: "parse policy config",
		msg: UserMessage{
			Message: "The policy file could not be parsed",
			Action:  "Check the YAML syntax and that every key is a known policy option",
			Code:    "CFG002",
		},
	},
	{
		pattern: "policy config validation",
		msg: UserMessage{
			Message: "The policy file has invalid settings",
			Action:  "Fix the listed policy options",
			Code:    "CFG003",
		},
	},
	{
		pattern: "config validation",
		msg: UserMessage{
			Message: "The configuration has invalid settings",
			Action:  "Fix the listed environment variables",
			Code:    "CFG004",
		},
	},

	// Database
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Check DATABASE_URL and that the server is running",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB002",
		},
	},
	{
		pattern: "password authentication failed",
		msg: UserMessage{
			Message: "The database rejected the credentials",
			Action:  "Check the user and password in DATABASE_URL",
			Code:    "DB003",
		},
	},
	{
		pattern: "permission denied for",
		msg: UserMessage{
			Message: "The database user may not read the catalog or a table",
			Action:  "Grant SELECT on the SEAD schema to the import user",
			Code:    "DB004",
		},
	},
	{
		pattern: "persisted keys of",
		msg: UserMessage{
			Message: "Existing keys could not be read from the database",
			Action:  "Check database connectivity and try again",
			Code:    "DB005",
		},
	},

	// Schema
	{
		pattern: "schema collision",
		msg: UserMessage{
			Message: "Two tables share a name, class or sheet name",
			Action:  "Fix the sheet or class names in the policy file table metadata",
			Code:    "SCH001",
		},
	},
	{
		pattern: "export table filter",
		msg: UserMessage{
			Message: "The export table list names an unknown table",
			Action:  "Check EXPORT_TABLES or --tables against the database schema",
			Code:    "EXP001",
		},
	},
	{
		pattern: "table not found",
		msg: UserMessage{
			Message: "A table is not part of the database schema",
			Action:  "Verify the table or sheet name",
			Code:    "SCH002",
		},
	},
	{
		pattern: "column not found",
		msg: UserMessage{
			Message: "A column is not part of the database schema",
			Action:  "Check the column headers and the policy file defaults",
			Code:    "SCH003",
		},
	},
	{
		pattern: "has no primary key",
		msg: UserMessage{
			Message: "A referenced table has no single-column primary key",
			Action:  "Exclude the table in add_referenced_tables",
			Code:    "SCH004",
		},
	},

	// Source
	{
		pattern: "open source directory",
		msg: UserMessage{
			Message: "The submission directory could not be opened",
			Action:  "Check --input-dir or IMPORT_INPUT_DIR",
			Code:    "SRC001",
		},
	},
	{
		pattern: "provided by both",
		msg: UserMessage{
			Message: "A sheet is present both as .csv and .tsv",
			Action:  "Keep one file per sheet",
			Code:    "SRC002",
		},
	},
	{
		pattern: "duplicate column",
		msg: UserMessage{
			Message: "A sheet repeats a column header",
			Action:  "Rename or remove the duplicate column",
			Code:    "SRC003",
		},
	},
	{
		pattern: "read header",
		msg: UserMessage{
			Message: "A sheet file has no header row",
			Action:  "Export the sheet with its header row",
			Code:    "SRC004",
		},
	},
	{
		pattern: "no input directory",
		msg: UserMessage{
			Message: "No submission directory was given",
			Action:  "Pass --input-dir or set IMPORT_INPUT_DIR",
			Code:    "SRC005",
		},
	},

	// Policies
	{
		pattern: "are not persisted keys",
		msg: UserMessage{
			Message: "The submission references records that do not exist in the database",
			Action:  "Add the missing rows to the submission or disable strict mode",
			Code:    "POL001",
		},
	},
	{
		pattern: "overflows",
		msg: UserMessage{
			Message: "A value is too large for its column type",
			Action:  "Check the numeric values of the named column",
			Code:    "POL002",
		},
	},
	{
		pattern: "is not an integer identity",
		msg: UserMessage{
			Message: "An identity column holds a non-integer value",
			Action:  "Check system_id and foreign key columns for text or decimals",
			Code:    "POL003",
		},
	},
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "A numeric column holds text",
			Action:  "Remove units and thousands separators from numbers",
			Code:    "POL004",
		},
	},

	// Export
	{
		pattern: "create output directory",
		msg: UserMessage{
			Message: "The output directory could not be created",
			Action:  "Check --output-dir and its permissions",
			Code:    "EXP002",
		},
	},
	{
		pattern: "create temp file",
		msg: UserMessage{
			Message: "Export files could not be written",
			Action:  "Check free space and permissions of the output directory",
			Code:    "EXP003",
		},
	},

	// Run lifecycle
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The run was cancelled",
			Action:  "Start the run again when ready",
			Code:    "RUN001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The run timed out",
			Action:  "Raise IMPORT_TIMEOUT or split the submission",
			Code:    "RUN002",
		},
	},
	{
		pattern: "too many concurrent runs",
		msg: UserMessage{
			Message: "Other imports are running",
			Action:  "Please wait a moment and try again",
			Code:    "RUN003",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the log entries of the run id",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// If no pattern matches, the ERR000 fallback is returned.
//
// Example:
//
//	err := errors.New("table not found: tbl_nope")
//	msg := MapError(err)
//	// msg.Code == "SCH002"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-friendly message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
