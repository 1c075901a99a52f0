package config

// policies.go holds the YAML-backed settings that do not fit environment
// variables: per-policy priority, disabled flag and policy-specific options,
// plus per-table metadata the database does not carry.
//
// Example:
//
//	tables:
//	  tbl_sample_group_sampling_contexts:
//	    lookup: true
//	    sheet: SampleGroupSamplingContexts
//	policies:
//	  add_default_foreign_keys:
//	    priority: 2
//	    defaults:
//	      tbl_dataset_submissions:
//	        contact_id: 1
//	  drop_ignored_columns:
//	    columns: ["date_updated", "*_uuid"]

import (
	"fmt"
	"os"
	"path"
	"strings"

	"sigs.k8s.io/yaml"
)

// PolicySettings holds the options every policy has.
type PolicySettings struct {
	Priority int  `json:"priority"`
	Disabled bool `json:"disabled"`
}

// DefaultForeignKeysConfig configures the default foreign key policy.
type DefaultForeignKeysConfig struct {
	PolicySettings

	// Defaults maps table -> column -> default identity.
	Defaults map[string]map[string]int64 `json:"defaults,omitempty"`
}

// ReferencedTablesConfig configures synthesis of referenced but absent tables.
type ReferencedTablesConfig struct {
	PolicySettings

	// Include, when non-empty, restricts synthesis to these tables.
	Include []string `json:"include,omitempty"`

	// Exclude lists tables never synthesized.
	Exclude []string `json:"exclude,omitempty"`

	// Strict fails the run when a referenced identity is not a persisted key.
	Strict bool `json:"strict,omitempty"`
}

// IgnoredColumnsConfig configures column removal before export.
type IgnoredColumnsConfig struct {
	PolicySettings

	Columns ColumnPatterns `json:"columns,omitempty"`
}

// ColumnPatterns are path.Match glob patterns over column names. A pattern
// matches a bare column name ("date_updated", "*_uuid") or a qualified one
// ("tbl_sites.*").
type ColumnPatterns []string

// Match reports whether column of table matches any pattern. Malformed
// patterns never match.
func (ps ColumnPatterns) Match(table, column string) bool {
	qualified := table + "." + column
	for _, pattern := range ps {
		if ok, _ := path.Match(pattern, column); ok {
			return true
		}
		if ok, _ := path.Match(pattern, qualified); ok {
			return true
		}
	}
	return false
}

// Policies holds the settings of every policy, keyed by policy id in YAML.
type Policies struct {
	AddPrimaryKeyColumn       PolicySettings           `json:"add_primary_key_column"`
	AddDefaultForeignKeys     DefaultForeignKeysConfig `json:"add_default_foreign_keys"`
	AddReferencedTables       ReferencedTablesConfig   `json:"add_referenced_tables"`
	CoerceColumnTypes         PolicySettings           `json:"coerce_column_types"`
	BackfillSystemID          PolicySettings           `json:"backfill_system_id"`
	AddReferencedLookupRows   PolicySettings           `json:"add_referenced_lookup_rows"`
	DropIgnoredColumns        IgnoredColumnsConfig     `json:"drop_ignored_columns"`
	TrimUnchangedLookupTables PolicySettings           `json:"trim_unchanged_lookup_tables"`
}

// TableMeta holds table metadata not available from the database catalog.
type TableMeta struct {
	Lookup bool   `json:"lookup"`
	Sheet  string `json:"sheet,omitempty"`
	Class  string `json:"class,omitempty"`
}

// PolicyFile is the parsed policy configuration file.
type PolicyFile struct {
	Tables   map[string]TableMeta `json:"tables,omitempty"`
	Policies Policies             `json:"policies"`
}

// LoadPolicyFile reads and validates a policy configuration file.
// An empty path yields the zero configuration.
func LoadPolicyFile(p string) (*PolicyFile, error) {
	if p == "" {
		return &PolicyFile{}, nil
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read policy config: %w", err)
	}

	return ParsePolicyFile(data)
}

// ParsePolicyFile parses YAML (or JSON) policy configuration.
func ParsePolicyFile(data []byte) (*PolicyFile, error) {
	var pf PolicyFile
	if err := yaml.UnmarshalStrict(data, &pf); err != nil {
		return nil, fmt.Errorf("parse policy config: %w", err)
	}

	if err := pf.Validate(); err != nil {
		return nil, fmt.Errorf("policy config validation: %w", err)
	}

	return &pf, nil
}

// Validate checks glob patterns and table lists.
func (pf *PolicyFile) Validate() error {
	var errs []string

	for _, pattern := range pf.Policies.DropIgnoredColumns.Columns {
		if _, err := path.Match(pattern, ""); err != nil {
			errs = append(errs, fmt.Sprintf("drop_ignored_columns: bad pattern %q", pattern))
		}
	}

	exclude := make(map[string]bool)
	for _, t := range pf.Policies.AddReferencedTables.Exclude {
		exclude[t] = true
	}
	for _, t := range pf.Policies.AddReferencedTables.Include {
		if exclude[t] {
			errs = append(errs, fmt.Sprintf("add_referenced_tables: %s is both included and excluded", t))
		}
	}

	for table, cols := range pf.Policies.AddDefaultForeignKeys.Defaults {
		if len(cols) == 0 {
			errs = append(errs, fmt.Sprintf("add_default_foreign_keys: no columns for %s", table))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
