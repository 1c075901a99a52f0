package policy

import (
	"fmt"
	"sort"

	"github.com/JonMunkholm/sead-import/internal/config"
)

// Registered is a policy together with its resolved settings.
type Registered struct {
	Policy   Policy
	Settings config.PolicySettings
	seq      int
}

// Registry holds the policies of one process. Registration order is the
// tie-breaker between equal priorities, so register in dependency order.
type Registry struct {
	entries []Registered
	ids     map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ids: make(map[string]bool)}
}

// Register adds a policy with its settings.
// Panics if a policy with the same id is already registered.
func (r *Registry) Register(p Policy, settings config.PolicySettings) {
	if r.ids[p.ID()] {
		panic(fmt.Sprintf("policy already registered: %s", p.ID()))
	}
	r.ids[p.ID()] = true
	r.entries = append(r.entries, Registered{Policy: p, Settings: settings, seq: len(r.entries)})
}

// Get returns a registered policy by id.
// Returns false if not found.
func (r *Registry) Get(id string) (Registered, bool) {
	for _, e := range r.entries {
		if e.Policy.ID() == id {
			return e, true
		}
	}
	return Registered{}, false
}

// Ordered returns the registered policies sorted by priority, lowest first.
// Equal priorities keep registration order.
func (r *Registry) Ordered() []Registered {
	out := append([]Registered(nil), r.entries...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Settings.Priority != out[j].Settings.Priority {
			return out[i].Settings.Priority < out[j].Settings.Priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// IDs returns the policy ids in run order.
func (r *Registry) IDs() []string {
	ordered := r.Ordered()
	ids := make([]string, len(ordered))
	for i, e := range ordered {
		ids[i] = e.Policy.ID()
	}
	return ids
}

// Default registers every policy in dependency order with its settings
// from cfg.
func Default(cfg config.Policies) *Registry {
	r := NewRegistry()
	r.Register(AddPrimaryKeyColumn{}, cfg.AddPrimaryKeyColumn)
	r.Register(AddDefaultForeignKeys{Defaults: cfg.AddDefaultForeignKeys.Defaults},
		cfg.AddDefaultForeignKeys.PolicySettings)
	r.Register(AddReferencedTables{
		Include: cfg.AddReferencedTables.Include,
		Exclude: cfg.AddReferencedTables.Exclude,
		Strict:  cfg.AddReferencedTables.Strict,
	}, cfg.AddReferencedTables.PolicySettings)
	r.Register(CoerceColumnTypes{}, cfg.CoerceColumnTypes)
	r.Register(BackfillSystemID{}, cfg.BackfillSystemID)
	r.Register(AddReferencedLookupRows{}, cfg.AddReferencedLookupRows)
	r.Register(DropIgnoredColumns{Patterns: cfg.DropIgnoredColumns.Columns},
		cfg.DropIgnoredColumns.PolicySettings)
	r.Register(TrimUnchangedLookupTables{}, cfg.TrimUnchangedLookupTables)
	return r
}
