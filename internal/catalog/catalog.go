package catalog

import "sort"

// Catalog is the immutable registry of governance rules. All data is
// compiled in; a Catalog cannot error and is safe to share read-only
// across every concurrent caller.
type Catalog struct {
	rules map[string]Rule
}

// New builds the catalog from the static rule sets.
func New() *Catalog {
	rules := make(map[string]Rule, len(staticRules))
	for _, r := range staticRules {
		rules[r.ID] = r
	}
	return &Catalog{rules: rules}
}

// All returns every rule keyed by id. The returned map is a copy; the
// catalog itself stays immutable.
func (c *Catalog) All() map[string]Rule {
	out := make(map[string]Rule, len(c.rules))
	for id, r := range c.rules {
		out[id] = r
	}
	return out
}

// Get returns the rule with the given id.
func (c *Catalog) Get(id string) (Rule, bool) {
	r, ok := c.rules[id]
	return r, ok
}

// BySeverity returns all rules of the given severity, ordered by id.
func (c *Catalog) BySeverity(severity Severity) []Rule {
	var out []Rule
	for _, r := range c.rules {
		if r.Severity == severity {
			out = append(out, r)
		}
	}
	sortByID(out)
	return out
}

// ForActor returns every rule whose appliesTo covers the actor type,
// ordered by id. This is the primary prefilter the validator runs before
// per-rule evaluation.
func (c *Catalog) ForActor(actor ActorType) []Rule {
	var out []Rule
	for _, r := range c.rules {
		if r.AppliesToActor(actor) {
			out = append(out, r)
		}
	}
	sortByID(out)
	return out
}

// Size returns the number of rules in the catalog.
func (c *Catalog) Size() int {
	return len(c.rules)
}

func sortByID(rules []Rule) {
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
}
