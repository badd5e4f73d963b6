// Package rbac provides the role/permission lookup run by the Guard
// before pattern evaluation. It is a flat allow/deny table, not a policy
// engine: denials win, wildcards allow everything, and an empty table
// means the role check is unconfigured and passes (patterns remain the
// enforcement backstop).
package rbac

import "slices"

// Wildcard in AllowedIntents grants every intent name.
const Wildcard = "*"

// RolePermission maps one role to its permitted and denied intent names.
type RolePermission struct {
	Role           string   `yaml:"role" json:"role"`
	AllowedIntents []string `yaml:"allowed_intents,omitempty" json:"allowed_intents,omitempty"`
	DeniedIntents  []string `yaml:"denied_intents,omitempty" json:"denied_intents,omitempty"`
}

// Decision is the result of a role check.
type Decision struct {
	Allowed bool
	// DeniedBy names the role whose explicit denial rejected the intent.
	DeniedBy string
	Reason   string
}

// Checker resolves caller roles against the configured permission table.
type Checker struct {
	perms map[string]RolePermission
}

// NewChecker builds a checker. Later entries for the same role replace
// earlier ones.
func NewChecker(perms ...RolePermission) *Checker {
	m := make(map[string]RolePermission, len(perms))
	for _, p := range perms {
		m[p.Role] = p
	}
	return &Checker{perms: m}
}

// Configured reports whether any permission entries exist.
func (c *Checker) Configured() bool {
	return len(c.perms) > 0
}

// Check resolves all caller roles for the given intent name. An explicit
// denial on any role wins over every allow. With zero configured entries
// the check passes.
func (c *Checker) Check(intentName string, roles []string) Decision {
	if !c.Configured() {
		return Decision{Allowed: true, Reason: "no role permissions configured"}
	}

	// Denials first: they are definitional and beat any allow.
	for _, role := range roles {
		p, ok := c.perms[role]
		if !ok {
			continue
		}
		if slices.Contains(p.DeniedIntents, intentName) {
			return Decision{
				Allowed:  false,
				DeniedBy: role,
				Reason:   "intent " + intentName + " explicitly denied for role " + role,
			}
		}
	}

	for _, role := range roles {
		p, ok := c.perms[role]
		if !ok {
			continue
		}
		if slices.Contains(p.AllowedIntents, Wildcard) || slices.Contains(p.AllowedIntents, intentName) {
			return Decision{Allowed: true, Reason: "allowed for role " + role}
		}
	}

	return Decision{
		Allowed: false,
		Reason:  "no role grants intent " + intentName,
	}
}
