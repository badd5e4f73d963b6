// Package security provides the gate's built-in security patterns:
// owner-ID filtering and cross-domain boundary enforcement. The Guard
// pre-registers these as non-removable entries alongside caller-supplied
// patterns.
package security

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/instabids/intentguard/pkg/intent"
	"github.com/instabids/intentguard/pkg/pattern"
)

// Built-in pattern ids.
const (
	OwnerFilterPatternID   = "builtin.owner-filter"
	OwnerReassignPatternID = "builtin.owner-reassign"
)

// OwnerIDConfig names the user-owned entities and the fields that count
// as owner identifiers on them.
type OwnerIDConfig struct {
	OwnedEntities []string `yaml:"owned_entities" json:"owned_entities"`
	OwnerKeys     []string `yaml:"owner_keys" json:"owner_keys"`
}

// DefaultOwnerIDConfig covers the marketplace's principal-owned tables.
func DefaultOwnerIDConfig() OwnerIDConfig {
	return OwnerIDConfig{
		OwnedEntities: []string{"profiles", "bids", "projects", "messages", "payments"},
		OwnerKeys:     []string{"user_id", "auth_id", "homeowner_id", "contractor_id", "created_by"},
	}
}

// ownedTables returns the intent's tables that are principal-owned.
func (c OwnerIDConfig) ownedTables(in *intent.Intent) []string {
	var owned []string
	for _, t := range in.Tables {
		if slices.Contains(c.OwnedEntities, t) {
			owned = append(owned, t)
		}
	}
	return owned
}

func (c OwnerIDConfig) anyOwnerKey(fields map[string]any) bool {
	for _, k := range c.OwnerKeys {
		if _, ok := fields[k]; ok {
			return true
		}
	}
	return false
}

func (c OwnerIDConfig) ownerKeysIn(fields map[string]any) []string {
	var hit []string
	for _, k := range c.OwnerKeys {
		if _, ok := fields[k]; ok {
			hit = append(hit, k)
		}
	}
	sort.Strings(hit)
	return hit
}

// NewOwnerFilterPattern builds the error-severity built-in requiring an
// owner-identifying filter (or payload field, for creates) on any
// operation touching principal-owned entities. The pattern checks only
// that an owner key is present; the downstream persistence adapter is
// responsible for pinning its value to the caller's identity.
func NewOwnerFilterPattern(cfg OwnerIDConfig) *pattern.Pattern {
	return &pattern.Pattern{
		ID:               OwnerFilterPatternID,
		Name:             "Owner-ID filter required",
		Description:      "Operations on user-owned data must carry an owner identifier",
		Severity:         pattern.SeverityError,
		Enabled:          true,
		ViolationMessage: "operation on owned entity lacks an owner-identifying field",
		Evaluator: pattern.EvaluatorFunc(func(_ context.Context, in *intent.Intent, _ *intent.Context) (pattern.Evaluation, error) {
			owned := cfg.ownedTables(in)
			if len(owned) == 0 {
				return pattern.Evaluation{Valid: true}, nil
			}

			switch in.EffectiveKind() {
			case intent.KindCreate:
				if !cfg.anyOwnerKey(in.Payload) {
					return pattern.Evaluation{
						Valid: false,
						Message: fmt.Sprintf("create on owned entity %s must include one of: %s",
							strings.Join(owned, ", "), strings.Join(cfg.OwnerKeys, ", ")),
						Details: map[string]any{"entities": owned, "expected_keys": cfg.OwnerKeys},
					}, nil
				}
			case intent.KindRead, intent.KindUpdate, intent.KindDelete:
				if !cfg.anyOwnerKey(in.Filters) {
					return pattern.Evaluation{
						Valid: false,
						Message: fmt.Sprintf("%s on owned entity %s must filter by one of: %s",
							in.EffectiveKind(), strings.Join(owned, ", "), strings.Join(cfg.OwnerKeys, ", ")),
						Details: map[string]any{"entities": owned, "expected_keys": cfg.OwnerKeys},
					}, nil
				}
			}
			return pattern.Evaluation{Valid: true}, nil
		}),
	}
}

// NewOwnerReassignPattern builds the warning-severity built-in flagging
// updates whose payload rewrites an owner key. Ownership reassignment
// should be a distinct, explicitly-reviewed operation, so this records a
// warning without blocking.
func NewOwnerReassignPattern(cfg OwnerIDConfig) *pattern.Pattern {
	return &pattern.Pattern{
		ID:               OwnerReassignPatternID,
		Name:             "Ownership reassignment",
		Description:      "Updates should not silently rewrite owner-identifying fields",
		Severity:         pattern.SeverityWarning,
		Enabled:          true,
		ViolationMessage: "update payload modifies an owner-identifying field",
		Evaluator: pattern.EvaluatorFunc(func(_ context.Context, in *intent.Intent, _ *intent.Context) (pattern.Evaluation, error) {
			if in.EffectiveKind() != intent.KindUpdate || len(cfg.ownedTables(in)) == 0 {
				return pattern.Evaluation{Valid: true}, nil
			}
			touched := cfg.ownerKeysIn(in.Payload)
			if len(touched) == 0 {
				return pattern.Evaluation{Valid: true}, nil
			}
			return pattern.Evaluation{
				Valid:   false,
				Message: fmt.Sprintf("update modifies owner field(s): %s", strings.Join(touched, ", ")),
				Details: map[string]any{"modified_keys": touched},
			}, nil
		}),
	}
}
