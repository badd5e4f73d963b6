// Package bundle loads externalized pattern definitions. Bundles are
// JSON files of CEL or JSON-Schema rules that can ship separately from
// the binary, so policy changes do not require a code deployment.
package bundle

import (
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/instabids/intentguard/pkg/pattern"
)

// Definition is one serializable rule. Exactly one of Expression (CEL)
// or ParamsSchema (JSON Schema for intent params) must be set.
type Definition struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Description       string           `json:"description,omitempty"`
	Severity          pattern.Severity `json:"severity"`
	Enabled           bool             `json:"enabled"`
	ApplicableDomains []string         `json:"applicable_domains,omitempty"`
	ApplicableIntents []string         `json:"applicable_intents,omitempty"`
	ViolationMessage  string           `json:"violation_message,omitempty"`
	Expression        string           `json:"expression,omitempty"`
	ParamsSchema      string           `json:"params_schema,omitempty"`
}

// Bundle is a versioned collection of rule definitions.
type Bundle struct {
	Version   string       `json:"version"`
	Name      string       `json:"name"`
	Rules     []Definition `json:"rules"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// CheckVersion verifies the bundle's version against the loader's semver
// constraint.
func (b *Bundle) CheckVersion(constraint *semver.Constraints) error {
	v, err := semver.NewVersion(b.Version)
	if err != nil {
		return fmt.Errorf("bundle %q: bad version %q: %w", b.Name, b.Version, err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("bundle %q: version %s outside supported range %s", b.Name, b.Version, constraint)
	}
	return nil
}

// Build materializes the bundle's definitions into patterns, compiling
// CEL expressions through the given compiler. Compile failures are
// configuration errors and abort the build.
func (b *Bundle) Build(compiler *pattern.CELCompiler) ([]*pattern.Pattern, error) {
	patterns := make([]*pattern.Pattern, 0, len(b.Rules))
	for _, def := range b.Rules {
		p, err := def.build(compiler)
		if err != nil {
			return nil, fmt.Errorf("bundle %q rule %q: %w", b.Name, def.ID, err)
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

func (d *Definition) build(compiler *pattern.CELCompiler) (*pattern.Pattern, error) {
	var (
		ev  pattern.Evaluator
		err error
	)
	switch {
	case d.Expression != "" && d.ParamsSchema != "":
		return nil, fmt.Errorf("both expression and params_schema set")
	case d.Expression != "":
		ev, err = compiler.Compile(d.Expression)
	case d.ParamsSchema != "":
		ev, err = pattern.NewSchemaEvaluator(d.ID, d.ParamsSchema)
	default:
		return nil, fmt.Errorf("neither expression nor params_schema set")
	}
	if err != nil {
		return nil, err
	}

	return &pattern.Pattern{
		ID:                d.ID,
		Name:              d.Name,
		Description:       d.Description,
		Severity:          d.Severity,
		Enabled:           d.Enabled,
		ApplicableDomains: d.ApplicableDomains,
		ApplicableIntents: d.ApplicableIntents,
		ViolationMessage:  d.ViolationMessage,
		Evaluator:         ev,
	}, nil
}
