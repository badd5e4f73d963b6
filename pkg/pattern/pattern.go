// Package pattern implements the rule registry at the heart of the
// validation gate: named, severity-tagged rules with applicability
// filters, evaluated against an intent to produce a structured
// ValidationResult.
package pattern

import (
	"context"
	"slices"

	"github.com/instabids/intentguard/pkg/intent"
)

// Severity grades how a failing pattern affects the aggregate verdict.
type Severity string

const (
	// SeverityError blocks the operation.
	SeverityError Severity = "error"
	// SeverityWarning is recorded but does not block.
	SeverityWarning Severity = "warning"
	// SeverityInfo is recorded for metrics only.
	SeverityInfo Severity = "info"
)

// Known reports whether s is one of the defined severity levels.
func (s Severity) Known() bool {
	switch s {
	case SeverityError, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// Evaluation is the raw verdict of a single predicate.
type Evaluation struct {
	Valid   bool           `json:"valid"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Evaluator is the predicate capability behind a pattern. Implementations
// may call out to other services; the registry bounds each call with the
// caller's deadline.
type Evaluator interface {
	Evaluate(ctx context.Context, in *intent.Intent, ec *intent.Context) (Evaluation, error)
}

// EvaluatorFunc adapts a closure to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, in *intent.Intent, ec *intent.Context) (Evaluation, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, in *intent.Intent, ec *intent.Context) (Evaluation, error) {
	return f(ctx, in, ec)
}

// Pattern is a registered rule. Empty applicability sets mean "applies
// everywhere".
type Pattern struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	Severity          Severity `json:"severity"`
	Enabled           bool     `json:"enabled"`
	ApplicableDomains []string `json:"applicable_domains,omitempty"`
	ApplicableIntents []string `json:"applicable_intents,omitempty"`
	ViolationMessage  string   `json:"violation_message,omitempty"`
	Evaluator         Evaluator `json:"-"`
}

// AppliesTo reports whether the pattern participates in validating the
// given intent under the given context.
func (p *Pattern) AppliesTo(in *intent.Intent, ec *intent.Context) bool {
	if !p.Enabled {
		return false
	}
	if len(p.ApplicableDomains) > 0 && !slices.Contains(p.ApplicableDomains, ec.CurrentDomain) {
		return false
	}
	if len(p.ApplicableIntents) > 0 && !slices.Contains(p.ApplicableIntents, in.Name) {
		return false
	}
	return true
}

// clone returns a shallow copy with fresh applicability slices so that a
// registry snapshot is not aliased by caller mutation.
func (p *Pattern) clone() *Pattern {
	cp := *p
	cp.ApplicableDomains = slices.Clone(p.ApplicableDomains)
	cp.ApplicableIntents = slices.Clone(p.ApplicableIntents)
	return &cp
}

// Update describes a shallow merge applied to a registered pattern.
// Nil fields are retained; non-nil fields replace the stored value.
type Update struct {
	Name              *string
	Description       *string
	Severity          *Severity
	Enabled           *bool
	ApplicableDomains []string
	ApplicableIntents []string
	ViolationMessage  *string
	Evaluator         Evaluator
}

func (u Update) apply(p *Pattern) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Severity != nil {
		p.Severity = *u.Severity
	}
	if u.Enabled != nil {
		p.Enabled = *u.Enabled
	}
	if u.ApplicableDomains != nil {
		p.ApplicableDomains = slices.Clone(u.ApplicableDomains)
	}
	if u.ApplicableIntents != nil {
		p.ApplicableIntents = slices.Clone(u.ApplicableIntents)
	}
	if u.ViolationMessage != nil {
		p.ViolationMessage = *u.ViolationMessage
	}
	if u.Evaluator != nil {
		p.Evaluator = u.Evaluator
	}
}
