package pattern

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/instabids/intentguard/pkg/intent"
)

// ValidationOutcome records one pattern's verdict for one intent.
// Produced fresh on every validation, never cached.
type ValidationOutcome struct {
	PatternID   string         `json:"pattern_id"`
	PatternName string         `json:"pattern_name"`
	Severity    Severity       `json:"severity"`
	Valid       bool           `json:"valid"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// IntentSummary identifies the validated intent without retaining it.
type IntentSummary struct {
	Name          string    `json:"name"`
	Domain        string    `json:"domain,omitempty"`
	CorrelationID string    `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// ValidationResult is the gate's sole return value: the aggregate verdict
// plus every per-pattern outcome, in registration order.
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Outcomes []ValidationOutcome `json:"outcomes"`
	Intent   IntentSummary       `json:"intent"`
}

// Summarize builds the IntentSummary embedded in results.
func Summarize(in *intent.Intent) IntentSummary {
	return IntentSummary{
		Name:          in.Name,
		Domain:        in.SourceDomain,
		CorrelationID: in.CorrelationID,
		Timestamp:     in.Timestamp,
	}
}

// Aggregate computes the overall verdict: false iff at least one
// error-severity outcome failed. Failing warnings and infos never flip it.
func Aggregate(outcomes []ValidationOutcome) bool {
	for _, o := range outcomes {
		if !o.Valid && o.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Violations returns the failed outcomes at the given severity.
func (r *ValidationResult) Violations(sev Severity) []ValidationOutcome {
	var out []ValidationOutcome
	for _, o := range r.Outcomes {
		if !o.Valid && o.Severity == sev {
			out = append(out, o)
		}
	}
	return out
}

// Hash returns the RFC 8785 canonical SHA-256 digest of the result, for
// binding into audit entries and decision records.
func (r *ValidationResult) Hash() (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("result hash: marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("result hash: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
