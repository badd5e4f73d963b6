//go:build property
// +build property

package pattern

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestAggregateInvariant verifies that the aggregate verdict is false
// exactly when some error-severity outcome failed, for arbitrary outcome
// sets, and that outcome order never changes the verdict.
func TestAggregateInvariant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	severities := []Severity{SeverityError, SeverityWarning, SeverityInfo}

	genOutcome := gopter.CombineGens(
		gen.IntRange(0, len(severities)-1),
		gen.Bool(),
	).Map(func(vals []interface{}) ValidationOutcome {
		return ValidationOutcome{
			Severity: severities[vals[0].(int)],
			Valid:    vals[1].(bool),
		}
	})

	properties.Property("valid iff no failed error outcome", prop.ForAll(
		func(outcomes []ValidationOutcome) bool {
			failedError := false
			for _, o := range outcomes {
				if !o.Valid && o.Severity == SeverityError {
					failedError = true
				}
			}
			return Aggregate(outcomes) == !failedError
		},
		gen.SliceOf(genOutcome),
	))

	properties.Property("order independent", prop.ForAll(
		func(outcomes []ValidationOutcome) bool {
			want := Aggregate(outcomes)
			reversed := make([]ValidationOutcome, len(outcomes))
			for i, o := range outcomes {
				reversed[len(outcomes)-1-i] = o
			}
			return Aggregate(reversed) == want
		},
		gen.SliceOf(genOutcome),
	))

	properties.TestingRun(t)
}
