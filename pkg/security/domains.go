package security

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/instabids/intentguard/pkg/intent"
	"github.com/instabids/intentguard/pkg/pattern"
)

// DomainBoundaryPatternID identifies the built-in cross-domain check.
const DomainBoundaryPatternID = "builtin.domain-boundary"

// DomainBoundaryConfig maps tables to their bounded domain and lists the
// unordered domain pairs allowed to appear in one operation.
type DomainBoundaryConfig struct {
	TableDomains map[string]string `yaml:"table_domains" json:"table_domains"`
	AllowedPairs [][2]string       `yaml:"allowed_pairs" json:"allowed_pairs"`
}

// pairKey normalizes an unordered domain pair to a stable lookup key.
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func (c DomainBoundaryConfig) allowed(a, b string) bool {
	want := pairKey(a, b)
	for _, p := range c.AllowedPairs {
		if pairKey(p[0], p[1]) == want {
			return true
		}
	}
	return false
}

// domainsTouched resolves the distinct domains the intent's tables map
// to. Tables absent from the lookup do not contribute a domain.
func (c DomainBoundaryConfig) domainsTouched(in *intent.Intent) []string {
	seen := make(map[string]struct{})
	for _, t := range in.Tables {
		if d, ok := c.TableDomains[t]; ok {
			seen[d] = struct{}{}
		}
	}
	domains := make([]string, 0, len(seen))
	for d := range seen {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}

// NewDomainBoundaryPattern builds the warning-severity built-in keeping
// cross-domain access intentional. An operation touching more than one
// domain passes only if every pairwise combination of the touched
// domains is allow-listed. Warning severity: some cross-domain access is
// legitimate and must not hard-block.
func NewDomainBoundaryPattern(cfg DomainBoundaryConfig) *pattern.Pattern {
	return &pattern.Pattern{
		ID:               DomainBoundaryPatternID,
		Name:             "Domain boundary",
		Description:      "Cross-domain table access must use an allow-listed domain pair",
		Severity:         pattern.SeverityWarning,
		Enabled:          true,
		ViolationMessage: "operation crosses a domain boundary outside the allow-list",
		Evaluator: pattern.EvaluatorFunc(func(_ context.Context, in *intent.Intent, _ *intent.Context) (pattern.Evaluation, error) {
			domains := cfg.domainsTouched(in)
			if len(domains) <= 1 {
				return pattern.Evaluation{Valid: true}, nil
			}

			var denied [][2]string
			for i := 0; i < len(domains); i++ {
				for j := i + 1; j < len(domains); j++ {
					if !cfg.allowed(domains[i], domains[j]) {
						denied = append(denied, [2]string{domains[i], domains[j]})
					}
				}
			}
			if len(denied) == 0 {
				return pattern.Evaluation{Valid: true}, nil
			}

			pairs := make([]string, len(denied))
			for i, p := range denied {
				pairs[i] = fmt.Sprintf("(%s, %s)", p[0], p[1])
			}
			return pattern.Evaluation{
				Valid:   false,
				Message: fmt.Sprintf("cross-domain access not allow-listed: %s", strings.Join(pairs, ", ")),
				Details: map[string]any{"domains": domains, "denied_pairs": pairs},
			}, nil
		}),
	}
}
