// Package guard composes the validation gate: role checks, built-in
// security patterns, and the pattern registry, merged into one
// ValidationResult per intent. The Guard is stateless across calls; the
// only shared mutable state is the registry's pattern map.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/instabids/intentguard/pkg/intent"
	"github.com/instabids/intentguard/pkg/observability"
	"github.com/instabids/intentguard/pkg/pattern"
	"github.com/instabids/intentguard/pkg/rbac"
	"github.com/instabids/intentguard/pkg/security"
	"github.com/instabids/intentguard/pkg/store"
)

// ErrBuiltinPattern is returned when a caller tries to update or remove
// one of the gate's built-in security patterns.
var ErrBuiltinPattern = errors.New("built-in pattern cannot be modified")

// Synthetic outcome ids for checks that run outside the registry.
const (
	RoleCheckOutcomeID = "rbac.role-check"
	ThrottleOutcomeID  = "builtin.throttle"
)

// Audit actions.
const (
	auditAllowed   = "INTENT_ALLOWED"
	auditRejected  = "INTENT_REJECTED"
	auditRoleDeny  = "ROLE_DENY"
	auditThrottled = "THROTTLED"
)

// DecisionStore persists gate decisions. Implemented by
// store.SQLiteDecisionStore.
type DecisionStore interface {
	Save(ctx context.Context, rec *store.DecisionRecord) error
}

// Event is a post-execution notification handed to ValidateEvent.
type Event struct {
	Name          string         `json:"name"`
	Domain        string         `json:"domain,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// ResultValidator post-processes the outcome of a permitted operation.
type ResultValidator func(result *pattern.ValidationResult, in *intent.Intent) *pattern.ValidationResult

// EventValidator checks a post-execution event.
type EventValidator func(ev Event) pattern.Evaluation

// Config is the construction-time surface of the Guard: built-in check
// knobs, role permissions, and any initial caller-supplied patterns.
// Everything here is supplied up front, not discovered at runtime.
type Config struct {
	Owner    security.OwnerIDConfig
	Boundary security.DomainBoundaryConfig
	Roles    []rbac.RolePermission
	Patterns []*pattern.Pattern
}

// Guard is the gate orchestrator.
type Guard struct {
	registry *pattern.Registry
	roles    *rbac.Checker
	builtins map[string]struct{}

	logger    *slog.Logger
	audit     *AuditLog
	decisions DecisionStore
	throttle  *CallerThrottle
	telemetry *observability.Provider

	resultValidator ResultValidator
	eventValidator  EventValidator
}

// Option configures optional Guard collaborators.
type Option func(*Guard)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(g *Guard) { g.logger = l } }

// WithAuditLog wires the hash-chained audit log.
func WithAuditLog(a *AuditLog) Option { return func(g *Guard) { g.audit = a } }

// WithDecisionStore wires decision persistence.
func WithDecisionStore(s DecisionStore) Option { return func(g *Guard) { g.decisions = s } }

// WithThrottle wires per-caller rate limiting.
func WithThrottle(t *CallerThrottle) Option { return func(g *Guard) { g.throttle = t } }

// WithTelemetry wires the OpenTelemetry provider.
func WithTelemetry(p *observability.Provider) Option { return func(g *Guard) { g.telemetry = p } }

// WithResultValidator overrides the identity post-execution result hook.
func WithResultValidator(v ResultValidator) Option { return func(g *Guard) { g.resultValidator = v } }

// WithEventValidator overrides the identity event hook.
func WithEventValidator(v EventValidator) Option { return func(g *Guard) { g.eventValidator = v } }

// New builds a Guard, pre-registering the built-in security patterns
// ahead of any caller-supplied ones.
func New(cfg Config, opts ...Option) (*Guard, error) {
	g := &Guard{
		registry: pattern.NewRegistry(),
		roles:    rbac.NewChecker(cfg.Roles...),
		builtins: make(map[string]struct{}),
		logger:   slog.Default().With("component", "guard"),
	}
	for _, opt := range opts {
		opt(g)
	}

	builtins := []*pattern.Pattern{
		security.NewOwnerFilterPattern(cfg.Owner),
		security.NewOwnerReassignPattern(cfg.Owner),
		security.NewDomainBoundaryPattern(cfg.Boundary),
	}
	for _, p := range builtins {
		if err := g.registry.Register(p); err != nil {
			return nil, fmt.Errorf("register builtin %s: %w", p.ID, err)
		}
		g.builtins[p.ID] = struct{}{}
	}

	for _, p := range cfg.Patterns {
		if err := g.RegisterPattern(p); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// RegisterPattern adds a caller-supplied pattern. Built-in ids are
// reserved.
func (g *Guard) RegisterPattern(p *pattern.Pattern) error {
	if p != nil {
		if _, ok := g.builtins[p.ID]; ok {
			return fmt.Errorf("%w: %s", ErrBuiltinPattern, p.ID)
		}
	}
	return g.registry.Register(p)
}

// UpdatePattern merges fields into a caller-supplied pattern.
func (g *Guard) UpdatePattern(id string, up pattern.Update) error {
	if _, ok := g.builtins[id]; ok {
		return fmt.Errorf("%w: %s", ErrBuiltinPattern, id)
	}
	return g.registry.Update(id, up)
}

// UnregisterPattern removes a caller-supplied pattern, reporting whether
// it existed. Built-ins cannot be removed.
func (g *Guard) UnregisterPattern(id string) (bool, error) {
	if _, ok := g.builtins[id]; ok {
		return false, fmt.Errorf("%w: %s", ErrBuiltinPattern, id)
	}
	return g.registry.Unregister(id), nil
}

// Patterns lists every registered pattern, built-ins first.
func (g *Guard) Patterns() []*pattern.Pattern {
	return g.registry.List()
}

// ValidateIntent gates one intent. Malformed intents (missing name or
// correlation id, query shape without tables) fail with an error before
// any check runs; every other rejection is expressed through the
// returned ValidationResult.
func (g *Guard) ValidateIntent(ctx context.Context, in *intent.Intent, ec *intent.Context) (*pattern.ValidationResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if ec == nil {
		ec = &intent.Context{CurrentDomain: in.SourceDomain, CallerID: in.CallerID, CallerRoles: in.CallerRoles}
	}

	finish := func(bool) {}
	if g.telemetry != nil {
		ctx, finish = g.telemetry.TrackValidation(ctx, in.Name, ec.CurrentDomain)
	}

	result := g.validate(ctx, in, ec)
	finish(result.Valid)

	g.record(ctx, in, result)
	return result, nil
}

func (g *Guard) validate(ctx context.Context, in *intent.Intent, ec *intent.Context) *pattern.ValidationResult {
	// Throttle first: an over-limit caller gets a deny outcome, not an
	// error, so the rejection flows through the normal result path.
	if g.throttle != nil && !g.throttle.Allow(callerID(in, ec)) {
		return &pattern.ValidationResult{
			Valid: false,
			Outcomes: []pattern.ValidationOutcome{{
				PatternID:   ThrottleOutcomeID,
				PatternName: "Caller throttle",
				Severity:    pattern.SeverityError,
				Valid:       false,
				Message:     fmt.Sprintf("caller %q exceeded the intent rate limit", callerID(in, ec)),
			}},
			Intent: pattern.Summarize(in),
		}
	}

	// Role check. Explicit denial is definitional and cheap, so it is
	// the one check allowed to short-circuit.
	decision := g.roles.Check(in.Name, callerRoles(in, ec))
	if !decision.Allowed && decision.DeniedBy != "" {
		return &pattern.ValidationResult{
			Valid:    false,
			Outcomes: []pattern.ValidationOutcome{roleOutcome(decision)},
			Intent:   pattern.Summarize(in),
		}
	}

	result := g.registry.Validate(ctx, in, ec)

	// A non-explicit role failure (no role grants the intent) still runs
	// patterns so the caller gets complete diagnostics, but it always
	// invalidates the aggregate.
	if !decision.Allowed {
		result.Outcomes = append([]pattern.ValidationOutcome{roleOutcome(decision)}, result.Outcomes...)
		result.Valid = false
	}
	return result
}

// ValidateResult post-processes the outcome of a now-permitted
// operation. The default is the identity.
func (g *Guard) ValidateResult(result *pattern.ValidationResult, in *intent.Intent) *pattern.ValidationResult {
	if g.resultValidator != nil {
		return g.resultValidator(result, in)
	}
	return result
}

// ValidateEvent checks a post-execution event. The default always passes.
func (g *Guard) ValidateEvent(ev Event) pattern.Evaluation {
	if g.eventValidator != nil {
		return g.eventValidator(ev)
	}
	return pattern.Evaluation{Valid: true}
}

// record emits logs, audit entries, and persistence for one decision.
// Audit and store failures are logged, never surfaced to the caller: the
// decision itself already stands.
func (g *Guard) record(ctx context.Context, in *intent.Intent, result *pattern.ValidationResult) {
	hash, err := result.Hash()
	if err != nil {
		g.logger.ErrorContext(ctx, "result hash failed", "intent", in.Name, "error", err)
	}

	if result.Valid {
		g.logger.DebugContext(ctx, "intent allowed",
			"intent", in.Name, "correlation_id", in.CorrelationID, "outcomes", len(result.Outcomes))
	} else {
		g.logger.WarnContext(ctx, "intent rejected",
			"intent", in.Name, "correlation_id", in.CorrelationID,
			"violations", len(result.Violations(pattern.SeverityError)))
	}

	if g.audit != nil {
		if _, err := g.audit.Append(in.CorrelationID, in.Name, auditAction(result), hash); err != nil {
			g.logger.ErrorContext(ctx, "audit append failed", "intent", in.Name, "error", err)
		}
	}

	if g.decisions != nil {
		rec := &store.DecisionRecord{
			CorrelationID: in.CorrelationID,
			IntentName:    in.Name,
			Domain:        in.SourceDomain,
			Valid:         result.Valid,
			ResultHash:    hash,
			Outcomes:      result.Outcomes,
			Timestamp:     time.Now().UTC(),
		}
		if err := g.decisions.Save(ctx, rec); err != nil {
			g.logger.ErrorContext(ctx, "decision persist failed", "intent", in.Name, "error", err)
		}
	}
}

func auditAction(result *pattern.ValidationResult) string {
	if result.Valid {
		return auditAllowed
	}
	for _, o := range result.Outcomes {
		switch o.PatternID {
		case RoleCheckOutcomeID:
			if !o.Valid {
				return auditRoleDeny
			}
		case ThrottleOutcomeID:
			if !o.Valid {
				return auditThrottled
			}
		}
	}
	return auditRejected
}

func roleOutcome(d rbac.Decision) pattern.ValidationOutcome {
	return pattern.ValidationOutcome{
		PatternID:   RoleCheckOutcomeID,
		PatternName: "Role permission check",
		Severity:    pattern.SeverityError,
		Valid:       false,
		Message:     d.Reason,
	}
}

func callerID(in *intent.Intent, ec *intent.Context) string {
	if ec.CallerID != "" {
		return ec.CallerID
	}
	return in.CallerID
}

func callerRoles(in *intent.Intent, ec *intent.Context) []string {
	if len(ec.CallerRoles) > 0 {
		return ec.CallerRoles
	}
	return in.CallerRoles
}
