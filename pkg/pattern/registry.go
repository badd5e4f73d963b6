package pattern

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/instabids/intentguard/pkg/intent"
)

// Registry mutation errors.
var (
	ErrDuplicatePattern = errors.New("pattern already registered")
	ErrPatternNotFound  = errors.New("pattern not found")
	ErrNilEvaluator     = errors.New("pattern has no evaluator")
	ErrBadSeverity      = errors.New("unknown pattern severity")
)

// Registry is a thread-safe in-memory store of patterns. Mutations are
// expected to be infrequent (startup / config reload); validation reads
// take a snapshot so evaluators never run under the lock.
type Registry struct {
	mu       sync.RWMutex
	patterns map[string]*Pattern
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		patterns: make(map[string]*Pattern),
	}
}

// Register stores a pattern. Registering an id twice is a hard error and
// leaves the existing entry untouched.
func (r *Registry) Register(p *Pattern) error {
	if p == nil || p.ID == "" {
		return errors.New("pattern missing id")
	}
	if p.Evaluator == nil {
		return fmt.Errorf("%w: %s", ErrNilEvaluator, p.ID)
	}
	if !p.Severity.Known() {
		return fmt.Errorf("%w: %s (%q)", ErrBadSeverity, p.ID, p.Severity)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.patterns[p.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePattern, p.ID)
	}
	r.patterns[p.ID] = p.clone()
	r.order = append(r.order, p.ID)
	return nil
}

// Update shallow-merges the given fields into a registered pattern.
func (r *Registry) Update(id string, up Update) error {
	if up.Severity != nil && !up.Severity.Known() {
		return fmt.Errorf("%w: %s (%q)", ErrBadSeverity, id, *up.Severity)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.patterns[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrPatternNotFound, id)
	}
	up.apply(p)
	return nil
}

// Unregister removes a pattern, reporting whether it existed. Removing a
// missing id is not an error.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.patterns[id]; !exists {
		return false
	}
	delete(r.patterns, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a copy of the pattern with the given id.
func (r *Registry) Get(id string) (*Pattern, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patterns[id]
	if !ok {
		return nil, false
	}
	return p.clone(), true
}

// List returns copies of all patterns in registration order.
func (r *Registry) List() []*Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Pattern, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.patterns[id].clone())
	}
	return out
}

// Len returns the number of registered patterns.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.patterns)
}

// Validate runs every applicable, enabled pattern against the intent and
// aggregates the outcomes. Evaluations run concurrently but the returned
// outcome list is always in registration order. Evaluator errors, panics
// and deadline overruns are converted into failed outcomes at the
// pattern's own severity; they never abort the sweep, so the caller
// receives complete diagnostics in one pass.
func (r *Registry) Validate(ctx context.Context, in *intent.Intent, ec *intent.Context) *ValidationResult {
	applicable := r.snapshot(in, ec)

	outcomes := make([]ValidationOutcome, len(applicable))
	var wg sync.WaitGroup
	for i, p := range applicable {
		wg.Add(1)
		go func(i int, p *Pattern) {
			defer wg.Done()
			outcomes[i] = evaluateOne(ctx, p, in, ec)
		}(i, p)
	}
	wg.Wait()

	return &ValidationResult{
		Valid:    Aggregate(outcomes),
		Outcomes: outcomes,
		Intent:   Summarize(in),
	}
}

// snapshot collects the applicable patterns under the read lock so that
// evaluation proceeds against a consistent view.
func (r *Registry) snapshot(in *intent.Intent, ec *intent.Context) []*Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Pattern, 0, len(r.order))
	for _, id := range r.order {
		p := r.patterns[id]
		if p.AppliesTo(in, ec) {
			out = append(out, p.clone())
		}
	}
	return out
}

// evaluateOne runs a single evaluator bounded by the context deadline.
// A hung evaluator is abandoned once the deadline fires; the gate never
// leaves a validation call pending on it.
func evaluateOne(ctx context.Context, p *Pattern, in *intent.Intent, ec *intent.Context) ValidationOutcome {
	type evalReply struct {
		ev  Evaluation
		err error
	}
	ch := make(chan evalReply, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- evalReply{err: fmt.Errorf("panic: %v", rec)}
			}
		}()
		ev, err := p.Evaluator.Evaluate(ctx, in, ec)
		ch <- evalReply{ev: ev, err: err}
	}()

	var reply evalReply
	select {
	case <-ctx.Done():
		reply = evalReply{err: ctx.Err()}
	case reply = <-ch:
	}

	outcome := ValidationOutcome{
		PatternID:   p.ID,
		PatternName: p.Name,
		Severity:    p.Severity,
	}
	if reply.err != nil {
		// Faults stay at the pattern's declared severity.
		outcome.Valid = false
		outcome.Message = fmt.Sprintf("Error validating pattern: %v", reply.err)
		return outcome
	}

	outcome.Valid = reply.ev.Valid
	outcome.Message = reply.ev.Message
	outcome.Details = reply.ev.Details
	if !outcome.Valid && outcome.Message == "" {
		outcome.Message = p.ViolationMessage
	}
	return outcome
}
