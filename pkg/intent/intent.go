// Package intent defines the structured operation request that flows
// through the validation gate, plus the caller context it is judged
// against. An Intent is built once per inbound operation, never mutated,
// and discarded after the gate returns.
package intent

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind classifies the shape of an operation.
type Kind string

const (
	KindCreate Kind = "create"
	KindRead   Kind = "read"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
	KindOther  Kind = "other"
)

// Malformed-intent errors. These indicate programmer error in the calling
// layer and are raised before any pattern is evaluated.
var (
	ErrMissingName        = errors.New("intent missing name")
	ErrMissingCorrelation = errors.New("intent missing correlation id")
	ErrEmptyTableSet      = errors.New("query intent has empty table set")
)

// Intent is an immutable request value describing one operation.
type Intent struct {
	Name          string         `json:"name"`
	Kind          Kind           `json:"kind,omitempty"`
	Params        map[string]any `json:"params,omitempty"`
	Tables        []string       `json:"tables,omitempty"`  // entity/table set for query-shaped intents
	Filters       map[string]any `json:"filters,omitempty"` // row-selection predicates
	Payload       map[string]any `json:"payload,omitempty"` // create/update field values
	SourceDomain  string         `json:"source_domain,omitempty"`
	CallerID      string         `json:"caller_id,omitempty"`
	CallerRoles   []string       `json:"caller_roles,omitempty"`
	CorrelationID string         `json:"correlation_id"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Context carries the request-handling layer's view of the caller.
type Context struct {
	CurrentDomain string         `json:"current_domain"`
	CallerID      string         `json:"caller_id,omitempty"`
	CallerRoles   []string       `json:"caller_roles,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// New builds an Intent with a fresh correlation id and timestamp.
// Callers that already carry a tracing token should set CorrelationID
// on the returned value before handing the intent to the gate.
func New(name string) *Intent {
	return &Intent{
		Name:          name,
		CorrelationID: uuid.NewString(),
		Timestamp:     time.Now().UTC(),
	}
}

// Validate checks the structural preconditions the gate requires.
// A query-shaped intent (one that declares a Kind of read/update/delete
// or carries filters) must name at least one table.
func (in *Intent) Validate() error {
	if in.Name == "" {
		return ErrMissingName
	}
	if in.CorrelationID == "" {
		return fmt.Errorf("%w: intent %q", ErrMissingCorrelation, in.Name)
	}
	if in.queryShaped() && len(in.Tables) == 0 {
		return fmt.Errorf("%w: intent %q", ErrEmptyTableSet, in.Name)
	}
	return nil
}

// queryShaped reports whether the intent addresses stored rows and
// therefore must declare which tables it touches. An explicitly declared
// read/update/delete kind or the presence of filters both qualify.
func (in *Intent) queryShaped() bool {
	switch in.Kind {
	case KindRead, KindUpdate, KindDelete:
		return true
	}
	return len(in.Filters) > 0
}

// EffectiveKind returns the declared Kind, falling back to a prefix
// heuristic over the intent name (createX, getX, listX, updateX, ...).
func (in *Intent) EffectiveKind() Kind {
	if in.Kind != "" {
		return in.Kind
	}
	return inferKind(in.Name)
}

func inferKind(name string) Kind {
	lower := strings.ToLower(name)
	switch {
	case hasAnyPrefix(lower, "create", "submit", "add", "insert"):
		return KindCreate
	case hasAnyPrefix(lower, "get", "list", "find", "query", "read", "search"):
		return KindRead
	case hasAnyPrefix(lower, "update", "set", "edit", "accept", "reject"):
		return KindUpdate
	case hasAnyPrefix(lower, "delete", "remove", "withdraw"):
		return KindDelete
	}
	return KindOther
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// AsMap flattens the intent into the activation map exposed to CEL
// pattern expressions.
func (in *Intent) AsMap() map[string]any {
	return map[string]any{
		"name":           in.Name,
		"kind":           string(in.EffectiveKind()),
		"params":         in.Params,
		"tables":         in.Tables,
		"filters":        in.Filters,
		"payload":        in.Payload,
		"source_domain":  in.SourceDomain,
		"caller_id":      in.CallerID,
		"caller_roles":   in.CallerRoles,
		"correlation_id": in.CorrelationID,
	}
}

// AsMap flattens the evaluation context for CEL pattern expressions.
func (c *Context) AsMap() map[string]any {
	return map[string]any{
		"current_domain": c.CurrentDomain,
		"caller_id":      c.CallerID,
		"caller_roles":   c.CallerRoles,
		"metadata":       c.Metadata,
	}
}
