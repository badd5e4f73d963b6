package pattern

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/instabids/intentguard/pkg/intent"
)

// CELCompiler turns CEL expressions into pattern evaluators. Expressions
// see two map variables: "intent" (the flattened intent) and "ctx" (the
// evaluation context). Compiled programs are cached by source text.
type CELCompiler struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELCompiler builds the shared CEL environment.
func NewCELCompiler() (*CELCompiler, error) {
	env, err := cel.NewEnv(
		cel.Variable("intent", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("ctx", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return &CELCompiler{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Compile compiles an expression into an Evaluator. A compile failure is
// a configuration error surfaced immediately, not deferred to validation
// time.
func (c *CELCompiler) Compile(expression string) (Evaluator, error) {
	prg, err := c.program(expression)
	if err != nil {
		return nil, err
	}

	return EvaluatorFunc(func(_ context.Context, in *intent.Intent, ec *intent.Context) (Evaluation, error) {
		activation := map[string]any{
			"intent": in.AsMap(),
			"ctx":    ec.AsMap(),
		}
		out, _, err := prg.Eval(activation)
		if err != nil {
			return Evaluation{}, fmt.Errorf("CEL eval error: %w", err)
		}
		valid, ok := out.Value().(bool)
		if !ok {
			return Evaluation{}, fmt.Errorf("CEL expression did not return bool")
		}
		return Evaluation{Valid: valid}, nil
	}), nil
}

func (c *CELCompiler) program(expression string) (cel.Program, error) {
	c.mu.RLock()
	prg, hit := c.cache[expression]
	c.mu.RUnlock()
	if hit {
		return prg, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prg, hit = c.cache[expression]; hit {
		return prg, nil
	}

	ast, issues := c.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error: %w", issues.Err())
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program error: %w", err)
	}
	c.cache[expression] = prg
	return prg, nil
}
