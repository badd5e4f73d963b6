package pattern

import (
	"context"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/instabids/intentguard/pkg/intent"
)

// NewSchemaEvaluator compiles a JSON Schema for intent params. A schema
// violation is a policy violation (a failed evaluation), not an evaluator
// fault; only the compile step can error.
func NewSchemaEvaluator(name, schema string) (Evaluator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	schemaURL := fmt.Sprintf("https://intentguard.schemas.local/patterns/%s.schema.json", name)
	if err := c.AddResource(schemaURL, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("param schema load failed: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("param schema compile failed: %w", err)
	}

	return EvaluatorFunc(func(_ context.Context, in *intent.Intent, _ *intent.Context) (Evaluation, error) {
		params := in.Params
		if params == nil {
			params = map[string]any{}
		}
		if err := compiled.Validate(params); err != nil {
			return Evaluation{
				Valid:   false,
				Message: fmt.Sprintf("params schema violation: %v", err),
			}, nil
		}
		return Evaluation{Valid: true}, nil
	}), nil
}
