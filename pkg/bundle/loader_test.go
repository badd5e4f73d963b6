package bundle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instabids/intentguard/pkg/intent"
	"github.com/instabids/intentguard/pkg/pattern"
)

const marketplaceBundle = `{
  "version": "1.0.0",
  "name": "marketplace-rules",
  "rules": [
    {
      "id": "bid.amount-cap",
      "name": "Bid amount cap",
      "severity": "error",
      "enabled": true,
      "violation_message": "bid amount exceeds the marketplace cap",
      "expression": "intent.name != \"submitBid\" || double(intent.params[\"amount\"]) <= 10000.0"
    },
    {
      "id": "bid.params-shape",
      "name": "Bid parameter shape",
      "severity": "warning",
      "enabled": true,
      "applicable_intents": ["submitBid"],
      "params_schema": "{\"type\": \"object\", \"required\": [\"amount\"], \"properties\": {\"amount\": {\"type\": \"number\", \"minimum\": 0}}}"
    }
  ]
}`

func writeBundle(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_LoadAll(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, "marketplace.json", marketplaceBundle)
	writeBundle(t, dir, "ignored.yaml", "not a bundle")

	l, err := NewLoader(dir)
	require.NoError(t, err)

	var reloaded []string
	l.OnReload(func(b *Bundle) { reloaded = append(reloaded, b.Name) })

	require.NoError(t, l.LoadAll())

	b, ok := l.Get("marketplace-rules")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", b.Version)
	assert.Len(t, b.Rules, 2)
	assert.Equal(t, []string{"marketplace-rules"}, reloaded)
	assert.Len(t, l.List(), 1)
}

func TestLoader_RejectsUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	path := writeBundle(t, dir, "future.json", `{"version": "2.0.0", "name": "future", "rules": []}`)

	l, err := NewLoader(dir)
	require.NoError(t, err)
	err = l.LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside supported range")
}

func TestLoader_RejectsMissingName(t *testing.T) {
	dir := t.TempDir()
	path := writeBundle(t, dir, "anon.json", `{"version": "1.0.0", "rules": []}`)

	l, err := NewLoader(dir)
	require.NoError(t, err)
	require.Error(t, l.LoadFile(path))
}

func TestBundle_Build(t *testing.T) {
	dir := t.TempDir()
	path := writeBundle(t, dir, "marketplace.json", marketplaceBundle)

	l, err := NewLoader(dir)
	require.NoError(t, err)
	require.NoError(t, l.LoadFile(path))

	b, ok := l.Get("marketplace-rules")
	require.True(t, ok)

	compiler, err := pattern.NewCELCompiler()
	require.NoError(t, err)
	patterns, err := b.Build(compiler)
	require.NoError(t, err)
	require.Len(t, patterns, 2)

	// The CEL rule works end to end.
	in := intent.New("submitBid")
	in.Params = map[string]any{"amount": 15000.0}
	ev, err := patterns[0].Evaluator.Evaluate(context.Background(), in, &intent.Context{})
	require.NoError(t, err)
	assert.False(t, ev.Valid)

	// So does the schema rule.
	in.Params = map[string]any{"amount": -5.0}
	ev, err = patterns[1].Evaluator.Evaluate(context.Background(), in, &intent.Context{})
	require.NoError(t, err)
	assert.False(t, ev.Valid)
}

func TestBundle_BuildRejectsAmbiguousRule(t *testing.T) {
	b := &Bundle{
		Version: "1.0.0",
		Name:    "broken",
		Rules: []Definition{
			{ID: "r1", Severity: pattern.SeverityError, Enabled: true, Expression: "true", ParamsSchema: "{}"},
		},
	}
	compiler, err := pattern.NewCELCompiler()
	require.NoError(t, err)
	_, err = b.Build(compiler)
	require.Error(t, err)

	b.Rules[0].Expression = ""
	b.Rules[0].ParamsSchema = ""
	_, err = b.Build(compiler)
	require.Error(t, err)
}
