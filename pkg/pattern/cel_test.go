package pattern

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instabids/intentguard/pkg/intent"
)

func TestCELCompiler_Compile(t *testing.T) {
	c, err := NewCELCompiler()
	require.NoError(t, err)

	ev, err := c.Compile(`intent.params.amount <= 10000.0`)
	require.NoError(t, err)

	in := intent.New("submitBid")
	in.Params = map[string]any{"amount": 5000.0}
	eval, err := ev.Evaluate(context.Background(), in, &intent.Context{CurrentDomain: "bidding"})
	require.NoError(t, err)
	assert.True(t, eval.Valid)

	in.Params["amount"] = 15000.0
	eval, err = ev.Evaluate(context.Background(), in, &intent.Context{CurrentDomain: "bidding"})
	require.NoError(t, err)
	assert.False(t, eval.Valid)
}

func TestCELCompiler_ContextVariable(t *testing.T) {
	c, err := NewCELCompiler()
	require.NoError(t, err)

	ev, err := c.Compile(`ctx.current_domain == intent.source_domain`)
	require.NoError(t, err)

	in := intent.New("getBids")
	in.SourceDomain = "bidding"
	eval, err := ev.Evaluate(context.Background(), in, &intent.Context{CurrentDomain: "bidding"})
	require.NoError(t, err)
	assert.True(t, eval.Valid)
}

func TestCELCompiler_CompileError(t *testing.T) {
	c, err := NewCELCompiler()
	require.NoError(t, err)

	_, err = c.Compile(`this is not CEL (`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CEL compile error")
}

func TestCELCompiler_NonBoolExpression(t *testing.T) {
	c, err := NewCELCompiler()
	require.NoError(t, err)

	ev, err := c.Compile(`intent.name`)
	require.NoError(t, err)

	_, err = ev.Evaluate(context.Background(), intent.New("submitBid"), &intent.Context{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not return bool")
}

func TestCELCompiler_CachesPrograms(t *testing.T) {
	c, err := NewCELCompiler()
	require.NoError(t, err)

	const expr = `intent.name == "submitBid"`
	first, err := c.program(expr)
	require.NoError(t, err)
	second, err := c.program(expr)
	require.NoError(t, err)
	// Same compiled program instance comes back from the cache.
	assert.Equal(t, 1, len(c.cache))
	_ = first
	_ = second
}
