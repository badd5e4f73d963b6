package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	in := New("submitBid")
	assert.Equal(t, "submitBid", in.Name)
	assert.NotEmpty(t, in.CorrelationID)
	assert.False(t, in.Timestamp.IsZero())
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		in := New("submitBid")
		assert.NoError(t, in.Validate())
	})

	t.Run("missing name", func(t *testing.T) {
		in := New("")
		require.ErrorIs(t, in.Validate(), ErrMissingName)
	})

	t.Run("missing correlation id", func(t *testing.T) {
		in := New("submitBid")
		in.CorrelationID = ""
		require.ErrorIs(t, in.Validate(), ErrMissingCorrelation)
	})

	t.Run("query shape without tables", func(t *testing.T) {
		in := New("updateBid")
		in.Kind = KindUpdate
		require.ErrorIs(t, in.Validate(), ErrEmptyTableSet)
	})

	t.Run("filters without tables", func(t *testing.T) {
		in := New("findSomething")
		in.Filters = map[string]any{"id": "x"}
		require.ErrorIs(t, in.Validate(), ErrEmptyTableSet)
	})

	t.Run("query shape with tables", func(t *testing.T) {
		in := New("updateBid")
		in.Kind = KindUpdate
		in.Tables = []string{"bids"}
		assert.NoError(t, in.Validate())
	})
}

func TestEffectiveKind(t *testing.T) {
	cases := map[string]Kind{
		"createProject": KindCreate,
		"submitBid":     KindCreate,
		"getBids":       KindRead,
		"listProjects":  KindRead,
		"updateBid":     KindUpdate,
		"acceptBid":     KindUpdate,
		"deleteMessage": KindDelete,
		"withdrawBid":   KindDelete,
		"ping":          KindOther,
	}
	for name, want := range cases {
		in := New(name)
		assert.Equal(t, want, in.EffectiveKind(), name)
	}

	// A declared kind beats the heuristic.
	in := New("submitBid")
	in.Kind = KindUpdate
	assert.Equal(t, KindUpdate, in.EffectiveKind())
}

func TestAsMap(t *testing.T) {
	in := New("submitBid")
	in.SourceDomain = "bidding"
	in.Params = map[string]any{"amount": 100}

	m := in.AsMap()
	assert.Equal(t, "submitBid", m["name"])
	assert.Equal(t, "create", m["kind"])
	assert.Equal(t, "bidding", m["source_domain"])
	assert.Equal(t, in.CorrelationID, m["correlation_id"])
}
