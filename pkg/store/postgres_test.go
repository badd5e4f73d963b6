package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instabids/intentguard/pkg/bundle"
	"github.com/instabids/intentguard/pkg/pattern"
)

func sampleBundle() *bundle.Bundle {
	expr := `intent.name != "submitBid" || double(intent.params["amount"]) <= 10000.0`
	return &bundle.Bundle{
		Version: "1.0.0",
		Name:    "marketplace-rules",
		Rules: []bundle.Definition{
			{
				ID:         "bid.amount-cap",
				Name:       "Bid amount cap",
				Severity:   pattern.SeverityError,
				Enabled:    true,
				Expression: expr,
			},
		},
	}
}

func TestPostgresBundleStore_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSERT INTO pattern_bundles").
		WithArgs("marketplace-rules", "1.0.0", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewPostgresBundleStore(db)
	require.NoError(t, s.Save(context.Background(), sampleBundle()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBundleStore_SaveNil(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewPostgresBundleStore(db)
	assert.Error(t, s.Save(context.Background(), nil))
}

func TestPostgresBundleStore_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	raw, err := json.Marshal(sampleBundle())
	require.NoError(t, err)

	mock.ExpectQuery("SELECT bundle_json FROM pattern_bundles").
		WithArgs("marketplace-rules").
		WillReturnRows(sqlmock.NewRows([]string{"bundle_json"}).AddRow(raw))

	s := NewPostgresBundleStore(db)
	b, err := s.Get(context.Background(), "marketplace-rules")
	require.NoError(t, err)
	assert.Equal(t, "marketplace-rules", b.Name)
	require.Len(t, b.Rules, 1)
	assert.Equal(t, "bid.amount-cap", b.Rules[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBundleStore_GetMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT bundle_json FROM pattern_bundles").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"bundle_json"}))

	s := NewPostgresBundleStore(db)
	_, err = s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrBundleNotFound)
}

func TestPostgresBundleStore_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT DISTINCT name FROM pattern_bundles").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("a").AddRow("b"))

	s := NewPostgresBundleStore(db)
	names, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}
