package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/instabids/intentguard/pkg/bundle"
)

// ErrBundleNotFound is returned when no bundle row matches.
var ErrBundleNotFound = errors.New("bundle not found")

// PostgresBundleStore persists pattern bundles so several gate instances
// can share one rule set.
type PostgresBundleStore struct {
	db *sql.DB
}

// NewPostgresBundleStore wraps an open Postgres connection.
func NewPostgresBundleStore(db *sql.DB) *PostgresBundleStore {
	return &PostgresBundleStore{db: db}
}

const pgBundleSchema = `
CREATE TABLE IF NOT EXISTS pattern_bundles (
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	bundle_json JSONB NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (name, version)
);
`

// Init creates the schema.
func (s *PostgresBundleStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, pgBundleSchema)
	return err
}

// Save upserts a bundle under its (name, version) key.
func (s *PostgresBundleStore) Save(ctx context.Context, b *bundle.Bundle) error {
	if b == nil {
		return errors.New("nil bundle")
	}
	bundleJSON, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal bundle: %w", err)
	}

	query := `
		INSERT INTO pattern_bundles (name, version, bundle_json, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name, version) DO UPDATE
		SET bundle_json = $3, created_at = $4
	`
	_, err = s.db.ExecContext(ctx, query, b.Name, b.Version, bundleJSON, time.Now().UTC())
	return err
}

// Get loads the newest version of the named bundle.
func (s *PostgresBundleStore) Get(ctx context.Context, name string) (*bundle.Bundle, error) {
	var bundleJSON []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT bundle_json FROM pattern_bundles WHERE name = $1 ORDER BY created_at DESC LIMIT 1`,
		name,
	).Scan(&bundleJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBundleNotFound, name)
	}
	if err != nil {
		return nil, err
	}

	var b bundle.Bundle
	if err := json.Unmarshal(bundleJSON, &b); err != nil {
		return nil, fmt.Errorf("unmarshal bundle %s: %w", name, err)
	}
	return &b, nil
}

// Delete removes every version of the named bundle.
func (s *PostgresBundleStore) Delete(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pattern_bundles WHERE name = $1`, name)
	return err
}

// List returns the names of all stored bundles.
func (s *PostgresBundleStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT name FROM pattern_bundles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
