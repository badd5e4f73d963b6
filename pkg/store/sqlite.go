// Package store persists gate decisions and pattern bundles. The gate
// itself never touches storage; these stores are opt-in collaborators
// wired by the host application.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/instabids/intentguard/pkg/pattern"
)

// DecisionRecord is one persisted validation verdict.
type DecisionRecord struct {
	CorrelationID string                      `json:"correlation_id"`
	IntentName    string                      `json:"intent_name"`
	Domain        string                      `json:"domain,omitempty"`
	Valid         bool                        `json:"valid"`
	ResultHash    string                      `json:"result_hash"`
	Outcomes      []pattern.ValidationOutcome `json:"outcomes"`
	Timestamp     time.Time                   `json:"timestamp"`
}

// SQLiteDecisionStore persists decision records to an embedded database.
type SQLiteDecisionStore struct {
	db *sql.DB
}

// NewSQLiteDecisionStore wraps db and creates the schema if needed.
func NewSQLiteDecisionStore(db *sql.DB) (*SQLiteDecisionStore, error) {
	s := &SQLiteDecisionStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLiteDecisionStore opens (or creates) the database at path.
func OpenSQLiteDecisionStore(path string) (*SQLiteDecisionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open decision store: %w", err)
	}
	return NewSQLiteDecisionStore(db)
}

func (s *SQLiteDecisionStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS decisions (
        correlation_id TEXT NOT NULL,
        intent_name TEXT NOT NULL,
        domain TEXT,
        valid INTEGER NOT NULL,
        result_hash TEXT NOT NULL,
        outcomes JSON,
        timestamp DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_decisions_correlation ON decisions (correlation_id);
    CREATE INDEX IF NOT EXISTS idx_decisions_intent ON decisions (intent_name);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Save inserts a decision record.
func (s *SQLiteDecisionStore) Save(ctx context.Context, rec *DecisionRecord) error {
	outcomesJSON, err := json.Marshal(rec.Outcomes)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}

	valid := 0
	if rec.Valid {
		valid = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions (correlation_id, intent_name, domain, valid, result_hash, outcomes, timestamp)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.CorrelationID, rec.IntentName, rec.Domain, valid, rec.ResultHash,
		string(outcomesJSON), rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// Get returns the decisions recorded for a correlation id, oldest first.
func (s *SQLiteDecisionStore) Get(ctx context.Context, correlationID string) ([]*DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT correlation_id, intent_name, domain, valid, result_hash, outcomes, timestamp
         FROM decisions WHERE correlation_id = ? ORDER BY timestamp ASC`,
		correlationID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanDecisions(rows)
}

// List returns the most recent decisions, newest first.
func (s *SQLiteDecisionStore) List(ctx context.Context, limit int) ([]*DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT correlation_id, intent_name, domain, valid, result_hash, outcomes, timestamp
         FROM decisions ORDER BY timestamp DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanDecisions(rows)
}

// Close closes the underlying database.
func (s *SQLiteDecisionStore) Close() error {
	return s.db.Close()
}

func scanDecisions(rows *sql.Rows) ([]*DecisionRecord, error) {
	var records []*DecisionRecord
	for rows.Next() {
		var (
			rec          DecisionRecord
			valid        int
			outcomesJSON sql.NullString
			ts           string
		)
		if err := rows.Scan(&rec.CorrelationID, &rec.IntentName, &rec.Domain, &valid, &rec.ResultHash, &outcomesJSON, &ts); err != nil {
			return nil, err
		}
		rec.Valid = valid != 0
		if outcomesJSON.Valid && outcomesJSON.String != "" {
			if err := json.Unmarshal([]byte(outcomesJSON.String), &rec.Outcomes); err != nil {
				return nil, fmt.Errorf("unmarshal outcomes: %w", err)
			}
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		rec.Timestamp = parsed
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
