package guard

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

// Clock provides authority time for the gate. Tests inject a fixed clock;
// production uses the wall clock.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// AuditEntry is a tamper-evident record of one gate decision.
type AuditEntry struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	IntentName    string    `json:"intent_name"`
	Action        string    `json:"action"` // INTENT_ALLOWED | INTENT_REJECTED | ROLE_DENY | THROTTLED
	ResultHash    string    `json:"result_hash,omitempty"`

	// PreviousHash links this entry to the preceding one, forming a chain.
	PreviousHash string `json:"previous_hash"`
	// Hash is the SHA-256 digest of this entry including PreviousHash.
	Hash string `json:"hash"`
}

// AuditLog manages a hash-chained sequence of gate decisions.
type AuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
	clock   Clock
}

// NewAuditLog creates an empty audit log. A nil clock defaults to wall time.
func NewAuditLog(clock Clock) *AuditLog {
	if clock == nil {
		clock = wallClock{}
	}
	return &AuditLog{clock: clock}
}

// Append records a decision, linking it to the previous entry.
func (l *AuditLog) Append(correlationID, intentName, action, resultHash string) (*AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prevHash := ""
	if len(l.entries) > 0 {
		prevHash = l.entries[len(l.entries)-1].Hash
	}

	entry := AuditEntry{
		ID:            uuid.NewString(),
		Timestamp:     l.clock.Now().UTC(),
		CorrelationID: correlationID,
		IntentName:    intentName,
		Action:        action,
		ResultHash:    resultHash,
		PreviousHash:  prevHash,
	}

	hash, err := computeEntryHash(&entry)
	if err != nil {
		return nil, err
	}
	entry.Hash = hash

	l.entries = append(l.entries, entry)
	return &entry, nil
}

// Entries returns a copy of the log.
func (l *AuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// VerifyChain checks link integrity and per-entry hashes. It returns
// false with the index of the first broken entry.
func (l *AuditLog) VerifyChain() (bool, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prevHash := ""
	for i := range l.entries {
		entry := l.entries[i]
		if entry.PreviousHash != prevHash {
			return false, i, fmt.Errorf("audit entry %d: broken chain link", i)
		}
		expected, err := computeEntryHash(&entry)
		if err != nil {
			return false, i, err
		}
		if entry.Hash != expected {
			return false, i, fmt.Errorf("audit entry %d: content hash mismatch", i)
		}
		prevHash = entry.Hash
	}
	return true, -1, nil
}

// computeEntryHash digests the entry minus its own Hash field, over the
// RFC 8785 canonical JSON form.
func computeEntryHash(e *AuditEntry) (string, error) {
	stripped := *e
	stripped.Hash = ""
	raw, err := json.Marshal(stripped)
	if err != nil {
		return "", fmt.Errorf("audit hash: marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("audit hash: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
