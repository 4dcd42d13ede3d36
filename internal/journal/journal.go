package journal

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown operation id.
var ErrNotFound = errors.New("operation not found")

type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
)

// Entry is one ledger submission attempt.
type Entry struct {
	OpID        string `json:"op_id"`
	Kind        string `json:"kind"`
	Status      Status `json:"status"`
	ChainID     int64  `json:"chain_id"`
	From        string `json:"from"`
	Target      string `json:"target"`
	ValueWei    string `json:"value_wei"`
	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func NewEntry(kind string, chainID int64, from, target, valueWei string) Entry {
	now := time.Now().UTC().Format(time.RFC3339)
	return Entry{
		OpID:      NewOpID(),
		Kind:      kind,
		Status:    StatusSubmitted,
		ChainID:   chainID,
		From:      from,
		Target:    target,
		ValueWei:  valueWei,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (e *Entry) Touch() {
	e.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

func NewOpID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "op-unknown"
	}
	return "op_" + hex.EncodeToString(b)
}

// Store persists entries in SQLite. Writes are serialized across processes
// with a lock file.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create journal lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS operations (
			op_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			tx_hash TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_operations_status_updated ON operations(status, updated_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init journal schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record upserts entry keyed by its operation id.
func (s *Store) Record(entry Entry) error {
	if strings.TrimSpace(entry.OpID) == "" {
		return fmt.Errorf("record operation: missing op id")
	}
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock journal: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock journal: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal operation: %w", err)
	}
	createdUnix := parseRFC3339Unix(entry.CreatedAt)
	updatedUnix := parseRFC3339Unix(entry.UpdatedAt)

	_, err = s.db.Exec(`
		INSERT INTO operations (op_id, kind, status, tx_hash, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(op_id) DO UPDATE SET
			status=excluded.status,
			tx_hash=excluded.tx_hash,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, entry.OpID, entry.Kind, string(entry.Status), entry.TxHash, createdUnix, updatedUnix, payload)
	if err != nil {
		return fmt.Errorf("record operation: %w", err)
	}
	return nil
}

func (s *Store) Get(opID string) (Entry, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM operations WHERE op_id = ?", opID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, opID)
		}
		return Entry{}, fmt.Errorf("read operation: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode operation payload: %w", err)
	}
	return entry, nil
}

// List returns the most recently updated entries, optionally filtered by status.
func (s *Store) List(status Status, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(string(status)) == "" {
		rows, err = s.db.Query("SELECT payload FROM operations ORDER BY updated_at DESC, rowid DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query("SELECT payload FROM operations WHERE status = ? ORDER BY updated_at DESC, rowid DESC LIMIT ?", string(status), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan operation row: %w", err)
		}
		var entry Entry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, fmt.Errorf("decode operation row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operation rows: %w", err)
	}
	return entries, nil
}

func parseRFC3339Unix(v string) int64 {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Now().UTC().Unix()
	}
	return t.UTC().Unix()
}
