package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteUnitStore is the durable unit store backed by a single SQLite
// database. Embeddings are stored as little-endian float32 blobs and
// attributes as a JSON column.
type SQLiteUnitStore struct {
	db   *sql.DB
	path string
}

const unitSchema = `
CREATE TABLE IF NOT EXISTS units (
	unit_id        TEXT PRIMARY KEY,
	parent_id      TEXT NOT NULL,
	sequence_index INTEGER NOT NULL,
	text           TEXT NOT NULL,
	embedding      BLOB,
	attributes     TEXT,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_units_parent_seq ON units(parent_id, sequence_index);
`

// NewSQLiteUnitStore opens (or creates) the unit database at path.
// An empty path opens an in-memory database for tests.
func NewSQLiteUnitStore(path string) (*SQLiteUnitStore, error) {
	dsn := path
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open unit store: %w", err)
	}

	// modernc.org/sqlite ignores some DSN params; set pragmas explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(unitSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create units schema: %w", err)
	}

	return &SQLiteUnitStore{db: db, path: path}, nil
}

// PutUnits upserts units in one transaction. UpdatedAt is stamped here;
// CreatedAt is preserved for rows that already exist.
func (s *SQLiteUnitStore) PutUnits(ctx context.Context, units []*IndexedUnit) error {
	if len(units) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO units (unit_id, parent_id, sequence_index, text, embedding, attributes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(unit_id) DO UPDATE SET
			parent_id      = excluded.parent_id,
			sequence_index = excluded.sequence_index,
			text           = excluded.text,
			embedding      = excluded.embedding,
			attributes     = excluded.attributes,
			updated_at     = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, u := range units {
		attrs, err := encodeAttributes(u.Attributes)
		if err != nil {
			return fmt.Errorf("encode attributes for %s: %w", u.UnitID, err)
		}
		created := u.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.ExecContext(ctx,
			u.UnitID, u.ParentID, u.SequenceIndex, u.Text,
			encodeEmbedding(u.Embedding), attrs,
			created.UnixMilli(), now.UnixMilli(),
		); err != nil {
			return fmt.Errorf("upsert unit %s: %w", u.UnitID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// GetUnit returns one unit, or nil when absent.
func (s *SQLiteUnitStore) GetUnit(ctx context.Context, unitID string) (*IndexedUnit, error) {
	row := s.db.QueryRowContext(ctx, selectUnitColumns+" FROM units WHERE unit_id = ?", unitID)
	u, err := scanUnit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get unit %s: %w", unitID, err)
	}
	return u, nil
}

// GetUnits returns existing units preserving input order. Missing IDs
// are skipped.
func (s *SQLiteUnitStore) GetUnits(ctx context.Context, unitIDs []string) ([]*IndexedUnit, error) {
	if len(unitIDs) == 0 {
		return []*IndexedUnit{}, nil
	}

	placeholders := strings.Repeat("?,", len(unitIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(unitIDs))
	for i, id := range unitIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		selectUnitColumns+" FROM units WHERE unit_id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("get units: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*IndexedUnit, len(unitIDs))
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		byID[u.UnitID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate units: %w", err)
	}

	out := make([]*IndexedUnit, 0, len(byID))
	for _, id := range unitIDs {
		if u, ok := byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// GetRange returns the parent's units with sequence index in
// [start, end], ordered by sequence.
func (s *SQLiteUnitStore) GetRange(ctx context.Context, parentID string, start, end int) ([]*IndexedUnit, error) {
	rows, err := s.db.QueryContext(ctx,
		selectUnitColumns+` FROM units
		 WHERE parent_id = ? AND sequence_index BETWEEN ? AND ?
		 ORDER BY sequence_index`, parentID, start, end)
	if err != nil {
		return nil, fmt.Errorf("get range %s[%d:%d]: %w", parentID, start, end, err)
	}
	defer rows.Close()
	return collectUnits(rows)
}

// CountSiblings returns the number of units under a parent.
func (s *SQLiteUnitStore) CountSiblings(ctx context.Context, parentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM units WHERE parent_id = ?", parentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count siblings of %s: %w", parentID, err)
	}
	return n, nil
}

// ScanSubstring returns up to limit units containing the literal
// substring, matched case-insensitively via instr on lowered text.
// The substring is always bound as a parameter, never concatenated.
func (s *SQLiteUnitStore) ScanSubstring(ctx context.Context, substring string, limit int) ([]*IndexedUnit, error) {
	rows, err := s.db.QueryContext(ctx,
		selectUnitColumns+` FROM units
		 WHERE instr(lower(text), lower(?)) > 0
		 ORDER BY parent_id, sequence_index
		 LIMIT ?`, substring, limit)
	if err != nil {
		return nil, fmt.Errorf("scan substring: %w", err)
	}
	defer rows.Close()
	return collectUnits(rows)
}

// DeleteUnits removes units by ID, ignoring missing ones.
func (s *SQLiteUnitStore) DeleteUnits(ctx context.Context, unitIDs []string) error {
	if len(unitIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM units WHERE unit_id = ?")
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range unitIDs {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("delete unit %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// AllUnits returns every unit, ordered by parent and sequence.
func (s *SQLiteUnitStore) AllUnits(ctx context.Context) ([]*IndexedUnit, error) {
	rows, err := s.db.QueryContext(ctx,
		selectUnitColumns+" FROM units ORDER BY parent_id, sequence_index")
	if err != nil {
		return nil, fmt.Errorf("query all units: %w", err)
	}
	defer rows.Close()
	return collectUnits(rows)
}

// Count returns the number of stored units.
func (s *SQLiteUnitStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM units").Scan(&n); err != nil {
		return 0, fmt.Errorf("count units: %w", err)
	}
	return n, nil
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteUnitStore) Close() error {
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}

var _ UnitStore = (*SQLiteUnitStore)(nil)

const selectUnitColumns = "SELECT unit_id, parent_id, sequence_index, text, embedding, attributes, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUnit(row rowScanner) (*IndexedUnit, error) {
	var (
		u            IndexedUnit
		embedding    []byte
		attrs        sql.NullString
		created, upd int64
	)
	if err := row.Scan(&u.UnitID, &u.ParentID, &u.SequenceIndex, &u.Text,
		&embedding, &attrs, &created, &upd); err != nil {
		return nil, err
	}
	u.Embedding = decodeEmbedding(embedding)
	if attrs.Valid && attrs.String != "" {
		if err := json.Unmarshal([]byte(attrs.String), &u.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
	}
	u.CreatedAt = time.UnixMilli(created).UTC()
	u.UpdatedAt = time.UnixMilli(upd).UTC()
	return &u, nil
}

func collectUnits(rows *sql.Rows) ([]*IndexedUnit, error) {
	var units []*IndexedUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate units: %w", err)
	}
	if units == nil {
		units = []*IndexedUnit{}
	}
	return units, nil
}

func encodeAttributes(attrs map[string]string) (string, error) {
	if len(attrs) == 0 {
		return "", nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
