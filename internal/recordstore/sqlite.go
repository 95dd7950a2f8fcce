package recordstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQLiteStore keeps tables, fields and records of one base in SQLite.
// Records hold their cells as a JSON object keyed by field name.
type SQLiteStore struct {
	db     *sql.DB
	baseID string
}

// NewSQLiteStore wraps a database opened with storage.OpenSQLite.
func NewSQLiteStore(db *sql.DB, baseID string) *SQLiteStore {
	return &SQLiteStore{db: db, baseID: baseID}
}

// BaseID identifies the store to remote job services.
func (s *SQLiteStore) BaseID() string {
	return s.baseID
}

// CreateTable adds a table. It reports false when the id already exists.
func (s *SQLiteStore) CreateTable(ctx context.Context, id, name string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("table id is empty")
	}
	if name == "" {
		name = id
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO store_tables(id, name, created_at) VALUES(?, ?, ?)
ON CONFLICT(id) DO NOTHING;`, id, name, now())
	if err != nil {
		return false, fmt.Errorf("create table %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create table %s: %w", id, err)
	}
	return n == 1, nil
}

// Fields lists the fields of a table in creation order.
func (s *SQLiteStore) Fields(ctx context.Context, tableID string) ([]Field, error) {
	if err := s.requireTable(ctx, tableID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT name, type FROM store_fields WHERE table_id = ? ORDER BY rowid ASC;`, tableID)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	defer rows.Close()

	var fields []Field
	for rows.Next() {
		var f Field
		if err := rows.Scan(&f.Name, &f.Type); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

// HasField reports whether the table declares a field called name.
func (s *SQLiteStore) HasField(ctx context.Context, tableID, name string) (bool, error) {
	if err := s.requireTable(ctx, tableID); err != nil {
		return false, err
	}
	var one int
	err := s.db.QueryRowContext(ctx, `
SELECT 1 FROM store_fields WHERE table_id = ? AND name = ?;`, tableID, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup field %s: %w", name, err)
	}
	return true, nil
}

// CreateField declares a field. It is idempotent: when a field with the same
// name exists it reports false and leaves the existing declaration alone.
func (s *SQLiteStore) CreateField(ctx context.Context, tableID, name string, typ FieldType) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("field name is empty")
	}
	if !typ.Valid() {
		return false, fmt.Errorf("invalid field type %q", typ)
	}
	if err := s.requireTable(ctx, tableID); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO store_fields(table_id, name, type, created_at) VALUES(?, ?, ?, ?)
ON CONFLICT(table_id, name) DO NOTHING;`, tableID, name, string(typ), now())
	if err != nil {
		return false, fmt.Errorf("create field %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create field %s: %w", name, err)
	}
	return n == 1, nil
}

// InsertRecord stores a new record. An empty id is replaced by a generated one.
func (s *SQLiteStore) InsertRecord(ctx context.Context, tableID, id string, fields map[string]Value) (*Record, error) {
	schema, err := s.schema(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if err := checkCells(schema, fields); err != nil {
		return nil, err
	}
	if id == "" {
		id = "rec" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	raw, err := json.Marshal(nonNil(fields))
	if err != nil {
		return nil, fmt.Errorf("encode cells: %w", err)
	}
	ts := now()
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO store_records(id, table_id, fields, created_at, updated_at) VALUES(?, ?, ?, ?, ?);`,
		id, tableID, string(raw), ts, ts); err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}
	return NewRecord(id, tableID, fields), nil
}

// SelectRecord loads one record of a table.
func (s *SQLiteStore) SelectRecord(ctx context.Context, tableID, recordID string) (*Record, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
SELECT fields FROM store_records WHERE id = ? AND table_id = ?;`, recordID, tableID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		if terr := s.requireTable(ctx, tableID); terr != nil {
			return nil, terr
		}
		return nil, fmt.Errorf("%w: %s in %s", ErrRecordNotFound, recordID, tableID)
	}
	if err != nil {
		return nil, fmt.Errorf("select record %s: %w", recordID, err)
	}
	cells, err := decodeCells(raw)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", recordID, err)
	}
	return NewRecord(recordID, tableID, cells), nil
}

// SelectRecords loads the given records in the order requested. Ids that do
// not exist are skipped.
func (s *SQLiteStore) SelectRecords(ctx context.Context, tableID string, recordIDs []string) ([]*Record, error) {
	out := make([]*Record, 0, len(recordIDs))
	for _, id := range recordIDs {
		rec, err := s.SelectRecord(ctx, tableID, id)
		if errors.Is(err, ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// FindRecord returns the first record, in insertion order, whose field
// renders as value.
func (s *SQLiteStore) FindRecord(ctx context.Context, tableID, field, value string) (*Record, error) {
	if err := s.requireTable(ctx, tableID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, fields FROM store_records WHERE table_id = ? ORDER BY rowid ASC;`, tableID)
	if err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		cells, err := decodeCells(raw)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		if cells[field].String() == value {
			return NewRecord(id, tableID, cells), nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s = %q in %s", ErrRecordNotFound, field, value, tableID)
}

// UpdateRecord merges cells into an existing record and returns the result.
func (s *SQLiteStore) UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]Value) (*Record, error) {
	schema, err := s.schema(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if err := checkCells(schema, fields); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `
SELECT fields FROM store_records WHERE id = ? AND table_id = ?;`, recordID, tableID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s in %s", ErrRecordNotFound, recordID, tableID)
	}
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", recordID, err)
	}
	cells, err := decodeCells(raw)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", recordID, err)
	}
	for k, v := range fields {
		cells[k] = v
	}

	merged, err := json.Marshal(cells)
	if err != nil {
		return nil, fmt.Errorf("encode cells: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE store_records SET fields = ?, updated_at = ? WHERE id = ? AND table_id = ?;`,
		string(merged), now(), recordID, tableID); err != nil {
		return nil, fmt.Errorf("update record %s: %w", recordID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return NewRecord(recordID, tableID, cells), nil
}

func (s *SQLiteStore) requireTable(ctx context.Context, tableID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM store_tables WHERE id = ?;`, tableID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrTableNotFound, tableID)
	}
	if err != nil {
		return fmt.Errorf("lookup table %s: %w", tableID, err)
	}
	return nil
}

func (s *SQLiteStore) schema(ctx context.Context, tableID string) (map[string]FieldType, error) {
	fields, err := s.Fields(ctx, tableID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]FieldType, len(fields))
	for _, f := range fields {
		out[f.Name] = f.Type
	}
	return out, nil
}

func checkCells(schema map[string]FieldType, cells map[string]Value) error {
	for name, v := range cells {
		typ, ok := schema[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
		if !typ.Accepts(v) {
			return fmt.Errorf("%w: %s is %s, got %s", ErrFieldType, name, typ, v.Kind())
		}
	}
	return nil
}

func decodeCells(raw string) (map[string]Value, error) {
	cells := make(map[string]Value)
	if raw == "" {
		return cells, nil
	}
	if err := json.Unmarshal([]byte(raw), &cells); err != nil {
		return nil, fmt.Errorf("decode cells: %w", err)
	}
	return cells, nil
}

func nonNil(m map[string]Value) map[string]Value {
	if m == nil {
		return map[string]Value{}
	}
	return m
}

// timestampLayout is fixed width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func now() string {
	return time.Now().UTC().Format(timestampLayout)
}
