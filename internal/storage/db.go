package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Aaron-Tawil/super-order-automation/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; one pooled connection keeps
	// concurrent claims serialized instead of surfacing SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS suppliers (
  code TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  globalId TEXT,
  email TEXT,
  additionalEmails TEXT NOT NULL DEFAULT '[]',
  phone TEXT,
  specialInstructions TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_suppliers_globalId ON suppliers(globalId);
CREATE INDEX IF NOT EXISTS idx_suppliers_email ON suppliers(email);

CREATE TABLE IF NOT EXISTS processed_messages (
  messageId TEXT PRIMARY KEY,
  status TEXT NOT NULL,
  createdAt TEXT NOT NULL,
  expiresAt TEXT NOT NULL,
  processedAt TEXT
);

CREATE TABLE IF NOT EXISTS messages (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  messageId TEXT,
  supplierCode TEXT,
  orders INTEGER NOT NULL DEFAULT 0,
  warnings INTEGER NOT NULL DEFAULT 0,
  costUsd REAL NOT NULL DEFAULT 0,
  timingsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) CreateSupplier(rec internal.SupplierRecord) error {
	extraJSON, _ := json.Marshal(rec.AdditionalEmails)
	result, err := d.conn.Exec(`
INSERT INTO suppliers (code, name, globalId, email, additionalEmails, phone, specialInstructions)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(code) DO NOTHING
`, rec.Code, rec.Name, rec.GlobalID, rec.Email, string(extraJSON), rec.Phone, rec.SpecialInstructions)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("supplier already exists: %s", rec.Code)
	}
	return nil
}

func (d *DB) GetSupplier(code string) (*internal.SupplierRecord, error) {
	var rec internal.SupplierRecord
	var extraJSON string
	err := d.conn.QueryRow(`
SELECT code, name, COALESCE(globalId,''), COALESCE(email,''), additionalEmails, COALESCE(phone,''), COALESCE(specialInstructions,'')
FROM suppliers WHERE code = ?
`, code).Scan(&rec.Code, &rec.Name, &rec.GlobalID, &rec.Email, &extraJSON, &rec.Phone, &rec.SpecialInstructions)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(extraJSON), &rec.AdditionalEmails)
	return &rec, nil
}

func (d *DB) ListSuppliers() ([]internal.SupplierRecord, error) {
	rows, err := d.conn.Query(`
SELECT code, name, COALESCE(globalId,''), COALESCE(email,''), additionalEmails, COALESCE(phone,''), COALESCE(specialInstructions,'')
FROM suppliers ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.SupplierRecord
	for rows.Next() {
		var rec internal.SupplierRecord
		var extraJSON string
		if err := rows.Scan(&rec.Code, &rec.Name, &rec.GlobalID, &rec.Email, &extraJSON, &rec.Phone, &rec.SpecialInstructions); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(extraJSON), &rec.AdditionalEmails)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (d *DB) UpdateSupplierInstructions(code, instructions string) error {
	result, err := d.conn.Exec(`
UPDATE suppliers SET specialInstructions = ?, updatedAt = CURRENT_TIMESTAMP WHERE code = ?
`, instructions, code)
	if err != nil {
		return err
	}
	return requireRow(result, code)
}

// SetSupplierGlobalIDIfEmpty writes the global id only when the record has
// none. Returns false when the field was already set.
func (d *DB) SetSupplierGlobalIDIfEmpty(code, globalID string) (bool, error) {
	result, err := d.conn.Exec(`
UPDATE suppliers SET globalId = ?, updatedAt = CURRENT_TIMESTAMP
WHERE code = ? AND (globalId IS NULL OR globalId = '')
`, globalID, code)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (d *DB) AppendSupplierEmail(code, email string) error {
	rec, err := d.GetSupplier(code)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("supplier not found: %s", code)
	}

	extra := append(rec.AdditionalEmails, email)
	extraJSON, _ := json.Marshal(extra)
	_, err = d.conn.Exec(`
UPDATE suppliers SET additionalEmails = ?, updatedAt = CURRENT_TIMESTAMP WHERE code = ?
`, string(extraJSON), code)
	return err
}

// TryCreateLock atomically creates the idempotency record for messageID.
// Returns true only when this caller created it.
func (d *DB) TryCreateLock(messageID string, now, expiresAt time.Time) (bool, error) {
	result, err := d.conn.Exec(`
INSERT INTO processed_messages (messageId, status, createdAt, expiresAt)
VALUES (?, 'PROCESSING', ?, ?)
ON CONFLICT(messageId) DO NOTHING
`, messageID, now.UTC().Format(time.RFC3339), expiresAt.UTC().Format(time.RFC3339))
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (d *DB) UpdateLockStatus(messageID, status string, processedAt time.Time) error {
	_, err := d.conn.Exec(`
UPDATE processed_messages SET status = ?, processedAt = ? WHERE messageId = ?
`, status, processedAt.UTC().Format(time.RFC3339), messageID)
	return err
}

func (d *DB) UpsertMessage(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.MessageRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO messages (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.MessageRow{}, err
	}

	row, err := d.GetMessageByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.MessageRow{}, err
	}
	if row == nil {
		return internal.MessageRow{}, errors.New("failed to upsert message")
	}
	return *row, nil
}

func (d *DB) GetMessageByProviderMessageID(provider, messageID string) (*internal.MessageRow, error) {
	var row internal.MessageRow
	err := d.conn.QueryRow(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM messages WHERE provider = ? AND messageId = ?
`, provider, messageID).Scan(
		&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListMessagesByStatus(status string, limit int) ([]internal.MessageRow, error) {
	rows, err := d.conn.Query(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM messages WHERE status = ? ORDER BY receivedAt ASC LIMIT ?
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.MessageRow
	for rows.Next() {
		var row internal.MessageRow
		if err := rows.Scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateMessageStatus(id int, status string) error {
	_, err := d.conn.Exec(`UPDATE messages SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	return err
}

func (d *DB) InsertRun(traceID, messageID, supplierCode string, orders, warnings int, costUsd float64, timings map[string]float64) error {
	timingsJSON, _ := json.Marshal(timings)
	_, err := d.conn.Exec(`
INSERT INTO runs (traceId, messageId, supplierCode, orders, warnings, costUsd, timingsJson)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, traceID, messageID, supplierCode, orders, warnings, costUsd, string(timingsJSON))
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func requireRow(result sql.Result, code string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("supplier not found: %s", code)
	}
	return nil
}
