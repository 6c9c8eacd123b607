// Package sqlitecas stores blocks in a single SQLite database file.
package sqlitecas

import (
	"bytes"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ipfs/go-cid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"xdao.co/sidecast/cidutil"
	"xdao.co/sidecast/storage"
)

//go:generate go run xdao.co/sidecast/cmd/capgen -type CAS -caps storage.CAS,storage.Lister,storage.Sizer,storage.Pinner,storage.Closer

//go:embed schema.sql
var schema string

// CAS is a content-addressable store backed by one SQLite table.
//
// Blocks are keyed by their CID string. Pins live in the same row so a
// block and its pin state never disagree.
type CAS struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*CAS, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlitecas: path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitecas: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitecas: ping: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitecas: apply schema: %w", err)
	}
	return &CAS{db: db, path: cleanPath}, nil
}

// Path returns the database file path.
func (c *CAS) Path() string { return c.path }

func (c *CAS) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *CAS) Put(data []byte) (cid.Cid, error) {
	id, err := cidutil.Sum(data)
	if err != nil {
		return cid.Undef, err
	}
	if data == nil {
		data = []byte{}
	}

	_, err = c.db.Exec(`INSERT INTO blocks (cid, data, size) VALUES (?, ?, ?)`, id.String(), data, len(data))
	if err == nil {
		return id, nil
	}
	if !isUniqueViolation(err) {
		return cid.Undef, fmt.Errorf("sqlitecas: put: %w", err)
	}

	// Already stored: Put is idempotent as long as the bytes agree.
	existing, err := c.read(id)
	if err != nil {
		return cid.Undef, err
	}
	if !bytes.Equal(existing, data) {
		return cid.Undef, storage.ErrImmutable
	}
	return id, nil
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := c.read(id)
	if err != nil {
		return nil, err
	}
	if !cidutil.Matches(id, b) {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *CAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	var one int
	err := c.db.QueryRow(`SELECT 1 FROM blocks WHERE cid = ?`, id.String()).Scan(&one)
	return err == nil
}

func (c *CAS) List() ([]cid.Cid, error) {
	rows, err := c.db.Query(`SELECT cid FROM blocks ORDER BY cid`)
	if err != nil {
		return nil, fmt.Errorf("sqlitecas: list: %w", err)
	}
	defer rows.Close()

	var out []cid.Cid
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlitecas: list: %w", err)
		}
		id, err := cid.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("sqlitecas: list: %w", storage.ErrInvalidCID)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitecas: list: %w", err)
	}
	return out, nil
}

func (c *CAS) Size(id cid.Cid) (int64, error) {
	if !id.Defined() {
		return 0, storage.ErrInvalidCID
	}
	var n int64
	err := c.db.QueryRow(`SELECT size FROM blocks WHERE cid = ?`, id.String()).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("sqlitecas: size: %w", err)
	}
	return n, nil
}

// Pin marks a stored block as pinned. Pinning an absent block is ErrNotFound.
func (c *CAS) Pin(id cid.Cid) error {
	return c.setPinned(id, true)
}

// Unpin clears the pin. Unpinning an absent block is a no-op.
func (c *CAS) Unpin(id cid.Cid) error {
	err := c.setPinned(id, false)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

func (c *CAS) Pinned(id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, storage.ErrInvalidCID
	}
	var pinned bool
	err := c.db.QueryRow(`SELECT pinned FROM blocks WHERE cid = ?`, id.String()).Scan(&pinned)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlitecas: pinned: %w", err)
	}
	return pinned, nil
}

func (c *CAS) setPinned(id cid.Cid, pinned bool) error {
	if !id.Defined() {
		return storage.ErrInvalidCID
	}
	res, err := c.db.Exec(`UPDATE blocks SET pinned = ? WHERE cid = ?`, pinned, id.String())
	if err != nil {
		return fmt.Errorf("sqlitecas: pin: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlitecas: pin: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (c *CAS) read(id cid.Cid) ([]byte, error) {
	var b []byte
	err := c.db.QueryRow(`SELECT data FROM blocks WHERE cid = ?`, id.String()).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitecas: get: %w", err)
	}
	return b, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
