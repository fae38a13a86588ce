package metamap

import (
	"crypto/sha1"
	"database/sql"
	"fmt"
	"io"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// Cache remembers compiled maps so unchanged sources are not compiled again.
// Entries are keyed by the SHA-1 of the source document and the options it
// was compiled with.
type Cache struct {
	db *sql.DB
}

// NewCache opens or creates the cache database in file.
func NewCache(file string) (*Cache, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_busy_timeout=5000", file))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS artifact (id INTEGER PRIMARY KEY NOT NULL, sha1 TEXT NOT NULL UNIQUE, map BLOB NOT NULL)"); err != nil {
		db.Close()
		return nil, err
	}

	return &Cache{
		db: db,
	}, nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Key returns the cache key for the source read from r compiled with the
// given options.
func Key(r io.Reader, options ...string) (string, error) {
	h := sha1.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	for _, o := range options {
		fmt.Fprintf(h, "\x00%s", o)
	}
	return fmt.Sprintf("%X", h.Sum(nil)), nil
}

// KeyFile is like Key but reads the source from file.
func KeyFile(file string, options ...string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return Key(f, options...)
}

// Lookup returns the compiled map artifact stored under key, or nil if
// there is none.
func (c *Cache) Lookup(key string) ([]byte, error) {
	var b []byte
	switch err := c.db.QueryRow("SELECT map FROM artifact WHERE sha1 = ?", key).Scan(&b); err {
	case sql.ErrNoRows:
		return nil, nil
	case nil:
		return b, nil
	default:
		return nil, err
	}
}

// Store saves the compiled map artifact b under key, replacing any
// previous entry.
func (c *Cache) Store(key string, b []byte) error {
	if _, err := c.db.Exec("INSERT OR REPLACE INTO artifact (sha1, map) VALUES (?, ?)", key, b); err != nil {
		return err
	}
	return nil
}

// Len returns the number of entries in the cache.
func (c *Cache) Len() (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM artifact").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Purge removes every entry from the cache.
func (c *Cache) Purge() error {
	_, err := c.db.Exec("DELETE FROM artifact")
	return err
}
