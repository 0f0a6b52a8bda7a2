package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"

	"ftmgraph/internal/export"
)

// ── Disk key sets ──────────────────────────────────────────
// Identity keys of a run kept in a scratch SQLite file instead of
// memory. Inserts are batched into transactions; the file is private
// to one run and removed on Close, so durability pragmas are off.

const keyBatchSize = 10000

// DiskKeySets stores the identity keys of every label of one run.
type DiskKeySets struct {
	path string
	conn *sql.DB

	mu      sync.Mutex
	tx      *sql.Tx
	insert  *sql.Stmt
	pending int
	closed  bool
}

// OpenDiskKeySets creates a scratch key database inside dir.
func OpenDiskKeySets(dir string) (*DiskKeySets, error) {
	f, err := os.CreateTemp(dir, ".keys-*.db")
	if err != nil {
		return nil, fmt.Errorf("create key db: %w", err)
	}
	path := f.Name()
	f.Close()

	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(OFF)&_pragma=synchronous(OFF)")
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("open key db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS keys (
		label TEXT NOT NULL,
		digest BLOB NOT NULL,
		PRIMARY KEY (label, digest)
	) WITHOUT ROWID`); err != nil {
		conn.Close()
		os.Remove(path)
		return nil, fmt.Errorf("create key table: %w", err)
	}
	return &DiskKeySets{path: path, conn: conn}, nil
}

// Opener adapts OpenDiskKeySets to the engine's disk key hook.
func Opener(dir string) (export.KeySetFactory, func() error, error) {
	k, err := OpenDiskKeySets(dir)
	if err != nil {
		return nil, nil, err
	}
	return k.Factory(), k.Close, nil
}

// Factory returns a key set factory backed by this database.
func (k *DiskKeySets) Factory() export.KeySetFactory {
	return func(label string) (export.KeySet, error) {
		return &diskKeySet{db: k, label: label}, nil
	}
}

type diskKeySet struct {
	db    *DiskKeySets
	label string
}

func (s *diskKeySet) Add(key string) (bool, error) {
	return s.db.add(s.label, key)
}

func (k *DiskKeySets) add(label, key string) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return false, errors.New("key db closed")
	}
	if k.tx == nil {
		tx, err := k.conn.Begin()
		if err != nil {
			return false, fmt.Errorf("begin key batch: %w", err)
		}
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO keys (label, digest) VALUES (?, ?)`)
		if err != nil {
			tx.Rollback()
			return false, fmt.Errorf("prepare key insert: %w", err)
		}
		k.tx, k.insert = tx, stmt
	}

	d := export.KeyDigest(key)
	res, err := k.insert.Exec(label, d[:])
	if err != nil {
		return false, fmt.Errorf("insert key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	k.pending++
	if k.pending >= keyBatchSize {
		if err := k.commitLocked(); err != nil {
			return false, err
		}
	}
	return n == 1, nil
}

func (k *DiskKeySets) commitLocked() error {
	if k.tx == nil {
		return nil
	}
	k.insert.Close()
	err := k.tx.Commit()
	k.tx, k.insert, k.pending = nil, nil, 0
	if err != nil {
		return fmt.Errorf("commit key batch: %w", err)
	}
	return nil
}

// Len returns the number of keys stored for label.
func (k *DiskKeySets) Len(label string) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.commitLocked(); err != nil {
		return 0, err
	}
	var n int
	err := k.conn.QueryRow(`SELECT COUNT(*) FROM keys WHERE label = ?`, label).Scan(&n)
	return n, err
}

// Close releases the database and deletes its file.
func (k *DiskKeySets) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true

	if k.tx != nil {
		k.insert.Close()
		k.tx.Rollback()
		k.tx, k.insert = nil, nil
	}
	err := k.conn.Close()
	if rerr := os.Remove(k.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) && err == nil {
		err = rerr
	}
	return err
}
