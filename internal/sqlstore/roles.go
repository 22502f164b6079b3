// Package sqlstore wraps the three SQL connection roles spec.md §5 requires
// every reader/writer in the core to respect: write-primary, read-primary
// and read-replica. Grounded on harness-Harness's gitrpc storage layer,
// which wires github.com/jmoiron/sqlx over github.com/go-sql-driver/mysql
// for exactly this kind of named, typed query surface; the sqlite driver
// (github.com/mattn/go-sqlite3, already an indirect teacher dependency) is
// used to exercise the same code path in tests without a live MySQL server.
package sqlstore

import (
	"context"

	"github.com/jmoiron/sqlx"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Freshness selects which role a read should use (spec.md §4.3).
type Freshness int

const (
	MaybeStale Freshness = iota
	MostRecent
)

// Roles holds the three connection roles a repo's SQL-backed stores are
// built on. WritePrimary is used for every write and must always be
// transactional; ReadPrimary and ReadReplica serve reads depending on the
// caller's requested Freshness.
type Roles struct {
	WritePrimary *sqlx.DB
	ReadPrimary  *sqlx.DB
	ReadReplica  *sqlx.DB
}

// OpenMySQL opens all three roles against (possibly distinct) MySQL DSNs,
// the production configuration.
func OpenMySQL(writePrimaryDSN, readPrimaryDSN, readReplicaDSN string) (*Roles, error) {
	wp, err := sqlx.Open("mysql", writePrimaryDSN)
	if err != nil {
		return nil, err
	}
	rp, err := sqlx.Open("mysql", readPrimaryDSN)
	if err != nil {
		return nil, err
	}
	rr, err := sqlx.Open("mysql", readReplicaDSN)
	if err != nil {
		return nil, err
	}
	return &Roles{WritePrimary: wp, ReadPrimary: rp, ReadReplica: rr}, nil
}

// OpenSQLiteForTests opens a single in-memory sqlite database and uses it
// for all three roles — adequate for unit tests that exercise read/write
// code paths without a live replica topology.
func OpenSQLiteForTests(dsn string) (*Roles, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // sqlite: avoid "database is locked" under concurrent access
	return &Roles{WritePrimary: db, ReadPrimary: db, ReadReplica: db}, nil
}

// Reader returns the connection to use for a read at the given freshness.
func (r *Roles) Reader(freshness Freshness) *sqlx.DB {
	if freshness == MaybeStale {
		return r.ReadReplica
	}
	return r.ReadPrimary
}

// Close closes all distinct underlying connections.
func (r *Roles) Close() error {
	seen := map[*sqlx.DB]bool{}
	var firstErr error
	for _, db := range []*sqlx.DB{r.WritePrimary, r.ReadPrimary, r.ReadReplica} {
		if db == nil || seen[db] {
			continue
		}
		seen[db] = true
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WithTx runs fn inside a transaction on WritePrimary, committing on
// success and rolling back on error or panic — the single-transaction
// boundary spec.md §4.2/§4.3 requires for multi-statement writes.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}
