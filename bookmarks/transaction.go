package bookmarks

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rivermark/scmcore/internal/sqlstore"
	"github.com/rivermark/scmcore/scmerr"
	"github.com/rivermark/scmcore/scmtypes"
)

type opKind int

const (
	opCreate opKind = iota
	opUpdate
	opDelete
	opForceSet
)

type txOp struct {
	kind        opKind
	name        string
	to          *scmtypes.ChangesetId
	expectedOld *scmtypes.ChangesetId
}

// CASError reports that a BookmarkTransaction op's compare-and-swap
// precondition did not hold against the row actually stored.
type CASError struct {
	Name            string
	Expected, Found *scmtypes.ChangesetId
}

func (e *CASError) Error() string {
	return fmt.Sprintf("bookmark %q: expected old value %s, found %s", e.Name, fmtCsPtr(e.Expected), fmtCsPtr(e.Found))
}

func fmtCsPtr(c *scmtypes.ChangesetId) string {
	if c == nil {
		return "<absent>"
	}
	return c.String()
}

// BookmarkTransaction accumulates create/update/delete/force-set
// operations and commits them atomically (spec.md §4.3): on commit, for
// each modified bookmark a log row is appended and the bookmark row
// updated to reference that log id. Any CAS violation rolls the whole
// transaction back.
type BookmarkTransaction struct {
	store  *Store
	repoId scmtypes.RepositoryId
	ops    []txOp
}

func (s *Store) NewTransaction(repoId scmtypes.RepositoryId) *BookmarkTransaction {
	return &BookmarkTransaction{store: s, repoId: repoId}
}

// Create adds a bookmark that must not already exist.
func (t *BookmarkTransaction) Create(name string, to scmtypes.ChangesetId) {
	t.ops = append(t.ops, txOp{kind: opCreate, name: name, to: &to})
}

// Update moves an existing bookmark, guarded by expectedOld.
func (t *BookmarkTransaction) Update(name string, to, expectedOld scmtypes.ChangesetId) {
	t.ops = append(t.ops, txOp{kind: opUpdate, name: name, to: &to, expectedOld: &expectedOld})
}

// Delete removes a bookmark, guarded by expectedOld.
func (t *BookmarkTransaction) Delete(name string, expectedOld scmtypes.ChangesetId) {
	t.ops = append(t.ops, txOp{kind: opDelete, name: name, expectedOld: &expectedOld})
}

// ForceSet sets a bookmark to the given value unconditionally, creating
// it if absent.
func (t *BookmarkTransaction) ForceSet(name string, to scmtypes.ChangesetId) {
	t.ops = append(t.ops, txOp{kind: opForceSet, name: name, to: &to})
}

// Commit applies every accumulated op atomically. reason is recorded on
// every log row this commit appends; now is the log row timestamp.
func (t *BookmarkTransaction) Commit(ctx context.Context, reason Reason, now time.Time) error {
	if len(t.ops) == 0 {
		return nil
	}
	err := t.store.commitTx(ctx, t.repoId, t.ops, reason, now)
	return scmerr.Wrap(err, "while committing bookmark transaction")
}

func (s *Store) commitTx(ctx context.Context, repoId scmtypes.RepositoryId, ops []txOp, reason Reason, now time.Time) error {
	return sqlstore.WithTx(ctx, s.roles.WritePrimary, func(tx *sqlx.Tx) error {
		for _, op := range ops {
			if err := applyOp(ctx, tx, repoId, op, reason, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func applyOp(ctx context.Context, tx *sqlx.Tx, repoId scmtypes.RepositoryId, op txOp, reason Reason, now time.Time) error {
	var current sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT changeset_id FROM bookmarks WHERE repo_id = ? AND name = ?`, repoId, op.name,
	).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	exists := err == nil

	var currentId *scmtypes.ChangesetId
	if exists {
		id, parseErr := scmtypes.ChangesetIdFromHex(current.String)
		if parseErr != nil {
			return parseErr
		}
		currentId = &id
	}

	switch op.kind {
	case opCreate:
		if exists {
			return &CASError{Name: op.name, Expected: nil, Found: currentId}
		}
	case opUpdate, opDelete:
		if !csEqualPtr(currentId, op.expectedOld) {
			return &CASError{Name: op.name, Expected: op.expectedOld, Found: currentId}
		}
	case opForceSet:
		// no precondition
	}

	logId, err := insertLogRow(ctx, tx, repoId, op, currentId, reason, now)
	if err != nil {
		return err
	}

	switch op.kind {
	case opDelete:
		_, err = tx.ExecContext(ctx, `DELETE FROM bookmarks WHERE repo_id = ? AND name = ?`, repoId, op.name)
	default:
		if exists {
			_, err = tx.ExecContext(ctx,
				`UPDATE bookmarks SET changeset_id = ?, log_id = ? WHERE repo_id = ? AND name = ?`,
				op.to.String(), logId, repoId, op.name)
		} else {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO bookmarks (repo_id, name, hg_kind, changeset_id, log_id) VALUES (?, ?, ?, ?, ?)`,
				repoId, op.name, Scratch.String(), op.to.String(), logId)
		}
	}
	return err
}

func insertLogRow(ctx context.Context, tx *sqlx.Tx, repoId scmtypes.RepositoryId, op txOp, currentId *scmtypes.ChangesetId, reason Reason, now time.Time) (int64, error) {
	var toStr, fromStr sql.NullString
	if op.to != nil {
		toStr = sql.NullString{String: op.to.String(), Valid: true}
	}
	if currentId != nil {
		fromStr = sql.NullString{String: currentId.String(), Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO bookmarks_update_log (repo_id, name, to_changeset_id, from_changeset_id, reason, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		repoId, op.name, toStr, fromStr, reason.String(), now.Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func csEqualPtr(a, b *scmtypes.ChangesetId) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
