package bookmarks

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/rivermark/scmcore/internal/sqlstore"
	"github.com/rivermark/scmcore/scmerr"
	"github.com/rivermark/scmcore/scmtypes"
)

// Store is the bookmark row + update log store of spec.md §4.3.
type Store struct {
	roles *sqlstore.Roles
	log   *logrus.Entry
}

func NewStore(roles *sqlstore.Roles, log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Store{roles: roles, log: log.WithField("component", "bookmarks")}
}

// EnsureSchema creates the backing tables if they do not already exist,
// using the DDL dialect matching WritePrimary's driver.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.roles.WritePrimary.ExecContext(ctx, SchemaFor(s.roles.WritePrimary.DriverName()))
	return scmerr.Wrap(err, "while ensuring bookmarks schema")
}

func (s *Store) reader(freshness Freshness) *sqlx.DB {
	if freshness == MaybeStale {
		return s.roles.Reader(sqlstore.MaybeStale)
	}
	return s.roles.Reader(sqlstore.MostRecent)
}

// Get returns the current changeset for a bookmark, or ok=false if the
// bookmark does not exist (spec.md §4.3).
func (s *Store) Get(ctx context.Context, repoId scmtypes.RepositoryId, name string, freshness Freshness) (scmtypes.ChangesetId, bool, error) {
	var cs string
	err := s.reader(freshness).QueryRowContext(ctx,
		`SELECT changeset_id FROM bookmarks WHERE repo_id = ? AND name = ?`, repoId, name,
	).Scan(&cs)
	switch {
	case err == sql.ErrNoRows:
		return scmtypes.ChangesetId{}, false, nil
	case err != nil:
		return scmtypes.ChangesetId{}, false, scmerr.Wrap(err, "while reading bookmark %q", name)
	}
	id, err := scmtypes.ChangesetIdFromHex(cs)
	return id, true, err
}

// List paginates bookmark rows by name (spec.md §4.3). kinds is an
// allow-list; an empty kinds matches every kind. pagination.After, when
// non-empty, restricts results to names strictly greater than it.
// limit <= 0 means unlimited.
func (s *Store) List(ctx context.Context, repoId scmtypes.RepositoryId, freshness Freshness, prefix string, kinds []Kind, pagination Pagination, limit int64) ([]Bookmark, error) {
	return s.list(ctx, repoId, freshness, prefix, kinds, pagination, limit, true)
}

// ListPublishing is List restricted to the publishing kinds
// (PullDefaultPublishing, PublishingNotPullDefault) — sugar over kinds,
// supplemented from
// original_source/eden/mononoke/bookmarks/dbbookmarks/src/store.rs's
// only_publishing convenience filter.
func (s *Store) ListPublishing(ctx context.Context, repoId scmtypes.RepositoryId, freshness Freshness, prefix string, pagination Pagination, limit int64) ([]Bookmark, error) {
	return s.list(ctx, repoId, freshness, prefix, []Kind{PullDefaultPublishing, PublishingNotPullDefault}, pagination, limit, true)
}

// ListUnordered is the "explicit unordered query path" spec.md §4.3
// names for the limit=MAX, pagination=FromStart case, where dropping the
// ORDER BY is allowed for throughput.
func (s *Store) ListUnordered(ctx context.Context, repoId scmtypes.RepositoryId, freshness Freshness, prefix string, kinds []Kind) ([]Bookmark, error) {
	return s.list(ctx, repoId, freshness, prefix, kinds, FromStart, 0, false)
}

func (s *Store) list(ctx context.Context, repoId scmtypes.RepositoryId, freshness Freshness, prefix string, kinds []Kind, pagination Pagination, limit int64, ordered bool) ([]Bookmark, error) {
	var b strings.Builder
	b.WriteString(`SELECT repo_id, name, hg_kind, changeset_id, log_id FROM bookmarks WHERE repo_id = ?`)
	args := []interface{}{repoId}

	if prefix != "" {
		b.WriteString(` AND name >= ? AND name < ?`)
		args = append(args, prefix, prefixUpperBound(prefix))
	}
	if pagination.After != "" {
		b.WriteString(` AND name > ?`)
		args = append(args, pagination.After)
	}
	if len(kinds) > 0 {
		placeholders := make([]string, len(kinds))
		for i, k := range kinds {
			placeholders[i] = "?"
			args = append(args, k.String())
		}
		b.WriteString(` AND hg_kind IN (` + strings.Join(placeholders, ",") + `)`)
	}
	if ordered {
		b.WriteString(` ORDER BY name ASC`)
	}
	if limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}

	db := s.reader(freshness)
	rows, err := db.QueryxContext(ctx, db.Rebind(b.String()), args...)
	if err != nil {
		return nil, scmerr.Wrap(err, "while listing bookmarks")
	}
	defer rows.Close()

	var out []Bookmark
	for rows.Next() {
		bm, err := scanBookmark(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, bm)
	}
	return out, scmerr.Wrap(rows.Err(), "while scanning bookmark rows")
}

// prefixUpperBound returns the smallest string greater than every string
// that has prefix as a prefix, letting a half-open range (>= prefix, <
// bound) stand in for a LIKE "prefix%" query without relying on
// driver-specific wildcard-escaping rules.
func prefixUpperBound(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return string(append(b, 0xff))
}

func scanBookmark(rows *sqlx.Rows) (Bookmark, error) {
	var repoId scmtypes.RepositoryId
	var name, kind, cs string
	var logId sql.NullInt64
	if err := rows.Scan(&repoId, &name, &kind, &cs, &logId); err != nil {
		return Bookmark{}, err
	}
	id, err := scmtypes.ChangesetIdFromHex(cs)
	if err != nil {
		return Bookmark{}, err
	}
	bm := Bookmark{RepoId: repoId, Name: name, HgKind: parseKind(kind), ChangesetId: id}
	if logId.Valid {
		v := logId.Int64
		bm.LogId = &v
	}
	return bm, nil
}

// ListBookmarkLogEntries returns up to max log rows for (repoId, name),
// most-recent-first, optionally skipping offset rows (spec.md §4.3).
func (s *Store) ListBookmarkLogEntries(ctx context.Context, repoId scmtypes.RepositoryId, name string, max int64, offset *int64, freshness Freshness) ([]LogEntry, error) {
	query := `SELECT id, repo_id, name, to_changeset_id, from_changeset_id, reason, timestamp
	          FROM bookmarks_update_log WHERE repo_id = ? AND name = ? ORDER BY id DESC LIMIT ?`
	args := []interface{}{repoId, name, max}
	if offset != nil {
		query += ` OFFSET ?`
		args = append(args, *offset)
	}
	return s.queryLogEntries(ctx, s.reader(freshness), query, args...)
}

// ListBookmarkLogEntriesTsInRange is a replica-only read (spec.md §4.3).
func (s *Store) ListBookmarkLogEntriesTsInRange(ctx context.Context, repoId scmtypes.RepositoryId, name string, max int64, minTs, maxTs time.Time) ([]LogEntry, error) {
	query := `SELECT id, repo_id, name, to_changeset_id, from_changeset_id, reason, timestamp
	          FROM bookmarks_update_log
	          WHERE repo_id = ? AND name = ? AND timestamp >= ? AND timestamp <= ?
	          ORDER BY id DESC LIMIT ?`
	return s.queryLogEntries(ctx, s.roles.Reader(sqlstore.MaybeStale), query,
		repoId, name, minTs.Unix(), maxTs.Unix(), max)
}

func (s *Store) queryLogEntries(ctx context.Context, db *sqlx.DB, query string, args ...interface{}) ([]LogEntry, error) {
	rows, err := db.QueryxContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return nil, scmerr.Wrap(err, "while reading bookmark log entries")
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, scmerr.Wrap(rows.Err(), "while scanning bookmark log entries")
}

func scanLogEntry(rows *sqlx.Rows) (LogEntry, error) {
	var id int64
	var repoId scmtypes.RepositoryId
	var name, reason string
	var to, from sql.NullString
	var ts int64
	if err := rows.Scan(&id, &repoId, &name, &to, &from, &reason, &ts); err != nil {
		return LogEntry{}, err
	}
	e := LogEntry{Id: id, RepoId: repoId, Name: name, Reason: parseReason(reason), Timestamp: time.Unix(ts, 0).UTC()}
	if to.Valid {
		csid, err := scmtypes.ChangesetIdFromHex(to.String)
		if err != nil {
			return LogEntry{}, err
		}
		e.ToChangesetId = &csid
	}
	if from.Valid {
		csid, err := scmtypes.ChangesetIdFromHex(from.String)
		if err != nil {
			return LogEntry{}, err
		}
		e.FromChangesetId = &csid
	}
	return e, nil
}

// CountFurtherBookmarkLogEntries counts rows with id > minId, optionally
// excluding one reason (spec.md §4.3). The underlying COUNT(*) query
// always yields exactly one row; a driver that somehow returns none is
// treated as scmerr.ErrNoRowsExpected.
func (s *Store) CountFurtherBookmarkLogEntries(ctx context.Context, repoId scmtypes.RepositoryId, name string, minId int64, excludeReason *Reason) (int64, error) {
	query := `SELECT COUNT(*) FROM bookmarks_update_log WHERE repo_id = ? AND name = ? AND id > ?`
	args := []interface{}{repoId, name, minId}
	if excludeReason != nil {
		query += ` AND reason != ?`
		args = append(args, excludeReason.String())
	}
	db := s.roles.Reader(sqlstore.MaybeStale)
	var count int64
	err := db.QueryRowContext(ctx, db.Rebind(query), args...).Scan(&count)
	switch {
	case err == sql.ErrNoRows:
		return 0, scmerr.ErrNoRowsExpected
	case err != nil:
		return 0, scmerr.Wrap(err, "while counting further bookmark log entries")
	}
	return count, nil
}

// CountFurtherBookmarkLogEntriesByReason is the grouped variant of
// CountFurtherBookmarkLogEntries (spec.md §4.3).
func (s *Store) CountFurtherBookmarkLogEntriesByReason(ctx context.Context, repoId scmtypes.RepositoryId, name string, minId int64) (map[Reason]int64, error) {
	db := s.roles.Reader(sqlstore.MaybeStale)
	rows, err := db.QueryxContext(ctx, db.Rebind(
		`SELECT reason, COUNT(*) FROM bookmarks_update_log WHERE repo_id = ? AND name = ? AND id > ?
		 GROUP BY reason`), repoId, name, minId)
	if err != nil {
		return nil, scmerr.Wrap(err, "while counting further bookmark log entries by reason")
	}
	defer rows.Close()

	out := map[Reason]int64{}
	for rows.Next() {
		var reason string
		var count int64
		if err := rows.Scan(&reason, &count); err != nil {
			return nil, err
		}
		out[parseReason(reason)] = count
	}
	return out, scmerr.Wrap(rows.Err(), "while scanning grouped bookmark log counts")
}

// SkipOverBookmarkLogEntriesWithReason returns the largest log id that is
// still part of the contiguous run of entries with id > minId and the
// given reason, starting right after minId — i.e. the id immediately
// before the first entry (by id) that breaks the run (spec.md §4.3, §8
// scenario 4). Returns ok=false if no entry with id > minId has the
// given reason before the run breaks.
func (s *Store) SkipOverBookmarkLogEntriesWithReason(ctx context.Context, repoId scmtypes.RepositoryId, name string, minId int64, reason Reason) (int64, bool, error) {
	db := s.roles.Reader(sqlstore.MaybeStale)

	var boundary sql.NullInt64
	err := db.QueryRowContext(ctx, db.Rebind(
		`SELECT MIN(id) FROM bookmarks_update_log WHERE repo_id = ? AND name = ? AND id > ? AND reason != ?`),
		repoId, name, minId, reason.String(),
	).Scan(&boundary)
	if err != nil {
		return 0, false, scmerr.Wrap(err, "while finding skip-over boundary")
	}

	query := `SELECT MAX(id) FROM bookmarks_update_log WHERE repo_id = ? AND name = ? AND id > ? AND reason = ?`
	args := []interface{}{repoId, name, minId, reason.String()}
	if boundary.Valid {
		query += ` AND id < ?`
		args = append(args, boundary.Int64)
	}
	var result sql.NullInt64
	if err := db.QueryRowContext(ctx, db.Rebind(query), args...).Scan(&result); err != nil {
		return 0, false, scmerr.Wrap(err, "while finding skip-over result")
	}
	if !result.Valid {
		return 0, false, nil
	}
	return result.Int64, true, nil
}

// ReadNextBookmarkLogEntries reads up to limit rows with id > minId,
// ordered by id ascending (spec.md §4.3).
func (s *Store) ReadNextBookmarkLogEntries(ctx context.Context, repoId scmtypes.RepositoryId, minId int64, limit int64, freshness Freshness) ([]LogEntry, error) {
	query := `SELECT id, repo_id, name, to_changeset_id, from_changeset_id, reason, timestamp
	          FROM bookmarks_update_log WHERE repo_id = ? AND id > ? ORDER BY id ASC LIMIT ?`
	return s.queryLogEntries(ctx, s.reader(freshness), query, repoId, minId, limit)
}

// ReadNextBookmarkLogEntriesSameBookmarkAndReason reads up to limit rows
// with id > minId, then trims the result to the contiguous prefix
// sharing the first row's (name, reason) (spec.md §4.3).
func (s *Store) ReadNextBookmarkLogEntriesSameBookmarkAndReason(ctx context.Context, repoId scmtypes.RepositoryId, minId int64, limit int64) ([]LogEntry, error) {
	entries, err := s.ReadNextBookmarkLogEntries(ctx, repoId, minId, limit, MaybeStale)
	if err != nil || len(entries) == 0 {
		return entries, err
	}
	name, reason := entries[0].Name, entries[0].Reason
	for i, e := range entries {
		if e.Name != name || e.Reason != reason {
			return entries[:i], nil
		}
	}
	return entries, nil
}

// GetLargestLogId returns the highest log id recorded for repoId, used
// by BookmarksSubscription to bootstrap a cursor without scanning
// history (supplemented from
// original_source/eden/mononoke/bookmarks/dbbookmarks/src/store.rs).
func (s *Store) GetLargestLogId(ctx context.Context, repoId scmtypes.RepositoryId) (int64, bool, error) {
	db := s.roles.Reader(sqlstore.MostRecent)
	var id sql.NullInt64
	err := db.QueryRowContext(ctx, db.Rebind(
		`SELECT MAX(id) FROM bookmarks_update_log WHERE repo_id = ?`), repoId,
	).Scan(&id)
	if err != nil {
		return 0, false, scmerr.Wrap(err, "while reading largest bookmark log id")
	}
	if !id.Valid {
		return 0, false, nil
	}
	return id.Int64, true, nil
}
