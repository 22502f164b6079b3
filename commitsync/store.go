package commitsync

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/rivermark/scmcore/internal/sqlstore"
	"github.com/rivermark/scmcore/scmerr"
	"github.com/rivermark/scmcore/scmtypes"
)

// Mapping is the durable, transactional synced-commit mapping store of
// spec.md §4.2, backed by internal/sqlstore's three SQL roles and a
// per-(source,target)-pair read-through Coalescer.
type Mapping struct {
	roles      *sqlstore.Roles
	log        *logrus.Entry
	coalMu     sync.RWMutex
	coalescers map[pairKey]*Coalescer
	window     time.Duration
}

// NewMapping constructs a Mapping over the given SQL roles. window is the
// coalescing accumulation window passed to each pair's Coalescer.
func NewMapping(roles *sqlstore.Roles, log *logrus.Entry, window time.Duration) *Mapping {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Mapping{
		roles:      roles,
		log:        log.WithField("component", "commitsync"),
		coalescers: map[pairKey]*Coalescer{},
		window:     window,
	}
}

// EnsureSchema creates the backing tables if they do not already exist,
// using the DDL dialect matching WritePrimary's driver.
func (m *Mapping) EnsureSchema(ctx context.Context) error {
	_, err := m.roles.WritePrimary.ExecContext(ctx, SchemaFor(m.roles.WritePrimary.DriverName()))
	return scmerr.Wrap(err, "while ensuring commitsync schema")
}

func (m *Mapping) coalescerFor(source, target scmtypes.RepositoryId) *Coalescer {
	key := pairKey{Source: source, Target: target}
	m.coalMu.RLock()
	c, ok := m.coalescers[key]
	m.coalMu.RUnlock()
	if ok {
		return c
	}
	m.coalMu.Lock()
	defer m.coalMu.Unlock()
	if c, ok := m.coalescers[key]; ok {
		return c
	}
	c = NewCoalescer(m.window)
	m.coalescers[key] = c
	return c
}

// Add inserts entry's mapping row, large-repo version row (if
// VersionName is set) and equivalence row in one transaction (spec.md
// §4.2, §5). It returns true if a new mapping row was inserted, false if
// an identical row already existed. A conflicting VersionName for an
// already-recorded large commit fails with
// *scmerr.InconsistentLargeRepoCommitVersionError.
func (m *Mapping) Add(ctx context.Context, entry MappingEntry) (bool, error) {
	inserted := false
	err := sqlstore.WithTx(ctx, m.roles.WritePrimary, func(tx *sqlx.Tx) error {
		var err error
		inserted, err = insertMappingTx(ctx, tx, entry)
		return err
	})
	return inserted, scmerr.Wrap(err, "while adding synced commit mapping")
}

// AddBulk inserts every entry transactionally (spec.md §4.2: "add_bulk —
// ... returns the count of newly inserted mapping rows"). All entries
// commit together or none do.
func (m *Mapping) AddBulk(ctx context.Context, entries []MappingEntry) (int, error) {
	count := 0
	err := sqlstore.WithTx(ctx, m.roles.WritePrimary, func(tx *sqlx.Tx) error {
		for _, e := range entries {
			inserted, err := insertMappingTx(ctx, tx, e)
			if err != nil {
				return err
			}
			if inserted {
				count++
			}
		}
		return nil
	})
	return count, scmerr.Wrap(err, "while adding synced commit mappings in bulk")
}

func insertMappingTx(ctx context.Context, tx *sqlx.Tx, e MappingEntry) (bool, error) {
	var existingSmall, existingVersion, existingSource sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT small_bcs_id, sync_map_version_name, source_repo FROM synced_commit_mapping
		 WHERE large_repo_id = ? AND large_bcs_id = ? AND small_repo_id = ?`,
		e.LargeRepoId, e.LargeBcsId.String(), e.SmallRepoId,
	).Scan(&existingSmall, &existingVersion, &existingSource)
	switch {
	case err == nil:
		if existingSmall.String != e.SmallBcsId.String() {
			existingId, parseErr := scmtypes.ChangesetIdFromHex(existingSmall.String)
			if parseErr != nil {
				return false, parseErr
			}
			wanted := e.SmallBcsId
			return false, &scmerr.InconsistentWorkingCopyEntryError{Expected: &existingId, Actual: &wanted}
		}
		if e.VersionName != nil && existingVersion.Valid && existingVersion.String != *e.VersionName {
			return false, &scmerr.InconsistentLargeRepoCommitVersionError{
				Expected: existingVersion.String, Actual: *e.VersionName,
			}
		}
		if e.SourceRepo != SourceUnknown && existingSource.Valid && existingSource.String != e.SourceRepo.String() {
			return false, &scmerr.InconsistentSourceRepoError{
				Expected: existingSource.String, Actual: e.SourceRepo.String(),
			}
		}
		return false, nil // identical row already present: no-op
	case err != sql.ErrNoRows:
		return false, err
	}

	versionExists, err := checkLargeRepoVersionTx(ctx, tx, e.LargeRepoId, e.LargeBcsId, e.VersionName)
	if err != nil {
		return false, err
	}

	var versionName, sourceRepo sql.NullString
	if e.VersionName != nil {
		versionName = sql.NullString{String: *e.VersionName, Valid: true}
	}
	if e.SourceRepo != SourceUnknown {
		sourceRepo = sql.NullString{String: e.SourceRepo.String(), Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO synced_commit_mapping
		 (large_repo_id, large_bcs_id, small_repo_id, small_bcs_id, sync_map_version_name, source_repo)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.LargeRepoId, e.LargeBcsId.String(), e.SmallRepoId, e.SmallBcsId.String(), versionName, sourceRepo,
	)
	if err != nil {
		return false, err
	}
	mappingID, err := res.LastInsertId()
	if err != nil {
		return false, err
	}

	if e.VersionName != nil && !versionExists {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO version_for_large_repo_commit (large_repo_id, large_bcs_id, sync_map_version_name)
			 VALUES (?, ?, ?)`,
			e.LargeRepoId, e.LargeBcsId.String(), *e.VersionName,
		); err != nil {
			return false, err
		}
	}

	smallBcsId := e.SmallBcsId
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO synced_working_copy_equivalence
		 (mapping_id, large_repo_id, large_bcs_id, small_repo_id, small_bcs_id, sync_map_version_name)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		mappingID, e.LargeRepoId, e.LargeBcsId.String(), e.SmallRepoId, smallBcsId.String(), versionName,
	); err != nil {
		return false, err
	}

	return true, nil
}

func checkLargeRepoVersionTx(ctx context.Context, tx *sqlx.Tx, largeRepoId scmtypes.RepositoryId, largeBcsId scmtypes.ChangesetId, versionName *string) (bool, error) {
	if versionName == nil {
		return false, nil
	}
	var existing string
	err := tx.QueryRowContext(ctx,
		`SELECT sync_map_version_name FROM version_for_large_repo_commit WHERE large_repo_id = ? AND large_bcs_id = ?`,
		largeRepoId, largeBcsId.String(),
	).Scan(&existing)
	switch {
	case err == nil:
		if existing != *versionName {
			return false, &scmerr.InconsistentLargeRepoCommitVersionError{Expected: existing, Actual: *versionName}
		}
		return true, nil
	case err == sql.ErrNoRows:
		return false, nil
	default:
		return false, err
	}
}

// GetMany returns, for each input id, every known target commit with its
// version/provenance (spec.md §4.2). The replica is queried first; ids
// not found there are re-queried against the primary. Concurrent callers
// for the same (source, target) pair are batched by the pair's Coalescer.
func (m *Mapping) GetMany(ctx context.Context, source, target scmtypes.RepositoryId, bcsIds []scmtypes.ChangesetId) (map[scmtypes.ChangesetId][]FetchedEntry, error) {
	coalescer := m.coalescerFor(source, target)
	replicaResults, err := coalescer.Dispatch(ctx, source, target, bcsIds, func(ctx context.Context, ids []scmtypes.ChangesetId) (map[scmtypes.ChangesetId][]FetchedEntry, error) {
		return m.queryManyDirect(ctx, m.roles.Reader(sqlstore.MaybeStale), source, target, idsToHex(ids))
	})
	if err != nil {
		return nil, scmerr.Wrap(err, "while reading synced commit mapping from replica")
	}

	missing := missingIds(bcsIds, replicaResults)
	if len(missing) == 0 {
		return replicaResults, nil
	}

	primaryResults, err := m.queryManyDirect(ctx, m.roles.ReadPrimary, source, target, idsToHex(missing))
	if err != nil {
		return nil, scmerr.Wrap(err, "while escalating synced commit mapping read to primary")
	}
	for id, entries := range primaryResults {
		replicaResults[id] = entries
	}
	return replicaResults, nil
}

// GetManyMaybeStale is GetMany restricted to the replica; it never
// escalates to the primary on a miss (spec.md §4.2).
func (m *Mapping) GetManyMaybeStale(ctx context.Context, source, target scmtypes.RepositoryId, bcsIds []scmtypes.ChangesetId) (map[scmtypes.ChangesetId][]FetchedEntry, error) {
	coalescer := m.coalescerFor(source, target)
	results, err := coalescer.Dispatch(ctx, source, target, bcsIds, func(ctx context.Context, ids []scmtypes.ChangesetId) (map[scmtypes.ChangesetId][]FetchedEntry, error) {
		return m.queryManyDirect(ctx, m.roles.Reader(sqlstore.MaybeStale), source, target, idsToHex(ids))
	})
	return results, scmerr.Wrap(err, "while reading synced commit mapping (maybe-stale)")
}

func missingIds(requested []scmtypes.ChangesetId, found map[scmtypes.ChangesetId][]FetchedEntry) []scmtypes.ChangesetId {
	var missing []scmtypes.ChangesetId
	for _, id := range requested {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func idsToHex(ids []scmtypes.ChangesetId) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func (m *Mapping) queryManyDirect(ctx context.Context, db *sqlx.DB, source, target scmtypes.RepositoryId, idStrs []string) (map[scmtypes.ChangesetId][]FetchedEntry, error) {
	out := map[scmtypes.ChangesetId][]FetchedEntry{}
	if len(idStrs) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(
		`SELECT large_bcs_id, small_bcs_id, large_repo_id, small_repo_id, sync_map_version_name, source_repo
		 FROM synced_commit_mapping
		 WHERE ((large_repo_id = ? AND small_repo_id = ? AND large_bcs_id IN (?))
		     OR (large_repo_id = ? AND small_repo_id = ? AND small_bcs_id IN (?)))`,
		source, target, idStrs,
		target, source, idStrs,
	)
	if err != nil {
		return nil, err
	}
	query = db.Rebind(query)
	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var largeBcs, smallBcs string
		var largeRepo, smallRepo scmtypes.RepositoryId
		var versionName, sourceRepo sql.NullString
		if err := rows.Scan(&largeBcs, &smallBcs, &largeRepo, &smallRepo, &versionName, &sourceRepo); err != nil {
			return nil, err
		}
		largeId, err := scmtypes.ChangesetIdFromHex(largeBcs)
		if err != nil {
			return nil, err
		}
		smallId, err := scmtypes.ChangesetIdFromHex(smallBcs)
		if err != nil {
			return nil, err
		}

		var requested, found scmtypes.ChangesetId
		if largeRepo == source {
			requested, found = largeId, smallId
		} else {
			requested, found = smallId, largeId
		}

		var vn *string
		if versionName.Valid {
			v := versionName.String
			vn = &v
		}
		out[requested] = append(out[requested], FetchedEntry{
			ChangesetId: found,
			VersionName: vn,
			SourceRepo:  parseSourceRepo(sourceRepo.String),
		})
	}
	return out, rows.Err()
}

// InsertEquivalentWorkingCopy inserts an equivalence row. If a row
// already exists for the same (large_repo_id, large_bcs_id,
// small_repo_id) key with a different small_bcs_id or version_name, it
// fails with *scmerr.InconsistentWorkingCopyEntryError (spec.md §4.2, §8
// scenario 3). It also upserts the large-repo version row under the same
// consistency rule.
func (m *Mapping) InsertEquivalentWorkingCopy(ctx context.Context, e WorkingCopyEquivalenceEntry) error {
	err := sqlstore.WithTx(ctx, m.roles.WritePrimary, func(tx *sqlx.Tx) error {
		var existingSmall, existingVersion sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT small_bcs_id, sync_map_version_name FROM synced_working_copy_equivalence
			 WHERE large_repo_id = ? AND large_bcs_id = ? AND small_repo_id = ?`,
			e.LargeRepoId, e.LargeBcsId.String(), e.SmallRepoId,
		).Scan(&existingSmall, &existingVersion)
		switch {
		case err == nil:
			actual := csPtrFromNullable(existingSmall)
			expected := e.SmallBcsId
			if !csPtrEqual(actual, expected) {
				return &scmerr.InconsistentWorkingCopyEntryError{Expected: actual, Actual: expected}
			}
			if e.VersionName != nil && existingVersion.Valid && existingVersion.String != *e.VersionName {
				return &scmerr.InconsistentWorkingCopyEntryError{Expected: actual, Actual: expected}
			}
			return nil
		case err != sql.ErrNoRows:
			return err
		}

		versionExists, err := checkLargeRepoVersionTx(ctx, tx, e.LargeRepoId, e.LargeBcsId, e.VersionName)
		if err != nil {
			return err
		}
		if e.VersionName != nil && !versionExists {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO version_for_large_repo_commit (large_repo_id, large_bcs_id, sync_map_version_name)
				 VALUES (?, ?, ?)`,
				e.LargeRepoId, e.LargeBcsId.String(), *e.VersionName,
			); err != nil {
				return err
			}
		}
		return insertOrReplaceEquivalenceTx(ctx, tx, e)
	})
	return scmerr.Wrap(err, "while inserting equivalent working copy")
}

// OverwriteEquivalentWorkingCopy replaces an equivalence row without the
// consistency check — operator tooling only (spec.md §4.2).
func (m *Mapping) OverwriteEquivalentWorkingCopy(ctx context.Context, e WorkingCopyEquivalenceEntry) error {
	err := sqlstore.WithTx(ctx, m.roles.WritePrimary, func(tx *sqlx.Tx) error {
		return insertOrReplaceEquivalenceTx(ctx, tx, e)
	})
	return scmerr.Wrap(err, "while overwriting equivalent working copy")
}

// insertOrReplaceEquivalenceTx writes e, replacing any existing row for
// the same (large_repo_id, large_bcs_id, small_repo_id) key. Written as
// an explicit check-then-update/insert rather than an upsert clause so
// the same statements run unmodified against MySQL (ON DUPLICATE KEY)
// and sqlite (ON CONFLICT) backends.
func insertOrReplaceEquivalenceTx(ctx context.Context, tx *sqlx.Tx, e WorkingCopyEquivalenceEntry) error {
	var smallBcs, versionName sql.NullString
	if e.SmallBcsId != nil {
		smallBcs = sql.NullString{String: e.SmallBcsId.String(), Valid: true}
	}
	if e.VersionName != nil {
		versionName = sql.NullString{String: *e.VersionName, Valid: true}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE synced_working_copy_equivalence
		 SET small_bcs_id = ?, sync_map_version_name = ?
		 WHERE large_repo_id = ? AND large_bcs_id = ? AND small_repo_id = ?`,
		smallBcs, versionName, e.LargeRepoId, e.LargeBcsId.String(), e.SmallRepoId,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n > 0 {
		return nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO synced_working_copy_equivalence
		 (large_repo_id, large_bcs_id, small_repo_id, small_bcs_id, sync_map_version_name)
		 VALUES (?, ?, ?, ?, ?)`,
		e.LargeRepoId, e.LargeBcsId.String(), e.SmallRepoId, smallBcs, versionName,
	)
	return err
}

// GetEquivalentWorkingCopy returns the working-copy equivalence for
// (source_bcs_id) between source_repo and target_repo, preferring the
// replica and falling back to the primary on a miss (spec.md §4.2).
func (m *Mapping) GetEquivalentWorkingCopy(ctx context.Context, sourceRepo scmtypes.RepositoryId, sourceBcsId scmtypes.ChangesetId, targetRepo scmtypes.RepositoryId) (*WorkingCopyEquivalence, error) {
	wce, err := m.queryEquivalence(ctx, m.roles.Reader(sqlstore.MaybeStale), sourceRepo, sourceBcsId, targetRepo)
	if err != nil {
		return nil, scmerr.Wrap(err, "while reading working copy equivalence from replica")
	}
	if wce != nil {
		return wce, nil
	}
	wce, err = m.queryEquivalence(ctx, m.roles.ReadPrimary, sourceRepo, sourceBcsId, targetRepo)
	return wce, scmerr.Wrap(err, "while reading working copy equivalence from primary")
}

func (m *Mapping) queryEquivalence(ctx context.Context, db *sqlx.DB, sourceRepo scmtypes.RepositoryId, sourceBcsId scmtypes.ChangesetId, targetRepo scmtypes.RepositoryId) (*WorkingCopyEquivalence, error) {
	var smallBcs, versionName sql.NullString
	query := db.Rebind(
		`SELECT small_bcs_id, sync_map_version_name FROM synced_working_copy_equivalence
		 WHERE ((large_repo_id = ? AND large_bcs_id = ? AND small_repo_id = ?)
		     OR (small_repo_id = ? AND small_bcs_id = ? AND large_repo_id = ?))`)
	err := db.QueryRowContext(ctx, query,
		sourceRepo, sourceBcsId.String(), targetRepo,
		sourceRepo, sourceBcsId.String(), targetRepo,
	).Scan(&smallBcs, &versionName)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, err
	}

	var vn *string
	if versionName.Valid {
		v := versionName.String
		vn = &v
	}
	if !smallBcs.Valid {
		return &WorkingCopyEquivalence{Kind: NoWorkingCopy, VersionName: vn}, nil
	}
	id, err := scmtypes.ChangesetIdFromHex(smallBcs.String)
	if err != nil {
		return nil, err
	}
	return &WorkingCopyEquivalence{Kind: WorkingCopy, ChangesetId: id, VersionName: vn}, nil
}

// GetAllVersionsForLargeBcsId returns every mapping recorded for a
// large-repo commit across all small repos it has been synced to,
// fanned through the same per-pair rendezvous Coalescer GetMany uses —
// keyed on the self-pair (largeRepoId, largeRepoId), since this query
// has no single target repo to key on (supplemented from
// original_source/eden/mononoke/commit_rewriting/synced_commit_mapping/src/sql.rs's
// get_all_versions query).
func (m *Mapping) GetAllVersionsForLargeBcsId(ctx context.Context, largeRepoId scmtypes.RepositoryId, largeBcsId scmtypes.ChangesetId) ([]FetchedEntry, error) {
	coalescer := m.coalescerFor(largeRepoId, largeRepoId)
	results, err := coalescer.Dispatch(ctx, largeRepoId, largeRepoId, []scmtypes.ChangesetId{largeBcsId}, func(ctx context.Context, ids []scmtypes.ChangesetId) (map[scmtypes.ChangesetId][]FetchedEntry, error) {
		return m.queryAllVersionsDirect(ctx, m.roles.Reader(sqlstore.MaybeStale), largeRepoId, idsToHex(ids))
	})
	if err != nil {
		return nil, scmerr.Wrap(err, "while reading all versions for large repo commit")
	}
	return results[largeBcsId], nil
}

func (m *Mapping) queryAllVersionsDirect(ctx context.Context, db *sqlx.DB, largeRepoId scmtypes.RepositoryId, idStrs []string) (map[scmtypes.ChangesetId][]FetchedEntry, error) {
	out := map[scmtypes.ChangesetId][]FetchedEntry{}
	if len(idStrs) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(
		`SELECT large_bcs_id, small_bcs_id, small_repo_id, sync_map_version_name, source_repo
		 FROM synced_commit_mapping
		 WHERE large_repo_id = ? AND large_bcs_id IN (?)`,
		largeRepoId, idStrs,
	)
	if err != nil {
		return nil, err
	}
	query = db.Rebind(query)
	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var largeBcs, smallBcs string
		var smallRepo scmtypes.RepositoryId
		var versionName, sourceRepo sql.NullString
		if err := rows.Scan(&largeBcs, &smallBcs, &smallRepo, &versionName, &sourceRepo); err != nil {
			return nil, err
		}
		largeId, err := scmtypes.ChangesetIdFromHex(largeBcs)
		if err != nil {
			return nil, err
		}
		smallId, err := scmtypes.ChangesetIdFromHex(smallBcs)
		if err != nil {
			return nil, err
		}
		var vn *string
		if versionName.Valid {
			v := versionName.String
			vn = &v
		}
		out[largeId] = append(out[largeId], FetchedEntry{
			ChangesetId: smallId,
			SmallRepoId: smallRepo,
			VersionName: vn,
			SourceRepo:  parseSourceRepo(sourceRepo.String),
		})
	}
	return out, rows.Err()
}

// GetLargeRepoCommitVersion returns the canonical version recorded for a
// large-repo commit, replica first, primary fallback (spec.md §4.2).
func (m *Mapping) GetLargeRepoCommitVersion(ctx context.Context, largeRepoId scmtypes.RepositoryId, largeBcsId scmtypes.ChangesetId) (string, bool, error) {
	v, ok, err := m.queryVersion(ctx, m.roles.Reader(sqlstore.MaybeStale), largeRepoId, largeBcsId)
	if err != nil {
		return "", false, scmerr.Wrap(err, "while reading large repo commit version from replica")
	}
	if ok {
		return v, true, nil
	}
	v, ok, err = m.queryVersion(ctx, m.roles.ReadPrimary, largeRepoId, largeBcsId)
	return v, ok, scmerr.Wrap(err, "while reading large repo commit version from primary")
}

func (m *Mapping) queryVersion(ctx context.Context, db *sqlx.DB, largeRepoId scmtypes.RepositoryId, largeBcsId scmtypes.ChangesetId) (string, bool, error) {
	var v string
	err := db.QueryRowContext(ctx,
		`SELECT sync_map_version_name FROM version_for_large_repo_commit WHERE large_repo_id = ? AND large_bcs_id = ?`,
		largeRepoId, largeBcsId.String(),
	).Scan(&v)
	switch {
	case err == sql.ErrNoRows:
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return v, true, nil
}

func csPtrFromNullable(n sql.NullString) *scmtypes.ChangesetId {
	if !n.Valid {
		return nil
	}
	id, err := scmtypes.ChangesetIdFromHex(n.String)
	if err != nil {
		return nil
	}
	return &id
}

func csPtrEqual(a, b *scmtypes.ChangesetId) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
