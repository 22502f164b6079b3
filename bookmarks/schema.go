package bookmarks

// MySQLSchema is DDL for the bookmark row and update log tables
// (spec.md §3), using MySQL's INT/AUTO_INCREMENT syntax. The update-log
// lookup index is declared inline as a KEY clause in CREATE TABLE rather
// than a separate CREATE INDEX statement, since MySQL's CREATE INDEX has
// no portable IF NOT EXISTS guard the way sqlite's does.
const MySQLSchema = `
CREATE TABLE IF NOT EXISTS bookmarks (
	repo_id      INT NOT NULL,
	name         VARCHAR(255) NOT NULL,
	hg_kind      VARCHAR(32) NOT NULL,
	changeset_id CHAR(64) NOT NULL,
	log_id       INT,
	PRIMARY KEY (repo_id, name)
);

CREATE TABLE IF NOT EXISTS bookmarks_update_log (
	id                INT PRIMARY KEY AUTO_INCREMENT,
	repo_id           INT NOT NULL,
	name              VARCHAR(255) NOT NULL,
	to_changeset_id   CHAR(64),
	from_changeset_id CHAR(64),
	reason            VARCHAR(32) NOT NULL,
	timestamp         BIGINT NOT NULL,
	KEY bookmarks_update_log_repo_name_idx (repo_id, name, id)
);
`

// SQLiteSchema is the same tables using sqlite's INTEGER/AUTOINCREMENT
// syntax and a separate CREATE INDEX statement, used against
// internal/sqlstore.OpenSQLiteForTests.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS bookmarks (
	repo_id      INTEGER NOT NULL,
	name         TEXT NOT NULL,
	hg_kind      TEXT NOT NULL,
	changeset_id CHAR(64) NOT NULL,
	log_id       INTEGER,
	PRIMARY KEY (repo_id, name)
);

CREATE TABLE IF NOT EXISTS bookmarks_update_log (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_id           INTEGER NOT NULL,
	name              TEXT NOT NULL,
	to_changeset_id   CHAR(64),
	from_changeset_id CHAR(64),
	reason            TEXT NOT NULL,
	timestamp         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS bookmarks_update_log_repo_name_idx ON bookmarks_update_log (repo_id, name, id);
`

// SchemaFor returns the dialect-correct DDL for driverName, as reported
// by (*sqlx.DB).DriverName() on the connection EnsureSchema runs
// against — "mysql" in production, "sqlite3" in tests.
func SchemaFor(driverName string) string {
	if driverName == "mysql" {
		return MySQLSchema
	}
	return SQLiteSchema
}
