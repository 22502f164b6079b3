package commitsync

// MySQLSchema is the DDL for the tables named in spec.md §6, using
// MySQL's INT/AUTO_INCREMENT syntax.
const MySQLSchema = `
CREATE TABLE IF NOT EXISTS synced_commit_mapping (
	mapping_id            INT PRIMARY KEY AUTO_INCREMENT,
	large_repo_id         INT NOT NULL,
	large_bcs_id          CHAR(64) NOT NULL,
	small_repo_id         INT NOT NULL,
	small_bcs_id          CHAR(64) NOT NULL,
	sync_map_version_name VARCHAR(255),
	source_repo           VARCHAR(32),
	UNIQUE KEY synced_commit_mapping_uniq (large_repo_id, large_bcs_id, small_repo_id)
);

CREATE TABLE IF NOT EXISTS synced_working_copy_equivalence (
	id                    INT PRIMARY KEY AUTO_INCREMENT,
	mapping_id            INT,
	large_repo_id         INT NOT NULL,
	large_bcs_id          CHAR(64) NOT NULL,
	small_repo_id         INT NOT NULL,
	small_bcs_id          CHAR(64),
	sync_map_version_name VARCHAR(255),
	UNIQUE KEY synced_working_copy_equivalence_uniq (large_repo_id, large_bcs_id, small_repo_id)
);

CREATE TABLE IF NOT EXISTS version_for_large_repo_commit (
	large_repo_id         INT NOT NULL,
	large_bcs_id          CHAR(64) NOT NULL,
	sync_map_version_name VARCHAR(255) NOT NULL,
	PRIMARY KEY (large_repo_id, large_bcs_id)
);
`

// SQLiteSchema is the same tables using sqlite's INTEGER/AUTOINCREMENT
// syntax, used against internal/sqlstore.OpenSQLiteForTests.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS synced_commit_mapping (
	mapping_id            INTEGER PRIMARY KEY AUTOINCREMENT,
	large_repo_id         INTEGER NOT NULL,
	large_bcs_id          CHAR(64) NOT NULL,
	small_repo_id         INTEGER NOT NULL,
	small_bcs_id          CHAR(64) NOT NULL,
	sync_map_version_name TEXT,
	source_repo           TEXT,
	UNIQUE(large_repo_id, large_bcs_id, small_repo_id)
);

CREATE TABLE IF NOT EXISTS synced_working_copy_equivalence (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	mapping_id            INTEGER,
	large_repo_id         INTEGER NOT NULL,
	large_bcs_id          CHAR(64) NOT NULL,
	small_repo_id         INTEGER NOT NULL,
	small_bcs_id          CHAR(64),
	sync_map_version_name TEXT,
	UNIQUE(large_repo_id, large_bcs_id, small_repo_id)
);

CREATE TABLE IF NOT EXISTS version_for_large_repo_commit (
	large_repo_id         INTEGER NOT NULL,
	large_bcs_id          CHAR(64) NOT NULL,
	sync_map_version_name TEXT NOT NULL,
	PRIMARY KEY (large_repo_id, large_bcs_id)
);
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
