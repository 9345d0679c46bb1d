package postgres

// querySourceWrap has a %s placeholder for the source SELECT and a %d one
// for the row cap.
const querySourceWrap = `SELECT * FROM (%s) AS _q LIMIT %d`

const ddlSnapshotTables = `
CREATE TABLE IF NOT EXISTS colprobe_snapshots (
  table_name text NOT NULL,
  version    text NOT NULL,
  snapshot   jsonb NOT NULL,
  updated_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (table_name, version)
);
CREATE TABLE IF NOT EXISTS colprobe_tables (
  table_name   text PRIMARY KEY,
  last_version text NOT NULL,
  updated_at   timestamptz NOT NULL DEFAULT now()
);`

const querySelectSnapshots = `
	SELECT table_name, version, snapshot
	FROM colprobe_snapshots
	ORDER BY table_name, version`

const querySelectLastVersions = `
	SELECT table_name, last_version
	FROM colprobe_tables`

const queryUpsertSnapshot = `
	INSERT INTO colprobe_snapshots (table_name, version, snapshot)
	VALUES ($1, $2, $3)
	ON CONFLICT (table_name, version)
	DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = now()`

const queryUpsertLastVersion = `
	INSERT INTO colprobe_tables (table_name, last_version)
	VALUES ($1, $2)
	ON CONFLICT (table_name)
	DO UPDATE SET last_version = EXCLUDED.last_version, updated_at = now()`
