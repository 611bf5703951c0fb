package leads

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type dialect struct {
	name string
	ddl  []string
}

// postgresDDL backs both lib/pq ("postgres") and pgx ("pgx") connections.
var postgresDDL = []string{
	`CREATE TABLE IF NOT EXISTS lead_attributes (
		name_key  TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		data_type TEXT NOT NULL,
		required  BOOLEAN NOT NULL DEFAULT FALSE,
		position  BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS leads (
		lead_id      BIGSERIAL PRIMARY KEY,
		submitter_id BIGINT NOT NULL,
		created_at   BIGINT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'Pending',
		approved_by  BIGINT,
		approved_at  BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS leads_submitter_idx ON leads (submitter_id, created_at, lead_id)`,
	`CREATE TABLE IF NOT EXISTS lead_values (
		lead_id       BIGINT NOT NULL REFERENCES leads (lead_id) ON DELETE CASCADE,
		attribute_key TEXT NOT NULL REFERENCES lead_attributes (name_key) ON DELETE CASCADE,
		value         TEXT NOT NULL,
		PRIMARY KEY (lead_id, attribute_key)
	)`,
	`CREATE INDEX IF NOT EXISTS lead_values_attribute_idx ON lead_values (attribute_key)`,
}

var sqliteDDL = []string{
	`CREATE TABLE IF NOT EXISTS lead_attributes (
		name_key  TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		data_type TEXT NOT NULL,
		required  INTEGER NOT NULL DEFAULT 0,
		position  INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS leads (
		lead_id      INTEGER PRIMARY KEY AUTOINCREMENT,
		submitter_id INTEGER NOT NULL,
		created_at   INTEGER NOT NULL,
		status       TEXT NOT NULL DEFAULT 'Pending',
		approved_by  INTEGER,
		approved_at  INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS leads_submitter_idx ON leads (submitter_id, created_at, lead_id)`,
	`CREATE TABLE IF NOT EXISTS lead_values (
		lead_id       INTEGER NOT NULL,
		attribute_key TEXT NOT NULL,
		value         TEXT NOT NULL,
		PRIMARY KEY (lead_id, attribute_key)
	)`,
	`CREATE INDEX IF NOT EXISTS lead_values_attribute_idx ON lead_values (attribute_key)`,
}

func dialectFor(driverName string) (dialect, error) {
	switch strings.ToLower(driverName) {
	case "postgres", "pgx", "pq-timeouts", "cloudsqlpostgres":
		return dialect{name: "postgres", ddl: postgresDDL}, nil
	case "sqlite", "sqlite3":
		return dialect{name: "sqlite", ddl: sqliteDDL}, nil
	}
	return dialect{}, fmt.Errorf("unsupported sql driver %q", driverName)
}

// isUniqueViolation recognizes a primary key or unique constraint failure from any of the
// drivers we support.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
