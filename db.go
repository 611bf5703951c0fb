package leads

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type querier interface {
	sqlx.ExtContext
	Rebind(query string) string
}

type db struct {
	writeConnection *sqlx.DB
	readConnection  *sqlx.DB
}

func newDB(conf *SQLConfig) *db {
	read := conf.ReadOnlyDbConn
	if read == nil {
		read = conf.WriteOnlyDbConn
	}
	return &db{
		writeConnection: conf.WriteOnlyDbConn,
		readConnection:  read,
	}
}

// query runs a `?`-placeholder select rebound for the connection's driver and scans every row
// into dest.
func (db *db) query(ctx context.Context, conn querier, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, conn, dest, conn.Rebind(query), args...)
}

// namedQuery runs a named statement that ends in RETURNING * and scans the single returned row.
func (db *db) namedQuery(ctx context.Context, conn querier, dest interface{}, query string, arg interface{}) error {
	rows, err := sqlx.NamedQueryContext(ctx, conn, query, arg)
	if err != nil {
		return err
	}
	// Let's make sure we don't have a memory leak!! :)
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return errNoRows
	}
	if err := rows.StructScan(dest); err != nil {
		return err
	}
	return rows.Err()
}

func (db *db) writeConn() *sqlx.DB {
	return db.writeConnection
}

func (db *db) readConn() *sqlx.DB {
	return db.readConnection
}
