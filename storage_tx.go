package leads

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
)

var errNoRows = errors.New("statement returned no rows")

// inTx runs fn inside a write transaction. The transaction is committed when fn returns nil and
// rolled back otherwise, so nothing fn wrote is visible unless all of it is.
func (db *db) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.writeConn().BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, context.Canceled) {
			d("rollback failed: %v", rbErr)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
