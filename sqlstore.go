package leads

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
)

var _ Backend = (*SQLBackend)(nil)

// Every statement is parameterized. Column names never come from user input: attributes live in
// rows of lead_attributes and values in rows of lead_values.
const (
	attributesSelect = `SELECT name_key, name, data_type, required, position FROM lead_attributes ORDER BY position, name_key`

	attributesInsert = `INSERT INTO lead_attributes (name_key, name, data_type, required, position)
VALUES (:name_key, :name, :data_type, :required, :position)`

	attributesExists      = `SELECT COUNT(*) FROM lead_attributes WHERE name_key = ?`
	attributesMaxPosition = `SELECT COALESCE(MAX(position), 0) FROM lead_attributes`

	attributeValuesDelete = `DELETE FROM lead_values WHERE attribute_key = ?`
	attributeDelete       = `DELETE FROM lead_attributes WHERE name_key = ?`

	leadsInsert = `INSERT INTO leads (submitter_id, created_at, status)
VALUES (:submitter_id, :created_at, :status) RETURNING *` // note: make sure it's RETURNING *

	leadValuesInsert = `INSERT INTO lead_values (lead_id, attribute_key, value) VALUES (:lead_id, :attribute_key, :value)`

	leadsUpdateStatus = `UPDATE leads SET status = :status, approved_by = :approved_by, approved_at = :approved_at
WHERE lead_id = :lead_id RETURNING *` // note: make sure it's RETURNING *

	leadsSelect = `SELECT l.lead_id, l.submitter_id, l.created_at, l.status, l.approved_by, l.approved_at,
	v.attribute_key, v.value
FROM leads l LEFT JOIN lead_values v ON v.lead_id = l.lead_id`

	leadsOrder = ` ORDER BY l.created_at, l.lead_id, v.attribute_key`
)

// SQLConfig configures an SQLBackend. The connections must be opened with a driver name the
// backend knows: postgres, pgx, sqlite or sqlite3. A SQLite write connection is limited to one
// open connection.
type SQLConfig struct {
	ReadOnlyDbConn  *sqlx.DB
	WriteOnlyDbConn *sqlx.DB
	// SkipMigrate leaves table creation to an external migration tool.
	SkipMigrate bool
}

// SQLBackend stores the catalog and lead records in an entity-attribute-value layout.
type SQLBackend struct {
	db      *db
	dialect dialect
}

type attributeRow struct {
	NameKey  string `json:"name_key"`
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Required bool   `json:"required"`
	Position int64  `json:"position"`
}

type leadRow struct {
	LeadID      int64         `json:"lead_id"`
	SubmitterID int64         `json:"submitter_id"`
	CreatedAt   int64         `json:"created_at"`
	Status      string        `json:"status"`
	ApprovedBy  sql.NullInt64 `json:"approved_by"`
	ApprovedAt  sql.NullInt64 `json:"approved_at"`
}

type leadValueRow struct {
	leadRow
	AttributeKey sql.NullString `json:"attribute_key"`
	Value        sql.NullString `json:"value"`
}

type valueRow struct {
	LeadID       int64  `json:"lead_id"`
	AttributeKey string `json:"attribute_key"`
	Value        string `json:"value"`
}

// NewSQLBackend wraps the given connections and, unless SkipMigrate is set, creates the tables.
func NewSQLBackend(ctx context.Context, conf *SQLConfig) (*SQLBackend, error) {
	if conf == nil || conf.WriteOnlyDbConn == nil {
		return nil, errors.New("WriteOnlyDbConn must be set")
	}

	dl, err := dialectFor(conf.WriteOnlyDbConn.DriverName())
	if err != nil {
		return nil, err
	}

	if dl.name == "sqlite" {
		// SQLite allows one writer; a second pooled connection would fail with SQLITE_BUSY
		// under concurrent submissions instead of waiting its turn.
		conf.WriteOnlyDbConn.SetMaxOpenConns(1)
	}

	s := &SQLBackend{db: newDB(conf), dialect: dl}

	// use the json tag instead of the DB tag
	s.db.writeConn().Mapper = reflectx.NewMapperFunc("json", strings.ToLower)
	s.db.readConn().Mapper = reflectx.NewMapperFunc("json", strings.ToLower)

	if !conf.SkipMigrate {
		if err := s.migrate(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *SQLBackend) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.ddl {
		if _, err := s.db.writeConn().ExecContext(ctx, stmt); err != nil {
			return storageError("create lead tables", err)
		}
	}
	return nil
}

func (s *SQLBackend) LoadAttributes(ctx context.Context) ([]AttributeDefinition, error) {
	rows := []attributeRow{}
	if err := s.db.query(ctx, s.db.readConn(), &rows, attributesSelect); err != nil {
		return nil, storageError("load lead columns", err)
	}

	out := make([]AttributeDefinition, 0, len(rows))
	for _, r := range rows {
		dt, err := ParseDataType(r.DataType)
		if err != nil {
			d("skipping column %s with unknown data type %q", r.Name, r.DataType)
			continue
		}
		out = append(out, AttributeDefinition{Name: r.Name, DataType: dt, Required: r.Required})
	}
	return out, nil
}

func (s *SQLBackend) InsertAttribute(ctx context.Context, def AttributeDefinition) error {
	row := attributeRow{
		NameKey:  def.Key(),
		Name:     strings.TrimSpace(def.Name),
		DataType: string(def.DataType),
		Required: def.Required,
	}

	err := s.db.inTx(ctx, func(tx *sqlx.Tx) error {
		var n int
		if err := sqlx.GetContext(ctx, tx, &n, tx.Rebind(attributesExists), row.NameKey); err != nil {
			return err
		}
		if n > 0 {
			return newError(CodeDuplicateAttribute, def.Name, "column %q already exists", def.Name)
		}
		if err := sqlx.GetContext(ctx, tx, &row.Position, attributesMaxPosition); err != nil {
			return err
		}
		row.Position++
		_, err := sqlx.NamedExecContext(ctx, tx, attributesInsert, row)
		return err
	})
	return s.classify("add lead column", def.Name, err)
}

func (s *SQLBackend) DeleteAttribute(ctx context.Context, key string) error {
	err := s.db.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(attributeValuesDelete), key); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(attributeDelete), key)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return newError(CodeUnknownAttribute, key, "column %q does not exist", key)
		}
		return nil
	})
	return s.classify("delete lead column", key, err)
}

func (s *SQLBackend) Insert(ctx context.Context, submitterID int64, createdAt time.Time, values map[string]string) (StoredRecord, error) {
	var rec StoredRecord
	err := s.db.inTx(ctx, func(tx *sqlx.Tx) error {
		row := leadRow{
			SubmitterID: submitterID,
			CreatedAt:   createdAt.UTC().UnixMicro(),
			Status:      string(StatusPending),
		}
		if err := s.db.namedQuery(ctx, tx, &row, leadsInsert, row); err != nil {
			return err
		}
		if row.LeadID == 0 {
			return errors.New("insert did not assign a lead id")
		}

		for key, value := range values {
			v := valueRow{LeadID: row.LeadID, AttributeKey: key, Value: value}
			if _, err := sqlx.NamedExecContext(ctx, tx, leadValuesInsert, v); err != nil {
				return err
			}
		}

		rec = row.toRecord()
		rec.Values = copyValues(values)
		return nil
	})
	if err != nil {
		return StoredRecord{}, s.classify("insert lead", "", err)
	}
	return rec, nil
}

func (s *SQLBackend) ListAll(ctx context.Context) ([]StoredRecord, error) {
	recs, err := s.selectLeads(ctx, s.db.readConn(), leadsSelect+leadsOrder)
	if err != nil {
		return nil, storageError("list leads", err)
	}
	return recs, nil
}

func (s *SQLBackend) ListBySubmitter(ctx context.Context, submitterID int64) ([]StoredRecord, error) {
	recs, err := s.selectLeads(ctx, s.db.readConn(), leadsSelect+` WHERE l.submitter_id = ?`+leadsOrder, submitterID)
	if err != nil {
		return nil, storageError("list leads by submitter", err)
	}
	return recs, nil
}

func (s *SQLBackend) Detail(ctx context.Context, id int64) (StoredRecord, bool, error) {
	recs, err := s.selectLeads(ctx, s.db.readConn(), leadsSelect+` WHERE l.lead_id = ?`+leadsOrder, id)
	if err != nil {
		return StoredRecord{}, false, storageError("get lead", err)
	}
	if len(recs) == 0 {
		return StoredRecord{}, false, nil
	}
	return recs[0], true, nil
}

func (s *SQLBackend) UpdateStatus(ctx context.Context, id int64, status Status, approverID int64, at time.Time) (StoredRecord, error) {
	var rec StoredRecord
	err := s.db.inTx(ctx, func(tx *sqlx.Tx) error {
		row := leadRow{
			LeadID:     id,
			Status:     string(status),
			ApprovedBy: sql.NullInt64{Int64: approverID, Valid: true},
			ApprovedAt: sql.NullInt64{Int64: at.UTC().UnixMicro(), Valid: true},
		}
		if err := s.db.namedQuery(ctx, tx, &row, leadsUpdateStatus, row); err != nil {
			if errors.Is(err, errNoRows) {
				return newError(CodeUnknownRecord, "", "lead %d does not exist", id)
			}
			return err
		}

		recs, err := s.selectLeads(ctx, tx, leadsSelect+` WHERE l.lead_id = ?`+leadsOrder, id)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return newError(CodeUnknownRecord, "", "lead %d does not exist", id)
		}
		rec = recs[0]
		return nil
	})
	if err != nil {
		return StoredRecord{}, s.classify("update lead status", "", err)
	}
	return rec, nil
}

func (s *SQLBackend) Close() error {
	err := s.db.writeConn().Close()
	if s.db.readConn() != s.db.writeConn() {
		if rErr := s.db.readConn().Close(); err == nil {
			err = rErr
		}
	}
	return err
}

// selectLeads folds the lead/value join, one row per value, back into records. The ORDER BY
// keeps each lead's rows adjacent.
func (s *SQLBackend) selectLeads(ctx context.Context, conn querier, query string, args ...interface{}) ([]StoredRecord, error) {
	rows := []leadValueRow{}
	if err := s.db.query(ctx, conn, &rows, query, args...); err != nil {
		return nil, err
	}

	out := []StoredRecord{}
	for _, r := range rows {
		if len(out) == 0 || out[len(out)-1].ID != r.LeadID {
			out = append(out, r.leadRow.toRecord())
		}
		if r.AttributeKey.Valid {
			out[len(out)-1].Values[r.AttributeKey.String] = r.Value.String
		}
	}
	return out, nil
}

// classify passes our own errors through and turns everything else into StorageUnavailable.
func (s *SQLBackend) classify(op, field string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if isUniqueViolation(err) && field != "" {
		return newError(CodeDuplicateAttribute, field, "column %q already exists", field)
	}
	return storageError(op, err)
}

func (r leadRow) toRecord() StoredRecord {
	status, ok := ParseStatus(r.Status)
	if !ok {
		status = Status(r.Status)
	}
	rec := StoredRecord{
		ID:          r.LeadID,
		SubmitterID: r.SubmitterID,
		CreatedAt:   time.UnixMicro(r.CreatedAt).UTC(),
		Status:      status,
		Values:      map[string]string{},
	}
	if r.ApprovedBy.Valid {
		v := r.ApprovedBy.Int64
		rec.ApprovedBy = &v
	}
	if r.ApprovedAt.Valid {
		v := time.UnixMicro(r.ApprovedAt.Int64).UTC()
		rec.ApprovedAt = &v
	}
	return rec
}
