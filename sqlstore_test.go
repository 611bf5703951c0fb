package leads

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T, path string) *SQLBackend {
	t.Helper()
	conn, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)

	b, err := NewSQLBackend(context.Background(), &SQLConfig{WriteOnlyDbConn: conn})
	require.NoError(t, err)
	require.Equal(t, 1, conn.Stats().MaxOpenConnections)
	t.Cleanup(func() { b.Close() })
	return b
}

func newSQLiteBackend(t *testing.T) *SQLBackend {
	return openSQLite(t, filepath.Join(t.TempDir(), "leads.db"))
}

func TestSQLBackendRejectsUnknownDriver(t *testing.T) {
	_, err := dialectFor("mysql")
	assert.Error(t, err)

	_, err = NewSQLBackend(context.Background(), &SQLConfig{})
	assert.Error(t, err)
}

func TestSQLBackendAttributes(t *testing.T) {
	ctx := context.Background()
	b := newSQLiteBackend(t)

	attrs, err := b.LoadAttributes(ctx)
	require.NoError(t, err)
	assert.Empty(t, attrs)

	require.NoError(t, b.InsertAttribute(ctx, AttributeDefinition{Name: "City", DataType: DataTypeText, Required: true}))
	require.NoError(t, b.InsertAttribute(ctx, AttributeDefinition{Name: "Revenue", DataType: DataTypeNumber}))
	require.NoError(t, b.InsertAttribute(ctx, AttributeDefinition{Name: "Active", DataType: DataTypeBoolean}))

	err = b.InsertAttribute(ctx, AttributeDefinition{Name: "CITY", DataType: DataTypeDate})
	assert.ErrorIs(t, err, ErrDuplicateAttribute)

	attrs, err = b.LoadAttributes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []AttributeDefinition{
		{Name: "City", DataType: DataTypeText, Required: true},
		{Name: "Revenue", DataType: DataTypeNumber},
		{Name: "Active", DataType: DataTypeBoolean},
	}, attrs)

	require.NoError(t, b.DeleteAttribute(ctx, "revenue"))
	assert.ErrorIs(t, b.DeleteAttribute(ctx, "revenue"), ErrUnknownAttribute)

	// positions keep growing, so a re-added column goes last
	require.NoError(t, b.InsertAttribute(ctx, AttributeDefinition{Name: "Revenue", DataType: DataTypeNumber}))
	attrs, err = b.LoadAttributes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"City", "Active", "Revenue"}, names(attrs))
}

func TestSQLBackendRecords(t *testing.T) {
	ctx := context.Background()
	b := newSQLiteBackend(t)
	require.NoError(t, b.InsertAttribute(ctx, AttributeDefinition{Name: "City", DataType: DataTypeText}))
	require.NoError(t, b.InsertAttribute(ctx, AttributeDefinition{Name: "Phone", DataType: DataTypeText}))

	created := time.Date(2024, 3, 1, 12, 0, 0, 123456000, time.UTC)
	first, err := b.Insert(ctx, 42, created, map[string]string{"city": "Oslo", "phone": "555"})
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.Equal(t, int64(42), first.SubmitterID)
	assert.Equal(t, StatusPending, first.Status)
	assert.True(t, created.Equal(first.CreatedAt))
	assert.Equal(t, map[string]string{"city": "Oslo", "phone": "555"}, first.Values)

	// a lead with no values at all is still listed
	second, err := b.Insert(ctx, 7, created.Add(time.Minute), map[string]string{})
	require.NoError(t, err)
	third, err := b.Insert(ctx, 42, created.Add(2*time.Minute), map[string]string{"city": "Bergen"})
	require.NoError(t, err)

	all, err := b.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{first.ID, second.ID, third.ID}, []int64{all[0].ID, all[1].ID, all[2].ID})
	assert.Empty(t, all[1].Values)

	mine, err := b.ListBySubmitter(ctx, 42)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	for _, r := range mine {
		assert.Equal(t, int64(42), r.SubmitterID)
	}
	assert.Equal(t, map[string]string{"city": "Bergen"}, mine[1].Values)

	rec, ok, err := b.Detail(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"city": "Oslo", "phone": "555"}, rec.Values)
	assert.True(t, created.Equal(rec.CreatedAt))
	assert.Nil(t, rec.ApprovedBy)

	_, ok, err = b.Detail(ctx, third.ID+10)
	require.NoError(t, err)
	assert.False(t, ok)

	// deleting a column purges its values in the same transaction
	require.NoError(t, b.DeleteAttribute(ctx, "city"))
	rec, _, err = b.Detail(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"phone": "555"}, rec.Values)
}

func TestSQLBackendUpdateStatus(t *testing.T) {
	ctx := context.Background()
	b := newSQLiteBackend(t)
	require.NoError(t, b.InsertAttribute(ctx, AttributeDefinition{Name: "City", DataType: DataTypeText}))

	rec, err := b.Insert(ctx, 42, time.Now(), map[string]string{"city": "Oslo"})
	require.NoError(t, err)

	at := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	updated, err := b.UpdateStatus(ctx, rec.ID, StatusApproved, 1, at)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, updated.Status)
	require.NotNil(t, updated.ApprovedBy)
	assert.Equal(t, int64(1), *updated.ApprovedBy)
	require.NotNil(t, updated.ApprovedAt)
	assert.True(t, at.Equal(*updated.ApprovedAt))
	assert.Equal(t, map[string]string{"city": "Oslo"}, updated.Values)

	_, err = b.UpdateStatus(ctx, rec.ID+1, StatusRejected, 1, at)
	assert.ErrorIs(t, err, ErrUnknownRecord)
}

func TestServiceOnSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "leads.db")

	s := newTestService(t, &Config{Backend: openSQLite(t, path)})
	mustAdd(t, s, "FullName", "Text", true)
	mustAdd(t, s, "Priority", "Number", false)
	jane := mustSubmit(t, s, 42, map[string]string{"FullName": "Jane", "Priority": "2"})

	res, err := s.Submit(ctx, 42, map[string]string{"FullName": "Bad", "Priority": "high"})
	require.NoError(t, err)
	assert.Equal(t, CodeTypeMismatch, res.Code)

	res, err = s.AddAttribute(ctx, "fullname", "Text", false)
	require.NoError(t, err)
	assert.Equal(t, CodeDuplicateAttribute, res.Code)

	// a second process over the same database sees the same catalog and records
	other := newTestService(t, &Config{Backend: openSQLite(t, path)})
	assert.Equal(t, []AttributeDefinition{
		{Name: "FullName", DataType: DataTypeText, Required: true},
		{Name: "Priority", DataType: DataTypeNumber},
	}, other.Columns(ctx))

	rec, err := other.View(ctx, Identity{SubmitterID: 42}, jane)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"FullName": "Jane", "Priority": 2.0}, rec.Fields)
}
