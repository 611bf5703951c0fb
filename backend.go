package leads

import (
	"context"
	"sort"
	"time"
)

// AttributeStore persists the attribute definitions behind the catalog.
type AttributeStore interface {
	// LoadAttributes returns every definition in the order it was added.
	LoadAttributes(ctx context.Context) ([]AttributeDefinition, error)
	// InsertAttribute fails with ErrDuplicateAttribute when the normalized name is taken.
	InsertAttribute(ctx context.Context, def AttributeDefinition) error
	// DeleteAttribute removes the definition and every stored value for it in one unit.
	// It fails with ErrUnknownAttribute when key is absent.
	DeleteAttribute(ctx context.Context, key string) error
}

// RecordStore persists lead records independent of how many attributes exist or have existed.
type RecordStore interface {
	// Insert stores a Pending record with values keyed by normalized attribute name and returns
	// it with its assigned id.
	Insert(ctx context.Context, submitterID int64, createdAt time.Time, values map[string]string) (StoredRecord, error)
	ListAll(ctx context.Context) ([]StoredRecord, error)
	// ListBySubmitter returns only records owned by submitterID, oldest first.
	ListBySubmitter(ctx context.Context, submitterID int64) ([]StoredRecord, error)
	Detail(ctx context.Context, id int64) (StoredRecord, bool, error)
	// UpdateStatus fails with ErrUnknownRecord when id is absent.
	UpdateStatus(ctx context.Context, id int64, status Status, approverID int64, at time.Time) (StoredRecord, error)
}

// Backend is everything the service needs from persistence.
type Backend interface {
	AttributeStore
	RecordStore
	Close() error
}

func sortRecords(recs []StoredRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}
