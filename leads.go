package leads

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Leads is the API of this package: schema management for the lead columns, submission against
// the live schema, and reads projected against it.
type Leads interface {
	// Columns returns the current catalog in the order columns were added.
	Columns(ctx context.Context) []AttributeDefinition
	// Catalog returns the current catalog snapshot.
	Catalog() *Catalog
	// Generation is the current schema version.
	Generation() uint64
	// Refresh reloads the catalog from the backend, e.g. after an out-of-band migration.
	Refresh(ctx context.Context) error

	// AddAttribute adds a column. Validation failures come back as a Result with OK false and
	// a nil error; the error is only set when storage is unavailable.
	AddAttribute(ctx context.Context, name, dataType string, required bool) (Result, error)
	// RemoveAttribute drops a column and every value stored for it.
	RemoveAttribute(ctx context.Context, name string) (Result, error)

	// Submit validates payload against the live catalog and stores it for submitterID.
	Submit(ctx context.Context, submitterID int64, payload map[string]string) (Result, error)

	ListAll(ctx context.Context) ([]Record, error)
	ListBySubmitter(ctx context.Context, submitterID int64) ([]Record, error)
	Detail(ctx context.Context, id int64) (Record, bool, error)
	// Leads lists what who may see: every lead for an administrator, otherwise their own.
	Leads(ctx context.Context, who Identity) ([]Record, error)
	// View returns one lead if who may read it, ErrUnknownRecord otherwise.
	View(ctx context.Context, who Identity, id int64) (Record, error)

	// Applications composes every lead with submitter and approval details.
	Applications(ctx context.Context) ([]ApplicationView, error)
	// SetStatus records an approval decision and notifies the submitter.
	SetStatus(ctx context.Context, id int64, status string, approverID int64) (Result, error)

	// Close waits for outstanding notifications and closes the backend.
	Close() error
}

// Directory resolves user ids to names and addresses.
type Directory interface {
	Lookup(ctx context.Context, userID int64) (Submitter, error)
}

// Notifier delivers a message to a person. Delivery is fire-and-forget from this package's point
// of view.
type Notifier interface {
	Notify(ctx context.Context, recipientAddress, subject, body string) error
}

type Config struct {
	ServiceName string
	Backend     Backend

	Redis         *redis.Client // shared listing cache; an in-process LRU is used when nil
	CacheTTL      time.Duration
	CacheSize     int
	DoNotUseCache bool // make sure defaults to bool

	Debugger   bool
	Logger     logrus.FieldLogger
	Registerer prometheus.Registerer

	Directory Directory
	Notifier  Notifier

	// Now is the clock used for createdAt and approval stamps.
	Now func() time.Time
}

type service struct {
	conf    *Config
	backend Backend
	cache   listCache
	metrics *metrics
	log     *logger

	// schemaMu guards the catalog together with the backend's structure. Mutations hold it
	// exclusively; inserts and reads share it.
	schemaMu sync.RWMutex
	catalog  *Catalog

	notifications sync.WaitGroup
}

// New validates conf, loads the catalog from the backend and returns the service.
func New(ctx context.Context, conf *Config) (Leads, error) {
	if err := conf.validate(); err != nil {
		return nil, err
	}

	log := newLogger(conf.Logger, conf.ServiceName, conf.Debugger)
	if conf.Debugger {
		debug.Store(log)
	}

	c, err := newListCache(conf)
	if err != nil {
		return nil, err
	}
	m, err := newMetrics(conf.Registerer, conf.ServiceName)
	if err != nil {
		return nil, err
	}

	s := &service{
		conf:    conf,
		backend: conf.Backend,
		cache:   c,
		metrics: m,
		log:     log,
		catalog: newCatalog(0, nil),
	}
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *service) Refresh(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()

	attrs, err := s.backend.LoadAttributes(ctx)
	if err != nil {
		return err
	}
	s.catalog = newCatalog(s.catalog.Generation()+1, attrs)
	s.metrics.generation.Set(float64(s.catalog.Generation()))
	d("catalog loaded: %d columns at generation %d", s.catalog.Len(), s.catalog.Generation())
	return nil
}

func (s *service) Catalog() *Catalog {
	s.schemaMu.RLock()
	defer s.schemaMu.RUnlock()
	return s.catalog
}

func (s *service) Columns(ctx context.Context) []AttributeDefinition {
	return s.Catalog().List()
}

func (s *service) Generation() uint64 {
	return s.Catalog().Generation()
}

func (s *service) Submit(ctx context.Context, submitterID int64, payload map[string]string) (Result, error) {
	rec, err := s.submit(ctx, submitterID, payload)
	s.metrics.submissions.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		s.log.WithFields(logrus.Fields{"submitter_id": submitterID, "code": CodeOf(err)}).WithError(err).Debug("lead submission rejected")
		return ResultFromError(err)
	}
	return Result{OK: true, Message: "Lead submitted successfully", RecordID: rec.ID}, nil
}

// submit holds the shared schema lock from validation through the insert so that the record is
// validated and written against one catalog generation.
func (s *service) submit(ctx context.Context, submitterID int64, payload map[string]string) (StoredRecord, error) {
	s.schemaMu.RLock()
	defer s.schemaMu.RUnlock()

	draft, err := Encode(payload, s.catalog)
	if err != nil {
		return StoredRecord{}, err
	}
	rec, err := s.backend.Insert(ctx, submitterID, s.conf.Now(), draft.Values)
	if err != nil {
		return StoredRecord{}, err
	}
	if rec.ID == 0 {
		return StoredRecord{}, storageError("insert lead", errNoRows)
	}

	s.invalidate(ctx, draft.Generation, submitterID)
	return rec, nil
}

func (s *service) ListAll(ctx context.Context) ([]Record, error) {
	s.schemaMu.RLock()
	defer s.schemaMu.RUnlock()

	recs, err := s.cachedList(ctx, listKey(s.conf.ServiceName, s.catalog.Generation(), allSubmitters), func() ([]StoredRecord, error) {
		return s.backend.ListAll(ctx)
	})
	if err != nil {
		return nil, err
	}
	return ProjectAll(recs, s.catalog), nil
}

func (s *service) ListBySubmitter(ctx context.Context, submitterID int64) ([]Record, error) {
	s.schemaMu.RLock()
	defer s.schemaMu.RUnlock()

	recs, err := s.cachedList(ctx, listKey(s.conf.ServiceName, s.catalog.Generation(), submitterID), func() ([]StoredRecord, error) {
		return s.backend.ListBySubmitter(ctx, submitterID)
	})
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		if r.SubmitterID != submitterID {
			continue
		}
		out = append(out, Project(r, s.catalog))
	}
	return out, nil
}

func (s *service) Detail(ctx context.Context, id int64) (Record, bool, error) {
	s.schemaMu.RLock()
	defer s.schemaMu.RUnlock()

	rec, ok, err := s.backend.Detail(ctx, id)
	if err != nil || !ok {
		return Record{}, false, err
	}
	return Project(rec, s.catalog), true, nil
}

func (s *service) Leads(ctx context.Context, who Identity) ([]Record, error) {
	if who.IsAdministrator {
		return s.ListAll(ctx)
	}
	return s.ListBySubmitter(ctx, who.SubmitterID)
}

func (s *service) View(ctx context.Context, who Identity, id int64) (Record, error) {
	rec, ok, err := s.Detail(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if !ok || (!who.IsAdministrator && rec.SubmitterID != who.SubmitterID) {
		return Record{}, newError(CodeUnknownRecord, "", "lead %d does not exist", id)
	}
	return rec, nil
}

func (s *service) Close() error {
	s.notifications.Wait()
	return s.backend.Close()
}

// cachedList serves a listing from the cache, falling back to load and filling the cache. The
// cache is never the source of truth: its failures are logged and the backend is used instead.
func (s *service) cachedList(ctx context.Context, key string, load func() ([]StoredRecord, error)) ([]StoredRecord, error) {
	recs, ok, err := s.cache.get(ctx, key)
	switch {
	case err != nil:
		s.metrics.cache.WithLabelValues("error").Inc()
		s.log.WithField("key", key).WithError(err).Warn("listing cache get failed")
	case ok:
		s.metrics.cache.WithLabelValues("hit").Inc()
		return recs, nil
	default:
		s.metrics.cache.WithLabelValues("miss").Inc()
	}

	recs, err = load()
	if err != nil {
		return nil, err
	}
	if err := s.cache.set(ctx, key, recs); err != nil {
		s.log.WithField("key", key).WithError(err).Warn("listing cache set failed")
	}
	return recs, nil
}

// invalidate drops the listings a write to submitterID's leads makes stale.
func (s *service) invalidate(ctx context.Context, generation uint64, submitterID int64) {
	keys := []string{
		listKey(s.conf.ServiceName, generation, submitterID),
		listKey(s.conf.ServiceName, generation, allSubmitters),
	}
	if err := s.cache.del(ctx, keys...); err != nil {
		s.log.WithField("keys", keys).WithError(err).Warn("listing cache delete failed")
	}
}
