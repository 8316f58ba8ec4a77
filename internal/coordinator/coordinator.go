// Package coordinator drives the sync cycle: push dirty entities, pull the
// remote changes since the last cursor, reconcile them and commit the cursor.
// Each phase is idempotent, so a crash or a transient failure at any point
// only means the same work is redone on the next cycle.
package coordinator

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/mkorchagin/finsync/internal/common"
	"github.com/mkorchagin/finsync/internal/dbx"
	"github.com/mkorchagin/finsync/internal/local"
	"github.com/mkorchagin/finsync/internal/logging"
	"github.com/mkorchagin/finsync/internal/remote"
	"github.com/mkorchagin/finsync/internal/resolver"
	"github.com/mkorchagin/finsync/internal/syncable"
)

// PurgeHook runs before a tombstone is physically purged, so external
// resources tied to the entity (receipt blobs) can be released first.
type PurgeHook func(ctx context.Context, e syncable.Entity) error

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithInterval sets the periodic sync interval.
func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.interval = d }
}

// WithBackoff sets the exponential backoff bounds for transient failures.
func WithBackoff(min, max time.Duration) Option {
	return func(c *Coordinator) { c.backoffMin, c.backoffMax = min, max }
}

// WithMaxRetries caps the retry attempts per cycle.
func WithMaxRetries(n uint64) Option {
	return func(c *Coordinator) { c.maxRetries = n }
}

// WithTombstoneRetention enables physical removal of tombstones that have
// been synced and are older than d. Zero keeps tombstones forever.
func WithTombstoneRetention(d time.Duration) Option {
	return func(c *Coordinator) { c.retention = d }
}

// WithPurgeHook registers a cleanup hook for one collection.
func WithPurgeHook(collection string, hook PurgeHook) Option {
	return func(c *Coordinator) { c.purgeHooks[collection] = hook }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Coordinator owns the sync state machine for a set of collections.
type Coordinator struct {
	db          *sql.DB
	remote      remote.Store
	cursors     *local.CursorStore
	collections []Collection
	logger      logging.Logger

	interval   time.Duration
	backoffMin time.Duration
	backoffMax time.Duration
	maxRetries uint64
	retention  time.Duration
	purgeHooks map[string]PurgeHook
	now        func() time.Time

	trigger   chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu sync.Mutex // one cycle at a time
}

func New(db *sql.DB, rs remote.Store, cursors *local.CursorStore, collections []Collection, logger logging.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		db:          db,
		remote:      rs,
		cursors:     cursors,
		collections: collections,
		logger:      logger.With("component", "coordinator"),
		interval:    30 * time.Second,
		backoffMin:  time.Second,
		backoffMax:  30 * time.Second,
		maxRetries:  5,
		purgeHooks:  make(map[string]PurgeHook),
		now:         time.Now,
		trigger:     make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notify requests a sync soon. Safe to call from any goroutine; bursts
// coalesce into a single pending trigger.
func (c *Coordinator) Notify() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Close stops Run.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Run executes cycles until the context is cancelled or Close is called.
// Cycles fire on the periodic interval and on Notify.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
		case <-c.trigger:
		}

		if err := c.SyncNow(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Error(ctx, "sync cycle failed", "error", err)
		}
	}
}

// SyncNow runs one full cycle, retrying transient failures with exponential
// backoff. Non-transient failures (corruption, permission) are returned
// without retrying; the affected entities stay dirty.
func (c *Coordinator) SyncNow(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := retry.NewExponential(c.backoffMin)
	b = retry.WithCappedDuration(c.backoffMax, b)
	b = retry.WithMaxRetries(c.maxRetries, b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := c.cycle(ctx)
		if common.IsTransient(err) {
			c.logger.Warn(ctx, "transient sync failure, backing off", "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

// cycle pushes then pulls every collection. Transient errors abort the cycle
// so the backoff can kick in; everything else is collected so one bad entity
// cannot stall the rest.
func (c *Coordinator) cycle(ctx context.Context) error {
	var failures []error

	for _, col := range c.collections {
		if err := c.push(ctx, col); err != nil {
			if common.IsTransient(err) {
				return err
			}
			failures = append(failures, err)
		}
		if err := c.pull(ctx, col); err != nil {
			if common.IsTransient(err) {
				return err
			}
			failures = append(failures, err)
		}
	}

	if c.retention > 0 {
		if err := c.purgeExpired(ctx); err != nil {
			if common.IsTransient(err) {
				return err
			}
			failures = append(failures, err)
		}
	}

	return errors.Join(failures...)
}

type pushItem struct {
	id   string
	doc  syncable.Document
	mark local.Mark
}

// push encodes the collection's dirty set and sends it in one remote batch.
// Corrupt entities are skipped and stay dirty. If the batch is rejected the
// documents are retried one by one, so a single denied write cannot hold the
// rest of the collection hostage.
func (c *Coordinator) push(ctx context.Context, col Collection) error {
	dirty, err := col.FetchDirty(ctx)
	if err != nil {
		return err
	}
	if len(dirty) == 0 {
		return nil
	}

	var items []pushItem
	var failures []error
	for _, e := range dirty {
		m := e.SyncMeta()
		var doc syncable.Document
		if m.IsDeleted {
			doc, err = syncable.ToTombstoneDocument(e)
		} else {
			if err = syncable.ValidateForSync(e); err == nil {
				doc, err = syncable.ToDocument(e)
			}
		}
		if err != nil {
			c.logger.Error(ctx, "skipping unpushable entity",
				"collection", col.Name(), "id", m.ID, "error", err)
			failures = append(failures, err)
			continue
		}
		items = append(items, pushItem{
			id:   m.ID,
			doc:  doc,
			mark: local.Mark{ID: m.ID, LastUpdated: m.LastUpdated},
		})
	}
	if len(items) == 0 {
		return errors.Join(failures...)
	}

	ops := make([]remote.Operation, len(items))
	for i, it := range items {
		ops[i] = remote.UpsertOp(col.Name(), it.id, it.doc)
	}

	if err := c.remote.ExecuteTransaction(ctx, ops); err != nil {
		if errors.Is(err, common.ErrRemoteUnavailable) {
			return err
		}
		return c.pushOneByOne(ctx, col, items, failures)
	}

	marks := make([]local.Mark, len(items))
	for i, it := range items {
		marks[i] = it.mark
	}
	if err := col.MarkSynced(ctx, marks); err != nil {
		return err
	}

	c.logger.Debug(ctx, "pushed", "collection", col.Name(), "count", len(marks))
	return errors.Join(failures...)
}

// pushOneByOne is the fallback after an aborted batch. Entities that go
// through are marked synced; rejected ones are reported and stay dirty.
func (c *Coordinator) pushOneByOne(ctx context.Context, col Collection, items []pushItem, failures []error) error {
	var synced []local.Mark
	for _, it := range items {
		if err := c.remote.Upsert(ctx, col.Name(), it.id, it.doc); err != nil {
			if common.IsTransient(err) {
				return err
			}
			c.logger.Error(ctx, "push rejected",
				"collection", col.Name(), "id", it.id, "error", err)
			failures = append(failures, err)
			continue
		}
		synced = append(synced, it.mark)
	}
	if err := col.MarkSynced(ctx, synced); err != nil {
		return err
	}
	return errors.Join(failures...)
}

// pull fetches the remote changes past the cursor and reconciles them inside
// one local transaction. The cursor advances in the same transaction, and
// only when every document of the window was reconciled; a skipped document
// keeps the cursor in place so the window is pulled again.
func (c *Coordinator) pull(ctx context.Context, col Collection) error {
	since, err := c.cursors.Get(ctx, col.Name())
	if err != nil {
		return err
	}

	changed, err := c.remote.ChangedSince(ctx, col.Name(), since)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}

	var skipped []error
	err = dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		txCol := col.Bind(tx)
		cursor := since

		for id, doc := range changed {
			if err := c.reconcile(ctx, txCol, id, doc); err != nil {
				if errors.Is(err, common.ErrDataCorruption) {
					c.logger.Error(ctx, "skipping corrupt document",
						"collection", col.Name(), "id", id, "error", err)
					skipped = append(skipped, err)
					continue
				}
				return err
			}
			if ts := syncable.BestTimestamp(doc); ts.After(cursor) {
				cursor = ts
			}
		}

		if len(skipped) == 0 && cursor.After(since) {
			return c.cursors.Bind(tx).Put(ctx, col.Name(), cursor)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.logger.Debug(ctx, "pulled", "collection", col.Name(), "count", len(changed))
	return errors.Join(skipped...)
}

// reconcile applies one remote document against the local row, deferring the
// winner decision to the resolver. Local winners are left untouched so their
// dirty state survives and the next push propagates them.
func (c *Coordinator) reconcile(ctx context.Context, col Collection, id string, doc syncable.Document) error {
	e, found, err := col.Get(ctx, id)
	if err != nil {
		return err
	}

	if !found {
		if syncable.IsTombstone(doc) {
			// deletion of something never seen locally
			return nil
		}
		fresh := col.New()
		if err := syncable.ApplyDocument(fresh, doc); err != nil {
			return err
		}
		fresh.SyncMeta().Status = syncable.StateSynced
		return col.Save(ctx, fresh)
	}

	switch resolver.Resolve(e, doc) {
	case resolver.KeepLocal, resolver.TombstoneLocal:
		return nil
	case resolver.KeepRemote:
		if err := syncable.ApplyDocument(e, doc); err != nil {
			return err
		}
	case resolver.TombstoneRemote:
		if err := syncable.ApplyTombstoneDocument(e, doc); err != nil {
			return err
		}
	}
	e.SyncMeta().Status = syncable.StateSynced
	return col.Save(ctx, e)
}

// purgeExpired physically removes tombstones that have been synced and whose
// deletion is older than the retention window, remote copy first so a crash
// in between leaves only an orphaned local tombstone that is retried later.
func (c *Coordinator) purgeExpired(ctx context.Context) error {
	cutoff := c.now().Add(-c.retention)
	var failures []error

	for _, col := range c.collections {
		all, err := col.FetchAll(ctx, true)
		if err != nil {
			return err
		}
		for _, e := range all {
			m := e.SyncMeta()
			if !m.IsDeleted || m.Status != syncable.StateSynced {
				continue
			}
			if m.DeletedAt == nil || m.DeletedAt.After(cutoff) {
				continue
			}

			if hook := c.purgeHooks[col.Name()]; hook != nil {
				if err := hook(ctx, e); err != nil {
					c.logger.Warn(ctx, "purge hook failed, keeping tombstone",
						"collection", col.Name(), "id", m.ID, "error", err)
					failures = append(failures, err)
					continue
				}
			}
			if err := c.remote.Delete(ctx, col.Name(), m.ID); err != nil {
				if common.IsTransient(err) {
					return err
				}
				failures = append(failures, err)
				continue
			}
			if err := col.Purge(ctx, m.ID); err != nil {
				return err
			}
			c.logger.Debug(ctx, "purged tombstone", "collection", col.Name(), "id", m.ID)
		}
	}

	return errors.Join(failures...)
}
