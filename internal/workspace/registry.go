// Package workspace tracks the open documents and which one is active.
//
// Each document owns a history.Manager. Every change the manager publishes
// is written behind to the store: live keystrokes are batched, while
// commits, undo and redo are written through at once. Store failures are
// logged and never reach the history.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/notepad/internal/debounce"
	"github.com/dshills/notepad/internal/history"
	"github.com/dshills/notepad/internal/logging"
	"github.com/dshills/notepad/internal/store"
)

// DefaultPersistDelay batches live-value writes.
const DefaultPersistDelay = 250 * time.Millisecond

// storeTimeout bounds background store writes.
const storeTimeout = 5 * time.Second

// Option configures a Registry.
type Option func(*Registry)

// WithStore persists documents and the tab index to s.
func WithStore(s store.Store) Option {
	return func(r *Registry) {
		r.store = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMaxEntries sets the history capacity of each document.
func WithMaxEntries(n int) Option {
	return func(r *Registry) {
		if n >= history.MinMaxEntries {
			r.maxEntries = n
		}
	}
}

// WithQuietPeriod sets the history debounce of each document.
func WithQuietPeriod(d time.Duration) Option {
	return func(r *Registry) {
		if d >= 0 {
			r.quiet = d
		}
	}
}

// WithPersistDelay sets how long live edits are batched before being stored.
func WithPersistDelay(d time.Duration) Option {
	return func(r *Registry) {
		if d >= 0 {
			r.persistDelay = d
		}
	}
}

// WithScheduler sets the scheduler used by document histories.
func WithScheduler(s history.Scheduler) Option {
	return func(r *Registry) {
		if s != nil {
			r.sched = s
		}
	}
}

// ChangeObserver is notified of every change to any open document.
type ChangeObserver func(doc *Document, change history.Change)

// Registry holds the open documents in tab order.
// All methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	docs   map[string]*Document
	order  []string
	active string
	closed bool

	store        store.Store
	logger       *logging.Logger
	maxEntries   int
	quiet        time.Duration
	persistDelay time.Duration
	sched        history.Scheduler
	observers    []ChangeObserver
}

// New creates an empty registry. Call Restore or Create before use.
func New(opts ...Option) *Registry {
	r := &Registry{
		docs:         make(map[string]*Document),
		logger:       logging.Nop(),
		maxEntries:   history.TabMaxEntries,
		quiet:        history.DefaultQuietPeriod,
		persistDelay: DefaultPersistDelay,
		sched:        history.SystemScheduler{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("workspace")
	return r
}

// Restore reopens the documents recorded in the store. With no store, or
// nothing stored, a single empty document is created.
func (r *Registry) Restore(ctx context.Context) error {
	r.mu.RLock()
	closed, count := r.closed, len(r.docs)
	r.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if count > 0 {
		return NewOperationError("restore", "", fmt.Errorf("%d documents already open", count))
	}

	ids, active, err := r.loadIndex(ctx)
	if err != nil {
		return err
	}

	docs := make([]*Document, 0, len(ids))
	for _, id := range ids {
		text, err := r.store.Get(ctx, store.DocumentKey(id))
		if errors.Is(err, store.ErrNotFound) {
			text = ""
		} else if err != nil {
			return NewOperationError("restore", id, err)
		}
		docs = append(docs, r.newDocument(id, text))
	}

	if len(docs) == 0 {
		if _, err := r.Create(ctx, ""); err != nil {
			return err
		}
		r.logger.Info("started with a new document")
		return nil
	}

	r.mu.Lock()
	for _, doc := range docs {
		r.docs[doc.ID] = doc
		r.order = append(r.order, doc.ID)
	}
	r.active = r.order[0]
	if _, ok := r.docs[active]; ok {
		r.active = active
	}
	r.mu.Unlock()

	r.logger.Info("restored %d documents", len(docs))
	return nil
}

func (r *Registry) loadIndex(ctx context.Context) ([]string, string, error) {
	if r.store == nil {
		return nil, "", nil
	}

	raw, err := r.store.Get(ctx, store.KeyTabs)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", NewOperationError("restore", store.KeyTabs, err)
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		r.logger.Warn("discarding unreadable tab index: %v", err)
		return nil, "", nil
	}

	seen := make(map[string]bool, len(ids))
	uniq := ids[:0]
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}

	active, err := r.store.Get(ctx, store.KeyActiveTab)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, "", NewOperationError("restore", store.KeyActiveTab, err)
	}
	return uniq, active, nil
}

// Create opens a new document holding initial and makes it active.
func (r *Registry) Create(ctx context.Context, initial string) (*Document, error) {
	doc := r.newDocument(uuid.NewString(), initial)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.docs[doc.ID] = doc
	r.order = append(r.order, doc.ID)
	r.active = doc.ID
	ids, active := r.indexLocked()
	r.mu.Unlock()

	if initial != "" {
		r.persistNow(doc)
	}
	r.logIndexErr(r.saveIndex(ctx, ids, active))
	r.logger.Debug("created document %s", doc.ID)
	return doc, nil
}

func (r *Registry) newDocument(id, text string) *Document {
	doc := &Document{ID: id}
	doc.persist = debounce.New(r.persistDelay, func() {
		r.persistNow(doc)
	})
	doc.History = history.New(text,
		history.WithMaxEntries(r.maxEntries),
		history.WithQuietPeriod(r.quiet),
		history.WithScheduler(r.sched),
		history.WithLogger(r.logger.WithField("doc", id)),
		history.WithObserver(func(c history.Change) {
			doc.persist.Call()
			if c.Kind != history.ChangeLive {
				doc.persist.Flush()
			}
			r.notify(doc, c)
		}),
	)
	return doc
}

// Observe registers an observer for changes to every document.
func (r *Registry) Observe(o ChangeObserver) {
	if o == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

func (r *Registry) notify(doc *Document, c history.Change) {
	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()
	for _, o := range observers {
		o(doc, c)
	}
}

// Get returns the document with the given id.
func (r *Registry) Get(id string) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrClosed
	}
	doc, ok := r.docs[id]
	if !ok {
		return nil, NewOperationError("get", id, ErrDocumentNotFound)
	}
	return doc, nil
}

// Active returns the active document, or nil when none is open.
func (r *Registry) Active() *Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.docs[r.active]
}

// SetActive makes the document with the given id active.
func (r *Registry) SetActive(ctx context.Context, id string) (*Document, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	doc, ok := r.docs[id]
	if !ok {
		r.mu.Unlock()
		return nil, NewOperationError("activate", id, ErrDocumentNotFound)
	}
	r.active = id
	r.mu.Unlock()

	r.logIndexErr(r.put(ctx, store.KeyActiveTab, id))
	return doc, nil
}

// All returns the open documents in tab order.
func (r *Registry) All() []*Document {
	r.mu.RLock()
	defer r.mu.RUnlock()

	docs := make([]*Document, 0, len(r.order))
	for _, id := range r.order {
		docs = append(docs, r.docs[id])
	}
	return docs
}

// Count returns the number of open documents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

// Next activates the document after the active one, wrapping around.
func (r *Registry) Next(ctx context.Context) *Document {
	return r.shift(ctx, 1)
}

// Previous activates the document before the active one, wrapping around.
func (r *Registry) Previous(ctx context.Context) *Document {
	return r.shift(ctx, -1)
}

func (r *Registry) shift(ctx context.Context, delta int) *Document {
	r.mu.Lock()
	if r.closed || len(r.order) == 0 {
		r.mu.Unlock()
		return nil
	}

	idx := 0
	for i, id := range r.order {
		if id == r.active {
			idx = i
			break
		}
	}
	idx = (idx + delta + len(r.order)) % len(r.order)
	r.active = r.order[idx]
	doc, active := r.docs[r.active], r.active
	r.mu.Unlock()

	r.logIndexErr(r.put(ctx, store.KeyActiveTab, active))
	return doc
}

// Close closes the document with the given id, cancels its pending edits
// and deletes its stored text. The last open document cannot be closed.
// When the active document is closed the first remaining one becomes active.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	doc, ok := r.docs[id]
	if !ok {
		r.mu.Unlock()
		return NewOperationError("close", id, ErrDocumentNotFound)
	}
	if len(r.docs) == 1 {
		r.mu.Unlock()
		return NewOperationError("close", id, ErrLastDocument)
	}

	delete(r.docs, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.active == id {
		r.active = r.order[0]
	}
	ids, active := r.indexLocked()
	r.mu.Unlock()

	doc.persist.Cancel()
	doc.History.Close()
	doc.mu.Lock()
	doc.closed = true
	doc.mu.Unlock()

	if r.store != nil {
		if err := r.store.Delete(ctx, store.DocumentKey(id)); err != nil {
			r.logger.Warn("deleting document %s: %v", id, err)
		}
	}
	r.logIndexErr(r.saveIndex(ctx, ids, active))
	r.logger.Debug("closed document %s", id)
	return nil
}

// Flush writes every document's live value and the tab index to the store
// now, without waiting for batched writes.
func (r *Registry) Flush(ctx context.Context) error {
	r.mu.RLock()
	docs := make([]*Document, 0, len(r.order))
	for _, id := range r.order {
		docs = append(docs, r.docs[id])
	}
	ids, active := r.indexLocked()
	r.mu.RUnlock()

	var errs []error
	for _, doc := range docs {
		doc.persist.Cancel()
		if err := r.save(ctx, doc); err != nil {
			errs = append(errs, NewOperationError("flush", doc.ID, err))
		}
	}
	if err := r.saveIndex(ctx, ids, active); err != nil {
		errs = append(errs, NewOperationError("flush", store.KeyTabs, err))
	}
	return errors.Join(errs...)
}

// Shutdown flushes the registry and closes every document's history.
// The registry cannot be used afterwards.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	err := r.Flush(ctx)

	r.mu.Lock()
	r.closed = true
	docs := make([]*Document, 0, len(r.docs))
	for _, doc := range r.docs {
		docs = append(docs, doc)
	}
	r.mu.Unlock()

	for _, doc := range docs {
		doc.persist.Cancel()
		doc.History.Close()
	}
	r.logger.Info("workspace shut down with %d documents", len(docs))
	return err
}

func (r *Registry) indexLocked() ([]string, string) {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids, r.active
}

// persistNow writes doc in the background path, logging failures.
func (r *Registry) persistNow(doc *Document) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := r.save(ctx, doc); err != nil {
		r.logger.WithField("doc", doc.ID).Warn("persist failed: %v", err)
	}
}

func (r *Registry) save(ctx context.Context, doc *Document) error {
	if r.store == nil {
		return nil
	}
	doc.mu.Lock()
	defer doc.mu.Unlock()
	if doc.closed {
		return nil
	}
	return r.store.Put(ctx, store.DocumentKey(doc.ID), doc.History.Value())
}

func (r *Registry) saveIndex(ctx context.Context, ids []string, active string) error {
	if r.store == nil {
		return nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := r.store.Put(ctx, store.KeyTabs, string(data)); err != nil {
		return err
	}
	return r.store.Put(ctx, store.KeyActiveTab, active)
}

func (r *Registry) put(ctx context.Context, key, value string) error {
	if r.store == nil {
		return nil
	}
	return r.store.Put(ctx, key, value)
}

func (r *Registry) logIndexErr(err error) {
	if err != nil {
		r.logger.Warn("saving tab index: %v", err)
	}
}
