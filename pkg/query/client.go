package query

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/comptox-ai/comptox-api-client/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// Status is the lifecycle position of one cached query.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// NeverStale disables time-based staleness; entries refetch only after Invalidate.
const NeverStale time.Duration = -1

// Fetcher performs the network call behind a query and returns the raw body.
type Fetcher func(ctx context.Context) ([]byte, error)

// Store persists successful bodies so a new process can start from them.
type Store interface {
	Load(key string) ([]byte, bool, error)
	Save(key string, body []byte) error
}

// Options configures a Client.
type Options struct {
	// StaleTime is how long a successful result counts as fresh. Zero means
	// every Ensure refetches while still serving the previous data.
	StaleTime time.Duration
	Store     Store
	Log       Logger
	Now       func() time.Time
}

// Snapshot is a point-in-time copy of one cache entry.
type Snapshot struct {
	Key        string
	Body       []byte
	HasData    bool
	Err        error
	Status     Status
	IsFetching bool
	IsStale    bool
	UpdatedAt  time.Time
}

type entry struct {
	body        []byte
	hasData     bool
	err         error
	status      Status
	fetching    bool
	invalidated bool
	updatedAt   time.Time
	subs        map[uint64]func(Snapshot)
}

// flight is the context shared by every caller waiting on one key. It is
// cancelled once the last waiter leaves.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Client tracks per-key query state, deduplicates in-flight fetches and
// caches successful bodies.
type Client struct {
	mu      sync.Mutex
	entries map[string]*entry
	flights map[string]*flight
	group   singleflight.Group
	nextSub uint64
	opts    Options
}

// NewClient builds a query client.
func NewClient(opts Options) *Client {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Log = ensureLogger(opts.Log)
	return &Client{
		entries: make(map[string]*entry),
		flights: make(map[string]*flight),
		opts:    opts,
	}
}

// Key encodes an operation name and its positional arguments into one cache key.
func Key(name string, args ...string) string {
	parts := append([]string{name}, args...)
	raw, _ := json.Marshal(parts)
	return string(raw)
}

// Ensure returns the cached body when it is fresh and fetches otherwise.
func (c *Client) Ensure(ctx context.Context, key string, fn Fetcher) ([]byte, error) {
	c.hydrate(key)

	c.mu.Lock()
	e := c.entryLocked(key)
	if e.hasData && !c.staleLocked(e) {
		body := cloneBytes(e.body)
		c.mu.Unlock()
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return body, nil
	}
	result := "miss"
	if e.hasData {
		result = "stale"
	}
	c.mu.Unlock()

	metrics.CacheLookups.WithLabelValues(result).Inc()
	return c.Fetch(ctx, key, fn)
}

// Fetch always calls fn, sharing the call with concurrent fetches of the same key.
// The shared call outlives any single caller and is cancelled only when every
// waiter has gone.
func (c *Client) Fetch(ctx context.Context, key string, fn Fetcher) ([]byte, error) {
	if fn == nil {
		return nil, fmt.Errorf("query %s has no fetcher", key)
	}
	c.hydrate(key)

	fl := c.join(ctx, key)
	defer c.leave(key, fl)

	ch := c.group.DoChan(key, func() (any, error) {
		return c.run(fl.ctx, key, fn)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		body, _ := res.Val.([]byte)
		return cloneBytes(body), nil
	}
}

func (c *Client) run(ctx context.Context, key string, fn Fetcher) ([]byte, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	prev := e.status
	e.fetching = true
	if !e.hasData {
		e.status = StatusLoading
	}
	subs, snap := c.notifyLocked(key, e)
	c.mu.Unlock()
	publish(subs, snap)

	body, err := fn(ctx)

	c.mu.Lock()
	e = c.entryLocked(key)
	e.fetching = false
	switch {
	case err != nil && ctx.Err() != nil:
		// abandoned by every waiter; not a backend failure
		e.status = prev
	case err != nil:
		// previous data stays available next to the error
		e.err = err
		e.status = StatusError
	default:
		e.body = cloneBytes(body)
		e.hasData = true
		e.err = nil
		e.status = StatusSuccess
		e.invalidated = false
		e.updatedAt = c.opts.Now()
	}
	subs, snap = c.notifyLocked(key, e)
	c.mu.Unlock()
	publish(subs, snap)

	if err != nil {
		c.opts.Log.DebugObj("query fetch failed", "query_error", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		return nil, err
	}

	if c.opts.Store != nil {
		if serr := c.opts.Store.Save(key, body); serr != nil {
			c.opts.Log.WarnObj("query cache persist failed", "query_store_error", map[string]any{
				"key":   key,
				"error": serr.Error(),
			})
		}
	}
	return body, nil
}

func (c *Client) join(ctx context.Context, key string) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()
	fl, ok := c.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fl = &flight{ctx: fctx, cancel: cancel}
		c.flights[key] = fl
	}
	fl.waiters++
	return fl
}

func (c *Client) leave(key string, fl *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fl.waiters--
	if fl.waiters > 0 {
		return
	}
	if c.flights[key] == fl {
		delete(c.flights, key)
	}
	// later callers must not join a call that is being torn down
	c.group.Forget(key)
	fl.cancel()
}

// Snapshot returns the current state for key. An unknown key is read from
// the store without creating a cache entry.
func (c *Client) Snapshot(key string) Snapshot {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		defer c.mu.Unlock()
		return c.snapshotLocked(key, e)
	}
	c.mu.Unlock()

	e := c.load(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(key, e)
}

// Invalidate marks the given keys stale so the next Ensure refetches them.
func (c *Client) Invalidate(keys ...string) {
	c.invalidate(func(key string) bool { return slices.Contains(keys, key) })
}

// InvalidateWhere marks every cached key matching pred stale and returns how many matched.
func (c *Client) InvalidateWhere(pred func(key string) bool) int {
	return c.invalidate(pred)
}

func (c *Client) invalidate(pred func(key string) bool) int {
	type note struct {
		subs []func(Snapshot)
		snap Snapshot
	}
	var notes []note

	n := 0
	c.mu.Lock()
	for key, e := range c.entries {
		if !pred(key) {
			continue
		}
		n++
		e.invalidated = true
		if subs, snap := c.notifyLocked(key, e); len(subs) > 0 {
			notes = append(notes, note{subs: subs, snap: snap})
		}
	}
	c.mu.Unlock()

	for _, nt := range notes {
		publish(nt.subs, nt.snap)
	}
	return n
}

// Remove drops key from the in-memory cache. Subscribers are kept.
func (c *Client) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return
	}
	if len(e.subs) == 0 {
		delete(c.entries, key)
		return
	}
	c.entries[key] = &entry{status: StatusIdle, subs: e.subs}
}

// Subscribe registers fn for every state change of key. The returned func unsubscribes.
func (c *Client) Subscribe(key string, fn func(Snapshot)) func() {
	c.hydrate(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	c.nextSub++
	id := c.nextSub
	if e.subs == nil {
		e.subs = make(map[uint64]func(Snapshot))
	}
	e.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if cur, ok := c.entries[key]; ok {
			delete(cur.subs, id)
		}
	}
}

// entryLocked returns the entry for key, creating an idle one if needed.
// Callers hold c.mu.
func (c *Client) entryLocked(key string) *entry {
	if e, ok := c.entries[key]; ok {
		return e
	}
	e := &entry{status: StatusIdle}
	c.entries[key] = e
	return e
}

// hydrate seeds a missing entry from the store. The store is read without
// holding c.mu.
func (c *Client) hydrate(key string) {
	c.mu.Lock()
	_, ok := c.entries[key]
	c.mu.Unlock()
	if ok || c.opts.Store == nil {
		return
	}

	e := c.load(key)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return
	}
	c.entries[key] = e
	if e.hasData {
		metrics.CacheLookups.WithLabelValues("hydrated").Inc()
	}
}

// load builds an entry from the persisted body of key, if any.
func (c *Client) load(key string) *entry {
	e := &entry{status: StatusIdle}
	if c.opts.Store == nil {
		return e
	}
	body, ok, err := c.opts.Store.Load(key)
	switch {
	case err != nil:
		c.opts.Log.WarnObj("query cache hydrate failed", "query_store_error", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
	case ok:
		// hydrated data has no fetch time and is always stale
		e.body = body
		e.hasData = true
		e.status = StatusSuccess
	}
	return e
}

func (c *Client) staleLocked(e *entry) bool {
	if e.invalidated || e.updatedAt.IsZero() {
		return true
	}
	if c.opts.StaleTime < 0 {
		return false
	}
	return c.opts.Now().Sub(e.updatedAt) >= c.opts.StaleTime
}

func (c *Client) snapshotLocked(key string, e *entry) Snapshot {
	return Snapshot{
		Key:        key,
		Body:       cloneBytes(e.body),
		HasData:    e.hasData,
		Err:        e.err,
		Status:     e.status,
		IsFetching: e.fetching,
		IsStale:    e.hasData && c.staleLocked(e),
		UpdatedAt:  e.updatedAt,
	}
}

func (c *Client) notifyLocked(key string, e *entry) ([]func(Snapshot), Snapshot) {
	if len(e.subs) == 0 {
		return nil, Snapshot{}
	}
	subs := make([]func(Snapshot), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	return subs, c.snapshotLocked(key, e)
}

func publish(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
