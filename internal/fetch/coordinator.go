package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"harbormast/internal/cachemanager"
	"harbormast/internal/log"
	"harbormast/internal/pubsub"
	"harbormast/internal/registry"
)

// Handle identifies one outstanding fetch request.
type Handle struct {
	ID     uuid.UUID
	Key    registry.Key
	Cursor string
}

// Config holds coordinator policy knobs, all supplied by configuration.
type Config struct {
	// PageSize is the number of items requested per page.
	PageSize int
	// RetryBackoff is the delay before the single retry of a
	// rate-limited request.
	RetryBackoff time.Duration
	// Tracer traces individual network calls. Optional.
	Tracer trace.Tracer
}

// Coordinator is the sole caller of the registry client. It guarantees
// at most one network request per (key, cursor) pair, coalescing
// concurrent callers onto the outstanding flight, and applies results
// to the cache guarded by a per-key sequence number so a cancelled or
// superseded response never overwrites a newer one.
type Coordinator struct {
	client       registry.Client
	cache        *cachemanager.ResourceCache
	broker       *pubsub.Broker[Result]
	pageSize     int
	retryBackoff time.Duration
	tracer       trace.Tracer

	mu       sync.Mutex
	inflight map[string]*flight
	seqs     map[string]uint64
}

type flight struct {
	handle    Handle
	seq       uint64
	cancelled bool
	cancel    context.CancelFunc
}

func flightKey(key registry.Key, cursor string) string {
	return key.String() + "#" + cursor
}

// NewCoordinator creates a coordinator over client and cache.
func NewCoordinator(client registry.Client, cache *cachemanager.ResourceCache, cfg Config) *Coordinator {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("fetch")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Coordinator{
		client:       client,
		cache:        cache,
		broker:       pubsub.NewBroker[Result](),
		pageSize:     cfg.PageSize,
		retryBackoff: cfg.RetryBackoff,
		tracer:       tracer,
		inflight:     make(map[string]*flight),
		seqs:         make(map[string]uint64),
	}
}

// Broker exposes the event stream of completed fetches.
func (c *Coordinator) Broker() *pubsub.Broker[Result] { return c.broker }

// Close shuts down the event broker. Outstanding flights finish but
// their results are no longer delivered.
func (c *Coordinator) Close() { c.broker.Close() }

// Request schedules a fetch of one page. Concurrent requests for the
// same (key, cursor) share a single network call and a single result
// event; the returned handle refers to the shared flight.
func (c *Coordinator) Request(key registry.Key, cursor string) Handle {
	c.mu.Lock()
	fk := flightKey(key, cursor)
	if f, ok := c.inflight[fk]; ok {
		c.mu.Unlock()
		log.Debug(log.CatFetch, "coalescing onto in-flight request", "key", key, "cursor", cursor)
		return f.handle
	}

	seq := c.seqs[key.String()] + 1
	c.seqs[key.String()] = seq

	ctx, cancel := context.WithCancel(context.Background())
	f := &flight{
		handle: Handle{ID: uuid.New(), Key: key, Cursor: cursor},
		seq:    seq,
		cancel: cancel,
	}
	c.inflight[fk] = f
	c.mu.Unlock()

	log.Debug(log.CatFetch, "issuing request", "key", key, "cursor", cursor, "seq", seq)
	go c.run(ctx, f)
	return f.handle
}

// Cancel marks the flight behind handle cancelled. The network call is
// not guaranteed to abort, but its eventual result is discarded. The
// flight leaves the dedup table immediately so a new request for the
// same pair starts a fresh flight instead of joining a doomed one.
func (c *Coordinator) Cancel(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fk := flightKey(h.Key, h.Cursor)
	if f, ok := c.inflight[fk]; ok && f.handle.ID == h.ID {
		f.cancelled = true
		f.cancel()
		delete(c.inflight, fk)
	}
}

// CancelKey cancels every outstanding flight for key. Called when
// navigation moves away from a location before its fetches resolve.
func (c *Coordinator) CancelKey(key registry.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for fk, f := range c.inflight {
		if f.handle.Key == key {
			f.cancelled = true
			f.cancel()
			delete(c.inflight, fk)
		}
	}
}

func (c *Coordinator) run(ctx context.Context, f *flight) {
	key, cursor := f.handle.Key, f.handle.Cursor

	ctx, span := c.tracer.Start(ctx, "registry.list",
		trace.WithAttributes(
			attribute.String("registry.kind", string(key.Kind)),
			attribute.String("registry.parent", key.Parent),
			attribute.String("registry.cursor", cursor),
		))
	page, err := c.list(ctx, key, cursor)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	c.complete(f, page, err)
}

// list performs the network call, retrying a rate-limited response once
// after a bounded backoff. All other failures surface immediately.
func (c *Coordinator) list(ctx context.Context, key registry.Key, cursor string) (registry.Page, error) {
	operation := func() (registry.Page, error) {
		page, err := c.client.List(ctx, key.Kind, key.Parent, cursor, c.pageSize)
		if err != nil {
			if registry.IsRateLimited(err) {
				log.Warn(log.CatFetch, "rate limited, backing off", "key", key)
				return registry.Page{}, err
			}
			return registry.Page{}, backoff.Permanent(err)
		}
		return page, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryBackoff)),
		backoff.WithMaxTries(2))
}

func (c *Coordinator) complete(f *flight, page registry.Page, err error) {
	key, cursor := f.handle.Key, f.handle.Cursor

	c.mu.Lock()
	fk := flightKey(key, cursor)
	if c.inflight[fk] == f {
		delete(c.inflight, fk)
	}
	cancelled := f.cancelled
	c.mu.Unlock()

	if cancelled {
		log.Debug(log.CatFetch, "suppressing cancelled result", "key", key, "cursor", cursor, "seq", f.seq)
		return
	}

	if err != nil {
		re, ok := registry.AsError(err)
		if !ok {
			re = registry.WrapError(registry.ErrorNetwork, "list "+string(key.Kind), err)
		}
		log.ErrorErr(log.CatFetch, "fetch failed", re, "key", key, "cursor", cursor, "kind", re.Kind)
		c.broker.Publish(pubsub.FetchFailedEvent, Result{Key: key, Cursor: cursor, Seq: f.seq, Err: re})
		return
	}

	entry, discarded, verr := c.assemble(key, cursor, page, f.seq)
	if discarded {
		// The sequence was invalidated while this page was in flight.
		// The restarted sequence refetches from the top, so the result
		// is dropped like a cancelled flight, not surfaced as an error.
		log.Debug(log.CatFetch, "dropping page for discarded sequence", "key", key, "cursor", cursor, "seq", f.seq)
		return
	}
	if verr != nil {
		log.ErrorErr(log.CatFetch, "page violates server contract", verr, "key", key, "cursor", cursor)
		c.broker.Publish(pubsub.FetchFailedEvent, Result{Key: key, Cursor: cursor, Seq: f.seq, Err: verr})
		return
	}

	if !c.cache.Put(key, entry) {
		// A more recently issued request already wrote this key.
		log.Debug(log.CatFetch, "dropping superseded result", "key", key, "seq", f.seq)
		return
	}

	applied, _ := c.cache.Get(key)
	log.Info(log.CatFetch, "fetched", "key", key, "cursor", cursor,
		"items", len(applied.Items), "exhausted", applied.Exhausted)
	c.broker.Publish(pubsub.FetchedEvent, Result{Key: key, Cursor: cursor, Seq: f.seq, Entry: applied})
}

// assemble merges the fetched page into the running sequence for key.
// The first page starts a fresh sequence; later pages append in server
// order. An advance page whose sequence was invalidated while it was in
// flight reports discarded=true and is dropped by the caller. A
// duplicate item identifier anywhere in the assembled sequence is a
// protocol violation surfaced to the caller, never silently fixed.
func (c *Coordinator) assemble(key registry.Key, cursor string, page registry.Page, seq uint64) (entry cachemanager.Entry, discarded bool, verr *registry.Error) {
	var items []registry.Item
	if cursor != "" {
		existing, freshness := c.cache.Get(key)
		if freshness == cachemanager.Absent {
			return cachemanager.Entry{}, true, nil
		}
		items = append(items, existing.Items...)
	}
	items = append(items, page.Items...)

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			return cachemanager.Entry{}, false, registry.NewError(registry.ErrorProtocol,
				"list "+string(key.Kind), "duplicate item "+item.ID+" across pages")
		}
		seen[item.ID] = struct{}{}
	}

	return cachemanager.Entry{
		Items:      items,
		NextCursor: page.NextCursor,
		Exhausted:  page.NextCursor == "",
		Seq:        seq,
	}, false, nil
}
