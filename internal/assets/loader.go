package assets

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fetcher is the byte-fetch primitive. Implementations classify failures as
// *NetworkError or *HTTPStatusError.
type Fetcher interface {
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// Store is the cache the loader consults before and populates after a fetch.
type Store interface {
	Get(key string) ([]byte, bool)
	Put(key string, payload []byte)
}

// ContextProvider supplies the current server connection. It may report an
// unconnected context at any time (e.g. after a disconnect), in which case
// new requests exhaust immediately instead of hanging.
type ContextProvider interface {
	Context() ConnectionContext
}

// Options consolidates the retry and backoff knobs.
type Options struct {
	// MaxRetries is the number of fetch attempts per candidate.
	MaxRetries int
	// Backoff is the fixed delay between attempts on the same candidate.
	Backoff time.Duration
}

// DefaultOptions returns the standard retry policy.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxRetries <= 0 {
		o.MaxRetries = def.MaxRetries
	}
	if o.Backoff <= 0 {
		o.Backoff = def.Backoff
	}
	return o
}

// Loader is the entry point for image loading. It owns no global state: the
// resolver, fetcher, store, and connection provider are injected once at
// construction and shared by every request it starts.
//
// Concurrent requests that resolve to the same cache key are coalesced into a
// single fetch; every waiter receives the shared result.
type Loader struct {
	resolver *Resolver
	fetch    Fetcher
	store    Store
	conn     ContextProvider
	opts     Options
	sf       singleflight.Group
	logger   *slog.Logger
}

// NewLoader wires a Loader from its collaborators.
func NewLoader(resolver *Resolver, fetch Fetcher, store Store, conn ContextProvider, opts Options, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		resolver: resolver,
		fetch:    fetch,
		store:    store,
		conn:     conn,
		opts:     opts.withDefaults(),
		logger:   logger,
	}
}

// Load begins fetching the image for req and returns a handle for observing
// it. The handle starts in PhaseIdle and transitions on a worker goroutine;
// cancelling ctx abandons the request.
func (l *Loader) Load(ctx context.Context, req Request) *Handle {
	h := newHandle(l, req)
	h.start(ctx)
	return h
}

type fetchResult struct {
	payload []byte
	width   int
	height  int
}

// fetchShared performs one fetch attempt for key, deduplicated across
// concurrent requests. The underlying fetch is detached from the caller's
// context so an abandoned request still populates the cache; the caller
// stops waiting as soon as its own context dies.
func (l *Loader) fetchShared(ctx context.Context, key, url string) (fetchResult, error) {
	detached := context.WithoutCancel(ctx)

	ch := l.sf.DoChan(key, func() (interface{}, error) {
		payload, err := l.fetch.FetchImage(detached, url)
		if err != nil {
			return nil, err
		}

		w, h, err := validateImage(payload)
		if err != nil {
			return nil, err
		}

		l.store.Put(key, payload)
		return fetchResult{payload: payload, width: w, height: h}, nil
	})

	select {
	case res := <-ch:
		l.sf.Forget(key)
		if res.Err != nil {
			return fetchResult{}, res.Err
		}
		return res.Val.(fetchResult), nil
	case <-ctx.Done():
		return fetchResult{}, ctx.Err()
	}
}
