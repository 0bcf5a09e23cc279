package assets

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Handle is the consumer's view of one in-flight load. A handle walks the
// candidate list forward-only: each candidate is retried up to the configured
// bound before the attempt cascades to the next, and a success is terminal
// even if an earlier candidate previously failed. Once terminal, nothing
// happens until an explicit Retry.
type Handle struct {
	loader *Loader
	req    Request

	mu     sync.Mutex
	snap   Snapshot
	subs   []func(Snapshot)
	cancel context.CancelFunc
	parent context.Context
	done   chan struct{}
}

func newHandle(loader *Loader, req Request) *Handle {
	return &Handle{
		loader: loader,
		req:    req,
		snap:   Snapshot{Phase: PhaseIdle},
	}
}

// State returns the current snapshot.
func (h *Handle) State() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snap
}

// Subscribe registers fn for state transitions. fn is invoked once
// immediately with the current state, then from the handle's worker
// goroutine on every transition: there is a single writer per handle, so
// callbacks never run concurrently with each other.
func (h *Handle) Subscribe(fn func(Snapshot)) {
	h.mu.Lock()
	h.subs = append(h.subs, fn)
	snap := h.snap
	h.mu.Unlock()
	fn(snap)
}

// Cancel abandons the request. No further retries or cascades are scheduled
// and no further state updates are delivered; an in-flight fetch is allowed
// to complete in the background so its result can still populate the cache.
func (h *Handle) Cancel() {
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Retry restarts an exhausted request from scratch. It is the only way a
// terminal failure is retried; the engine never retries in the background.
// Calling it in any other phase is a no-op.
func (h *Handle) Retry() {
	h.mu.Lock()
	if h.snap.Phase != PhaseExhausted {
		h.mu.Unlock()
		return
	}
	h.snap = Snapshot{Phase: PhaseIdle}
	parent := h.parent
	h.mu.Unlock()

	h.start(parent)
}

// Wait blocks until the current run reaches a terminal state, the run is
// cancelled, or ctx expires, and returns the latest snapshot.
func (h *Handle) Wait(ctx context.Context) Snapshot {
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	return h.State()
}

// start arms a new run. The run context is derived from the caller's so an
// abandoned consumer tears the run down with it.
func (h *Handle) start(parent context.Context) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	h.mu.Lock()
	h.parent = parent
	h.cancel = cancel
	h.done = make(chan struct{})
	done := h.done
	h.mu.Unlock()

	go func() {
		defer close(done)
		h.run(ctx)
	}()
}

// publish records a transition and notifies subscribers. Nothing is
// delivered once the run context is dead: the observer may no longer exist.
func (h *Handle) publish(ctx context.Context, snap Snapshot) {
	if ctx.Err() != nil {
		return
	}

	h.mu.Lock()
	h.snap = snap
	subs := make([]func(Snapshot), len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// run walks the candidate list. Cache lookups never count against the retry
// budget; a decode failure skips the remaining retries for its candidate.
func (h *Handle) run(ctx context.Context) {
	l := h.loader

	conn := l.conn.Context()
	candidates := l.resolver.Resolve(h.req.ItemID, h.req.Role, conn)
	if len(candidates) == 0 {
		l.logger.Debug("no candidates for asset", "item", h.req.ItemID, "role", h.req.Role)
		h.publish(ctx, Snapshot{Phase: PhaseExhausted, Err: ErrNoCandidates})
		return
	}

	var lastErr error
	for idx, cand := range candidates {
		key := CacheKey(cand.URL)

		h.publish(ctx, Snapshot{Phase: PhaseLoading, CandidateIndex: idx})

		if payload, ok := l.store.Get(key); ok {
			if w, ht, err := validateImage(payload); err == nil {
				h.publish(ctx, Snapshot{
					Phase:          PhaseSuccess,
					CandidateIndex: idx,
					Payload:        payload,
					Width:          w,
					Height:         ht,
				})
				return
			}
			// Corrupt cached payload is an internal condition; fall
			// through to a normal fetch.
			l.logger.Warn("cached payload not decodable, refetching", "key", key)
		}

		retries := 0
		for {
			if ctx.Err() != nil {
				return
			}

			result, err := l.fetchShared(ctx, key, cand.URL)
			if err == nil {
				h.publish(ctx, Snapshot{
					Phase:          PhaseSuccess,
					CandidateIndex: idx,
					RetryCount:     retries,
					Payload:        result.payload,
					Width:          result.width,
					Height:         result.height,
				})
				return
			}
			if ctx.Err() != nil {
				return
			}

			lastErr = err
			h.publish(ctx, Snapshot{
				Phase:          PhaseRecoverableError,
				CandidateIndex: idx,
				RetryCount:     retries,
				Err:            err,
			})

			var decodeErr *DecodeError
			if errors.As(err, &decodeErr) {
				// The payload will not become valid on retry.
				break
			}

			retries++
			if retries >= l.opts.MaxRetries {
				break
			}

			select {
			case <-time.After(l.opts.Backoff):
			case <-ctx.Done():
				return
			}

			h.publish(ctx, Snapshot{
				Phase:          PhaseLoading,
				CandidateIndex: idx,
				RetryCount:     retries,
			})
		}

		l.logger.Debug("candidate exhausted, cascading",
			"item", h.req.ItemID, "role", h.req.Role,
			"candidate", idx, "kind", cand.Kind, "error", lastErr)
	}

	h.publish(ctx, Snapshot{
		Phase:          PhaseExhausted,
		CandidateIndex: len(candidates) - 1,
		Err:            lastErr,
	})
}
