package transport

import (
	"context"
	"slices"
	"sync"
	"time"

	"vidintel/internal/config"
)

const storeBatchSize = 32

// StoreTransport polls the job table for queued rows.
type StoreTransport struct {
	lister QueueLister
	poll   time.Duration

	mu      sync.Mutex
	types   []string
	pending []string
	handed  map[string]time.Time
	wake    chan struct{}
	closed  chan struct{}
	once    sync.Once
	now     func() time.Time
}

// NewStoreTransport returns a polling transport. A non-positive poll interval
// falls back to one second.
func NewStoreTransport(lister QueueLister, poll time.Duration) *StoreTransport {
	if poll <= 0 {
		poll = time.Second
	}
	return &StoreTransport{
		lister: lister,
		poll:   poll,
		handed: make(map[string]time.Time),
		wake:   make(chan struct{}, 1),
		closed: make(chan struct{}),
		now:    time.Now,
	}
}

// Name implements Transport.
func (t *StoreTransport) Name() string { return config.TransportStore }

// Enqueue wakes a waiting receiver; the row itself is the queue entry.
func (t *StoreTransport) Enqueue(_ context.Context, jobID string) error {
	t.mu.Lock()
	delete(t.handed, jobID)
	t.mu.Unlock()
	select {
	case t.wake <- struct{}{}:
	default:
	}
	return nil
}

// Restrict limits polling to the given job types. Queued jobs of other types
// are never listed, so they cannot crowd handled jobs out of a poll batch.
func (t *StoreTransport) Restrict(types ...string) {
	t.mu.Lock()
	t.types = slices.Clone(types)
	t.pending = nil
	t.mu.Unlock()
}

// Receive implements Transport. An id handed out is not handed out again for
// one poll interval unless it is re-enqueued.
func (t *StoreTransport) Receive(ctx context.Context) (string, error) {
	for {
		if id, ok := t.next(); ok {
			return id, nil
		}
		if err := t.refill(ctx); err != nil {
			return "", err
		}
		if id, ok := t.next(); ok {
			return id, nil
		}
		timer := time.NewTimer(t.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-t.closed:
			timer.Stop()
			return "", context.Canceled
		case <-t.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (t *StoreTransport) next() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 {
		return "", false
	}
	id := t.pending[0]
	t.pending = t.pending[1:]
	t.handed[id] = t.now()
	return id, true
}

func (t *StoreTransport) refill(ctx context.Context) error {
	t.mu.Lock()
	types := t.types
	t.mu.Unlock()
	ids, err := t.lister.ListQueuedIDs(ctx, storeBatchSize, types...)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for id, at := range t.handed {
		if now.Sub(at) >= t.poll {
			delete(t.handed, id)
		}
	}
	queued := make(map[string]struct{}, len(t.pending))
	for _, id := range t.pending {
		queued[id] = struct{}{}
	}
	for _, id := range ids {
		if _, busy := t.handed[id]; busy {
			continue
		}
		if _, dup := queued[id]; dup {
			continue
		}
		t.pending = append(t.pending, id)
	}
	return nil
}

// Close unblocks pending receivers.
func (t *StoreTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}
