package queueaccess

import (
	"context"
	"fmt"

	"vidintel/internal/store"
)

// Session represents a job access handle and its cleanup function.
type Session struct {
	Access Access
	// Remote is true when operations go through the daemon API.
	Remote bool
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback uses the daemon API when it answers a status probe, then
// falls back to direct store access.
func OpenWithFallback(ctx context.Context, remote *HTTPAccess, openStore func() (*store.Store, error), enqueuer func() (EnqueueCloser, error)) (Session, error) {
	if remote != nil {
		if _, err := remote.Status(ctx); err == nil {
			return Session{Access: remote, Remote: true}, nil
		} else if !IsAPIUnavailable(err) {
			return Session{}, err
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open job store: no store opener configured")
	}
	st, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open job store: %w", err)
	}
	var enq EnqueueCloser
	if enqueuer != nil {
		enq, err = enqueuer()
		if err != nil {
			_ = st.Close()
			return Session{}, fmt.Errorf("open job transport: %w", err)
		}
	}
	closeAll := func() error {
		if enq != nil {
			_ = enq.Close()
		}
		return st.Close()
	}
	return Session{Access: NewStoreAccess(st, enq), close: closeAll}, nil
}

// EnqueueCloser announces jobs and releases its connection on Close.
type EnqueueCloser interface {
	Enqueue(ctx context.Context, jobID string) error
	Close() error
}
