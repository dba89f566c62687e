package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DecodeError reports a response body that is not valid JSON for the query's type.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// State is the typed view of one query, shaped like {data, error, isLoading}.
type State[T any] struct {
	Data       T
	HasData    bool
	Error      error
	Status     Status
	IsLoading  bool
	IsFetching bool
	IsStale    bool
	UpdatedAt  time.Time
}

// Query is a typed accessor bound to one cache key.
type Query[T any] struct {
	client *Client
	key    string
	fetch  Fetcher
}

// New binds fetch to key on client. Bodies that do not decode into T are
// reported as errors and never cached.
func New[T any](client *Client, key string, fetch Fetcher) *Query[T] {
	q := &Query[T]{client: client, key: key}
	q.fetch = func(ctx context.Context) ([]byte, error) {
		body, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := decode[T](body); err != nil {
			return nil, &DecodeError{Key: key, Err: err}
		}
		return body, nil
	}
	return q
}

// Key returns the cache key of the query.
func (q *Query[T]) Key() string { return q.key }

// Use returns cached data when fresh and fetches otherwise.
func (q *Query[T]) Use(ctx context.Context) State[T] {
	_, err := q.client.Ensure(ctx, q.key, q.fetch)
	return q.withCallerErr(ctx, err)
}

// Refetch always fetches, sharing the request with concurrent callers.
func (q *Query[T]) Refetch(ctx context.Context) State[T] {
	_, err := q.client.Fetch(ctx, q.key, q.fetch)
	return q.withCallerErr(ctx, err)
}

// State returns the current state without triggering a fetch.
func (q *Query[T]) State() State[T] {
	return toState[T](q.client.Snapshot(q.key))
}

// Invalidate marks the query stale.
func (q *Query[T]) Invalidate() { q.client.Invalidate(q.key) }

// Subscribe calls fn on every state change until the returned func is called.
func (q *Query[T]) Subscribe(fn func(State[T])) func() {
	return q.client.Subscribe(q.key, func(s Snapshot) {
		fn(toState[T](s))
	})
}

// Watch refetches immediately and then every interval, passing each result to fn,
// until ctx is cancelled.
func (q *Query[T]) Watch(ctx context.Context, interval time.Duration, fn func(State[T])) error {
	if interval <= 0 {
		return fmt.Errorf("watch interval must be positive")
	}

	fn(q.Refetch(ctx))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(q.Refetch(ctx))
		}
	}
}

// withCallerErr folds a caller-side context error into the state; the shared
// fetch may still be running for other callers.
func (q *Query[T]) withCallerErr(ctx context.Context, err error) State[T] {
	st := q.State()
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		st.Error = err
		st.Status = StatusError
		st.IsLoading = false
	}
	return st
}

func toState[T any](s Snapshot) State[T] {
	st := State[T]{
		HasData:    s.HasData,
		Error:      s.Err,
		Status:     s.Status,
		IsFetching: s.IsFetching,
		IsLoading:  s.IsFetching && !s.HasData,
		IsStale:    s.IsStale,
		UpdatedAt:  s.UpdatedAt,
	}
	if !s.HasData {
		return st
	}
	data, err := decode[T](s.Body)
	if err != nil {
		st.HasData = false
		st.Error = &DecodeError{Key: s.Key, Err: err}
		st.Status = StatusError
		return st
	}
	st.Data = data
	return st
}

func decode[T any](body []byte) (T, error) {
	var out T
	if len(bytes.TrimSpace(body)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, err
	}
	return out, nil
}
