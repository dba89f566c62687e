package query

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type config map[string]any

func TestQueryUseDecodesData(t *testing.T) {
	c := NewClient(Options{})
	q := New[config](c, Key("fetchConfig"), func(context.Context) ([]byte, error) {
		return []byte(`{"id":"1"}`), nil
	})

	st := q.Use(context.Background())
	require.NoError(t, st.Error)
	assert.Equal(t, StatusSuccess, st.Status)
	assert.True(t, st.HasData)
	assert.False(t, st.IsLoading)
	assert.Equal(t, config{"id": "1"}, st.Data)
}

func TestQueryMalformedJSONSurfacesErrorState(t *testing.T) {
	c := NewClient(Options{})
	q := New[config](c, Key("fetchConfig"), func(context.Context) ([]byte, error) {
		return []byte(`<html>oops</html>`), nil
	})

	st := q.Use(context.Background())
	var decodeErr *DecodeError
	require.ErrorAs(t, st.Error, &decodeErr)
	assert.Equal(t, StatusError, st.Status)
	assert.False(t, st.HasData)
}

func TestQueryEmptyBodyIsZeroValue(t *testing.T) {
	c := NewClient(Options{})
	q := New[[]config](c, Key("searchNodes", "Chemical", "name", "none"), func(context.Context) ([]byte, error) {
		return nil, nil
	})

	st := q.Use(context.Background())
	require.NoError(t, st.Error)
	assert.Equal(t, StatusSuccess, st.Status)
	assert.Empty(t, st.Data)
}

func TestQueryFetchErrorIsReturnedInState(t *testing.T) {
	c := NewClient(Options{})
	notFound := errors.New("status 404")
	q := New[[]config](c, Key("fetchRelationshipsByNodeId", "999"), func(context.Context) ([]byte, error) {
		return nil, notFound
	})

	st := q.Use(context.Background())
	assert.ErrorIs(t, st.Error, notFound)
	assert.Equal(t, StatusError, st.Status)
	assert.False(t, st.IsLoading)
}

func TestQueryUseWithCancelledContext(t *testing.T) {
	c := NewClient(Options{})
	q := New[config](c, "k", func(ctx context.Context) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := q.Use(ctx)
	assert.ErrorIs(t, st.Error, context.Canceled)
	assert.Equal(t, StatusError, st.Status)
}

func TestQuerySubscribeReceivesTypedStates(t *testing.T) {
	c := NewClient(Options{})
	q := New[config](c, "k", func(context.Context) ([]byte, error) {
		return []byte(`{"id":"7"}`), nil
	})

	var last atomic.Value
	unsubscribe := q.Subscribe(func(s State[config]) { last.Store(s) })
	defer unsubscribe()

	q.Refetch(context.Background())
	got, ok := last.Load().(State[config])
	require.True(t, ok)
	assert.Equal(t, "7", got.Data["id"])
}

func TestQueryWatchRefetchesOnInterval(t *testing.T) {
	c := NewClient(Options{})
	var calls atomic.Int32
	q := New[config](c, "k", func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte(`{}`), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	var seen atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- q.Watch(ctx, 10*time.Millisecond, func(State[config]) {
			if seen.Add(1) == 3 {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestQueryWatchRejectsNonPositiveInterval(t *testing.T) {
	q := New[config](NewClient(Options{}), "k", func(context.Context) ([]byte, error) { return nil, nil })
	assert.Error(t, q.Watch(context.Background(), 0, func(State[config]) {}))
}
