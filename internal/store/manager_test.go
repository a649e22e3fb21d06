package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keywatch/keywatch/internal/config"
	"github.com/keywatch/keywatch/internal/model"
)

type stubStore struct {
	closed  atomic.Bool
	pingErr error
}

func (s *stubStore) List(context.Context, model.Kind) ([]model.Record, error) {
	return []model.Record{}, nil
}

func (s *stubStore) Create(_ context.Context, k model.Kind, key string) (model.Record, error) {
	return model.NewRecord(k, "1", key), nil
}

func (s *stubStore) Delete(context.Context, model.Kind, string) error { return nil }
func (s *stubStore) Ping(context.Context) error                       { return s.pingErr }
func (s *stubStore) Backend() string                                  { return "stub" }

func (s *stubStore) Close(context.Context) error {
	s.closed.Store(true)
	return nil
}

func TestManagerEnsureIsIdempotent(t *testing.T) {
	var opens atomic.Int32
	stub := &stubStore{}

	m := NewManager(config.DatabaseConfig{URI: "stub://"})
	m.SetOpener(func(context.Context, config.DatabaseConfig) (Store, error) {
		opens.Add(1)
		return stub, nil
	})

	assert.False(t, m.Connected())

	first, err := m.Ensure(context.Background())
	require.NoError(t, err)
	second, err := m.Ensure(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, opens.Load())
	assert.True(t, m.Connected())
}

func TestManagerConcurrentFirstCalls(t *testing.T) {
	var opens atomic.Int32

	m := NewManager(config.DatabaseConfig{URI: "stub://"})
	m.SetOpener(func(context.Context, config.DatabaseConfig) (Store, error) {
		opens.Add(1)
		return &stubStore{}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Ensure(context.Background()); err != nil {
				t.Errorf("ensure failed: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, opens.Load(), "only one connection may be opened")
}

func TestManagerSlowFailureSharedByWaiters(t *testing.T) {
	var opens atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	m := NewManager(config.DatabaseConfig{URI: "stub://"})
	m.SetOpener(func(context.Context, config.DatabaseConfig) (Store, error) {
		if opens.Add(1) == 1 {
			close(started)
		}
		<-release
		return nil, errors.New("connection refused")
	})

	const callers = 8
	errs := make(chan error, callers)
	var ready sync.WaitGroup
	ready.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			ready.Done()
			_, err := m.Ensure(context.Background())
			errs <- err
		}()
	}
	ready.Wait()
	<-started

	// Status checks must answer while the dial is still in progress.
	done := make(chan struct{})
	go func() {
		assert.False(t, m.Connected())
		assert.ErrorIs(t, m.Ping(context.Background()), ErrNotConnected)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Connected/Ping blocked behind the connection attempt")
	}

	// Let late callers join the flight before it fails.
	time.Sleep(50 * time.Millisecond)
	close(release)

	for i := 0; i < callers; i++ {
		var connErr *ConnectionError
		assert.ErrorAs(t, <-errs, &connErr)
	}
	assert.EqualValues(t, 1, opens.Load(), "waiters must share one attempt")
}

func TestManagerEnsureHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	m := NewManager(config.DatabaseConfig{URI: "stub://"})
	m.SetOpener(func(context.Context, config.DatabaseConfig) (Store, error) {
		<-release
		return &stubStore{}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.Ensure(ctx)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestManagerRetriesAfterFailure(t *testing.T) {
	var (
		attempts atomic.Int32
		results  []bool
	)

	m := NewManager(config.DatabaseConfig{URI: "stub://"})
	m.SetOnConnect(func(ok bool) { results = append(results, ok) })
	m.SetOpener(func(context.Context, config.DatabaseConfig) (Store, error) {
		if attempts.Add(1) == 1 {
			return nil, errors.New("connection refused")
		}
		return &stubStore{}, nil
	})

	_, err := m.Ensure(context.Background())
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.False(t, m.Connected())

	_, err = m.Ensure(context.Background())
	require.NoError(t, err)
	assert.True(t, m.Connected())
	assert.Equal(t, []bool{false, true}, results)
}

func TestManagerWithoutURI(t *testing.T) {
	m := NewManager(config.DatabaseConfig{})

	for i := 0; i < 2; i++ {
		_, err := m.Ensure(context.Background())
		assert.ErrorIs(t, err, ErrNoConnectionString)
	}
	assert.False(t, m.Connected())
}

func TestManagerPingAndClose(t *testing.T) {
	stub := &stubStore{pingErr: errors.New("boom")}
	m := NewManager(config.DatabaseConfig{URI: "stub://"})
	m.SetOpener(func(context.Context, config.DatabaseConfig) (Store, error) {
		return stub, nil
	})

	assert.ErrorIs(t, m.Ping(context.Background()), ErrNotConnected)

	_, err := m.Ensure(context.Background())
	require.NoError(t, err)
	assert.EqualError(t, m.Ping(context.Background()), "boom")

	require.NoError(t, m.Close(context.Background()))
	assert.True(t, stub.closed.Load())
	assert.False(t, m.Connected())
	require.NoError(t, m.Close(context.Background()), "second close is a no-op")
}

func TestManagerWithSQLite(t *testing.T) {
	m := NewManager(config.DatabaseConfig{URI: sqliteURI(t)})
	t.Cleanup(func() { m.Close(context.Background()) })

	s, err := m.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, s.Backend())
	require.NoError(t, m.Ping(context.Background()))
}
