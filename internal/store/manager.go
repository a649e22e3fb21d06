package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/keywatch/keywatch/internal/config"
)

// Manager lazily opens a single Store and shares it for the lifetime of
// the process. Construct one at startup and hand it to every handler.
type Manager struct {
	cfg config.DatabaseConfig

	// mu guards the fields below. It is never held while dialing.
	mu        sync.RWMutex
	store     Store
	open      Opener
	onConnect func(ok bool)

	connect singleflight.Group
}

// NewManager creates a manager for the given database configuration.
// No connection is made until the first call to Ensure.
func NewManager(cfg config.DatabaseConfig) *Manager {
	return &Manager{cfg: cfg, open: Open}
}

// SetOpener replaces the function used to open the store.
func (m *Manager) SetOpener(open Opener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = open
}

// SetOnConnect registers a callback invoked after every connection attempt.
func (m *Manager) SetOnConnect(fn func(ok bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnect = fn
}

// Ensure returns the shared store, connecting on the first call.
//
// Ensure is idempotent: once connected it returns the same store without
// touching the database. Callers arriving while a connection attempt is in
// flight wait for that attempt instead of starting their own. A failed
// attempt returns a *ConnectionError and leaves the manager disconnected,
// so the next caller tries again. If ctx ends first, Ensure returns early
// and the attempt carries on for the remaining waiters.
func (m *Manager) Ensure(ctx context.Context) (Store, error) {
	if s := m.current(); s != nil {
		return s, nil
	}

	ch := m.connect.DoChan("connect", func() (interface{}, error) {
		return m.dial(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Store), nil
	case <-ctx.Done():
		return nil, &ConnectionError{Backend: BackendFor(m.cfg.URI), Err: ctx.Err()}
	}
}

// dial runs one connection attempt. Only one runs at a time.
func (m *Manager) dial(ctx context.Context) (Store, error) {
	m.mu.RLock()
	s, open, onConnect := m.store, m.open, m.onConnect
	m.mu.RUnlock()

	// A previous attempt may have finished between the caller's check and
	// this one starting.
	if s != nil {
		return s, nil
	}

	s, err := open(ctx, m.cfg)
	if onConnect != nil {
		onConnect(err == nil)
	}
	if err != nil {
		slog.Error("database connection failed", "err", err)
		var connErr *ConnectionError
		if !errors.As(err, &connErr) {
			err = &ConnectionError{Backend: BackendFor(m.cfg.URI), Err: err}
		}
		return nil, err
	}

	slog.Info("database connected", "backend", s.Backend(), "uri", redactURI(m.cfg.URI))
	m.mu.Lock()
	m.store = s
	m.mu.Unlock()
	return s, nil
}

func (m *Manager) current() Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store
}

// Connected reports whether a store is currently open. It does not wait
// for an attempt in flight.
func (m *Manager) Connected() bool {
	return m.current() != nil
}

// Ping checks the open store without connecting. It returns
// ErrNotConnected when Ensure has not succeeded yet.
func (m *Manager) Ping(ctx context.Context) error {
	s := m.current()
	if s == nil {
		return ErrNotConnected
	}
	return s.Ping(ctx)
}

// Close closes the open store, if any. Safe to call multiple times.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	s := m.store
	m.store = nil
	m.mu.Unlock()

	if s == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.Close(ctx)
}
