// Package dblock serializes pgphase runs against one database. Push and
// migrate hold the lock on their dedicated connection for the whole run.
package dblock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"sync"
	"time"

	"github.com/hlop3z/pgphase/internal/alerr"
)

// DefaultName is hashed into the advisory lock key.
const DefaultName = "pgphase"

// pollInterval is how often a bounded wait retries pg_try_advisory_lock.
const pollInterval = 200 * time.Millisecond

// Locker takes and releases a run-wide lock on a connection.
type Locker interface {
	Lock(ctx context.Context, conn *sql.Conn) error
	Unlock(ctx context.Context, conn *sql.Conn) error
}

// Key derives a stable advisory lock key from a name with FNV-1a.
func Key(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}

// Advisory is a session level Postgres advisory lock.
type Advisory struct {
	Key int64

	// Timeout bounds the wait. Zero waits until the context is done.
	Timeout time.Duration
}

// NewAdvisory returns an advisory lock keyed by name.
func NewAdvisory(name string, timeout time.Duration) *Advisory {
	return &Advisory{Key: Key(name), Timeout: timeout}
}

// Lock blocks until the lock is held, the timeout expires or ctx is done.
func (a *Advisory) Lock(ctx context.Context, conn *sql.Conn) error {
	if a.Timeout <= 0 {
		if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", a.Key); err != nil {
			return alerr.Wrap(alerr.ErrLock, err, "failed to acquire advisory lock").With("key", a.Key)
		}
		return nil
	}

	deadline := time.Now().Add(a.Timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		var ok bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", a.Key).Scan(&ok); err != nil {
			return alerr.Wrap(alerr.ErrLock, err, "failed to acquire advisory lock").With("key", a.Key)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return alerr.New(alerr.ErrLock, "another pgphase run holds the lock").
				With("key", a.Key).
				With("timeout", a.Timeout.String()).
				WithHelp("wait for the other run to finish or raise the lock timeout")
		}
		select {
		case <-ctx.Done():
			return alerr.Wrap(alerr.ErrLock, ctx.Err(), "gave up waiting for advisory lock")
		case <-ticker.C:
		}
	}
}

// Unlock releases the lock.
func (a *Advisory) Unlock(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", a.Key); err != nil {
		return alerr.Wrap(alerr.ErrLock, err, "failed to release advisory lock").With("key", a.Key)
	}
	return nil
}

// Local is an in-process lock for databases without advisory locks.
type Local struct {
	mu sync.Mutex
}

// Lock takes the mutex. It ignores conn.
func (l *Local) Lock(context.Context, *sql.Conn) error {
	l.mu.Lock()
	return nil
}

// Unlock releases the mutex.
func (l *Local) Unlock(context.Context, *sql.Conn) error {
	l.mu.Unlock()
	return nil
}
