// Package advisorylock serializes concurrent pgmg runs against the same
// database using pg_try_advisory_lock, keyed on the connection target
// rather than anything about the schema being reconciled, so two
// operators racing an apply against the same database never interleave
// DDL even if they're driving it from different machines.
package advisorylock

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ZakSingh/pgmg/internal/pgmgerr"
	"github.com/ZakSingh/pgmg/internal/pgmglog"
)

// DefaultTimeout is how long Acquire polls before giving up when the
// caller doesn't specify one.
const DefaultTimeout = 30 * time.Second

const (
	initialPollInterval = 100 * time.Millisecond
	maxPollInterval     = 5 * time.Second
	pollBackoffFactor   = 2
)

// Lock holds the one open connection whose session owns the advisory
// lock. Postgres advisory locks taken with pg_try_advisory_lock are
// session-scoped, and closing conn only returns the session to the
// database/sql pool, so Release unlocks explicitly with pg_advisory_unlock.
type Lock struct {
	conn *sql.Conn
	key  int64
}

// Key derives a stable 64-bit advisory lock key from a connection target.
// Only host, port, and database name participate — two different schemas
// or users connecting to the same physical database must still contend
// for the same lock, since they would otherwise be free to race DDL
// against each other.
func Key(host string, port int, database string) int64 {
	sum := sha256.Sum256([]byte(fmt.Sprintf("pgmg:%s:%d:%s", host, port, database)))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// Acquire polls pg_try_advisory_lock(key) until it succeeds or timeout
// elapses, returning a LockTimeout error in the latter case.
func Acquire(ctx context.Context, db *sql.DB, key int64, timeout time.Duration, log *pgmglog.Logger) (*Lock, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, pgmgerr.NewDatabaseError(err, "advisory lock connection", "", 0)
	}

	deadline := time.Now().Add(timeout)
	wait := initialPollInterval
	for {
		var acquired bool
		if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
			conn.Close()
			return nil, pgmgerr.NewDatabaseError(err, "pg_try_advisory_lock", "", 0)
		}
		if acquired {
			log.Debug("acquired advisory lock", "key", key)
			return &Lock{conn: conn, key: key}, nil
		}
		if time.Now().After(deadline) {
			conn.Close()
			return nil, &pgmgerr.LockTimeout{Seconds: int(timeout.Seconds())}
		}
		log.Debug("advisory lock held by another session, waiting", "key", key, "retry_in", wait)
		select {
		case <-ctx.Done():
			conn.Close()
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait *= pollBackoffFactor
		if wait > maxPollInterval {
			wait = maxPollInterval
		}
	}
}

// Conn returns the locked session's connection, for running the reconcile
// transaction on the same session that holds the lock.
func (l *Lock) Conn() *sql.Conn {
	return l.conn
}

// Release unlocks and returns the underlying session to the pool. It is safe to call
// once; calling it twice is a caller error but Release itself tolerates
// being handed an already-closed connection.
func (l *Lock) Release(ctx context.Context) error {
	_, err := l.conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
	closeErr := l.conn.Close()
	if err != nil {
		return &pgmgerr.LockLost{Reason: err.Error()}
	}
	return closeErr
}
