// Package pgtest provides a shared Postgres instance for integration
// tests, backed by testcontainers-go. It replaces the teacher's unexported
// internal/pgengine (which wraps a vendored Postgres binary unavailable in
// this environment) with a testcontainers-go/modules/postgres container:
// one container is started per test binary via StartEngine, and each test
// gets its own throwaway database via Engine.CreateDatabase so tests never
// share mutable state.
package pgtest

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Engine owns one running Postgres container for the lifetime of a test
// binary. Create scratch databases from it with CreateDatabase rather than
// starting a new container per test.
type Engine struct {
	container *postgres.PostgresContainer
	host      string
	port      string
	user      string
	password  string
	adminDB   *sql.DB
}

// StartEngine boots a fresh Postgres container and returns an Engine ready
// to mint scratch databases from it.
func StartEngine() (*Engine, error) {
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("pgmg_admin"),
		postgres.WithUsername("pgmg"),
		postgres.WithPassword("pgmg"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("starting postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("reading mapped port: %w", err)
	}

	e := &Engine{
		container: container,
		host:      host,
		port:      port.Port(),
		user:      "pgmg",
		password:  "pgmg",
	}

	adminDB, err := sql.Open("pgx", e.dsn("pgmg_admin"))
	if err != nil {
		return nil, fmt.Errorf("opening admin connection: %w", err)
	}
	e.adminDB = adminDB
	return e, nil
}

func (e *Engine) dsn(database string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", e.user, e.password, e.host, e.port, database)
}

// Close tears down the admin connection and the underlying container.
func (e *Engine) Close() error {
	if e.adminDB != nil {
		_ = e.adminDB.Close()
	}
	return e.container.Terminate(context.Background())
}

// TestDB is a scratch database created inside Engine's container.
type TestDB struct {
	engine *Engine
	name   string
}

// CreateDatabase creates a uniquely-named scratch database inside the
// shared container and returns a handle to it.
func (e *Engine) CreateDatabase() (*TestDB, error) {
	name := fmt.Sprintf("pgmg_test_%d", nextSuffix())
	if _, err := e.adminDB.Exec(fmt.Sprintf(`CREATE DATABASE %q`, name)); err != nil {
		return nil, fmt.Errorf("creating scratch database %s: %w", name, err)
	}
	return &TestDB{engine: e, name: name}, nil
}

// GetDSN returns a connection string for this scratch database, suitable
// for sql.Open("pgx", ...).
func (t *TestDB) GetDSN() string {
	return t.engine.dsn(t.name)
}

// DropDB drops the scratch database, terminating other backends first
// since a lingering idle connection would otherwise block the DROP.
func (t *TestDB) DropDB() error {
	_, _ = t.engine.adminDB.Exec(`
		SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()
	`, t.name)
	_, err := t.engine.adminDB.Exec(fmt.Sprintf(`DROP DATABASE IF EXISTS %q`, t.name))
	return err
}

var suffixCounter int

// nextSuffix hands out unique, monotonically increasing integers within a
// test binary's process lifetime. It deliberately avoids time/rand (both
// of which are off-limits in generated code paths that must stay
// deterministic) in favor of a plain counter.
func nextSuffix() int {
	suffixCounter++
	return suffixCounter
}
