// Package pgmg is the public entry point other Go programs embed: Plan
// computes a reconciliation plan, touching the database only to read its
// current state and to create the pgmg bookkeeping tables if they are
// missing, and Apply runs that plan under the advisory
// lock. cmd/pgmg is a thin cobra shell around these two functions.
package pgmg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"

	"github.com/ZakSingh/pgmg/internal/advisorylock"
	"github.com/ZakSingh/pgmg/internal/applier"
	"github.com/ZakSingh/pgmg/internal/catalog"
	"github.com/ZakSingh/pgmg/internal/checkhook"
	"github.com/ZakSingh/pgmg/internal/pgmgconfig"
	"github.com/ZakSingh/pgmg/internal/pgmglog"
	"github.com/ZakSingh/pgmg/internal/planner"
	"github.com/ZakSingh/pgmg/internal/statestore"
)

// Target identifies the database to connect to.
type Target struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// DSN renders t as a libpq connection string.
func (t Target) DSN() string {
	sslmode := t.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		t.User, t.Password, t.Host, t.Port, t.Database, sslmode)
}

// TargetFromConfig builds a Target from a loaded Config.
func TargetFromConfig(cfg pgmgconfig.Config) Target {
	return Target{Host: cfg.Host, Port: cfg.Port, Database: cfg.Database, User: cfg.User, Password: cfg.Password}
}

// Plan opens a connection to target, snapshots the builtin catalog and
// recorded state, and computes a reconciliation plan against
// migrationsDir and codeDir. It takes no lock; the only change it makes is
// creating the pgmg schema and its tables if they do not exist yet.
func Plan(ctx context.Context, target Target, migrationsDir, codeDir string, log *pgmglog.Logger) (*planner.PlanResult, error) {
	if log == nil {
		log = pgmglog.Discard()
	}
	db, err := sql.Open("pgx", target.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}
	defer db.Close()

	store := statestore.New(db)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}

	cat, err := catalog.Load(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("loading builtin catalog: %w", err)
	}

	p := planner.New(cat, store)
	result, err := p.Plan(ctx, migrationsDir, codeDir)
	if err != nil {
		return nil, err
	}
	log.Info("plan computed",
		"migrations", len(result.NewMigrations),
		"changes", len(result.Changes),
		"idempotent", result.Idempotent,
	)
	return result, nil
}

// ApplyOptions configures an Apply invocation beyond the bare connection
// target and directories.
type ApplyOptions struct {
	LockTimeout time.Duration
	CheckHook   checkhook.Hook
	TestMode    bool
}

// Apply acquires the advisory lock for target, computes a fresh plan
// (always re-planning immediately before applying, so a plan computed
// earlier and reviewed by a human can't go stale between review and
// execution), and applies it in one transaction.
func Apply(ctx context.Context, target Target, migrationsDir, codeDir string, opts ApplyOptions, log *pgmglog.Logger) (*applier.Result, error) {
	if log == nil {
		log = pgmglog.Discard()
	}
	db, err := sql.Open("pgx", target.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}
	defer db.Close()

	key := advisorylock.Key(target.Host, target.Port, target.Database)
	lock, err := advisorylock.Acquire(ctx, db, key, opts.LockTimeout, log)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release(ctx) }()

	store := statestore.New(db)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}

	cat, err := catalog.Load(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("loading builtin catalog: %w", err)
	}

	p := planner.New(cat, store)
	plan, err := p.Plan(ctx, migrationsDir, codeDir)
	if err != nil {
		return nil, err
	}

	a := applier.New(store, opts.CheckHook, log)
	a.TestMode = opts.TestMode
	return a.Apply(ctx, db, plan)
}
