package planner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZakSingh/pgmg/internal/statestore"
	"github.com/ZakSingh/pgmg/pkg/sqlsplit"
)

// Migration is one imperative .sql file under the migrations directory,
// applied in lexicographic filename order exactly once.
type Migration struct {
	Name       string
	Path       string
	Checksum   string
	Statements []sqlsplit.Statement
}

// scanMigrations lists every .sql file directly under dir (migrations are
// flat, unlike the recursively-scanned code directory) in lexicographic
// order and subtracts whatever the state store already recorded as
// applied, using checksum mismatch to flag an already-applied migration
// that was edited after the fact as a conflict rather than silently
// re-running it.
func scanMigrations(ctx context.Context, dir string, store *statestore.Store) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	applied, err := store.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	var pending []Migration
	for _, name := range names {
		path := filepath.Join(dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		sum := sha256.Sum256(raw)
		checksum := hex.EncodeToString(sum[:])

		if prior, ok := applied[name]; ok {
			if prior != checksum {
				return nil, &migrationChecksumMismatch{Name: name}
			}
			continue
		}

		pending = append(pending, Migration{
			Name:       name,
			Path:       path,
			Checksum:   checksum,
			Statements: sqlsplit.Split(string(raw)),
		})
	}
	return pending, nil
}

type migrationChecksumMismatch struct {
	Name string
}

func (e *migrationChecksumMismatch) Error() string {
	return "migration " + e.Name + " was already applied but its contents changed since then"
}
