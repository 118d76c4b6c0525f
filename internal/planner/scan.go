package planner

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ZakSingh/pgmg/internal/analyzer"
	"github.com/ZakSingh/pgmg/internal/objmodel"
	"github.com/ZakSingh/pgmg/pkg/sqlsplit"
)

// scanCodeDir walks every .sql file under dir, splits and identifies each
// statement in parallel (one goroutine per file, bounded by errgroup), then
// sorts the combined result deterministically by source path and start
// line so the same tree always yields the same plan regardless of which
// goroutine happened to finish first.
func scanCodeDir(dir string, a *analyzer.Analyzer) ([]*objmodel.ManagedObject, error) {
	files, err := sqlFilesUnder(dir)
	if err != nil {
		return nil, err
	}

	results := make([][]*objmodel.ManagedObject, len(files))
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			objs, err := identifyFile(file, a)
			if err != nil {
				return err
			}
			results[i] = objs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []*objmodel.ManagedObject
	for _, objs := range results {
		all = append(all, objs...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].SourceFile != all[j].SourceFile {
			return all[i].SourceFile < all[j].SourceFile
		}
		return all[i].StartLine < all[j].StartLine
	})
	return all, nil
}

func identifyFile(path string, a *analyzer.Analyzer) ([]*objmodel.ManagedObject, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	contents := string(raw)
	var out []*objmodel.ManagedObject
	for _, stmt := range sqlsplit.Split(contents) {
		obj, err := a.Identify(path, stmt)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

func sqlFilesUnder(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".sql") {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}
