package orchestrator

import (
	"context"
	"io/fs"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// platformExcludeNames lists directory names spec.md §4.5 step 1 calls out
// by name as platform-specific excludes — paths the OS itself manages and
// that are never meaningful backup content.
var platformExcludeNames = map[string]bool{
	"System Volume Information": true,
	"$Recycle.Bin":              true,
	".Trashes":                  true,
	".Spotlight-V100":           true,
	".fseventsd":                true,
}

// Discover walks every root in roots, returning every regular file's
// absolute path that survives both the built-in platform excludes and
// excludeGlobs (glob patterns matched via filepath.Match against both the
// absolute path and the base name). A single unreadable subtree is recorded rather than
// aborting the whole walk.
func Discover(ctx context.Context, roots []string, excludeGlobs []string) (paths []string, skipped []string, err error) {
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return paths, skipped, err
		}
		walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				skipped = append(skipped, p)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if platformExcludeNames[d.Name()] {
					return filepath.SkipDir
				}
				if matchesAny(excludeGlobs, p) {
					return filepath.SkipDir
				}
				return nil
			}
			if matchesAny(excludeGlobs, p) {
				return nil
			}
			paths = append(paths, p)
			return nil
		})
		if walkErr != nil {
			return paths, skipped, walkErr
		}
	}
	return paths, skipped, nil
}

func matchesAny(globs []string, path string) bool {
	for _, g := range globs {
		if ok, _ := filepath.Match(g, path); ok {
			return true
		}
		if ok, _ := filepath.Match(g, filepath.Base(path)); ok {
			return true
		}
	}
	return false
}

// StatResult is the outcome of re-stat'ing one discovered path (spec.md
// §4.5 step 2); a failure is per-file, not fatal to the session.
type StatResult struct {
	Path    string
	Size    int64
	ModTime float64
	AtTime  float64
	Err     error
}

// StatRefresh re-stats every discovered path with bounded fan-out
// (golang.org/x/sync/errgroup, spec.md §9 DOMAIN STACK), one goroutine per
// DefaultWorkers() slot. A per-file stat failure becomes a StatResult.Err
// rather than aborting the group — only a context cancellation does that.
func StatRefresh(ctx context.Context, paths []string, workers int, statFn func(path string) (StatResult, error)) ([]StatResult, error) {
	if workers <= 0 {
		workers = runtime.NumCPU() / 2
		if workers < 1 {
			workers = 1
		}
		if workers > 15 {
			workers = 15
		}
	}
	results := make([]StatResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := statFn(p)
			if err != nil {
				res = StatResult{Path: p, Err: err}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
