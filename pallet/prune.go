package pallet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// PathLister lists the extracted path of every stored pallet.
type PathLister interface {
	PalletPaths(ctx context.Context) ([]string, error)
}

// Prune deletes extracted pallet files in dir that no stored pallet refers
// to and returns how many were removed.
func Prune(ctx context.Context, store PathLister, dir string, log *zap.SugaredLogger) (int, error) {
	paths, err := store.PalletPaths(ctx)
	if err != nil {
		return 0, err
	}
	keep := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		keep[filepath.Base(p)] = struct{}{}
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", dir, err)
	}

	removed := 0
	for _, f := range files {
		if _, ok := keep[filepath.Base(f)]; ok {
			continue
		}
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			log.Warnw("Failed to remove stale pallet file", "path", f, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Infow("Pruned stale pallet files", "dir", dir, "removed", removed)
	}
	return removed, nil
}
