package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"modio-repo/db"
)

// Side files written next to the repositories.
const (
	ReportFileName = "report.html"
	MetaFileName   = "meta.json"
)

// Meta is the content of meta.json.
type Meta struct {
	db.Counts
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Generator writes every repository and the side files into a directory.
type Generator struct {
	store   *db.Store
	builder *Builder
	dir     string
	log     *zap.SugaredLogger
	now     func() time.Time
}

func NewGenerator(store *db.Store, builder *Builder, dir string, log *zap.SugaredLogger) *Generator {
	return &Generator{store: store, builder: builder, dir: dir, log: log, now: time.Now}
}

// Generate marks mods with pallet errors as malformed, then writes one
// repository per partition, the error report and the run metadata.
func (g *Generator) Generate(ctx context.Context, runID string) (Meta, error) {
	marked, err := g.store.ReconcileMalformed(ctx)
	if err != nil {
		return Meta{}, err
	}
	if marked > 0 {
		g.log.Infow("Marked mods with pallet errors as malformed", "count", marked)
	}

	for _, p := range Partitions {
		mods, err := g.store.EligibleMods(ctx, p.Explicit)
		if err != nil {
			return Meta{}, err
		}
		doc := g.builder.Build(p, mods)
		data, err := doc.Bytes()
		if err != nil {
			return Meta{}, fmt.Errorf("encode %s repository: %w", p.Name, err)
		}
		if err := atomicWriteFile(filepath.Join(g.dir, p.FileName), data); err != nil {
			return Meta{}, err
		}
		g.log.Infow("Wrote repository", "partition", p.Name, "file", p.FileName, "candidates", len(mods))
	}

	malformed, err := g.store.MalformedMods(ctx)
	if err != nil {
		return Meta{}, err
	}
	counts, err := g.store.Counts(ctx)
	if err != nil {
		return Meta{}, err
	}
	meta := Meta{Counts: counts, RunID: runID, GeneratedAt: g.now().UTC()}

	report, err := RenderReport(meta, malformed)
	if err != nil {
		return Meta{}, err
	}
	if err := atomicWriteFile(filepath.Join(g.dir, ReportFileName), report); err != nil {
		return Meta{}, err
	}

	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return Meta{}, fmt.Errorf("encode meta: %w", err)
	}
	if err := atomicWriteFile(filepath.Join(g.dir, MetaFileName), append(metaJSON, '\n')); err != nil {
		return Meta{}, err
	}

	g.log.Infof("Finished. %d standard, %d explicit, %d malformed mods.", counts.Standard, counts.Explicit, counts.Malformed)
	return meta, nil
}

// atomicWriteFile writes data to a temporary file and renames it over path,
// so readers never see a half-written repository.
func atomicWriteFile(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
