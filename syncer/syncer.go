// Package syncer mirrors the mod.io catalog into the store and extracts the
// pallets of every changed mod.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"modio-repo/config"
	"modio-repo/db"
	"modio-repo/modio"
	"modio-repo/pallet"
)

// Catalog is the part of the mod.io API a sync reads.
type Catalog interface {
	GetMods(ctx context.Context, gameID int64, offset, limit int) (*modio.ModPage, error)
	GetModFiles(ctx context.Context, gameID, modID int64, limit int) ([]modio.File, error)
	ResolveDownload(ctx context.Context, downloadURL string) (string, error)
}

// Extractor produces the pallets of a stored platform file.
type Extractor interface {
	Extract(ctx context.Context, file *db.PlatformFile) ([]db.Pallet, error)
}

// Options tune a sync run.
type Options struct {
	GameID              int64
	PageSize            int
	FileListLimit       int
	MaxParallel         int     // mods inside file discovery and extraction at once
	BackfillProbability float64 // chance an unchanged mod is checked for missing pallets
	OnePage             bool    // stop after the first catalog page
}

// OptionsFromConfig maps the configuration onto sync options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		GameID:              cfg.GameID,
		PageSize:            cfg.PageSize,
		FileListLimit:       cfg.FileListLimit,
		MaxParallel:         cfg.MaxParallel,
		BackfillProbability: cfg.BackfillProbability,
	}
}

// Result summarizes a sync run.
type Result struct {
	RunID     string
	Seen      int64
	Skipped   int64
	Unchanged int64
	Changed   int64
	Malformed int64
}

type counters struct {
	seen, skipped, unchanged, changed, malformed atomic.Int64
}

// Syncer runs syncs. A Syncer may run more than once but not concurrently.
type Syncer struct {
	catalog   Catalog
	store     *db.Store
	extractor Extractor
	checker   *pallet.Checker
	opts      Options
	log       *zap.SugaredLogger

	gate     *semaphore.Weighted
	progress chan<- Event
	rand     func() float64
	now      func() time.Time
}

// New creates a Syncer.
func New(catalog Catalog, store *db.Store, extractor Extractor, opts Options, log *zap.SugaredLogger) *Syncer {
	opts.PageSize = max(opts.PageSize, 1)
	opts.FileListLimit = max(opts.FileListLimit, 1)
	opts.MaxParallel = max(opts.MaxParallel, 1)
	return &Syncer{
		catalog:   catalog,
		store:     store,
		extractor: extractor,
		checker:   pallet.NewChecker(store),
		opts:      opts,
		log:       log,
		gate:      semaphore.NewWeighted(int64(opts.MaxParallel)),
		rand:      rand.Float64,
		now:       time.Now,
	}
}

// WithProgress makes the syncer report events on ch. Sends block, so ch
// must be drained until Run returns.
func (s *Syncer) WithProgress(ch chan<- Event) *Syncer {
	s.progress = ch
	return s
}

// Run pages through the catalog and processes every mod. Problems with a
// single mod are recorded and do not stop the run; catalog paging and store
// failures do.
func (s *Syncer) Run(ctx context.Context) (Result, error) {
	runID := uuid.NewString()
	log := s.log.With(zap.String("run_id", runID))
	log.Infow("Starting sync", "game_id", s.opts.GameID, "max_parallel", s.opts.MaxParallel, "one_page", s.opts.OnePage)

	var c counters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.PageSize)

	var pageErr error
	offset := 0
	for {
		page, err := s.catalog.GetMods(gctx, s.opts.GameID, offset, s.opts.PageSize)
		if err != nil {
			pageErr = err
			break
		}
		log.Infof("Working on %d mods (offset %d of %d)", len(page.Data), page.ResultOffset, page.ResultTotal)
		s.emit(gctx, Event{Kind: EventPage, Message: fmt.Sprintf("offset %d of %d", page.ResultOffset, page.ResultTotal)})

		for _, m := range page.Data {
			g.Go(func() error {
				return s.processMod(gctx, log, m, &c)
			})
		}
		if s.opts.OnePage || page.Last() {
			break
		}
		offset = page.Next()
	}

	res := Result{RunID: runID}
	// A failed worker cancels gctx, which also surfaces as pageErr; the
	// worker's error is the one worth reporting.
	err := g.Wait()
	if err == nil && pageErr != nil {
		err = fmt.Errorf("failed to page catalog: %w", pageErr)
	}
	res.Seen = c.seen.Load()
	res.Skipped = c.skipped.Load()
	res.Unchanged = c.unchanged.Load()
	res.Changed = c.changed.Load()
	res.Malformed = c.malformed.Load()

	if err != nil {
		log.Errorw("Sync aborted", zap.Error(err))
		return res, err
	}
	log.Infof("Finished. Seen %d mods: %d changed (%d malformed), %d unchanged, %d skipped.",
		res.Seen, res.Changed, res.Malformed, res.Unchanged, res.Skipped)
	return res, nil
}

func (s *Syncer) processMod(ctx context.Context, runLog *zap.SugaredLogger, m modio.Mod, c *counters) error {
	c.seen.Add(1)
	modLog := runLog.With(zap.Int64("mod_id", m.ID), zap.String("mod_name", m.Name))

	if err := m.Validate(); err != nil {
		modLog.Warnw("Skipping mod with unexpected catalog data", zap.Error(err))
		c.skipped.Add(1)
		s.emit(ctx, Event{Kind: EventSkipped, ModID: m.ID, ModName: m.Name, Message: err.Error()})
		return nil
	}

	local, err := s.store.FindMod(ctx, m.ID)
	if err != nil {
		return err
	}
	change, err := s.classify(ctx, m, local)
	if err != nil {
		return err
	}

	if change == Unchanged {
		if err := s.store.UpdateModStats(ctx, m.ID, statsOf(m)); err != nil {
			return err
		}
		c.unchanged.Add(1)
		s.emit(ctx, Event{Kind: EventUnchanged, ModID: m.ID, ModName: m.Name})
		return nil
	}

	modLog.Infow("Mod has changed, updating and re-downloading", "reason", string(change))
	c.changed.Add(1)
	s.emit(ctx, Event{Kind: EventChanged, ModID: m.ID, ModName: m.Name, Message: string(change)})

	malformed, err := s.refetch(ctx, modLog, m, local != nil)
	if err != nil {
		return err
	}
	if malformed {
		c.malformed.Add(1)
	}
	return nil
}

// refetch stores fresh metadata, clears the mod's files and rebuilds them
// from the catalog. It reports whether any platform file turned out broken.
func (s *Syncer) refetch(ctx context.Context, log *zap.SugaredLogger, m modio.Mod, existed bool) (bool, error) {
	stats := statsOf(m)
	record := &db.Mod{
		ID:           m.ID,
		Name:         stats.Name,
		Description:  stats.Description,
		ModUpdated:   m.UpdatedAt(),
		LastChecked:  s.now().UTC(),
		Explicit:     stats.Explicit,
		ThumbnailURL: stats.ThumbnailURL,
		Rank:         stats.Rank,
		Downloads:    stats.Downloads,
	}
	if err := s.store.UpsertMod(ctx, record); err != nil {
		return false, err
	}
	if existed {
		if err := s.store.ClearFiles(ctx, m.ID); err != nil {
			return false, err
		}
	}

	if err := s.gate.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer s.gate.Release(1)

	log.Debugw("Getting file list from API")
	files, err := s.catalog.GetModFiles(ctx, s.opts.GameID, m.ID, s.opts.FileListLimit)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// Nothing is stored for the mod, so the next run picks it up again.
		log.Warnw("Failed to list mod files", zap.Error(err))
		return false, nil
	}

	picked := pickFiles(files)
	if len(picked) == 0 {
		log.Infow("No file for any supported platform")
	}

	malformed := false
	for _, platform := range db.Platforms {
		f, ok := picked[platform]
		if !ok {
			continue
		}
		broken, err := s.processPlatform(ctx, log.With(zap.String("platform", string(platform))), m, platform, f)
		if err != nil {
			return false, err
		}
		malformed = malformed || broken
	}

	if malformed {
		if err := s.store.MarkMalformed(ctx, m.ID); err != nil {
			return false, err
		}
	}
	return malformed, nil
}

// processPlatform stores the platform file and extracts its pallets. Problems
// with the file are recorded as pallet errors and reported as broken; only
// context and store failures are returned.
func (s *Syncer) processPlatform(ctx context.Context, log *zap.SugaredLogger, m modio.Mod, platform db.Platform, f modio.File) (bool, error) {
	file := &db.PlatformFile{
		ModID:    m.ID,
		Platform: platform,
		FileID:   f.ID,
		Added:    f.AddedAt(),
	}

	url, resolveErr := s.catalog.ResolveDownload(ctx, f.Download.BinaryURL)
	if resolveErr != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		url = f.Download.BinaryURL
	}
	file.URL = url
	if err := s.store.ReplaceFile(ctx, file); err != nil {
		return false, err
	}
	if resolveErr != nil {
		log.Warnw("Failed to resolve download url", zap.Error(resolveErr))
		return true, s.recordFailure(ctx, m, file, db.UnreachableFileID, resolveErr.Error())
	}

	pallets, err := s.extractor.Extract(ctx, file)
	var loadErr *pallet.LoadError
	switch {
	case errors.As(err, &loadErr):
		if loadErr.FileID == pallet.UnreachableFileID {
			log.Warnw("Pallet error", "file_id", f.ID, zap.Error(loadErr))
		} else {
			log.Infow("Pallet error", "file_id", f.ID, zap.Error(loadErr))
		}
		return true, s.recordFailure(ctx, m, file, loadErr.FileID, loadErr.Err.Error())
	case err != nil:
		return false, err
	}

	dup, err := s.checker.Check(ctx, file, pallets)
	if err != nil {
		return false, err
	}
	if dup != nil {
		log.Infow("Duplicate pallet barcodes", zap.Error(dup))
		s.emit(ctx, Event{Kind: EventFailed, ModID: m.ID, ModName: m.Name, Platform: platform, Message: dup.Err.Error()})
		return true, nil
	}

	log.Debugw("Stored pallets", "file_id", f.ID, "count", len(pallets))
	s.emit(ctx, Event{Kind: EventExtracted, ModID: m.ID, ModName: m.Name, Platform: platform, Message: fmt.Sprintf("%d pallet(s)", len(pallets))})
	return false, nil
}

func (s *Syncer) recordFailure(ctx context.Context, m modio.Mod, file *db.PlatformFile, fileID int64, msg string) error {
	s.emit(ctx, Event{Kind: EventFailed, ModID: m.ID, ModName: m.Name, Platform: file.Platform, Message: msg})
	return s.store.RecordPalletError(ctx, &db.PalletError{
		PlatformFileID: file.ID,
		FileID:         fileID,
		Message:        msg,
	})
}

func statsOf(m modio.Mod) db.ModStats {
	return db.ModStats{
		Name:         m.Name,
		Description:  m.Summary,
		ThumbnailURL: m.ThumbnailURL(),
		Explicit:     m.Explicit(),
		Rank:         m.Rank(),
		Downloads:    m.Downloads(),
	}
}
