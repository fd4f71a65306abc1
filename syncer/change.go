package syncer

import (
	"context"

	"modio-repo/db"
	"modio-repo/modio"
)

// Change is why a mod needs to be re-fetched. The zero value means it does not.
type Change string

const (
	Unchanged     Change = ""
	ChangeNew     Change = "new"
	ChangeUpdated Change = "updated"
	ChangeNewFile Change = "new file"
	ChangeMissing Change = "missing pallets"
)

// classify decides whether the mod has to be re-fetched. The rules are
// checked in order and the first one that matches wins.
func (s *Syncer) classify(ctx context.Context, m modio.Mod, local *db.Mod) (Change, error) {
	if local == nil {
		return ChangeNew, nil
	}
	if m.UpdatedAt().After(local.ModUpdated) {
		return ChangeUpdated, nil
	}

	latest, err := s.store.LatestFileAdded(ctx, m.ID)
	if err != nil {
		return Unchanged, err
	}
	if latest == nil || (m.Modfile != nil && m.Modfile.AddedAt().After(*latest)) {
		return ChangeNewFile, nil
	}

	// Occasionally look for files whose extraction never completed, so a
	// failed run is repaired without re-downloading every mod every time.
	if s.rand() < s.opts.BackfillProbability {
		missing, err := s.missingPallets(ctx, m.ID)
		if err != nil {
			return Unchanged, err
		}
		if missing {
			return ChangeMissing, nil
		}
	}
	return Unchanged, nil
}

func (s *Syncer) missingPallets(ctx context.Context, modID int64) (bool, error) {
	files, err := s.store.FilesForMod(ctx, modID)
	if err != nil {
		return false, err
	}
	for _, f := range files {
		pallets, err := s.store.PalletsForFile(ctx, f.ID)
		if err != nil {
			return false, err
		}
		if len(pallets) == 0 {
			return true, nil
		}
	}
	return false, nil
}

// pickFiles returns the newest file per platform. files must be sorted
// newest first.
func pickFiles(files []modio.File) map[db.Platform]modio.File {
	picked := make(map[db.Platform]modio.File, len(db.Platforms))
	for _, f := range files {
		if _, ok := picked[db.PlatformDesktop]; !ok && f.Supports(modio.PlatformWindows) {
			picked[db.PlatformDesktop] = f
		}
		if _, ok := picked[db.PlatformMobile]; !ok && f.Supports(modio.PlatformAndroid, modio.PlatformOculus) {
			picked[db.PlatformMobile] = f
		}
	}
	return picked
}
