package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/ncruces/go-sqlite3/gormlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Store is the persistent store for mods, their platform files, pallets and
// pallet errors. All methods are safe for concurrent use; writes are
// serialized by a single underlying connection.
type Store struct {
	db *gorm.DB
}

// ModStats holds the lightweight metadata refreshed on every sync, even when
// a mod is otherwise unchanged.
type ModStats struct {
	Name         string
	Description  string
	ThumbnailURL string
	Explicit     bool
	Rank         int
	Downloads    int64
}

// Counts summarizes the store for the run metadata and the status command.
type Counts struct {
	Standard  int64 `json:"standard"`
	Explicit  int64 `json:"explicit"`
	Malformed int64 `json:"malformed"`
}

// InitDatabase opens the SQLite database at dbPath and migrates the models.
func InitDatabase(dbPath string) (*Store, error) {
	// Configure GORM logger
	newLogger := gormlogger.New(
		log.New(os.Stderr, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,     // Slow SQL threshold
			LogLevel:                  gormlogger.Warn, // Log level (Warn, Error, Info)
			IgnoreRecordNotFoundError: true,            // Ignore ErrRecordNotFound error
			ParameterizedQueries:      false,           // Log SQL queries with params
			Colorful:                  true,            // Enable color
		},
	)

	gdb, err := gorm.Open(gormlite.Open(dsn(dbPath)), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	// SQLite allows one writer; sharing a single connection avoids SQLITE_BUSY under the sync's goroutines.
	sqlDB.SetMaxOpenConns(1)

	if err := gdb.AutoMigrate(&Mod{}, &PlatformFile{}, &Pallet{}, &PalletError{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}
	return &Store{db: gdb}, nil
}

func dsn(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(10000)"
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// FindMod returns the mod with the given mod.io id, or nil if it is unknown.
func (s *Store) FindMod(ctx context.Context, id int64) (*Mod, error) {
	var mod Mod
	err := s.db.WithContext(ctx).First(&mod, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find mod %d: %w", id, err)
	}
	return &mod, nil
}

// UpsertMod inserts the mod or overwrites every column of the existing row.
func (s *Store) UpsertMod(ctx context.Context, mod *Mod) error {
	err := s.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "mod_updated", "last_checked", "malformed",
			"explicit", "thumbnail_url", "rank", "downloads", "updated_at",
		}),
	}).Create(mod).Error
	if err != nil {
		return fmt.Errorf("upsert mod %d: %w", mod.ID, err)
	}
	return nil
}

// UpdateModStats refreshes the lightweight metadata of an existing mod.
func (s *Store) UpdateModStats(ctx context.Context, id int64, stats ModStats) error {
	err := s.db.WithContext(ctx).Model(&Mod{}).Where("id = ?", id).Updates(map[string]any{
		"name":          stats.Name,
		"description":   stats.Description,
		"thumbnail_url": stats.ThumbnailURL,
		"explicit":      stats.Explicit,
		"rank":          stats.Rank,
		"downloads":     stats.Downloads,
	}).Error
	if err != nil {
		return fmt.Errorf("update stats of mod %d: %w", id, err)
	}
	return nil
}

// MarkMalformed flags the mod so it is left out of generated repositories.
func (s *Store) MarkMalformed(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).Model(&Mod{}).Where("id = ?", id).Update("malformed", true).Error
	if err != nil {
		return fmt.Errorf("mark mod %d malformed: %w", id, err)
	}
	return nil
}

// FilesForMod returns the stored platform files of a mod.
func (s *Store) FilesForMod(ctx context.Context, modID int64) ([]PlatformFile, error) {
	var files []PlatformFile
	err := s.db.WithContext(ctx).Where("mod_id = ?", modID).Order("platform").Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("files of mod %d: %w", modID, err)
	}
	return files, nil
}

// LatestFileAdded returns the newest Added time among the mod's files, or
// nil when the mod has no stored files.
func (s *Store) LatestFileAdded(ctx context.Context, modID int64) (*time.Time, error) {
	files, err := s.FilesForMod(ctx, modID)
	if err != nil {
		return nil, err
	}
	var latest *time.Time
	for i := range files {
		if latest == nil || files[i].Added.After(*latest) {
			latest = &files[i].Added
		}
	}
	return latest, nil
}

// ReplaceFile stores file as the mod's file for file.Platform. Any previous
// file for the same (mod, platform) is deleted together with its pallets and
// errors inside the same transaction.
func (s *Store) ReplaceFile(ctx context.Context, file *PlatformFile) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old []PlatformFile
		if err := tx.Where("mod_id = ? AND platform = ?", file.ModID, file.Platform).Find(&old).Error; err != nil {
			return fmt.Errorf("find previous %s file of mod %d: %w", file.Platform, file.ModID, err)
		}
		if err := deleteFiles(tx, old); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(file).Error; err != nil {
			return fmt.Errorf("create %s file of mod %d: %w", file.Platform, file.ModID, err)
		}
		return nil
	})
}

// ClearFiles deletes every file of the mod together with its pallets and errors.
func (s *Store) ClearFiles(ctx context.Context, modID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old []PlatformFile
		if err := tx.Where("mod_id = ?", modID).Find(&old).Error; err != nil {
			return fmt.Errorf("find files of mod %d: %w", modID, err)
		}
		return deleteFiles(tx, old)
	})
}

func deleteFiles(tx *gorm.DB, files []PlatformFile) error {
	if len(files) == 0 {
		return nil
	}
	ids := make([]uint, len(files))
	for i, f := range files {
		ids[i] = f.ID
	}
	if err := tx.Where("platform_file_id IN ?", ids).Delete(&Pallet{}).Error; err != nil {
		return fmt.Errorf("delete pallets: %w", err)
	}
	if err := tx.Where("platform_file_id IN ?", ids).Delete(&PalletError{}).Error; err != nil {
		return fmt.Errorf("delete pallet errors: %w", err)
	}
	if err := tx.Where("id IN ?", ids).Delete(&PlatformFile{}).Error; err != nil {
		return fmt.Errorf("delete files: %w", err)
	}
	return nil
}

// CreatePallets stores pallets extracted from one file.
func (s *Store) CreatePallets(ctx context.Context, pallets []Pallet) error {
	if len(pallets) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(pallets).Error; err != nil {
		return fmt.Errorf("create pallets: %w", err)
	}
	return nil
}

// PalletsForFile returns the pallets of a platform file in insertion order.
func (s *Store) PalletsForFile(ctx context.Context, platformFileID uint) ([]Pallet, error) {
	var pallets []Pallet
	err := s.db.WithContext(ctx).Where("platform_file_id = ?", platformFileID).Order("id").Find(&pallets).Error
	if err != nil {
		return nil, fmt.Errorf("pallets of file %d: %w", platformFileID, err)
	}
	return pallets, nil
}

// RecordPalletError stores a pallet error for a platform file.
func (s *Store) RecordPalletError(ctx context.Context, perr *PalletError) error {
	if err := s.db.WithContext(ctx).Create(perr).Error; err != nil {
		return fmt.Errorf("record pallet error for file %d: %w", perr.PlatformFileID, err)
	}
	return nil
}

// ErrorsForFile returns the pallet errors recorded for a platform file.
func (s *Store) ErrorsForFile(ctx context.Context, platformFileID uint) ([]PalletError, error) {
	var errs []PalletError
	err := s.db.WithContext(ctx).Where("platform_file_id = ?", platformFileID).Order("id").Find(&errs).Error
	if err != nil {
		return nil, fmt.Errorf("errors of file %d: %w", platformFileID, err)
	}
	return errs, nil
}

// ReconcileMalformed marks every mod that owns a file with a pallet error as
// malformed and returns how many mods changed.
func (s *Store) ReconcileMalformed(ctx context.Context) (int64, error) {
	withErrors := s.db.Model(&PlatformFile{}).
		Select("platform_files.mod_id").
		Joins("JOIN pallet_errors ON pallet_errors.platform_file_id = platform_files.id")
	res := s.db.WithContext(ctx).Model(&Mod{}).
		Where("malformed = ? AND id IN (?)", false, withErrors).
		Update("malformed", true)
	if res.Error != nil {
		return 0, fmt.Errorf("reconcile malformed mods: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// EligibleMods returns the non-malformed mods of one content-rating partition
// with their files and pallets loaded, ordered by id.
func (s *Store) EligibleMods(ctx context.Context, explicit bool) ([]Mod, error) {
	var mods []Mod
	err := s.db.WithContext(ctx).
		Preload("Files", func(tx *gorm.DB) *gorm.DB { return tx.Order("platform") }).
		Preload("Files.Pallets", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		Where("malformed = ? AND explicit = ?", false, explicit).
		Order("id").
		Find(&mods).Error
	if err != nil {
		return nil, fmt.Errorf("list eligible mods: %w", err)
	}
	return mods, nil
}

// MalformedMods returns malformed mods with their files and errors loaded.
func (s *Store) MalformedMods(ctx context.Context) ([]Mod, error) {
	var mods []Mod
	err := s.db.WithContext(ctx).
		Preload("Files", func(tx *gorm.DB) *gorm.DB { return tx.Order("platform") }).
		Preload("Files.Errors", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		Where("malformed = ?", true).
		Order("id").
		Find(&mods).Error
	if err != nil {
		return nil, fmt.Errorf("list malformed mods: %w", err)
	}
	return mods, nil
}

// Counts returns how many mods are in each manifest partition and how many are malformed.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	count := func(dst *int64, query string, args ...any) error {
		return s.db.WithContext(ctx).Model(&Mod{}).Where(query, args...).Count(dst).Error
	}
	if err := count(&c.Standard, "malformed = ? AND explicit = ?", false, false); err != nil {
		return Counts{}, fmt.Errorf("count standard mods: %w", err)
	}
	if err := count(&c.Explicit, "malformed = ? AND explicit = ?", false, true); err != nil {
		return Counts{}, fmt.Errorf("count explicit mods: %w", err)
	}
	if err := count(&c.Malformed, "malformed = ?", true); err != nil {
		return Counts{}, fmt.Errorf("count malformed mods: %w", err)
	}
	return c, nil
}

// PalletPaths returns the extracted file path of every stored pallet.
func (s *Store) PalletPaths(ctx context.Context) ([]string, error) {
	var paths []string
	if err := s.db.WithContext(ctx).Model(&Pallet{}).Pluck("fs_path", &paths).Error; err != nil {
		return nil, fmt.Errorf("list pallet paths: %w", err)
	}
	return paths, nil
}
