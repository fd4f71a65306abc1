package db

import (
	"time"
)

// Platform is a deployment target a mod file can be installed on. The values
// double as the keys of a listing's target map in the generated repository.
type Platform string

const (
	PlatformDesktop Platform = "pc"
	PlatformMobile  Platform = "oculus-quest"
)

// Platforms lists every supported platform in canonical order.
var Platforms = []Platform{PlatformDesktop, PlatformMobile}

// UnreachableFileID is stored on PalletErrors whose archive could not be fetched at all.
const UnreachableFileID int64 = -999

// Mod represents a mod.io mod mirrored in the database
type Mod struct {
	ID           int64     `gorm:"primaryKey;autoIncrement:false"` // mod.io mod id
	Name         string    // Display name
	Description  string    // mod.io summary
	ModUpdated   time.Time // Last remote update (mod or its current file, whichever is newer)
	LastChecked  time.Time // Last time the archive was (re)processed
	Malformed    bool      `gorm:"index"` // Any file of this mod has a PalletError
	Explicit     bool      `gorm:"index"` // mod.io maturity flag contains "explicit"
	ThumbnailURL string
	Rank         int   // mod.io popularity rank position
	Downloads    int64 // mod.io total downloads
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Files []PlatformFile `gorm:"foreignKey:ModID"`
}

// PlatformFile is the newest mod.io file of a mod for one platform.
// There is at most one per (ModID, Platform).
type PlatformFile struct {
	ID       uint      `gorm:"primaryKey"`
	ModID    int64     `gorm:"not null;uniqueIndex:idx_mod_platform"`
	Platform Platform  `gorm:"not null;uniqueIndex:idx_mod_platform"`
	FileID   int64     `gorm:"index"` // mod.io file id
	URL      string    // Direct download URL resolved from the redirect
	Added    time.Time // mod.io upload date of the file

	Pallets []Pallet      `gorm:"foreignKey:PlatformFileID"`
	Errors  []PalletError `gorm:"foreignKey:PlatformFileID"`
}

// Pallet is a descriptor extracted from a pallet.json inside a file's archive
type Pallet struct {
	ID             uint   `gorm:"primaryKey"`
	PlatformFileID uint   `gorm:"not null;index"`
	Barcode        string `gorm:"index"`
	Author         string
	Version        string
	SDKVersion     string
	ZipPath        string // Path of the pallet.json inside the archive
	FSPath         string // Where the pallet.json was extracted to
}

// PalletError records why a file's pallets could not be used
type PalletError struct {
	ID             uint  `gorm:"primaryKey"`
	PlatformFileID uint  `gorm:"not null;index"`
	FileID         int64 // mod.io file id, or UnreachableFileID
	Message        string
	CreatedAt      time.Time
}
