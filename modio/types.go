package modio

import (
	"errors"
	"regexp"
	"time"
)

// Platform names used by mod.io file listings.
const (
	PlatformWindows = "windows"
	PlatformAndroid = "android"
	PlatformOculus  = "oculus"
)

// MaturityExplicit is the maturity_option bit marking explicit content.
const MaturityExplicit = 8

// DefaultThumbnailURL is used for mods without a logo.
const DefaultThumbnailURL = "https://thumb.modcdn.io/games/38ef/3809/crop_128x128/bonelabthumb.png"

var cropPattern = regexp.MustCompile(`crop_\d+x\d+`)

// ModPage is one page of the mod listing endpoint.
type ModPage struct {
	Data         []Mod `json:"data"`
	ResultCount  int   `json:"result_count"`
	ResultOffset int   `json:"result_offset"`
	ResultLimit  int   `json:"result_limit"`
	ResultTotal  int   `json:"result_total"`
}

// Last reports whether no page follows this one.
func (p ModPage) Last() bool {
	return p.ResultCount == 0 || p.ResultOffset+p.ResultCount >= p.ResultTotal
}

// Next is the offset of the following page.
func (p ModPage) Next() int {
	return p.ResultOffset + p.ResultCount
}

// FilePage is one page of a mod's file listing.
type FilePage struct {
	Data        []File `json:"data"`
	ResultCount int    `json:"result_count"`
	ResultTotal int    `json:"result_total"`
}

// Mod represents a mod.io mod (only the fields this tool reads).
type Mod struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Summary        string `json:"summary"`
	DateUpdated    int64  `json:"date_updated"`
	MaturityOption int    `json:"maturity_option"`
	Logo           *Logo  `json:"logo"`
	Stats          *Stats `json:"stats"`
	Modfile        *File  `json:"modfile"` // Current file, if any
}

// Logo holds the logo renditions of a mod.
type Logo struct {
	Original     string `json:"original"`
	Thumb320x180 string `json:"thumb_320x180"`
}

// Stats holds a mod's popularity numbers.
type Stats struct {
	PopularityRankPosition int   `json:"popularity_rank_position"`
	DownloadsTotal         int64 `json:"downloads_total"`
}

// File represents a mod.io modfile.
type File struct {
	ID        int64          `json:"id"`
	ModID     int64          `json:"mod_id"`
	DateAdded int64          `json:"date_added"`
	Platforms []FilePlatform `json:"platforms"`
	Download  Download       `json:"download"`
}

// FilePlatform is one platform a file declares support for.
type FilePlatform struct {
	Platform string `json:"platform"`
	Status   int    `json:"status"`
}

// Download carries the file's download link.
type Download struct {
	BinaryURL   string `json:"binary_url"`
	DateExpires int64  `json:"date_expires"`
}

// Validate checks the fields the sync depends on.
func (m Mod) Validate() error {
	switch {
	case m.ID <= 0:
		return errors.New("mod has no id")
	case m.Name == "":
		return errors.New("mod has no name")
	case m.Stats == nil:
		return errors.New("mod has no stats")
	case m.DateUpdated <= 0:
		return errors.New("mod has no update date")
	}
	return nil
}

// UpdatedAt is the newer of the mod's update date and its current file's upload date.
func (m Mod) UpdatedAt() time.Time {
	updated := time.Unix(m.DateUpdated, 0).UTC()
	if m.Modfile != nil {
		if added := m.Modfile.AddedAt(); added.After(updated) {
			return added
		}
	}
	return updated
}

// Explicit reports whether the mod is flagged as explicit content.
func (m Mod) Explicit() bool {
	return m.MaturityOption&MaturityExplicit != 0
}

// ThumbnailURL returns a 128x128 crop of the mod's logo.
func (m Mod) ThumbnailURL() string {
	if m.Logo == nil {
		return DefaultThumbnailURL
	}
	src := m.Logo.Thumb320x180
	if src == "" {
		src = m.Logo.Original
	}
	if src == "" {
		return DefaultThumbnailURL
	}
	return cropPattern.ReplaceAllString(src, "crop_128x128")
}

// Rank returns the popularity rank position, 0 when unknown.
func (m Mod) Rank() int {
	if m.Stats == nil {
		return 0
	}
	return m.Stats.PopularityRankPosition
}

// Downloads returns the total download count, 0 when unknown.
func (m Mod) Downloads() int64 {
	if m.Stats == nil {
		return 0
	}
	return m.Stats.DownloadsTotal
}

// AddedAt is the upload date of the file.
func (f File) AddedAt() time.Time {
	return time.Unix(f.DateAdded, 0).UTC()
}

// Supports reports whether the file declares any of the given platforms.
func (f File) Supports(platforms ...string) bool {
	for _, fp := range f.Platforms {
		for _, p := range platforms {
			if fp.Platform == p {
				return true
			}
		}
	}
	return false
}
