// Package manifest turns the stored mods into BONELAB repository documents.
package manifest

import (
	"fmt"

	"modio-repo/db"
	"modio-repo/refgraph"
)

// Forklift type names understood by the game's mod browser.
const (
	TypeRepository = "SLZ.Marrow.Forklift.Model.ModRepository, SLZ.Marrow.SDK, Version=0.0.0.0, Culture=neutral, PublicKeyToken=null"
	TypeListing    = "SLZ.Marrow.Forklift.Model.ModListing, SLZ.Marrow.SDK, Version=0.0.0.0, Culture=neutral, PublicKeyToken=null"
	TypeTarget     = "SLZ.Marrow.Forklift.Model.DownloadableModTarget, SLZ.Marrow.SDK, Version=0.0.0.0, Culture=neutral, PublicKeyToken=null"
)

// Partition is one generated repository file.
type Partition struct {
	Name        string
	FileName    string
	Title       string
	Description string
	Explicit    bool
}

// Partitions splits the mods by content rating.
var Partitions = []Partition{
	{
		Name:        "standard",
		FileName:    "repository.json",
		Title:       "mod.io (unofficial)",
		Description: "Unofficial repository of mod.io mods",
	},
	{
		Name:        "explicit",
		FileName:    "nsfw_repository.json",
		Title:       "mod.io nsfw (unofficial)",
		Description: "Unofficial repository of NSFW mod.io mods",
		Explicit:    true,
	},
}

// Builder builds repository documents. It reuses one namespace, reset before
// every document, so each document numbers its references from 1.
type Builder struct {
	ns         *refgraph.Namespace
	baseURL    string
	preference []db.Platform
}

// NewBuilder creates a builder. baseURL prefixes the manifest URLs of
// listings; preference orders the platforms a listing's pallet is taken from.
func NewBuilder(baseURL string, preference []db.Platform) *Builder {
	if len(preference) == 0 {
		preference = db.Platforms
	}
	return &Builder{
		ns:         refgraph.NewNamespace(),
		baseURL:    baseURL,
		preference: preference,
	}
}

// Build creates the repository document of a partition. mods must have their
// files and pallets loaded; mods without any pallet get no listing.
func (b *Builder) Build(p Partition, mods []db.Mod) *refgraph.Document {
	b.ns.Reset()
	g := refgraph.NewGraph(b.ns)
	tRepo := g.NewType(TypeRepository)
	tListing := g.NewType(TypeListing)
	tTarget := g.NewType(TypeTarget)

	root := g.NewObject(tRepo, refgraph.Fields{
		"title":       p.Title,
		"description": p.Description,
	})

	for i := range mods {
		mod := &mods[i]
		source, pal, ok := b.pickPallet(mod)
		if !ok {
			continue
		}

		// Targets come first so the listing can point at them.
		targets := map[string]refgraph.Link{}
		for _, platform := range db.Platforms {
			f := fileFor(mod, platform)
			if f == nil {
				continue
			}
			target := g.NewObject(tTarget, refgraph.Fields{
				"thumbnailOverride": nil,
				"url":               f.URL,
			})
			targets[string(platform)] = target.Link()
		}

		g.NewObject(tListing, refgraph.Fields{
			"barcode":      pal.Barcode,
			"title":        TitleSortHack(mod),
			"description":  mod.Description,
			"author":       pal.Author,
			"version":      pal.Version,
			"sdkVersion":   pal.SDKVersion,
			"internal":     false,
			"tags":         []string{},
			"thumbnailUrl": mod.ThumbnailURL,
			"manifestUrl":  fmt.Sprintf("%s/pallets/%d_0.json", b.baseURL, source.FileID),
			"targets":      targets,
		})
	}

	root.Fields["mods"] = g.LinksOfType(tListing)
	return g.Document(root)
}

// pickPallet returns the first pallet of the first preferred platform that
// has one, together with its file.
func (b *Builder) pickPallet(mod *db.Mod) (*db.PlatformFile, *db.Pallet, bool) {
	for _, platform := range b.preference {
		f := fileFor(mod, platform)
		if f != nil && len(f.Pallets) > 0 {
			return f, &f.Pallets[0], true
		}
	}
	return nil, nil, false
}

func fileFor(mod *db.Mod, platform db.Platform) *db.PlatformFile {
	for i := range mod.Files {
		if mod.Files[i].Platform == platform {
			return &mod.Files[i]
		}
	}
	return nil
}

// TitleSortHack makes the in-game browser, which sorts listings by title,
// order them by popularity rank. The rank is rendered invisibly in front of
// the name and the download count is shown below it.
func TitleSortHack(mod *db.Mod) string {
	rank := ""
	if mod.Rank > 0 {
		rank = fmt.Sprintf("<size=0%%>%09d</size>", mod.Rank)
	}
	return fmt.Sprintf("%s%s\n  <mspace=-0.2>▬ꜜ</mspace>    %d", rank, mod.Name, mod.Downloads)
}
