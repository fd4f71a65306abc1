package pallet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"modio-repo/db"
	"modio-repo/modio"
)

// fileSuffix matches pallet descriptors inside an archive.
const fileSuffix = "pallet.json"

// maxPalletSize caps how much of a single pallet.json is read.
const maxPalletSize = 16 << 20

// Downloader fetches a mod.io file's archive.
type Downloader interface {
	DownloadFile(ctx context.Context, fileID int64) ([]byte, error)
}

// PalletStore is the part of the store the extractor writes to.
type PalletStore interface {
	PalletsForFile(ctx context.Context, platformFileID uint) ([]db.Pallet, error)
	CreatePallets(ctx context.Context, pallets []db.Pallet) error
}

// Extractor turns platform files into stored pallets.
type Extractor struct {
	store      PalletStore
	downloader Downloader
	dir        string
	timeout    time.Duration
	log        *zap.SugaredLogger
}

// NewExtractor writes extracted pallet.json files into dir. timeout bounds
// each archive download; zero means no limit beyond ctx.
func NewExtractor(store PalletStore, downloader Downloader, dir string, timeout time.Duration, log *zap.SugaredLogger) *Extractor {
	return &Extractor{
		store:      store,
		downloader: downloader,
		dir:        dir,
		timeout:    timeout,
		log:        log,
	}
}

// Extract returns the pallets of file, downloading and unpacking its archive
// if none are stored yet. Problems with the file itself are returned as
// *LoadError; any other error comes from ctx or the store.
func (e *Extractor) Extract(ctx context.Context, file *db.PlatformFile) ([]db.Pallet, error) {
	existing, err := e.store.PalletsForFile(ctx, file.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	data, err := e.download(ctx, file.FileID)
	if err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, loadError(file.FileID, ErrBadArchive, "%v", err)
	}

	var pallets []db.Pallet
	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() || !strings.HasSuffix(entry.Name, fileSuffix) {
			continue
		}
		fsPath := filepath.Join(e.dir, fmt.Sprintf("%d_%d.json", file.FileID, len(pallets)))
		content, err := readEntry(entry)
		if err != nil {
			return nil, loadError(file.FileID, ErrBadArchive, "%s: %v", entry.Name, err)
		}
		if err := os.WriteFile(fsPath, content, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", fsPath, err)
		}
		d, err := Parse(content)
		if err != nil {
			return nil, &LoadError{FileID: file.FileID, Err: fmt.Errorf("%s: %w", entry.Name, err)}
		}
		pallets = append(pallets, db.Pallet{
			PlatformFileID: file.ID,
			Barcode:        d.Barcode,
			Author:         d.Author,
			Version:        d.Version,
			SDKVersion:     d.SDKVersion,
			ZipPath:        entry.Name,
			FSPath:         fsPath,
		})
	}
	if len(pallets) == 0 {
		return nil, loadError(file.FileID, ErrNoPallet, "")
	}

	if err := e.store.CreatePallets(ctx, pallets); err != nil {
		return nil, err
	}
	e.log.Debugw("Extracted pallets", "file_id", file.FileID, "count", len(pallets))
	return pallets, nil
}

func (e *Extractor) download(ctx context.Context, fileID int64) ([]byte, error) {
	dlCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		dlCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	e.log.Debugw("Downloading mod file", "file_id", fileID)
	start := time.Now()
	data, err := e.downloader.DownloadFile(dlCtx, fileID)
	if err == nil {
		e.log.Debugw("Done downloading", "file_id", fileID, "bytes", len(data), "took", time.Since(start))
		return data, nil
	}

	// A cancelled run is not the file's fault.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	var statusErr *modio.StatusError
	switch {
	case errors.As(err, &statusErr):
		return nil, loadError(fileID, ErrUnreachable, "status %d", statusErr.StatusCode)
	case isTimeout(err):
		return nil, loadError(UnreachableFileID, ErrUnreachable, "timed out after %s", time.Since(start).Round(time.Second))
	default:
		return nil, loadError(UnreachableFileID, ErrUnreachable, "%v", err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func readEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxPalletSize))
}
