// Package pallet extracts pallet descriptors from mod archives, checks them
// for barcode collisions and prunes extracted files nobody references.
package pallet

import (
	"errors"
	"fmt"

	"modio-repo/db"
)

// UnreachableFileID tags load errors for archives that could not be fetched at all.
const UnreachableFileID = db.UnreachableFileID

var (
	ErrUnreachable      = errors.New("could not download mod file")
	ErrBadArchive       = errors.New("not a valid zip archive")
	ErrNoPallet         = errors.New("pallet.json not found in zip")
	ErrMalformedPallet  = errors.New("malformed pallet")
	ErrDuplicateBarcode = errors.New("duplicate pallet barcodes")
)

// LoadError is a failure to turn a file's archive into pallets. FileID is the
// mod.io file id, or UnreachableFileID when the archive never arrived.
type LoadError struct {
	FileID int64
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("file %d: %v", e.FileID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func loadError(fileID int64, sentinel error, format string, args ...any) *LoadError {
	if format == "" {
		return &LoadError{FileID: fileID, Err: sentinel}
	}
	return &LoadError{FileID: fileID, Err: fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)}
}
