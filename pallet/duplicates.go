package pallet

import (
	"context"
	"fmt"

	"modio-repo/db"
)

// MostCommonBarcode returns the most frequent barcode among pallets and its
// count. Ties go to the barcode seen first.
func MostCommonBarcode(pallets []db.Pallet) (string, int) {
	counts := make(map[string]int, len(pallets))
	var best string
	var bestCount int
	for _, p := range pallets {
		counts[p.Barcode]++
		if c := counts[p.Barcode]; c > bestCount {
			best, bestCount = p.Barcode, c
		}
	}
	return best, bestCount
}

// ErrorRecorder stores pallet errors.
type ErrorRecorder interface {
	RecordPalletError(ctx context.Context, perr *db.PalletError) error
}

// Checker records an error on files whose pallets share a barcode.
type Checker struct {
	store ErrorRecorder
}

// NewChecker creates a Checker that records duplicates through store.
func NewChecker(store ErrorRecorder) *Checker {
	return &Checker{store: store}
}

// Check looks for a barcode that occurs more than once among the pallets of
// file. If there is one, it is recorded and returned as a *LoadError. The
// returned error is nil otherwise; storage failures come back as plain errors.
func (c *Checker) Check(ctx context.Context, file *db.PlatformFile, pallets []db.Pallet) (*LoadError, error) {
	if len(pallets) < 2 {
		return nil, nil
	}
	barcode, count := MostCommonBarcode(pallets)
	if count < 2 {
		return nil, nil
	}

	msg := fmt.Sprintf("%s contains duplicate pallet barcodes: %s", file.URL, barcode)
	err := c.store.RecordPalletError(ctx, &db.PalletError{
		PlatformFileID: file.ID,
		FileID:         file.FileID,
		Message:        msg,
	})
	if err != nil {
		return nil, err
	}
	return loadError(file.FileID, ErrDuplicateBarcode, "%s", barcode), nil
}
