package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"modio-repo/db"
	"modio-repo/modio"
	"modio-repo/pallet"
)

type fakeCatalog struct {
	mu         sync.Mutex
	mods       []modio.Mod
	files      map[int64][]modio.File
	filesErr   error
	resolveErr error
	pageErr    error
	pageCalls  int
}

func (f *fakeCatalog) GetMods(_ context.Context, _ int64, offset, limit int) (*modio.ModPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCalls++
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	end := min(offset+limit, len(f.mods))
	data := f.mods[min(offset, end):end]
	return &modio.ModPage{
		Data:         data,
		ResultCount:  len(data),
		ResultOffset: offset,
		ResultLimit:  limit,
		ResultTotal:  len(f.mods),
	}, nil
}

func (f *fakeCatalog) GetModFiles(_ context.Context, _, modID int64, _ int) ([]modio.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.filesErr != nil {
		return nil, f.filesErr
	}
	return f.files[modID], nil
}

func (f *fakeCatalog) ResolveDownload(_ context.Context, downloadURL string) (string, error) {
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	return downloadURL + "/resolved", nil
}

// fakeExtractor stores pallets with the configured barcodes per file id and
// records how many extractions run at once.
type fakeExtractor struct {
	store    *db.Store
	barcodes map[int64][]string
	errs     map[int64]error
	delay    time.Duration

	calls       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeExtractor) Extract(ctx context.Context, file *db.PlatformFile) ([]db.Pallet, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		old := f.maxInFlight.Load()
		if n <= old || f.maxInFlight.CompareAndSwap(old, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if err := f.errs[file.FileID]; err != nil {
		return nil, err
	}
	barcodes, ok := f.barcodes[file.FileID]
	if !ok {
		barcodes = []string{fmt.Sprintf("Author.Pallet%d", file.FileID)}
	}
	pallets := make([]db.Pallet, len(barcodes))
	for i, b := range barcodes {
		pallets[i] = db.Pallet{PlatformFileID: file.ID, Barcode: b, FSPath: fmt.Sprintf("%d_%d.json", file.FileID, i)}
	}
	if err := f.store.CreatePallets(ctx, pallets); err != nil {
		return nil, err
	}
	return pallets, nil
}

func newTestStore(t *testing.T) *db.Store {
	t.Helper()
	store, err := db.InitDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func apiFile(id, added int64, platforms ...string) modio.File {
	f := modio.File{ID: id, DateAdded: added, Download: modio.Download{BinaryURL: fmt.Sprintf("https://api.mod.io/files/%d", id)}}
	for _, p := range platforms {
		f.Platforms = append(f.Platforms, modio.FilePlatform{Platform: p})
	}
	return f
}

func apiMod(id, updated int64) modio.Mod {
	return modio.Mod{
		ID:          id,
		Name:        fmt.Sprintf("Mod %d", id),
		Summary:     "summary",
		DateUpdated: updated,
		Stats:       &modio.Stats{PopularityRankPosition: int(id), DownloadsTotal: 100 * id},
		Modfile:     &modio.File{ID: id * 10, DateAdded: updated},
	}
}

func newTestSyncer(t *testing.T, cat *fakeCatalog, opts Options) (*Syncer, *db.Store, *fakeExtractor) {
	t.Helper()
	store := newTestStore(t)
	ext := &fakeExtractor{store: store, barcodes: map[int64][]string{}, errs: map[int64]error{}}
	if opts.PageSize == 0 {
		opts.PageSize = 100
	}
	s := New(cat, store, ext, opts, zap.NewNop().Sugar())
	s.rand = func() float64 { return 1 }
	return s, store, ext
}

func TestPickFiles(t *testing.T) {
	files := []modio.File{
		apiFile(9, 900, modio.PlatformWindows),
		apiFile(8, 800, modio.PlatformWindows, modio.PlatformOculus),
		apiFile(7, 700, modio.PlatformAndroid),
	}
	picked := pickFiles(files)
	assert.Equal(t, int64(9), picked[db.PlatformDesktop].ID)
	assert.Equal(t, int64(8), picked[db.PlatformMobile].ID)

	assert.Empty(t, pickFiles([]modio.File{apiFile(1, 1, "linux")}))
}

func TestClassify(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func(t *testing.T, store *db.Store)
		mod   modio.Mod
		rand  float64
		want  Change
	}{
		{
			name:  "unseen mod",
			setup: func(*testing.T, *db.Store) {},
			mod:   apiMod(1, 1000),
			want:  ChangeNew,
		},
		{
			name: "newer remote update",
			setup: func(t *testing.T, store *db.Store) {
				storeSynced(t, store, 1, 500, 500, true)
			},
			mod:  apiMod(1, 1000),
			want: ChangeUpdated,
		},
		{
			name: "newer remote file",
			setup: func(t *testing.T, store *db.Store) {
				storeSynced(t, store, 1, 1000, 400, true)
			},
			mod:  withModfile(apiMod(1, 900), 950),
			want: ChangeNewFile,
		},
		{
			name: "no local file",
			setup: func(t *testing.T, store *db.Store) {
				require.NoError(t, store.UpsertMod(ctx, &db.Mod{ID: 1, ModUpdated: time.Unix(1000, 0)}))
			},
			mod:  apiMod(1, 1000),
			want: ChangeNewFile,
		},
		{
			name: "older remote update and file",
			setup: func(t *testing.T, store *db.Store) {
				storeSynced(t, store, 1, 1000, 1000, true)
			},
			mod:  apiMod(1, 800),
			want: Unchanged,
		},
		{
			name: "backfill finds missing pallets",
			setup: func(t *testing.T, store *db.Store) {
				storeSynced(t, store, 1, 1000, 1000, false)
			},
			mod:  apiMod(1, 1000),
			rand: 0,
			want: ChangeMissing,
		},
		{
			name: "backfill not drawn",
			setup: func(t *testing.T, store *db.Store) {
				storeSynced(t, store, 1, 1000, 1000, false)
			},
			mod:  apiMod(1, 1000),
			rand: 0.99,
			want: Unchanged,
		},
		{
			name: "backfill with all pallets present",
			setup: func(t *testing.T, store *db.Store) {
				storeSynced(t, store, 1, 1000, 1000, true)
			},
			mod:  apiMod(1, 1000),
			rand: 0,
			want: Unchanged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store, _ := newTestSyncer(t, &fakeCatalog{}, Options{BackfillProbability: 0.05})
			s.rand = func() float64 { return tt.rand }
			tt.setup(t, store)

			local, err := store.FindMod(ctx, tt.mod.ID)
			require.NoError(t, err)
			got, err := s.classify(ctx, tt.mod, local)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func withModfile(m modio.Mod, added int64) modio.Mod {
	m.Modfile = &modio.File{ID: m.ID*10 + 1, DateAdded: added}
	return m
}

// storeSynced stores a mod as a previous run would have left it.
func storeSynced(t *testing.T, store *db.Store, id, updated, fileAdded int64, withPallets bool) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.UpsertMod(ctx, &db.Mod{ID: id, Name: "old", ModUpdated: time.Unix(updated, 0).UTC()}))
	file := &db.PlatformFile{ModID: id, Platform: db.PlatformDesktop, FileID: id * 10, Added: time.Unix(fileAdded, 0).UTC()}
	require.NoError(t, store.ReplaceFile(ctx, file))
	if withPallets {
		require.NoError(t, store.CreatePallets(ctx, []db.Pallet{{PlatformFileID: file.ID, Barcode: "A.B"}}))
	}
}

func TestRunNewMod(t *testing.T) {
	cat := &fakeCatalog{
		mods: []modio.Mod{apiMod(1, 1000)},
		files: map[int64][]modio.File{
			1: {apiFile(12, 1000, modio.PlatformWindows, modio.PlatformAndroid), apiFile(11, 900, modio.PlatformWindows)},
		},
	}
	s, store, _ := newTestSyncer(t, cat, Options{MaxParallel: 2})

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, int64(1), res.Seen)
	assert.Equal(t, int64(1), res.Changed)
	assert.Equal(t, int64(0), res.Malformed)

	ctx := context.Background()
	mod, err := store.FindMod(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, mod)
	assert.Equal(t, "Mod 1", mod.Name)
	assert.False(t, mod.Malformed)
	assert.True(t, mod.ModUpdated.Equal(time.Unix(1000, 0)))

	files, err := store.FilesForMod(ctx, 1)
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, f := range files {
		assert.Equal(t, int64(12), f.FileID, "newest file wins %s", f.Platform)
		assert.Equal(t, "https://api.mod.io/files/12/resolved", f.URL)
		pallets, err := store.PalletsForFile(ctx, f.ID)
		require.NoError(t, err)
		assert.Len(t, pallets, 1)
	}
}

func TestRunUnchangedModOnlyRefreshesStats(t *testing.T) {
	cat := &fakeCatalog{
		mods:  []modio.Mod{apiMod(1, 1000)},
		files: map[int64][]modio.File{1: {apiFile(10, 1000, modio.PlatformWindows)}},
	}
	s, store, ext := newTestSyncer(t, cat, Options{})
	_, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), ext.calls.Load())

	cat.mods[0].Name = "Renamed"
	cat.mods[0].Stats.DownloadsTotal = 5000
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Unchanged)
	assert.Equal(t, int64(0), res.Changed)
	assert.Equal(t, int32(1), ext.calls.Load(), "unchanged mods are not re-extracted")

	mod, err := store.FindMod(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", mod.Name)
	assert.Equal(t, int64(5000), mod.Downloads)
}

func TestRunIsolatesFailures(t *testing.T) {
	cat := &fakeCatalog{
		mods: []modio.Mod{apiMod(1, 1000), apiMod(2, 1000), apiMod(3, 1000)},
		files: map[int64][]modio.File{
			// mod 1: desktop archive is broken, mobile is fine
			1: {apiFile(101, 1000, modio.PlatformWindows), apiFile(102, 900, modio.PlatformOculus)},
			// mod 2: healthy
			2: {apiFile(201, 1000, modio.PlatformWindows)},
			// mod 3: duplicate barcodes on mobile only
			3: {apiFile(301, 1000, modio.PlatformWindows), apiFile(302, 1000, modio.PlatformAndroid)},
		},
	}
	s, store, ext := newTestSyncer(t, cat, Options{MaxParallel: 2})
	ext.errs[101] = &pallet.LoadError{FileID: 101, Err: pallet.ErrBadArchive}
	ext.barcodes[302] = []string{"A", "A", "B"}

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Changed)
	assert.Equal(t, int64(2), res.Malformed)

	ctx := context.Background()
	check := func(modID int64, wantMalformed bool, wantErrors map[db.Platform]int) {
		t.Helper()
		mod, err := store.FindMod(ctx, modID)
		require.NoError(t, err)
		assert.Equal(t, wantMalformed, mod.Malformed, "mod %d", modID)

		files, err := store.FilesForMod(ctx, modID)
		require.NoError(t, err)
		for _, f := range files {
			errs, err := store.ErrorsForFile(ctx, f.ID)
			require.NoError(t, err)
			assert.Len(t, errs, wantErrors[f.Platform], "mod %d %s", modID, f.Platform)
		}
	}
	check(1, true, map[db.Platform]int{db.PlatformDesktop: 1})
	check(2, false, nil)
	check(3, true, map[db.Platform]int{db.PlatformMobile: 1})

	// The broken desktop file did not stop the mobile extraction.
	files, err := store.FilesForMod(ctx, 1)
	require.NoError(t, err)
	for _, f := range files {
		if f.Platform == db.PlatformMobile {
			pallets, err := store.PalletsForFile(ctx, f.ID)
			require.NoError(t, err)
			assert.Len(t, pallets, 1)
		}
	}
}

func TestRunRecordsUnresolvableDownloads(t *testing.T) {
	cat := &fakeCatalog{
		mods:       []modio.Mod{apiMod(1, 1000)},
		files:      map[int64][]modio.File{1: {apiFile(10, 1000, modio.PlatformWindows)}},
		resolveErr: modio.ErrNoRedirect,
	}
	s, store, ext := newTestSyncer(t, cat, Options{})

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Malformed)
	assert.Equal(t, int32(0), ext.calls.Load())

	files, err := store.FilesForMod(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, files, 1)
	errs, err := store.ErrorsForFile(context.Background(), files[0].ID)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, db.UnreachableFileID, errs[0].FileID)
}

func TestRunSkipsInvalidCatalogEntries(t *testing.T) {
	broken := apiMod(2, 1000)
	broken.Stats = nil
	cat := &fakeCatalog{
		mods:  []modio.Mod{apiMod(1, 1000), broken},
		files: map[int64][]modio.File{1: {apiFile(10, 1000, modio.PlatformWindows)}},
	}
	s, store, _ := newTestSyncer(t, cat, Options{})

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Seen)
	assert.Equal(t, int64(1), res.Skipped)

	mod, err := store.FindMod(context.Background(), 2)
	require.NoError(t, err)
	assert.Nil(t, mod)
}

func TestRunFileListFailureSkipsMod(t *testing.T) {
	cat := &fakeCatalog{
		mods:     []modio.Mod{apiMod(1, 1000)},
		filesErr: errors.New("boom"),
	}
	s, store, _ := newTestSyncer(t, cat, Options{})

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	files, err := store.FilesForMod(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRunConcurrencyGate(t *testing.T) {
	const gate = 3
	cat := &fakeCatalog{files: map[int64][]modio.File{}}
	for id := int64(1); id <= 20; id++ {
		cat.mods = append(cat.mods, apiMod(id, 1000))
		cat.files[id] = []modio.File{apiFile(id*10, 1000, modio.PlatformWindows)}
	}
	s, _, ext := newTestSyncer(t, cat, Options{MaxParallel: gate, PageSize: 7})
	ext.delay = 20 * time.Millisecond

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(20), res.Changed)
	assert.Equal(t, int32(20), ext.calls.Load())
	assert.LessOrEqual(t, ext.maxInFlight.Load(), int32(gate))
	assert.Greater(t, ext.maxInFlight.Load(), int32(1), "mods should run in parallel")
}

func TestRunPaging(t *testing.T) {
	cat := &fakeCatalog{files: map[int64][]modio.File{}}
	for id := int64(1); id <= 5; id++ {
		cat.mods = append(cat.mods, apiMod(id, 1000))
	}

	s, _, _ := newTestSyncer(t, cat, Options{PageSize: 2})
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Seen)
	assert.Equal(t, 3, cat.pageCalls)

	cat.pageCalls = 0
	s, _, _ = newTestSyncer(t, cat, Options{PageSize: 2, OnePage: true})
	res, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Seen)
	assert.Equal(t, 1, cat.pageCalls)
}

func TestRunPageFailureAborts(t *testing.T) {
	cat := &fakeCatalog{pageErr: errors.New("catalog down")}
	s, _, _ := newTestSyncer(t, cat, Options{})

	_, err := s.Run(context.Background())
	assert.ErrorContains(t, err, "catalog down")
}

func TestRunReportsProgress(t *testing.T) {
	cat := &fakeCatalog{
		mods:  []modio.Mod{apiMod(1, 1000)},
		files: map[int64][]modio.File{1: {apiFile(10, 1000, modio.PlatformWindows)}},
	}
	s, _, _ := newTestSyncer(t, cat, Options{})

	ch := make(chan Event)
	var kinds []EventKind
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			kinds = append(kinds, ev.Kind)
		}
	}()

	_, err := s.WithProgress(ch).Run(context.Background())
	close(ch)
	<-done
	require.NoError(t, err)
	assert.Equal(t, []EventKind{EventPage, EventChanged, EventExtracted}, kinds)
}
