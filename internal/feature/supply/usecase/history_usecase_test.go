package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	instrument "ashare_sync/internal/feature/instruments/domain/entity"
	"ashare_sync/internal/feature/supply/domain/entity"
	"ashare_sync/internal/shared/marketclock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeArchive serves reports from memory. Parse looks the report up by file base name.
type fakeArchive struct {
	entries  []entity.ArchiveEntry
	reports  map[string]entity.FinancialReport
	fetchErr map[string]error
	listErr  error
	fetched  []string
	parsed   int
	onFetch  func()
}

func (f *fakeArchive) ListReports(ctx context.Context) ([]entity.ArchiveEntry, error) {
	return f.entries, f.listErr
}

func (f *fakeArchive) Fetch(ctx context.Context, entry entity.ArchiveEntry, dst string) error {
	f.fetched = append(f.fetched, filepath.Base(dst))
	if f.onFetch != nil {
		f.onFetch()
	}
	return f.fetchErr[entry.Filename]
}

func (f *fakeArchive) Parse(path string) (entity.FinancialReport, error) {
	f.parsed++
	rep, ok := f.reports[filepath.Base(path)]
	if !ok {
		return entity.FinancialReport{}, entity.ErrInvalidReport
	}
	return rep, nil
}

type memChecksums struct {
	table   map[string]string
	saved   []entity.ArchiveEntry
	saves   int
	loadErr error
}

func (m *memChecksums) Load(ctx context.Context) (map[string]string, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := map[string]string{}
	for k, v := range m.table {
		out[k] = v
	}
	return out, nil
}

func (m *memChecksums) Save(ctx context.Context, entries []entity.ArchiveEntry) error {
	m.saves++
	m.saved = entries
	m.table = map[string]string{}
	for _, e := range entries {
		m.table[e.Filename] = e.Hash
	}
	return nil
}

// reportRow builds a 266-column row with the share columns set.
func reportRow(total, circulating float64) []float64 {
	row := make([]float64, entity.ColCirculatingShares)
	row[entity.ColTotalShares-1] = total
	row[entity.ColCirculatingShares-1] = circulating
	return row
}

func historyFixture() *fakeArchive {
	return &fakeArchive{
		entries: []entity.ArchiveEntry{
			{Filename: "gpcw20230930.zip", Hash: "h-q3", Filesize: 100},
			{Filename: "gpcw20231231.zip", Hash: "h-q4", Filesize: 200},
		},
		reports: map[string]entity.FinancialReport{
			"gpcw20230930.zip": {ReportDate: 20230930, Rows: map[string][]float64{
				"000001": reportRow(19405918198, 19405600653),
				"600000": reportRow(29352178302, 0),
			}},
			"gpcw20231231.zip": {ReportDate: 20231231, Rows: map[string][]float64{
				"000001": reportRow(19405918198, 19405600653),
			}},
		},
	}
}

func newTestHistory(archive ArchiveClient, sums ChecksumStore, store SupplyStore) *HistoryUsecase {
	u := NewHistoryUsecase(archive, sums, store, "/tmp/fin")
	u.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, marketclock.CST) }
	return u
}

func TestHistoryUsecase_SyncHistory_ImportsNewReports(t *testing.T) {
	archive := historyFixture()
	sums := &memChecksums{}
	store := newMemSupplyStore()

	report, err := newTestHistory(archive, sums, store).SyncHistory(context.Background(), []instrument.Instrument{pingan, pufa})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, 3, report.Written)
	assert.Equal(t, []string{"gpcw20230930.zip", "gpcw20231231.zip"}, archive.fetched)

	q3 := time.Date(2023, 9, 30, 15, 0, 0, 0, marketclock.CST)
	rec, ok := store.get(pufa, q3)
	require.True(t, ok)
	assert.Equal(t, int64(29352178302), rec.TotalSupply)
	assert.Equal(t, int64(29352178302), rec.CirculatingSupply, "circulating falls back to total")

	rec, ok = store.get(pingan, q3)
	require.True(t, ok)
	assert.Equal(t, int64(19405600653), rec.CirculatingSupply)

	assert.Equal(t, map[string]string{"gpcw20230930.zip": "h-q3", "gpcw20231231.zip": "h-q4"}, sums.table)
}

func TestHistoryUsecase_SyncHistory_UnchangedListDoesNothing(t *testing.T) {
	archive := historyFixture()
	sums := &memChecksums{table: map[string]string{"gpcw20230930.zip": "h-q3", "gpcw20231231.zip": "h-q4"}}
	store := newMemSupplyStore()

	report, err := newTestHistory(archive, sums, store).SyncHistory(context.Background(), []instrument.Instrument{pingan, pufa})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Unchanged)
	assert.Empty(t, archive.fetched)
	assert.Zero(t, archive.parsed)
	assert.Zero(t, store.writes)
	assert.Equal(t, 1, sums.saves)
}

func TestHistoryUsecase_SyncHistory_ChangedHashIsReimported(t *testing.T) {
	archive := historyFixture()
	sums := &memChecksums{table: map[string]string{"gpcw20230930.zip": "h-q3", "gpcw20231231.zip": "stale"}}

	report, err := newTestHistory(archive, sums, newMemSupplyStore()).SyncHistory(context.Background(), []instrument.Instrument{pingan})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, []string{"gpcw20231231.zip"}, archive.fetched)
	assert.Equal(t, "h-q4", sums.table["gpcw20231231.zip"])
}

func TestHistoryUsecase_SyncHistory_FailedEntryKeepsOldHash(t *testing.T) {
	archive := historyFixture()
	archive.fetchErr = map[string]error{
		"gpcw20230930.zip": errors.New("connection reset"),
		"gpcw20231231.zip": errors.New("connection reset"),
	}
	sums := &memChecksums{table: map[string]string{"gpcw20231231.zip": "old"}}
	store := newMemSupplyStore()

	report, err := newTestHistory(archive, sums, store).SyncHistory(context.Background(), []instrument.Instrument{pingan})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Failed)
	assert.ElementsMatch(t, []string{"gpcw20230930.zip", "gpcw20231231.zip"}, report.FailedFiles)
	assert.Zero(t, store.writes)
	assert.Equal(t, map[string]string{"gpcw20231231.zip": "old"}, sums.table, "failed entries are retried next run")
}

func TestHistoryUsecase_SyncHistory_ParseAndStoreFailures(t *testing.T) {
	archive := historyFixture()
	delete(archive.reports, "gpcw20230930.zip")
	store := newMemSupplyStore()
	sums := &memChecksums{}

	report, err := newTestHistory(archive, sums, store).SyncHistory(context.Background(), []instrument.Instrument{pingan})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, map[string]string{"gpcw20231231.zip": "h-q4"}, sums.table)

	store.err = errors.New("db down")
	sums = &memChecksums{}
	report, err = newTestHistory(historyFixture(), sums, store).SyncHistory(context.Background(), []instrument.Instrument{pingan})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	assert.Empty(t, sums.table)
}

func TestHistoryUsecase_SyncHistory_SkipsUndatedAndFuture(t *testing.T) {
	archive := historyFixture()
	archive.entries = append(archive.entries,
		entity.ArchiveEntry{Filename: "readme.zip", Hash: "x"},
		entity.ArchiveEntry{Filename: "gpcw20240331.zip", Hash: "future"},
	)
	sums := &memChecksums{table: map[string]string{"gpcw20240331.zip": "prior"}}

	report, err := newTestHistory(archive, sums, newMemSupplyStore()).SyncHistory(context.Background(), []instrument.Instrument{pingan})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Skipped)
	assert.NotContains(t, archive.fetched, "gpcw20240331.zip")
	assert.NotContains(t, archive.fetched, "readme.zip")
	assert.Equal(t, "prior", sums.table["gpcw20240331.zip"])
	_, ok := sums.table["readme.zip"]
	assert.False(t, ok)
}

func TestHistoryUsecase_SyncHistory_CancelStillSavesChecksums(t *testing.T) {
	archive := historyFixture()
	ctx, cancel := context.WithCancel(context.Background())
	archive.onFetch = func() {
		if len(archive.fetched) == 1 {
			cancel()
		}
	}
	sums := &memChecksums{}

	report, err := newTestHistory(archive, sums, newMemSupplyStore()).SyncHistory(ctx, []instrument.Instrument{pingan})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, 1, sums.saves)
	assert.Equal(t, map[string]string{"gpcw20230930.zip": "h-q3"}, sums.table)
}

func TestHistoryUsecase_SyncHistory_ListAndLoadErrors(t *testing.T) {
	archive := historyFixture()
	archive.listErr = errors.New("404")
	_, err := newTestHistory(archive, &memChecksums{}, newMemSupplyStore()).SyncHistory(context.Background(), nil)
	assert.ErrorContains(t, err, "list financial reports")

	sums := &memChecksums{loadErr: errors.New("corrupt")}
	_, err = newTestHistory(historyFixture(), sums, newMemSupplyStore()).SyncHistory(context.Background(), nil)
	assert.ErrorContains(t, err, "load checksums")
	assert.Zero(t, sums.saves)
}
