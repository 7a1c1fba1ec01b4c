package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	instrument "ashare_sync/internal/feature/instruments/domain/entity"
	"ashare_sync/internal/feature/supply/domain/entity"
	"ashare_sync/internal/shared/progress"
)

// ArchiveClient talks to the TDX financial archive.
type ArchiveClient interface {
	ListReports(ctx context.Context) ([]entity.ArchiveEntry, error)
	// Fetch downloads entry into dst, replacing any existing file.
	Fetch(ctx context.Context, entry entity.ArchiveEntry, dst string) error
	Parse(path string) (entity.FinancialReport, error)
}

// ChecksumStore keeps the hash of every archive file already imported.
type ChecksumStore interface {
	// Load returns filename -> hash. A missing table is an empty table.
	Load(ctx context.Context) (map[string]string, error)
	// Save overwrites the table.
	Save(ctx context.Context, entries []entity.ArchiveEntry) error
}

// HistoryReport summarizes a SyncHistory run.
type HistoryReport struct {
	Entries     int
	Skipped     int // undated or in the future
	Unchanged   int
	Imported    int
	Failed      int
	Written     int
	FailedFiles []string
}

// HistoryUsecase imports quarterly share-capital figures from the financial archive.
type HistoryUsecase struct {
	archive     ArchiveClient
	checksums   ChecksumStore
	store       SupplyStore
	dir         string
	recorder    Recorder
	progressOut io.Writer
	now         func() time.Time
}

// NewHistoryUsecase creates a HistoryUsecase that downloads archive files into dir.
func NewHistoryUsecase(archive ArchiveClient, checksums ChecksumStore, store SupplyStore, dir string) *HistoryUsecase {
	return &HistoryUsecase{
		archive:   archive,
		checksums: checksums,
		store:     store,
		dir:       dir,
		recorder:  nopRecorder{},
		now:       time.Now,
	}
}

// WithRecorder sets the metrics sink.
func (u *HistoryUsecase) WithRecorder(r Recorder) *HistoryUsecase {
	if r != nil {
		u.recorder = r
	}
	return u
}

// WithProgress renders a progress bar on w.
func (u *HistoryUsecase) WithProgress(w io.Writer) *HistoryUsecase {
	u.progressOut = w
	return u
}

// SyncHistory imports every new or changed report of the archive for the given universe.
//
// A file whose recorded hash matches the list is not downloaded again. A file that fails
// to download, decode or store keeps its previous hash so the next run retries it. The
// checksum table is saved at the end even when ctx is cancelled midway.
func (u *HistoryUsecase) SyncHistory(ctx context.Context, instruments []instrument.Instrument) (report HistoryReport, err error) {
	entries, err := u.archive.ListReports(ctx)
	if err != nil {
		return report, fmt.Errorf("list financial reports: %w", err)
	}
	known, err := u.checksums.Load(ctx)
	if err != nil {
		return report, fmt.Errorf("load checksums: %w", err)
	}
	report.Entries = len(entries)

	// next starts as the previous table and only advances for successful imports.
	next := make(map[string]entity.ArchiveEntry, len(entries))
	for _, e := range entries {
		if h, ok := known[e.Filename]; ok {
			next[e.Filename] = entity.ArchiveEntry{Filename: e.Filename, Hash: h, Filesize: e.Filesize}
		}
	}
	defer func() {
		saved := make([]entity.ArchiveEntry, 0, len(next))
		for _, e := range entries {
			if v, ok := next[e.Filename]; ok {
				saved = append(saved, v)
			}
		}
		if serr := u.checksums.Save(context.WithoutCancel(ctx), saved); serr != nil {
			err = errors.Join(err, fmt.Errorf("save checksums: %w", serr))
		}
	}()

	bar := progress.New(u.progressOut, len(entries), "sync supply history")
	defer func() { _ = bar.Finish() }()

	now := u.now()
	for _, e := range entries {
		if cerr := ctx.Err(); cerr != nil {
			return report, cerr
		}
		_ = bar.Add(1)

		date, ok := e.ReportDate()
		if !ok || date.After(now) {
			report.Skipped++
			continue
		}
		if h, ok := known[e.Filename]; ok && h == e.Hash {
			report.Unchanged++
			continue
		}

		n, ierr := u.importEntry(ctx, e, date, instruments)
		if ierr != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failed++
			report.FailedFiles = append(report.FailedFiles, e.Filename)
			u.recorder.RecordInstrument("history", "failed")
			zap.L().Error("failed to import financial report", zap.String("file", e.Filename), zap.Error(ierr))
			continue
		}
		next[e.Filename] = e
		report.Imported++
		report.Written += n
		u.recorder.RecordInstrument("history", "synced")
		u.recorder.AddRows("history", n)
	}

	zap.L().Info("supply history sync finished",
		zap.Int("entries", report.Entries),
		zap.Int("imported", report.Imported),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("written", report.Written),
	)
	return report, nil
}

func (u *HistoryUsecase) importEntry(ctx context.Context, e entity.ArchiveEntry, date time.Time, instruments []instrument.Instrument) (int, error) {
	dst := filepath.Join(u.dir, e.Filename)
	if err := u.archive.Fetch(ctx, e, dst); err != nil {
		return 0, fmt.Errorf("fetch %s: %w", e.Filename, err)
	}
	rep, err := u.archive.Parse(dst)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", e.Filename, err)
	}

	records := recordsFromReport(rep, date, instruments)
	if len(records) == 0 {
		return 0, nil
	}
	if err := u.store.WriteBatch(ctx, records); err != nil {
		return 0, fmt.Errorf("write supply history %s: %w", e.Filename, err)
	}
	return len(records), nil
}

func recordsFromReport(rep entity.FinancialReport, date time.Time, instruments []instrument.Instrument) []entity.SupplyRecord {
	var out []entity.SupplyRecord
	for _, inst := range instruments {
		total, ok := rep.Column(inst.Code, entity.ColTotalShares)
		if !ok {
			continue
		}
		circ, _ := rep.Column(inst.Code, entity.ColCirculatingShares)
		out = append(out, entity.NewSupplyRecord(inst, int64(math.Round(total)), int64(math.Round(circ)), date))
	}
	return out
}
