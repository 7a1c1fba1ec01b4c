package adapters

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"ashare_sync/internal/feature/supply/domain/entity"
	"ashare_sync/internal/feature/supply/usecase"
)

var checksumHeader = []string{"filename", "hash", "filesize"}

// ChecksumCSV keeps the imported archive files and their hashes in a CSV file.
type ChecksumCSV struct {
	path string
}

var _ usecase.ChecksumStore = (*ChecksumCSV)(nil)

func NewChecksumCSV(path string) *ChecksumCSV {
	return &ChecksumCSV{path: path}
}

// Load returns filename -> hash. A missing file yields an empty table.
func (s *ChecksumCSV) Load(ctx context.Context) (map[string]string, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read checksums %s: %w", s.path, err)
	}

	out := make(map[string]string, len(records))
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && rec[0] == checksumHeader[0] {
			continue
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("checksums %s line %d: want at least 2 fields, got %d", s.path, i+1, len(rec))
		}
		out[rec[0]] = rec[1]
	}
	return out, nil
}

// Save overwrites the table.
func (s *ChecksumCSV) Save(ctx context.Context, entries []entity.ArchiveEntry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create checksum dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create checksum temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	cw := csv.NewWriter(tmp)
	_ = cw.Write(checksumHeader)
	for _, e := range entries {
		_ = cw.Write([]string{e.Filename, e.Hash, strconv.FormatInt(e.Filesize, 10)})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write checksums: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
