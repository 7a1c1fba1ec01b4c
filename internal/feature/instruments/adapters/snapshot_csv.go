package adapters

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"ashare_sync/internal/feature/instruments/domain/entity"
	"ashare_sync/internal/feature/instruments/usecase"
)

var snapshotHeader = []string{"code", "volunit", "decimal_point", "name", "pre_close", "exchange", "sec"}

// SnapshotCSV stores the instrument universe as a CSV file.
type SnapshotCSV struct {
	path string
}

var _ usecase.SnapshotStore = (*SnapshotCSV)(nil)

// NewSnapshotCSV returns a snapshot store writing to path.
func NewSnapshotCSV(path string) *SnapshotCSV {
	return &SnapshotCSV{path: path}
}

// Save overwrites the snapshot file. The file is written next to the target and renamed into place.
func (s *SnapshotCSV) Save(ctx context.Context, securities []entity.Security) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := writeSnapshot(tmp, securities); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func writeSnapshot(w io.Writer, securities []entity.Security) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(snapshotHeader); err != nil {
		return err
	}
	for _, sec := range securities {
		if err := cw.Write([]string{
			sec.Code,
			strconv.Itoa(sec.VolUnit),
			strconv.Itoa(sec.DecimalPoint),
			sec.Name,
			strconv.FormatFloat(sec.PreClose, 'f', -1, 64),
			sec.Market.String(),
			sec.Category,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Load reads the snapshot back. Codes stay strings so leading zeros survive.
func (s *SnapshotCSV) Load(ctx context.Context) ([]entity.Security, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", s.path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[name] = i
	}
	for _, name := range snapshotHeader {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("snapshot %s: missing column %q", s.path, name)
		}
	}

	out := make([]entity.Security, 0, len(records)-1)
	for line, rec := range records[1:] {
		market, err := entity.ParseMarket(rec[col["exchange"]])
		if err != nil {
			return nil, fmt.Errorf("snapshot line %d: %w", line+2, err)
		}
		volUnit, _ := strconv.Atoi(rec[col["volunit"]])
		decimalPoint, _ := strconv.Atoi(rec[col["decimal_point"]])
		preClose, _ := strconv.ParseFloat(rec[col["pre_close"]], 64)
		out = append(out, entity.Security{
			Code:         rec[col["code"]],
			VolUnit:      volUnit,
			DecimalPoint: decimalPoint,
			Name:         rec[col["name"]],
			PreClose:     preClose,
			Market:       market,
			Category:     rec[col["sec"]],
		})
	}
	return out, nil
}
