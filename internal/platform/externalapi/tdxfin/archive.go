// Package tdxfin reads the TDX historical financial archive: the gpcw.txt file list,
// the zipped quarterly report files and their binary .dat payload.
package tdxfin

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"ashare_sync/internal/feature/supply/domain/entity"
	"ashare_sync/internal/feature/supply/usecase"
)

const (
	// DefaultBaseURL is the public archive location.
	DefaultBaseURL = "http://down.tdx.com.cn:8001/fin/"
	listFile       = "gpcw.txt"

	headerSize    = 20
	indexItemSize = 11
)

// ArchiveClient downloads and decodes archive files.
type ArchiveClient struct {
	baseURL string
	client  *http.Client
}

// ArchiveClientがusecase.ArchiveClientを実装していることをコンパイル時に検証します。
var _ usecase.ArchiveClient = (*ArchiveClient)(nil)

// NewArchiveClient は指定されたベースURLとHTTPクライアントでArchiveClientを生成します。
// ベースURLが空の場合は DefaultBaseURL を使用します。
func NewArchiveClient(baseURL string, client *http.Client) *ArchiveClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &ArchiveClient{baseURL: baseURL, client: client}
}

// ListReports downloads gpcw.txt. Each non-empty line is "filename,hash,filesize".
func (a *ArchiveClient) ListReports(ctx context.Context) ([]entity.ArchiveEntry, error) {
	body, err := a.get(ctx, listFile)
	if err != nil {
		return nil, err
	}
	defer closeBody(body)

	var out []entity.ArchiveEntry
	sc := bufio.NewScanner(body)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		fields := strings.Split(text, ",")
		if len(fields) < 3 {
			return nil, fmt.Errorf("%s line %d: expected 3 fields, got %d", listFile, line, len(fields))
		}
		size, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: filesize: %w", listFile, line, err)
		}
		out = append(out, entity.ArchiveEntry{
			Filename: strings.TrimSpace(fields[0]),
			Hash:     strings.TrimSpace(fields[1]),
			Filesize: size,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", listFile, err)
	}
	return out, nil
}

// Fetch downloads one archive file to dst. The file appears at dst only once fully written.
func (a *ArchiveClient) Fetch(ctx context.Context, e entity.ArchiveEntry, dst string) error {
	body, err := a.get(ctx, e.Filename)
	if err != nil {
		return err
	}
	defer closeBody(body)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.part")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("download %s: %w", e.Filename, err)
	}
	if e.Filesize > 0 && n != e.Filesize {
		return fmt.Errorf("download %s: got %d bytes, expected %d", e.Filename, n, e.Filesize)
	}
	return os.Rename(tmp.Name(), dst)
}

// Parse opens a downloaded zip and decodes the .dat report inside it.
func (a *ArchiveClient) Parse(path string) (entity.FinancialReport, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return entity.FinancialReport{}, fmt.Errorf("%w: %s: %v", entity.ErrInvalidReport, filepath.Base(path), err)
	}
	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		if !strings.EqualFold(filepath.Ext(f.Name), ".dat") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return entity.FinancialReport{}, err
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return entity.FinancialReport{}, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return DecodeReport(data)
	}
	return entity.FinancialReport{}, fmt.Errorf("%w: no .dat file in %s", entity.ErrInvalidReport, filepath.Base(path))
}

// DecodeReport decodes a .dat payload.
//
// Layout (little endian):
//   - header, 20 bytes: int16, uint32 report date, uint16 item count, 3 x uint32 (the second is the row size in bytes)
//   - count index items, 11 bytes each: 6-byte code, 1 byte, uint32 row offset
//   - rows of float32 values at the given offsets
func DecodeReport(data []byte) (entity.FinancialReport, error) {
	if len(data) < headerSize {
		return entity.FinancialReport{}, fmt.Errorf("%w: %d bytes is shorter than the header", entity.ErrInvalidReport, len(data))
	}
	reportDate := binary.LittleEndian.Uint32(data[2:6])
	count := int(binary.LittleEndian.Uint16(data[6:8]))
	rowSize := int(binary.LittleEndian.Uint32(data[12:16]))
	if rowSize%4 != 0 {
		return entity.FinancialReport{}, fmt.Errorf("%w: row size %d is not a multiple of 4", entity.ErrInvalidReport, rowSize)
	}
	if headerSize+count*indexItemSize > len(data) {
		return entity.FinancialReport{}, fmt.Errorf("%w: index of %d items exceeds %d bytes", entity.ErrInvalidReport, count, len(data))
	}

	rows := make(map[string][]float64, count)
	cols := rowSize / 4
	for i := 0; i < count; i++ {
		item := data[headerSize+i*indexItemSize : headerSize+(i+1)*indexItemSize]
		code := string(bytes.TrimRight(item[:6], "\x00"))
		offset := int(binary.LittleEndian.Uint32(item[7:11]))
		if offset < 0 || offset+rowSize > len(data) {
			return entity.FinancialReport{}, fmt.Errorf("%w: row of %s at %d exceeds %d bytes", entity.ErrInvalidReport, code, offset, len(data))
		}
		row := make([]float64, cols)
		for c := 0; c < cols; c++ {
			bits := binary.LittleEndian.Uint32(data[offset+c*4:])
			row[c] = float64(math.Float32frombits(bits))
		}
		rows[code] = row
	}
	return entity.FinancialReport{ReportDate: int(reportDate), Rows: rows}, nil
}

func (a *ArchiveClient) get(ctx context.Context, name string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+name, nil)
	if err != nil {
		return nil, err
	}
	res, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 400 {
		closeBody(res.Body)
		if res.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", entity.ErrReportNotFound, name)
		}
		return nil, fmt.Errorf("archive http %d: %s", res.StatusCode, name)
	}
	return res.Body, nil
}

func closeBody(body io.Closer) {
	if err := body.Close(); err != nil {
		zap.L().Warn("failed to close response body", zap.Error(err))
	}
}
