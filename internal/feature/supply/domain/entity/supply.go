// Package entity defines the share-supply records and the financial archive types.
package entity

import (
	"errors"
	"regexp"
	"time"

	instrument "ashare_sync/internal/feature/instruments/domain/entity"
	"ashare_sync/internal/shared/marketclock"
)

var (
	// ErrReportNotFound is returned when an archive file or the report inside it is missing.
	ErrReportNotFound = errors.New("financial report not found")
	// ErrInvalidReport is returned when a report file cannot be decoded.
	ErrInvalidReport = errors.New("invalid financial report")
)

// 1-based column numbers of the TDX financial report.
const (
	ColTotalShares       = 238
	ColCirculatingShares = 266
)

// SupplyRecord is the share supply of an instrument as of a session close.
type SupplyRecord struct {
	Instrument        instrument.Instrument
	TotalSupply       int64
	CirculatingSupply int64
	AsOf              time.Time
}

// NewSupplyRecord builds a record. A circulating figure of zero next to a non-zero total
// means the source does not split the two, so circulating takes the total.
func NewSupplyRecord(inst instrument.Instrument, total, circulating int64, asOf time.Time) SupplyRecord {
	if circulating == 0 && total != 0 {
		circulating = total
	}
	return SupplyRecord{
		Instrument:        inst,
		TotalSupply:       total,
		CirculatingSupply: circulating,
		AsOf:              asOf,
	}
}

// FinanceInfo is the current share capital reported by the quote server.
type FinanceInfo struct {
	TotalShares       int64
	CirculatingShares int64
}

var reportDatePattern = regexp.MustCompile(`gpcw(\d{8})`)

// ArchiveEntry is one line of the financial archive's file list.
type ArchiveEntry struct {
	Filename string
	Hash     string
	Filesize int64
}

// ReportDate extracts the report date from names like "gpcw20231231.zip" and returns it
// at the session close. ok is false when the name carries no valid date.
func (e ArchiveEntry) ReportDate() (t time.Time, ok bool) {
	m := reportDatePattern.FindStringSubmatch(e.Filename)
	if m == nil {
		return time.Time{}, false
	}
	d, err := time.ParseInLocation("20060102", m[1], marketclock.CST)
	if err != nil {
		return time.Time{}, false
	}
	return marketclock.AtSessionClose(d), true
}

// FinancialReport is one decoded quarterly report. Rows are keyed by 6-digit code.
type FinancialReport struct {
	ReportDate int
	Rows       map[string][]float64
}

// Column returns column n (1-based) of the row for code.
func (r FinancialReport) Column(code string, n int) (float64, bool) {
	row, ok := r.Rows[code]
	if !ok || n < 1 || n > len(row) {
		return 0, false
	}
	return row[n-1], true
}
