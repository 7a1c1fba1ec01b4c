// Package progress builds the terminal progress bars shown by long batch jobs.
package progress

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Bar is the subset of a progress bar the batch jobs drive.
type Bar interface {
	Add(n int) error
	Finish() error
}

// New returns a bar of total steps labelled desc, written to w.
// A nil writer yields a bar that renders nothing.
func New(w io.Writer, total int, desc string) Bar {
	if w == nil {
		w = io.Discard
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100 * time.Millisecond),
		progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(w, "\n") }),
	)
}
