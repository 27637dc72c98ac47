// Package progress wraps terminal progress display for long scans.
package progress

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

const updateInterval = 100 * time.Millisecond

// Spinner wraps progressbar in spinner mode with enabled/disabled
// handling. All methods are no-ops when disabled, so callers never need
// to branch on whether progress output is wanted.
type Spinner struct {
	bar *progressbar.ProgressBar
}

// New creates a Spinner. If enabled=false, every method is a no-op.
func New(enabled bool) *Spinner {
	if !enabled {
		return &Spinner{}
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(updateInterval),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(false),
	)
	return &Spinner{bar: bar}
}

// Describe updates the spinner line from the given stats.
func (s *Spinner) Describe(st fmt.Stringer) {
	if s.bar != nil {
		s.bar.Describe(st.String())
	}
}

// Finish clears the spinner and prints a final summary line.
func (s *Spinner) Finish(st fmt.Stringer) {
	if s.bar != nil {
		_ = s.bar.Finish()
		fmt.Fprintln(os.Stderr, "✔ "+st.String())
	}
}
