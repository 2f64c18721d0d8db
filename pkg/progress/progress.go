// Package progress renders aggregation progress on the terminal.
package progress

import (
	"io"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/floodqc/runqc/pkg/status"
)

// Bar is a single progress bar over the runs of a pass. It renders only
// when stderr is a terminal.
type Bar struct {
	out        io.Writer
	isTerminal bool
	label      string

	mu       sync.Mutex
	progress *mpb.Progress
	bar      *mpb.Bar
	last     time.Time

	failed atomic.Int64
}

// New creates a progress bar labelled with label.
func New(label string) *Bar {
	return newBar(label, os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))
}

func newBar(label string, out io.Writer, isTerminal bool) *Bar {
	return &Bar{
		out:        out,
		isTerminal: isTerminal,
		label:      label,
	}
}

// Start begins a bar over total runs.
func (b *Bar) Start(total int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	output := b.out
	if !b.isTerminal {
		output = io.Discard
	}

	b.failed.Store(0)
	b.last = time.Now()
	b.progress = mpb.New(
		mpb.WithOutput(output),
		mpb.WithRefreshRate(200*time.Millisecond),
		mpb.WithWidth(60),
	)
	b.bar = b.progress.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(b.label, decor.WCSyncSpaceR),
			decor.CountersNoUnit("%d / %d", decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncSpace),
			decor.Name("  "),
			decor.Any(func(decor.Statistics) string {
				if n := b.failed.Load(); n > 0 {
					return "unreadable: " + strconv.FormatInt(n, 10)
				}

				return ""
			}),
			decor.Name("  "),
			decor.EwmaETA(decor.ET_STYLE_GO, 30),
		),
	)
}

// Done advances the bar by one run.
func (b *Bar) Done(_ string, st status.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar == nil {
		return
	}

	if st == status.Unknown {
		b.failed.Add(1)
	}

	now := time.Now()
	b.bar.EwmaIncrement(now.Sub(b.last))
	b.last = now
}

// Finish completes the bar and waits for it to render.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar == nil {
		return
	}

	b.bar.SetTotal(-1, true)
	b.progress.Wait()

	b.bar = nil
	b.progress = nil
}
