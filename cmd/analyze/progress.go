package main

import (
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/Luisfrighetto/Visao/internal/pipeline"
)

// barObserver renders run progress on a terminal bar. The bar is created on
// the first event that knows the frame total.
type barObserver struct {
	mu  sync.Mutex
	out io.Writer
	bar *progressbar.ProgressBar
}

func newBarObserver(out io.Writer) *barObserver {
	return &barObserver{out: out}
}

func (o *barObserver) OnProgress(e pipeline.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.bar == nil {
		if e.Total <= 0 {
			return
		}
		o.bar = progressbar.NewOptions(e.Total,
			progressbar.OptionSetWriter(o.out),
			progressbar.OptionSetDescription("Analyzing"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "█",
				SaucerHead:    "█",
				SaucerPadding: "░",
				BarStart:      "▐",
				BarEnd:        "▌",
			}),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("frames"),
			progressbar.OptionSetWidth(50),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	switch e.State {
	case pipeline.StateCompleted:
		o.bar.Finish()
	case pipeline.StateFailed:
		o.bar.Exit()
	default:
		o.bar.Set(min(e.Frame, e.Total))
	}
}

// current is the frame the bar shows, -1 before the bar exists
func (o *barObserver) current() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.bar == nil {
		return -1
	}
	return int(o.bar.State().CurrentNum)
}
