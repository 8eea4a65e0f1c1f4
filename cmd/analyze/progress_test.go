package main

import (
	"io"
	"testing"

	"github.com/Luisfrighetto/Visao/internal/pipeline"
)

func TestBarObserverWaitsForTotal(t *testing.T) {
	o := newBarObserver(io.Discard)

	o.OnProgress(pipeline.Event{State: pipeline.StateProbing})
	if o.current() != -1 {
		t.Fatal("bar created before the total was known")
	}

	o.OnProgress(pipeline.Event{State: pipeline.StateRunning, Frame: 20, Total: 100})
	if got := o.current(); got != 20 {
		t.Errorf("current = %d, want 20", got)
	}

	// a scan may find more frames than probed; the bar never overflows
	o.OnProgress(pipeline.Event{State: pipeline.StateRunning, Frame: 130, Total: 100})
	if got := o.current(); got != 100 {
		t.Errorf("current = %d, want 100", got)
	}

	o.OnProgress(pipeline.Event{State: pipeline.StateCompleted, Frame: 100, Total: 100, Percent: 100})
}
