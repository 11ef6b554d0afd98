// Package gaps finds missing candle windows and sizes the repair work they
// imply.
package gaps

import (
	"fmt"

	"vietmarket-api/pkg/vnsource"
)

// Gap is one contiguous missing window, inclusive on both ends.
type Gap struct {
	StartMs int64
	EndMs   int64
}

// FindGaps scans ascending bar timestamps and reports every hole where the
// delta between neighbors exceeds twice the grid step. Weekend-sized holes in
// daily data are expected and filtered out by expected-bar counting, not
// here.
func FindGaps(ts []int64, stepMs int64) []Gap {
	if stepMs <= 0 || len(ts) < 2 {
		return nil
	}
	var out []Gap
	for i := 1; i < len(ts); i++ {
		prev, cur := ts[i-1], ts[i]
		if cur-prev > 2*stepMs {
			out = append(out, Gap{StartMs: prev + stepMs, EndMs: cur - stepMs})
		}
	}
	return out
}

// ExpectedBars counts grid slots inside [startMs, endMs] the trading
// calendar says should hold a bar.
func ExpectedBars(tf string, startMs, endMs int64) (int, error) {
	step, ok := vnsource.StepMs[tf]
	if !ok {
		return 0, fmt.Errorf("gaps: unsupported tf %q", tf)
	}
	if endMs < startMs {
		return 0, nil
	}
	start := vnsource.AlignToGrid(startMs, step)
	if start < startMs {
		start += step
	}
	count := 0
	for ts := start; ts <= endMs; ts += step {
		if InSession(tf, ts) {
			count++
		}
	}
	return count, nil
}

// Note renders the enqueue annotation for a detected gap.
func Note(prevTs, nextTs int64, bars int) string {
	return fmt.Sprintf("gap %d->%d (bars=%d)", prevTs, nextTs, bars)
}
