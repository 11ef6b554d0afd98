// Package freshness classifies how stale a timestamped surface is.
package freshness

import "time"

// Reason explains a freshness verdict.
const (
	ReasonFresh            = "fresh"
	ReasonStale            = "stale"
	ReasonMissingTimestamp = "missing_timestamp"
	ReasonClockSkew        = "clock_skew"
)

// Result is the verdict for a single surface.
type Result struct {
	OK     bool          `json:"ok"`
	Reason string        `json:"reason"`
	Age    time.Duration `json:"-"`
	AgeMs  int64         `json:"age_ms"`
}

// Evaluate compares now against the last-observed timestamp. A nil last means
// the surface has never reported. A last in the future is treated as clock
// skew and passes, so a replica with a slightly fast writer clock does not
// flap health checks.
func Evaluate(now time.Time, last *time.Time, maxAge time.Duration) Result {
	if last == nil || last.IsZero() {
		return Result{OK: false, Reason: ReasonMissingTimestamp}
	}
	if now.Before(*last) {
		return Result{OK: true, Reason: ReasonClockSkew}
	}
	age := now.Sub(*last)
	res := Result{Age: age, AgeMs: age.Milliseconds()}
	if age > maxAge {
		res.OK = false
		res.Reason = ReasonStale
		return res
	}
	res.OK = true
	res.Reason = ReasonFresh
	return res
}
