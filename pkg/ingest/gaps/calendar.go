package gaps

import "time"

// Vietnam has no daylight saving; the exchange clock is fixed UTC+7.
var ictZone = time.FixedZone("ICT", 7*60*60)

// Static public-holiday table (ICT dates). Lunar holidays (Tết, Hùng Kings)
// move year to year, so the table is maintained explicitly rather than
// computed. This table is the platform's only trading-calendar source.
var holidays = map[string]struct{}{
	// 2024
	"2024-01-01": {},
	"2024-02-08": {}, "2024-02-09": {}, "2024-02-12": {}, "2024-02-13": {}, "2024-02-14": {},
	"2024-04-18": {},
	"2024-04-30": {}, "2024-05-01": {},
	"2024-09-02": {}, "2024-09-03": {},
	// 2025
	"2025-01-01": {},
	"2025-01-27": {}, "2025-01-28": {}, "2025-01-29": {}, "2025-01-30": {}, "2025-01-31": {},
	"2025-04-07": {},
	"2025-04-30": {}, "2025-05-01": {},
	"2025-09-01": {}, "2025-09-02": {},
	// 2026
	"2026-01-01": {},
	"2026-02-16": {}, "2026-02-17": {}, "2026-02-18": {}, "2026-02-19": {}, "2026-02-20": {},
	"2026-04-26": {},
	"2026-04-30": {}, "2026-05-01": {},
	"2026-09-02": {},
}

// HOSE continuous-session bounds in ICT minutes-from-midnight.
const (
	sessionOpenMinutes  = 9*60 + 15  // 09:15
	sessionCloseMinutes = 14*60 + 45 // 14:45
)

// IsTradingDay reports whether the exchange is open on the ICT day holding
// tsMs.
func IsTradingDay(tsMs int64) bool {
	t := time.UnixMilli(tsMs).In(ictZone)
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := holidays[t.Format("2006-01-02")]
	return !holiday
}

// InSession reports whether an intraday bar timestamp falls inside the
// trading session window: bars stamped from 15 minutes before the open
// (09:00) through the close (14:45) count. Daily bars only need a trading day.
func InSession(tf string, tsMs int64) bool {
	if !IsTradingDay(tsMs) {
		return false
	}
	if tf == "1d" {
		return true
	}
	t := time.UnixMilli(tsMs).In(ictZone)
	minutes := t.Hour()*60 + t.Minute()
	return minutes >= sessionOpenMinutes-15 && minutes <= sessionCloseMinutes
}
