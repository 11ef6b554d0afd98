package gaps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vietmarket-api/pkg/vnsource"
)

const dayMs = 24 * 60 * 60 * 1000

func TestFindGapsNoGap(t *testing.T) {
	step := vnsource.StepMs["1h"]
	ts := []int64{0, step, 2 * step, 3 * step}
	assert.Empty(t, FindGaps(ts, step))
}

func TestFindGapsSingleHole(t *testing.T) {
	step := vnsource.StepMs["1h"]
	// Missing bars at 2*step, 3*step.
	ts := []int64{0, step, 4 * step}
	gapList := FindGaps(ts, step)
	require.Len(t, gapList, 1)
	assert.Equal(t, 2*step, gapList[0].StartMs)
	assert.Equal(t, 3*step, gapList[0].EndMs)
}

func TestFindGapsMultipleHoles(t *testing.T) {
	step := int64(1000)
	ts := []int64{0, 4000, 5000, 9000}
	gapList := FindGaps(ts, step)
	require.Len(t, gapList, 2)
	assert.Equal(t, Gap{1000, 3000}, gapList[0])
	assert.Equal(t, Gap{6000, 8000}, gapList[1])
}

func TestFindGapsToleratesSingleMissingBar(t *testing.T) {
	// One missing bar is exactly 2*step apart; the scanner only reacts
	// beyond 2x to avoid flagging ordinary session boundaries.
	step := int64(1000)
	ts := []int64{0, 2000}
	assert.Empty(t, FindGaps(ts, step))
}

func TestIsTradingDay(t *testing.T) {
	mon := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC).UnixMilli()
	sat := time.Date(2026, 3, 7, 3, 0, 0, 0, time.UTC).UnixMilli()
	tet := time.Date(2026, 2, 17, 3, 0, 0, 0, time.UTC).UnixMilli()

	assert.True(t, IsTradingDay(mon))
	assert.False(t, IsTradingDay(sat))
	assert.False(t, IsTradingDay(tet), "Tết holiday closes the exchange")
}

func TestInSessionIntraday(t *testing.T) {
	// 10:00 ICT == 03:00 UTC on a regular Monday.
	inSession := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC).UnixMilli()
	// 20:00 ICT == 13:00 UTC is after close.
	afterClose := time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC).UnixMilli()

	assert.True(t, InSession("15m", inSession))
	assert.True(t, InSession("1h", inSession))
	assert.False(t, InSession("15m", afterClose))
	assert.True(t, InSession("1d", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC).UnixMilli()))
}

func TestExpectedBarsDailySkipsWeekend(t *testing.T) {
	// Fri 2026-03-06 .. Mon 2026-03-09 (UTC midnights): Fri and Mon count,
	// Sat/Sun do not.
	start := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC).UnixMilli()
	end := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC).UnixMilli()

	n, err := ExpectedBars("1d", start, end)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestExpectedBarsIntradayWindow(t *testing.T) {
	// One full session of 1h bars on a trading day.
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC).UnixMilli()
	end := start + dayMs - 1

	n, err := ExpectedBars("1h", start, end)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
	assert.LessOrEqual(t, n, 7, "session is under seven hours")
}

func TestExpectedBarsBadTF(t *testing.T) {
	_, err := ExpectedBars("5m", 0, dayMs)
	assert.Error(t, err)
}

func TestExpectedBarsEmptyWindow(t *testing.T) {
	n, err := ExpectedBars("1d", dayMs, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}
