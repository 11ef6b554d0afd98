package candles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTFs(t *testing.T) {
	got, err := ParseTFs("1d, 1h,15m")
	require.NoError(t, err)
	assert.Equal(t, []string{"1d", "1h", "15m"}, got)

	got, err = ParseTFs("1D")
	require.NoError(t, err)
	assert.Equal(t, []string{"1d"}, got)

	_, err = ParseTFs("5m")
	assert.Error(t, err)

	_, err = ParseTFs(" , ")
	assert.Error(t, err)
}

func TestLeaseRenewFraction(t *testing.T) {
	assert.Equal(t, int64(100_000), leaseRenewFraction(300_000).Milliseconds())
}

func TestPerTickerBudgetPositive(t *testing.T) {
	w := &Worker{cfg: Config{TFs: []string{"1d"}, SleepMs: 150}}
	assert.Greater(t, w.perTickerBudget().Milliseconds(), int64(0))

	empty := &Worker{cfg: Config{}}
	assert.Greater(t, empty.perTickerBudget().Milliseconds(), int64(0))
}
