// Package cli holds the bootstrapping shared by every worker entrypoint:
// env + store wiring, source-client construction, structured summaries, and
// exit codes.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"vietmarket-api/internal/store"
	"vietmarket-api/pkg/confkit"
	"vietmarket-api/pkg/journal"
	"vietmarket-api/pkg/source"
	"vietmarket-api/pkg/vnsource"
)

// Worker exit codes. 2 and 3 are reserved for health-check variants.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitTimeout = 124
)

// Connect opens the warehouse from PG_URL (after dotenv bootstrap). Schema
// migrations run via `derived -ensure-schema`, not on every worker start.
func Connect() (*store.Store, error) {
	confkit.LoadDotenvOnce()
	dsn := os.Getenv("PG_URL")
	if dsn == "" {
		return nil, fmt.Errorf("missing PG_URL")
	}
	return store.New(sqlx.NewSqlConn("pgx", dsn)), nil
}

// LoadSources loads the sources config from a path, or env-driven defaults
// when path is empty.
func LoadSources(path string) (*vnsource.Config, error) {
	confkit.LoadDotenvOnce()
	if path == "" {
		return vnsource.Default(), nil
	}
	return vnsource.LoadConfig(path)
}

// SourceClient builds the shared HTTP client from a sources config.
func SourceClient(cfg *vnsource.Config) *source.Client {
	return source.New(source.WithMaxAttempts(cfg.MaxAttempts))
}

// PrintSummary emits the run summary as one JSON line on stdout; cron logs
// stay greppable.
func PrintSummary(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "summary marshal: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

// Fail prints the error and returns the failure exit code.
func Fail(err error) int {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return ExitFailure
}

// WriteJournal best-effort records the run; journal failures never fail the
// run itself.
func WriteJournal(dir string, rec *journal.RunRecord) {
	if dir == "" {
		return
	}
	if _, err := journal.NewWriter(dir).WriteRun(rec); err != nil {
		fmt.Fprintf(os.Stderr, "journal: %v\n", err)
	}
}

// ParseDateMs parses YYYY-MM-DD into unix ms at UTC midnight.
func ParseDateMs(s string) (int64, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return 0, fmt.Errorf("bad date %q (want YYYY-MM-DD): %w", s, err)
	}
	return t.UTC().UnixMilli(), nil
}
