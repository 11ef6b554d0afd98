package store

import (
	"context"
	"fmt"
	"time"
)

// Derived-surface rebuild statements. Each is a full refresh (upsert over the
// whole source), so reruns converge to the same state.

const sqlFinancials = `
INSERT INTO financials (ticker, period, statement, period_date, metric, value, source, updated_at)
SELECT ticker, period, statement, period_date, metric, value, 'fi_latest', now()
FROM fi_latest
ON CONFLICT (ticker, period, statement, metric) DO UPDATE SET
  period_date = EXCLUDED.period_date,
  value = EXCLUDED.value,
  source = EXCLUDED.source,
  updated_at = now()`

const sqlFundamentals = `
WITH ranked AS (
  SELECT ticker, metric, value, period, period_date,
         row_number() OVER (
           PARTITION BY ticker, metric
           ORDER BY period_date DESC NULLS LAST,
                    CASE WHEN period = 'Q' THEN 1 WHEN period = 'Y' THEN 2 ELSE 3 END
         ) AS rn
  FROM financials
)
INSERT INTO fundamentals (ticker, metric, value, period, period_date, source, updated_at)
SELECT ticker, metric, value, period, period_date, 'financials', now()
FROM ranked WHERE rn = 1
ON CONFLICT (ticker, metric) DO UPDATE SET
  value = EXCLUDED.value,
  period = EXCLUDED.period,
  period_date = EXCLUDED.period_date,
  source = EXCLUDED.source,
  updated_at = now()`

const sqlTechnical = `
WITH base AS (
  SELECT ticker, tf, ts, c,
         row_number() OVER (PARTITION BY ticker, tf ORDER BY ts DESC) AS rn_desc,
         avg(c) OVER (PARTITION BY ticker, tf ORDER BY ts ROWS BETWEEN 19 PRECEDING AND CURRENT ROW) AS sma20,
         avg(c) OVER (PARTITION BY ticker, tf ORDER BY ts ROWS BETWEEN 49 PRECEDING AND CURRENT ROW) AS sma50
  FROM candles
  WHERE tf IN ('15m','1h','1d')
), latest AS (
  SELECT ticker, tf, ts AS asof_ts, c AS close, sma20, sma50
  FROM base
  WHERE rn_desc = 1
)
INSERT INTO technical_indicators (ticker, tf, asof_ts, close, sma20, sma50, ema20, updated_at)
SELECT ticker, tf, asof_ts, close, sma20, sma50,
       close * (2.0/21.0) + COALESCE(sma20, close) * (1 - 2.0/21.0),
       now()
FROM latest
ON CONFLICT (ticker, tf) DO UPDATE SET
  asof_ts = EXCLUDED.asof_ts,
  close = EXCLUDED.close,
  sma20 = EXCLUDED.sma20,
  sma50 = EXCLUDED.sma50,
  ema20 = EXCLUDED.ema20,
  updated_at = now()`

const sqlIndicators = `
INSERT INTO indicators (ticker, tf, indicator, value, asof_ts, updated_at)
SELECT ticker, tf, v.indicator, v.value, asof_ts, now()
FROM technical_indicators
CROSS JOIN LATERAL (
  VALUES ('close', close), ('sma20', sma20), ('sma50', sma50), ('ema20', ema20)
) v(indicator, value)
ON CONFLICT (ticker, tf, indicator) DO UPDATE SET
  value = EXCLUDED.value,
  asof_ts = EXCLUDED.asof_ts,
  updated_at = now()`

const sqlMarketStats = `
WITH c AS (
  SELECT count(*)::double precision AS total_rows,
         count(distinct ticker)::double precision AS total_tickers,
         max(ts) AS max_ts,
         max(ingested_at) AS max_ingested_at
  FROM candles
), ca AS (
  SELECT count(*)::double precision AS ca_rows,
         count(*) FILTER (WHERE ex_date IS NOT NULL)::double precision AS ca_ex,
         count(*) FILTER (WHERE record_date IS NOT NULL)::double precision AS ca_record,
         count(*) FILTER (WHERE pay_date IS NOT NULL)::double precision AS ca_pay
  FROM corporate_actions
), eligible AS (
  SELECT ticker FROM symbols
  WHERE coalesce(active, true) = true
    AND ticker ~ '^[A-Z0-9]{3,4}$'
    AND ticker NOT IN ('VNINDEX','HNXINDEX','UPCOMINDEX')
), cov AS (
  SELECT
    (SELECT count(*)::double precision FROM eligible) AS eligible_total,
    (SELECT count(distinct c2.ticker)::double precision FROM candles c2 JOIN eligible e ON e.ticker = c2.ticker) AS eligible_with_candles,
    (SELECT count(*)::double precision FROM eligible e
       LEFT JOIN (SELECT distinct ticker FROM candles) c3 ON c3.ticker = e.ticker
       WHERE c3.ticker IS NULL) AS eligible_missing
), tf AS (
  SELECT
    count(distinct ticker) FILTER (WHERE tf='1d')::double precision AS tf_1d_tickers,
    count(distinct ticker) FILTER (WHERE tf='1h')::double precision AS tf_1h_tickers,
    count(distinct ticker) FILTER (WHERE tf='15m')::double precision AS tf_15m_tickers,
    count(*) FILTER (WHERE tf='1d')::double precision AS tf_1d_rows,
    count(*) FILTER (WHERE tf='1h')::double precision AS tf_1h_rows,
    count(*) FILTER (WHERE tf='15m')::double precision AS tf_15m_rows
  FROM candles
), diag AS (
  SELECT
    CASE
      WHEN c.max_ts IS NULL THEN 'unknown'
      WHEN (extract(epoch from now())*1000 - c.max_ts) <= 7200000 THEN 'fresh'
      WHEN c.max_ingested_at >= (now() - interval '30 minutes') THEN 'market_closed_or_source_limited'
      ELSE 'pipeline_stalled'
    END AS frontier_status,
    GREATEST(0, (extract(epoch from now())*1000 - c.max_ts))::double precision AS frontier_lag_ms
  FROM c
)
INSERT INTO market_stats (metric, value_numeric, value_text, asof_ts, updated_at)
SELECT * FROM (
  SELECT 'candles_total_rows', c.total_rows, NULL::text, c.max_ts, now() FROM c
  UNION ALL SELECT 'candles_total_tickers', c.total_tickers, NULL::text, c.max_ts, now() FROM c
  UNION ALL SELECT 'candles_max_ts', c.max_ts::double precision, NULL::text, c.max_ts, now() FROM c
  UNION ALL SELECT 'candles_max_ingested_at', NULL::double precision, c.max_ingested_at::text, c.max_ts, now() FROM c
  UNION ALL SELECT 'candles_frontier_status', NULL::double precision, d.frontier_status, c.max_ts, now() FROM c, diag d
  UNION ALL SELECT 'candles_frontier_lag_ms', d.frontier_lag_ms, NULL::text, c.max_ts, now() FROM c, diag d
  UNION ALL SELECT 'candles_eligible_total', cov.eligible_total, NULL::text, c.max_ts, now() FROM cov, c
  UNION ALL SELECT 'candles_eligible_with_candles', cov.eligible_with_candles, NULL::text, c.max_ts, now() FROM cov, c
  UNION ALL SELECT 'candles_eligible_missing', cov.eligible_missing, NULL::text, c.max_ts, now() FROM cov, c
  UNION ALL SELECT 'candles_coverage_pct',
    CASE WHEN cov.eligible_total > 0 THEN round((cov.eligible_with_candles/cov.eligible_total)*100.0) ELSE NULL END,
    NULL::text, c.max_ts, now() FROM cov, c
  UNION ALL SELECT 'candles_1d_tickers', tf.tf_1d_tickers, NULL::text, c.max_ts, now() FROM tf, c
  UNION ALL SELECT 'candles_1h_tickers', tf.tf_1h_tickers, NULL::text, c.max_ts, now() FROM tf, c
  UNION ALL SELECT 'candles_15m_tickers', tf.tf_15m_tickers, NULL::text, c.max_ts, now() FROM tf, c
  UNION ALL SELECT 'candles_1d_rows', tf.tf_1d_rows, NULL::text, c.max_ts, now() FROM tf, c
  UNION ALL SELECT 'candles_1h_rows', tf.tf_1h_rows, NULL::text, c.max_ts, now() FROM tf, c
  UNION ALL SELECT 'candles_15m_rows', tf.tf_15m_rows, NULL::text, c.max_ts, now() FROM tf, c
  UNION ALL SELECT 'ca_total_rows', ca.ca_rows, NULL::text, (SELECT max_ts FROM c), now() FROM ca
  UNION ALL SELECT 'ca_ex_nonnull', ca.ca_ex, NULL::text, (SELECT max_ts FROM c), now() FROM ca
  UNION ALL SELECT 'ca_record_nonnull', ca.ca_record, NULL::text, (SELECT max_ts FROM c), now() FROM ca
  UNION ALL SELECT 'ca_pay_nonnull', ca.ca_pay, NULL::text, (SELECT max_ts FROM c), now() FROM ca
) s(metric, value_numeric, value_text, asof_ts, updated_at)
ON CONFLICT (metric) DO UPDATE SET
  value_numeric = EXCLUDED.value_numeric,
  value_text = EXCLUDED.value_text,
  asof_ts = EXCLUDED.asof_ts,
  updated_at = now()`

const sqlContextLatest = `
INSERT INTO symbol_context_latest
  (ticker, article_count_7d, article_count_30d, last_article_at, last_candle_ts, last_fi_fetched_at, updated_at)
SELECT sym.ticker,
       coalesce(a7.n, 0),
       coalesce(a30.n, 0),
       a30.last_at,
       cl.ts,
       fi.last_fetched,
       now()
FROM symbols sym
LEFT JOIN LATERAL (
  SELECT count(*) AS n FROM article_symbols l
  JOIN articles a ON a.url = l.article_url
  WHERE l.ticker = sym.ticker AND a.published_at >= $1::timestamptz - interval '7 days'
) a7 ON true
LEFT JOIN LATERAL (
  SELECT count(*) AS n, max(a.published_at) AS last_at FROM article_symbols l
  JOIN articles a ON a.url = l.article_url
  WHERE l.ticker = sym.ticker AND a.published_at >= $1::timestamptz - interval '30 days'
) a30 ON true
LEFT JOIN LATERAL (
  SELECT max(ts) AS ts FROM candles_latest WHERE ticker = sym.ticker
) cl ON true
LEFT JOIN LATERAL (
  SELECT max(fetched_at) AS last_fetched FROM fi_latest WHERE ticker = sym.ticker
) fi ON true
ON CONFLICT (ticker) DO UPDATE SET
  article_count_7d = EXCLUDED.article_count_7d,
  article_count_30d = EXCLUDED.article_count_30d,
  last_article_at = EXCLUDED.last_article_at,
  last_candle_ts = EXCLUDED.last_candle_ts,
  last_fi_fetched_at = EXCLUDED.last_fi_fetched_at,
  updated_at = now()`

// DerivedCounts reports row counts after a rebuild.
type DerivedCounts struct {
	Financials          int `json:"financials"`
	Fundamentals        int `json:"fundamentals"`
	TechnicalIndicators int `json:"technical_indicators"`
	Indicators          int `json:"indicators"`
	MarketStats         int `json:"market_stats"`
}

// RebuildDerived refreshes every derived surface from raw tables.
func (s *Store) RebuildDerived(ctx context.Context) (DerivedCounts, error) {
	steps := []struct {
		name string
		sql  string
	}{
		{"financials", sqlFinancials},
		{"fundamentals", sqlFundamentals},
		{"technical_indicators", sqlTechnical},
		{"indicators", sqlIndicators},
		{"market_stats", sqlMarketStats},
	}
	for _, step := range steps {
		if _, err := s.conn.ExecCtx(ctx, step.sql); err != nil {
			return DerivedCounts{}, fmt.Errorf("store: rebuild %s: %w", step.name, err)
		}
	}

	var counts DerivedCounts
	for _, c := range []struct {
		table string
		dst   *int
	}{
		{"financials", &counts.Financials},
		{"fundamentals", &counts.Fundamentals},
		{"technical_indicators", &counts.TechnicalIndicators},
		{"indicators", &counts.Indicators},
		{"market_stats", &counts.MarketStats},
	} {
		if err := s.conn.QueryRowCtx(ctx, c.dst, `SELECT count(*) FROM `+c.table); err != nil {
			return DerivedCounts{}, fmt.Errorf("store: count %s: %w", c.table, err)
		}
	}
	return counts, nil
}

// RebuildContextLatest recomputes per-symbol recency/count markers over the
// windows ending at now.
func (s *Store) RebuildContextLatest(ctx context.Context, now time.Time) error {
	if _, err := s.conn.ExecCtx(ctx, sqlContextLatest, now.UTC()); err != nil {
		return fmt.Errorf("store: rebuild context latest: %w", err)
	}
	return nil
}

// SymbolContext is the per-ticker composed dashboard row.
type SymbolContext struct {
	Ticker          string     `db:"ticker" json:"ticker"`
	ArticleCount7d  int        `db:"article_count_7d" json:"article_count_7d"`
	ArticleCount30d int        `db:"article_count_30d" json:"article_count_30d"`
	LastArticleAt   *time.Time `db:"last_article_at" json:"last_article_at,omitempty"`
	LastCandleTs    *int64     `db:"last_candle_ts" json:"last_candle_ts,omitempty"`
	LastFiFetchedAt *time.Time `db:"last_fi_fetched_at" json:"last_fi_fetched_at,omitempty"`
}

// GetSymbolContext reads one ticker's context row.
func (s *Store) GetSymbolContext(ctx context.Context, ticker string) (SymbolContext, error) {
	var row SymbolContext
	const q = `
SELECT ticker, article_count_7d, article_count_30d, last_article_at, last_candle_ts, last_fi_fetched_at
FROM symbol_context_latest WHERE ticker = $1`
	if err := s.conn.QueryRowCtx(ctx, &row, q, ticker); err != nil {
		if notFound(err) {
			return SymbolContext{}, ErrNotFound
		}
		return SymbolContext{}, fmt.Errorf("store: symbol context: %w", err)
	}
	return row, nil
}

// MarketStat is one KPI row.
type MarketStat struct {
	Metric       string   `db:"metric" json:"metric"`
	ValueNumeric *float64 `db:"value_numeric" json:"value_numeric,omitempty"`
	ValueText    *string  `db:"value_text" json:"value_text,omitempty"`
	AsofTs       *int64   `db:"asof_ts" json:"asof_ts,omitempty"`
}

// MarketStats returns every KPI row.
func (s *Store) MarketStats(ctx context.Context) ([]MarketStat, error) {
	var rows []MarketStat
	const q = `SELECT metric, value_numeric, value_text, asof_ts FROM market_stats ORDER BY metric`
	if err := s.conn.QueryRowsCtx(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("store: market stats: %w", err)
	}
	return rows, nil
}
