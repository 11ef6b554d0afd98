package store

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// CorporateAction is one calendar event (dividend, issuance, meeting, …).
// ID is a stable content hash so re-ingesting a page is idempotent.
type CorporateAction struct {
	ID         string  `db:"id" json:"id"`
	Ticker     string  `db:"ticker" json:"ticker"`
	Exchange   *string `db:"exchange" json:"exchange,omitempty"`
	ExDate     *string `db:"ex_date" json:"ex_date,omitempty"`
	RecordDate *string `db:"record_date" json:"record_date,omitempty"`
	PayDate    *string `db:"pay_date" json:"pay_date,omitempty"`
	EventType  *string `db:"event_type" json:"event_type,omitempty"`
	Headline   *string `db:"headline" json:"headline,omitempty"`
	Source     string  `db:"source" json:"source"`
	SourceURL  *string `db:"source_url" json:"source_url,omitempty"`
	RawJSON    *string `db:"raw_json" json:"-"`
}

// UpsertCorporateActions writes a batch of events inside one transaction.
func (s *Store) UpsertCorporateActions(ctx context.Context, rows []CorporateAction) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	const q = `
INSERT INTO corporate_actions (id, ticker, exchange, ex_date, record_date, pay_date,
                               event_type, headline, source, source_url, raw_json)
VALUES ($1, $2, $3, $4::date, $5::date, $6::date, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
  exchange = COALESCE(EXCLUDED.exchange, corporate_actions.exchange),
  ex_date = COALESCE(EXCLUDED.ex_date, corporate_actions.ex_date),
  record_date = COALESCE(EXCLUDED.record_date, corporate_actions.record_date),
  pay_date = COALESCE(EXCLUDED.pay_date, corporate_actions.pay_date),
  event_type = COALESCE(EXCLUDED.event_type, corporate_actions.event_type),
  headline = COALESCE(EXCLUDED.headline, corporate_actions.headline),
  raw_json = COALESCE(EXCLUDED.raw_json, corporate_actions.raw_json)`
	err := s.conn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
		for _, r := range rows {
			if _, err := session.ExecCtx(ctx, q, r.ID, r.Ticker, r.Exchange, r.ExDate,
				r.RecordDate, r.PayDate, r.EventType, r.Headline, r.Source, r.SourceURL, r.RawJSON); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: upsert corporate actions: %w", err)
	}
	return len(rows), nil
}

// CACursor is the keyset cursor over (ex_date DESC, id DESC).
type CACursor struct {
	BeforeExDate *string
	BeforeID     *string
}

type caRow struct {
	ID         string     `db:"id"`
	Ticker     string     `db:"ticker"`
	Exchange   *string    `db:"exchange"`
	ExDate     *time.Time `db:"ex_date"`
	RecordDate *time.Time `db:"record_date"`
	PayDate    *time.Time `db:"pay_date"`
	EventType  *string    `db:"event_type"`
	Headline   *string    `db:"headline"`
	Source     string     `db:"source"`
	SourceURL  *string    `db:"source_url"`
}

// CorporateActionsLatest pages events by (ex_date DESC, id DESC). ticker is
// optional.
func (s *Store) CorporateActionsLatest(ctx context.Context, ticker string, cursor CACursor, limit int) ([]CorporateAction, error) {
	q := `
SELECT id, ticker, exchange, ex_date, record_date, pay_date,
       event_type, headline, source, source_url
FROM corporate_actions
WHERE 1 = 1`
	var args []any
	if ticker != "" {
		args = append(args, ticker)
		q += fmt.Sprintf(" AND ticker = $%d", len(args))
	}
	if cursor.BeforeExDate != nil && cursor.BeforeID != nil {
		args = append(args, *cursor.BeforeExDate, *cursor.BeforeID)
		q += fmt.Sprintf(" AND (ex_date, id) < ($%d::date, $%d)", len(args)-1, len(args))
	} else if cursor.BeforeExDate != nil {
		args = append(args, *cursor.BeforeExDate)
		q += fmt.Sprintf(" AND ex_date < $%d::date", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY ex_date DESC NULLS LAST, id DESC LIMIT $%d", len(args))

	var rows []caRow
	if err := s.conn.QueryRowsCtx(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("store: corporate actions: %w", err)
	}
	out := make([]CorporateAction, 0, len(rows))
	for _, r := range rows {
		out = append(out, CorporateAction{
			ID: r.ID, Ticker: r.Ticker, Exchange: r.Exchange,
			ExDate: dateStr(r.ExDate), RecordDate: dateStr(r.RecordDate), PayDate: dateStr(r.PayDate),
			EventType: r.EventType, Headline: r.Headline, Source: r.Source, SourceURL: r.SourceURL,
		})
	}
	return out, nil
}

func dateStr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}
