package store

import (
	"context"
	"time"
)

const metricColumns = `id, user_id, date, leads_count, conversions_count, automations_count, revenue_cents, created_at`

const defaultMetricLimit = 31

func scanMetric(row scanner) (Metric, error) {
	var (
		m             Metric
		date, created dbTime
	)
	if err := row.Scan(&m.ID, &m.UserID, &date, &m.LeadsCount, &m.ConversionsCount, &m.AutomationsCount,
		&m.RevenueCents, &created); err != nil {
		return Metric{}, err
	}
	m.Date = date.Time
	m.CreatedAt = created.Time
	return m, nil
}

// Day truncates t to midnight UTC, the key metrics are stored under.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// UpsertMetric writes the snapshot for (UserID, Date), replacing the counters of
// an existing one.
func (q *queries) UpsertMetric(ctx context.Context, m Metric) (Metric, error) {
	if err := requireID("userId", m.UserID); err != nil {
		return Metric{}, err
	}
	if m.Date.IsZero() {
		return Metric{}, invalidf("date is required")
	}
	if m.LeadsCount < 0 || m.ConversionsCount < 0 || m.AutomationsCount < 0 || m.RevenueCents < 0 {
		return Metric{}, invalidf("metric counters must not be negative")
	}
	m.Date = Day(m.Date)
	_, err := q.exec(ctx, `
		insert into metrics(id, user_id, date, leads_count, conversions_count, automations_count, revenue_cents, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		on conflict (user_id, date) do update set
			leads_count = excluded.leads_count,
			conversions_count = excluded.conversions_count,
			automations_count = excluded.automations_count,
			revenue_cents = excluded.revenue_cents
	`, newID(m.ID), m.UserID, q.d.timeArg(m.Date), m.LeadsCount, m.ConversionsCount, m.AutomationsCount,
		m.RevenueCents, q.d.timeArg(q.timestamp()))
	if err != nil {
		return Metric{}, err
	}
	out, ok, err := getOne(ctx, q, scanMetric,
		`select `+metricColumns+` from metrics where user_id = $1 and date = $2`, m.UserID, q.d.timeArg(m.Date))
	if err != nil {
		return Metric{}, err
	}
	if !ok {
		return Metric{}, ErrNotFound
	}
	return out, nil
}

// ListMetricsByUser returns snapshots on or after from, oldest first. A zero
// from lists from the beginning.
func (q *queries) ListMetricsByUser(ctx context.Context, userID string, from time.Time, page Page) ([]Metric, error) {
	page = page.normalize(defaultMetricLimit)
	return list(ctx, q, scanMetric,
		`select `+metricColumns+` from metrics where user_id = $1 and date >= $2
		order by date asc`+offsetLimit(3),
		userID, q.d.timeArg(Day(from)), page.Limit, page.Offset)
}

func (s *Store) UpsertMetric(ctx context.Context, m Metric) (Metric, error) {
	return inTxValue(ctx, s, "metric.upsert", func(ctx context.Context, tx *Tx) (Metric, error) {
		return tx.UpsertMetric(ctx, m)
	})
}

func (s *Store) ListMetricsByUser(ctx context.Context, userID string, from time.Time, page Page) ([]Metric, error) {
	return read(ctx, s, "metric.list", func(ctx context.Context, q *queries) ([]Metric, error) {
		return q.ListMetricsByUser(ctx, userID, from, page)
	})
}
