package store

import (
	"context"
	"time"
)

// MonthRange returns the UTC calendar month containing now as [start, end).
func MonthRange(now time.Time) (time.Time, time.Time) {
	y, m, _ := now.UTC().Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// DashboardStats counts the user's leads, conversions and active automations
// and sums revenue for the calendar month of now. All four figures come from
// one snapshot.
func (s *Store) DashboardStats(ctx context.Context, userID string, now time.Time) (DashboardStats, error) {
	var out DashboardStats
	err := s.inTx(ctx, "dashboard.stats", s.readOnly(), func(ctx context.Context, tx *Tx) error {
		var err error
		out, err = tx.DashboardStats(ctx, userID, now)
		return err
	})
	return out, err
}

func (q *queries) DashboardStats(ctx context.Context, userID string, now time.Time) (DashboardStats, error) {
	start, end := MonthRange(now)
	var (
		st      DashboardStats
		revenue int64
	)
	err := q.q.QueryRowContext(ctx, `
		select
			(select count(*) from leads where user_id = $1),
			(select count(*) from leads where user_id = $1 and status = $2),
			(select count(*) from automations where user_id = $1 and is_active = $3),
			(select cast(coalesce(sum(revenue_cents), 0) as bigint) from metrics
				where user_id = $1 and date >= $4 and date < $5)
	`, userID, string(LeadConverted), true, q.d.timeArg(start), q.d.timeArg(end)).
		Scan(&st.TotalLeads, &st.TotalConversions, &st.ActiveAutomations, &revenue)
	if err != nil {
		return DashboardStats{}, q.d.mapErr(err)
	}
	st.TotalRevenue = float64(revenue) / 100
	return st, nil
}
