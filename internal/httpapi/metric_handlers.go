package httpapi

import (
	"math"
	"net/http"
	"time"

	"qmark.app/internal/store"
)

const (
	dateLayout        = "2006-01-02"
	defaultMetricDays = 30
)

type metricRequest struct {
	Date             string  `json:"date"`
	LeadsCount       int64   `json:"leadsCount"`
	ConversionsCount int64   `json:"conversionsCount"`
	AutomationsCount int64   `json:"automationsCount"`
	Revenue          float64 `json:"revenue"`
}

// listMetrics returns daily snapshots from ?from (YYYY-MM-DD), defaulting to
// the last 30 days.
func (a *API) listMetrics(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	from := store.Day(a.now()).AddDate(0, 0, -defaultMetricDays)
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = time.Parse(dateLayout, raw); err != nil {
			writeError(w, r, http.StatusBadRequest, "from must be a date in YYYY-MM-DD form")
			return
		}
	}
	items, err := a.store.ListMetricsByUser(r.Context(), currentUserOf(r).ID, from, page)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// putMetric upserts the snapshot for one day. Revenue arrives in dollars and is
// stored in cents.
func (a *API) putMetric(w http.ResponseWriter, r *http.Request) {
	var req metricRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	day := store.Day(a.now())
	if req.Date != "" {
		d, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "date must be in YYYY-MM-DD form")
			return
		}
		day = d
	}
	if req.Revenue < 0 || math.IsNaN(req.Revenue) || req.Revenue > math.MaxInt64/100 {
		writeError(w, r, http.StatusBadRequest, "revenue must be a non-negative amount")
		return
	}
	m, err := a.store.UpsertMetric(r.Context(), store.Metric{
		UserID:           currentUserOf(r).ID,
		Date:             day,
		LeadsCount:       req.LeadsCount,
		ConversionsCount: req.ConversionsCount,
		AutomationsCount: req.AutomationsCount,
		RevenueCents:     int64(math.Round(req.Revenue * 100)),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
