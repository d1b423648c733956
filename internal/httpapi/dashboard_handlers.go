package httpapi

import (
	"encoding/json"
	"net/http"

	"qmark.app/internal/store"
)

type activityRequest struct {
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	Description *string         `json:"description"`
	Metadata    json.RawMessage `json:"metadata"`
}

func (a *API) dashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.store.DashboardStats(r.Context(), currentUserOf(r).ID, a.now())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) listActivities(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	items, err := a.store.ListActivitiesByUser(r.Context(), currentUserOf(r).ID, page)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) createActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	act, err := a.store.CreateActivity(r.Context(), store.Activity{
		UserID:      currentUserOf(r).ID,
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, act)
}
