package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"qmark.app/internal/store"
)

type automationRequest struct {
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Type        string          `json:"type"`
	Config      json.RawMessage `json:"config"`
	IsActive    *bool           `json:"isActive"`
}

func automationOwner(a store.Automation) string { return a.UserID }

func (a *API) listAutomations(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	items, err := a.store.ListAutomationsByUser(r.Context(), currentUserOf(r).ID, page)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) createAutomation(w http.ResponseWriter, r *http.Request) {
	var req automationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	user := currentUserOf(r)

	var created store.Automation
	err := a.store.InTx(r.Context(), func(ctx context.Context, tx *store.Tx) error {
		var err error
		created, err = tx.CreateAutomation(ctx, store.Automation{
			UserID:      user.ID,
			Name:        req.Name,
			Description: req.Description,
			Type:        req.Type,
			Config:      req.Config,
			IsActive:    active,
		})
		if err != nil {
			return err
		}
		meta, _ := json.Marshal(map[string]string{"automationId": created.ID, "type": created.Type})
		_, err = tx.CreateActivity(ctx, store.Activity{
			UserID:   user.ID,
			Type:     store.ActivityAutomationAdded,
			Title:    "Automation created: " + created.Name,
			Metadata: meta,
		})
		return err
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) getAutomation(w http.ResponseWriter, r *http.Request) {
	item, err := owned(r.Context(), a.store.GetAutomation, automationOwner, currentUserOf(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) updateAutomation(w http.ResponseWriter, r *http.Request) {
	var patch store.AutomationPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	userID := currentUserOf(r).ID

	var item store.Automation
	err := a.store.InTx(r.Context(), func(ctx context.Context, tx *store.Tx) error {
		if _, err := owned(ctx, tx.GetAutomation, automationOwner, userID, id); err != nil {
			return err
		}
		var err error
		item, err = tx.UpdateAutomation(ctx, id, patch)
		return err
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) deleteAutomation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := currentUserOf(r).ID
	err := a.store.InTx(r.Context(), func(ctx context.Context, tx *store.Tx) error {
		if _, err := owned(ctx, tx.GetAutomation, automationOwner, userID, id); err != nil {
			return err
		}
		_, err := tx.DeleteAutomation(ctx, id)
		return err
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
