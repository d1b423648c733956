package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"qmark.app/internal/audit"
	"qmark.app/internal/store"
)

type leadRequest struct {
	Name     *string         `json:"name"`
	Email    *string         `json:"email"`
	Phone    *string         `json:"phone"`
	Source   *string         `json:"source"`
	Status   string          `json:"status"`
	Notes    *string         `json:"notes"`
	Metadata json.RawMessage `json:"metadata"`
}

func leadOwner(l store.Lead) string { return l.UserID }

func (a *API) listLeads(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	leads, err := a.store.ListLeadsByUser(r.Context(), currentUserOf(r).ID, page)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, leads)
}

// createLead stores the lead and its lead_captured activity together.
func (a *API) createLead(w http.ResponseWriter, r *http.Request) {
	var req leadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	status, err := store.ParseLeadStatus(req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	user := currentUserOf(r)

	var lead store.Lead
	err = a.store.InTx(r.Context(), func(ctx context.Context, tx *store.Tx) error {
		var err error
		lead, err = tx.CreateLead(ctx, store.Lead{
			UserID:   user.ID,
			Name:     req.Name,
			Email:    req.Email,
			Phone:    req.Phone,
			Source:   req.Source,
			Status:   status,
			Notes:    req.Notes,
			Metadata: req.Metadata,
		})
		if err != nil {
			return err
		}
		meta, _ := json.Marshal(map[string]string{"leadId": lead.ID})
		desc := fmt.Sprintf("%s via %s", valueOr(lead.Name, "Unnamed lead"), valueOr(lead.Source, "manual entry"))
		_, err = tx.CreateActivity(ctx, store.Activity{
			UserID:      user.ID,
			Type:        store.ActivityLeadCaptured,
			Title:       "New lead captured",
			Description: &desc,
			Metadata:    meta,
		})
		return err
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lead)
}

func (a *API) getLead(w http.ResponseWriter, r *http.Request) {
	lead, err := owned(r.Context(), a.store.GetLead, leadOwner, currentUserOf(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (a *API) updateLead(w http.ResponseWriter, r *http.Request) {
	var patch store.LeadPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	userID := currentUserOf(r).ID

	var lead store.Lead
	err := a.store.InTx(r.Context(), func(ctx context.Context, tx *store.Tx) error {
		if _, err := owned(ctx, tx.GetLead, leadOwner, userID, id); err != nil {
			return err
		}
		var err error
		lead, err = tx.UpdateLead(ctx, id, patch)
		return err
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (a *API) deleteLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := currentUserOf(r).ID
	err := a.store.InTx(r.Context(), func(ctx context.Context, tx *store.Tx) error {
		if _, err := owned(ctx, tx.GetLead, leadOwner, userID, id); err != nil {
			return err
		}
		_, err := tx.DeleteLead(ctx, id)
		return err
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "lead.deleted", map[string]any{"lead_id": id})
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func valueOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
