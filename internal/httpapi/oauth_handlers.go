package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"qmark.app/internal/audit"
	"qmark.app/internal/obs"
	"qmark.app/internal/oauth"
	"qmark.app/internal/store"
)

type connectionPatchRequest struct {
	DisplayName *string `json:"displayName"`
	IsActive    *bool   `json:"isActive"`
}

type initiateResponse struct {
	AuthURL  string `json:"authUrl"`
	Platform string `json:"platform"`
}

func connectionOwner(c store.OAuthConnection) string { return c.UserID }

func (a *API) listConnections(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	items, err := a.store.ListOAuthConnectionsByUser(r.Context(), currentUserOf(r).ID, page)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) updateConnection(w http.ResponseWriter, r *http.Request) {
	var req connectionPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	userID := currentUserOf(r).ID

	var conn store.OAuthConnection
	err := a.store.InTx(r.Context(), func(ctx context.Context, tx *store.Tx) error {
		if _, err := owned(ctx, tx.GetOAuthConnection, connectionOwner, userID, id); err != nil {
			return err
		}
		var err error
		conn, err = tx.UpdateOAuthConnection(ctx, id, store.OAuthConnectionPatch{
			DisplayName: req.DisplayName,
			IsActive:    req.IsActive,
		})
		return err
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

func (a *API) deleteConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := currentUserOf(r).ID

	var conn store.OAuthConnection
	err := a.store.InTx(r.Context(), func(ctx context.Context, tx *store.Tx) error {
		var err error
		if conn, err = owned(ctx, tx.GetOAuthConnection, connectionOwner, userID, id); err != nil {
			return err
		}
		_, err = tx.DeleteOAuthConnection(ctx, id)
		return err
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "oauth.disconnected", map[string]any{
		"connection_id": id,
		"platform":      conn.Platform,
	})
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (a *API) initiateOAuth(w http.ResponseWriter, r *http.Request) {
	platform := oauth.NormalizePlatform(chi.URLParam(r, "platform"))
	authURL, err := a.oauth.AuthURL(r.Context(), currentUserOf(r).ID, platform)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, initiateResponse{AuthURL: authURL, Platform: platform})
}

// oauthCallback completes an authorization the caller started through
// initiateOAuth. The user is taken from the stored state, not from the request,
// and the browser is always sent back to the application root.
func (a *API) oauthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if denied := q.Get("error"); denied != "" {
		a.redirectOAuth(w, r, "", "denied")
		return
	}
	code := q.Get("code")
	if code == "" {
		a.redirectOAuth(w, r, "", "missing_code")
		return
	}
	st, err := a.oauth.ConsumeState(r.Context(), q.Get("state"))
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidState) {
			a.redirectOAuth(w, r, "", "invalid_state")
			return
		}
		logFailure(r, err)
		a.redirectOAuth(w, r, "", "server_error")
		return
	}

	tok, err := a.oauth.Exchange(r.Context(), st.Platform, code, st.CodeVerifier)
	if err != nil {
		logFailure(r, err)
		a.redirectOAuth(w, r, st.Platform, "exchange_failed")
		return
	}
	profile, err := a.oauth.FetchProfile(r.Context(), st.Platform, tok.AccessToken)
	if err != nil {
		obs.Logger().Warn("oauth profile lookup failed",
			zap.String("request_id", audit.RequestID(r.Context())),
			zap.String("platform", st.Platform),
			zap.Error(err),
		)
	}

	now := a.now().UTC()
	conn := store.OAuthConnection{
		UserID:         st.UserID,
		Platform:       st.Platform,
		PlatformUserID: optional(profile.ID),
		DisplayName:    optional(profile.Name),
		Email:          optional(profile.Email),
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		TokenExpiry:    tok.Expiry,
		Scope:          optional(tok.Scope),
		IsActive:       true,
		LastSync:       &now,
	}
	err = a.store.InTx(r.Context(), func(ctx context.Context, tx *store.Tx) error {
		saved, err := tx.UpsertOAuthConnection(ctx, conn)
		if err != nil {
			return err
		}
		meta, _ := json.Marshal(map[string]string{"connectionId": saved.ID, "platform": saved.Platform})
		_, err = tx.CreateActivity(ctx, store.Activity{
			UserID:   st.UserID,
			Type:     store.ActivityOAuthConnected,
			Title:    "Connected " + saved.Platform,
			Metadata: meta,
		})
		return err
	})
	if err != nil {
		logFailure(r, err)
		a.redirectOAuth(w, r, st.Platform, "server_error")
		return
	}
	_ = audit.LogEvent(r.Context(), "oauth.connected", map[string]any{
		"user_id":  st.UserID,
		"platform": st.Platform,
	})
	a.redirectOAuth(w, r, st.Platform, "")
}

// redirectOAuth sends the browser to the application root with the outcome in
// the query. An empty reason means success.
func (a *API) redirectOAuth(w http.ResponseWriter, r *http.Request, platform, reason string) {
	q := url.Values{}
	if reason == "" {
		q.Set("oauth", "success")
	} else {
		q.Set("oauth", "error")
		q.Set("reason", reason)
	}
	if platform != "" {
		q.Set("platform", platform)
	}
	http.Redirect(w, r, a.cfg.Server.ClientURL+"/?"+q.Encode(), http.StatusFound)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
