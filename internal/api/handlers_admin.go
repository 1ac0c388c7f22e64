// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/mediarelay/internal/accounts"
	"github.com/tomtom215/mediarelay/internal/activity"
	"github.com/tomtom215/mediarelay/internal/logging"
	"github.com/tomtom215/mediarelay/internal/models"
	"github.com/tomtom215/mediarelay/internal/validation"
)

// CreateKeyRequest is the body of POST /api/v1/admin/keys.
type CreateKeyRequest struct {
	Type    models.KeyType `json:"type" validate:"required,oneof=normal premium"`
	MaxUses int            `json:"max_uses" validate:"gte=0"`
}

// userActionRequest is assembled from the URL of POST
// /api/v1/admin/users/{id}/{action}.
type userActionRequest struct {
	UserID string `validate:"required,platformid"`
	Action string `validate:"required,oneof=upgrade ban unban ghost unghost reset"`
}

// ListKeys returns every access key.
func (h *Handler) ListKeys(w http.ResponseWriter, _ *http.Request) {
	keys := h.accounts.Keys()
	if keys == nil {
		keys = []*models.AccessKey{}
	}
	respondOK(w, http.StatusOK, keys)
}

// CreateKey issues a new access key.
func (h *Handler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	key, err := h.accounts.CreateKey(r.Context(), req.Type, req.MaxUses)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "KEY_ERROR", "Failed to create key", err)
		return
	}
	respondOK(w, http.StatusCreated, key)
}

// DisableKey deactivates the key named in the URL.
func (h *Handler) DisableKey(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(chi.URLParam(r, "code"))
	err := h.accounts.DisableKey(r.Context(), code)
	switch {
	case errors.Is(err, accounts.ErrKeyNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Key not found", nil)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "KEY_ERROR", "Failed to disable key", err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("key", sanitizeLogValue(code)).Msg("Access key disabled")
	respondOK(w, http.StatusOK, map[string]string{"key": code, "status": "disabled"})
}

// GetUser returns a user record.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.accounts.Get(chi.URLParam(r, "id"))
	if errors.Is(err, accounts.ErrUnknownUser) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "User not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to read user", err)
		return
	}
	respondOK(w, http.StatusOK, u)
}

// DeletedMedia is the response of DeleteMedia.
type DeletedMedia struct {
	MediaID string `json:"media_id"`
	Deleted bool   `json:"deleted"`
}

// DeleteMedia removes a media item and its file. The owner loses the upload
// and, below the activity threshold, their active status.
func (h *Handler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.registry.Delete(r.Context(), id) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Media not found", nil)
		return
	}
	respondOK(w, http.StatusOK, DeletedMedia{MediaID: id, Deleted: true})
}

// UserAction applies an administrative action to a user.
func (h *Handler) UserAction(w http.ResponseWriter, r *http.Request) {
	req := userActionRequest{
		UserID: chi.URLParam(r, "id"),
		Action: chi.URLParam(r, "action"),
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error(), nil)
		return
	}

	ctx := logging.ContextWithUserID(r.Context(), req.UserID)
	err := h.applyUserAction(ctx, req)
	switch {
	case errors.Is(err, accounts.ErrUnknownUser), errors.Is(err, activity.ErrUnknownUser):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "User not found", nil)
	case errors.Is(err, accounts.ErrAlreadyInState):
		respondError(w, http.StatusConflict, "NO_CHANGE", fmt.Sprintf("User is already in the requested state for %s", req.Action), nil)
	case err != nil:
		respondError(w, http.StatusInternalServerError, "ACTION_FAILED", "Failed to apply action", err)
	default:
		respondOK(w, http.StatusOK, map[string]string{"user_id": req.UserID, "action": req.Action})
	}
}

func (h *Handler) applyUserAction(ctx context.Context, req userActionRequest) error {
	switch req.Action {
	case "upgrade":
		return h.accounts.Upgrade(ctx, req.UserID)
	case "ban":
		return h.accounts.Ban(ctx, req.UserID)
	case "unban":
		return h.accounts.Unban(ctx, req.UserID)
	case "ghost":
		return h.accounts.SetGhosted(ctx, req.UserID, true)
	case "unghost":
		return h.accounts.SetGhosted(ctx, req.UserID, false)
	case "reset":
		return h.tracker.Reset(ctx, req.UserID)
	}
	return ErrUnknownAction
}
