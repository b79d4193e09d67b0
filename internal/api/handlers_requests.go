/**
 * @description
 * This file contains the HTTP handlers for the money-request workflow:
 * creating a request, listing sent and received requests, and resolving a
 * pending request by accepting or rejecting it.
 */

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pouchpay/wallet-service/internal/domain"
)

// CreateRequestHandler records a new money request from the caller.
func (h *WalletHandlers) CreateRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var payload domain.CreateMoneyRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	request, err := h.service.CreateMoneyRequest(r.Context(), userID, payload)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, request)
}

// ListSentRequestsHandler lists requests the caller created.
func (h *WalletHandlers) ListSentRequestsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	requests, err := h.service.ListSentRequests(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

// ListReceivedRequestsHandler lists requests addressed to the caller.
func (h *WalletHandlers) ListReceivedRequestsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	requests, err := h.service.ListReceivedRequests(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

// AcceptRequestHandler resolves a pending request by paying it.
func (h *WalletHandlers) AcceptRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request ID.")
		return
	}

	request, record, err := h.service.AcceptMoneyRequest(r.Context(), userID, requestID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"request": request,
		"record":  record,
	})
}

// RejectRequestHandler resolves a pending request without moving funds.
func (h *WalletHandlers) RejectRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request ID.")
		return
	}

	request, err := h.service.RejectMoneyRequest(r.Context(), userID, requestID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"request": request})
}
