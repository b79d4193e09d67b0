/**
 * @description
 * This file contains the HTTP handlers for the two-phase funding flows.
 * Phase 1 opens an external payment reference (deposit order or payout),
 * phase 2 issues the one-time verification code, and phase 3 verifies the
 * code and settles the wallet balance.
 */

package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pouchpay/wallet-service/internal/domain"
)

// InitiateDepositHandler opens a deposit order with the payment provider.
func (h *WalletHandlers) InitiateDepositHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var payload domain.InitiateDepositPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	intent, err := h.service.InitiateDeposit(r.Context(), userID, payload)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"external_ref": intent.ExternalRef,
		"amount":       intent.Amount,
	})
}

// InitiateWithdrawalHandler opens a payout reference for the caller.
func (h *WalletHandlers) InitiateWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var payload domain.InitiateWithdrawalPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	intent, err := h.service.InitiateWithdrawal(r.Context(), userID, payload)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"external_ref": intent.ExternalRef,
		"amount":       intent.Amount,
	})
}

// RequestCodeHandler issues a fresh one-time code for an external reference.
// The code travels out-of-band by email; the response never contains it.
func (h *WalletHandlers) RequestCodeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var payload domain.RequestCodePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if strings.TrimSpace(payload.ExternalRef) == "" {
		h.writeError(w, http.StatusBadRequest, "An external reference is required.")
		return
	}

	vc, err := h.service.RequestVerificationCode(r.Context(), userID, payload.ExternalRef)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"external_ref": vc.ExternalRef,
		"expires_at":   vc.ExpiresAt,
	})
}

// VerifyDepositHandler settles a deposit after code verification.
func (h *WalletHandlers) VerifyDepositHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var payload domain.VerifyFundingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	record, err := h.service.VerifyDeposit(r.Context(), userID, payload)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

// VerifyWithdrawalHandler settles a withdrawal after code verification.
func (h *WalletHandlers) VerifyWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var payload domain.VerifyFundingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	record, err := h.service.VerifyWithdrawal(r.Context(), userID, payload)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}
