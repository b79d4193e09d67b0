/**
 * @description
 * This file contains the HTTP handlers for the wallet-service's core API
 * endpoints. Handlers are responsible for parsing incoming requests, calling
 * the appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pouchpay/wallet-service/internal/app"
	"github.com/pouchpay/wallet-service/internal/domain"
	"github.com/pouchpay/wallet-service/internal/store"
)

// WalletHandlers holds the application service and abuse guard that handlers use.
type WalletHandlers struct {
	service   *app.Service
	guard     *app.Guard
	jwtSecret string
	tokenTTL  time.Duration
}

// NewWalletHandlers creates a new instance of WalletHandlers.
func NewWalletHandlers(service *app.Service, guard *app.Guard, jwtSecret string, tokenTTL time.Duration) *WalletHandlers {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &WalletHandlers{
		service:   service,
		guard:     guard,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *WalletHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *WalletHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps application and store errors to HTTP responses with
// sanitized messages.
func (h *WalletHandlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, "Amount must be a positive number of cents.")
	case errors.Is(err, app.ErrInvalidAccount):
		h.writeError(w, http.StatusBadRequest, "Invalid receiver account.")
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusBadRequest, "Insufficient funds.")
	case errors.Is(err, store.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, "Account not found.")
	case errors.Is(err, store.ErrRequestNotFound):
		h.writeError(w, http.StatusNotFound, "Money request not found.")
	case errors.Is(err, store.ErrNotRequestPayer):
		h.writeError(w, http.StatusForbidden, "Only the request receiver can resolve it.")
	case errors.Is(err, app.ErrRequestNotPending):
		h.writeError(w, http.StatusConflict, "Money request has already been resolved.")
	case errors.Is(err, app.ErrInvalidOrExpiredCode):
		h.writeError(w, http.StatusBadRequest, "Invalid or expired verification code.")
	case errors.Is(err, app.ErrExternalPayment):
		h.writeError(w, http.StatusBadGateway, "External payment failed. Please try again.")
	default:
		log.Printf("level=error component=api path=%s msg=\"unhandled service error\" err=%v", r.URL.Path, err)
		h.writeError(w, http.StatusInternalServerError, "An internal error occurred.")
	}
}

// requireUser pulls the authenticated account ID out of the context.
func (h *WalletHandlers) requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required.")
		return uuid.Nil, false
	}
	return userID, true
}

// pagination reads limit/offset query params with sane bounds.
func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// BalanceHandler returns the caller's account with its current balance.
func (h *WalletHandlers) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	account, err := h.service.GetAccount(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// VerifyAccountHandler is the pure-read receiver verification endpoint.
func (h *WalletHandlers) VerifyAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	receiverID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account ID.")
		return
	}

	account, err := h.service.VerifyReceiver(r.Context(), userID, receiverID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	// Only expose what a sender needs to confirm the receiver.
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":       account.ID,
		"username": account.Username,
	})
}

// TransferHandler executes a direct account-to-account transfer.
func (h *WalletHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var payload domain.TransferPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	record, err := h.service.Transfer(r.Context(), userID, payload)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, record)
}

// LedgerHandler lists the caller's own ledger records.
func (h *WalletHandlers) LedgerHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	limit, offset := pagination(r)
	records, err := h.service.ListLedger(r.Context(), userID, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

// AdminLedgerHandler lists every ledger record. Admin accounts only.
func (h *WalletHandlers) AdminLedgerHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	account, err := h.service.GetAccount(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !account.IsAdmin {
		h.writeError(w, http.StatusForbidden, "Admin access required.")
		return
	}

	limit, offset := pagination(r)
	records, err := h.service.ListAllLedger(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

// DeleteRequestHandler flags the caller's account for operator deletion.
func (h *WalletHandlers) DeleteRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	if err := h.service.RequestAccountDeletion(r.Context(), userID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deletion requested"})
}

// LimitStatusHandler reports whether the caller's IP is currently blocked by
// the abuse layer and how long remains.
func (h *WalletHandlers) LimitStatusHandler(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	state, err := h.guard.Status(r.Context(), ip)
	if err != nil {
		log.Printf("level=warn component=api mode=degraded msg=\"limit status unavailable\" ip=%s err=%v", ip, err)
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"blocked": false})
		return
	}
	if state == nil {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"blocked": false})
		return
	}

	remaining, locked := state.Locked(time.Now().UTC())
	resp := map[string]interface{}{
		"blocked":       locked,
		"blocked_count": state.BlockedCount,
	}
	if locked {
		resp["retry_after_seconds"] = int(remaining.Seconds()) + 1
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HealthHandler is the liveness endpoint.
func (h *WalletHandlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("healthy"))
}
