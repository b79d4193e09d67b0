/**
 * @description
 * This file contains the registration and login handlers. Login is the
 * surface guarded by the failed-attempt lockout policy: five consecutive
 * failures for an identifier lock it out for the configured duration, and a
 * successful login wipes the failure record.
 *
 * @dependencies
 * - encoding/json, net/http, strings, time: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: Token issue.
 * - golang.org/x/crypto/bcrypt: Password hashing.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pouchpay/wallet-service/internal/app"
	"github.com/pouchpay/wallet-service/internal/domain"
	"github.com/pouchpay/wallet-service/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// RegisterHandler creates a new wallet account with a zero balance.
func (h *WalletHandlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var payload domain.RegisterPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))
	payload.Username = strings.TrimSpace(payload.Username)
	if payload.Email == "" || !strings.Contains(payload.Email, "@") {
		h.writeError(w, http.StatusBadRequest, "A valid email is required.")
		return
	}
	if payload.Username == "" {
		h.writeError(w, http.StatusBadRequest, "A username is required.")
		return
	}
	if len(payload.Password) < 8 {
		h.writeError(w, http.StatusBadRequest, "Password must be at least 8 characters.")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(payload.Password), bcrypt.DefaultCost)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to process password.")
		return
	}

	account := &domain.Account{
		ID:           uuid.New(),
		Email:        payload.Email,
		Username:     payload.Username,
		PasswordHash: string(hash),
	}
	if err := h.service.CreateAccount(r.Context(), account); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			h.writeError(w, http.StatusConflict, "Email is already registered.")
			return
		}
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, account)
}

// LoginHandler authenticates an account and returns a signed JWT. The lockout
// gate runs before the password check, keyed by both the submitted email and
// the client IP so neither can be hammered independently.
func (h *WalletHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var payload domain.LoginPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))
	ip := clientIP(r)

	for _, identifier := range []string{payload.Email, ip} {
		if identifier == "" {
			continue
		}
		if remaining, locked := h.guard.CheckLocked(r.Context(), identifier); locked {
			h.writeLockout(w, remaining)
			return
		}
	}

	account, err := h.service.Authenticate(r.Context(), payload.Email, payload.Password)
	if err != nil {
		if !errors.Is(err, app.ErrInvalidCredentials) {
			h.writeServiceError(w, r, err)
			return
		}
		state := h.guard.RegisterLoginFailure(r.Context(), payload.Email)
		h.guard.RegisterLoginFailure(r.Context(), ip)
		if state != nil {
			if remaining, locked := state.Locked(time.Now().UTC()); locked {
				h.writeLockout(w, remaining)
				return
			}
		}
		h.writeError(w, http.StatusUnauthorized, "Invalid email or password.")
		return
	}

	h.guard.ClearAttempts(r.Context(), payload.Email)
	h.guard.ClearAttempts(r.Context(), ip)

	token, err := h.issueToken(account.ID)
	if err != nil {
		log.Printf("level=error component=api msg=\"token issue failed\" user_id=%s err=%v", account.ID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to issue token.")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":   token,
		"account": account,
	})
}

func (h *WalletHandlers) writeLockout(w http.ResponseWriter, remaining time.Duration) {
	seconds := int(remaining.Seconds()) + 1
	h.writeJSON(w, http.StatusLocked, map[string]interface{}{
		"error":               "Too many failed attempts. Try again later.",
		"retry_after_seconds": seconds,
	})
}

func (h *WalletHandlers) issueToken(userID uuid.UUID) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"iat": now.Unix(),
		"exp": now.Add(h.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.jwtSecret))
}
