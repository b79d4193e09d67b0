/**
 * @description
 * This file defines the core domain models for the wallet-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests and database models keeps a clear
 *   separation of concerns and type safety.
 * - Amounts are stored as `int64` in the smallest currency unit (cents), which
 *   avoids floating-point inaccuracies with financial data.
 */

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Money request lifecycle states. A request is created pending and resolves
// exactly once to accepted or rejected.
const (
	RequestStatusPending  = "pending"
	RequestStatusAccepted = "accepted"
	RequestStatusRejected = "rejected"
)

// LedgerStatusSuccess is the only terminal status the core persists.
// Failed attempts never produce a ledger record.
const LedgerStatusSuccess = "success"

// Funding intent kinds for the two-phase external-money flows.
const (
	FundingKindDeposit    = "deposit"
	FundingKindWithdrawal = "withdrawal"
)

// WithdrawalReferenceTag marks a self-referencing ledger record as an outflow.
// Any other self-referencing record is a deposit.
const WithdrawalReferenceTag = "withdrawal"

// Account represents a wallet holder. The balance is mutated only through
// atomic conditional increments in the store layer, never by direct overwrite.
type Account struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	PasswordHash  string    `json:"-"`
	Balance       int64     `json:"balance"` // in cents
	IsVerified    bool      `json:"is_verified"`
	IsAdmin       bool      `json:"is_admin"`
	RequestDelete bool      `json:"request_delete"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// LedgerRecord is an immutable entry describing one completed money movement.
// A record whose sender equals its receiver is a deposit or a withdrawal,
// distinguished by the reference text.
type LedgerRecord struct {
	ID         uuid.UUID `json:"id"`
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Amount     int64     `json:"amount"` // in cents, always > 0
	Reference  string    `json:"reference"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsSelfReferencing reports whether the record crosses the external payment
// boundary rather than moving money between two wallet accounts.
func (r LedgerRecord) IsSelfReferencing() bool {
	return r.SenderID == r.ReceiverID
}

// IsWithdrawal reports whether a self-referencing record is an outflow.
func (r LedgerRecord) IsWithdrawal() bool {
	return r.IsSelfReferencing() && strings.Contains(strings.ToLower(r.Reference), WithdrawalReferenceTag)
}

// MoneyRequest is a receiver-pays-on-acceptance workflow item. The sender is
// the requester who receives funds if the receiver accepts.
type MoneyRequest struct {
	ID          uuid.UUID  `json:"id"`
	SenderID    uuid.UUID  `json:"sender_id"`
	ReceiverID  uuid.UUID  `json:"receiver_id"`
	Amount      int64      `json:"amount"` // in cents, always > 0
	Description string     `json:"description"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// VerificationCode is a short-lived one-time code gating an external payment's
// effect on the ledger. At most one live code exists per external reference.
type VerificationCode struct {
	ExternalRef string    `json:"external_ref"`
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email"`
	Code        string    `json:"code"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// FundingIntent binds an external-payment reference to the amount (and, for
// withdrawals, the payout destination) fixed at phase 1. The provider only
// returns an opaque status at capture time, so the core has to remember what
// the reference is worth.
type FundingIntent struct {
	ExternalRef string    `json:"external_ref"`
	UserID      uuid.UUID `json:"user_id"`
	Kind        string    `json:"kind"`
	Amount      int64     `json:"amount"` // in cents
	Destination string    `json:"destination,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AttemptState is the per-identifier abuse-protection ledger: failed-login
// counters and lockout/block timestamps, keyed by IP or email.
type AttemptState struct {
	Identifier   string     `json:"identifier"`
	Attempts     int        `json:"attempts"`
	BlockedCount int        `json:"blocked_count"`
	TimeoutUntil *time.Time `json:"timeout_until,omitempty"`
	LastAttempt  time.Time  `json:"last_attempt"`
}

// Locked reports whether the identifier is currently locked out and, if so,
// how long remains.
func (s AttemptState) Locked(now time.Time) (time.Duration, bool) {
	if s.TimeoutUntil == nil || !s.TimeoutUntil.After(now) {
		return 0, false
	}
	return s.TimeoutUntil.Sub(now), true
}

// RegisterPayload is the DTO for account registration.
type RegisterPayload struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginPayload is the DTO for login requests.
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TransferPayload is the DTO for direct account-to-account transfers.
type TransferPayload struct {
	ReceiverID uuid.UUID `json:"receiver_id"`
	Amount     int64     `json:"amount"` // in cents
	Reference  string    `json:"reference"`
}

// CreateMoneyRequestPayload is the DTO for sending a money request.
type CreateMoneyRequestPayload struct {
	ReceiverID  uuid.UUID `json:"receiver_id"`
	Amount      int64     `json:"amount"` // in cents
	Description string    `json:"description"`
}

// InitiateDepositPayload is the DTO for phase 1 of a deposit.
type InitiateDepositPayload struct {
	Amount int64 `json:"amount"` // in cents
}

// InitiateWithdrawalPayload is the DTO for phase 1 of a withdrawal.
type InitiateWithdrawalPayload struct {
	Amount      int64  `json:"amount"` // in cents
	Destination string `json:"destination"`
}

// RequestCodePayload is the DTO for phase 2 of a funding flow.
type RequestCodePayload struct {
	ExternalRef string `json:"external_ref"`
}

// VerifyFundingPayload is the DTO for phase 3 of a funding flow.
type VerifyFundingPayload struct {
	ExternalRef string `json:"external_ref"`
	Code        string `json:"code"`
}
