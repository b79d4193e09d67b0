/**
 * @description
 * This file defines the Repository interface for the wallet-service data access
 * layer, along with the sentinel errors the store implementations return. The
 * application layer depends on this interface, which lets tests substitute an
 * in-memory fake for the PostgreSQL implementation.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/pouchpay/wallet-service/internal/domain"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrEmailTaken        = errors.New("email already registered")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrRequestNotFound   = errors.New("money request not found")
	ErrRequestResolved   = errors.New("money request already resolved")
	ErrNotRequestPayer   = errors.New("caller is not the request receiver")
	ErrCodeNotFound      = errors.New("verification code not found")
	ErrIntentNotFound    = errors.New("funding intent not found")
)

// Repository is the data access contract for the wallet-service.
//
// Every balance mutation is an atomic conditional update at the storage layer:
// a decrement only commits when the row still holds sufficient funds, so two
// concurrent operations can never both pass a balance check computed from a
// stale read.
type Repository interface {
	// Accounts
	CreateAccount(ctx context.Context, account *domain.Account) error
	FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	MarkDeleteRequested(ctx context.Context, id uuid.UUID) error

	// Balance primitives. DebitBalance is decrement-if-sufficient and returns
	// ErrInsufficientFunds without side effects when the condition fails.
	DebitBalance(ctx context.Context, accountID uuid.UUID, amount int64) error
	CreditBalance(ctx context.Context, accountID uuid.UUID, amount int64) error

	// Transfer engine: debit sender, credit receiver, and append the ledger
	// record in one database transaction.
	ExecuteTransfer(ctx context.Context, senderID, receiverID uuid.UUID, amount int64, reference string) (*domain.LedgerRecord, error)

	// Ledger settlement. Both settle calls consume the funding intent with a
	// DELETE ... RETURNING inside the same transaction as the ledger append, so
	// one external reference can settle at most once: a replayed or concurrent
	// settle finds no intent row and fails with ErrIntentNotFound, mutating
	// nothing. SettleDeposit also applies the credit in that transaction;
	// SettleWithdrawal expects the debit to have committed earlier as a reserve.
	SettleDeposit(ctx context.Context, externalRef string, userID uuid.UUID, reference string) (*domain.LedgerRecord, error)
	SettleWithdrawal(ctx context.Context, externalRef string, userID uuid.UUID, reference string) (*domain.LedgerRecord, error)
	ListLedgerRecordsForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerRecord, error)
	ListLedgerRecords(ctx context.Context, limit, offset int) ([]domain.LedgerRecord, error)

	// Money requests. Accept and Reject are guarded transitions valid only
	// from the pending state; Accept also settles the balances and appends the
	// ledger record in the same transaction.
	CreateMoneyRequest(ctx context.Context, request *domain.MoneyRequest) error
	FindMoneyRequestByID(ctx context.Context, id uuid.UUID) (*domain.MoneyRequest, error)
	ListMoneyRequestsBySender(ctx context.Context, senderID uuid.UUID) ([]domain.MoneyRequest, error)
	ListMoneyRequestsByReceiver(ctx context.Context, receiverID uuid.UUID) ([]domain.MoneyRequest, error)
	AcceptMoneyRequest(ctx context.Context, requestID, receiverID uuid.UUID) (*domain.MoneyRequest, *domain.LedgerRecord, error)
	RejectMoneyRequest(ctx context.Context, requestID, receiverID uuid.UUID) (*domain.MoneyRequest, error)

	// Funding intents and verification codes. UpsertVerificationCode replaces
	// any live code for the same external reference; ConsumeVerificationCode is
	// an atomic find-and-delete matching (user, code, reference) against an
	// unexpired row.
	CreateFundingIntent(ctx context.Context, intent *domain.FundingIntent) error
	FindFundingIntent(ctx context.Context, externalRef string, userID uuid.UUID) (*domain.FundingIntent, error)
	UpsertVerificationCode(ctx context.Context, code *domain.VerificationCode) error
	ConsumeVerificationCode(ctx context.Context, userID uuid.UUID, code, externalRef string) (*domain.VerificationCode, error)
	DeleteExpiredVerificationCodes(ctx context.Context) (int64, error)
}
