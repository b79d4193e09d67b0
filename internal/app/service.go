/**
 * @description
 * This file contains the core business logic for the wallet-service. The
 * `Service` struct orchestrates all money movement operations, coordinating
 * between the database repository, the payment provider client, and the
 * message broker.
 *
 * Key features:
 * - Implements the direct transfer engine with storage-level atomicity.
 * - Exposes pure read operations (receiver verification, balances, ledger).
 * - Publishes notification events for asynchronous delivery; publish failures
 *   are logged and never propagate into money-movement outcomes.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For publishing notification events.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pouchpay/wallet-service/internal/domain"
	"github.com/pouchpay/wallet-service/internal/store"
	"github.com/pouchpay/wallet-service/pkg/rabbitmq"
)

var (
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInvalidAccount       = errors.New("invalid account")
	ErrInvalidOrExpiredCode = errors.New("invalid or expired verification code")
	ErrExternalPayment      = errors.New("external payment failed")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrLockedOut            = errors.New("too many failed attempts")
)

// PaymentProvider is the opaque external payment capability. The core never
// inspects provider-specific fields beyond success/failure and the reference.
type PaymentProvider interface {
	CreateOrder(ctx context.Context, amount int64) (string, error)
	CaptureOrder(ctx context.Context, externalRef, idempotencyKey string) error
	Payout(ctx context.Context, destination string, amount int64, idempotencyKey string) error
}

// Service provides the core business logic for the wallet ledger.
type Service struct {
	repo     store.Repository
	provider PaymentProvider
	events   rabbitmq.Publisher

	codeTTL    time.Duration
	codeLength int
}

// NewService creates a new wallet service instance.
func NewService(repo store.Repository, provider PaymentProvider, events rabbitmq.Publisher, codeTTL time.Duration, codeLength int) *Service {
	if codeTTL <= 0 {
		codeTTL = 10 * time.Minute
	}
	if codeLength <= 0 {
		codeLength = 6
	}
	return &Service{
		repo:       repo,
		provider:   provider,
		events:     events,
		codeTTL:    codeTTL,
		codeLength: codeLength,
	}
}

// Transfer executes a direct account-to-account movement. The balance check
// and the mutation are one conditional update at the storage layer, so a
// failed precondition leaves no side effects and persists no record.
func (s *Service) Transfer(ctx context.Context, senderID uuid.UUID, payload domain.TransferPayload) (*domain.LedgerRecord, error) {
	if payload.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if payload.ReceiverID == uuid.Nil || payload.ReceiverID == senderID {
		return nil, ErrInvalidAccount
	}

	receiver, err := s.repo.FindAccountByID(ctx, payload.ReceiverID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrInvalidAccount
		}
		return nil, fmt.Errorf("failed to find receiver: %w", err)
	}

	record, err := s.repo.ExecuteTransfer(ctx, senderID, payload.ReceiverID, payload.Amount, payload.Reference)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, receiver.Email, "You received a transfer",
		fmt.Sprintf("You received %d from another wallet: %s", payload.Amount, payload.Reference))

	return record, nil
}

// VerifyReceiver is a pure read operation so a caller can confirm a receiver
// exists before committing funds. Self-as-receiver is rejected.
func (s *Service) VerifyReceiver(ctx context.Context, callerID, receiverID uuid.UUID) (*domain.Account, error) {
	if receiverID == callerID {
		return nil, ErrInvalidAccount
	}
	account, err := s.repo.FindAccountByID(ctx, receiverID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrInvalidAccount
		}
		return nil, err
	}
	return account, nil
}

// GetAccount retrieves the caller's own account.
func (s *Service) GetAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	return s.repo.FindAccountByID(ctx, userID)
}

// ListLedger retrieves the caller's ledger records, newest first.
func (s *Service) ListLedger(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.LedgerRecord, error) {
	return s.repo.ListLedgerRecordsForAccount(ctx, userID, limit, offset)
}

// ListAllLedger retrieves every ledger record. Callers must enforce the admin
// flag before exposing this.
func (s *Service) ListAllLedger(ctx context.Context, limit, offset int) ([]domain.LedgerRecord, error) {
	return s.repo.ListLedgerRecords(ctx, limit, offset)
}

// RequestAccountDeletion flags the caller's account for operator deletion.
func (s *Service) RequestAccountDeletion(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkDeleteRequested(ctx, userID)
}

// notify publishes an email notification event. Failures are logged and
// swallowed: notification delivery must never block or roll back a completed
// money movement.
func (s *Service) notify(ctx context.Context, email, subject, body string) {
	if s.events == nil {
		return
	}
	event := rabbitmq.EmailNotificationEvent{
		Email:     email,
		Subject:   subject,
		Body:      body,
		Timestamp: time.Now().UTC(),
	}
	if err := s.events.PublishEmailNotification(ctx, event); err != nil {
		log.Printf("level=warn component=service msg=\"notification publish failed\" email=%s err=%v", email, err)
	}
}
