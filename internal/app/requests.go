/**
 * @description
 * This file contains the business logic for the money-request workflow: a
 * sender asks a receiver to pay, and the receiver resolves the request exactly
 * once by accepting (which moves the funds) or rejecting it.
 *
 * Key features:
 * - Creation validates the receiver and auto-rejects requests the receiver
 *   cannot afford at creation time.
 * - Accept and reject are guarded single-transition operations at the storage
 *   layer, so concurrent resolutions can never both succeed.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/pouchpay/wallet-service/internal/domain"
	"github.com/pouchpay/wallet-service/internal/store"
)

// ErrRequestNotPending is returned when accepting or rejecting a request that
// has already been resolved.
var ErrRequestNotPending = errors.New("money request is not pending")

// CreateMoneyRequest records a new request from senderID against the receiver
// named in the payload. If the receiver's balance cannot cover the amount at
// creation time the request is persisted and immediately auto-rejected, so the
// caller sees the outcome without waiting on the receiver. The balance read is
// advisory only; acceptance re-checks funds atomically.
func (s *Service) CreateMoneyRequest(ctx context.Context, senderID uuid.UUID, payload domain.CreateMoneyRequestPayload) (*domain.MoneyRequest, error) {
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

	request := &domain.MoneyRequest{
		ID:          uuid.New(),
		SenderID:    senderID,
		ReceiverID:  payload.ReceiverID,
		Amount:      payload.Amount,
		Description: payload.Description,
		Status:      domain.RequestStatusPending,
	}
	if err := s.repo.CreateMoneyRequest(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to create money request: %w", err)
	}

	if receiver.Balance < payload.Amount {
		rejected, err := s.repo.RejectMoneyRequest(ctx, request.ID, payload.ReceiverID)
		if err != nil {
			log.Printf("level=error component=service msg=\"auto-reject failed\" request_id=%s err=%v", request.ID, err)
			return request, nil
		}
		return rejected, nil
	}

	s.notify(ctx, receiver.Email, "New money request",
		fmt.Sprintf("You have a pending request for %d: %s", payload.Amount, payload.Description))

	return request, nil
}

// AcceptMoneyRequest resolves a pending request in the receiver's favor of the
// sender: the receiver pays the requested amount. The transition, both balance
// mutations, and the ledger append commit in one storage transaction, so a
// second acceptance of the same request observes a resolved state and fails
// without moving funds.
func (s *Service) AcceptMoneyRequest(ctx context.Context, receiverID, requestID uuid.UUID) (*domain.MoneyRequest, *domain.LedgerRecord, error) {
	request, record, err := s.repo.AcceptMoneyRequest(ctx, requestID, receiverID)
	if err != nil {
		if errors.Is(err, store.ErrRequestResolved) {
			return nil, nil, ErrRequestNotPending
		}
		return nil, nil, err
	}

	if sender, ferr := s.repo.FindAccountByID(ctx, request.SenderID); ferr == nil {
		s.notify(ctx, sender.Email, "Money request accepted",
			fmt.Sprintf("Your request for %d was accepted", request.Amount))
	}

	return request, record, nil
}

// RejectMoneyRequest resolves a pending request without moving funds. Only the
// receiver named on the request may reject it, and only while it is pending.
func (s *Service) RejectMoneyRequest(ctx context.Context, receiverID, requestID uuid.UUID) (*domain.MoneyRequest, error) {
	request, err := s.repo.RejectMoneyRequest(ctx, requestID, receiverID)
	if err != nil {
		if errors.Is(err, store.ErrRequestResolved) {
			return nil, ErrRequestNotPending
		}
		return nil, err
	}

	if sender, ferr := s.repo.FindAccountByID(ctx, request.SenderID); ferr == nil {
		s.notify(ctx, sender.Email, "Money request rejected",
			fmt.Sprintf("Your request for %d was rejected", request.Amount))
	}

	return request, nil
}

// ListSentRequests retrieves requests the caller created.
func (s *Service) ListSentRequests(ctx context.Context, userID uuid.UUID) ([]domain.MoneyRequest, error) {
	return s.repo.ListMoneyRequestsBySender(ctx, userID)
}

// ListReceivedRequests retrieves requests addressed to the caller.
func (s *Service) ListReceivedRequests(ctx context.Context, userID uuid.UUID) ([]domain.MoneyRequest, error) {
	return s.repo.ListMoneyRequestsByReceiver(ctx, userID)
}
