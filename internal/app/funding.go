/**
 * @description
 * This file contains the business logic for the funding flows that cross the
 * external payment boundary: deposits into a wallet and withdrawals out of it.
 * Both flows are two-phase. Phase 1 opens an external reference with the
 * provider without touching the ledger. Phase 2 issues a short-lived one-time
 * code to the account holder out-of-band. Phase 3 consumes the code and only
 * then settles balances.
 *
 * Key features:
 * - Code consumption is an atomic find-and-delete at the storage layer, so a
 *   code can settle at most one payment even under concurrent verification.
 * - Settlement consumes the funding intent inside the same transaction as the
 *   balance mutation and ledger append, so one external reference settles at
 *   most once no matter how many codes were issued for it.
 * - All code failures collapse into one generic error so responses leak
 *   nothing about which codes exist.
 * - Withdrawals reserve funds before the payout call and refund the reserve
 *   when the provider fails, leaving the balance untouched on failure.
 */

package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/pouchpay/wallet-service/internal/domain"
	"github.com/pouchpay/wallet-service/internal/store"
)

// InitiateDeposit opens an external payment order for the given amount. No
// balance or ledger effect occurs until the order is captured during
// verification.
func (s *Service) InitiateDeposit(ctx context.Context, userID uuid.UUID, payload domain.InitiateDepositPayload) (*domain.FundingIntent, error) {
	if payload.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	externalRef, err := s.provider.CreateOrder(ctx, payload.Amount)
	if err != nil {
		log.Printf("level=error component=service msg=\"provider create order failed\" user_id=%s err=%v", userID, err)
		return nil, ErrExternalPayment
	}

	intent := &domain.FundingIntent{
		ExternalRef: externalRef,
		UserID:      userID,
		Kind:        domain.FundingKindDeposit,
		Amount:      payload.Amount,
	}
	if err := s.repo.CreateFundingIntent(ctx, intent); err != nil {
		return nil, fmt.Errorf("failed to record funding intent: %w", err)
	}
	return intent, nil
}

// InitiateWithdrawal opens a payout reference for the given amount and
// destination. The balance precheck here is advisory; the authoritative
// conditional debit happens at verification time.
func (s *Service) InitiateWithdrawal(ctx context.Context, userID uuid.UUID, payload domain.InitiateWithdrawalPayload) (*domain.FundingIntent, error) {
	if payload.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if payload.Destination == "" {
		return nil, ErrInvalidAccount
	}

	account, err := s.repo.FindAccountByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account.Balance < payload.Amount {
		return nil, store.ErrInsufficientFunds
	}

	intent := &domain.FundingIntent{
		ExternalRef: "po_" + uuid.NewString(),
		UserID:      userID,
		Kind:        domain.FundingKindWithdrawal,
		Amount:      payload.Amount,
		Destination: payload.Destination,
	}
	if err := s.repo.CreateFundingIntent(ctx, intent); err != nil {
		return nil, fmt.Errorf("failed to record funding intent: %w", err)
	}
	return intent, nil
}

// RequestVerificationCode issues a fresh one-time code for the external
// reference and emails it to the account holder. Re-requesting replaces any
// live code for the same reference, so only the newest code can settle.
func (s *Service) RequestVerificationCode(ctx context.Context, userID uuid.UUID, externalRef string) (*domain.VerificationCode, error) {
	intent, err := s.repo.FindFundingIntent(ctx, externalRef, userID)
	if err != nil {
		if errors.Is(err, store.ErrIntentNotFound) {
			return nil, ErrInvalidOrExpiredCode
		}
		return nil, err
	}

	account, err := s.repo.FindAccountByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	code, err := generateNumericCode(s.codeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}

	vc := &domain.VerificationCode{
		ExternalRef: intent.ExternalRef,
		UserID:      userID,
		Email:       account.Email,
		Code:        code,
		ExpiresAt:   time.Now().UTC().Add(s.codeTTL),
	}
	if err := s.repo.UpsertVerificationCode(ctx, vc); err != nil {
		return nil, fmt.Errorf("failed to store verification code: %w", err)
	}

	s.notify(ctx, account.Email, "Your verification code",
		fmt.Sprintf("Your wallet verification code is %s. It expires in %d minutes.", code, int(s.codeTTL.Minutes())))

	return vc, nil
}

// VerifyDeposit consumes the one-time code, captures the external order, and
// credits the wallet with a self-referencing ledger record. A capture failure
// leaves the balance untouched and does not resurrect the consumed code; the
// holder requests a fresh code to retry.
func (s *Service) VerifyDeposit(ctx context.Context, userID uuid.UUID, payload domain.VerifyFundingPayload) (*domain.LedgerRecord, error) {
	intent, err := s.consumeCode(ctx, userID, payload, domain.FundingKindDeposit)
	if err != nil {
		return nil, err
	}

	if err := s.provider.CaptureOrder(ctx, intent.ExternalRef, intent.ExternalRef); err != nil {
		log.Printf("level=error component=service msg=\"provider capture failed\" external_ref=%s err=%v", intent.ExternalRef, err)
		return nil, ErrExternalPayment
	}

	record, err := s.repo.SettleDeposit(ctx, intent.ExternalRef, userID, "Card deposit "+intent.ExternalRef)
	if err != nil {
		if errors.Is(err, store.ErrIntentNotFound) {
			// A concurrent verify won the intent; this reference already settled.
			return nil, ErrInvalidOrExpiredCode
		}
		return nil, fmt.Errorf("failed to settle deposit: %w", err)
	}

	s.notifyFunding(ctx, userID, "Deposit completed",
		fmt.Sprintf("Your deposit of %d has been credited", intent.Amount))

	return record, nil
}

// VerifyWithdrawal consumes the one-time code, reserves the funds with a
// conditional debit, and calls the provider payout. A payout failure refunds
// the reserve, so the net balance effect of a failed withdrawal is zero.
func (s *Service) VerifyWithdrawal(ctx context.Context, userID uuid.UUID, payload domain.VerifyFundingPayload) (*domain.LedgerRecord, error) {
	intent, err := s.consumeCode(ctx, userID, payload, domain.FundingKindWithdrawal)
	if err != nil {
		return nil, err
	}

	if err := s.repo.DebitBalance(ctx, userID, intent.Amount); err != nil {
		return nil, err
	}

	if err := s.provider.Payout(ctx, intent.Destination, intent.Amount, intent.ExternalRef); err != nil {
		log.Printf("level=error component=service msg=\"provider payout failed\" external_ref=%s err=%v", intent.ExternalRef, err)
		if rerr := s.repo.CreditBalance(ctx, userID, intent.Amount); rerr != nil {
			// Reserved funds are stranded until an operator reconciles.
			log.Printf("level=critical component=service msg=\"withdrawal refund failed\" user_id=%s external_ref=%s amount=%d err=%v",
				userID, intent.ExternalRef, intent.Amount, rerr)
		}
		return nil, ErrExternalPayment
	}

	record, err := s.repo.SettleWithdrawal(ctx, intent.ExternalRef, userID, "Withdrawal to "+intent.Destination)
	if err != nil {
		if errors.Is(err, store.ErrIntentNotFound) {
			// A concurrent verify already settled this reference. The payout is
			// idempotent on the reference, so only one payment left the provider;
			// refund this reserve to bring the balance back to a single debit.
			if rerr := s.repo.CreditBalance(ctx, userID, intent.Amount); rerr != nil {
				log.Printf("level=critical component=service msg=\"withdrawal refund failed\" user_id=%s external_ref=%s amount=%d err=%v",
					userID, intent.ExternalRef, intent.Amount, rerr)
			}
			return nil, ErrInvalidOrExpiredCode
		}
		// The payout succeeded; the debit stands and the record needs operator
		// reconciliation rather than a refund.
		log.Printf("level=critical component=service msg=\"withdrawal settle failed after payout\" user_id=%s external_ref=%s amount=%d err=%v",
			userID, intent.ExternalRef, intent.Amount, err)
		return nil, fmt.Errorf("failed to settle withdrawal: %w", err)
	}

	s.notifyFunding(ctx, userID, "Withdrawal completed",
		fmt.Sprintf("Your withdrawal of %d has been sent", intent.Amount))

	return record, nil
}

// SweepExpiredCodes deletes expired verification codes and orphaned funding
// intents. Wired to the background scheduler as a TTL backstop.
func (s *Service) SweepExpiredCodes(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredVerificationCodes(ctx)
}

// consumeCode atomically consumes the one-time code and resolves the funding
// intent behind it. Every mismatch (wrong code, wrong user, expired, already
// consumed, unknown reference, wrong flow kind) maps to the same generic
// error.
func (s *Service) consumeCode(ctx context.Context, userID uuid.UUID, payload domain.VerifyFundingPayload, kind string) (*domain.FundingIntent, error) {
	if payload.Code == "" || payload.ExternalRef == "" {
		return nil, ErrInvalidOrExpiredCode
	}

	if _, err := s.repo.ConsumeVerificationCode(ctx, userID, payload.Code, payload.ExternalRef); err != nil {
		if errors.Is(err, store.ErrCodeNotFound) {
			return nil, ErrInvalidOrExpiredCode
		}
		return nil, err
	}

	intent, err := s.repo.FindFundingIntent(ctx, payload.ExternalRef, userID)
	if err != nil {
		if errors.Is(err, store.ErrIntentNotFound) {
			return nil, ErrInvalidOrExpiredCode
		}
		return nil, err
	}
	if intent.Kind != kind {
		return nil, ErrInvalidOrExpiredCode
	}
	return intent, nil
}

func (s *Service) notifyFunding(ctx context.Context, userID uuid.UUID, subject, body string) {
	account, err := s.repo.FindAccountByID(ctx, userID)
	if err != nil {
		return
	}
	s.notify(ctx, account.Email, subject, body)
}

// generateNumericCode returns a cryptographically random code of n decimal
// digits. Leading zeros are allowed.
func generateNumericCode(n int) (string, error) {
	const digits = "0123456789"
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		buf[i] = digits[idx.Int64()]
	}
	return string(buf), nil
}
