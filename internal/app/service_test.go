package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/pouchpay/wallet-service/internal/domain"
	"github.com/pouchpay/wallet-service/internal/store"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(repo *fakeRepo) (*Service, *fakeProvider, *fakePublisher) {
	provider := &fakeProvider{}
	publisher := &fakePublisher{}
	return NewService(repo, provider, publisher, 0, 0), provider, publisher
}

func TestTransferMovesFundsAndAppendsRecord(t *testing.T) {
	repo := newFakeRepo()
	sender := repo.addAccount(1000)
	receiver := repo.addAccount(0)
	service, _, publisher := newTestService(repo)

	record, err := service.Transfer(context.Background(), sender.ID, domain.TransferPayload{
		ReceiverID: receiver.ID,
		Amount:     100,
		Reference:  "lunch",
	})
	if err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}

	if got := repo.accounts[sender.ID].Balance; got != 900 {
		t.Errorf("sender balance = %d, want 900", got)
	}
	if got := repo.accounts[receiver.ID].Balance; got != 100 {
		t.Errorf("receiver balance = %d, want 100", got)
	}
	if record.SenderID != sender.ID || record.ReceiverID != receiver.ID || record.Amount != 100 {
		t.Errorf("unexpected ledger record: %+v", record)
	}
	if record.IsSelfReferencing() {
		t.Error("direct transfer record should not be self-referencing")
	}
	if len(publisher.published) != 1 {
		t.Errorf("published %d events, want 1", len(publisher.published))
	}
}

func TestTransferInsufficientFundsLeavesNoTrace(t *testing.T) {
	repo := newFakeRepo()
	sender := repo.addAccount(50)
	receiver := repo.addAccount(0)
	service, _, _ := newTestService(repo)

	_, err := service.Transfer(context.Background(), sender.ID, domain.TransferPayload{
		ReceiverID: receiver.ID,
		Amount:     100,
	})
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("error = %v, want ErrInsufficientFunds", err)
	}

	if got := repo.accounts[sender.ID].Balance; got != 50 {
		t.Errorf("sender balance = %d, want 50 (unchanged)", got)
	}
	if got := repo.accounts[receiver.ID].Balance; got != 0 {
		t.Errorf("receiver balance = %d, want 0 (unchanged)", got)
	}
	if len(repo.records) != 0 {
		t.Errorf("ledger has %d records, want 0", len(repo.records))
	}
}

func TestTransferValidation(t *testing.T) {
	repo := newFakeRepo()
	sender := repo.addAccount(1000)
	receiver := repo.addAccount(0)
	service, _, _ := newTestService(repo)

	tests := []struct {
		name    string
		payload domain.TransferPayload
		wantErr error
	}{
		{
			name:    "zero amount",
			payload: domain.TransferPayload{ReceiverID: receiver.ID, Amount: 0},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "negative amount",
			payload: domain.TransferPayload{ReceiverID: receiver.ID, Amount: -5},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "self transfer",
			payload: domain.TransferPayload{ReceiverID: sender.ID, Amount: 100},
			wantErr: ErrInvalidAccount,
		},
		{
			name:    "unknown receiver",
			payload: domain.TransferPayload{ReceiverID: uuid.New(), Amount: 100},
			wantErr: ErrInvalidAccount,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.Transfer(context.Background(), sender.ID, tc.payload)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("error = %v, want %v", err, tc.wantErr)
			}
		})
	}

	if got := repo.accounts[sender.ID].Balance; got != 1000 {
		t.Errorf("sender balance = %d, want 1000 (no validation failure should move funds)", got)
	}
}

func TestVerifyReceiver(t *testing.T) {
	repo := newFakeRepo()
	caller := repo.addAccount(0)
	other := repo.addAccount(0)
	service, _, _ := newTestService(repo)

	account, err := service.VerifyReceiver(context.Background(), caller.ID, other.ID)
	if err != nil {
		t.Fatalf("VerifyReceiver returned error: %v", err)
	}
	if account.ID != other.ID {
		t.Errorf("verified account = %s, want %s", account.ID, other.ID)
	}

	if _, err := service.VerifyReceiver(context.Background(), caller.ID, caller.ID); !errors.Is(err, ErrInvalidAccount) {
		t.Errorf("self verification error = %v, want ErrInvalidAccount", err)
	}
	if _, err := service.VerifyReceiver(context.Background(), caller.ID, uuid.New()); !errors.Is(err, ErrInvalidAccount) {
		t.Errorf("unknown receiver error = %v, want ErrInvalidAccount", err)
	}
}

func TestAuthenticate(t *testing.T) {
	repo := newFakeRepo()
	service, _, _ := newTestService(repo)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	account := &domain.Account{
		ID:           uuid.New(),
		Email:        "holder@example.com",
		PasswordHash: string(hash),
	}
	if err := service.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}

	if got, err := service.Authenticate(context.Background(), "holder@example.com", "correct horse"); err != nil {
		t.Errorf("Authenticate returned error for valid credentials: %v", err)
	} else if got.ID != account.ID {
		t.Errorf("authenticated account = %s, want %s", got.ID, account.ID)
	}
	if _, err := service.Authenticate(context.Background(), "holder@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := service.Authenticate(context.Background(), "nobody@example.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email error = %v, want ErrInvalidCredentials", err)
	}
}

func TestNotificationFailureDoesNotFailTransfer(t *testing.T) {
	repo := newFakeRepo()
	sender := repo.addAccount(500)
	receiver := repo.addAccount(0)
	provider := &fakeProvider{}
	publisher := &fakePublisher{err: errors.New("broker down")}
	service := NewService(repo, provider, publisher, 0, 0)

	if _, err := service.Transfer(context.Background(), sender.ID, domain.TransferPayload{
		ReceiverID: receiver.ID,
		Amount:     200,
	}); err != nil {
		t.Fatalf("Transfer returned error despite completed movement: %v", err)
	}
	if got := repo.accounts[receiver.ID].Balance; got != 200 {
		t.Errorf("receiver balance = %d, want 200", got)
	}
}
