package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pouchpay/wallet-service/internal/domain"
	"github.com/pouchpay/wallet-service/internal/store"
	"github.com/pouchpay/wallet-service/pkg/rabbitmq"
)

// fakeRepo is an in-memory Repository that mirrors the conditional-update
// semantics of the Postgres implementation.
type fakeRepo struct {
	accounts map[uuid.UUID]*domain.Account
	records  []domain.LedgerRecord
	requests map[uuid.UUID]*domain.MoneyRequest
	intents  map[string]*domain.FundingIntent
	codes    map[string]*domain.VerificationCode

	failDebit  error
	failCredit error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		accounts: make(map[uuid.UUID]*domain.Account),
		requests: make(map[uuid.UUID]*domain.MoneyRequest),
		intents:  make(map[string]*domain.FundingIntent),
		codes:    make(map[string]*domain.VerificationCode),
	}
}

func (f *fakeRepo) addAccount(balance int64) *domain.Account {
	account := &domain.Account{
		ID:      uuid.New(),
		Email:   fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		Balance: balance,
	}
	f.accounts[account.ID] = account
	return account
}

func (f *fakeRepo) CreateAccount(ctx context.Context, account *domain.Account) error {
	for _, existing := range f.accounts {
		if existing.Email == account.Email {
			return store.ErrEmailTaken
		}
	}
	f.accounts[account.ID] = account
	return nil
}

func (f *fakeRepo) FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	account, ok := f.accounts[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (f *fakeRepo) FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	for _, account := range f.accounts {
		if account.Email == email {
			copied := *account
			return &copied, nil
		}
	}
	return nil, store.ErrAccountNotFound
}

func (f *fakeRepo) MarkDeleteRequested(ctx context.Context, id uuid.UUID) error {
	account, ok := f.accounts[id]
	if !ok {
		return store.ErrAccountNotFound
	}
	account.RequestDelete = true
	return nil
}

func (f *fakeRepo) DebitBalance(ctx context.Context, accountID uuid.UUID, amount int64) error {
	if f.failDebit != nil {
		return f.failDebit
	}
	account, ok := f.accounts[accountID]
	if !ok {
		return store.ErrAccountNotFound
	}
	if account.Balance < amount {
		return store.ErrInsufficientFunds
	}
	account.Balance -= amount
	return nil
}

func (f *fakeRepo) CreditBalance(ctx context.Context, accountID uuid.UUID, amount int64) error {
	if f.failCredit != nil {
		return f.failCredit
	}
	account, ok := f.accounts[accountID]
	if !ok {
		return store.ErrAccountNotFound
	}
	account.Balance += amount
	return nil
}

func (f *fakeRepo) ExecuteTransfer(ctx context.Context, senderID, receiverID uuid.UUID, amount int64, reference string) (*domain.LedgerRecord, error) {
	if err := f.DebitBalance(ctx, senderID, amount); err != nil {
		return nil, err
	}
	if err := f.CreditBalance(ctx, receiverID, amount); err != nil {
		f.accounts[senderID].Balance += amount
		return nil, err
	}
	record := &domain.LedgerRecord{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Amount:     amount,
		Reference:  reference,
		Status:     domain.LedgerStatusSuccess,
		CreatedAt:  time.Now().UTC(),
	}
	f.records = append(f.records, *record)
	return record, nil
}

// consumeIntent mirrors the once-only DELETE ... RETURNING claim in the
// Postgres settles: the first caller takes the intent, later ones find nothing.
func (f *fakeRepo) consumeIntent(externalRef string, userID uuid.UUID) (*domain.FundingIntent, error) {
	intent, ok := f.intents[externalRef]
	if !ok || intent.UserID != userID {
		return nil, store.ErrIntentNotFound
	}
	delete(f.intents, externalRef)
	copied := *intent
	return &copied, nil
}

func (f *fakeRepo) SettleDeposit(ctx context.Context, externalRef string, userID uuid.UUID, reference string) (*domain.LedgerRecord, error) {
	intent, err := f.consumeIntent(externalRef, userID)
	if err != nil {
		return nil, err
	}
	if err := f.CreditBalance(ctx, userID, intent.Amount); err != nil {
		f.intents[externalRef] = intent
		return nil, err
	}
	record := &domain.LedgerRecord{
		ID:         uuid.New(),
		SenderID:   userID,
		ReceiverID: userID,
		Amount:     intent.Amount,
		Reference:  reference,
		Status:     domain.LedgerStatusSuccess,
		CreatedAt:  time.Now().UTC(),
	}
	f.records = append(f.records, *record)
	return record, nil
}

func (f *fakeRepo) SettleWithdrawal(ctx context.Context, externalRef string, userID uuid.UUID, reference string) (*domain.LedgerRecord, error) {
	intent, err := f.consumeIntent(externalRef, userID)
	if err != nil {
		return nil, err
	}
	record := &domain.LedgerRecord{
		ID:         uuid.New(),
		SenderID:   userID,
		ReceiverID: userID,
		Amount:     intent.Amount,
		Reference:  reference,
		Status:     domain.LedgerStatusSuccess,
		CreatedAt:  time.Now().UTC(),
	}
	f.records = append(f.records, *record)
	return record, nil
}

func (f *fakeRepo) ListLedgerRecordsForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerRecord, error) {
	var out []domain.LedgerRecord
	for _, record := range f.records {
		if record.SenderID == accountID || record.ReceiverID == accountID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListLedgerRecords(ctx context.Context, limit, offset int) ([]domain.LedgerRecord, error) {
	return append([]domain.LedgerRecord(nil), f.records...), nil
}

func (f *fakeRepo) CreateMoneyRequest(ctx context.Context, request *domain.MoneyRequest) error {
	request.CreatedAt = time.Now().UTC()
	copied := *request
	f.requests[request.ID] = &copied
	return nil
}

func (f *fakeRepo) FindMoneyRequestByID(ctx context.Context, id uuid.UUID) (*domain.MoneyRequest, error) {
	request, ok := f.requests[id]
	if !ok {
		return nil, store.ErrRequestNotFound
	}
	copied := *request
	return &copied, nil
}

func (f *fakeRepo) ListMoneyRequestsBySender(ctx context.Context, senderID uuid.UUID) ([]domain.MoneyRequest, error) {
	var out []domain.MoneyRequest
	for _, request := range f.requests {
		if request.SenderID == senderID {
			out = append(out, *request)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListMoneyRequestsByReceiver(ctx context.Context, receiverID uuid.UUID) ([]domain.MoneyRequest, error) {
	var out []domain.MoneyRequest
	for _, request := range f.requests {
		if request.ReceiverID == receiverID {
			out = append(out, *request)
		}
	}
	return out, nil
}

func (f *fakeRepo) transition(requestID, receiverID uuid.UUID, status string) (*domain.MoneyRequest, error) {
	request, ok := f.requests[requestID]
	if !ok {
		return nil, store.ErrRequestNotFound
	}
	if request.ReceiverID != receiverID {
		return nil, store.ErrNotRequestPayer
	}
	if request.Status != domain.RequestStatusPending {
		return nil, store.ErrRequestResolved
	}
	now := time.Now().UTC()
	request.Status = status
	request.ResolvedAt = &now
	copied := *request
	return &copied, nil
}

func (f *fakeRepo) AcceptMoneyRequest(ctx context.Context, requestID, receiverID uuid.UUID) (*domain.MoneyRequest, *domain.LedgerRecord, error) {
	pending, ok := f.requests[requestID]
	if !ok {
		return nil, nil, store.ErrRequestNotFound
	}
	if pending.ReceiverID != receiverID {
		return nil, nil, store.ErrNotRequestPayer
	}
	if pending.Status != domain.RequestStatusPending {
		return nil, nil, store.ErrRequestResolved
	}
	record, err := f.ExecuteTransfer(ctx, receiverID, pending.SenderID, pending.Amount, pending.Description)
	if err != nil {
		return nil, nil, err
	}
	request, err := f.transition(requestID, receiverID, domain.RequestStatusAccepted)
	if err != nil {
		return nil, nil, err
	}
	return request, record, nil
}

func (f *fakeRepo) RejectMoneyRequest(ctx context.Context, requestID, receiverID uuid.UUID) (*domain.MoneyRequest, error) {
	return f.transition(requestID, receiverID, domain.RequestStatusRejected)
}

func (f *fakeRepo) CreateFundingIntent(ctx context.Context, intent *domain.FundingIntent) error {
	intent.CreatedAt = time.Now().UTC()
	copied := *intent
	f.intents[intent.ExternalRef] = &copied
	return nil
}

func (f *fakeRepo) FindFundingIntent(ctx context.Context, externalRef string, userID uuid.UUID) (*domain.FundingIntent, error) {
	intent, ok := f.intents[externalRef]
	if !ok || intent.UserID != userID {
		return nil, store.ErrIntentNotFound
	}
	copied := *intent
	return &copied, nil
}

func (f *fakeRepo) UpsertVerificationCode(ctx context.Context, code *domain.VerificationCode) error {
	code.CreatedAt = time.Now().UTC()
	copied := *code
	f.codes[code.ExternalRef] = &copied
	return nil
}

func (f *fakeRepo) ConsumeVerificationCode(ctx context.Context, userID uuid.UUID, code, externalRef string) (*domain.VerificationCode, error) {
	stored, ok := f.codes[externalRef]
	if !ok || stored.UserID != userID || stored.Code != code || !stored.ExpiresAt.After(time.Now().UTC()) {
		return nil, store.ErrCodeNotFound
	}
	delete(f.codes, externalRef)
	copied := *stored
	return &copied, nil
}

func (f *fakeRepo) DeleteExpiredVerificationCodes(ctx context.Context) (int64, error) {
	var removed int64
	now := time.Now().UTC()
	for ref, code := range f.codes {
		if !code.ExpiresAt.After(now) {
			delete(f.codes, ref)
			removed++
		}
	}
	return removed, nil
}

var _ store.Repository = (*fakeRepo)(nil)

// fakeProvider is a scriptable PaymentProvider.
type fakeProvider struct {
	createErr  error
	captureErr error
	payoutErr  error

	orders   int
	captures []string
	payouts  []string
}

func (p *fakeProvider) CreateOrder(ctx context.Context, amount int64) (string, error) {
	if p.createErr != nil {
		return "", p.createErr
	}
	p.orders++
	return fmt.Sprintf("ord_%d", p.orders), nil
}

func (p *fakeProvider) CaptureOrder(ctx context.Context, externalRef, idempotencyKey string) error {
	if p.captureErr != nil {
		return p.captureErr
	}
	p.captures = append(p.captures, externalRef)
	return nil
}

func (p *fakeProvider) Payout(ctx context.Context, destination string, amount int64, idempotencyKey string) error {
	if p.payoutErr != nil {
		return p.payoutErr
	}
	p.payouts = append(p.payouts, destination)
	return nil
}

// fakePublisher records every event it is asked to publish.
type fakePublisher struct {
	published []string
	err       error
}

func (p *fakePublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, routingKey)
	return nil
}

func (p *fakePublisher) PublishEmailNotification(ctx context.Context, event rabbitmq.EmailNotificationEvent) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, event.Subject)
	return nil
}

func (p *fakePublisher) Close() {}

var _ rabbitmq.Publisher = (*fakePublisher)(nil)
