/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the SQL to interact with the accounts, ledger_records,
 * money_requests, funding_intents and verification_codes tables.
 *
 * Balance mutations are single conditional UPDATE statements
 * (`balance = balance - $n ... AND balance >= $n`) executed inside a pgx
 * transaction together with the ledger append, so the balance check and the
 * mutation are one logical unit at the database.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pouchpay/wallet-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateAccount inserts a new account row. New accounts start with a zero
// balance regardless of the struct value.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, email, username, password_hash, balance, is_verified, is_admin, request_delete)
		VALUES ($1, lower(btrim($2)), $3, $4, 0, $5, $6, false)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		account.ID,
		account.Email,
		account.Username,
		account.PasswordHash,
		account.IsVerified,
		account.IsAdmin,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return err
	}
	account.Balance = 0
	return nil
}

// FindAccountByID retrieves an account by its ID.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return r.scanAccount(ctx, `WHERE id = $1`, id)
}

// FindAccountByEmail retrieves an account by its (normalized) email.
func (r *PostgresRepository) FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.scanAccount(ctx, `WHERE email = lower(btrim($1))`, email)
}

func (r *PostgresRepository) scanAccount(ctx context.Context, where string, arg interface{}) (*domain.Account, error) {
	var account domain.Account
	query := `
		SELECT id, email, username, password_hash, balance, is_verified, is_admin, request_delete, created_at, updated_at
		FROM accounts ` + where
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&account.ID,
		&account.Email,
		&account.Username,
		&account.PasswordHash,
		&account.Balance,
		&account.IsVerified,
		&account.IsAdmin,
		&account.RequestDelete,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// MarkDeleteRequested flags an account for deletion by an operator.
func (r *PostgresRepository) MarkDeleteRequested(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `UPDATE accounts SET request_delete = true, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// DebitBalance performs an atomic decrement-if-sufficient on an account.
func (r *PostgresRepository) DebitBalance(ctx context.Context, accountID uuid.UUID, amount int64) error {
	return debitTx(ctx, r.db, accountID, amount)
}

// CreditBalance performs an atomic credit on an account.
func (r *PostgresRepository) CreditBalance(ctx context.Context, accountID uuid.UUID, amount int64) error {
	return creditTx(ctx, r.db, accountID, amount)
}

// queryExecer is satisfied by both *pgxpool.Pool and pgx.Tx, so the balance
// primitives can run standalone or inside a larger transaction.
type queryExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func debitTx(ctx context.Context, q queryExecer, accountID uuid.UUID, amount int64) error {
	result, err := q.Exec(ctx,
		`UPDATE accounts SET balance = balance - $1, updated_at = NOW() WHERE id = $2 AND balance >= $1`,
		amount, accountID,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		// Distinguish a missing account from a failed funds condition.
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrAccountNotFound
		}
		return ErrInsufficientFunds
	}
	return nil
}

func creditTx(ctx context.Context, q queryExecer, accountID uuid.UUID, amount int64) error {
	result, err := q.Exec(ctx,
		`UPDATE accounts SET balance = balance + $1, updated_at = NOW() WHERE id = $2`,
		amount, accountID,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func insertLedgerRecordTx(ctx context.Context, q queryExecer, record *domain.LedgerRecord) error {
	return q.QueryRow(ctx,
		`INSERT INTO ledger_records (id, sender_id, receiver_id, amount, reference, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		record.ID, record.SenderID, record.ReceiverID, record.Amount, record.Reference, record.Status,
	).Scan(&record.CreatedAt)
}

// ExecuteTransfer moves funds between two accounts and appends the ledger
// record, all in one database transaction. No partial effects survive failure.
func (r *PostgresRepository) ExecuteTransfer(ctx context.Context, senderID, receiverID uuid.UUID, amount int64, reference string) (*domain.LedgerRecord, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := debitTx(ctx, tx, senderID, amount); err != nil {
		return nil, err
	}
	if err := creditTx(ctx, tx, receiverID, amount); err != nil {
		return nil, err
	}

	record := &domain.LedgerRecord{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Amount:     amount,
		Reference:  reference,
		Status:     domain.LedgerStatusSuccess,
	}
	if err := insertLedgerRecordTx(ctx, tx, record); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

// consumeIntentTx atomically claims a funding intent. The DELETE ... RETURNING
// means only one transaction can ever obtain a given intent row, which is what
// makes settlement once-per-reference.
func consumeIntentTx(ctx context.Context, q queryExecer, externalRef string, userID uuid.UUID) (*domain.FundingIntent, error) {
	var intent domain.FundingIntent
	err := q.QueryRow(ctx,
		`DELETE FROM funding_intents
		 WHERE external_ref = $1 AND user_id = $2
		 RETURNING external_ref, user_id, kind, amount, destination, created_at`,
		externalRef, userID,
	).Scan(&intent.ExternalRef, &intent.UserID, &intent.Kind, &intent.Amount, &intent.Destination, &intent.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	return &intent, nil
}

// SettleDeposit consumes the funding intent, credits the account with the
// intent's amount, and appends the self-referencing ledger record, all in one
// transaction. A reference whose intent is already consumed settles nothing
// and returns ErrIntentNotFound.
func (r *PostgresRepository) SettleDeposit(ctx context.Context, externalRef string, userID uuid.UUID, reference string) (*domain.LedgerRecord, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	intent, err := consumeIntentTx(ctx, tx, externalRef, userID)
	if err != nil {
		return nil, err
	}

	if err := creditTx(ctx, tx, userID, intent.Amount); err != nil {
		return nil, err
	}

	record := &domain.LedgerRecord{
		ID:         uuid.New(),
		SenderID:   userID,
		ReceiverID: userID,
		Amount:     intent.Amount,
		Reference:  reference,
		Status:     domain.LedgerStatusSuccess,
	}
	if err := insertLedgerRecordTx(ctx, tx, record); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

// SettleWithdrawal consumes the funding intent and appends the outflow ledger
// record in one transaction. The debit itself was committed earlier as a
// reservation, before the provider payout ran.
func (r *PostgresRepository) SettleWithdrawal(ctx context.Context, externalRef string, userID uuid.UUID, reference string) (*domain.LedgerRecord, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	intent, err := consumeIntentTx(ctx, tx, externalRef, userID)
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
	}
	if err := insertLedgerRecordTx(ctx, tx, record); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

const ledgerSelect = `
	SELECT id, sender_id, receiver_id, amount, reference, status, created_at
	FROM ledger_records
`

// ListLedgerRecordsForAccount retrieves records where the account is either party.
func (r *PostgresRepository) ListLedgerRecordsForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerRecord, error) {
	limit, offset = clampPage(limit, offset)
	rows, err := r.db.Query(ctx,
		ledgerSelect+`WHERE sender_id = $1 OR receiver_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLedgerRecords(rows)
}

// ListLedgerRecords retrieves all records, newest first. Admin surface only.
func (r *PostgresRepository) ListLedgerRecords(ctx context.Context, limit, offset int) ([]domain.LedgerRecord, error) {
	limit, offset = clampPage(limit, offset)
	rows, err := r.db.Query(ctx,
		ledgerSelect+`ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLedgerRecords(rows)
}

func scanLedgerRecords(rows pgx.Rows) ([]domain.LedgerRecord, error) {
	var records []domain.LedgerRecord
	for rows.Next() {
		var rec domain.LedgerRecord
		if err := rows.Scan(&rec.ID, &rec.SenderID, &rec.ReceiverID, &rec.Amount, &rec.Reference, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// CreateMoneyRequest inserts a new pending money request.
func (r *PostgresRepository) CreateMoneyRequest(ctx context.Context, request *domain.MoneyRequest) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO money_requests (id, sender_id, receiver_id, amount, description, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		request.ID, request.SenderID, request.ReceiverID, request.Amount, request.Description, request.Status,
	).Scan(&request.CreatedAt)
}

const moneyRequestSelect = `
	SELECT id, sender_id, receiver_id, amount, description, status, created_at, resolved_at
	FROM money_requests
`

// FindMoneyRequestByID retrieves a single money request.
func (r *PostgresRepository) FindMoneyRequestByID(ctx context.Context, id uuid.UUID) (*domain.MoneyRequest, error) {
	var req domain.MoneyRequest
	err := r.db.QueryRow(ctx, moneyRequestSelect+`WHERE id = $1`, id).Scan(
		&req.ID, &req.SenderID, &req.ReceiverID, &req.Amount, &req.Description, &req.Status, &req.CreatedAt, &req.ResolvedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// ListMoneyRequestsBySender retrieves requests created by a requester.
func (r *PostgresRepository) ListMoneyRequestsBySender(ctx context.Context, senderID uuid.UUID) ([]domain.MoneyRequest, error) {
	return r.listMoneyRequests(ctx, `WHERE sender_id = $1`, senderID)
}

// ListMoneyRequestsByReceiver retrieves requests addressed to a payer.
func (r *PostgresRepository) ListMoneyRequestsByReceiver(ctx context.Context, receiverID uuid.UUID) ([]domain.MoneyRequest, error) {
	return r.listMoneyRequests(ctx, `WHERE receiver_id = $1`, receiverID)
}

func (r *PostgresRepository) listMoneyRequests(ctx context.Context, where string, arg interface{}) ([]domain.MoneyRequest, error) {
	rows, err := r.db.Query(ctx, moneyRequestSelect+where+` ORDER BY created_at DESC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []domain.MoneyRequest
	for rows.Next() {
		var req domain.MoneyRequest
		if err := rows.Scan(&req.ID, &req.SenderID, &req.ReceiverID, &req.Amount, &req.Description, &req.Status, &req.CreatedAt, &req.ResolvedAt); err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// transitionMoneyRequest flips a pending request to a terminal status, guarded
// so only one invocation can ever win. rows==0 is disambiguated afterwards.
func (r *PostgresRepository) transitionMoneyRequest(ctx context.Context, q queryExecer, requestID, receiverID uuid.UUID, status string) (*domain.MoneyRequest, error) {
	var req domain.MoneyRequest
	err := q.QueryRow(ctx,
		`UPDATE money_requests
		 SET status = $3, resolved_at = NOW()
		 WHERE id = $1 AND receiver_id = $2 AND status = $4
		 RETURNING id, sender_id, receiver_id, amount, description, status, created_at, resolved_at`,
		requestID, receiverID, status, domain.RequestStatusPending,
	).Scan(&req.ID, &req.SenderID, &req.ReceiverID, &req.Amount, &req.Description, &req.Status, &req.CreatedAt, &req.ResolvedAt)
	if err == nil {
		return &req, nil
	}
	if err != pgx.ErrNoRows {
		return nil, err
	}

	existing, findErr := r.FindMoneyRequestByID(ctx, requestID)
	if findErr != nil {
		return nil, findErr
	}
	if existing.ReceiverID != receiverID {
		return nil, ErrNotRequestPayer
	}
	return nil, ErrRequestResolved
}

// AcceptMoneyRequest performs the guarded pending->accepted transition, moves
// the funds from receiver to sender, and appends the ledger record, all in one
// transaction. A concurrent or repeated accept loses the guard and moves
// nothing.
func (r *PostgresRepository) AcceptMoneyRequest(ctx context.Context, requestID, receiverID uuid.UUID) (*domain.MoneyRequest, *domain.LedgerRecord, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	req, err := r.transitionMoneyRequest(ctx, tx, requestID, receiverID, domain.RequestStatusAccepted)
	if err != nil {
		return nil, nil, err
	}

	if err := debitTx(ctx, tx, req.ReceiverID, req.Amount); err != nil {
		return nil, nil, err
	}
	if err := creditTx(ctx, tx, req.SenderID, req.Amount); err != nil {
		return nil, nil, err
	}

	record := &domain.LedgerRecord{
		ID:         uuid.New(),
		SenderID:   req.ReceiverID,
		ReceiverID: req.SenderID,
		Amount:     req.Amount,
		Reference:  req.Description,
		Status:     domain.LedgerStatusSuccess,
	}
	if err := insertLedgerRecordTx(ctx, tx, record); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return req, record, nil
}

// RejectMoneyRequest performs the guarded pending->rejected transition. Only
// the status field changes.
func (r *PostgresRepository) RejectMoneyRequest(ctx context.Context, requestID, receiverID uuid.UUID) (*domain.MoneyRequest, error) {
	return r.transitionMoneyRequest(ctx, r.db, requestID, receiverID, domain.RequestStatusRejected)
}

// CreateFundingIntent records the amount (and destination) bound to an
// external-payment reference at phase 1 of a funding flow.
func (r *PostgresRepository) CreateFundingIntent(ctx context.Context, intent *domain.FundingIntent) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO funding_intents (external_ref, user_id, kind, amount, destination)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		intent.ExternalRef, intent.UserID, intent.Kind, intent.Amount, intent.Destination,
	).Scan(&intent.CreatedAt)
}

// FindFundingIntent retrieves a caller-owned funding intent by reference.
func (r *PostgresRepository) FindFundingIntent(ctx context.Context, externalRef string, userID uuid.UUID) (*domain.FundingIntent, error) {
	var intent domain.FundingIntent
	err := r.db.QueryRow(ctx,
		`SELECT external_ref, user_id, kind, amount, destination, created_at
		 FROM funding_intents
		 WHERE external_ref = $1 AND user_id = $2`,
		externalRef, userID,
	).Scan(&intent.ExternalRef, &intent.UserID, &intent.Kind, &intent.Amount, &intent.Destination, &intent.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	return &intent, nil
}

// UpsertVerificationCode stores a fresh one-time code for an external
// reference. The primary key on external_ref makes the upsert invalidate any
// prior unconsumed code for the same reference.
func (r *PostgresRepository) UpsertVerificationCode(ctx context.Context, code *domain.VerificationCode) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO verification_codes (external_ref, user_id, email, code, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (external_ref)
		 DO UPDATE SET user_id = EXCLUDED.user_id, email = EXCLUDED.email,
		               code = EXCLUDED.code, expires_at = EXCLUDED.expires_at, created_at = NOW()
		 RETURNING created_at`,
		code.ExternalRef, code.UserID, code.Email, code.Code, code.ExpiresAt,
	).Scan(&code.CreatedAt)
}

// ConsumeVerificationCode atomically finds and deletes an unexpired code
// matching (user, code, reference) exactly. Two concurrent verification
// attempts with the same code cannot both succeed: only one DELETE returns the
// row.
func (r *PostgresRepository) ConsumeVerificationCode(ctx context.Context, userID uuid.UUID, code, externalRef string) (*domain.VerificationCode, error) {
	var vc domain.VerificationCode
	err := r.db.QueryRow(ctx,
		`DELETE FROM verification_codes
		 WHERE user_id = $1 AND code = $2 AND external_ref = $3 AND expires_at > NOW()
		 RETURNING external_ref, user_id, email, code, expires_at, created_at`,
		userID, code, externalRef,
	).Scan(&vc.ExternalRef, &vc.UserID, &vc.Email, &vc.Code, &vc.ExpiresAt, &vc.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return &vc, nil
}

// DeleteExpiredVerificationCodes sweeps lapsed codes and stale funding intents.
// A backstop for the expires_at predicate in ConsumeVerificationCode.
func (r *PostgresRepository) DeleteExpiredVerificationCodes(ctx context.Context) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM verification_codes WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	deleted := result.RowsAffected()

	// Intents with no live code and no settlement within a day are abandoned.
	stale, err := r.db.Exec(ctx,
		`DELETE FROM funding_intents
		 WHERE created_at <= NOW() - INTERVAL '24 hours'
		   AND NOT EXISTS (SELECT 1 FROM verification_codes vc WHERE vc.external_ref = funding_intents.external_ref)`,
	)
	if err != nil {
		return deleted, err
	}
	return deleted + stale.RowsAffected(), nil
}
