package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/artspark/backend/internal/models"
)

// ErrInsufficientFunds is returned when a debit would take the balance below
// zero. No change is made.
var ErrInsufficientFunds = errInsufficientFunds

// ErrDuplicateEntry is returned when an entry with the same correlation id and
// type already exists. The balance mutation it guarded is rolled back, so a
// replayed refund is a no-op.
var ErrDuplicateEntry = errDuplicateEntry

// Store is the minimal persistence interface for the ledger service.
type Store interface {
	DebitTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	CreditTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	InsertEntryTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
}

// TxBeginner abstracts pgxpool.Pool so tests don't need a database.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service maintains per-account balances with an append-only entry per
// mutation. Every entry carries a correlation id (task id or provider
// reference) so replays are detectable.
type Service struct {
	store Store
	db    TxBeginner
}

func NewService(store Store, db TxBeginner) *Service {
	return &Service{store: store, db: db}
}

// TryDebit deducts amount inside the caller's transaction and records a
// generation_debit entry keyed by taskID. Returns ErrInsufficientFunds with
// no change when the balance cannot cover it.
func (s *Service) TryDebit(ctx context.Context, tx pgx.Tx, accountID, taskID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("debit amount must be > 0, got %s", amount)
	}
	newBalance, err := s.store.DebitTx(ctx, tx, accountID, amount)
	if err != nil {
		return decimal.Zero, err
	}
	entry := &models.LedgerEntry{
		ID:           uuid.New(),
		AccountID:    accountID,
		TaskID:       &taskID,
		EntryType:    models.EntryGenerationDebit,
		Amount:       amount.Neg(),
		BalanceAfter: newBalance,
	}
	if err := s.store.InsertEntryTx(ctx, tx, entry); err != nil {
		return decimal.Zero, err
	}
	return newBalance, nil
}

// CreditTx adds amount inside the caller's transaction with an entry of the
// given type. taskID and reference are optional correlation ids; at least one
// should be set for anything that may be retried.
func (s *Service) CreditTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, taskID *uuid.UUID, reference *string, entryType string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("credit amount must be > 0, got %s", amount)
	}
	newBalance, err := s.store.CreditTx(ctx, tx, accountID, amount)
	if err != nil {
		return decimal.Zero, err
	}
	entry := &models.LedgerEntry{
		ID:           uuid.New(),
		AccountID:    accountID,
		TaskID:       taskID,
		Reference:    reference,
		EntryType:    entryType,
		Amount:       amount,
		BalanceAfter: newBalance,
	}
	if err := s.store.InsertEntryTx(ctx, tx, entry); err != nil {
		return decimal.Zero, err
	}
	return newBalance, nil
}

// Refund credits back a failed generation's debit in its own transaction.
// A second refund for the same task rolls back and reports ErrDuplicateEntry.
func (s *Service) Refund(ctx context.Context, accountID, taskID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("begin refund tx: %w", err)
	}
	defer tx.Rollback(ctx)

	newBalance, err := s.CreditTx(ctx, tx, accountID, &taskID, nil, models.EntryGenerationRefund, amount)
	if err != nil {
		return decimal.Zero, err
	}
	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("commit refund tx: %w", err)
	}
	return newBalance, nil
}

// Purchase credits a completed top-up in its own transaction, idempotent by
// the payment provider's reference.
func (s *Service) Purchase(ctx context.Context, accountID uuid.UUID, reference string, amount decimal.Decimal) (decimal.Decimal, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("begin purchase tx: %w", err)
	}
	defer tx.Rollback(ctx)

	newBalance, err := s.CreditTx(ctx, tx, accountID, nil, &reference, models.EntryPurchaseCredit, amount)
	if err != nil {
		return decimal.Zero, err
	}
	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("commit purchase tx: %w", err)
	}
	return newBalance, nil
}

// IsDuplicate reports whether err is the idempotency-collision sentinel.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateEntry)
}
