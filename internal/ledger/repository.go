package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/artspark/backend/internal/models"
)

var (
	errInsufficientFunds = errors.New("insufficient funds")
	errDuplicateEntry    = errors.New("duplicate ledger entry")
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// DebitTx atomically deducts amount when the balance covers it. A zero
// rows-affected conditional UPDATE means insufficient funds; the balance row
// is never observed negative.
func (r *Repository) DebitTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var newBalance decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance - $1, updated_at = now()
		WHERE id = $2 AND balance >= $1
		RETURNING balance
	`, amount, accountID).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, errInsufficientFunds
	}
	return newBalance, err
}

// CreditTx adds amount unconditionally and returns the new balance.
func (r *Repository) CreditTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var newBalance decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance + $1, updated_at = now()
		WHERE id = $2
		RETURNING balance
	`, amount, accountID).Scan(&newBalance)
	return newBalance, err
}

// InsertEntryTx records one balance mutation. The unique indexes on
// (task_id, entry_type) and (reference, entry_type) make replays fail with
// errDuplicateEntry, rolling back the whole transaction.
func (r *Repository) InsertEntryTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, account_id, task_id, reference, entry_type, amount, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, e.ID, e.AccountID, e.TaskID, e.Reference, e.EntryType, e.Amount, e.BalanceAfter).Scan(&e.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errDuplicateEntry
	}
	return err
}

func (r *Repository) ListByAccountID(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, task_id, reference, entry_type, amount, balance_after, created_at
		FROM ledger_entries WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.TaskID, &e.Reference, &e.EntryType, &e.Amount, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
