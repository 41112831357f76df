package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/artspark/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks for Store and TxBeginner.
// These let us test the real Service logic without a database.
// ---------------------------------------------------------------------------

// --- noopTx satisfies pgx.Tx for test use; only Commit/Rollback are called. ---

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

// --- Store mock ---

type mockStore struct {
	mu       sync.Mutex
	balances map[uuid.UUID]decimal.Decimal
	entries  []*models.LedgerEntry
	seen     map[string]bool
}

func newMockStore() *mockStore {
	return &mockStore{
		balances: make(map[uuid.UUID]decimal.Decimal),
		seen:     make(map[string]bool),
	}
}

func (m *mockStore) setBalance(id uuid.UUID, s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[id] = decimal.RequireFromString(s)
}

func (m *mockStore) balance(id uuid.UUID) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[id]
}

func (m *mockStore) DebitTx(_ context.Context, _ pgx.Tx, accountID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[accountID]
	if !ok {
		return decimal.Zero, fmt.Errorf("account %s not found", accountID)
	}
	if bal.LessThan(amount) {
		return decimal.Zero, ErrInsufficientFunds
	}
	bal = bal.Sub(amount)
	m.balances[accountID] = bal
	return bal, nil
}

func (m *mockStore) CreditTx(_ context.Context, _ pgx.Tx, accountID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[accountID]
	if !ok {
		return decimal.Zero, fmt.Errorf("account %s not found", accountID)
	}
	bal = bal.Add(amount)
	m.balances[accountID] = bal
	return bal, nil
}

func (m *mockStore) InsertEntryTx(_ context.Context, _ pgx.Tx, e *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := entryKey(e)
	if key != "" && m.seen[key] {
		// The unique index fires and the enclosing transaction rolls back.
		// Undo the balance mutation this entry was guarding.
		m.balances[e.AccountID] = m.balances[e.AccountID].Sub(e.Amount)
		return ErrDuplicateEntry
	}
	if key != "" {
		m.seen[key] = true
	}
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func entryKey(e *models.LedgerEntry) string {
	if e.TaskID != nil {
		return "task:" + e.TaskID.String() + ":" + e.EntryType
	}
	if e.Reference != nil {
		return "ref:" + *e.Reference + ":" + e.EntryType
	}
	return ""
}

func (m *mockStore) byType(entryType string) []*models.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range m.entries {
		if e.EntryType == entryType {
			out = append(out, e)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// 1. TestTryDebit
// ---------------------------------------------------------------------------

func TestTryDebit(t *testing.T) {
	account := uuid.New()
	task := uuid.New()

	store := newMockStore()
	store.setBalance(account, "1.00")
	svc := NewService(store, mockPool{})

	ctx := context.Background()
	balance, err := svc.TryDebit(ctx, noopTx{}, account, task, decimal.RequireFromString("0.0065"))
	if err != nil {
		t.Fatalf("TryDebit: %v", err)
	}
	if want := decimal.RequireFromString("0.9935"); !balance.Equal(want) {
		t.Errorf("balance after debit: got %s, want %s", balance, want)
	}

	debits := store.byType(models.EntryGenerationDebit)
	if len(debits) != 1 {
		t.Fatalf("generation_debit entries: got %d, want 1", len(debits))
	}
	if want := decimal.RequireFromString("-0.0065"); !debits[0].Amount.Equal(want) {
		t.Errorf("debit entry amount: got %s, want %s", debits[0].Amount, want)
	}
	if debits[0].TaskID == nil || *debits[0].TaskID != task {
		t.Error("debit entry should reference the task")
	}
	if !debits[0].BalanceAfter.Equal(balance) {
		t.Errorf("balance_after: got %s, want %s", debits[0].BalanceAfter, balance)
	}
}

func TestTryDebitInsufficientFunds(t *testing.T) {
	account := uuid.New()

	store := newMockStore()
	store.setBalance(account, "0.0050")
	svc := NewService(store, mockPool{})

	_, err := svc.TryDebit(context.Background(), noopTx{}, account, uuid.New(), decimal.RequireFromString("0.0065"))
	if err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got: %v", err)
	}

	// Nothing moved, nothing written.
	if got := store.balance(account); !got.Equal(decimal.RequireFromString("0.0050")) {
		t.Errorf("balance should be unchanged: got %s", got)
	}
	if n := len(store.byType(models.EntryGenerationDebit)); n != 0 {
		t.Errorf("expected 0 debit entries, got %d", n)
	}
}

func TestTryDebitRejectsNonPositive(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, mockPool{})
	if _, err := svc.TryDebit(context.Background(), noopTx{}, uuid.New(), uuid.New(), decimal.Zero); err == nil {
		t.Fatal("expected error for zero debit")
	}
}

// ---------------------------------------------------------------------------
// 2. TestRefundIdempotency
//    A second refund for the same task must be rejected with no net effect.
// ---------------------------------------------------------------------------

func TestRefundIdempotency(t *testing.T) {
	account := uuid.New()
	task := uuid.New()
	amount := decimal.RequireFromString("0.0160")

	store := newMockStore()
	store.setBalance(account, "1.00")
	svc := NewService(store, mockPool{})

	ctx := context.Background()
	if _, err := svc.TryDebit(ctx, noopTx{}, account, task, amount); err != nil {
		t.Fatalf("TryDebit: %v", err)
	}

	balance, err := svc.Refund(ctx, account, task, amount)
	if err != nil {
		t.Fatalf("first Refund: %v", err)
	}
	if want := decimal.RequireFromString("1.00"); !balance.Equal(want) {
		t.Errorf("balance after refund: got %s, want %s", balance, want)
	}

	// Replay.
	if _, err := svc.Refund(ctx, account, task, amount); !IsDuplicate(err) {
		t.Fatalf("expected ErrDuplicateEntry on replayed refund, got: %v", err)
	}
	if got := store.balance(account); !got.Equal(decimal.RequireFromString("1.00")) {
		t.Errorf("replayed refund must not change balance: got %s", got)
	}
	if n := len(store.byType(models.EntryGenerationRefund)); n != 1 {
		t.Errorf("expected exactly 1 refund entry, got %d", n)
	}
}

// ---------------------------------------------------------------------------
// 3. TestPurchaseIdempotentByReference
// ---------------------------------------------------------------------------

func TestPurchaseIdempotentByReference(t *testing.T) {
	account := uuid.New()
	store := newMockStore()
	store.setBalance(account, "0")
	svc := NewService(store, mockPool{})

	ctx := context.Background()
	amount := decimal.RequireFromString("5.00")

	if _, err := svc.Purchase(ctx, account, "cs_abc123", amount); err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if _, err := svc.Purchase(ctx, account, "cs_abc123", amount); !IsDuplicate(err) {
		t.Fatalf("expected duplicate rejection on webhook replay, got: %v", err)
	}
	if got := store.balance(account); !got.Equal(amount) {
		t.Errorf("balance after replayed purchase: got %s, want %s", got, amount)
	}
	// A different reference is a different purchase.
	if _, err := svc.Purchase(ctx, account, "cs_def456", amount); err != nil {
		t.Fatalf("second distinct Purchase: %v", err)
	}
	if got := store.balance(account); !got.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("balance after two purchases: got %s", got)
	}
}

// ---------------------------------------------------------------------------
// 4. TestDecimalExactness
//    100 debits of 0.0065 then 100 refunds must restore the exact balance.
//    This is the case that float arithmetic gets wrong.
// ---------------------------------------------------------------------------

func TestDecimalExactness(t *testing.T) {
	account := uuid.New()
	store := newMockStore()
	store.setBalance(account, "1.00")
	svc := NewService(store, mockPool{})

	ctx := context.Background()
	price := decimal.RequireFromString("0.0065")

	var tasks []uuid.UUID
	for i := 0; i < 100; i++ {
		task := uuid.New()
		tasks = append(tasks, task)
		if _, err := svc.TryDebit(ctx, noopTx{}, account, task, price); err != nil {
			t.Fatalf("debit %d: %v", i, err)
		}
	}
	if want := decimal.RequireFromString("0.35"); !store.balance(account).Equal(want) {
		t.Fatalf("balance after 100 debits: got %s, want %s", store.balance(account), want)
	}
	for i, task := range tasks {
		if _, err := svc.Refund(ctx, account, task, price); err != nil {
			t.Fatalf("refund %d: %v", i, err)
		}
	}
	if want := decimal.RequireFromString("1.00"); !store.balance(account).Equal(want) {
		t.Errorf("balance after full refund cycle: got %s, want %s", store.balance(account), want)
	}
}

// ---------------------------------------------------------------------------
// 5. TestConcurrentDebits
//    Many goroutines race on one account; the balance must never go negative
//    and exactly floor(balance/price) debits may succeed.
// ---------------------------------------------------------------------------

func TestConcurrentDebits(t *testing.T) {
	account := uuid.New()
	store := newMockStore()
	store.setBalance(account, "0.50")
	svc := NewService(store, mockPool{})

	price := decimal.RequireFromString("0.01")
	const attempts = 100 // only 50 can succeed

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.TryDebit(context.Background(), noopTx{}, account, uuid.New(), price)
			mu.Lock()
			defer mu.Unlock()
			switch err {
			case nil:
				succeeded++
			case ErrInsufficientFunds:
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 50 || rejected != 50 {
		t.Errorf("got %d succeeded / %d rejected, want 50/50", succeeded, rejected)
	}
	if got := store.balance(account); !got.Equal(decimal.Zero) {
		t.Errorf("final balance: got %s, want 0", got)
	}
}
