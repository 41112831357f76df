package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/artspark/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks for AccountStore, BonusLedger and TxBeginner.
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

// --- AccountStore mock ---

type mockAccounts struct {
	byID    map[uuid.UUID]*models.Account
	byEmail map[string]*models.Account
}

func newMockAccounts() *mockAccounts {
	return &mockAccounts{
		byID:    make(map[uuid.UUID]*models.Account),
		byEmail: make(map[string]*models.Account),
	}
}

func (m *mockAccounts) CreateTx(_ context.Context, _ pgx.Tx, a *models.Account) error {
	if _, dup := m.byEmail[a.Email]; dup {
		return &pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"}
	}
	cp := *a
	m.byID[a.ID] = &cp
	m.byEmail[a.Email] = &cp
	return nil
}

func (m *mockAccounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	a, ok := m.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("account %q not found", email)
	}
	return a, nil
}

func (m *mockAccounts) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	a, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("account %s not found", id)
	}
	return a, nil
}

// --- BonusLedger mock ---

type bonusCall struct {
	accountID uuid.UUID
	entryType string
	amount    decimal.Decimal
	reference string
}

type mockBonus struct {
	credits []bonusCall
	err     error
}

func (m *mockBonus) CreditTx(_ context.Context, _ pgx.Tx, accountID uuid.UUID, _ *uuid.UUID, reference *string, entryType string, amount decimal.Decimal) (decimal.Decimal, error) {
	if m.err != nil {
		return decimal.Zero, m.err
	}
	ref := ""
	if reference != nil {
		ref = *reference
	}
	m.credits = append(m.credits, bonusCall{accountID, entryType, amount, ref})
	return amount, nil
}

// ---------------------------------------------------------------------------
// Register
// ---------------------------------------------------------------------------

func TestRegisterCreditsSignupBonus(t *testing.T) {
	accounts := newMockAccounts()
	bonus := &mockBonus{}
	svc := NewService(accounts, bonus, mockPool{}, "test-secret")

	ctx := context.Background()
	acc, token, err := svc.Register(ctx, "Ada@Example.com", "Ada", "correct-horse")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Email normalized.
	if acc.Email != "ada@example.com" {
		t.Errorf("email: got %q", acc.Email)
	}

	// Welcome credit recorded with the right type, amount and reference.
	if len(bonus.credits) != 1 {
		t.Fatalf("bonus credits: got %d, want 1", len(bonus.credits))
	}
	c := bonus.credits[0]
	if c.entryType != models.EntrySignupBonus {
		t.Errorf("entry type: got %q, want %q", c.entryType, models.EntrySignupBonus)
	}
	if !c.amount.Equal(models.SignupBonus) {
		t.Errorf("bonus amount: got %s, want %s", c.amount, models.SignupBonus)
	}
	if c.reference != "signup:"+acc.ID.String() {
		t.Errorf("reference: got %q", c.reference)
	}
	if !acc.Balance.Equal(models.SignupBonus) {
		t.Errorf("balance: got %s, want %s", acc.Balance, models.SignupBonus)
	}

	// The issued token round-trips.
	id, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if id != acc.ID {
		t.Errorf("token subject: got %s, want %s", id, acc.ID)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	accounts := newMockAccounts()
	svc := NewService(accounts, &mockBonus{}, mockPool{}, "test-secret")

	ctx := context.Background()
	if _, _, err := svc.Register(ctx, "ada@example.com", "Ada", "correct-horse"); err != nil {
		t.Fatal(err)
	}
	_, _, err := svc.Register(ctx, "ada@example.com", "Other Ada", "different-pass")
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(newMockAccounts(), &mockBonus{}, mockPool{}, "test-secret")
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "not-an-email", "x", "longenough"); err == nil {
		t.Error("expected error for invalid email")
	}
	if _, _, err := svc.Register(ctx, "a@b.com", "x", "short"); err == nil {
		t.Error("expected error for short password")
	}
}

// ---------------------------------------------------------------------------
// Login
// ---------------------------------------------------------------------------

func TestLogin(t *testing.T) {
	accounts := newMockAccounts()
	svc := NewService(accounts, &mockBonus{}, mockPool{}, "test-secret")
	ctx := context.Background()

	registered, _, err := svc.Register(ctx, "ada@example.com", "Ada", "correct-horse")
	if err != nil {
		t.Fatal(err)
	}

	acc, token, err := svc.Login(ctx, "ada@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if acc.ID != registered.ID {
		t.Error("login should return the registered account")
	}
	if id, err := svc.ValidateToken(ctx, token); err != nil || id != registered.ID {
		t.Errorf("token validation: id=%s err=%v", id, err)
	}

	// Wrong password and unknown email give the same answer.
	if _, _, err := svc.Login(ctx, "ada@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v", err)
	}
	if _, _, err := svc.Login(ctx, "ghost@example.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

func TestValidateTokenRejectsForgeries(t *testing.T) {
	svc := NewService(newMockAccounts(), &mockBonus{}, mockPool{}, "real-secret")
	other := NewService(newMockAccounts(), &mockBonus{}, mockPool{}, "other-secret")
	ctx := context.Background()

	_, token, err := other.Register(ctx, "eve@example.com", "Eve", "correct-horse")
	if err != nil {
		t.Fatal(err)
	}

	// Signed with the wrong secret.
	if _, err := svc.ValidateToken(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign token: got %v", err)
	}
	// Garbage.
	if _, err := svc.ValidateToken(ctx, "not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage token: got %v", err)
	}
}
