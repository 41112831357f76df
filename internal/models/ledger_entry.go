package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger entry_type enums. Amounts are signed: debits negative, credits
// positive, so SUM(amount) per account equals the current balance.
const (
	EntryGenerationDebit  = "generation_debit"
	EntryGenerationRefund = "generation_refund"
	EntryPurchaseCredit   = "purchase_credit"
	EntrySignupBonus      = "signup_bonus"
)

type LedgerEntry struct {
	ID           uuid.UUID       `json:"id"`
	AccountID    uuid.UUID       `json:"account_id"`
	TaskID       *uuid.UUID      `json:"task_id,omitempty"`
	Reference    *string         `json:"reference,omitempty"`
	EntryType    string          `json:"entry_type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}
