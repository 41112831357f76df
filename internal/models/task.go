package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Generation task statuses. succeeded, failed_refunded and failed_unrefunded
// are terminal; failed_unrefunded means the refund itself failed and the task
// needs manual reconciliation.
const (
	TaskStatusPending          = "pending"
	TaskStatusDebited          = "debited"
	TaskStatusSubmitted        = "submitted"
	TaskStatusSucceeded        = "succeeded"
	TaskStatusFailedRefunded   = "failed_refunded"
	TaskStatusFailedUnrefunded = "failed_unrefunded"
)

type GenerationTask struct {
	ID             uuid.UUID        `json:"id"`
	AccountID      uuid.UUID        `json:"account_id"`
	ModelID        string           `json:"model_id"`
	Prompt         string           `json:"prompt"`
	Width          int              `json:"width"`
	Height         int              `json:"height"`
	Steps          int              `json:"steps"`
	QuotedCost     decimal.Decimal  `json:"quoted_cost"`
	ActualCost     *decimal.Decimal `json:"actual_cost,omitempty"`
	Status         string           `json:"status"`
	ProviderTaskID *string          `json:"provider_task_id,omitempty"`
	ErrorReason    *string          `json:"error_reason,omitempty"`
	ImageID        *uuid.UUID       `json:"image_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}
