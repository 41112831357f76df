package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artspark/backend/internal/models"
)

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

// CreateTx inserts the task row inside the caller's transaction so the row
// and its debit commit together.
func (r *TaskRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.GenerationTask) error {
	return tx.QueryRow(ctx, `
		INSERT INTO generation_tasks (id, account_id, model_id, prompt, width, height, steps, quoted_cost, actual_cost, status, provider_task_id, error_reason, image_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`, t.ID, t.AccountID, t.ModelID, t.Prompt, t.Width, t.Height, t.Steps, t.QuotedCost, t.ActualCost, t.Status, t.ProviderTaskID, t.ErrorReason, t.ImageID).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.GenerationTask, error) {
	var t models.GenerationTask
	err := r.pool.QueryRow(ctx, `
		SELECT id, account_id, model_id, prompt, width, height, steps, quoted_cost, actual_cost, status, provider_task_id, error_reason, image_id, created_at, updated_at
		FROM generation_tasks WHERE id = $1
	`, id).Scan(&t.ID, &t.AccountID, &t.ModelID, &t.Prompt, &t.Width, &t.Height, &t.Steps, &t.QuotedCost, &t.ActualCost, &t.Status, &t.ProviderTaskID, &t.ErrorReason, &t.ImageID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepo) Update(ctx context.Context, t *models.GenerationTask) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE generation_tasks SET status = $2, actual_cost = $3, provider_task_id = $4, error_reason = $5, image_id = $6, updated_at = now()
		WHERE id = $1
	`, t.ID, t.Status, t.ActualCost, t.ProviderTaskID, t.ErrorReason, t.ImageID)
	return err
}

func (r *TaskRepo) ListByAccountID(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.GenerationTask, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, model_id, prompt, width, height, steps, quoted_cost, actual_cost, status, provider_task_id, error_reason, image_id, created_at, updated_at
		FROM generation_tasks WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.GenerationTask
	for rows.Next() {
		var t models.GenerationTask
		if err := rows.Scan(&t.ID, &t.AccountID, &t.ModelID, &t.Prompt, &t.Width, &t.Height, &t.Steps, &t.QuotedCost, &t.ActualCost, &t.Status, &t.ProviderTaskID, &t.ErrorReason, &t.ImageID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

// ListUnreconciled returns failed_unrefunded tasks for the manual
// reconciliation report.
func (r *TaskRepo) ListUnreconciled(ctx context.Context) ([]*models.GenerationTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, model_id, prompt, width, height, steps, quoted_cost, actual_cost, status, provider_task_id, error_reason, image_id, created_at, updated_at
		FROM generation_tasks WHERE status = $1 ORDER BY created_at
	`, models.TaskStatusFailedUnrefunded)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.GenerationTask
	for rows.Next() {
		var t models.GenerationTask
		if err := rows.Scan(&t.ID, &t.AccountID, &t.ModelID, &t.Prompt, &t.Width, &t.Height, &t.Steps, &t.QuotedCost, &t.ActualCost, &t.Status, &t.ProviderTaskID, &t.ErrorReason, &t.ImageID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}
