package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artspark/backend/internal/models"
)

type CommentRepo struct {
	pool *pgxpool.Pool
}

func NewCommentRepo(pool *pgxpool.Pool) *CommentRepo {
	return &CommentRepo{pool: pool}
}

func (r *CommentRepo) Create(ctx context.Context, c *models.Comment) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO comments (id, image_id, account_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, c.ID, c.ImageID, c.AccountID, c.Body).Scan(&c.CreatedAt)
}

func (r *CommentRepo) ListByImageID(ctx context.Context, imageID uuid.UUID) ([]*models.Comment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.image_id, c.account_id, c.body, c.created_at, a.display_name
		FROM comments c JOIN accounts a ON a.id = c.account_id
		WHERE c.image_id = $1 ORDER BY c.created_at
	`, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.ImageID, &c.AccountID, &c.Body, &c.CreatedAt, &c.AuthorName); err != nil {
			return nil, err
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}

// Delete removes a comment for its author, or for the owner of the image it
// sits on.
func (r *CommentRepo) Delete(ctx context.Context, id, callerID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM comments c
		USING images i
		WHERE c.id = $1 AND c.image_id = i.id
		  AND (c.account_id = $2 OR i.owner_id = $2)
	`, id, callerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM comments WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrForbidden
		}
		return ErrNotFound
	}
	return nil
}
