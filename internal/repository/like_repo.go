package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LikeRepo struct {
	pool *pgxpool.Pool
}

func NewLikeRepo(pool *pgxpool.Pool) *LikeRepo {
	return &LikeRepo{pool: pool}
}

// Like records one like per (account, image); liking twice is a no-op.
func (r *LikeRepo) Like(ctx context.Context, imageID, accountID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO likes (image_id, account_id) VALUES ($1, $2)
	`, imageID, accountID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return nil
		case "23503":
			return ErrNotFound
		}
	}
	return err
}

func (r *LikeRepo) Unlike(ctx context.Context, imageID, accountID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM likes WHERE image_id = $1 AND account_id = $2
	`, imageID, accountID)
	return err
}
