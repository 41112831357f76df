package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artspark/backend/internal/models"
)

// Catalog errors for ownership-guarded mutations.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

type ImageRepo struct {
	pool *pgxpool.Pool
}

func NewImageRepo(pool *pgxpool.Pool) *ImageRepo {
	return &ImageRepo{pool: pool}
}

func (r *ImageRepo) Create(ctx context.Context, img *models.Image) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO images (id, owner_id, task_id, url, thumbnail_url, prompt, model_id, cost, is_public)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, img.ID, img.OwnerID, img.TaskID, img.URL, img.ThumbnailURL, img.Prompt, img.ModelID, img.Cost, img.IsPublic).Scan(&img.CreatedAt)
}

func (r *ImageRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	var img models.Image
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, task_id, url, thumbnail_url, prompt, model_id, cost, is_public, created_at
		FROM images WHERE id = $1
	`, id).Scan(&img.ID, &img.OwnerID, &img.TaskID, &img.URL, &img.ThumbnailURL, &img.Prompt, &img.ModelID, &img.Cost, &img.IsPublic, &img.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// SetVisibility toggles the public flag; only the owner may do it.
func (r *ImageRepo) SetVisibility(ctx context.Context, id, ownerID uuid.UUID, isPublic bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE images SET is_public = $3 WHERE id = $1 AND owner_id = $2
	`, id, ownerID, isPublic)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrForbidden(ctx, id)
	}
	return nil
}

// Delete removes an image for its owner (or an admin, with allowAdmin set).
// Comments and likes go with it via ON DELETE CASCADE.
func (r *ImageRepo) Delete(ctx context.Context, id, callerID uuid.UUID, allowAdmin bool) error {
	var tag pgconn.CommandTag
	var err error
	if allowAdmin {
		tag, err = r.pool.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	} else {
		tag, err = r.pool.Exec(ctx, `DELETE FROM images WHERE id = $1 AND owner_id = $2`, id, callerID)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrForbidden(ctx, id)
	}
	return nil
}

// missingOrForbidden disambiguates a zero-row mutation: the row either does
// not exist or belongs to someone else.
func (r *ImageRepo) missingOrForbidden(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM images WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrForbidden
	}
	return ErrNotFound
}

// ListPublic returns the public feed, newest first, with social counts.
func (r *ImageRepo) ListPublic(ctx context.Context, limit, offset int) ([]*models.Image, error) {
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.owner_id, i.task_id, i.url, i.thumbnail_url, i.prompt, i.model_id, i.cost, i.is_public, i.created_at,
		       (SELECT COUNT(*) FROM likes l WHERE l.image_id = i.id),
		       (SELECT COUNT(*) FROM comments c WHERE c.image_id = i.id)
		FROM images i WHERE i.is_public
		ORDER BY i.created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanImagesWithCounts(rows)
}

// ListByOwner returns all of an account's images, public or not.
func (r *ImageRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*models.Image, error) {
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.owner_id, i.task_id, i.url, i.thumbnail_url, i.prompt, i.model_id, i.cost, i.is_public, i.created_at,
		       (SELECT COUNT(*) FROM likes l WHERE l.image_id = i.id),
		       (SELECT COUNT(*) FROM comments c WHERE c.image_id = i.id)
		FROM images i WHERE i.owner_id = $1
		ORDER BY i.created_at DESC LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanImagesWithCounts(rows)
}

func scanImagesWithCounts(rows pgx.Rows) ([]*models.Image, error) {
	var list []*models.Image
	for rows.Next() {
		var img models.Image
		if err := rows.Scan(&img.ID, &img.OwnerID, &img.TaskID, &img.URL, &img.ThumbnailURL, &img.Prompt, &img.ModelID, &img.Cost, &img.IsPublic, &img.CreatedAt, &img.LikeCount, &img.CommentCount); err != nil {
			return nil, err
		}
		list = append(list, &img)
	}
	return list, rows.Err()
}
