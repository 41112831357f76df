package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Image struct {
	ID           uuid.UUID       `json:"id"`
	OwnerID      uuid.UUID       `json:"owner_id"`
	TaskID       *uuid.UUID      `json:"task_id,omitempty"`
	URL          string          `json:"url"`
	ThumbnailURL *string         `json:"thumbnail_url,omitempty"`
	Prompt       string          `json:"prompt"`
	ModelID      string          `json:"model_id"`
	Cost         decimal.Decimal `json:"cost"`
	IsPublic     bool            `json:"is_public"`
	CreatedAt    time.Time       `json:"created_at"`

	// Populated on feed queries only.
	LikeCount    int `json:"like_count,omitempty"`
	CommentCount int `json:"comment_count,omitempty"`
}
