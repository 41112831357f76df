package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/artspark/backend/internal/generation"
	"github.com/artspark/backend/internal/ledger"
	"github.com/artspark/backend/internal/models"
	"github.com/artspark/backend/internal/registry"
)

const maxPromptLen = 2000

var (
	// ErrInvalidPrompt rejects empty or oversized prompts before any side effect.
	ErrInvalidPrompt = errors.New("invalid prompt")
	// ErrCompensationFailed marks a failed generation whose refund also failed.
	// The task is left failed_unrefunded for manual reconciliation.
	ErrCompensationFailed = errors.New("generation failed and refund could not be applied")
	// ErrPersistenceFailed marks a paid, delivered generation whose catalog row
	// could not be written. Not compensatable by refund.
	ErrPersistenceFailed = errors.New("image record persistence failed")
)

// Ledger is the balance store interface the orchestrator needs.
type Ledger interface {
	TryDebit(ctx context.Context, tx pgx.Tx, accountID, taskID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	Refund(ctx context.Context, accountID, taskID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
}

// Generator submits one generation task to the provider.
type Generator interface {
	Submit(ctx context.Context, d generation.Descriptor) (*generation.Result, error)
}

// Blobs is the blob store adapter interface.
type Blobs interface {
	Store(ctx context.Context, key, contentType string, data []byte) (string, error)
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// TaskStore persists generation task state transitions.
type TaskStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.GenerationTask) error
	Update(ctx context.Context, t *models.GenerationTask) error
}

// ImageStore appends catalog records for successful generations.
type ImageStore interface {
	Create(ctx context.Context, img *models.Image) error
}

// ThumbnailMaker produces a preview from the raw image bytes.
type ThumbnailMaker interface {
	Make(data []byte) ([]byte, error)
}

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// GenerateRequest is one inbound generation request, transport-agnostic.
// Width/Height and AspectRatio are mutually exclusive; zero values mean model
// defaults.
type GenerateRequest struct {
	ModelID     string
	Prompt      string
	Width       int
	Height      int
	AspectRatio string
	Steps       int
	IsPublic    bool
}

// GenerateResult is returned to the request surface on success.
type GenerateResult struct {
	TaskID       uuid.UUID
	ImageID      uuid.UUID
	ImageURL     string
	ThumbnailURL *string
	Balance      decimal.Decimal
}

// Orchestrator runs one generation task to a terminal state: debit the quoted
// price, call the provider, persist the deliverable — refunding the debit when
// the provider fails. A committed debit always ends in a catalog record, a
// committed refund, or the reportable failed_unrefunded state.
type Orchestrator struct {
	DB       TxBeginner
	Ledger   Ledger
	Registry *registry.Registry
	Gen      Generator
	Blobs    Blobs
	Tasks    TaskStore
	Images   ImageStore
	Thumbs   ThumbnailMaker
	Retry    RetryPolicy
	Logger   *slog.Logger
}

func NewOrchestrator(
	db TxBeginner,
	led Ledger,
	reg *registry.Registry,
	gen Generator,
	blobs Blobs,
	tasks TaskStore,
	images ImageStore,
	thumbs ThumbnailMaker,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		DB:       db,
		Ledger:   led,
		Registry: reg,
		Gen:      gen,
		Blobs:    blobs,
		Tasks:    tasks,
		Images:   images,
		Thumbs:   thumbs,
		Retry:    DefaultRetryPolicy(),
		Logger:   logger,
	}
}

// Run executes one generation end to end. Input and funding rejections happen
// before any committed state; after the debit commits the task always reaches
// a terminal status.
func (o *Orchestrator) Run(ctx context.Context, accountID uuid.UUID, req GenerateRequest) (*GenerateResult, error) {
	model, err := o.Registry.Get(req.ModelID)
	if err != nil {
		return nil, err
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" || utf8.RuneCountInString(prompt) > maxPromptLen {
		return nil, fmt.Errorf("%w: prompt must be 1-%d characters", ErrInvalidPrompt, maxPromptLen)
	}
	params, err := o.Registry.ResolveParams(model, registry.ParamRequest{
		Width:       req.Width,
		Height:      req.Height,
		AspectRatio: req.AspectRatio,
		Steps:       req.Steps,
	})
	if err != nil {
		return nil, err
	}

	task := &models.GenerationTask{
		ID:         uuid.New(),
		AccountID:  accountID,
		ModelID:    model.ID,
		Prompt:     prompt,
		Width:      params.Width,
		Height:     params.Height,
		Steps:      params.Steps,
		QuotedCost: model.Price,
		Status:     models.TaskStatusPending,
	}

	// Debit before the provider call. The task row commits in the same
	// transaction, so a rejected debit leaves no state behind.
	balance, err := o.debitAndCreate(ctx, task)
	if err != nil {
		return nil, err
	}

	o.transition(ctx, task, models.TaskStatusSubmitted)

	res, err := o.submit(ctx, task, model)
	if err != nil {
		return nil, o.compensate(ctx, task, err)
	}

	// The debit is committed and the provider has delivered. Finish persistence
	// even if the requester has gone away; a canceled request context must not
	// strand the task short of a terminal status.
	ctx = context.WithoutCancel(ctx)

	task.ProviderTaskID = &res.ProviderTaskID
	actualCost := res.ActualCost
	if actualCost.IsZero() {
		actualCost = model.Price
	}
	task.ActualCost = &actualCost

	imageURL, thumbURL := o.persistBlobs(ctx, task, res)

	img := &models.Image{
		ID:           uuid.New(),
		OwnerID:      accountID,
		TaskID:       &task.ID,
		URL:          imageURL,
		ThumbnailURL: thumbURL,
		Prompt:       prompt,
		ModelID:      model.ID,
		Cost:         actualCost,
		IsPublic:     req.IsPublic,
	}
	if err := o.Images.Create(ctx, img); err != nil {
		// Money spent and the asset exists at imageURL, but there is no catalog
		// row. Not compensatable by refund; alert for manual follow-up.
		o.Logger.Error("image record persistence failed after successful generation",
			"alert", true, "task_id", task.ID, "account_id", accountID, "image_url", imageURL, "error", err)
		return nil, ErrPersistenceFailed
	}

	task.ImageID = &img.ID
	o.transition(ctx, task, models.TaskStatusSucceeded)

	return &GenerateResult{
		TaskID:       task.ID,
		ImageID:      img.ID,
		ImageURL:     imageURL,
		ThumbnailURL: thumbURL,
		Balance:      balance,
	}, nil
}

// debitAndCreate commits the debit and the task row atomically.
func (o *Orchestrator) debitAndCreate(ctx context.Context, task *models.GenerationTask) (decimal.Decimal, error) {
	tx, err := o.DB.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("begin debit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	balance, err := o.Ledger.TryDebit(ctx, tx, task.AccountID, task.ID, task.QuotedCost)
	if err != nil {
		return decimal.Zero, err
	}
	task.Status = models.TaskStatusDebited
	if err := o.Tasks.CreateTx(ctx, tx, task); err != nil {
		return decimal.Zero, fmt.Errorf("create task: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("commit debit tx: %w", err)
	}
	return balance, nil
}

// submit calls the provider under the bounded-retry policy. Deterministic
// rejections are not retried: the same request fails the same way and every
// attempt is a paid call.
func (o *Orchestrator) submit(ctx context.Context, task *models.GenerationTask, model registry.Model) (*generation.Result, error) {
	var res *generation.Result
	err := o.Retry.Do(ctx, func(ctx context.Context) error {
		var attemptErr error
		res, attemptErr = o.Gen.Submit(ctx, generation.Descriptor{
			TaskID:   task.ID,
			Endpoint: model.Endpoint,
			Prompt:   task.Prompt,
			Width:    task.Width,
			Height:   task.Height,
			Steps:    task.Steps,
		})
		if errors.Is(attemptErr, generation.ErrProviderRejected) {
			return Permanent(attemptErr)
		}
		return attemptErr
	})
	return res, err
}

// compensate refunds the debit after a provider failure. A refund failure is
// the one alert-worthy outcome: money taken with nothing delivered and no
// automatic recovery.
func (o *Orchestrator) compensate(ctx context.Context, task *models.GenerationTask, cause error) error {
	// The cause may be the requester disconnecting; the refund and the status
	// write still have to land.
	ctx = context.WithoutCancel(ctx)

	reason := cause.Error()
	task.ErrorReason = &reason

	if _, err := o.Ledger.Refund(ctx, task.AccountID, task.ID, task.QuotedCost); err != nil && !isDuplicateRefund(err) {
		o.Logger.Error("refund failed after generation failure",
			"alert", true, "task_id", task.ID, "account_id", task.AccountID,
			"amount", task.QuotedCost, "cause", cause, "refund_error", err)
		o.transition(ctx, task, models.TaskStatusFailedUnrefunded)
		return ErrCompensationFailed
	}

	o.Logger.Warn("generation failed, debit refunded", "task_id", task.ID, "error", cause)
	o.transition(ctx, task, models.TaskStatusFailedRefunded)
	return cause
}

// persistBlobs copies the provider result into our blob store and builds the
// thumbnail. Both steps are best-effort: a blob failure falls back to the
// provider's own URL (no refund, no retry), a thumbnail failure leaves the
// thumbnail URL empty.
func (o *Orchestrator) persistBlobs(ctx context.Context, task *models.GenerationTask, res *generation.Result) (string, *string) {
	data, ctype, err := o.Blobs.Fetch(ctx, res.ImageURL)
	if err != nil {
		o.Logger.Warn("fetch of provider image failed, serving provider url", "task_id", task.ID, "error", err)
		return res.ImageURL, nil
	}
	if ctype == "" {
		ctype = res.ContentType
	}

	imageURL := res.ImageURL
	key := fmt.Sprintf("images/%s%s", task.ID, extensionFor(ctype))
	if url, err := o.Blobs.Store(ctx, key, ctype, data); err != nil {
		o.Logger.Warn("blob store failed, serving provider url", "task_id", task.ID, "error", err)
	} else {
		imageURL = url
	}

	var thumbURL *string
	if thumb, err := o.Thumbs.Make(data); err != nil {
		o.Logger.Warn("thumbnail generation failed", "task_id", task.ID, "error", err)
	} else {
		thumbKey := fmt.Sprintf("thumbs/%s.jpg", task.ID)
		if url, err := o.Blobs.Store(ctx, thumbKey, "image/jpeg", thumb); err != nil {
			o.Logger.Warn("thumbnail upload failed", "task_id", task.ID, "error", err)
		} else {
			thumbURL = &url
		}
	}
	return imageURL, thumbURL
}

// transition updates the persisted task status. A failed status write is
// logged but never fails the generation itself.
func (o *Orchestrator) transition(ctx context.Context, task *models.GenerationTask, status string) {
	task.Status = status
	if err := o.Tasks.Update(ctx, task); err != nil {
		o.Logger.Error("task status update failed", "task_id", task.ID, "status", status, "error", err)
	}
}

// isDuplicateRefund treats an idempotency collision as "refund already
// applied": the compensation goal is met, just not by this call.
func isDuplicateRefund(err error) bool {
	return ledger.IsDuplicate(err)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".png"
}
