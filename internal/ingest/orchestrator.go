package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"ricevute/internal/blob"
	"ricevute/internal/core"
	"ricevute/internal/extract"
	"ricevute/internal/thumbnail"
)

// ObjectEvent is one new-object-finalized trigger payload.
type ObjectEvent struct {
	Bucket      string
	Name        string
	ContentType string
}

// IdentityResolver looks up the uploader's email by user id.
type IdentityResolver interface {
	ResolveEmail(ctx context.Context, userID string) (string, error)
}

// ExpenseCreator persists one expense record.
type ExpenseCreator interface {
	CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
}

// Orchestrator turns one uploaded receipt into one expense record. Invoked
// at least once per upload by the trigger dispatcher; every failure mode is
// terminal for the invocation (no internal retry) and none of the side
// effects are transactional with another.
type Orchestrator struct {
	store      blob.Store
	identity   IdentityResolver
	extractor  extract.Extractor
	thumbnails *thumbnail.Generator
	expenses   ExpenseCreator
}

func NewOrchestrator(store blob.Store, identity IdentityResolver, extractor extract.Extractor, thumbnails *thumbnail.Generator, expenses ExpenseCreator) *Orchestrator {
	return &Orchestrator{
		store:      store,
		identity:   identity,
		extractor:  extractor,
		thumbnails: thumbnails,
		expenses:   expenses,
	}
}

// HandleObjectFinalized runs the ingestion pipeline for one upload event.
// It always reports a neutral outcome to the dispatcher: a guard rejection,
// a degraded extraction or even a failed persist must not trigger redelivery
// storms (the event would fail the same way again).
func (o *Orchestrator) HandleObjectFinalized(ctx context.Context, ev ObjectEvent) error {
	if ev.Name == "" || ev.Bucket == "" {
		slog.InfoContext(ctx, "No object name or bucket on event, skipping")
		return nil
	}
	if !strings.HasPrefix(ev.ContentType, "image/") {
		slog.InfoContext(ctx, "Object is not an image, skipping",
			"object_path", ev.Name, "content_type", ev.ContentType)
		return nil
	}
	// re-entrancy guard: our own thumbnail writes trigger this handler too
	if strings.Contains(ev.Name, "thumbnails/") {
		slog.InfoContext(ctx, "Object is a generated thumbnail, skipping",
			"object_path", ev.Name)
		return nil
	}

	segments := strings.Split(ev.Name, "/")
	if len(segments) < 2 || segments[0] != "receipts" {
		slog.ErrorContext(ctx, "Object not in expected receipts/{userId} layout, skipping",
			"object_path", ev.Name)
		return nil
	}
	userID := segments[1]

	slog.InfoContext(ctx, "Processing uploaded receipt",
		"bucket", ev.Bucket, "object_path", ev.Name, "user_id", userID)

	uploaderEmail := ""
	if email, err := o.identity.ResolveEmail(ctx, userID); err != nil {
		slog.ErrorContext(ctx, "Identity lookup failed, continuing without uploader email",
			"user_id", userID, "error", err)
	} else {
		uploaderEmail = email
	}

	result := extract.Result{
		FullText: extract.DefaultText,
		Merchant: extract.DefaultMerchant,
		Category: extract.DefaultCategory,
	}
	thumbnailURL := ""

	data, err := o.store.Download(ctx, ev.Bucket, ev.Name)
	if err != nil {
		// no bytes, no enrichment: record still gets written, with the
		// processing-error placeholder as its description
		slog.ErrorContext(ctx, "Failed to download source image",
			"bucket", ev.Bucket, "object_path", ev.Name, "error", err)
		result.FullText = extract.ProcessingErrorText
		result.FailureReason = err.Error()
	} else {
		// thumbnailing and extraction are independent over the same bytes
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			url, err := o.thumbnails.Generate(gctx, ev.Bucket, ev.Name, data)
			if err != nil {
				slog.ErrorContext(gctx, "Thumbnail generation failed, continuing without preview",
					"object_path", ev.Name, "error", err)
				return nil
			}
			thumbnailURL = url
			return nil
		})
		g.Go(func() error {
			res := o.extractor.Extract(gctx, data, ev.ContentType)
			if res.FailureReason != "" {
				slog.ErrorContext(gctx, "Extraction degraded to defaults",
					"object_path", ev.Name, "reason", res.FailureReason)
			}
			result = res
			return nil
		})
		// both goroutines settle before the record write; neither returns
		// an error, degraded values are the failure mode
		_ = g.Wait()
	}

	amount := 0.0
	if result.Amount != nil {
		amount = *result.Amount
	}
	date := result.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	expense := core.Expense{
		UserID:           userID,
		UploaderEmail:    uploaderEmail,
		Amount:           amount,
		Date:             date,
		Merchant:         result.Merchant,
		Category:         result.Category,
		Description:      result.FullText,
		OriginalImageURL: blob.PublicURL(ev.Bucket, ev.Name),
		ThumbnailURL:     thumbnailURL,
		Status:           core.StatusSubmitted,
	}

	created, err := o.expenses.CreateExpense(ctx, expense)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to persist expense record",
			"object_path", ev.Name, "user_id", userID, "error", err)
		return nil
	}

	slog.InfoContext(ctx, "Expense record created from receipt",
		"expense_id", created.ID,
		"user_id", userID,
		"amount", created.Amount,
		"merchant", created.Merchant,
		"has_thumbnail", created.ThumbnailURL != "")

	return nil
}
