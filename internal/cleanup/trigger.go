package cleanup

import (
	"context"
	"log/slog"

	"ricevute/internal/amqp"
)

// HandleExpenseDeleted runs blob cleanup for a deleted expense record. The
// message carries the record's last snapshot; a missing snapshot (race with
// a concurrent delete) or a record without an original-image reference is a
// no-op. The original and thumbnail cleanups are independent: a failure of
// one never blocks the other, and orphaned blobs are an accepted leak.
//
// Always returns nil: the dispatcher redelivers at least once, and RemoveImage
// is idempotent, so there is never a reason to surface an error here.
func (r *Remover) HandleExpenseDeleted(ctx context.Context, msg *amqp.ExpenseDeletedMessage) error {
	if msg.Snapshot == nil {
		slog.InfoContext(ctx, "Deleted expense has no snapshot, skipping image cleanup",
			"expense_id", msg.ExpenseID)
		return nil
	}

	if msg.Snapshot.OriginalImageURL == "" {
		slog.InfoContext(ctx, "Deleted expense has no original image URL, skipping image cleanup",
			"expense_id", msg.ExpenseID)
		return nil
	}

	r.RemoveImage(ctx, msg.Snapshot.OriginalImageURL)

	if msg.Snapshot.ThumbnailURL != "" {
		r.RemoveImage(ctx, msg.Snapshot.ThumbnailURL)
	}

	return nil
}
