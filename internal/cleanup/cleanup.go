package cleanup

import (
	"context"
	"log/slog"

	"ricevute/internal/blob"
)

// Remover deletes stored receipt images referenced by download URL. Every
// failure mode is a logged no-op: cleanup runs after the owning record is
// already gone, so there is nothing useful to fail into. Safe to call twice
// on the same URL; the second call finds the blob absent and does nothing.
type Remover struct {
	store blob.Store
}

func NewRemover(store blob.Store) *Remover {
	return &Remover{store: store}
}

// RemoveImage deletes the blob behind imageURL if it exists.
func (r *Remover) RemoveImage(ctx context.Context, imageURL string) {
	path, okPath := blob.ParsePath(imageURL)
	bucket, okBucket := blob.ParseBucket(imageURL)
	if !okPath || !okBucket {
		// Dominant failure mode: URL shape assumptions drifted.
		slog.WarnContext(ctx, "Could not parse storage path or bucket from URL",
			"image_url", imageURL)
		return
	}

	exists, err := r.store.Exists(ctx, bucket, path)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to check blob existence",
			"bucket", bucket, "object_path", path, "error", err)
		return
	}
	if !exists {
		slog.InfoContext(ctx, "Blob already absent, skipping deletion",
			"bucket", bucket, "object_path", path)
		return
	}

	if err := r.store.Delete(ctx, bucket, path); err != nil {
		slog.ErrorContext(ctx, "Failed to delete blob",
			"bucket", bucket, "object_path", path, "error", err)
		return
	}

	slog.InfoContext(ctx, "Deleted blob",
		"bucket", bucket, "object_path", path)
}
