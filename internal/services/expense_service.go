// Package services holds the user-facing operations on expense records:
// listing, field edits, deletion and receipt upload. Record creation is not
// here on purpose, it belongs exclusively to the ingestion worker.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"ricevute/internal/amqp"
	"ricevute/internal/blob"
	"ricevute/internal/core"
)

var ErrUnknownField = errors.New("unknown editable field")

// ExpenseStore is the subset of the repository the service needs.
type ExpenseStore interface {
	GetExpense(ctx context.Context, id string) (core.Expense, error)
	ListExpenses(ctx context.Context, limit int) ([]core.Expense, error)
	ListExpensesBefore(ctx context.Context, createdBefore time.Time, beforeID string, limit int) ([]core.Expense, error)
	UpdateExpenseAmount(ctx context.Context, id string, amount float64) error
	UpdateExpenseDate(ctx context.Context, id string, date time.Time) error
	UpdateExpenseStatus(ctx context.Context, id string, status core.Status) error
	DeleteExpense(ctx context.Context, id string) (core.Expense, error)
	UnprocessedSummary(ctx context.Context) (map[string]float64, error)
}

// Publisher is the messaging surface the service uses. A nil Publisher is
// valid: uploads and deletions then complete without announcing anything,
// which keeps the API usable when the broker is down.
type Publisher interface {
	PublishObjectFinalized(ctx context.Context, msg *amqp.ObjectFinalizedMessage) error
	PublishExpenseDeleted(ctx context.Context, msg *amqp.ExpenseDeletedMessage) error
}

type ExpenseService struct {
	store     ExpenseStore
	blobs     blob.Store
	publisher Publisher
	bucket    string
	pageSize  int
}

func NewExpenseService(store ExpenseStore, blobs blob.Store, publisher Publisher, bucket string, pageSize int) *ExpenseService {
	return &ExpenseService{store: store, blobs: blobs, publisher: publisher, bucket: bucket, pageSize: pageSize}
}

func (s *ExpenseService) Get(ctx context.Context, id string) (core.Expense, error) {
	return s.store.GetExpense(ctx, id)
}

// List returns the newest page of records.
func (s *ExpenseService) List(ctx context.Context) ([]core.Expense, error) {
	return s.store.ListExpenses(ctx, s.pageSize)
}

// ListBefore returns the page following the given keyset boundary.
func (s *ExpenseService) ListBefore(ctx context.Context, createdBefore time.Time, beforeID string) ([]core.Expense, error) {
	return s.store.ListExpensesBefore(ctx, createdBefore, beforeID, s.pageSize)
}

func (s *ExpenseService) PageSize() int {
	return s.pageSize
}

// UpdateField applies a user edit to a single editable field. Validation
// happens before any write: an invalid value leaves the record untouched.
func (s *ExpenseService) UpdateField(ctx context.Context, id, field, value string) (core.Expense, error) {
	switch field {
	case "amount":
		amount, err := core.ParseAmount(value)
		if err != nil {
			return core.Expense{}, err
		}
		if err := s.store.UpdateExpenseAmount(ctx, id, amount); err != nil {
			return core.Expense{}, err
		}
	case "date":
		date, err := core.ParseDate(value)
		if err != nil {
			return core.Expense{}, err
		}
		if err := s.store.UpdateExpenseDate(ctx, id, date.UTC()); err != nil {
			return core.Expense{}, err
		}
	case "status":
		return s.UpdateStatus(ctx, id, value)
	default:
		return core.Expense{}, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return s.store.GetExpense(ctx, id)
}

// UpdateStatus moves a record through the settlement workflow. Legacy labels
// are accepted and stored canonically.
func (s *ExpenseService) UpdateStatus(ctx context.Context, id, value string) (core.Expense, error) {
	status, err := core.ParseStatus(value)
	if err != nil {
		return core.Expense{}, err
	}
	if err := s.store.UpdateExpenseStatus(ctx, id, status); err != nil {
		return core.Expense{}, err
	}
	return s.store.GetExpense(ctx, id)
}

// Delete removes the record, then announces the deletion so the worker can
// clean up the blobs. The announcement is best-effort: the row is already
// gone, so a publish failure is logged and the deletion still succeeds.
func (s *ExpenseService) Delete(ctx context.Context, id string) error {
	snapshot, err := s.store.DeleteExpense(ctx, id)
	if err != nil {
		return err
	}

	if s.publisher == nil {
		return nil
	}
	msg := amqp.NewExpenseDeletedMessage(id, &amqp.ExpenseSnapshot{
		UserID:           snapshot.UserID,
		OriginalImageURL: snapshot.OriginalImageURL,
		ThumbnailURL:     snapshot.ThumbnailURL,
		Status:           string(snapshot.Status),
	})
	if err := s.publisher.PublishExpenseDeleted(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to announce expense deletion",
			"expense_id", id, "error", err)
	}
	return nil
}

func (s *ExpenseService) UnprocessedSummary(ctx context.Context) (map[string]float64, error) {
	return s.store.UnprocessedSummary(ctx)
}

// Upload stores a receipt image under the uploader's prefix and announces
// the finished upload. The object name is prefixed with upload time in unix
// milliseconds so repeated uploads of the same file never collide. progress
// may be nil; when set it receives the running byte count.
func (s *ExpenseService) Upload(ctx context.Context, userID, filename, contentType string, r io.Reader, progress func(written int64)) (string, error) {
	if userID == "" {
		return "", errors.New("missing user id")
	}
	name := path.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == "/" {
		name = "receipt"
	}
	objectPath := fmt.Sprintf("receipts/%s/%d_%s", userID, time.Now().UnixMilli(), name)

	data, err := readAll(r, progress)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}

	if err := s.blobs.Upload(ctx, s.bucket, objectPath, data, contentType); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}

	if s.publisher != nil {
		msg := amqp.NewObjectFinalizedMessage(s.bucket, objectPath, contentType)
		if err := s.publisher.PublishObjectFinalized(ctx, msg); err != nil {
			// the blob is already stored; surface the failure but keep it
			slog.ErrorContext(ctx, "Failed to announce finished upload",
				"object_path", objectPath, "error", err)
		}
	}

	slog.InfoContext(ctx, "Receipt uploaded",
		"user_id", userID, "object_path", objectPath, "bytes", len(data))
	return objectPath, nil
}

func readAll(r io.Reader, progress func(int64)) ([]byte, error) {
	var data []byte
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
			total += int64(n)
			if progress != nil {
				progress(total)
			}
		}
		if err == io.EOF {
			return data, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
