package ingest

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"ricevute/internal/blob"
	"ricevute/internal/core"
	"ricevute/internal/extract"
	"ricevute/internal/thumbnail"
)

type fakeIdentity struct {
	emails map[string]string
}

func (f *fakeIdentity) ResolveEmail(_ context.Context, userID string) (string, error) {
	email, ok := f.emails[userID]
	if !ok {
		return "", errors.New("user not found")
	}
	return email, nil
}

type fakeExtractor struct {
	result extract.Result
}

func (f *fakeExtractor) Extract(context.Context, []byte, string) extract.Result {
	return f.result
}

type recordingCreator struct {
	created []core.Expense
	fail    bool
}

func (r *recordingCreator) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	if r.fail {
		return core.Expense{}, errors.New("database unavailable")
	}
	e.ID = "e1"
	r.created = append(r.created, e)
	return e, nil
}

type failingDownloadStore struct {
	blob.Store
}

func (f *failingDownloadStore) Download(context.Context, string, string) ([]byte, error) {
	return nil, errors.New("blob unreachable")
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 300, 200))
	for x := 0; x < 300; x++ {
		img.Set(x, x%200, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func amount(v float64) *float64 { return &v }

func newTestOrchestrator(t *testing.T, store blob.Store, creator *recordingCreator, result extract.Result) *Orchestrator {
	t.Helper()
	return NewOrchestrator(
		store,
		&fakeIdentity{emails: map[string]string{"u42": "u42@example.com"}},
		&fakeExtractor{result: result},
		thumbnail.NewGenerator(store),
		creator,
	)
}

func goodResult() extract.Result {
	return extract.Result{
		FullText: "CAFE RECEIPT",
		Amount:   amount(42.5),
		Date:     time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		Merchant: "Cafe",
		Category: "Meals",
	}
}

func TestHandleObjectFinalizedEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	if err := store.Upload(ctx, "acme-receipts", "receipts/u42/receipt.jpg", pngBytes(t), "image/jpeg"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	creator := &recordingCreator{}
	orch := newTestOrchestrator(t, store, creator, goodResult())

	err := orch.HandleObjectFinalized(ctx, ObjectEvent{
		Bucket:      "acme-receipts",
		Name:        "receipts/u42/receipt.jpg",
		ContentType: "image/jpeg",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(creator.created) != 1 {
		t.Fatalf("expected 1 record, got %d", len(creator.created))
	}
	e := creator.created[0]
	if e.UserID != "u42" {
		t.Errorf("user id = %q", e.UserID)
	}
	if e.UploaderEmail != "u42@example.com" {
		t.Errorf("uploader email = %q", e.UploaderEmail)
	}
	if e.Amount != 42.5 {
		t.Errorf("amount = %v, want 42.5", e.Amount)
	}
	if e.Merchant != "Cafe" || e.Category != "Meals" {
		t.Errorf("merchant/category = %q/%q", e.Merchant, e.Category)
	}
	if want := blob.PublicURL("acme-receipts", "receipts/u42/receipt.jpg"); e.OriginalImageURL != want {
		t.Errorf("original url = %q, want %q", e.OriginalImageURL, want)
	}
	if e.ThumbnailURL == "" {
		t.Error("expected non-empty thumbnail url")
	}
	if e.Status != core.StatusSubmitted {
		t.Errorf("status = %q, want submitted", e.Status)
	}
	if !e.Date.Equal(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v", e.Date)
	}

	// the thumbnail blob itself must exist under the derived path
	if exists, _ := store.Exists(ctx, "acme-receipts", thumbnail.Path("receipts/u42/receipt.jpg")); !exists {
		t.Error("thumbnail blob not written")
	}
}

func TestHandleObjectFinalizedGuards(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		ev   ObjectEvent
	}{
		{"missing name", ObjectEvent{Bucket: "b", ContentType: "image/jpeg"}},
		{"missing bucket", ObjectEvent{Name: "receipts/u1/x.jpg", ContentType: "image/jpeg"}},
		{"not an image", ObjectEvent{Bucket: "b", Name: "receipts/u1/doc.pdf", ContentType: "application/pdf"}},
		{"own thumbnail output", ObjectEvent{Bucket: "b", Name: "receipts/u1/thumbnails/x.webp", ContentType: "image/webp"}},
		{"path outside receipts", ObjectEvent{Bucket: "b", Name: "avatars/u1/x.jpg", ContentType: "image/jpeg"}},
		{"path too short", ObjectEvent{Bucket: "b", Name: "receipts", ContentType: "image/jpeg"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator := &recordingCreator{}
			orch := newTestOrchestrator(t, blob.NewMemoryStore(), creator, goodResult())

			if err := orch.HandleObjectFinalized(ctx, tt.ev); err != nil {
				t.Fatalf("guard must terminate silently, got %v", err)
			}
			if len(creator.created) != 0 {
				t.Errorf("guard must not produce a record, got %d", len(creator.created))
			}
		})
	}
}

func TestHandleObjectFinalizedIdentityFailureNonFatal(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	store.Upload(ctx, "b", "receipts/unknown-user/r.jpg", pngBytes(t), "image/jpeg")
	creator := &recordingCreator{}
	orch := newTestOrchestrator(t, store, creator, goodResult())

	if err := orch.HandleObjectFinalized(ctx, ObjectEvent{Bucket: "b", Name: "receipts/unknown-user/r.jpg", ContentType: "image/jpeg"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(creator.created) != 1 {
		t.Fatalf("record must still be written, got %d", len(creator.created))
	}
	if creator.created[0].UploaderEmail != "" {
		t.Errorf("uploader email must be unset, got %q", creator.created[0].UploaderEmail)
	}
}

func TestHandleObjectFinalizedDownloadFailure(t *testing.T) {
	ctx := context.Background()
	creator := &recordingCreator{}
	orch := newTestOrchestrator(t, &failingDownloadStore{Store: blob.NewMemoryStore()}, creator, goodResult())

	if err := orch.HandleObjectFinalized(ctx, ObjectEvent{Bucket: "b", Name: "receipts/u42/r.jpg", ContentType: "image/jpeg"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(creator.created) != 1 {
		t.Fatalf("record must still be written, got %d", len(creator.created))
	}
	e := creator.created[0]
	if e.Description != extract.ProcessingErrorText {
		t.Errorf("description = %q, want processing-error placeholder", e.Description)
	}
	if e.Amount != 0 || e.ThumbnailURL != "" {
		t.Errorf("expected degraded record, got amount=%v thumbnail=%q", e.Amount, e.ThumbnailURL)
	}
	if e.Date.IsZero() {
		t.Error("date must fall back to ingestion time")
	}
}

func TestHandleObjectFinalizedExtractionFailure(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	store.Upload(ctx, "b", "receipts/u42/r.jpg", pngBytes(t), "image/jpeg")
	creator := &recordingCreator{}
	orch := newTestOrchestrator(t, store, creator, extract.Result{
		FullText:      extract.DefaultText,
		Merchant:      extract.DefaultMerchant,
		Category:      extract.DefaultCategory,
		FailureReason: "backend down",
	})

	if err := orch.HandleObjectFinalized(ctx, ObjectEvent{Bucket: "b", Name: "receipts/u42/r.jpg", ContentType: "image/jpeg"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := creator.created[0]
	if e.Amount != 0 || e.Merchant != extract.DefaultMerchant || e.Category != extract.DefaultCategory {
		t.Errorf("expected defaults, got %+v", e)
	}
	if e.ThumbnailURL == "" {
		t.Error("thumbnail must still be generated when only extraction fails")
	}
}

func TestHandleObjectFinalizedPersistFailure(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	store.Upload(ctx, "b", "receipts/u42/r.jpg", pngBytes(t), "image/jpeg")
	creator := &recordingCreator{fail: true}
	orch := newTestOrchestrator(t, store, creator, goodResult())

	// persistence failure is logged and the event terminates without retry
	if err := orch.HandleObjectFinalized(ctx, ObjectEvent{Bucket: "b", Name: "receipts/u42/r.jpg", ContentType: "image/jpeg"}); err != nil {
		t.Fatalf("persist failure must not surface, got %v", err)
	}
}
