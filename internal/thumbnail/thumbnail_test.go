package thumbnail

import (
	"bytes"
	"context"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"strings"
	"testing"

	"ricevute/internal/blob"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestPath(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"receipts/u1/photo.jpg", "receipts/u1/thumbnails/photo.jpg_150x150.jpg"},
		{"receipts/u1/1700000000_scan.png", "receipts/u1/thumbnails/1700000000_scan.png_150x150.jpg"},
		{"single.jpg", "thumbnails/single.jpg_150x150.jpg"},
	}
	for _, tt := range tests {
		if got := Path(tt.src); got != tt.want {
			t.Errorf("Path(%q) = %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestResizeBoundsLargeImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 600, 300))
	out := Resize(img)

	if out.Bounds().Dx() > 150 || out.Bounds().Dy() > 150 {
		t.Fatalf("thumbnail exceeds bounding box: %dx%d", out.Bounds().Dx(), out.Bounds().Dy())
	}
	// 2:1 aspect ratio preserved
	if out.Bounds().Dx() != 150 || out.Bounds().Dy() != 75 {
		t.Errorf("expected 150x75, got %dx%d", out.Bounds().Dx(), out.Bounds().Dy())
	}
}

func TestResizeNeverUpscales(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 50, 40))
	out := Resize(img)

	if out.Bounds().Dx() != 50 || out.Bounds().Dy() != 40 {
		t.Errorf("small image must pass through, got %dx%d", out.Bounds().Dx(), out.Bounds().Dy())
	}
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	gen := NewGenerator(store)

	url, err := gen.Generate(ctx, "acme-receipts", "receipts/u1/photo.png", encodePNG(t, 400, 400))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantPath := "receipts/u1/thumbnails/photo.png_150x150.jpg"
	if !strings.Contains(url, wantPath) {
		t.Errorf("url %q does not reference %q", url, wantPath)
	}
	if gotPath, ok := blob.ParsePath(url); !ok || gotPath != wantPath {
		t.Errorf("returned url does not parse back to the thumbnail path: %q", url)
	}

	exists, err := store.Exists(ctx, "acme-receipts", wantPath)
	if err != nil || !exists {
		t.Fatalf("thumbnail not stored (exists=%v err=%v)", exists, err)
	}
	if ct := store.ContentType("acme-receipts", wantPath); ct != "image/jpeg" {
		t.Errorf("content type = %q, want image/jpeg", ct)
	}

	data, err := store.Download(ctx, "acme-receipts", wantPath)
	if err != nil {
		t.Fatalf("download thumbnail: %v", err)
	}
	decoded, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("stored thumbnail is not a decodable image: %v", err)
	}
	if decoded.Bounds().Dx() != 150 || decoded.Bounds().Dy() != 150 {
		t.Errorf("thumbnail size = %dx%d, want 150x150", decoded.Bounds().Dx(), decoded.Bounds().Dy())
	}
}

func TestGenerateRejectsGarbage(t *testing.T) {
	gen := NewGenerator(blob.NewMemoryStore())
	if _, err := gen.Generate(context.Background(), "b", "receipts/u1/x.jpg", []byte("not an image")); err == nil {
		t.Fatal("expected decode error")
	}
}
