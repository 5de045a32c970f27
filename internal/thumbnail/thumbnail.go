package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"path"

	"github.com/disintegration/imaging"

	"ricevute/internal/blob"
)

// Previews fit inside a 150x150 box, re-encoded as JPEG at quality 80.
const (
	maxDimension = 150
	jpegQuality  = 80
	contentType  = "image/jpeg"
)

// Generator produces a bounded-dimension preview of an uploaded receipt and
// stores it next to the original under a thumbnails/ subdirectory.
type Generator struct {
	store blob.Store
}

func NewGenerator(store blob.Store) *Generator {
	return &Generator{store: store}
}

// Generate resizes data, writes the preview to the derived path and returns
// its public URL. Callers treat failure as non-fatal: the expense record is
// still written with an empty thumbnail reference.
func (g *Generator) Generate(ctx context.Context, bucket, srcPath string, data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	preview := Resize(img)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, preview, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}

	thumbPath := Path(srcPath)
	if err := g.store.Upload(ctx, bucket, thumbPath, buf.Bytes(), contentType); err != nil {
		return "", fmt.Errorf("upload thumbnail: %w", err)
	}

	slog.InfoContext(ctx, "Thumbnail generated and uploaded",
		"bucket", bucket,
		"object_path", thumbPath,
		"width", preview.Bounds().Dx(),
		"height", preview.Bounds().Dy())

	return blob.PublicURL(bucket, thumbPath), nil
}

// Resize scales the image down to fit the bounding box, preserving aspect
// ratio. Images already inside the box pass through untouched.
func Resize(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxDimension && b.Dy() <= maxDimension {
		return img
	}
	return imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
}

// Path derives the preview's object path from the original's:
// receipts/u1/photo.jpg -> receipts/u1/thumbnails/photo.jpg_150x150.jpg
func Path(srcPath string) string {
	dir, file := path.Split(srcPath)
	return fmt.Sprintf("%sthumbnails/%s_%dx%d.jpg", dir, file, maxDimension, maxDimension)
}
