package jobs

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"testing"

	"github.com/shareloom/core/internal/models"
	"github.com/shareloom/core/internal/pkg/apperr"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestImageResizeAndPublish(t *testing.T) {
	db := jobsTestDB(t)
	content := seedJobContent(t, db)
	store := newFakeStore()
	h := NewImageHandler(db, store)

	path := writeTemp(t, "big.png", encodePNG(t, 4096, 1024))
	_, err := h.Handle(context.Background(), makeJob(t, TypeImage, content.ID, path))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	coverKey := fmt.Sprintf("content/%s/job-abc/cover.jpg", content.ID)
	thumbKey := fmt.Sprintf("content/%s/job-abc/thumb.jpg", content.ID)

	cover, err := jpeg.Decode(bytes.NewReader(store.objects[coverKey]))
	if err != nil {
		t.Fatalf("decode cover: %v", err)
	}
	if cover.Bounds().Dx() != maxImageDimension {
		t.Fatalf("cover width=%d, want capped at %d", cover.Bounds().Dx(), maxImageDimension)
	}
	if cover.Bounds().Dy() != 512 {
		t.Fatalf("cover height=%d, want aspect preserved (512)", cover.Bounds().Dy())
	}

	thumb, err := jpeg.Decode(bytes.NewReader(store.objects[thumbKey]))
	if err != nil {
		t.Fatalf("decode thumb: %v", err)
	}
	if thumb.Bounds().Dx() != thumbDimension {
		t.Fatalf("thumb width=%d, want %d", thumb.Bounds().Dx(), thumbDimension)
	}

	var row models.ContentModel
	if err := db.First(&row, "id = ?", content.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if row.CoverURL != store.PublicURL(coverKey) || row.ThumbnailURL != store.PublicURL(thumbKey) {
		t.Fatalf("urls: cover=%q thumb=%q", row.CoverURL, row.ThumbnailURL)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatal("temp file must be removed after success")
	}
}

func TestImageSmallInputNotUpscaled(t *testing.T) {
	db := jobsTestDB(t)
	content := seedJobContent(t, db)
	store := newFakeStore()
	h := NewImageHandler(db, store)

	path := writeTemp(t, "small.png", encodePNG(t, 100, 80))
	if _, err := h.Handle(context.Background(), makeJob(t, TypeImage, content.ID, path)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	coverKey := fmt.Sprintf("content/%s/job-abc/cover.jpg", content.ID)
	cover, err := jpeg.Decode(bytes.NewReader(store.objects[coverKey]))
	if err != nil {
		t.Fatalf("decode cover: %v", err)
	}
	if cover.Bounds().Dx() != 100 || cover.Bounds().Dy() != 80 {
		t.Fatalf("small image was rescaled to %v", cover.Bounds())
	}
}

func TestImageUndecodableIsTerminal(t *testing.T) {
	db := jobsTestDB(t)
	content := seedJobContent(t, db)
	store := newFakeStore()
	h := NewImageHandler(db, store)

	path := writeTemp(t, "noise.png", []byte("definitely not an image"))
	_, err := h.Handle(context.Background(), makeJob(t, TypeImage, content.ID, path))
	if apperr.CodeOf(err) != apperr.CodeTerminalJob {
		t.Fatalf("err=%v, want TERMINAL_JOB", err)
	}
	if store.puts != 0 {
		t.Fatalf("puts=%d, nothing must be uploaded", store.puts)
	}
}

func TestImageRedeliveryAfterSuccessIsIdempotent(t *testing.T) {
	db := jobsTestDB(t)
	content := seedJobContent(t, db)
	store := newFakeStore()
	h := NewImageHandler(db, store)
	ctx := context.Background()

	path := writeTemp(t, "pic.png", encodePNG(t, 640, 480))
	job := makeJob(t, TypeImage, content.ID, path)
	if _, err := h.Handle(ctx, job); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	putsAfterFirst := store.puts

	job.AttemptsMade = 2
	result, err := h.Handle(ctx, job)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	urls := result.(map[string]string)
	if urls["cover_url"] == "" || urls["thumbnail_url"] == "" {
		t.Fatalf("redelivery lost published urls: %v", result)
	}
	if store.puts != putsAfterFirst {
		t.Fatalf("puts=%d, redelivery with the file gone must not re-upload", store.puts)
	}
}
