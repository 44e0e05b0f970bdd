package jobs

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
	"gorm.io/gorm"

	"github.com/shareloom/core/internal/models"
	"github.com/shareloom/core/internal/pkg/apperr"
	"github.com/shareloom/core/internal/pkg/objectstore"
	"github.com/shareloom/core/internal/pkg/taskqueue"
)

const (
	maxImageDimension = 2048
	thumbDimension    = 320
	jpegQuality       = 85
)

// ImageHandler resizes an uploaded image to a bounded dimension, renders a
// thumbnail, uploads both, and publishes the URLs onto the content record.
type ImageHandler struct {
	db    *gorm.DB
	store objectstore.Store
}

func NewImageHandler(db *gorm.DB, store objectstore.Store) *ImageHandler {
	return &ImageHandler{db: db, store: store}
}

func (h *ImageHandler) Handle(ctx context.Context, job *taskqueue.Job) (interface{}, error) {
	payload, err := decodePayload(job)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(payload.SourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			// redelivery after a success that already cleaned up
			return h.existingResult(payload)
		}
		return nil, fmt.Errorf("read source: %w", err)
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, apperr.TerminalJob(fmt.Sprintf("not a decodable image: %v", err))
	}

	cover, err := encodeJPEG(scaleDown(src, maxImageDimension))
	if err != nil {
		return nil, err
	}
	thumb, err := encodeJPEG(scaleDown(src, thumbDimension))
	if err != nil {
		return nil, err
	}

	// keys derive from the job id, so redelivered attempts overwrite their
	// own objects instead of accumulating
	coverKey := fmt.Sprintf("content/%s/%s/cover.jpg", payload.ContentID, job.ID)
	thumbKey := fmt.Sprintf("content/%s/%s/thumb.jpg", payload.ContentID, job.ID)

	coverURL, err := h.store.Put(ctx, coverKey, cover, "image/jpeg")
	if err != nil {
		return nil, apperr.Dependency("object store", err)
	}
	thumbURL, err := h.store.Put(ctx, thumbKey, thumb, "image/jpeg")
	if err != nil {
		return nil, apperr.Dependency("object store", err)
	}

	// the whole URL pair is written in one statement: never a partial pair
	err = h.db.WithContext(ctx).
		Model(&models.ContentModel{}).
		Where("id = ?", payload.ContentID).
		Updates(map[string]interface{}{
			"cover_url":     coverURL,
			"thumbnail_url": thumbURL,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("publish urls: %w", err)
	}

	removeTemp(payload.SourcePath)
	return map[string]string{"cover_url": coverURL, "thumbnail_url": thumbURL}, nil
}

// existingResult reports the already-published URLs when a redelivered job
// finds its temp file gone.
func (h *ImageHandler) existingResult(payload FilePayload) (interface{}, error) {
	var content models.ContentModel
	err := h.db.Select("cover_url", "thumbnail_url").
		First(&content, "id = ?", payload.ContentID).Error
	if err != nil {
		return nil, err
	}
	if content.CoverURL == "" {
		return nil, apperr.TerminalJob("source file lost before processing")
	}
	return map[string]string{"cover_url": content.CoverURL, "thumbnail_url": content.ThumbnailURL}, nil
}

// scaleDown caps the longest edge at maxDim, preserving aspect ratio.
// Images already inside the bound are returned untouched.
func scaleDown(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return src
	}

	var nw, nh int
	if w >= h {
		nw = maxDim
		nh = h * maxDim / w
	} else {
		nh = maxDim
		nw = w * maxDim / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
