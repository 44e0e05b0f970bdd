package jobs

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/shareloom/core/internal/models"
	"github.com/shareloom/core/internal/pkg/apperr"
	"github.com/shareloom/core/internal/pkg/objectstore"
	"github.com/shareloom/core/internal/pkg/taskqueue"
)

var pdfMagic = []byte("%PDF")

// PDFHandler verifies the file signature and uploads the document
// verbatim. A bad signature is a terminal failure: no retry can fix the
// bytes, so the temp file is removed immediately.
type PDFHandler struct {
	db    *gorm.DB
	store objectstore.Store
}

func NewPDFHandler(db *gorm.DB, store objectstore.Store) *PDFHandler {
	return &PDFHandler{db: db, store: store}
}

func (h *PDFHandler) Handle(ctx context.Context, job *taskqueue.Job) (interface{}, error) {
	payload, err := decodePayload(job)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(payload.SourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return h.existingResult(payload)
		}
		return nil, fmt.Errorf("read source: %w", err)
	}

	if len(raw) < len(pdfMagic) || !bytes.HasPrefix(raw, pdfMagic) {
		removeTemp(payload.SourcePath)
		return nil, apperr.TerminalJob("file is not a PDF")
	}

	key := fmt.Sprintf("content/%s/%s/document.pdf", payload.ContentID, job.ID)
	url, err := h.store.Put(ctx, key, raw, "application/pdf")
	if err != nil {
		return nil, apperr.Dependency("object store", err)
	}

	err = h.db.WithContext(ctx).
		Model(&models.ContentModel{}).
		Where("id = ?", payload.ContentID).
		UpdateColumn("attachment_url", url).Error
	if err != nil {
		return nil, fmt.Errorf("publish url: %w", err)
	}

	removeTemp(payload.SourcePath)
	return map[string]string{"attachment_url": url}, nil
}

func (h *PDFHandler) existingResult(payload FilePayload) (interface{}, error) {
	var content models.ContentModel
	err := h.db.Select("attachment_url").
		First(&content, "id = ?", payload.ContentID).Error
	if err != nil {
		return nil, err
	}
	if content.AttachmentURL == "" {
		return nil, apperr.TerminalJob("source file lost before processing")
	}
	return map[string]string{"attachment_url": content.AttachmentURL}, nil
}
