// Package version keeps the append-only history of content records. Every
// committed update leaves exactly one snapshot of the pre-update state, so
// full history is reconstructable from version 1 forward plus the current
// row.
package version

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/shareloom/core/internal/models"
	"github.com/shareloom/core/internal/pkg/apperr"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// CreateSnapshot appends a snapshot of content's current (pre-update)
// editable fields. It must run on the caller's transaction, the same one
// that mutates the content row, while that row is locked; the unique
// (content_id, version_number) index turns any remaining race into a
// visible conflict instead of a silent collision.
func (s *Service) CreateSnapshot(tx *gorm.DB, content *models.ContentModel, editorID string) (*models.VersionModel, error) {
	var maxVersion int
	err := tx.Model(&models.VersionModel{}).
		Where("content_id = ?", content.ID).
		Select("COALESCE(MAX(version_number), 0)").
		Scan(&maxVersion).Error
	if err != nil {
		return nil, err
	}

	snapshot := &models.VersionModel{
		ContentID:     content.ID,
		VersionNumber: maxVersion + 1,
		Title:         content.Title,
		Text:          content.Text,
		Tags:          content.Tags,
		Visibility:    string(content.Visibility),
		Status:        string(content.Status),
		EditorID:      editorID,
	}
	if err := tx.Create(snapshot).Error; err != nil {
		return nil, err
	}
	return snapshot, nil
}

// ListByContent returns snapshots for a content id, ascending by version
// number. A non-nil versionNumber narrows to that single snapshot.
func (s *Service) ListByContent(ctx context.Context, contentID string, versionNumber *int) ([]models.VersionModel, error) {
	q := s.db.WithContext(ctx).
		Where("content_id = ?", contentID).
		Order("version_number ASC")
	if versionNumber != nil {
		q = q.Where("version_number = ?", *versionNumber)
	}

	var versions []models.VersionModel
	if err := q.Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

// Delete removes one snapshot. Only the content's author or an admin may
// prune history.
func (s *Service) Delete(ctx context.Context, contentID string, versionNumber int, actorID string, isAdmin bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var content models.ContentModel
		if err := tx.Select("id", "author_id").First(&content, "id = ?", contentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("content")
			}
			return err
		}
		if content.AuthorID != actorID && !isAdmin {
			return apperr.Forbidden("only the author or an admin may delete versions")
		}

		res := tx.Where("content_id = ? AND version_number = ?", contentID, versionNumber).
			Delete(&models.VersionModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("version")
		}
		return nil
	})
}

// DeleteAllForContent cascades with its parent: called from the content
// orchestrator's delete transaction.
func (s *Service) DeleteAllForContent(tx *gorm.DB, contentID string) error {
	return tx.Unscoped().Where("content_id = ?", contentID).Delete(&models.VersionModel{}).Error
}
