// Package content is the write orchestrator for content records. Every
// mutation runs in one database transaction; caches are invalidated only
// after the transaction commits, and file materialization is delegated to
// the job pipeline (or an inline adapter) so the record row never carries
// a partially written URL.
package content

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shareloom/core/internal/models"
	"github.com/shareloom/core/internal/modules/jobs"
	"github.com/shareloom/core/internal/modules/version"
	"github.com/shareloom/core/internal/pkg/apperr"
	"github.com/shareloom/core/internal/pkg/cachekit"
)

type Service struct {
	db           *gorm.DB
	versions     *version.Service
	cache        *cachekit.Coordinator
	materializer jobs.Materializer
	log          *zap.Logger
}

func NewService(db *gorm.DB, versions *version.Service, cache *cachekit.Coordinator, materializer jobs.Materializer, log *zap.Logger) *Service {
	return &Service{
		db:           db,
		versions:     versions,
		cache:        cache,
		materializer: materializer,
		log:          log,
	}
}

// CreateResult reports the persisted record plus the materialization job,
// if the create carried a staged file.
type CreateResult struct {
	Content *models.ContentModel `json:"content"`
	JobID   string               `json:"job_id,omitempty"`
}

// Create persists a new record. A semantic-hash duplicate is rejected
// before insert; the unique hash index catches the concurrent-create race.
func (s *Service) Create(ctx context.Context, actorID string, dto CreateDTO) (*CreateResult, error) {
	if dto.Visibility != "" && !validVisibility(dto.Visibility) {
		return nil, apperr.Validation("unknown visibility %q", dto.Visibility)
	}

	record := &models.ContentModel{
		AuthorID:   actorID,
		Title:      dto.Title,
		Text:       dto.Text,
		Tags:       dto.Tags,
		Visibility: dto.visibility(),
		Status:     models.StatusPublished,
		Hash:       models.SemanticHash(dto.Title, dto.Text, dto.Tags),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.ContentModel{}).Where("hash = ?", record.Hash).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.DuplicateContent()
		}
		if err := tx.Create(record).Error; err != nil {
			if isUniqueViolation(err) {
				return apperr.DuplicateContent()
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateAfterWrite(ctx, record.ID)

	result := &CreateResult{Content: record}
	if dto.FilePath != "" {
		jobID, err := s.materialize(ctx, actorID, record.ID, dto.FileKind, dto.FilePath)
		if err != nil {
			// the record itself committed; surface the job failure
			return nil, err
		}
		result.JobID = jobID
		// sync adapters write URLs before returning; pick them up
		if err := s.db.WithContext(ctx).First(result.Content, "id = ?", record.ID).Error; err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Update applies a partial update as the author. The pre-update state is
// snapshotted into the version store inside the same transaction, under
// the content row lock.
func (s *Service) Update(ctx context.Context, id, actorID string, dto UpdateDTO) (*models.ContentModel, error) {
	if dto.Visibility != nil && !validVisibility(*dto.Visibility) {
		return nil, apperr.Validation("unknown visibility %q", *dto.Visibility)
	}
	if dto.Status != nil && !validStatus(*dto.Status) {
		return nil, apperr.Validation("unknown status %q", *dto.Status)
	}

	var updated models.ContentModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := lockContent(tx, id)
		if err != nil {
			return err
		}
		if record.AuthorID != actorID {
			return apperr.Forbidden("only the author may edit this content")
		}

		if _, err := s.versions.CreateSnapshot(tx, record, actorID); err != nil {
			return err
		}

		if dto.Title != nil {
			record.Title = *dto.Title
		}
		if dto.Text != nil {
			record.Text = *dto.Text
		}
		if dto.Tags != nil {
			record.Tags = *dto.Tags
		}
		if dto.Visibility != nil {
			record.Visibility = models.ContentVisibility(*dto.Visibility)
		}
		if dto.Status != nil {
			record.Status = models.ContentStatus(*dto.Status)
		}
		record.Hash = models.SemanticHash(record.Title, record.Text, record.Tags)

		if err := tx.Save(record).Error; err != nil {
			if isUniqueViolation(err) {
				return apperr.DuplicateContent()
			}
			return err
		}
		updated = *record
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateAfterWrite(ctx, id)
	return &updated, nil
}

// Delete removes a record and everything hanging off it. Author or admin.
func (s *Service) Delete(ctx context.Context, id, actorID string, isAdmin bool) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := lockContent(tx, id)
		if err != nil {
			return err
		}
		if record.AuthorID != actorID && !isAdmin {
			return apperr.Forbidden("only the author or an admin may delete this content")
		}

		if err := s.versions.DeleteAllForContent(tx, id); err != nil {
			return err
		}
		if err := tx.Unscoped().Where("content_id = ?", id).Delete(&models.InteractionModel{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("content_id = ?", id).Delete(&models.CommentModel{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&models.ContentModel{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}

	s.invalidateAfterWrite(ctx, id)
	return nil
}

// AttachFile stages a new materialization job for an existing record.
func (s *Service) AttachFile(ctx context.Context, id, actorID, kind, path string) (string, error) {
	var record models.ContentModel
	err := s.db.WithContext(ctx).Select("id", "author_id").First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperr.NotFound("content")
	}
	if err != nil {
		return "", err
	}
	if record.AuthorID != actorID {
		return "", apperr.Forbidden("only the author may attach files")
	}
	return s.materialize(ctx, actorID, id, kind, path)
}

func (s *Service) materialize(ctx context.Context, actorID, contentID, kind, path string) (string, error) {
	jobType, err := jobTypeFor(kind)
	if err != nil {
		return "", err
	}
	jobID, err := s.materializer.Materialize(ctx, jobType, jobs.FilePayload{
		SourcePath: path,
		ActorID:    actorID,
		ContentID:  contentID,
	})
	if err != nil {
		return "", err
	}
	// the job writes URLs back; the single-record cache entry is now stale
	s.cache.Invalidate(ctx, cachekit.ContentKey(contentID))
	return jobID, nil
}

func jobTypeFor(kind string) (string, error) {
	switch kind {
	case "image":
		return jobs.TypeImage, nil
	case "pdf":
		return jobs.TypePDF, nil
	default:
		return "", apperr.Validation("unknown file kind %q", kind)
	}
}

// invalidateAfterWrite drops every cache entry a content mutation can make
// stale. Runs after commit; failures only widen staleness up to the TTL.
func (s *Service) invalidateAfterWrite(ctx context.Context, id string) {
	s.cache.Invalidate(ctx, cachekit.ContentKey(id), cachekit.KeyGlobalStats)
	s.cache.InvalidatePrefix(ctx, cachekit.PrefixContentList)
}

// lockContent loads the content row under FOR UPDATE on backends that
// support it. SQLite (tests) serializes writers already.
func lockContent(tx *gorm.DB, id string) (*models.ContentModel, error) {
	q := tx.Where("id = ?", id)
	if tx.Dialector.Name() == "mysql" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var record models.ContentModel
	err := q.First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("content")
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
