// Package comment implements threaded replies on content records. Replies
// form a tree through ParentID; fetch reassembles the tree in memory from
// one flat query instead of recursive SQL.
package comment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shareloom/core/internal/models"
	"github.com/shareloom/core/internal/modules/identity"
	"github.com/shareloom/core/internal/pkg/apperr"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// CreateDTO carries a new comment or reply.
type CreateDTO struct {
	Author   string  `json:"author" binding:"required"`
	Mail     string  `json:"mail"`
	Text     string  `json:"text" binding:"required"`
	ParentID *string `json:"parent_id"`
}

// Create inserts a comment under the given content. A reply's parent must
// exist and belong to the same content record.
func (s *Service) Create(ctx context.Context, contentID string, ident identity.Identity, dto CreateDTO) (*models.CommentModel, error) {
	comment := &models.CommentModel{
		ContentID: contentID,
		Author:    dto.Author,
		Mail:      dto.Mail,
		Text:      dto.Text,
		ParentID:  dto.ParentID,
	}
	comment.ID = uuid.New().String() // assigned up front so the cycle check can see it
	if ident.IsAuthenticated() {
		uid := ident.UserID
		comment.UserID = &uid
	} else {
		comment.IP = ident.Fingerprint
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.ContentModel{}).Where("id = ?", contentID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("content")
		}

		if dto.ParentID != nil {
			var parent models.CommentModel
			err := tx.Select("id", "content_id", "parent_id").First(&parent, "id = ?", *dto.ParentID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("parent comment")
			}
			if err != nil {
				return err
			}
			if parent.ContentID != contentID {
				return apperr.Validation("parent comment belongs to a different content record")
			}
			if err := ensureAcyclic(tx, comment.ID, &parent); err != nil {
				return err
			}
		}

		return tx.Create(comment).Error
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// ListThreaded returns the comment tree for a content record, roots in
// creation order, children nested under their parents.
func (s *Service) ListThreaded(ctx context.Context, contentID string) ([]models.CommentModel, error) {
	var flat []models.CommentModel
	err := s.db.WithContext(ctx).
		Where("content_id = ? AND state <> ?", contentID, models.CommentJunk).
		Order("created_at ASC").
		Find(&flat).Error
	if err != nil {
		return nil, err
	}
	return buildTree(flat), nil
}

// Delete removes a comment and its entire reply subtree. Comment owner,
// content author, or admin.
func (s *Service) Delete(ctx context.Context, contentID, commentID, actorID string, isAdmin bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comment models.CommentModel
		err := tx.First(&comment, "id = ? AND content_id = ?", commentID, contentID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("comment")
		}
		if err != nil {
			return err
		}

		allowed := isAdmin || (comment.UserID != nil && *comment.UserID == actorID)
		if !allowed {
			var content models.ContentModel
			if err := tx.Select("author_id").First(&content, "id = ?", contentID).Error; err != nil {
				return err
			}
			allowed = content.AuthorID == actorID
		}
		if !allowed {
			return apperr.Forbidden("not allowed to delete this comment")
		}

		ids := []string{commentID}
		frontier := []string{commentID}
		for len(frontier) > 0 {
			var children []string
			err := tx.Model(&models.CommentModel{}).
				Where("parent_id IN ?", frontier).
				Pluck("id", &children).Error
			if err != nil {
				return err
			}
			ids = append(ids, children...)
			frontier = children
		}
		return tx.Unscoped().Delete(&models.CommentModel{}, "id IN ?", ids).Error
	})
}

// MarkState flips the moderation state (admin only, enforced by routing).
func (s *Service) MarkState(ctx context.Context, commentID string, state models.CommentState) error {
	res := s.db.WithContext(ctx).Model(&models.CommentModel{}).
		Where("id = ?", commentID).
		Update("state", state)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("comment")
	}
	return nil
}

// ensureAcyclic walks the parent chain from parent to the root and rejects
// the insert if the chain would contain the new node or loops on itself.
func ensureAcyclic(tx *gorm.DB, newID string, parent *models.CommentModel) error {
	seen := map[string]bool{newID: true}
	current := parent
	for {
		if seen[current.ID] {
			return apperr.Validation("comment cannot be its own ancestor")
		}
		seen[current.ID] = true
		if current.ParentID == nil {
			return nil
		}
		var next models.CommentModel
		err := tx.Select("id", "parent_id").First(&next, "id = ?", *current.ParentID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		current = &next
	}
}

// buildTree nests children under parents. A row whose parent is missing
// from the result set (pruned or junk) is promoted to a root so it stays
// reachable.
func buildTree(flat []models.CommentModel) []models.CommentModel {
	byID := make(map[string]bool, len(flat))
	children := make(map[string][]*models.CommentModel)
	for i := range flat {
		flat[i].Children = nil
		byID[flat[i].ID] = true
	}

	var rootPtrs []*models.CommentModel
	for i := range flat {
		node := &flat[i]
		if node.ParentID != nil && byID[*node.ParentID] {
			children[*node.ParentID] = append(children[*node.ParentID], node)
			continue
		}
		rootPtrs = append(rootPtrs, node)
	}

	var materialize func(n *models.CommentModel) models.CommentModel
	materialize = func(n *models.CommentModel) models.CommentModel {
		out := *n
		for _, child := range children[n.ID] {
			out.Children = append(out.Children, materialize(child))
		}
		return out
	}

	roots := make([]models.CommentModel, 0, len(rootPtrs))
	for _, r := range rootPtrs {
		roots = append(roots, materialize(r))
	}
	return roots
}
