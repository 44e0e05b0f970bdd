// Package interaction is the ledger of like/view events and the keeper of
// their per-actor rate windows.
package interaction

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shareloom/core/internal/models"
	"github.com/shareloom/core/internal/modules/identity"
	"github.com/shareloom/core/internal/pkg/apperr"
	"github.com/shareloom/core/internal/pkg/metrics"
)

const (
	// LikeWindow is the minimum gap between two counted likes from the
	// same actor on the same content.
	LikeWindow = 24 * time.Hour
	// ViewWindow is the same for views.
	ViewWindow = time.Hour

	// retention for purged events: anything older than this contributes
	// to no rate window and only to all-time counts, which are also kept
	// denormalized where O(1) reads matter.
	purgeRetention = 90 * 24 * time.Hour
)

// Service records interaction events. The check-then-insert runs inside a
// single transaction with a row lock on the actor's latest event, so two
// concurrent requests from the same actor cannot both pass the window
// check.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// LikeResult is the outcome of RecordLike.
type LikeResult struct {
	Accepted   bool      `json:"accepted"`
	TotalLikes int64     `json:"total_likes"`
	RetryAfter time.Time `json:"retry_after,omitempty"`
}

// ViewResult is the outcome of RecordView.
type ViewResult struct {
	IsNewView  bool `json:"is_new_view"`
	TotalViews int  `json:"total_views"`
}

// RecordLike records a like unless the actor's 24-hour window is still
// open. The public like total is all-time: the window throttles the actor,
// it does not expire their contribution to the count.
func (s *Service) RecordLike(ctx context.Context, contentID string, ident identity.Identity) (*LikeResult, error) {
	var result LikeResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureContentExists(tx, contentID); err != nil {
			return err
		}

		last, err := latestEventLocked(tx, contentID, models.InteractionLike, ident)
		if err != nil {
			return err
		}

		now := time.Now()
		if last != nil && now.Sub(last.CreatedAt) < LikeWindow {
			result.Accepted = false
			result.RetryAfter = last.CreatedAt.Add(LikeWindow)
			if err := countEvents(tx, contentID, models.InteractionLike, &result.TotalLikes); err != nil {
				return err
			}
			return nil
		}

		if err := tx.Create(newEvent(contentID, models.InteractionLike, ident)).Error; err != nil {
			return err
		}

		result.Accepted = true
		return countEvents(tx, contentID, models.InteractionLike, &result.TotalLikes)
	})
	if err != nil {
		return nil, err
	}

	if result.Accepted {
		metrics.InteractionsRecorded.WithLabelValues(string(models.InteractionLike)).Inc()
	} else {
		metrics.InteractionsThrottled.WithLabelValues(string(models.InteractionLike)).Inc()
	}
	return &result, nil
}

// RecordView records a view with a 1-hour window. A genuinely new view
// bumps the denormalized counter on the content row in the same
// transaction as the event insert.
func (s *Service) RecordView(ctx context.Context, contentID string, ident identity.Identity) (*ViewResult, error) {
	var result ViewResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureContentExists(tx, contentID); err != nil {
			return err
		}

		last, err := latestEventLocked(tx, contentID, models.InteractionView, ident)
		if err != nil {
			return err
		}

		if last != nil && time.Since(last.CreatedAt) < ViewWindow {
			result.IsNewView = false
			return readViewCount(tx, contentID, &result.TotalViews)
		}

		if err := tx.Create(newEvent(contentID, models.InteractionView, ident)).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.ContentModel{}).
			Where("id = ?", contentID).
			UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error; err != nil {
			return err
		}

		result.IsNewView = true
		return readViewCount(tx, contentID, &result.TotalViews)
	})
	if err != nil {
		return nil, err
	}

	if result.IsNewView {
		metrics.InteractionsRecorded.WithLabelValues(string(models.InteractionView)).Inc()
	} else {
		metrics.InteractionsThrottled.WithLabelValues(string(models.InteractionView)).Inc()
	}
	return &result, nil
}

// CountLikes returns the all-time like total for a content record.
func (s *Service) CountLikes(ctx context.Context, contentID string) (int64, error) {
	var n int64
	err := countEvents(s.db.WithContext(ctx), contentID, models.InteractionLike, &n)
	return n, err
}

// CountViews returns the all-time view event total.
func (s *Service) CountViews(ctx context.Context, contentID string) (int64, error) {
	var n int64
	err := countEvents(s.db.WithContext(ctx), contentID, models.InteractionView, &n)
	return n, err
}

// CountUniqueViewers counts distinct actor identities that viewed the
// content. Uniqueness is by whichever identity field is populated; a
// visitor observed both logged-in and anonymous counts twice.
func (s *Service) CountUniqueViewers(ctx context.Context, contentID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.InteractionModel{}).
		Where("content_id = ? AND kind = ?", contentID, models.InteractionView).
		Distinct("COALESCE(user_id, fingerprint)").
		Count(&n).Error
	return n, err
}

// PurgeExpired hard-deletes events old enough to matter to no window and
// no reconstruction. Storage hygiene only; counts and rate checks filter
// by timestamp and stay correct regardless.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-purgeRetention)
	res := s.db.WithContext(ctx).
		Unscoped().
		Where("created_at < ?", cutoff).
		Delete(&models.InteractionModel{})
	return res.RowsAffected, res.Error
}

func newEvent(contentID string, kind models.InteractionKind, ident identity.Identity) *models.InteractionModel {
	ev := &models.InteractionModel{ContentID: contentID, Kind: kind}
	if ident.UserID != "" {
		uid := ident.UserID
		ev.UserID = &uid
	}
	if ident.Fingerprint != "" {
		fp := ident.Fingerprint
		ev.Fingerprint = &fp
	}
	return ev
}

// latestEventLocked returns the actor's most recent event for (content,
// kind), row-locked for the duration of the transaction on backends that
// support it. SQLite (tests) serializes writers already.
func latestEventLocked(tx *gorm.DB, contentID string, kind models.InteractionKind, ident identity.Identity) (*models.InteractionModel, error) {
	q := tx.Where("content_id = ? AND kind = ?", contentID, kind)
	q = scopeIdentity(q, ident)
	if tx.Dialector.Name() == "mysql" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var last models.InteractionModel
	err := q.Order("created_at DESC").First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &last, nil
}

// scopeIdentity filters by the populated identity field. The two identity
// spaces are disjoint; an authenticated actor's anonymous history does not
// throttle them.
func scopeIdentity(q *gorm.DB, ident identity.Identity) *gorm.DB {
	if ident.UserID != "" {
		return q.Where("user_id = ?", ident.UserID)
	}
	return q.Where("user_id IS NULL AND fingerprint = ?", ident.Fingerprint)
}

func countEvents(tx *gorm.DB, contentID string, kind models.InteractionKind, dest *int64) error {
	return tx.Model(&models.InteractionModel{}).
		Where("content_id = ? AND kind = ?", contentID, kind).
		Count(dest).Error
}

func readViewCount(tx *gorm.DB, contentID string, dest *int) error {
	var content models.ContentModel
	if err := tx.Select("view_count").First(&content, "id = ?", contentID).Error; err != nil {
		return err
	}
	*dest = content.ViewCount
	return nil
}

func ensureContentExists(tx *gorm.DB, contentID string) error {
	var n int64
	if err := tx.Model(&models.ContentModel{}).Where("id = ?", contentID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("content")
	}
	return nil
}
