package content

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"gorm.io/gorm"

	"github.com/shareloom/core/internal/models"
	"github.com/shareloom/core/internal/pkg/apperr"
	"github.com/shareloom/core/internal/pkg/cachekit"
	"github.com/shareloom/core/internal/pkg/pagination"
	"github.com/shareloom/core/internal/pkg/response"
)

var markdownEngine = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Strikethrough,
		extension.Linkify,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithHardWraps(),
	),
)

// ListPage is the cached shape of one public listing page.
type ListPage struct {
	Items      []models.ContentModel `json:"items"`
	Pagination response.Pagination   `json:"pagination"`
}

// GlobalStats is the cached shape of the aggregate counters endpoint.
type GlobalStats struct {
	Contents    int64     `json:"contents"`
	Likes       int64     `json:"likes"`
	Views       int64     `json:"views"`
	Comments    int64     `json:"comments"`
	GeneratedAt time.Time `json:"generated_at"`
}

// List serves one page of the public listing, read-through cached.
func (s *Service) List(ctx context.Context, q pagination.Query) (*ListPage, error) {
	q = q.Normalize()
	key := cachekit.ContentListKey(q.Page, q.Size)

	var page ListPage
	if s.cache.GetJSON(ctx, key, &page) {
		return &page, nil
	}

	base := s.db.WithContext(ctx).Model(&models.ContentModel{}).
		Where("visibility = ? AND status = ?", models.VisibilityPublic, models.StatusPublished).
		Order("created_at DESC")

	meta, err := pagination.Paginate(base, q, &page.Items)
	if err != nil {
		return nil, err
	}
	page.Pagination = meta

	s.cache.SetJSON(ctx, key, &page, 0)
	return &page, nil
}

// Get returns a single record, read-through cached. Private records are
// visible only to their author and admins.
func (s *Service) Get(ctx context.Context, id, viewerID string, isAdmin bool) (*models.ContentModel, error) {
	key := cachekit.ContentKey(id)

	var record models.ContentModel
	if !s.cache.GetJSON(ctx, key, &record) {
		err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("content")
		}
		if err != nil {
			return nil, err
		}
		s.cache.SetJSON(ctx, key, &record, 0)
	}

	if record.Visibility == models.VisibilityPrivate && record.AuthorID != viewerID && !isAdmin {
		// do not reveal existence
		return nil, apperr.NotFound("content")
	}
	return &record, nil
}

// Render returns the record's markdown body as HTML.
func (s *Service) Render(ctx context.Context, id, viewerID string, isAdmin bool) (string, error) {
	record, err := s.Get(ctx, id, viewerID, isAdmin)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(record.Text), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Stats serves the aggregate counters, read-through cached.
func (s *Service) Stats(ctx context.Context) (*GlobalStats, error) {
	var stats GlobalStats
	if s.cache.GetJSON(ctx, cachekit.KeyGlobalStats, &stats) {
		return &stats, nil
	}

	db := s.db.WithContext(ctx)
	if err := db.Model(&models.ContentModel{}).Count(&stats.Contents).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.InteractionModel{}).
		Where("kind = ?", models.InteractionLike).Count(&stats.Likes).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.InteractionModel{}).
		Where("kind = ?", models.InteractionView).Count(&stats.Views).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.CommentModel{}).Count(&stats.Comments).Error; err != nil {
		return nil, err
	}
	stats.GeneratedAt = time.Now()

	s.cache.SetJSON(ctx, cachekit.KeyGlobalStats, &stats, 0)
	return &stats, nil
}
