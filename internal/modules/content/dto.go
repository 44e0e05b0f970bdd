package content

import "github.com/shareloom/core/internal/models"

// CreateDTO carries a new content record. FilePath/FileKind are set by the
// handler when the request staged an upload alongside the record.
type CreateDTO struct {
	Title      string   `json:"title" binding:"required"`
	Text       string   `json:"text"`
	Tags       []string `json:"tags"`
	Visibility string   `json:"visibility"`

	FilePath string `json:"-"`
	FileKind string `json:"-"`
}

// UpdateDTO carries a partial update; nil fields keep the current value.
type UpdateDTO struct {
	Title      *string   `json:"title"`
	Text       *string   `json:"text"`
	Tags       *[]string `json:"tags"`
	Visibility *string   `json:"visibility"`
	Status     *string   `json:"status"`
}

func (d CreateDTO) visibility() models.ContentVisibility {
	switch models.ContentVisibility(d.Visibility) {
	case models.VisibilityUnlisted:
		return models.VisibilityUnlisted
	case models.VisibilityPrivate:
		return models.VisibilityPrivate
	default:
		return models.VisibilityPublic
	}
}

func validVisibility(v string) bool {
	switch models.ContentVisibility(v) {
	case models.VisibilityPublic, models.VisibilityUnlisted, models.VisibilityPrivate:
		return true
	}
	return false
}

func validStatus(s string) bool {
	switch models.ContentStatus(s) {
	case models.StatusPublished, models.StatusPending, models.StatusArchived:
		return true
	}
	return false
}
