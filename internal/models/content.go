package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ContentVisibility controls who can read a content record.
type ContentVisibility string

const (
	VisibilityPublic   ContentVisibility = "public"
	VisibilityUnlisted ContentVisibility = "unlisted"
	VisibilityPrivate  ContentVisibility = "private"
)

// ContentStatus is the publishing lifecycle state of a content record.
type ContentStatus string

const (
	StatusPublished ContentStatus = "published"
	StatusPending   ContentStatus = "pending"
	StatusArchived  ContentStatus = "archived"
)

// ContentModel is a user-shared content record. All mutations go through the
// content write orchestrator; ViewCount is denormalized and bumped in the
// same transaction as the view event insert.
type ContentModel struct {
	Base
	AuthorID      string            `json:"author_id"      gorm:"index;not null"`
	Author        *UserModel        `json:"author,omitempty" gorm:"foreignKey:AuthorID"`
	Title         string            `json:"title"          gorm:"not null"`
	Text          string            `json:"text"           gorm:"type:longtext"`
	Tags          StringArray       `json:"tags"           gorm:"type:json"`
	Visibility    ContentVisibility `json:"visibility"     gorm:"type:varchar(16);default:'public';index"`
	Status        ContentStatus     `json:"status"         gorm:"type:varchar(16);default:'published';index"`
	Hash          string            `json:"-"              gorm:"type:char(64);uniqueIndex;not null"`
	CoverURL      string            `json:"cover_url"`
	ThumbnailURL  string            `json:"thumbnail_url"`
	AttachmentURL string            `json:"attachment_url"`
	ReportCount   int               `json:"report_count"   gorm:"default:0"`
	ViewCount     int               `json:"view_count"     gorm:"default:0"`
}

func (ContentModel) TableName() string { return "contents" }

// SemanticHash digests the fields that define duplicate content. Tag order
// and surrounding whitespace do not affect the digest.
func SemanticHash(title, text string, tags []string) string {
	normalized := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			normalized = append(normalized, t)
		}
	}
	// insertion sort, tag lists are tiny
	for i := 1; i < len(normalized); i++ {
		for j := i; j > 0 && normalized[j] < normalized[j-1]; j-- {
			normalized[j], normalized[j-1] = normalized[j-1], normalized[j]
		}
	}

	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(title)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(text)))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(normalized, ",")))
	return hex.EncodeToString(h.Sum(nil))
}
