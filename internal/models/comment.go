package models

import "time"

// CommentState represents the moderation state of a comment.
type CommentState int

const (
	CommentUnread CommentState = 0
	CommentRead   CommentState = 1
	CommentJunk   CommentState = 2
)

// CommentModel is a threaded reply on a content record. Replies form a tree
// through ParentID; the service layer guarantees a node is never inserted
// under its own descendants.
type CommentModel struct {
	Base
	ContentID string         `json:"content_id" gorm:"not null;index"`
	Author    string         `json:"author"     gorm:"not null"`
	Mail      string         `json:"mail"`
	Text      string         `json:"text"       gorm:"type:text;not null"`
	State     CommentState   `json:"state"      gorm:"default:0;index"`
	ParentID  *string        `json:"parent_id"  gorm:"index"`
	Children  []CommentModel `json:"children,omitempty" gorm:"foreignKey:ParentID"`
	UserID    *string        `json:"user_id"    gorm:"index"`
	IP        string         `json:"ip"`
	EditedAt  *time.Time     `json:"edited_at"`
}

func (CommentModel) TableName() string { return "comments" }
