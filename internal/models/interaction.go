package models

// InteractionKind distinguishes like events from view events.
type InteractionKind string

const (
	InteractionLike InteractionKind = "like"
	InteractionView InteractionKind = "view"
)

// InteractionModel is one actor's action on one content record at one
// instant. Exactly one of UserID/Fingerprint is set for a normal event; both
// may be set only while migrating an anonymous identity onto an account.
// Rows are never mutated; rate checks filter by CreatedAt.
type InteractionModel struct {
	Base
	ContentID   string          `json:"content_id"  gorm:"index:idx_inter_user,priority:1;index:idx_inter_anon,priority:1;not null"`
	Kind        InteractionKind `json:"kind"        gorm:"type:varchar(8);index:idx_inter_user,priority:2;index:idx_inter_anon,priority:2;not null"`
	UserID      *string         `json:"user_id"     gorm:"index:idx_inter_user,priority:3"`
	Fingerprint *string         `json:"fingerprint" gorm:"index:idx_inter_anon,priority:3;type:varchar(64)"`
}

func (InteractionModel) TableName() string { return "interactions" }
