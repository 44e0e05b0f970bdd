package models

// VersionModel is an immutable snapshot of a content record's editable
// fields, captured immediately before an update commits. VersionNumber is
// 1-based and strictly increasing per content id; the unique index makes a
// racing max+1 computation fail loudly instead of silently colliding.
type VersionModel struct {
	Base
	ContentID     string      `json:"content_id"     gorm:"uniqueIndex:idx_content_version,priority:1;not null"`
	VersionNumber int         `json:"version_number" gorm:"uniqueIndex:idx_content_version,priority:2;not null"`
	Title         string      `json:"title"`
	Text          string      `json:"text"           gorm:"type:longtext"`
	Tags          StringArray `json:"tags"           gorm:"type:json"`
	Visibility    string      `json:"visibility"     gorm:"type:varchar(16)"`
	Status        string      `json:"status"         gorm:"type:varchar(16)"`
	EditorID      string      `json:"editor_id"      gorm:"index;not null"`
}

func (VersionModel) TableName() string { return "content_versions" }
