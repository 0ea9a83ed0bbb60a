package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PackageFile tracks an uploaded or exported .apkg file on disk.
type PackageFile struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string         `gorm:"type:uuid;not null;index" json:"user_id"`
	Name      string         `gorm:"not null" json:"name"`
	Path      string         `gorm:"not null" json:"-"`
	Size      int64          `json:"size"`
	SHA256    string         `gorm:"size:64" json:"sha256"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (f *PackageFile) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}
