package domain

import "time"

type BrandStatus string

const (
	BrandStatusActive   BrandStatus = "active"
	BrandStatusDisabled BrandStatus = "disabled"
)

// Brand is a known-brand reference app that candidates are compared against:
// the official display name, package id, signing certificate fingerprint,
// reference icon and its precomputed perceptual hash, and the canonical
// permission set of the official release.
type Brand struct {
	ID          uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string      `gorm:"type:varchar(255);not null" json:"name"`
	PackageName string      `gorm:"type:varchar(255);uniqueIndex:uk_brand_package;not null" json:"package_name"`
	CertSHA256  string      `gorm:"type:varchar(64)" json:"cert_sha256,omitempty"`
	IconPath    string      `gorm:"type:varchar(500)" json:"icon_path,omitempty"`
	IconPHash   string      `gorm:"type:varchar(32)" json:"icon_phash,omitempty"`
	Permissions string      `gorm:"type:text" json:"permissions,omitempty"` // JSON array
	Status      BrandStatus `gorm:"type:varchar(20);default:'active';index:idx_brand_status" json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (Brand) TableName() string {
	return "brands"
}
