package domain

import "time"

// TakedownReport records a generated takedown-request PDF for a scan.
// FakeScore is copied at generation time so the letter and the record stay
// consistent even if the scan is later rescored.
type TakedownReport struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	ScanID      string     `gorm:"type:varchar(36);uniqueIndex:uk_report_scan;not null" json:"scan_id"`
	BrandID     uint       `gorm:"index" json:"brand_id"`
	FilePath    string     `gorm:"type:varchar(500);not null" json:"file_path"`
	FakeScore   float64    `gorm:"type:decimal(5,2);default:0" json:"fake_score"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (TakedownReport) TableName() string {
	return "takedown_reports"
}
