package domain

import (
	"time"
)

type ScanStatus string

const (
	ScanStatusQueued     ScanStatus = "queued"
	ScanStatusExtracting ScanStatus = "extracting"
	ScanStatusMatching   ScanStatus = "matching"
	ScanStatusScoring    ScanStatus = "scoring"
	ScanStatusCompleted  ScanStatus = "completed"
	ScanStatusFailed     ScanStatus = "failed"
	ScanStatusCancelled  ScanStatus = "cancelled"
)

// Verdict is the final classification of a scanned APK.
type Verdict string

const (
	VerdictUnknown    Verdict = ""
	VerdictOfficial   Verdict = "official"    // signing certificate matches the brand's
	VerdictClean      Verdict = "clean"       // below the suspicious threshold
	VerdictSuspicious Verdict = "suspicious"  // between thresholds, needs human review
	VerdictLikelyFake Verdict = "likely_fake" // above the takedown threshold
)

// FailureType classifies why a scan failed. The type determines severity
// and the retry budget.
type FailureType string

const (
	FailureTypeNone         FailureType = ""
	FailureTypeExtract      FailureType = "extract_failed"     // APK unreadable or manifest parse error
	FailureTypeIconDecode   FailureType = "icon_decode_failed" // launcher icon present but undecodable
	FailureTypeStorageError FailureType = "storage_error"      // database write failed
	FailureTypeQueueError   FailureType = "queue_error"        // broker publish/consume failure
	FailureTypeReportError  FailureType = "report_error"       // takedown PDF generation failed
	FailureTypeTimeout      FailureType = "timeout"
	FailureTypeUnknown      FailureType = "unknown"
)

type FailureSeverity string

const (
	FailureSeverityNormal  FailureSeverity = "normal"  // transient, retry expected to succeed
	FailureSeverityWarning FailureSeverity = "warning" // likely an APK problem, needs attention
	FailureSeverityError   FailureSeverity = "error"   // system problem, needs investigation
)

func (ft FailureType) GetSeverity() FailureSeverity {
	switch ft {
	case FailureTypeNone:
		return FailureSeverityNormal
	case FailureTypeStorageError, FailureTypeQueueError, FailureTypeTimeout:
		return FailureSeverityNormal
	case FailureTypeExtract, FailureTypeIconDecode:
		return FailureSeverityWarning
	case FailureTypeReportError, FailureTypeUnknown:
		return FailureSeverityError
	default:
		return FailureSeverityError
	}
}

// GetMaxRetryCount returns the retry budget for the failure type.
// Zero means the scan is not retried.
func (ft FailureType) GetMaxRetryCount() int {
	switch ft {
	case FailureTypeNone:
		return 0
	case FailureTypeExtract, FailureTypeIconDecode:
		return 0 // broken APK, retrying cannot help
	case FailureTypeStorageError, FailureTypeQueueError, FailureTypeTimeout:
		return 3
	case FailureTypeReportError, FailureTypeUnknown:
		return 1
	default:
		return 1
	}
}

func (ft FailureType) CanRetry() bool {
	return ft.GetMaxRetryCount() > 0
}

// Scan is the primary record for one candidate APK evaluation.
type Scan struct {
	ID              string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	APKName         string      `gorm:"type:varchar(255);not null" json:"apk_name"`
	APKPath         string      `gorm:"type:varchar(500)" json:"apk_path,omitempty"`
	AppName         string      `gorm:"type:varchar(255)" json:"app_name,omitempty"`
	PackageName     string      `gorm:"type:varchar(255);index:idx_scan_package" json:"package_name,omitempty"`
	VersionName     string      `gorm:"type:varchar(50)" json:"version_name,omitempty"`
	Status          ScanStatus  `gorm:"type:varchar(20);not null;default:'queued'" json:"status"`
	ShouldStop      bool        `gorm:"default:false" json:"should_stop"`
	FailureType     FailureType `gorm:"type:varchar(30);default:''" json:"failure_type,omitempty"`
	ErrorMessage    string      `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount      int         `gorm:"type:tinyint;default:0" json:"retry_count"`
	CurrentStep     string      `gorm:"type:varchar(255)" json:"current_step,omitempty"`
	ProgressPercent int         `gorm:"type:tinyint;default:0" json:"progress_percent"`

	// Comparison outcome. MatchedBrandID points at the highest-scoring
	// brand; PinnedBrandID restricts the comparison to one brand when the
	// uploader already knows which brand is being impersonated.
	PinnedBrandID  *uint   `gorm:"index" json:"pinned_brand_id,omitempty"`
	MatchedBrandID *uint   `gorm:"index" json:"matched_brand_id,omitempty"`
	FakeScore      float64 `gorm:"type:decimal(5,2);default:0" json:"fake_score"`
	Verdict        Verdict `gorm:"type:varchar(20);default:''" json:"verdict,omitempty"`

	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Associations (pointers to avoid import cycles in callers).
	Metadata *ScanMetadata   `gorm:"foreignKey:ScanID;references:ID" json:"metadata,omitempty"`
	Signals  []ScanSignal    `gorm:"foreignKey:ScanID;references:ID" json:"signals,omitempty"`
	Report   *TakedownReport `gorm:"foreignKey:ScanID;references:ID" json:"report,omitempty"`
}

func (Scan) TableName() string {
	return "apk_scans"
}

// ScanMetadata holds everything extracted from the APK itself.
type ScanMetadata struct {
	ID     uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ScanID string `gorm:"type:varchar(36);uniqueIndex:uk_scan_id;not null" json:"scan_id"`

	PermissionsJSON string `gorm:"type:text" json:"permissions_json,omitempty"`
	PermissionCount int    `gorm:"default:0" json:"permission_count"`

	// SHA-256 fingerprint of the signing certificate (hex, lowercase).
	CertSHA256 string `gorm:"type:varchar(64);index:idx_cert" json:"cert_sha256,omitempty"`

	// Perceptual hash of the launcher icon in goimagehash string form
	// ("p:<hex>"). Empty when the APK has no decodable icon.
	IconPHash string `gorm:"type:varchar(32)" json:"icon_phash,omitempty"`
	IconPath  string `gorm:"type:varchar(500)" json:"icon_path,omitempty"`

	FileSize  int64  `json:"file_size,omitempty"`
	MD5       string `gorm:"type:varchar(32)" json:"md5,omitempty"`
	SHA256    string `gorm:"type:varchar(64)" json:"sha256,omitempty"`
	MinSDK    int32  `gorm:"default:0" json:"min_sdk,omitempty"`
	TargetSDK int32  `gorm:"default:0" json:"target_sdk,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (ScanMetadata) TableName() string {
	return "scan_metadata"
}

// ScanSignal is one brand comparison: the individual risk signals and the
// combined score for a single (scan, brand) pair.
type ScanSignal struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ScanID    string `gorm:"type:varchar(36);index:idx_signal_scan;not null" json:"scan_id"`
	BrandID   uint   `gorm:"index:idx_signal_brand;not null" json:"brand_id"`
	BrandName string `gorm:"type:varchar(255)" json:"brand_name,omitempty"`

	NameRisk       float64 `gorm:"type:decimal(5,2);default:0" json:"name_risk"`
	IconRisk       float64 `gorm:"type:decimal(5,2);default:0" json:"icon_risk"`
	PermissionRisk float64 `gorm:"type:decimal(5,2);default:0" json:"permission_risk"`
	CertMatch      bool    `gorm:"default:false" json:"cert_match"`
	Score          float64 `gorm:"type:decimal(5,2);default:0" json:"score"`

	CreatedAt time.Time `json:"created_at"`
}

func (ScanSignal) TableName() string {
	return "scan_signals"
}
