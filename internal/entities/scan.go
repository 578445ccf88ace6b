package entities

import (
	"time"
)

type ScanOutcome string

const (
	ScanOutcomeAdmitted  ScanOutcome = "admitted" // accepted, add still in flight
	ScanOutcomeInvalid   ScanOutcome = "invalid"
	ScanOutcomeDuplicate ScanOutcome = "duplicate"
	ScanOutcomeAdded     ScanOutcome = "added"
	ScanOutcomeFailed    ScanOutcome = "failed"
)

// ScanRecord is one entry of the local scan history.
type ScanRecord struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	Barcode   string      `gorm:"index;size:64" json:"barcode"`
	Outcome   ScanOutcome `gorm:"index;size:20" json:"outcome"`
	BookID    string      `gorm:"size:64" json:"book_id,omitempty"`
	Title     string      `gorm:"size:512" json:"title,omitempty"`
	Error     string      `gorm:"type:text" json:"error,omitempty"`
	ScannedAt time.Time   `gorm:"index" json:"scanned_at"`
}

func (ScanRecord) TableName() string {
	return "scan_records"
}
