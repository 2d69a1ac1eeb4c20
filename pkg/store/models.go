package store

import "time"

// ResultRecord is one indexed result container in the database.
type ResultRecord struct {
	ID       uint   `gorm:"primaryKey"`
	ResultID string `gorm:"not null;uniqueIndex"`
	Name     string
	Status   string `gorm:"index"`
	Start    int64
	Stop     int64

	// File is the result file name relative to the evidence directory.
	File string

	// Synthetic marks results materialized by the fallback paths rather
	// than produced by a real result container.
	Synthetic bool `gorm:"index"`

	StepCount       int
	AttachmentCount int

	IndexedAt time.Time
}
