// internal/storage/models/hit.go
package models

import "time"

// Hit outcomes recorded in the journal.
const (
	OutcomeDetected  = "detected"
	OutcomeClosed    = "closed"
	OutcomeExhausted = "close_exhausted"
	OutcomeSkipped   = "close_skipped"
)

// HitRecord is one step in the life of a detected stop or target hit.
type HitRecord struct {
	BaseModel
	EventID       string    `json:"event_id"`
	Symbol        string    `json:"symbol"`
	Kind          string    `json:"kind"`
	Method        string    `json:"method"`
	Threshold     float64   `json:"threshold"`
	EvidencePrice float64   `json:"evidence_price"`
	EvidenceAt    time.Time `json:"evidence_at"`
	DetectedAt    time.Time `json:"detected_at"`
	Outcome       string    `json:"outcome"`
	Attempts      int       `json:"attempts"`
	Error         string    `json:"error,omitempty"`
}
