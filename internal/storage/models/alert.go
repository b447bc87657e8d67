// internal/storage/models/alert.go
package models

// AlertRecord is a delivered alert as written to the journal.
type AlertRecord struct {
	BaseModel
	AlertID   string  `json:"alert_id"`
	Type      string  `json:"type"`
	Severity  string  `json:"severity"`
	Symbol    string  `json:"symbol"`
	Message   string  `json:"message"`
	Details   string  `json:"details"`
	Price     float64 `json:"price"`
	Threshold float64 `json:"threshold"`
}
