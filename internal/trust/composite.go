package trust

import "time"

// CompositeScore is the final per-(address, app) trust value alongside its
// components. Rows are persisted as an audit trail; the cache layer remains
// the authority for serving hot reads.
type CompositeScore struct {
	ID          string             `json:"id,omitempty"`
	Address     string             `json:"address"`
	AppID       string             `json:"app_id"`
	CoreScore   float64            `json:"core_score"`
	CustomScore float64            `json:"custom_score"`
	FinalScore  float64            `json:"final_score"`
	Components  map[string]float64 `json:"components,omitempty"`
	ComputedAt  time.Time          `json:"computed_at"`
}

// FieldValue is the stored raw value for a user-supplied custom field.
type FieldValue struct {
	Address   string    `json:"address"`
	AppID     string    `json:"app_id"`
	FieldName string    `json:"field_name"`
	Value     float64   `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EnvironmentalSubmission records renewable-energy attestation data for an
// address. Base-score updates require a submission fresher than the ledger's
// freshness window.
type EnvironmentalSubmission struct {
	Address        string    `json:"address"`
	RenewableRatio float64   `json:"renewable_ratio"`
	SubmittedAt    time.Time `json:"submitted_at"`
}
