package models

import "time"

// FunnelStage is one column of a tenant's pipeline. IsWon and IsLost
// are mutually exclusive; Order gives the pipeline position, starting
// at 1 for the entry stage.
type FunnelStage struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Order  int    `json:"order"`
	IsWon  bool   `json:"is_won"`
	IsLost bool   `json:"is_lost"`
}

// Closed reports whether the stage terminates the pipeline.
func (s FunnelStage) Closed() bool {
	return s.IsWon || s.IsLost
}

// Deal is a CRM deal. It occupies exactly one stage at a time; the
// classification below looks only at the current stage, not at any
// stage history.
type Deal struct {
	ID        string    `json:"id"`
	StageID   string    `json:"stage_id"`
	Value     float64   `json:"value"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsOpportunity classifies a deal against its current stage. A deal
// that already closed counts as an opportunity regardless of stage
// order: it necessarily passed through the opportunity phase even if
// the history is not tracked.
func (d Deal) IsOpportunity(stage FunnelStage) bool {
	return stage.Order >= 2 || stage.Closed()
}

// IsSale reports whether the deal sits in a won stage.
func (d Deal) IsSale(stage FunnelStage) bool {
	return stage.IsWon
}
