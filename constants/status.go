package constants

// ItemStatus is the canonical status for an analysis item.
type ItemStatus string

// Stable values (these exact strings go over the wire).
const (
	ItemStatusIdle      ItemStatus = "IDLE"      // uploaded, not analyzed yet
	ItemStatusAnalyzing ItemStatus = "ANALYZING" // extraction request in flight
	ItemStatusSuccess   ItemStatus = "SUCCESS"   // readings extracted
	ItemStatusError     ItemStatus = "ERROR"     // extraction failed; user may retry
)

// CanStartAnalysis reports whether an item in this status may begin a new
// extraction. SUCCESS is terminal and ANALYZING guards against re-entrant
// requests; ERROR is the only back-edge.
func (s ItemStatus) CanStartAnalysis() bool {
	return s == ItemStatusIdle || s == ItemStatusError
}
