package model

// RejectReason classifies why metric extraction dropped a candidate.
// Reasons are checked in a fixed order, so a candidate carries the first
// threshold it tripped, not all of them.
type RejectReason string

const (
	RejectDensityLow  RejectReason = "density_low"
	RejectDensityHigh RejectReason = "density_high"

	RejectSingleLeafClass RejectReason = "single_leaf_class"
	RejectNoLeafSignal    RejectReason = "no_leaf_signal"
	RejectTypeForestLow   RejectReason = "type_forest_low"
	RejectTypeForestHigh  RejectReason = "type_forest_high"

	RejectNoForestCover      RejectReason = "no_forest_cover"
	RejectSingleCoverClass   RejectReason = "single_cover_class"
	RejectCoverForestLow     RejectReason = "cover_forest_low"
	RejectCoverForestHigh    RejectReason = "cover_forest_high"
	RejectClassCountLow      RejectReason = "class_count_low"
	RejectClassCountExcluded RejectReason = "class_count_excluded"
)

// Rejection records the threshold that dropped a candidate and the
// measured value that tripped it.
type Rejection struct {
	CandidateID string       `json:"candidate_id"`
	Reason      RejectReason `json:"reason"`
	Value       int          `json:"value"`
}
