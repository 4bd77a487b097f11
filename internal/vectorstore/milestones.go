package vectorstore

import "fmt"

// MilestoneID formats the composite identifier used to reference one
// session's milestone in API responses and context-suggester output,
// mirroring the knowledge store's "{id}.{n}" partId convention.
func MilestoneID(sessionID string, index int) string {
	return fmt.Sprintf("%s.%d", sessionID, index)
}

// IsPhase1 reports whether a milestone vector row was produced by the
// heuristic-only tier (no LLM title yet) rather than the LLM-enriched tier.
// Milestones carry no LLM-derived phase when the phase sentinel is absent.
func (r VectorRow) IsPhase1() bool {
	return r.RowType == "milestone" && r.Phase == NoPhase
}
