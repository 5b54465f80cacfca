package repo

import "github.com/animus-labs/runledger/internal/domain"

// LoadMode selects how much of a run is materialized on retrieval.
type LoadMode int

const (
	// LoadSummary reads only the runtime info mirrored in the master index.
	LoadSummary LoadMode = iota
	// LoadFull also reads the private record: steps, provenance and the plan.
	LoadFull
)

func (m LoadMode) String() string {
	if m == LoadFull {
		return "full"
	}
	return "summary"
}

// EffectiveMode escalates a summary request to a full load for runs that may
// still need inspection: anything the index records as RUNNING or FAILURE.
func EffectiveMode(requested LoadMode, status domain.Status) LoadMode {
	if requested == LoadFull {
		return LoadFull
	}
	switch status {
	case domain.StatusRunning, domain.StatusFailure:
		return LoadFull
	default:
		return LoadSummary
	}
}
