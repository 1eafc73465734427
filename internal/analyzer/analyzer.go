// Package analyzer aggregates a set of per-URL double-tap observations for
// one (provider, client?) trial into a single verdict: retrievability
// percentage, overall consistency, reliability, and mismatch-bucket
// counters.
package analyzer

import "github.com/fidlabs/piece-sentinel/internal/urltester"

// ReliabilityTimeoutThreshold is the timeout-rate ceiling above which a
// provider is considered unreliable.
const ReliabilityTimeoutThreshold = 0.30

// InconsistentBreakdown counts the mismatch buckets across all observations
// that were not consistent.
type InconsistentBreakdown struct {
	Gaming       int `json:"gaming"`
	BothFailed   int `json:"both_failed"`
	ErrorPages   int `json:"error_pages"`
	SizeMismatch int `json:"size_mismatch"`
}

// ProviderAnalysis is the aggregate verdict for one trial.
type ProviderAnalysis struct {
	RetrievabilityPercent float64                `json:"retrievability_percent"`
	IsConsistent          bool                   `json:"is_consistent"`
	IsReliable            bool                   `json:"is_reliable"`
	SampleCount           int                    `json:"sample_count"`
	SuccessCount          int                    `json:"success_count"`
	TimeoutCount          int                    `json:"timeout_count"`
	InconsistentBreakdown InconsistentBreakdown  `json:"inconsistent_breakdown"`
}

// URLMetadata is the persisted shape of the storage_providers.url_metadata
// column: the provider-only trial's aggregate verdict, wrapped under an
// "analysis" key so the column can grow sibling fields later without a
// migration.
type URLMetadata struct {
	Analysis ProviderAnalysis `json:"analysis"`
}

// Empty is the zero-verification result: absence of data must never claim
// success.
func Empty() ProviderAnalysis {
	return ProviderAnalysis{}
}

// Analyze aggregates observations into a ProviderAnalysis. An empty slice
// yields zero retrievability and both flags false, since no verification
// was performed.
func Analyze(observations []urltester.Observation) ProviderAnalysis {
	if len(observations) == 0 {
		return Empty()
	}

	total := len(observations)
	var successCount, inconsistentCount, timeoutCount int
	var breakdown InconsistentBreakdown

	for _, o := range observations {
		if o.Success() {
			successCount++
		}
		if !o.Consistent {
			inconsistentCount++
			switch o.MismatchBucket {
			case urltester.VerdictGaming:
				breakdown.Gaming++
			case urltester.VerdictBothFailed:
				breakdown.BothFailed++
			case urltester.VerdictErrorPages:
				breakdown.ErrorPages++
			case urltester.VerdictSizeMismatch:
				breakdown.SizeMismatch++
			}
		}
		if o.Error == urltester.ErrorTimeout {
			timeoutCount++
		}
	}

	// total requests = 2 per URL (double-tap)
	totalRequests := total * 2
	timeoutRate := float64(timeoutCount) / float64(totalRequests)

	return ProviderAnalysis{
		RetrievabilityPercent: float64(successCount) / float64(total) * 100.0,
		IsConsistent:          inconsistentCount == 0,
		IsReliable:            timeoutRate < ReliabilityTimeoutThreshold,
		SampleCount:           total,
		SuccessCount:          successCount,
		TimeoutCount:          timeoutCount,
		InconsistentBreakdown: breakdown,
	}
}
