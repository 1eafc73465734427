// Package discovery resolves, tests, and scores a storage provider's HTTP
// endpoints for one discovery trial (provider-only or provider+client).
package discovery

import (
	"github.com/fidlabs/piece-sentinel/internal/analyzer"
)

// ResultCode classifies the outcome of one discovery trial. These are
// persisted data, not propagated Go errors.
type ResultCode string

const (
	ResultNoCidContactData              ResultCode = "NoCidContactData"
	ResultMissingAddrFromCidContact     ResultCode = "MissingAddrFromCidContact"
	ResultMissingHttpAddrFromCidContact ResultCode = "MissingHttpAddrFromCidContact"
	ResultFailedToGetWorkingUrl         ResultCode = "FailedToGetWorkingUrl"
	ResultNoDealsFound                  ResultCode = "NoDealsFound"
	ResultTimedOut                      ResultCode = "TimedOut"
	ResultSuccess                       ResultCode = "Success"
	ResultJobCreated                    ResultCode = "JobCreated"
	ResultError                         ResultCode = "Error"
)

// ErrorCode further classifies a ResultError outcome.
type ErrorCode string

const (
	ErrorNoProviderOrClient             ErrorCode = "NoProviderOrClient"
	ErrorNoProvidersFound               ErrorCode = "NoProvidersFound"
	ErrorFailedToRetrieveCidContactData ErrorCode = "FailedToRetrieveCidContactData"
	ErrorFailedToGetPeerId              ErrorCode = "FailedToGetPeerId"
	ErrorFailedToGetDeals               ErrorCode = "FailedToGetDeals"
)

// DiscoveryType distinguishes a provider-only trial from a
// provider+client trial.
type DiscoveryType string

const (
	DiscoveryTypeProvider       DiscoveryType = "Provider"
	DiscoveryTypeProviderClient DiscoveryType = "ProviderClient"
)

// Result is the outcome of one discovery trial: which endpoint (if any)
// worked, the aggregated per-URL analysis, and the classification codes
// persisted alongside it.
type Result struct {
	Type                  DiscoveryType
	WorkingURL            string
	RetrievabilityPercent float64
	ResultCode            ResultCode
	ErrorCode             *ErrorCode
	Analysis              analyzer.ProviderAnalysis
}
