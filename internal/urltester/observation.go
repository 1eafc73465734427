// Package urltester performs the double-tap retrievability test against a
// candidate URL: two ranged GETs a short delay apart, classified into a
// verdict the consistency analyzer can aggregate.
package urltester

import "time"

// ErrorKind categorizes why a single tap failed.
type ErrorKind string

const (
	ErrorNone              ErrorKind = ""
	ErrorTimeout           ErrorKind = "timeout"
	ErrorConnectionRefused ErrorKind = "connection_refused"
	ErrorReadError         ErrorKind = "read_error"
	ErrorInvalidBody       ErrorKind = "invalid_body"
)

// Tap is the outcome of a single ranged GET.
type Tap struct {
	Success       bool
	ContentLength int64
	ETag          string
	ResponseTime  time.Duration
	Error         ErrorKind
}

// Verdict classifies how the two taps of a double-tap test relate.
type Verdict string

const (
	// VerdictGaming is one valid tap and one failed tap — a strategic
	// timeout pattern used to dodge retrievability checks.
	VerdictGaming Verdict = "gaming"
	// VerdictBothFailed is both taps failing.
	VerdictBothFailed Verdict = "both_failed"
	// VerdictErrorPages is one successful tap whose declared size is below
	// MinValidContentLength while the other tap failed. Two successful taps
	// are never classified this way.
	VerdictErrorPages Verdict = "error_pages"
	// VerdictSizeMismatch is two successful taps disagreeing on size.
	VerdictSizeMismatch Verdict = "size_mismatch"
	// VerdictConsistent is two successful, size-agreeing taps.
	VerdictConsistent Verdict = "consistent"
)

// MinValidContentLength is the minimum declared size for a genuine encoded
// piece file (8 GiB).
const MinValidContentLength int64 = 8 * 1024 * 1024 * 1024

// Observation is the full per-URL test result: both taps, the derived
// verdict, and the CAR root CID when the prefix bytes parsed as a valid CAR
// header.
type Observation struct {
	URL            string
	First          Tap
	Second         Tap
	Valid          bool
	Consistent     bool
	MismatchBucket Verdict // set only when !Consistent
	RootCID        string
	ResponseTimeMs int64
	Error          ErrorKind
}

// Success reports whether the URL is usable at all (either tap succeeded).
func (o Observation) Success() bool {
	return o.First.Success || o.Second.Success
}

// classify derives Valid, Consistent, and MismatchBucket from the two taps.
func classify(first, second Tap) (valid, consistent bool, bucket Verdict) {
	switch {
	case first.Success && second.Success:
		sameSize := first.ContentLength == second.ContentLength
		sameETag := first.ETag == "" || second.ETag == "" || first.ETag == second.ETag
		if sameSize && sameETag {
			declaredSize := first.ContentLength
			valid = declaredSize >= MinValidContentLength
			consistent = true
			return valid, consistent, VerdictConsistent
		}
		return false, false, VerdictSizeMismatch
	case !first.Success && !second.Success:
		return false, false, VerdictBothFailed
	default:
		// exactly one succeeded
		succeeded := first
		if second.Success {
			succeeded = second
		}
		if succeeded.ContentLength > 0 && succeeded.ContentLength < MinValidContentLength {
			return false, false, VerdictErrorPages
		}
		return false, false, VerdictGaming
	}
}
