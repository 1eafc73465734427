package urltester

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fidlabs/piece-sentinel/httpclient"
	"github.com/fidlabs/piece-sentinel/internal/carhead"
)

// DoubleTapDelay is the pause between the two taps of a test.
const DoubleTapDelay = 500 * time.Millisecond

// RangeRequestBytes is how much of the body each tap requests via a Range
// header — just enough to read a CAR header, never the whole piece.
const RangeRequestBytes = 4096

// Tester performs double-tap retrievability tests against candidate URLs.
type Tester struct {
	http *httpclient.Client
}

// New builds a Tester. No base URL is configured since every call targets a
// fully-qualified candidate URL.
func New(opts ...httpclient.Option) *Tester {
	base := append([]httpclient.Option{
		httpclient.WithServiceName("urltester"),
	}, opts...)
	return &Tester{http: httpclient.New(base...)}
}

// Test performs both taps against rawURL, ~500ms apart, and classifies the
// result.
func (t *Tester) Test(ctx context.Context, rawURL string) Observation {
	first := t.tap(ctx, rawURL)

	select {
	case <-ctx.Done():
	case <-time.After(DoubleTapDelay):
	}

	second := t.tap(ctx, rawURL)

	valid, consistent, bucket := classify(first.Tap, second.Tap)

	obs := Observation{
		URL:            rawURL,
		First:          first.Tap,
		Second:         second.Tap,
		Valid:          valid,
		Consistent:     consistent,
		ResponseTimeMs: avgMillis(first.Tap.ResponseTime, second.Tap.ResponseTime),
		Error:          observationError(first.Tap, second.Tap),
	}
	if !consistent {
		obs.MismatchBucket = bucket
	}

	if first.Tap.Success {
		obs.RootCID = rootCIDFromBody(first.body)
	} else if second.Tap.Success {
		obs.RootCID = rootCIDFromBody(second.body)
	}

	return obs
}

// tapResult pairs a Tap with the raw bytes read during the probe, kept only
// long enough to extract a CAR root CID.
type tapResult struct {
	Tap
	body []byte
}

// tap performs a single ranged GET and classifies its outcome.
func (t *Tester) tap(ctx context.Context, rawURL string) tapResult {
	start := time.Now()

	resp, err := t.http.Request("RangedProbe").
		Header("Range", "bytes=0-"+strconv.Itoa(RangeRequestBytes-1)).
		Path(rawURL).
		AdaptiveHedge(httpclient.DefaultAdaptiveHedgeConfig()).
		Get(ctx)

	elapsed := time.Since(start)

	if err != nil {
		return tapResult{Tap: Tap{Success: false, ResponseTime: elapsed, Error: classifyTransportError(err)}}
	}

	if !resp.IsSuccess() {
		return tapResult{Tap: Tap{Success: false, ResponseTime: elapsed, Error: ErrorReadError}}
	}

	// Read directly off the underlying body with a hard cap rather than
	// resp.Body()'s unbounded io.ReadAll: a server or proxy that ignores the
	// Range header and answers 200 with the full piece would otherwise pull
	// the whole multi-gigabyte object into memory for every probe.
	raw, readErr := readCapped(resp.Response.Body, RangeRequestBytes)
	if readErr != nil {
		return tapResult{Tap: Tap{Success: false, ResponseTime: elapsed, Error: ErrorReadError}}
	}

	if len(raw) == 0 {
		return tapResult{Tap: Tap{Success: false, ResponseTime: elapsed, Error: ErrorInvalidBody}}
	}

	declaredSize, ok := declaredContentLength(resp.Header)
	if !ok {
		declaredSize = int64(len(raw))
	}

	return tapResult{
		Tap: Tap{
			Success:       true,
			ContentLength: declaredSize,
			ETag:          resp.Header.Get("ETag"),
			ResponseTime:  elapsed,
			Error:         ErrorNone,
		},
		body: raw,
	}
}

// readCapped reads at most limit bytes from body and closes it, discarding
// whatever's left unread — the probe only ever needs a CAR header prefix,
// never the full object a non-Range-aware endpoint might send instead.
func readCapped(body io.ReadCloser, limit int64) ([]byte, error) {
	defer body.Close()
	return io.ReadAll(io.LimitReader(body, limit))
}

// declaredContentLength prefers the total size reported in a Content-Range
// response header (the usual case for a 206 ranged response) and falls back
// to Content-Length.
func declaredContentLength(h http.Header) (int64, bool) {
	if header := h.Get("Content-Range"); header != "" {
		if idx := strings.LastIndex(header, "/"); idx >= 0 && idx+1 < len(header) {
			if total, err := strconv.ParseInt(header[idx+1:], 10, 64); err == nil {
				return total, true
			}
		}
	}

	if cl := h.Get("Content-Length"); cl != "" {
		if total, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return total, true
		}
	}

	return 0, false
}

// rootCIDFromBody parses the CAR header out of a probe's raw prefix bytes.
func rootCIDFromBody(body []byte) string {
	header := carhead.ParseHeader(body)
	if !header.Valid {
		return ""
	}
	return header.RootCID
}

func classifyTransportError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || isTimeoutError(err) {
		return ErrorTimeout
	}
	if isConnectionRefused(err) {
		return ErrorConnectionRefused
	}
	return ErrorReadError
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func isConnectionRefused(err error) bool {
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		return strings.Contains(sysErr.Err.Error(), "connection refused")
	}
	return strings.Contains(err.Error(), "connection refused")
}

// observationError reports the single, whole-observation error category the
// consistency analyzer counts — the first non-empty error category across
// either tap, since a double-tap failure in either tap is equally diagnostic
// of a gaming or outage pattern.
func observationError(first, second Tap) ErrorKind {
	if first.Error != ErrorNone {
		return first.Error
	}
	return second.Error
}

func avgMillis(a, b time.Duration) int64 {
	return (a.Milliseconds() + b.Milliseconds()) / 2
}
