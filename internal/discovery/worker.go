package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/fidlabs/piece-sentinel/internal/address"
	"github.com/fidlabs/piece-sentinel/internal/analyzer"
	"github.com/fidlabs/piece-sentinel/internal/chainrpc"
	"github.com/fidlabs/piece-sentinel/internal/contactindex"
	"github.com/fidlabs/piece-sentinel/internal/dealsource"
	"github.com/fidlabs/piece-sentinel/internal/multiaddr"
	"github.com/fidlabs/piece-sentinel/internal/urltester"
)

// urlTestConcurrency bounds how many candidate piece URLs are probed at
// once within a single trial.
const urlTestConcurrency = 20

// Worker resolves a provider's (optionally client-scoped) HTTP endpoints,
// samples pieces, tests retrievability and reports one verdict per call.
type Worker struct {
	chain   *chainrpc.Client
	contact *contactindex.Client
	deals   dealsource.Source
	tester  *urltester.Tester
}

// New builds a Worker from its resolved dependencies.
func New(chain *chainrpc.Client, contact *contactindex.Client, deals dealsource.Source, tester *urltester.Tester) *Worker {
	return &Worker{chain: chain, contact: contact, deals: deals, tester: tester}
}

// Discover runs one discovery trial for providerID, optionally scoped to
// clientID, and returns its outcome. It never returns a non-nil error for
// trial failures classified by ResultCode/ErrorCode — only for a context
// cancellation or a truly unexpected condition the caller must see.
func (w *Worker) Discover(ctx context.Context, providerID address.ProviderID, clientID *address.ClientID) (Result, error) {
	discType := DiscoveryTypeProvider
	if clientID != nil {
		discType = DiscoveryTypeProviderClient
	}
	result := Result{Type: discType, ResultCode: ResultError}

	endpoints, code, errCode, err := w.resolveEndpoints(ctx, providerID)
	if err != nil {
		return Result{}, err
	}
	if errCode != nil {
		result.ErrorCode = errCode
		return result, nil
	}
	if code != ResultSuccess {
		result.ResultCode = code
		return result, nil
	}

	pieces, err := w.deals.SamplePieces(ctx, providerID, clientID, dealsource.MaxSampleLimit)
	if err != nil {
		errCode := ErrorFailedToGetDeals
		result.ErrorCode = &errCode
		return result, nil
	}
	if len(pieces) == 0 {
		result.ResultCode = ResultNoDealsFound
		return result, nil
	}

	urls := buildPieceURLs(endpoints, pieces)

	observations, err := w.testURLs(ctx, urls)
	if err != nil {
		return Result{}, err
	}

	analysis := analyzer.Analyze(observations)
	working := firstWorkingURL(observations)

	result.Analysis = analysis
	result.RetrievabilityPercent = analysis.RetrievabilityPercent
	result.WorkingURL = working
	if working != "" {
		result.ResultCode = ResultSuccess
	} else {
		result.ResultCode = ResultFailedToGetWorkingUrl
	}

	return result, nil
}

// resolveEndpoints is the A step: curio fast path, lotus fallback, contact
// index lookup, multiaddr resolution, and dedup, mirroring
// get_provider_endpoints exactly in control flow and ResultCode/ErrorCode
// assignment.
func (w *Worker) resolveEndpoints(ctx context.Context, providerID address.ProviderID) (endpoints []string, code ResultCode, errCode *ErrorCode, err error) {
	addr := providerID.Address()

	peerID, perr := ResolvePeerID(ctx, w.chain, addr)
	if perr != nil {
		ec := ErrorFailedToGetPeerId
		return nil, "", &ec, nil
	}

	doc, cerr := w.contact.GetContact(ctx, peerID)
	if cerr != nil {
		if cerr == contactindex.ErrNoData {
			return nil, ResultNoCidContactData, nil, nil
		}
		ec := ErrorFailedToRetrieveCidContactData
		return nil, "", &ec, nil
	}

	addrs := contactindex.ExtractAddresses(doc)
	if len(addrs) == 0 {
		return nil, ResultMissingAddrFromCidContact, nil, nil
	}

	resolved := multiaddr.ResolveAll(addrs)
	if len(resolved) == 0 {
		return nil, ResultMissingHttpAddrFromCidContact, nil, nil
	}

	deduped := dedupSorted(resolved)
	return deduped, ResultSuccess, nil, nil
}

func dedupSorted(in []string) []string {
	sorted := append([]string(nil), in...)
	sort.Strings(sorted)

	out := make([]string, 0, len(sorted))
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// buildPieceURLs is the C→D bridge: the endpoint x piece cross product,
// {endpoint}/piece/{piece_cid}, with each endpoint's trailing slash
// stripped first.
func buildPieceURLs(endpoints []string, pieces []dealsource.Piece) []string {
	urls := make([]string, 0, len(endpoints)*len(pieces))
	for _, endpoint := range endpoints {
		trimmed := strings.TrimRight(endpoint, "/")
		for _, piece := range pieces {
			urls = append(urls, fmt.Sprintf("%s/piece/%s", trimmed, piece.PieceCID))
		}
	}
	return urls
}

// testURLs is the D step: double-tap every candidate URL, bounded to
// urlTestConcurrency concurrent probes, cancelled as a whole if the parent
// context is cancelled.
func (w *Worker) testURLs(ctx context.Context, urls []string) ([]urltester.Observation, error) {
	observations := make([]urltester.Observation, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(urlTestConcurrency)

	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			observations[i] = w.tester.Test(gctx, u)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return observations, nil
}

// firstWorkingURL returns the first observation that is both valid and
// consistent, preserving test order.
func firstWorkingURL(observations []urltester.Observation) string {
	for _, o := range observations {
		if o.Valid && o.Consistent {
			return o.URL
		}
	}
	return ""
}
