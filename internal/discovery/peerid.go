package discovery

import (
	"context"

	"github.com/fidlabs/piece-sentinel/internal/address"
	"github.com/fidlabs/piece-sentinel/internal/chainrpc"
)

// ResolvePeerID fetches addr's current libp2p peer id, trying the Curio fast
// path first and falling back to the Lotus JSON-RPC lookup whenever Curio
// errors or reports no peer id at all.
func ResolvePeerID(ctx context.Context, chain *chainrpc.Client, addr address.ProviderAddress) (string, error) {
	peerID, err := chain.ValidCurioProvider(ctx, addr)
	if err == nil && peerID != nil {
		return *peerID, nil
	}

	return chain.GetPeerID(ctx, addr)
}
