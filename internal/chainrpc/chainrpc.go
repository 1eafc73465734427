// Package chainrpc resolves a storage provider's libp2p peer id from the
// chain, preferring a direct ABI contract call (Curio) and falling back to
// a Lotus JSON-RPC method call when that fails.
package chainrpc

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/crypto/sha3"

	"github.com/fidlabs/piece-sentinel/httpclient"
	"github.com/fidlabs/piece-sentinel/internal/address"
)

// minerPeerIDContract is the contract address exposing getPeerData(uint64).
const minerPeerIDContract = "0x14183aD016Ddc83D638425D6328009aa390339Ce"

const curioAttempts = 3
const curioRetryDelay = time.Second

// ErrEmptyPeerID is returned when an upstream call succeeded but reported no
// peer id.
var ErrEmptyPeerID = errors.New("chainrpc: empty peer id")

// Client resolves peer ids via an eth_call ABI fast path (Curio) or a Lotus
// JSON-RPC fallback, both reached through the shared httpclient chain.
type Client struct {
	http *httpclient.Client
	rpc  *httpclient.Client
}

// New builds a Client. rpcURL is the Filecoin/Ethereum JSON-RPC endpoint
// used for both the ABI fast path and the Lotus fallback (the storage
// network runs both RPC dialects behind the same Glif gateway).
func New(rpcURL string, opts ...httpclient.Option) *Client {
	base := append([]httpclient.Option{
		httpclient.WithBaseURL(rpcURL),
		httpclient.WithServiceName("chainrpc"),
	}, opts...)
	c := httpclient.New(base...)
	return &Client{http: c, rpc: c}
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// GetPeerID calls Filecoin.StateMinerInfo for addr and returns the peer id
// reported in the result. It fails both on a missing "result" key and on an
// empty PeerId — broader than the upstream RPC's own contract, matching the
// persisted-data semantics the rest of this module relies on.
func (c *Client) GetPeerID(ctx context.Context, addr address.ProviderAddress) (string, error) {
	req := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "Filecoin.StateMinerInfo",
		Params:  []any{addr.String(), nil},
	}

	var raw map[string]json.RawMessage
	resp, err := c.rpc.Request("StateMinerInfo").
		BodyJSON(req).
		Decode(&raw).
		Post(ctx, "")
	if err != nil {
		return "", fmt.Errorf("chainrpc: lotus rpc call failed: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("chainrpc: lotus rpc returned status %d", resp.StatusCode)
	}

	resultRaw, ok := raw["result"]
	if !ok {
		if msgRaw, hasMsg := raw["message"]; hasMsg {
			var msg string
			_ = json.Unmarshal(msgRaw, &msg)
			if msg != "" {
				return "", fmt.Errorf("chainrpc: %s", msg)
			}
		}
		return "", errors.New("chainrpc: missing lotus rpc result")
	}

	var result struct {
		PeerId string `json:"PeerId"`
	}
	if err := json.Unmarshal(resultRaw, &result); err != nil {
		return "", fmt.Errorf("chainrpc: missing lotus rpc PeerId: %w", err)
	}
	if result.PeerId == "" {
		return "", ErrEmptyPeerID
	}

	return result.PeerId, nil
}

// ValidCurioProvider performs the ABI fast path: an eth_call to the
// getPeerData(uint64) contract, retried up to 3 times with a 1s sleep
// between attempts. It returns (nil, nil) when the call succeeds but
// reports an empty peer id.
func (c *Client) ValidCurioProvider(ctx context.Context, addr address.ProviderAddress) (*string, error) {
	minerID, err := minerIDFromAddress(addr)
	if err != nil {
		return nil, err
	}

	callData := encodeGetPeerDataCall(minerID)

	var lastErr error
	for attempt := 1; attempt <= curioAttempts; attempt++ {
		peerID, multiaddrs, err := c.ethCall(ctx, callData)
		if err == nil {
			_ = multiaddrs // multiaddrs are re-derived via the contact index, not used here
			if peerID == "" {
				return nil, nil
			}
			return &peerID, nil
		}
		lastErr = err
		if attempt < curioAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(curioRetryDelay):
			}
		}
	}
	return nil, fmt.Errorf("chainrpc: all %d curio attempts failed: %w", curioAttempts, lastErr)
}

// minerIDFromAddress strips only the "f" prefix (not "f0") and parses the
// remainder as the numeric miner id used by the ABI call.
func minerIDFromAddress(addr address.ProviderAddress) (uint64, error) {
	s := addr.String()
	if !strings.HasPrefix(s, "f") {
		return 0, fmt.Errorf("chainrpc: address does not start with 'f': %s", s)
	}
	minerID, err := strconv.ParseUint(s[1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("chainrpc: failed to parse miner id from %q: %w", s, err)
	}
	return minerID, nil
}

// getPeerDataSelector is keccak256("getPeerData(uint64)")[:4], computed at
// init since no Solidity ABI library exists anywhere in this module's
// dependency set.
var getPeerDataSelector = func() [4]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("getPeerData(uint64)"))
	sum := h.Sum(nil)
	var sel [4]byte
	copy(sel[:], sum[:4])
	return sel
}()

func encodeGetPeerDataCall(minerID uint64) []byte {
	data := make([]byte, 4+32)
	copy(data[:4], getPeerDataSelector[:])
	binary.BigEndian.PutUint64(data[4+24:4+32], minerID)
	return data
}

type ethCallRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type ethCallTx struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

// ethCall performs the eth_call and decodes the ABI-encoded (string, bytes)
// return tuple.
func (c *Client) ethCall(ctx context.Context, callData []byte) (peerID string, multiaddrs []byte, err error) {
	req := ethCallRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_call",
		Params:  []interface{}{ethCallTx{To: minerPeerIDContract, Data: "0x" + hex.EncodeToString(callData)}, "latest"},
	}

	var raw struct {
		Result string          `json:"result"`
		Error  *json.RawMessage `json:"error"`
	}
	resp, err := c.rpc.Request("EthCallGetPeerData").
		BodyJSON(req).
		Decode(&raw).
		Post(ctx, "")
	if err != nil {
		return "", nil, err
	}
	if !resp.IsSuccess() {
		return "", nil, fmt.Errorf("chainrpc: eth_call returned status %d", resp.StatusCode)
	}
	if raw.Error != nil {
		return "", nil, fmt.Errorf("chainrpc: eth_call error: %s", string(*raw.Error))
	}
	if raw.Result == "" {
		return "", nil, errors.New("chainrpc: eth_call returned no result")
	}

	return decodePeerDataReturn(raw.Result)
}

// decodePeerDataReturn decodes the ABI encoding of
// (string peerID, bytes multiaddrs): two head words (offsets) followed by
// length-prefixed, 32-byte-padded dynamic values.
func decodePeerDataReturn(hexResult string) (peerID string, multiaddrs []byte, err error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(hexResult, "0x"))
	if err != nil {
		return "", nil, fmt.Errorf("chainrpc: invalid eth_call result hex: %w", err)
	}
	if len(raw) < 64 {
		return "", nil, errors.New("chainrpc: eth_call result too short")
	}

	peerIDOffset := bigEndianUint64(raw[24:32])
	multiaddrsOffset := bigEndianUint64(raw[56:64])

	peerID, err = decodeABIString(raw, peerIDOffset)
	if err != nil {
		return "", nil, err
	}
	multiaddrs, err = decodeABIBytes(raw, multiaddrsOffset)
	if err != nil {
		return "", nil, err
	}
	return peerID, multiaddrs, nil
}

func decodeABIString(raw []byte, offset uint64) (string, error) {
	b, err := decodeABIBytes(raw, offset)
	return string(b), err
}

func decodeABIBytes(raw []byte, offset uint64) ([]byte, error) {
	// Subtraction rather than addition against offset/length: both are
	// parsed straight out of the response and a malicious or corrupt one
	// could sit near math.MaxUint64, where offset+32 wraps and slips past
	// the bounds check it's supposed to enforce.
	rawLen := uint64(len(raw))
	if offset > rawLen || rawLen-offset < 32 {
		return nil, errors.New("chainrpc: abi offset out of range")
	}
	length := bigEndianUint64(raw[offset+24 : offset+32])
	start := offset + 32
	if start > rawLen || rawLen-start < length {
		return nil, errors.New("chainrpc: abi length out of range")
	}
	return raw[start : start+length], nil
}

func bigEndianUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = (v << 8) | uint64(c)
	}
	return v
}

