// Package contactindex resolves a libp2p peer id to its advertised
// multiaddrs via a provider-info index (cid.contact), and extracts usable
// HTTP addresses from the provider's advertisement record.
package contactindex

import (
	"context"
	"errors"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/fidlabs/piece-sentinel/httpclient"
)

// ErrNoData is returned when the index has no record for the requested peer.
var ErrNoData = errors.New("contactindex: no data for peer")

// ErrInvalidResponse is returned when the upstream call failed outright or
// its body could not be parsed as JSON.
var ErrInvalidResponse = errors.New("contactindex: invalid response")

// Client queries a provider-info index for advertised multiaddrs.
type Client struct {
	http *httpclient.Client
}

// New builds a Client against baseURL (e.g. https://cid.contact).
func New(baseURL string, opts ...httpclient.Option) *Client {
	base := append([]httpclient.Option{
		httpclient.WithBaseURL(strings.TrimRight(baseURL, "/")),
		httpclient.WithServiceName("contactindex"),
	}, opts...)
	return &Client{http: httpclient.New(base...)}
}

// GetContact fetches the provider record for peerID as a raw JSON document.
func (c *Client) GetContact(ctx context.Context, peerID string) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	resp, err := c.http.Request("GetContact").
		Header("Accept", "application/json").
		Header("User-Agent", "piece-sentinel/0.1.0").
		Decode(&raw).
		Get(ctx, "providers", peerID)
	if err != nil {
		return nil, ErrInvalidResponse
	}
	if !resp.IsSuccess() {
		return nil, ErrNoData
	}
	if raw == nil {
		return nil, ErrInvalidResponse
	}
	return raw, nil
}

// ExtractAddresses pulls the advertised multiaddrs out of a provider record:
// the ExtendedProviders addresses when that field is present and parses,
// otherwise the Publisher addresses; the two are never combined.
// ExtendedProviders addresses are passed through unchanged.
// Publisher addresses are URL-decoded, have doubled path separators
// collapsed, are truncated at an "/http-path" segment (the ipni gateway
// rewrite marker), and gain an explicit "/tcp/443/https" or "/tcp/80/http"
// when the original has no /tcp/ segment at all — the Publisher record
// encodes a gateway-relative path, not a dialable multiaddr, unless we fill
// in the implied port.
func ExtractAddresses(doc map[string]json.RawMessage) []string {
	if raw, ok := doc["ExtendedProviders"]; ok {
		var wrapper struct {
			Providers *[]struct {
				Addrs []string `json:"Addrs"`
			} `json:"Providers"`
		}
		if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Providers != nil {
			var addrs []string
			for _, p := range *wrapper.Providers {
				addrs = append(addrs, p.Addrs...)
			}
			return addrs
		}
	}

	if raw, ok := doc["Publisher"]; ok {
		var wrapper struct {
			Addrs *[]string `json:"Addrs"`
		}
		if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Addrs != nil {
			addrs := make([]string, 0, len(*wrapper.Addrs))
			for _, addr := range *wrapper.Addrs {
				addrs = append(addrs, transformPublisherAddr(addr))
			}
			return addrs
		}
	}

	return nil
}

func transformPublisherAddr(addr string) string {
	decoded, err := url.QueryUnescape(addr)
	if err != nil {
		decoded = addr
	}

	cleaned := strings.ReplaceAll(decoded, "//", "/")

	trimmed := cleaned
	if idx := strings.Index(cleaned, "/http-path"); idx >= 0 {
		trimmed = cleaned[:idx]
	}

	hasTCP := strings.Contains(trimmed, "/tcp/")
	switch {
	case !hasTCP && strings.HasSuffix(trimmed, "/https"):
		return strings.Replace(trimmed, "/https", "/tcp/443/https", 1)
	case !hasTCP && strings.HasSuffix(trimmed, "/http"):
		return strings.Replace(trimmed, "/http", "/tcp/80/http", 1)
	default:
		return trimmed
	}
}
