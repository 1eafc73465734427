// Package multiaddr turns the textual multiaddr strings returned by the
// content-routing index (e.g. "/dns4/example.com/tcp/443/https") into plain
// "scheme://host:port" endpoints a regular HTTP client can dial.
package multiaddr

import "strings"

// ResolveAll parses every address in addrs and returns the ones that
// resolved to a complete "scheme://host:port" URL, preserving order and
// silently dropping anything unparsable, matching the filter_map behavior
// of the original resolver.
func ResolveAll(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if url, ok := resolve(addr); ok {
			out = append(out, url)
		}
	}
	return out
}

func resolve(addr string) (string, bool) {
	segments := strings.Split(strings.Trim(addr, "/"), "/")

	var protocol, host, port string
	for i := 0; i < len(segments); i++ {
		switch segments[i] {
		case "dns", "dns4", "dns6", "ip4", "ip6":
			if i+1 >= len(segments) {
				return "", false
			}
			host = segments[i+1]
			i++
		case "tcp", "udp":
			if i+1 >= len(segments) {
				return "", false
			}
			port = segments[i+1]
			i++
		case "http":
			protocol = "http"
		case "https":
			protocol = "https"
		default:
			// unrecognized protocol component, ignored like the original's catch-all arm
		}
	}

	if protocol == "" || host == "" || port == "" {
		return "", false
	}
	return protocol + "://" + host + ":" + port, true
}
