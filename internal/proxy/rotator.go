// Package proxy implements the sticky-port rotation used to route outgoing
// retrieval probes through an upstream HTTP proxy that exposes a pool of
// egress IPs, one per port. The active port is shared across every process
// instance through Redis so they all settle on the same egress IP during a
// rotation window instead of fighting over independent local counters.
package proxy

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "sentinel:proxy:"
	rotationInterval = 24 * time.Hour
)

// rotateScript atomically decides whether the rotation window has expired.
// If it has, it commits the caller's freshly rolled candidate port and
// resets the window; otherwise it returns whatever port is already active.
// Running this as a single script keeps the read-decide-write sequence
// atomic even with several instances racing to rotate at once.
var rotateScript = redis.NewScript(`
local portKey = KEYS[1]
local changeKey = KEYS[2]
local now = tonumber(ARGV[1])
local intervalSeconds = tonumber(ARGV[2])
local candidatePort = ARGV[3]

local last = tonumber(redis.call("GET", changeKey))
if last == nil or (now - last) > intervalSeconds then
	redis.call("SET", portKey, candidatePort)
	redis.call("SET", changeKey, now)
	return candidatePort
end

local port = redis.call("GET", portKey)
if port == false then
	redis.call("SET", portKey, candidatePort)
	redis.call("SET", changeKey, now)
	return candidatePort
end
return port
`)

// Config describes an optional upstream HTTP proxy with sticky-port
// rotation. A zero Config (empty URL) means no proxy is configured.
type Config struct {
	// URL is the proxy's scheme and host, without a port, e.g. "http://proxy.example.com".
	URL         string
	User        string
	Password    string
	DefaultPort int
	// IPCount is how many consecutive ports starting at DefaultPort the
	// proxy exposes. Zero disables rotation and pins to DefaultPort.
	IPCount int
}

// Rotator hands out the proxy URL in effect for the current rotation
// window, rolling to a new random port within the configured range every
// 24 hours.
type Rotator struct {
	redis     redis.UniversalClient
	cfg       Config
	keyPrefix string
}

// NewRotator builds a Rotator backed by client. cfg.URL empty disables the
// proxy entirely; CurrentURL then always returns (nil, nil).
func NewRotator(client redis.UniversalClient, cfg Config) *Rotator {
	return &Rotator{redis: client, cfg: cfg, keyPrefix: defaultKeyPrefix}
}

// CurrentURL returns the proxy URL to dial right now, with basic auth
// embedded when credentials are configured. Returns (nil, nil) if no proxy
// is configured.
func (r *Rotator) CurrentURL(ctx context.Context) (*url.URL, error) {
	if r.cfg.URL == "" {
		return nil, nil
	}

	port := r.cfg.DefaultPort
	if r.cfg.IPCount > 0 {
		p, err := r.rotatedPort(ctx)
		if err != nil {
			return nil, fmt.Errorf("proxy: resolve sticky port: %w", err)
		}
		port = p
	}

	u, err := url.Parse(fmt.Sprintf("%s:%d", r.cfg.URL, port))
	if err != nil {
		return nil, fmt.Errorf("proxy: parse proxy url: %w", err)
	}
	if r.cfg.User != "" {
		u.User = url.UserPassword(r.cfg.User, r.cfg.Password)
	}
	return u, nil
}

func (r *Rotator) rotatedPort(ctx context.Context) (int, error) {
	candidate := r.cfg.DefaultPort + rand.Intn(r.cfg.IPCount)

	res, err := rotateScript.Run(ctx, r.redis,
		[]string{r.portKey(), r.changeKey()},
		time.Now().Unix(), int64(rotationInterval/time.Second), candidate,
	).Result()
	if err != nil {
		return 0, err
	}

	switch v := res.(type) {
	case int64:
		return int(v), nil
	case string:
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("unexpected port value %q: %w", v, err)
		}
		return port, nil
	default:
		return candidate, nil
	}
}

func (r *Rotator) portKey() string   { return r.keyPrefix + "port" }
func (r *Rotator) changeKey() string { return r.keyPrefix + "last_change" }
