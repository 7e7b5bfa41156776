package container

import (
	"fmt"
	"time"

	"github.com/serroba/ratelimiter/internal/ratelimit"
)

// Store backends.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Options configures the service. Every field is also readable from a
// SERVICE_* environment variable.
type Options struct {
	Port          int    `default:"8888"            help:"Port to listen on"                              short:"p"`
	RedisAddr     string `default:"localhost:6379"  help:"Redis server address"                           short:"r"`
	PostgresURL   string `default:""                help:"PostgreSQL URL for rejection audit storage"`
	LogFormat     string `default:"console"         help:"Log format: console or json"`
	StoreBackend  string `default:"redis"           help:"Limiter store backend: redis or memory"`
	KeyPrefix     string `default:"ratelimiter"     help:"Prefix for limiter keys"`
	Audit         bool   `default:"true"            help:"Publish rejection events to Redis Streams"`
	ConsumerGroup string `default:"ratelimit-audit" help:"Redis Streams consumer group for audit events"`

	GlobalWindow string `default:"1m" help:"Sliding window of the global scope"`
	GlobalMax    int    `default:"100" help:"Hits allowed per window in the global scope"`
	ReadWindow   string `default:"1m" help:"Sliding window of the read scope"`
	ReadMax      int    `default:"60"  help:"Hits allowed per window in the read scope"`
	WriteWindow  string `default:"1m" help:"Sliding window of the write scope"`
	WriteMax     int    `default:"20"  help:"Hits allowed per window in the write scope"`
}

// Policy builds the rate limit policy from the per-scope options.
func (o *Options) Policy() (*ratelimit.Policy, error) {
	scopes := []struct {
		scope  ratelimit.Scope
		window string
		max    int
	}{
		{ratelimit.ScopeGlobal, o.GlobalWindow, o.GlobalMax},
		{ratelimit.ScopeRead, o.ReadWindow, o.ReadMax},
		{ratelimit.ScopeWrite, o.WriteWindow, o.WriteMax},
	}

	policy := &ratelimit.Policy{Limits: make(map[ratelimit.Scope][]ratelimit.LimitConfig, len(scopes))}

	for _, s := range scopes {
		window, err := time.ParseDuration(s.window)
		if err != nil {
			return nil, fmt.Errorf("%s window: %w", s.scope, err)
		}

		policy.Limits[s.scope] = []ratelimit.LimitConfig{{Window: window, Max: int64(s.max)}}
	}

	return policy, nil
}
