package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"time"
)

// Validate rejects configurations the node cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	if addr := strings.TrimSpace(c.RPCAddress); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("RPCAddress: %w", err)
		}
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit: RequestsPerSecond must not be negative")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit: Burst must be positive when a rate is set")
	}
	if _, err := c.RateLimit.Proxies(); err != nil {
		return err
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 {
		return fmt.Errorf("logging: rotation limits must not be negative")
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.SecretEnv) == "" {
		return fmt.Errorf("auth: SecretEnv must name the variable holding the secret")
	}
	if _, err := c.Auth.TTL(); err != nil {
		return err
	}
	return nil
}

// TTL parses TokenTTL; empty means one hour.
func (a Auth) TTL() (time.Duration, error) {
	value := strings.TrimSpace(a.TokenTTL)
	if value == "" {
		return time.Hour, nil
	}
	ttl, err := time.ParseDuration(value)
	if err != nil || ttl <= 0 {
		return 0, fmt.Errorf("auth: invalid TokenTTL %q", a.TokenTTL)
	}
	return ttl, nil
}

// Secret resolves the HMAC secret from the environment.
func (a Auth) Secret(lookup func(string) (string, bool)) ([]byte, error) {
	name := strings.TrimSpace(a.SecretEnv)
	if name == "" {
		name = DefaultSecretEnv
	}
	value, ok := lookup(name)
	if !ok || strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("auth: %s is not set", name)
	}
	return []byte(value), nil
}

// SlogLevel parses Level; empty means info.
func (l Logging) SlogLevel() (slog.Level, error) {
	var level slog.Level
	value := strings.TrimSpace(l.Level)
	if value == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return 0, fmt.Errorf("logging: invalid Level %q", l.Level)
	}
	return level, nil
}

// Proxies parses TrustedProxies. Bare addresses become single-host prefixes.
func (r RateLimit) Proxies() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(r.TrustedProxies))
	for _, raw := range r.TrustedProxies {
		value := strings.TrimSpace(raw)
		if strings.Contains(value, "/") {
			prefix, err := netip.ParsePrefix(value)
			if err != nil {
				return nil, fmt.Errorf("rate_limit: TrustedProxies: %w", err)
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(value)
		if err != nil {
			return nil, fmt.Errorf("rate_limit: TrustedProxies: %w", err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
