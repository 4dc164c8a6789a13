package discovery

import (
	"log/slog"
	"time"

	"github.com/Flarenzy/smart-ipam/internal/domain"
)

type Option func(*Engine)

// WithPingProber replaces the ICMP prober. A nil prober disables the method.
func WithPingProber(p Prober) Option {
	return func(e *Engine) {
		e.ping = p
	}
}

func WithARPProber(p Prober) Option {
	return func(e *Engine) {
		e.arp = p
	}
}

func WithSNMPProber(p Prober) Option {
	return func(e *Engine) {
		e.snmp = p
	}
}

func WithResolver(r HostnameResolver) Option {
	return func(e *Engine) {
		e.resolver = r
	}
}

func WithVendorLookup(v VendorLookup) Option {
	return func(e *Engine) {
		e.vendors = v
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithClock(now domain.Clock) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithTimeout sets the deadline of a single probe attempt.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRetries sets how many times a silent target is probed again.
func WithRetries(n int, delay time.Duration) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.retries = n
		}
		if delay >= 0 {
			e.retryDelay = delay
		}
	}
}

func WithMaxTargets(n int) Option {
	return func(e *Engine) {
		e.maxTargets = n
	}
}
