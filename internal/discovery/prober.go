package discovery

import (
	"context"
	"errors"
	"net"
	"net/netip"
)

var (
	// ErrNoResponse means the target stayed silent; the probe may be retried.
	ErrNoResponse = errors.New("no response")
	// ErrAbsent means the target is definitely not present; retrying cannot help.
	ErrAbsent = errors.New("target absent")
)

// Observation is what a single successful probe learned about a target.
type Observation struct {
	MAC      net.HardwareAddr
	Hostname string
	Vendor   string
}

type Prober interface {
	Probe(ctx context.Context, addr netip.Addr) (Observation, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, addr netip.Addr) (Observation, error)

func (f ProberFunc) Probe(ctx context.Context, addr netip.Addr) (Observation, error) {
	return f(ctx, addr)
}

type HostnameResolver interface {
	LookupAddr(ctx context.Context, addr netip.Addr) (string, error)
}

type VendorLookup interface {
	Vendor(mac net.HardwareAddr) string
}
