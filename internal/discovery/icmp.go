package discovery

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

const defaultPingTimeout = time.Second

// ICMPProber sends one echo request per probe. Unprivileged mode uses UDP
// ICMP sockets (net.ipv4.ping_group_range); privileged mode needs CAP_NET_RAW.
type ICMPProber struct {
	Privileged bool
}

func (p ICMPProber) Probe(ctx context.Context, addr netip.Addr) (Observation, error) {
	pinger, err := probing.NewPinger(addr.String())
	if err != nil {
		return Observation{}, fmt.Errorf("create pinger for %s: %w", addr, err)
	}
	pinger.Count = 1
	pinger.SetPrivileged(p.Privileged)
	pinger.Timeout = defaultPingTimeout
	if deadline, ok := ctx.Deadline(); ok {
		pinger.Timeout = time.Until(deadline)
	}

	if err = pinger.RunWithContext(ctx); err != nil {
		return Observation{}, fmt.Errorf("ping %s: %w", addr, err)
	}
	if pinger.Statistics().PacketsRecv == 0 {
		return Observation{}, ErrNoResponse
	}
	return Observation{}, nil
}
