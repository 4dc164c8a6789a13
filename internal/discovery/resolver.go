package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/miekg/dns"
)

const resolvConf = "/etc/resolv.conf"

// DNSResolver looks up PTR records against a fixed set of servers.
type DNSResolver struct {
	client  *dns.Client
	servers []string
}

// NewDNSResolver uses server ("host" or "host:port") when set, otherwise the
// nameservers from /etc/resolv.conf.
func NewDNSResolver(server string) (*DNSResolver, error) {
	var servers []string
	if server != "" {
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, "53")
		}
		servers = []string{server}
	} else {
		conf, err := dns.ClientConfigFromFile(resolvConf)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", resolvConf, err)
		}
		for _, s := range conf.Servers {
			servers = append(servers, net.JoinHostPort(s, conf.Port))
		}
	}
	if len(servers) == 0 {
		return nil, errors.New("no dns servers configured")
	}
	return &DNSResolver{client: &dns.Client{Net: "udp"}, servers: servers}, nil
}

func (r *DNSResolver) LookupAddr(ctx context.Context, addr netip.Addr) (string, error) {
	name, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return "", err
	}
	msg := new(dns.Msg)
	msg.SetQuestion(name, dns.TypePTR)

	var lastErr error
	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			return "", fmt.Errorf("ptr %s: %s", addr, dns.RcodeToString[resp.Rcode])
		}
		for _, rr := range resp.Answer {
			if ptr, ok := rr.(*dns.PTR); ok {
				return strings.TrimSuffix(ptr.Ptr, "."), nil
			}
		}
		return "", fmt.Errorf("ptr %s: no answer", addr)
	}
	return "", lastErr
}
