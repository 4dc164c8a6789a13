//go:build linux

package discovery

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
)

// NetlinkNeighbors dumps the kernel neighbour table over rtnetlink.
type NetlinkNeighbors struct{}

func (NetlinkNeighbors) Neighbors(ctx context.Context) (map[netip.Addr]net.HardwareAddr, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	neighs, err := netlink.NeighList(0, netlink.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("list neighbours: %w", err)
	}

	table := make(map[netip.Addr]net.HardwareAddr, len(neighs))
	for _, n := range neighs {
		if n.State&(netlink.NUD_INCOMPLETE|netlink.NUD_FAILED|netlink.NUD_NOARP) != 0 {
			continue
		}
		if !usableMAC(n.HardwareAddr) {
			continue
		}
		addr, ok := netip.AddrFromSlice(n.IP)
		if !ok {
			continue
		}
		table[addr.Unmap()] = n.HardwareAddr
	}
	return table, nil
}
