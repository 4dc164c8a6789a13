//go:build !linux

package discovery

import (
	"context"
	"errors"
	"net"
	"net/netip"
)

// NetlinkNeighbors is only available on linux.
type NetlinkNeighbors struct{}

func (NetlinkNeighbors) Neighbors(context.Context) (map[netip.Addr]net.HardwareAddr, error) {
	return nil, errors.New("neighbour table harvesting requires linux")
}
