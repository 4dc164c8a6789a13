// Package pool tracks the free addresses of a single IPv4 subnet as an ordered
// set of disjoint intervals.
package pool

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/Flarenzy/smart-ipam/internal/domain"
	"github.com/google/btree"
)

const degree = 16

// span is an inclusive run of free addresses, keyed by its first address.
type span struct {
	first, last uint32
}

func lessSpan(a, b span) bool {
	return a.first < b.first
}

// Pool is not safe for concurrent use. The ledger serializes access per subnet.
type Pool struct {
	prefix   netip.Prefix
	gateway  netip.Addr
	free     *btree.BTreeG[span]
	total    uint64
	reserved uint64
	used     uint64
}

// New builds a pool whose free set is the host range of prefix minus the gateway.
func New(prefix netip.Prefix, gateway netip.Addr) *Pool {
	p := &Pool{
		prefix:  prefix.Masked(),
		gateway: gateway,
		free:    btree.NewG(degree, lessSpan),
	}

	first, last, ok := domain.HostRange(p.prefix)
	if !ok {
		return p
	}
	p.free.ReplaceOrInsert(span{first: toUint32(first), last: toUint32(last)})
	p.total = domain.HostCount(p.prefix)
	if domain.InHostRange(p.prefix, gateway) && p.take(toUint32(gateway)) {
		p.reserved = 1
	}
	return p
}

func (p *Pool) Prefix() netip.Prefix {
	return p.prefix
}

// ReserveNextFree takes the numerically lowest free address.
func (p *Pool) ReserveNextFree() (netip.Addr, error) {
	s, ok := p.free.DeleteMin()
	if !ok {
		return netip.Addr{}, fmt.Errorf("%w: %s", domain.ErrExhausted, p.prefix)
	}
	if s.first < s.last {
		p.free.ReplaceOrInsert(span{first: s.first + 1, last: s.last})
	}
	p.used++
	return fromUint32(s.first), nil
}

func (p *Pool) ReserveSpecific(addr netip.Addr) error {
	if err := p.checkAllocatable(addr); err != nil {
		return err
	}
	if !p.take(toUint32(addr)) {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyActive, addr)
	}
	p.used++
	return nil
}

func (p *Pool) Release(addr netip.Addr) error {
	if p.checkAllocatable(addr) != nil {
		return fmt.Errorf("%w: %s", domain.ErrNotActive, addr)
	}
	v := toUint32(addr)
	if _, free := p.containing(v); free {
		return fmt.Errorf("%w: %s", domain.ErrNotActive, addr)
	}

	merged := span{first: v, last: v}
	if prev, ok := p.predecessor(v); ok && prev.last == v-1 {
		p.free.Delete(prev)
		merged.first = prev.first
	}
	if next, ok := p.free.Get(span{first: v + 1}); ok {
		p.free.Delete(next)
		merged.last = next.last
	}
	p.free.ReplaceOrInsert(merged)
	p.used--
	return nil
}

// IsFree reports whether addr could be reserved right now.
func (p *Pool) IsFree(addr netip.Addr) bool {
	if p.checkAllocatable(addr) != nil {
		return false
	}
	_, ok := p.containing(toUint32(addr))
	return ok
}

// Utilization returns the active count and the host count of the subnet.
func (p *Pool) Utilization() (allocated, total uint64) {
	return p.used, p.total
}

// Reserved is the number of hosts that can never be handed out.
func (p *Pool) Reserved() uint64 {
	return p.reserved
}

// Free is the number of addresses still available.
func (p *Pool) Free() uint64 {
	return p.total - p.reserved - p.used
}

func (p *Pool) checkAllocatable(addr netip.Addr) error {
	addr = addr.Unmap()
	if !addr.Is4() || !domain.InHostRange(p.prefix, addr) {
		return fmt.Errorf("%w: %s not in %s", domain.ErrNotInSubnet, addr, p.prefix)
	}
	if addr == p.gateway {
		return fmt.Errorf("%w: %s is the gateway of %s", domain.ErrReservedAddress, addr, p.prefix)
	}
	return nil
}

// predecessor returns the interval with the greatest first address <= v.
func (p *Pool) predecessor(v uint32) (span, bool) {
	var (
		found span
		ok    bool
	)
	p.free.DescendLessOrEqual(span{first: v}, func(s span) bool {
		found, ok = s, true
		return false
	})
	return found, ok
}

func (p *Pool) containing(v uint32) (span, bool) {
	s, ok := p.predecessor(v)
	if !ok || s.last < v {
		return span{}, false
	}
	return s, true
}

// take removes a single free address, splitting the interval that holds it.
func (p *Pool) take(v uint32) bool {
	s, ok := p.containing(v)
	if !ok {
		return false
	}
	p.free.Delete(s)
	if s.first < v {
		p.free.ReplaceOrInsert(span{first: s.first, last: v - 1})
	}
	if v < s.last {
		p.free.ReplaceOrInsert(span{first: v + 1, last: s.last})
	}
	return true
}

func toUint32(addr netip.Addr) uint32 {
	b := addr.Unmap().As4()
	return binary.BigEndian.Uint32(b[:])
}

func fromUint32(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}
