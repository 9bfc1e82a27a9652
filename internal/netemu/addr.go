// SPDX-License-Identifier: MPL-2.0

package netemu

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// IPAllocator hands out host addresses from a base prefix, starting at
// offset 1 like 10.0.0.1, 10.0.0.2.
type IPAllocator struct {
	base netip.Prefix
	next uint64
	max  uint64
}

// NewIPAllocator parses base, such as "10.0.0.0/8".
func NewIPAllocator(base string) (*IPAllocator, error) {
	p, err := netip.ParsePrefix(base)
	if err != nil {
		return nil, fmt.Errorf("invalid IP base %q: %w", base, err)
	}
	if !p.Addr().Is4() {
		return nil, fmt.Errorf("invalid IP base %q: only IPv4 is supported", base)
	}
	p = p.Masked()
	hostBits := 32 - p.Bits()
	if hostBits < 2 {
		return nil, fmt.Errorf("invalid IP base %q: prefix too long", base)
	}
	return &IPAllocator{base: p, next: 1, max: (uint64(1) << hostBits) - 2}, nil
}

// Prefix returns the base prefix.
func (a *IPAllocator) Prefix() netip.Prefix {
	return a.base
}

// Next returns the next host address with the base prefix length.
func (a *IPAllocator) Next() (netip.Prefix, error) {
	if a.next > a.max {
		return netip.Prefix{}, fmt.Errorf("IP base %s exhausted after %d hosts", a.base, a.max)
	}
	addr := offset(a.base.Addr(), a.next)
	a.next++
	return netip.PrefixFrom(addr, a.base.Bits()), nil
}

// ParseHostIP accepts "a.b.c.d" or "a.b.c.d/n"; a bare address takes the
// base prefix length.
func (a *IPAllocator) ParseHostIP(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		return netip.ParsePrefix(s)
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, a.base.Bits()), nil
}

func offset(addr netip.Addr, n uint64) netip.Addr {
	b := addr.As4()
	v := uint64(binary.BigEndian.Uint32(b[:])) + n
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return netip.AddrFrom4(b)
}

// MACForIndex returns the locally administered style MAC used by --mac:
// host 1 gets 00:00:00:00:00:01.
func MACForIndex(i uint64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], i)
	return net.HardwareAddr(b[2:]).String()
}

// DPID returns the 16 hex digit datapath id taken from the first run of
// digits in a switch name, or "" when the name has none.
func DPID(name string) string {
	start := strings.IndexAny(name, "0123456789")
	if start < 0 {
		return ""
	}
	end := start
	for end < len(name) && name[end] >= '0' && name[end] <= '9' {
		end++
	}
	n, err := strconv.ParseUint(name[start:end], 10, 64)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%016x", n)
}
