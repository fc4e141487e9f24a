// Package privacy masks client addresses before they reach logs.
package privacy

import "net/netip"

const (
	v4Bits = 24
	v6Bits = 48
)

// AnonymizeIP truncates addr to its network prefix (/24 for IPv4, /48 for
// IPv6). IPv4-mapped IPv6 addresses are treated as IPv4.
func AnonymizeIP(addr string) string {
	if addr == "" || addr == "unknown" {
		return "unknown"
	}
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return "invalid"
	}
	ip = ip.Unmap()
	bits := v6Bits
	if ip.Is4() {
		bits = v4Bits
	}
	prefix, err := ip.WithZone("").Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}
