// Package netfilter restricts which source addresses the responder will
// process. The filter is a single IPv4 CIDR taken from the udp_netmask
// setting; it is parsed once at startup and consulted for every datagram.
package netfilter

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// ConfigError reports an unusable netmask setting. It is always fatal: the
// responder refuses to start rather than guessing which hosts to answer.
type ConfigError struct {
	Value  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid netmask %q: %s: %v", e.Value, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid netmask %q: %s", e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Filter tests source addresses against an IPv4 network.
// The zero value and a nil *Filter allow everything.
type Filter struct {
	prefix netip.Prefix
	set    bool
}

// Parse builds a Filter from a CIDR string such as "192.168.1.0/24".
// An empty string yields an allow-all filter. Host bits are masked, so
// "192.168.1.7/24" and "192.168.1.0/24" are equivalent.
func Parse(cidr string) (*Filter, error) {
	cidr = strings.TrimSpace(cidr)
	if cidr == "" {
		return &Filter{}, nil
	}

	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, &ConfigError{Value: cidr, Reason: "format must be #.#.#.#/#", Err: err}
	}
	if !prefix.Addr().Is4() {
		return nil, &ConfigError{Value: cidr, Reason: "only IPv4 networks are supported"}
	}

	return &Filter{prefix: prefix.Masked(), set: true}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(cidr string) *Filter {
	f, err := Parse(cidr)
	if err != nil {
		panic(err)
	}
	return f
}

// Allowed reports whether ip falls inside the configured network.
func (f *Filter) Allowed(ip net.IP) bool {
	if f == nil || !f.set {
		return true
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return false
	}
	return f.prefix.Contains(addr.Unmap())
}

// AllowedAddr is Allowed for a UDP source address.
func (f *Filter) AllowedAddr(addr *net.UDPAddr) bool {
	if addr == nil {
		return f == nil || !f.set
	}
	return f.Allowed(addr.IP)
}

// String returns the canonical CIDR, or "any" for an allow-all filter.
func (f *Filter) String() string {
	if f == nil || !f.set {
		return "any"
	}
	return f.prefix.String()
}
