package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/muurk/ssdpd/internal/logging"
	"go.uber.org/zap"
)

const (
	// DefaultGroup is the IANA-assigned SSDP multicast group.
	DefaultGroup = "239.255.255.250"

	// DefaultPort is the IANA-assigned SSDP port.
	DefaultPort = 1900

	// maxDatagram bounds a single read. SSDP messages fit in one MTU.
	maxDatagram = 8192
)

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, maxDatagram)
		return &b
	},
}

// Config describes the socket to open.
type Config struct {
	// Interface selects where the group is joined: an interface name
	// ("eth0"), one of its IPv4 addresses, or empty / "0.0.0.0" for the
	// system default.
	Interface string

	// Group is the multicast group, DefaultGroup if empty.
	Group string

	// Port is both the local bind port and the group port.
	Port int

	// MulticastTTL is applied when > 0. The kernel default (1) keeps
	// announcements on the local segment.
	MulticastTTL int

	// Loopback delivers our own announcements to local listeners, so a media
	// server on the same host sees the device.
	Loopback bool
}

// UDPv4 is the production Conn.
type UDPv4 struct {
	conn  net.PacketConn
	pconn *ipv4.PacketConn
	group *net.UDPAddr
	ifi   *net.Interface
}

// Listen opens the SSDP socket: address reuse, bind 0.0.0.0:port, join the
// group. Any failure here is fatal to the caller.
func Listen(cfg Config) (*UDPv4, error) {
	if cfg.Group == "" {
		cfg.Group = DefaultGroup
	}

	group, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(cfg.Group, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, &NetworkError{Operation: "resolve group", Err: err, Details: cfg.Group}
	}
	if group.IP.To4() == nil || !group.IP.IsMulticast() {
		return nil, &NetworkError{Operation: "resolve group", Details: fmt.Sprintf("%s is not an IPv4 multicast address", cfg.Group)}
	}

	ifi, err := ResolveInterface(cfg.Interface)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{Control: reuseControl}
	conn, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, &NetworkError{Operation: "bind", Err: err, Details: fmt.Sprintf("0.0.0.0:%d", cfg.Port)}
	}

	pconn := ipv4.NewPacketConn(conn)
	if err := pconn.JoinGroup(ifi, group); err != nil {
		_ = conn.Close()
		return nil, &NetworkError{Operation: "join group", Err: err, Details: group.IP.String()}
	}

	if ifi != nil {
		if err := pconn.SetMulticastInterface(ifi); err != nil {
			logging.Warn("Failed to pin outbound multicast interface",
				zap.String("interface", ifi.Name),
				zap.Error(err),
			)
		}
	}
	if err := pconn.SetMulticastLoopback(cfg.Loopback); err != nil {
		logging.Debug("Multicast loopback not configurable", zap.Error(err))
	}
	if cfg.MulticastTTL > 0 {
		if err := pconn.SetMulticastTTL(cfg.MulticastTTL); err != nil {
			logging.Warn("Failed to set multicast TTL", zap.Int("ttl", cfg.MulticastTTL), zap.Error(err))
		}
	}

	ifName := "default"
	if ifi != nil {
		ifName = ifi.Name
	}
	logging.Info("SSDP socket ready",
		zap.String("local_addr", conn.LocalAddr().String()),
		zap.String("group", group.String()),
		zap.String("interface", ifName),
	)

	return &UDPv4{conn: conn, pconn: pconn, group: group, ifi: ifi}, nil
}

// reuseControl sets SO_REUSEADDR/SO_REUSEPORT before bind.
func reuseControl(network, address string, c syscall.RawConn) error {
	var optErr error
	if err := c.Control(func(fd uintptr) {
		optErr = setReuse(fd)
	}); err != nil {
		return err
	}
	return optErr
}

// Receive implements Conn.
func (u *UDPv4) Receive(deadline time.Time) ([]byte, *net.UDPAddr, error) {
	if err := u.conn.SetReadDeadline(deadline); err != nil {
		return nil, nil, &NetworkError{Operation: "set read deadline", Err: err}
	}

	bufPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufPtr)
	buf := *bufPtr

	n, _, src, err := u.pconn.ReadFrom(buf)
	if err != nil {
		return nil, nil, &NetworkError{Operation: "receive", Err: err}
	}

	from, ok := src.(*net.UDPAddr)
	if !ok {
		return nil, nil, &NetworkError{Operation: "receive", Details: fmt.Sprintf("unexpected source address type %T", src)}
	}

	out := make([]byte, n)
	copy(out, buf[:n])
	return out, from, nil
}

// Send implements Conn.
func (u *UDPv4) Send(b []byte, dst *net.UDPAddr) error {
	n, err := u.pconn.WriteTo(b, nil, dst)
	if err != nil {
		return &NetworkError{Operation: "send", Err: err, Details: dst.String()}
	}
	if n != len(b) {
		return &NetworkError{Operation: "send", Details: fmt.Sprintf("short write %d/%d bytes to %s", n, len(b), dst)}
	}
	return nil
}

// Group implements Conn.
func (u *UDPv4) Group() *net.UDPAddr {
	return u.group
}

// LocalAddr returns the bound address.
func (u *UDPv4) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

// Close implements Conn. Leaving the group is best effort; the kernel drops
// memberships with the socket anyway.
func (u *UDPv4) Close() error {
	if u.conn == nil {
		return nil
	}
	_ = u.pconn.LeaveGroup(u.ifi, u.group)
	if err := u.conn.Close(); err != nil {
		return &NetworkError{Operation: "close", Err: err}
	}
	return nil
}

// ResolveInterface maps the bind interface setting to a *net.Interface.
// Empty and "0.0.0.0" mean "let the kernel choose" and return nil.
func ResolveInterface(name string) (*net.Interface, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "0.0.0.0" {
		return nil, nil
	}

	ip := net.ParseIP(name)
	if ip == nil {
		ifi, err := net.InterfaceByName(name)
		if err != nil {
			return nil, &NetworkError{Operation: "resolve interface", Err: err, Details: name}
		}
		return ifi, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, &NetworkError{Operation: "list interfaces", Err: err}
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.Equal(ip) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, &NetworkError{Operation: "resolve interface", Details: fmt.Sprintf("no interface has address %s", name)}
}
