package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/ipv4"

	"github.com/muurk/ssdpd/internal/logging"
	"github.com/muurk/ssdpd/internal/ssdp"
	"github.com/muurk/ssdpd/internal/transport"
)

const (
	// DefaultScanTimeout is the default timeout for device discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultMX is the reply window requested from responders, in seconds
	DefaultMX = 2

	// searchCopies is how many times the M-SEARCH is sent
	searchCopies = 2

	// maxDatagram bounds a single response
	maxDatagram = 8192
)

// Scanner sends M-SEARCH requests and collects the unicast answers
type Scanner struct {
	// Timeout is the maximum time to wait for answers
	Timeout time.Duration

	// SearchTarget is the ST to ask for (ssdp:all by default)
	SearchTarget string

	// MX is the reply window in seconds
	MX int

	// Group is the destination of the request. A unicast address queries
	// a single responder directly.
	Group string

	// Interface selects the outgoing multicast interface by name or address
	Interface string

	// UserAgent is sent as USER-AGENT when set
	UserAgent string
}

// NewScanner creates a new SSDP scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout:      DefaultScanTimeout,
		SearchTarget: ssdp.SearchAll,
		MX:           DefaultMX,
		Group:        net.JoinHostPort(transport.DefaultGroup, fmt.Sprint(transport.DefaultPort)),
	}
}

// Search sends the request and returns every distinct USN that answered
// before the timeout, sorted by USN.
func (s *Scanner) Search(ctx context.Context) ([]*Device, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dst, err := net.ResolveUDPAddr("udp4", s.Group)
	if err != nil {
		return nil, fmt.Errorf("invalid search group %q: %w", s.Group, err)
	}

	conn, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return nil, &transport.NetworkError{Operation: "listen", Err: err}
	}
	defer conn.Close()

	if dst.IP.IsMulticast() {
		if err := s.configureMulticast(conn); err != nil {
			return nil, err
		}
	}

	st := s.SearchTarget
	if st == "" {
		st = ssdp.SearchAll
	}
	req := ssdp.SearchRequest(dst, st, s.MX, s.UserAgent)
	for i := 0; i < searchCopies; i++ {
		logging.LogDatagram("sent", dst.String(), req)
		if _, err := conn.WriteTo(req, dst); err != nil {
			return nil, &transport.NetworkError{Operation: "send", Err: err, Details: dst.String()}
		}
	}
	logging.Debug("M-SEARCH sent",
		zap.String("group", dst.String()),
		zap.String("st", st),
		zap.Int("mx", s.MX),
	)

	// Unblock ReadFrom when the context ends.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	c := newCollector()
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || transport.IsTimeout(err) {
				break
			}
			return c.devices(), &transport.NetworkError{Operation: "receive", Err: err}
		}

		udpFrom, _ := from.(*net.UDPAddr)
		if device := parseResponse(buf[:n], udpFrom); device != nil {
			c.add(device)
		}
	}

	return c.devices(), nil
}

func (s *Scanner) configureMulticast(conn net.PacketConn) error {
	pconn := ipv4.NewPacketConn(conn)
	if err := pconn.SetMulticastTTL(2); err != nil {
		return &transport.NetworkError{Operation: "set multicast TTL", Err: err}
	}
	ifi, err := transport.ResolveInterface(s.Interface)
	if err != nil {
		return err
	}
	if ifi != nil {
		if err := pconn.SetMulticastInterface(ifi); err != nil {
			return &transport.NetworkError{Operation: "set multicast interface", Err: err, Details: ifi.Name}
		}
	}
	return nil
}

// parseResponse converts one 200 OK into a Device. Anything else is
// dropped.
func parseResponse(data []byte, from *net.UDPAddr) *Device {
	addr := "unknown"
	if from != nil {
		addr = from.String()
	}
	logging.LogDatagram("received", addr, data)

	msg, err := ssdp.Parse(data)
	if err != nil {
		logging.Debug("Ignoring unparseable response", zap.String("remote_addr", addr), zap.Error(err))
		return nil
	}
	if msg.StatusCode() != 200 {
		return nil
	}

	usn := msg.Header("usn")
	if usn == "" {
		return nil
	}

	device := &Device{
		USN:          usn,
		ServiceType:  msg.Header("st"),
		Location:     msg.Header("location"),
		Server:       msg.Header("server"),
		CacheControl: msg.Header("cache-control"),
		Port:         locationPort(msg.Header("location")),
		Source:       SourceSSDP,
		DiscoveredAt: time.Now(),
	}
	if from != nil {
		device.IP = from.IP.String()
		if device.Port == 0 {
			device.Port = from.Port
		}
	}
	return device
}

// collector deduplicates devices by USN
type collector struct {
	mu   sync.Mutex
	seen map[string]*Device
}

func newCollector() *collector {
	return &collector{seen: make(map[string]*Device)}
}

func (c *collector) add(d *Device) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[d.USN]; ok {
		return false
	}
	c.seen[d.USN] = d
	return true
}

func (c *collector) devices() []*Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Device, 0, len(c.seen))
	for _, d := range c.seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].USN < out[j].USN })
	return out
}

// Search is a convenience function to run one search with a custom target and timeout
func Search(ctx context.Context, st string, timeout time.Duration) ([]*Device, error) {
	scanner := NewScanner()
	scanner.SearchTarget = st
	scanner.Timeout = timeout
	return scanner.Search(ctx)
}

// errNoDevices is returned by FindUSN when nothing matched
var errNoDevices = errors.New("no matching device")

// FindUSN searches for a single USN and returns the first device that answers
func (s *Scanner) FindUSN(ctx context.Context, usn string) (*Device, error) {
	devices, err := s.Search(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.USN == usn {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", errNoDevices, usn)
}
