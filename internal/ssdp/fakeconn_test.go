package ssdp

import (
	"net"
	"sync"
	"time"

	"github.com/muurk/ssdpd/internal/transport"
)

type datagram struct {
	data []byte
	addr *net.UDPAddr
}

// fakeConn is an in-memory transport.Conn.
type fakeConn struct {
	group *net.UDPAddr
	inbox chan datagram

	mu      sync.Mutex
	sent    []datagram
	sendErr error

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		group:  &net.UDPAddr{IP: net.IPv4(239, 255, 255, 250), Port: 1900},
		inbox:  make(chan datagram, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Receive(deadline time.Time) ([]byte, *net.UDPAddr, error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case d := <-c.inbox:
		return d.data, d.addr, nil
	case <-timer.C:
		return nil, nil, transport.ErrTimeout
	case <-c.closed:
		return nil, nil, net.ErrClosed
	}
}

func (c *fakeConn) Send(b []byte, dst *net.UDPAddr) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, datagram{data: append([]byte(nil), b...), addr: dst})
	return nil
}

func (c *fakeConn) Group() *net.UDPAddr { return c.group }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) inject(raw string, from *net.UDPAddr) {
	c.inbox <- datagram{data: []byte(raw), addr: from}
}

func (c *fakeConn) sentMessages() []datagram {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]datagram(nil), c.sent...)
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.sent = nil
	c.mu.Unlock()
}

// sentWith returns the sent datagrams whose parsed header key equals value.
func (c *fakeConn) sentWith(key, value string) []*Message {
	var out []*Message
	for _, d := range c.sentMessages() {
		msg, err := Parse(d.data)
		if err != nil {
			continue
		}
		if msg.Header(key) == value {
			out = append(out, msg)
		}
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
