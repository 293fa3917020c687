// Package transport provides the UDP multicast socket used by the SSDP
// responder.
//
// The Conn interface decouples the responder from the real socket so the
// receive loop can be driven by an in-memory fake in tests. UDPv4 is the
// production implementation: it binds 0.0.0.0:<port> with address reuse,
// joins the SSDP group on the configured interface and exposes
// deadline-bounded receives so the caller can poll for cancellation.
package transport

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Conn abstracts the datagram socket owned by the responder.
type Conn interface {
	// Receive blocks until a datagram arrives or the deadline passes. A
	// deadline expiry is reported as an error for which IsTimeout is true.
	Receive(deadline time.Time) ([]byte, *net.UDPAddr, error)

	// Send writes one datagram to dst.
	Send(b []byte, dst *net.UDPAddr) error

	// Group returns the multicast group address announcements are sent to.
	Group() *net.UDPAddr

	// Close releases the socket. Pending Receive calls return an error.
	Close() error
}

// NetworkError describes a failed socket operation.
type NetworkError struct {
	Operation string // e.g. "join group", "send", "receive"
	Err       error
	Details   string
}

func (e *NetworkError) Error() string {
	msg := e.Operation
	if e.Details != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Details)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a read deadline expiry.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsClosed reports whether err came from using a closed socket.
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

// timeoutError satisfies net.Error for fakes and wrapped deadlines.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// ErrTimeout is returned by Conn implementations (including test fakes) when a
// receive deadline passes without data.
var ErrTimeout net.Error = timeoutError{}
