package ssdp

import (
	"fmt"
	"time"

	"github.com/muurk/ssdpd/internal/transport"
)

// Option is a functional option for configuring a Service.
type Option func(*Service) error

// WithConn makes Listen use an already-open connection instead of opening a
// socket. Used by tests and by hosts that manage the socket themselves.
func WithConn(conn transport.Conn) Option {
	return func(s *Service) error {
		if conn == nil {
			return fmt.Errorf("WithConn: nil connection")
		}
		s.listen = func(transport.Config) (transport.Conn, error) { return conn, nil }
		return nil
	}
}

// WithPollInterval sets the receive timeout, i.e. how often the loop checks
// for cancellation. Defaults to one second.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) error {
		if d <= 0 {
			return fmt.Errorf("WithPollInterval: interval must be positive, got %s", d)
		}
		s.pollInterval = d
		return nil
	}
}

// WithMaxPendingReplies bounds how many staggered replies may wait at once.
// Once the bound is reached further replies skip the delay.
func WithMaxPendingReplies(n int) Option {
	return func(s *Service) error {
		if n <= 0 {
			return fmt.Errorf("WithMaxPendingReplies: limit must be positive, got %d", n)
		}
		s.maxPending = n
		return nil
	}
}

// WithJitter replaces the random reply delay picker.
func WithJitter(fn func(limit time.Duration) time.Duration) Option {
	return func(s *Service) error {
		if fn == nil {
			return fmt.Errorf("WithJitter: nil function")
		}
		s.jitter = fn
		return nil
	}
}
