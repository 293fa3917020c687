package ssdp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/muurk/ssdpd/internal/logging"
	"github.com/muurk/ssdpd/internal/netfilter"
	"github.com/muurk/ssdpd/internal/transport"
	"go.uber.org/zap"
)

const (
	// DefaultPollInterval bounds each blocking receive.
	DefaultPollInterval = time.Second

	// DefaultMaxPendingReplies caps staggered replies waiting on their
	// timer. Replies beyond it are sent immediately.
	DefaultMaxPendingReplies = 256
)

// Config holds the responder settings supplied by the hosting application.
type Config struct {
	Interface string // bind interface name or address; empty for default
	Group     string // multicast group, transport.DefaultGroup if empty
	Port      int    // transport.DefaultPort if zero
	Netmask   string // CIDR of hosts we answer; empty answers everyone

	// StaggerReplies defers each discovery response by a random delay within
	// the requester's MX window. When false, responses go out immediately.
	StaggerReplies bool

	// AnnounceInterval re-sends alive for every local record this often.
	// Zero disables re-announcement.
	AnnounceInterval time.Duration

	MulticastTTL int
	Loopback     bool
}

// Service owns the SSDP socket, the registry and the receive loop.
type Service struct {
	cfg      Config
	filter   *netfilter.Filter
	registry *Registry

	listen       func(transport.Config) (transport.Conn, error)
	pollInterval time.Duration
	jitter       func(limit time.Duration) time.Duration

	responder *Responder

	mu        sync.Mutex
	conn      transport.Conn
	announcer *Announcer
	closing   bool
	closed    chan struct{}
	pending   sync.WaitGroup

	maxPending int
	slots      chan struct{} // one token per scheduled reply

	shutdownOnce sync.Once
	shutdownErr  error

	lastAnnounce time.Time // receive loop only
}

// New validates cfg and returns a Service. An invalid netmask, group or port
// is a configuration error and the service must not be started.
func New(cfg Config, opts ...Option) (*Service, error) {
	if cfg.Group == "" {
		cfg.Group = transport.DefaultGroup
	}
	if cfg.Port == 0 {
		cfg.Port = transport.DefaultPort
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, newError(ErrTypeConfiguration, fmt.Sprintf("port %d out of range", cfg.Port), nil)
	}
	if ip := net.ParseIP(cfg.Group); ip == nil || ip.To4() == nil || !ip.IsMulticast() {
		return nil, newError(ErrTypeConfiguration, fmt.Sprintf("%q is not an IPv4 multicast group", cfg.Group), nil)
	}

	filter, err := netfilter.Parse(cfg.Netmask)
	if err != nil {
		return nil, newError(ErrTypeConfiguration, "udp netmask", err)
	}

	s := &Service{
		cfg:      cfg,
		filter:   filter,
		registry: NewRegistry(),
		listen: func(c transport.Config) (transport.Conn, error) {
			return transport.Listen(c)
		},
		pollInterval: DefaultPollInterval,
		jitter:       randomDelay,
		closed:       make(chan struct{}),
		maxPending:   DefaultMaxPendingReplies,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, newError(ErrTypeConfiguration, "option", err)
		}
	}

	s.slots = make(chan struct{}, s.maxPending)
	s.responder = NewResponder(s.registry, s.reply)
	s.responder.jitter = s.jitter
	return s, nil
}

// Registry exposes the record table.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Listen opens the socket and joins the group. Calling it twice is a no-op.
func (s *Service) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return newError(ErrTypeNetwork, "service is shut down", nil)
	}
	if s.conn != nil {
		return nil
	}

	conn, err := s.listen(transport.Config{
		Interface:    s.cfg.Interface,
		Group:        s.cfg.Group,
		Port:         s.cfg.Port,
		MulticastTTL: s.cfg.MulticastTTL,
		Loopback:     s.cfg.Loopback,
	})
	if err != nil {
		return newError(ErrTypeNetwork, "open SSDP socket", err)
	}

	s.conn = conn
	s.announcer = NewAnnouncer(conn)
	return nil
}

// Start listens, registers recs and runs the receive loop until ctx is done.
func (s *Service) Start(ctx context.Context, recs ...ServiceRecord) error {
	if err := s.Listen(); err != nil {
		return err
	}
	for _, rec := range recs {
		if err := s.Register(rec); err != nil {
			_ = s.Shutdown()
			return err
		}
	}
	return s.Serve(ctx)
}

// Register inserts or replaces a record. A local record is announced
// immediately when the socket is open. Send failures are logged, not returned.
func (s *Service) Register(rec ServiceRecord) error {
	stored, err := s.registry.Register(rec)
	if err != nil {
		return err
	}

	logging.Info("Registered service",
		zap.String("usn", stored.USN),
		zap.String("st", stored.ServiceType),
		zap.String("location", stored.Location),
		zap.Stringer("manifestation", stored.Manifestation),
		zap.Bool("silent", stored.Silent),
	)

	if stored.IsLocal() {
		if ann := s.activeAnnouncer(); ann != nil {
			if err := ann.Alive(stored); err != nil {
				logging.Warn("Alive notification failed", zap.String("usn", stored.USN), zap.Error(err))
			}
		}
	}
	return nil
}

// Unregister removes a record without announcing its departure. Use Withdraw
// to send byebye as well.
func (s *Service) Unregister(usn string) bool {
	ok := s.registry.Unregister(usn)
	if ok {
		logging.Info("Unregistered service", zap.String("usn", usn))
	}
	return ok
}

// Withdraw sends byebye for a local record and removes it.
func (s *Service) Withdraw(usn string) bool {
	rec, ok := s.registry.Lookup(usn)
	if !ok {
		return false
	}
	if rec.IsLocal() {
		if ann := s.activeAnnouncer(); ann != nil {
			if err := ann.ByeBye(rec); err != nil {
				logging.Warn("Byebye notification failed", zap.String("usn", usn), zap.Error(err))
			}
		}
	}
	return s.Unregister(usn)
}

// IsKnown reports whether usn is registered.
func (s *Service) IsKnown(usn string) bool {
	return s.registry.IsKnown(usn)
}

// Records returns a snapshot of all registered records.
func (s *Service) Records() []ServiceRecord {
	return s.registry.All()
}

// Serve runs the receive loop until ctx is cancelled or Shutdown is called.
// Each receive is bounded by the poll interval so cancellation is noticed
// within one tick. Cancellation triggers Shutdown.
func (s *Service) Serve(ctx context.Context) error {
	conn := s.activeConn()
	if conn == nil {
		return newError(ErrTypeNetwork, "Serve called before Listen", nil)
	}

	logging.Info("SSDP responder running",
		zap.String("group", conn.Group().String()),
		zap.String("netmask", s.filter.String()),
		zap.Bool("stagger_replies", s.cfg.StaggerReplies),
	)
	s.lastAnnounce = time.Now()

	for {
		select {
		case <-ctx.Done():
			logging.Info("Stopping SSDP responder", zap.Error(ctx.Err()))
			return s.Shutdown()
		case <-s.closed:
			return nil
		default:
		}

		data, from, err := conn.Receive(time.Now().Add(s.pollInterval))
		if err != nil {
			if transport.IsTimeout(err) {
				s.reannounce()
				continue
			}
			if s.isClosing() || transport.IsClosed(err) {
				return nil
			}
			logging.Error("SSDP receive failed", zap.Error(err))
			_ = s.Shutdown()
			return newError(ErrTypeNetwork, "receive", err)
		}

		if err := s.dispatch(data, from); err != nil {
			logging.Debug("Dropped datagram",
				zap.String("remote_addr", from.String()),
				zap.Error(err),
			)
		}
		s.reannounce()
	}
}

// dispatch handles one datagram. Returned errors are per-datagram and never
// stop the loop.
func (s *Service) dispatch(data []byte, from *net.UDPAddr) error {
	if !s.filter.AllowedAddr(from) {
		logging.Debug("Ignoring datagram from outside netmask",
			zap.Stringer("remote_addr", from),
			zap.String("netmask", s.filter.String()),
		)
		return nil
	}

	logging.LogDatagram("received", from.String(), data)

	msg, err := Parse(data)
	if err != nil {
		logging.LogRawBytes("Malformed datagram from "+from.String(), data)
		return err
	}

	switch {
	case msg.IsSearch():
		n, err := s.responder.HandleSearch(msg, from)
		if err != nil {
			return err
		}
		logging.Debug("Answered discovery request",
			zap.String("remote_addr", from.String()),
			zap.String("st", msg.Header("st")),
			zap.Int("responses", n),
		)
	case msg.IsNotify():
		// Remote peers are not tracked.
		logging.Debug("NOTIFY received",
			zap.String("remote_addr", from.String()),
			zap.String("nt", msg.Header("nt")),
			zap.String("nts", msg.Header("nts")),
			zap.String("usn", msg.Header("usn")),
		)
	default:
		logging.Debug("Unknown SSDP command",
			zap.String("remote_addr", from.String()),
			zap.String("method", msg.Method),
			zap.String("target", msg.Target),
		)
	}
	return nil
}

// reply is the Responder's delivery hook.
func (s *Service) reply(b []byte, dst *net.UDPAddr, delay time.Duration, usn string) {
	if !s.cfg.StaggerReplies || delay <= 0 {
		logging.Debug("Sending discovery response",
			zap.String("usn", usn),
			zap.String("remote_addr", dst.String()),
			zap.Duration("computed_delay", delay),
		)
		s.send(b, dst)
		return
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	select {
	case s.slots <- struct{}{}:
	default:
		s.mu.Unlock()
		logging.Debug("Reply backlog full, sending immediately",
			zap.String("usn", usn),
			zap.String("remote_addr", dst.String()),
			zap.Int("pending", s.maxPending),
		)
		s.send(b, dst)
		return
	}
	s.pending.Add(1)
	s.mu.Unlock()

	logging.Debug("Scheduling discovery response",
		zap.String("usn", usn),
		zap.String("remote_addr", dst.String()),
		zap.Duration("delay", delay),
	)

	go func() {
		defer s.pending.Done()
		defer func() { <-s.slots }()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			s.send(b, dst)
		case <-s.closed:
			logging.Debug("Dropping pending discovery response", zap.String("usn", usn))
		}
	}()
}

func (s *Service) send(b []byte, dst *net.UDPAddr) {
	conn := s.activeConn()
	if conn == nil {
		logging.Warn("Discovery response dropped: socket closed", zap.String("remote_addr", dst.String()))
		return
	}
	logging.LogDatagram("sent", dst.String(), b)
	if err := conn.Send(b, dst); err != nil {
		logging.Warn("Failed to send discovery response",
			zap.String("remote_addr", dst.String()),
			zap.Error(err),
		)
	}
}

// reannounce re-sends alive for local records once AnnounceInterval has
// elapsed. Called from the receive loop only.
func (s *Service) reannounce() {
	if s.cfg.AnnounceInterval <= 0 || time.Since(s.lastAnnounce) < s.cfg.AnnounceInterval {
		return
	}
	s.lastAnnounce = time.Now()

	ann := s.activeAnnouncer()
	if ann == nil {
		return
	}
	for _, rec := range s.registry.Local() {
		if err := ann.Alive(rec); err != nil {
			logging.Warn("Periodic alive notification failed", zap.String("usn", rec.USN), zap.Error(err))
		}
	}
}

// Shutdown sends byebye for every local record and closes the socket. Pending
// staggered replies are discarded. Byebye failures are logged per record and
// do not stop the rest. Safe to call more than once.
func (s *Service) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		close(s.closed)
		conn, ann := s.conn, s.announcer
		s.mu.Unlock()

		s.pending.Wait()

		if conn == nil {
			return
		}

		for _, rec := range s.registry.Local() {
			if err := ann.ByeBye(rec); err != nil {
				logging.Warn("Byebye notification failed", zap.String("usn", rec.USN), zap.Error(err))
			}
		}

		if err := conn.Close(); err != nil {
			s.shutdownErr = newError(ErrTypeNetwork, "close SSDP socket", err)
		}

		s.mu.Lock()
		s.conn = nil
		s.announcer = nil
		s.mu.Unlock()

		logging.Info("SSDP responder stopped")
	})
	return s.shutdownErr
}

func (s *Service) activeConn() transport.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Service) activeAnnouncer() *Announcer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.announcer
}

func (s *Service) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}
