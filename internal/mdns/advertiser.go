// Package mdns publishes a companion mDNS (Bonjour) record for the SSDP
// device so that zeroconf-only clients can find the descriptor too.
//
// The record is a "_http._tcp" service on the descriptor port with TXT keys
// usn, location, uuid and version.
package mdns

import (
	"fmt"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/ssdpd/internal/logging"
	"github.com/muurk/ssdpd/internal/transport"
)

const domain = "local."

// Config describes the advertisement.
type Config struct {
	Instance  string // e.g. "ssdpd"
	Service   string // e.g. "_http._tcp"
	Port      int    // descriptor server port
	Interface string // restrict to one interface by name or address; empty for all

	USN      string
	Location string
	UUID     string
	Version  string
}

// TXT returns the TXT record strings for cfg.
func (c Config) TXT() []string {
	txt := []string{"usn=" + c.USN, "location=" + c.Location}
	if c.UUID != "" {
		txt = append(txt, "uuid="+c.UUID)
	}
	if c.Version != "" {
		txt = append(txt, "version="+c.Version)
	}
	return txt
}

type server interface {
	Shutdown()
}

// register is replaced in tests.
var register = func(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (server, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// Advertiser owns one published mDNS service.
type Advertiser struct {
	cfg Config

	mu     sync.Mutex
	server server
}

// NewAdvertiser validates cfg and returns an idle Advertiser.
func NewAdvertiser(cfg Config) (*Advertiser, error) {
	if cfg.Instance == "" {
		return nil, fmt.Errorf("mdns: instance name is required")
	}
	if cfg.Service == "" {
		return nil, fmt.Errorf("mdns: service type is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("mdns: port %d out of range", cfg.Port)
	}
	return &Advertiser{cfg: cfg}, nil
}

// Start publishes the service. Calling it twice is a no-op.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	var ifaces []net.Interface
	ifi, err := transport.ResolveInterface(a.cfg.Interface)
	if err != nil {
		return fmt.Errorf("mdns: %w", err)
	}
	if ifi != nil {
		ifaces = []net.Interface{*ifi}
	}

	srv, err := register(a.cfg.Instance, a.cfg.Service, domain, a.cfg.Port, a.cfg.TXT(), ifaces)
	if err != nil {
		return fmt.Errorf("mdns: failed to register %s.%s: %w", a.cfg.Instance, a.cfg.Service, err)
	}
	a.server = srv

	logging.Info("mDNS advertisement published",
		zap.String("instance", a.cfg.Instance),
		zap.String("service", a.cfg.Service),
		zap.Int("port", a.cfg.Port),
		zap.String("usn", a.cfg.USN),
	)
	return nil
}

// Shutdown withdraws the service. Safe to call when not started.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	logging.Info("mDNS advertisement withdrawn", zap.String("instance", a.cfg.Instance))
}

// Running reports whether the service is published.
func (a *Advertiser) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}
