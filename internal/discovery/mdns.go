package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// MDNSServiceType is the mDNS service type ssdpd advertises its descriptor under
	MDNSServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultPort is used when an mDNS entry carries no port
	DefaultPort = 80

	// TXT keys published by the companion advertisement
	TxtUSN      = "usn"
	TxtLocation = "location"
	TxtUUID     = "uuid"
	TxtVersion  = "version"
)

// MDNSScanner browses for the companion mDNS advertisements of SSDP
// responders. Only entries carrying a usn TXT record are reported.
type MDNSScanner struct {
	// Timeout is the maximum time to wait for device discovery
	Timeout time.Duration

	// Service is the mDNS service type to browse
	Service string
}

// NewMDNSScanner creates a new mDNS scanner with default settings
func NewMDNSScanner() *MDNSScanner {
	return &MDNSScanner{
		Timeout: DefaultScanTimeout,
		Service: MDNSServiceType,
	}
}

// Browse discovers advertised responders until the timeout expires
func (s *MDNSScanner) Browse(ctx context.Context) ([]*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	c := newCollector()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			if device := s.parseServiceEntry(entry); device != nil {
				c.add(device)
			}
		}
	}()

	service := s.Service
	if service == "" {
		service = MDNSServiceType
	}
	if err := resolver.Browse(ctx, service, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	// The resolver closes entries once ctx ends.
	<-ctx.Done()
	select {
	case <-done:
	case <-time.After(time.Second):
	}

	return c.devices(), nil
}

// parseServiceEntry converts a zeroconf service entry to a Device.
// Returns nil if the entry is not an SSDP responder advertisement.
func (s *MDNSScanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		// TXT records are in "key=value" format
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	usn := metadata[TxtUSN]
	if usn == "" {
		return nil
	}

	// Prefer IPv4
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	serviceType := entry.Service
	if serviceType == "" {
		serviceType = s.Service
	}

	return &Device{
		USN:          usn,
		ServiceType:  serviceType,
		Location:     metadata[TxtLocation],
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Metadata:     metadata,
		Source:       SourceMDNS,
		DiscoveredAt: time.Now(),
	}
}
