package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/muurk/ssdpd/internal/netfilter"
	"github.com/muurk/ssdpd/internal/ssdp"
	"github.com/muurk/ssdpd/internal/transport"
)

// CurrentVersion is the config file schema version.
const CurrentVersion = 1

// Defaults for values left empty in the file.
const (
	DefaultAdminPort    = 5004
	DefaultBindIP       = "0.0.0.0"
	DefaultMDNSService  = "_http._tcp"
	DefaultMDNSInstance = "ssdpd"
	descriptorPath      = "/device.xml"
)

// Config represents the entire configuration file.
type Config struct {
	Version int            `yaml:"version"`
	Main    MainSection    `yaml:"main"`
	Web     WebSection     `yaml:"web"`
	SSDP    SSDPSection    `yaml:"ssdp"`
	MDNS    MDNSSection    `yaml:"mdns"`
	Logging LoggingSection `yaml:"logging"`
}

// MainSection holds the device identity.
type MainSection struct {
	UUID string `yaml:"uuid"` // Upper-case device UUID, generated on first run
}

// WebSection describes where the device descriptor is served.
type WebSection struct {
	BindIP       string `yaml:"bind_ip"`       // Bind address; also the SSDP interface when ssdp.interface is empty
	AccessibleIP string `yaml:"accessible_ip"` // Address advertised to clients
	AdminPort    int    `yaml:"admin_port"`    // Port of the descriptor server
}

// SSDPSection configures the responder.
type SSDPSection struct {
	Disabled         bool          `yaml:"disabled"`
	UDPNetmask       string        `yaml:"udp_netmask"`     // CIDR of hosts we answer
	Interface        string        `yaml:"interface"`       // Multicast interface name or address; web.bind_ip if empty
	MulticastGroup   string        `yaml:"multicast_group"` // Default 239.255.255.250
	Port             int           `yaml:"port"`            // Default 1900
	Server           string        `yaml:"server"`          // SERVER header banner
	MaxAge           int           `yaml:"max_age"`         // Cache-Control max-age seconds
	StaggerReplies   *bool         `yaml:"stagger_replies,omitempty"`
	AnnounceInterval time.Duration `yaml:"announce_interval"`
	ExtraTypes       []string      `yaml:"extra_types,omitempty"` // Additional advertised service types

	// Loopback delivers NOTIFY to clients on this host. Defaults to true.
	Loopback *bool `yaml:"multicast_loopback,omitempty"`

	// MulticastTTL is applied when > 0; 0 keeps the kernel default.
	MulticastTTL int `yaml:"multicast_ttl,omitempty"`
}

// MDNSSection configures the companion mDNS advertisement.
type MDNSSection struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
	Service  string `yaml:"service"`
}

// LoggingSection configures the global logger.
type LoggingSection struct {
	Level string `yaml:"level"` // debug, info, warn, error; empty is silent
}

// detectIP is replaced in tests.
var detectIP = DetectIP

// NewConfig returns a Config with defaults for everything except the
// device-specific values filled in by ApplyDefaults.
func NewConfig() *Config {
	stagger, loopback := true, true
	return &Config{
		Version: CurrentVersion,
		Web: WebSection{
			BindIP:    DefaultBindIP,
			AdminPort: DefaultAdminPort,
		},
		SSDP: SSDPSection{
			MulticastGroup:   transport.DefaultGroup,
			Port:             transport.DefaultPort,
			Server:           ssdp.DefaultServer,
			MaxAge:           ssdp.DefaultMaxAge,
			StaggerReplies:   &stagger,
			Loopback:         &loopback,
			AnnounceInterval: 15 * time.Minute,
		},
		MDNS: MDNSSection{
			Enabled:  true,
			Instance: DefaultMDNSInstance,
			Service:  DefaultMDNSService,
		},
		Logging: LoggingSection{
			Level: "info",
		},
	}
}

// ApplyDefaults fills in derived values. It generates a device UUID when
// none is set, detects the accessible IP when it is empty or 0.0.0.0, and
// restricts the netmask to the accessible IP when none is configured.
// It reports whether anything changed so callers can persist the result.
func (c *Config) ApplyDefaults() (bool, error) {
	changed := false

	if c.Version == 0 {
		c.Version = CurrentVersion
	}

	if strings.TrimSpace(c.Main.UUID) == "" {
		id, err := uuid.NewUUID()
		if err != nil {
			return changed, fmt.Errorf("failed to generate device UUID: %w", err)
		}
		c.Main.UUID = strings.ToUpper(id.String())
		changed = true
	}

	if c.Web.BindIP == "" {
		c.Web.BindIP = DefaultBindIP
	}
	if c.Web.AdminPort == 0 {
		c.Web.AdminPort = DefaultAdminPort
	}
	if c.Web.AccessibleIP == "" || c.Web.AccessibleIP == "0.0.0.0" {
		c.Web.AccessibleIP = detectIP()
		changed = true
	}

	if c.SSDP.UDPNetmask == "" {
		c.SSDP.UDPNetmask = c.Web.AccessibleIP + "/32"
		changed = true
	}
	if c.SSDP.MulticastGroup == "" {
		c.SSDP.MulticastGroup = transport.DefaultGroup
	}
	if c.SSDP.Port == 0 {
		c.SSDP.Port = transport.DefaultPort
	}
	if c.SSDP.Server == "" {
		c.SSDP.Server = ssdp.DefaultServer
	}
	if c.SSDP.MaxAge == 0 {
		c.SSDP.MaxAge = ssdp.DefaultMaxAge
	}
	if c.SSDP.StaggerReplies == nil {
		stagger := true
		c.SSDP.StaggerReplies = &stagger
	}

	if c.MDNS.Instance == "" {
		c.MDNS.Instance = DefaultMDNSInstance
	}
	if c.MDNS.Service == "" {
		c.MDNS.Service = DefaultMDNSService
	}

	return changed, nil
}

// Validate checks the values the daemon cannot run without.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion)
	}
	if c.Main.UUID == "" {
		return fmt.Errorf("main.uuid is required")
	}
	if _, err := uuid.Parse(c.Main.UUID); err != nil {
		return fmt.Errorf("main.uuid %q is not a UUID: %w", c.Main.UUID, err)
	}
	if c.Web.AdminPort < 1 || c.Web.AdminPort > 65535 {
		return fmt.Errorf("web.admin_port %d out of range", c.Web.AdminPort)
	}
	if ip := net.ParseIP(c.Web.AccessibleIP); ip == nil || ip.To4() == nil {
		return fmt.Errorf("web.accessible_ip %q is not an IPv4 address", c.Web.AccessibleIP)
	}

	if c.SSDP.Disabled {
		return nil
	}
	if strings.TrimSpace(c.SSDP.UDPNetmask) == "" {
		return fmt.Errorf("ssdp.udp_netmask is required when SSDP is enabled")
	}
	if _, err := netfilter.Parse(c.SSDP.UDPNetmask); err != nil {
		return fmt.Errorf("ssdp.udp_netmask: %w", err)
	}
	if c.SSDP.Port < 1 || c.SSDP.Port > 65535 {
		return fmt.Errorf("ssdp.port %d out of range", c.SSDP.Port)
	}
	if c.SSDP.MaxAge < 0 {
		return fmt.Errorf("ssdp.max_age must not be negative")
	}
	if c.SSDP.MulticastTTL < 0 || c.SSDP.MulticastTTL > 255 {
		return fmt.Errorf("ssdp.multicast_ttl %d out of range", c.SSDP.MulticastTTL)
	}
	if c.SSDP.AnnounceInterval < 0 {
		return fmt.Errorf("ssdp.announce_interval must not be negative")
	}
	return nil
}

// RootDeviceUSN returns the USN of the upnp:rootdevice record.
func (c *Config) RootDeviceUSN() string {
	return ssdp.BuildUSN(c.Main.UUID, ssdp.RootDevice)
}

// DescriptorURL returns the LOCATION advertised for every record.
func (c *Config) DescriptorURL() string {
	return fmt.Sprintf("http://%s%s",
		net.JoinHostPort(c.Web.AccessibleIP, fmt.Sprint(c.Web.AdminPort)), descriptorPath)
}

// Records returns the local service records derived from the configuration:
// the root device followed by each extra type.
func (c *Config) Records() []ssdp.ServiceRecord {
	types := append([]string{ssdp.RootDevice}, c.SSDP.ExtraTypes...)
	recs := make([]ssdp.ServiceRecord, 0, len(types))
	seen := make(map[string]bool, len(types))
	for _, st := range types {
		st = strings.TrimSpace(st)
		if st == "" || seen[st] {
			continue
		}
		seen[st] = true
		recs = append(recs, ssdp.ServiceRecord{
			USN:          ssdp.BuildUSN(c.Main.UUID, st),
			ServiceType:  st,
			Location:     c.DescriptorURL(),
			Server:       c.SSDP.Server,
			CacheControl: ssdp.MaxAge(c.SSDP.MaxAge),
			Host:         c.Web.AccessibleIP,
		})
	}
	return recs
}

// SSDPConfig converts the ssdp section into responder settings. The
// multicast interface falls back to web.bind_ip, and unset booleans keep
// their defaults (stagger and loopback on).
func (c *Config) SSDPConfig() ssdp.Config {
	stagger := true
	if c.SSDP.StaggerReplies != nil {
		stagger = *c.SSDP.StaggerReplies
	}
	loopback := true
	if c.SSDP.Loopback != nil {
		loopback = *c.SSDP.Loopback
	}
	iface := strings.TrimSpace(c.SSDP.Interface)
	if iface == "" {
		iface = strings.TrimSpace(c.Web.BindIP)
	}
	return ssdp.Config{
		Interface:        iface,
		Group:            c.SSDP.MulticastGroup,
		Port:             c.SSDP.Port,
		Netmask:          c.SSDP.UDPNetmask,
		StaggerReplies:   stagger,
		AnnounceInterval: c.SSDP.AnnounceInterval,
		MulticastTTL:     c.SSDP.MulticastTTL,
		Loopback:         loopback,
	}
}

// DetectIP returns the IPv4 address of the interface carrying the default
// route, or 127.0.0.1 when there is none. No packet is sent.
func DetectIP() string {
	conn, err := net.Dial("udp4", "10.255.255.255:1")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.IsUnspecified() {
		return "127.0.0.1"
	}
	return addr.IP.String()
}
