package discovery

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// Source says which protocol found a device.
type Source string

const (
	SourceSSDP Source = "ssdp"
	SourceMDNS Source = "mdns"
)

// Device represents one advertised service found on the network
type Device struct {
	// USN is the unique service name (e.g., "uuid:ABC::upnp:rootdevice")
	USN string

	// ServiceType is the ST of the response or the mDNS service type
	ServiceType string

	// Location is the descriptor URL (e.g., "http://192.168.1.10:5004/device.xml")
	Location string

	// Server is the SERVER banner
	Server string

	// CacheControl is the advertised lifetime (e.g., "max-age=1800")
	CacheControl string

	// Hostname is the mDNS hostname, empty for SSDP results
	Hostname string

	// IP is the address the answer came from
	IP string

	// Port is the descriptor port taken from Location, or the responder port
	Port int

	// Metadata contains mDNS TXT record data
	Metadata map[string]string

	// FriendlyName and Model come from the device description, when fetched
	FriendlyName string
	Model        string

	Source Source

	// DiscoveredAt is when the device was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("%s (%s) at %s", d.USN, d.ServiceType, d.BaseURL())
}

// BaseURL returns the HTTP base URL of the descriptor server. It prefers the
// host from Location and falls back to IP and Port.
func (d *Device) BaseURL() string {
	if u, err := url.Parse(d.Location); err == nil && u.Host != "" {
		scheme := u.Scheme
		if scheme == "" {
			scheme = "http"
		}
		return scheme + "://" + u.Host
	}
	return "http://" + net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}

// locationPort extracts the port from a descriptor URL, or 0.
func locationPort(location string) int {
	u, err := url.Parse(location)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return 0
	}
	return port
}
