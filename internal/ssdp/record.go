package ssdp

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultServer is the banner HDHomeRun-aware clients expect.
	DefaultServer = "HDHomeRun/1.0 UPnP/1.0"

	// DefaultMaxAge is the advertised cache lifetime in seconds.
	DefaultMaxAge = 1800

	// SearchAll is the wildcard search target.
	SearchAll = "ssdp:all"

	// RootDevice is the service type of a UPnP root device.
	RootDevice = "upnp:rootdevice"
)

// DefaultCacheControl is the Cache-Control value used when a record has none.
var DefaultCacheControl = MaxAge(DefaultMaxAge)

// Manifestation says who owns a record.
type Manifestation int

const (
	// Local records belong to this process: they are announced, answered and
	// byebye'd on shutdown.
	Local Manifestation = iota
	// Remote records were learned from another host. They are never answered
	// or announced.
	Remote
)

func (m Manifestation) String() string {
	switch m {
	case Local:
		return "local"
	case Remote:
		return "remote"
	default:
		return fmt.Sprintf("Manifestation(%d)", int(m))
	}
}

// ParseManifestation accepts "local" or "remote".
func ParseManifestation(s string) (Manifestation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local":
		return Local, nil
	case "remote":
		return Remote, nil
	default:
		return 0, newError(ErrTypeValidation, fmt.Sprintf("unknown manifestation %q", s), nil)
	}
}

// ServiceRecord is one advertised capability.
type ServiceRecord struct {
	USN           string // uuid:<device-uuid>::<service-type>
	ServiceType   string // ST / NT value
	Location      string // descriptor URL
	Server        string
	CacheControl  string // e.g. "max-age=1800"
	Manifestation Manifestation
	Silent        bool      // excluded from ssdp:all and never announced
	Host          string    // informational origin tag
	LastSeen      time.Time // remote records only
}

// IsLocal reports whether the record is owned by this process.
func (r ServiceRecord) IsLocal() bool {
	return r.Manifestation == Local
}

func (r ServiceRecord) validate() error {
	switch {
	case strings.TrimSpace(r.USN) == "":
		return newError(ErrTypeValidation, "record has no USN", nil)
	case strings.TrimSpace(r.ServiceType) == "":
		return newError(ErrTypeValidation, fmt.Sprintf("record %s has no service type", r.USN), nil)
	case r.Manifestation != Local && r.Manifestation != Remote:
		return newError(ErrTypeValidation, fmt.Sprintf("record %s has invalid manifestation %d", r.USN, r.Manifestation), nil)
	}
	return nil
}

func (r ServiceRecord) withDefaults() ServiceRecord {
	if r.Server == "" {
		r.Server = DefaultServer
	}
	if r.CacheControl == "" {
		r.CacheControl = DefaultCacheControl
	}
	return r
}

// BuildUSN returns "uuid:<deviceUUID>::<serviceType>". A bare device USN
// ("uuid:<deviceUUID>") is returned when serviceType is empty.
func BuildUSN(deviceUUID, serviceType string) string {
	deviceUUID = strings.TrimPrefix(deviceUUID, "uuid:")
	if serviceType == "" {
		return "uuid:" + deviceUUID
	}
	return "uuid:" + deviceUUID + "::" + serviceType
}

// MaxAge formats a Cache-Control max-age directive.
func MaxAge(seconds int) string {
	return fmt.Sprintf("max-age=%d", seconds)
}
