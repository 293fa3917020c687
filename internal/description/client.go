// Package description fetches and parses UPnP device descriptions, the XML
// document an SSDP record's LOCATION points at.
package description

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/ssdpd/internal/logging"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 5 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for failed requests
	DefaultMaxRetries = 2

	// DefaultRetryDelay is the default delay between retry attempts
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultMaxRetryDelay is the maximum delay for exponential backoff
	DefaultMaxRetryDelay = 5 * time.Second

	// maxBody bounds the description document
	maxBody = 1 << 20
)

// Description is the subset of a UPnP device description ssdpd reports.
type Description struct {
	XMLName         xml.Name  `xml:"root" json:"-"`
	SpecMajor       int       `xml:"specVersion>major" json:"spec_major"`
	SpecMinor       int       `xml:"specVersion>minor" json:"spec_minor"`
	URLBase         string    `xml:"URLBase,omitempty" json:"url_base,omitempty"`
	DeviceType      string    `xml:"device>deviceType" json:"device_type"`
	FriendlyName    string    `xml:"device>friendlyName" json:"friendly_name"`
	Manufacturer    string    `xml:"device>manufacturer" json:"manufacturer"`
	ModelName       string    `xml:"device>modelName" json:"model_name"`
	ModelNumber     string    `xml:"device>modelNumber" json:"model_number,omitempty"`
	SerialNumber    string    `xml:"device>serialNumber" json:"serial_number,omitempty"`
	UDN             string    `xml:"device>UDN" json:"udn"`
	PresentationURL string    `xml:"device>presentationURL" json:"presentation_url,omitempty"`
	Services        []Service `xml:"device>serviceList>service" json:"services,omitempty"`
}

// Service is one entry of the device's service list.
type Service struct {
	ServiceType string `xml:"serviceType" json:"service_type"`
	ServiceID   string `xml:"serviceId" json:"service_id"`
	ControlURL  string `xml:"controlURL" json:"control_url"`
	EventSubURL string `xml:"eventSubURL" json:"event_sub_url"`
	SCPDURL     string `xml:"SCPDURL" json:"scpd_url"`
}

// Client fetches descriptions with retries and a per-location cache
type Client struct {
	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// MaxRetries is the maximum number of retry attempts for failed requests
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts
	RetryDelay time.Duration

	// MaxRetryDelay is the maximum delay for exponential backoff
	MaxRetryDelay time.Duration

	// UseExponentialBackoff enables exponential backoff for retries
	UseExponentialBackoff bool

	cacheMutex sync.RWMutex
	cache      map[string]*Description
}

// NewClient creates a client with default retry settings
func NewClient() *Client {
	return &Client{
		HTTPClient:            &http.Client{Timeout: DefaultTimeout},
		MaxRetries:            DefaultMaxRetries,
		RetryDelay:            DefaultRetryDelay,
		MaxRetryDelay:         DefaultMaxRetryDelay,
		UseExponentialBackoff: true,
		cache:                 make(map[string]*Description),
	}
}

// Fetch retrieves and parses the description at location. Records of one
// device share a location, so successful results are cached.
func (c *Client) Fetch(ctx context.Context, location string) (*Description, error) {
	c.cacheMutex.RLock()
	cached, ok := c.cache[location]
	c.cacheMutex.RUnlock()
	if ok {
		return cached, nil
	}

	var lastErr error
	currentDelay := c.RetryDelay

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(currentDelay):
			case <-ctx.Done():
				return nil, &Error{Type: ErrTypeNetwork, Message: "fetch cancelled", Err: ctx.Err()}
			}

			if c.UseExponentialBackoff {
				currentDelay *= 2
				if currentDelay > c.MaxRetryDelay {
					currentDelay = c.MaxRetryDelay
				}
			}
		}

		desc, err := c.fetchAttempt(ctx, location)
		if err == nil {
			c.cacheMutex.Lock()
			if c.cache == nil {
				c.cache = make(map[string]*Description)
			}
			c.cache[location] = desc
			c.cacheMutex.Unlock()
			return desc, nil
		}

		lastErr = err
		logging.Debug("Description fetch failed",
			zap.String("location", location),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		if !IsRetryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

func (c *Client) fetchAttempt(ctx context.Context, location string) (*Description, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, &Error{Type: ErrTypeParse, Message: fmt.Sprintf("invalid location %q", location), Err: err}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &Error{Type: ErrTypeNetwork, Message: "GET request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Type:       ErrTypeHTTP,
			Message:    fmt.Sprintf("unexpected status code: %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &Error{Type: ErrTypeNetwork, Message: "failed to read response body", Err: err}
	}

	return Parse(body)
}

// Parse decodes a device description document.
func Parse(data []byte) (*Description, error) {
	var desc Description
	if err := xml.Unmarshal(data, &desc); err != nil {
		return nil, &Error{Type: ErrTypeParse, Message: "failed to parse device description", Err: err}
	}
	for _, f := range []*string{&desc.DeviceType, &desc.FriendlyName, &desc.Manufacturer,
		&desc.ModelName, &desc.ModelNumber, &desc.SerialNumber, &desc.UDN} {
		*f = strings.TrimSpace(*f)
	}
	if desc.DeviceType == "" && desc.UDN == "" {
		return nil, &Error{Type: ErrTypeParse, Message: "document has no device element"}
	}
	return &desc, nil
}
