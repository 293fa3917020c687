package ssdp

import (
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/muurk/ssdpd/internal/logging"
	"go.uber.org/zap"
)

// MaxMX caps the requested reply window. UDA 1.1 says larger MX values
// should be treated as 5.
const MaxMX = 5

// ReplyFunc delivers one discovery response to dst after delay.
type ReplyFunc func(b []byte, dst *net.UDPAddr, delay time.Duration, usn string)

// Responder answers M-SEARCH requests from the registry.
type Responder struct {
	registry *Registry
	reply    ReplyFunc
	jitter   func(limit time.Duration) time.Duration
	now      func() time.Time
}

// NewResponder returns a Responder that hands responses to reply.
func NewResponder(registry *Registry, reply ReplyFunc) *Responder {
	return &Responder{
		registry: registry,
		reply:    reply,
		jitter:   randomDelay,
		now:      time.Now,
	}
}

// HandleSearch answers one M-SEARCH and returns how many responses were
// queued. Requests without ST or a usable MX are rejected with a validation
// error; the caller logs and drops them.
func (r *Responder) HandleSearch(msg *Message, from *net.UDPAddr) (int, error) {
	st := msg.Header("st")
	if st == "" {
		return 0, newError(ErrTypeValidation, "M-SEARCH without ST header", nil)
	}
	if !msg.Has("mx") {
		return 0, newError(ErrTypeValidation, "M-SEARCH without MX header", nil)
	}
	window, err := ParseMX(msg.Header("mx"))
	if err != nil {
		return 0, err
	}

	logging.Debug("Discovery request",
		zap.String("remote_addr", from.String()),
		zap.String("st", st),
		zap.Duration("mx", window),
		zap.String("man", msg.Header("man")),
	)

	matches := r.Matches(st)
	now := r.now()
	for _, rec := range matches {
		r.reply(BuildResponse(rec, now), from, r.jitter(window), rec.USN)
	}
	return len(matches), nil
}

// Matches returns the local records that answer search target st.
// Silent records are hidden from ssdp:all but still answer a direct ST.
func (r *Responder) Matches(st string) []ServiceRecord {
	var out []ServiceRecord
	for _, rec := range r.registry.Local() {
		if st == SearchAll {
			if !rec.Silent {
				out = append(out, rec)
			}
			continue
		}
		if rec.ServiceType == st {
			out = append(out, rec)
		}
	}
	return out
}

// BuildResponse renders the 200 OK for rec.
func BuildResponse(rec ServiceRecord, now time.Time) []byte {
	rec = rec.withDefaults()
	return Serialize(StatusOK, []Header{
		{"Server", rec.Server},
		{"ST", rec.ServiceType},
		{"Location", rec.Location},
		{"Cache-Control", rec.CacheControl},
		{"USN", rec.USN},
		{"Ext", ""},
		{"Content-Length", "0"},
		{"Date", now.UTC().Format(http.TimeFormat)},
	})
}

// ParseMX converts an MX header into the reply window, capped at MaxMX.
func ParseMX(v string) (time.Duration, error) {
	mx, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, newError(ErrTypeValidation, fmt.Sprintf("invalid MX %q", v), err)
	}
	if mx < 0 {
		return 0, newError(ErrTypeValidation, fmt.Sprintf("negative MX %d", mx), nil)
	}
	if mx > MaxMX {
		mx = MaxMX
	}
	return time.Duration(mx) * time.Second, nil
}

// randomDelay picks a delay in [0, limit].
func randomDelay(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit + 1)
}
