package ssdp

import (
	"net"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muurk/ssdpd/internal/logging"
	"github.com/muurk/ssdpd/internal/transport"
)

// aliveCopies is how many times each alive NOTIFY is sent. UDP multicast is
// lossy and clients only need to hear one.
const aliveCopies = 2

// Announcer multicasts NOTIFY alive/byebye messages for local records.
type Announcer struct {
	conn transport.Conn
}

// NewAnnouncer returns an Announcer sending on conn.
func NewAnnouncer(conn transport.Conn) *Announcer {
	return &Announcer{conn: conn}
}

// Alive announces rec. Silent records are never announced.
func (a *Announcer) Alive(rec ServiceRecord) error {
	if rec.Silent {
		return nil
	}
	if a == nil || a.conn == nil {
		return newError(ErrTypeNetwork, "socket not open", nil)
	}

	group := a.conn.Group()
	msg := NotifyMessage(group, NTSAlive, rec)
	logging.Debug("Sending alive notification",
		zap.String("usn", rec.USN),
		zap.String("nt", rec.ServiceType),
	)

	var errs error
	for i := 0; i < aliveCopies; i++ {
		logging.LogDatagram("sent", group.String(), msg)
		errs = multierr.Append(errs, a.conn.Send(msg, group))
	}
	if errs != nil {
		return newError(ErrTypeNetwork, "alive notification for "+rec.USN, errs)
	}
	return nil
}

// ByeBye withdraws rec. It is sent once, silent records included.
func (a *Announcer) ByeBye(rec ServiceRecord) error {
	if err := rec.validate(); err != nil {
		return err
	}
	if a == nil || a.conn == nil {
		return newError(ErrTypeNetwork, "socket not open", nil)
	}

	group := a.conn.Group()
	msg := NotifyMessage(group, NTSByeBye, rec)
	logging.Debug("Sending byebye notification",
		zap.String("usn", rec.USN),
		zap.String("nt", rec.ServiceType),
	)
	logging.LogDatagram("sent", group.String(), msg)
	if err := a.conn.Send(msg, group); err != nil {
		return newError(ErrTypeNetwork, "byebye notification for "+rec.USN, err)
	}
	return nil
}

// NotifyMessage builds a NOTIFY for rec with the given NTS.
func NotifyMessage(group *net.UDPAddr, nts string, rec ServiceRecord) []byte {
	rec = rec.withDefaults()
	return Serialize(NotifyLine, []Header{
		{"HOST", group.String()},
		{"NTS", nts},
		{"NT", rec.ServiceType},
		{"USN", rec.USN},
		{"Location", rec.Location},
		{"Server", rec.Server},
		{"Cache-Control", rec.CacheControl},
	})
}
