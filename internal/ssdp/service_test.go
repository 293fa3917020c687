package ssdp

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/ssdpd/internal/transport"
)

const testSearch = "M-SEARCH * HTTP/1.1\r\n" +
	"HOST: 239.255.255.250:1900\r\n" +
	"MAN: \"ssdp:discover\"\r\n" +
	"MX: 2\r\n" +
	"ST: upnp:rootdevice\r\n\r\n"

var lanPeer = &net.UDPAddr{IP: net.IPv4(192, 168, 1, 20), Port: 50000}

func newTestService(t *testing.T, cfg Config, opts ...Option) (*Service, *fakeConn) {
	t.Helper()

	conn := newFakeConn()
	opts = append([]Option{WithConn(conn), WithPollInterval(20 * time.Millisecond)}, opts...)
	svc, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, svc.Listen())
	t.Cleanup(func() { _ = svc.Shutdown() })
	return svc, conn
}

// runService starts Serve in the background and returns a stop func that
// cancels it and waits for the loop to exit.
func runService(t *testing.T, svc *Service) (stop func() error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("receive loop did not stop")
			return nil
		}
	}
}

func TestNew_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad netmask", Config{Netmask: "192.168.1.0/33"}},
		{"garbage netmask", Config{Netmask: "lan"}},
		{"unicast group", Config{Group: "192.168.1.1"}},
		{"port out of range", Config{Port: 70000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err), "got %v", err)
		})
	}
}

func TestNew_InvalidOption(t *testing.T) {
	_, err := New(Config{}, WithPollInterval(0))
	assert.True(t, IsConfigurationError(err))

	_, err = New(Config{}, WithConn(nil))
	assert.True(t, IsConfigurationError(err))

	_, err = New(Config{}, WithMaxPendingReplies(0))
	assert.True(t, IsConfigurationError(err))

	_, err = New(Config{}, WithJitter(nil))
	assert.True(t, IsConfigurationError(err))
}

func TestService_ListenFailure(t *testing.T) {
	svc, err := New(Config{})
	require.NoError(t, err)
	svc.listen = func(transport.Config) (transport.Conn, error) {
		return nil, errors.New("address in use")
	}

	err = svc.Listen()
	require.Error(t, err)
	assert.True(t, IsNetwork(err))
}

func TestService_ServeBeforeListen(t *testing.T) {
	svc, err := New(Config{})
	require.NoError(t, err)
	assert.True(t, IsNetwork(svc.Serve(context.Background())))
}

func TestService_RegisterAnnouncesTwice(t *testing.T) {
	svc, conn := newTestService(t, Config{})

	require.NoError(t, svc.Register(localRecord("ABC", RootDevice)))

	assert.Len(t, conn.sentWith("nts", NTSAlive), 2)
	assert.True(t, svc.IsKnown("uuid:ABC::upnp:rootdevice"))
}

func TestService_RegisterSilentOrRemoteIsQuiet(t *testing.T) {
	svc, conn := newTestService(t, Config{})

	silent := localRecord("ABC", RootDevice)
	silent.Silent = true
	remote := localRecord("XYZ", RootDevice)
	remote.Manifestation = Remote

	require.NoError(t, svc.Register(silent))
	require.NoError(t, svc.Register(remote))
	assert.Empty(t, conn.sentMessages())
	assert.Len(t, svc.Records(), 2)
}

func TestService_RegisterBeforeListenIsQuiet(t *testing.T) {
	conn := newFakeConn()
	svc, err := New(Config{}, WithConn(conn))
	require.NoError(t, err)

	require.NoError(t, svc.Register(localRecord("ABC", RootDevice)))
	assert.Empty(t, conn.sentMessages())
	assert.True(t, svc.IsKnown("uuid:ABC::upnp:rootdevice"))
}

func TestService_RegisterSendFailureStillStores(t *testing.T) {
	svc, conn := newTestService(t, Config{})
	conn.sendErr = errors.New("network unreachable")

	require.NoError(t, svc.Register(localRecord("ABC", RootDevice)))
	assert.True(t, svc.IsKnown("uuid:ABC::upnp:rootdevice"))
}

func TestService_RegisterInvalidRecord(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	assert.True(t, IsValidation(svc.Register(ServiceRecord{ServiceType: RootDevice})))
}

func TestService_Unregister(t *testing.T) {
	svc, conn := newTestService(t, Config{})
	rec := localRecord("ABC", RootDevice)
	require.NoError(t, svc.Register(rec))
	conn.reset()

	assert.True(t, svc.Unregister(rec.USN))
	assert.False(t, svc.IsKnown(rec.USN))
	assert.False(t, svc.Unregister(rec.USN))
	assert.Empty(t, conn.sentMessages(), "unregister is silent")
}

func TestService_Withdraw(t *testing.T) {
	svc, conn := newTestService(t, Config{})
	rec := localRecord("ABC", RootDevice)
	require.NoError(t, svc.Register(rec))
	conn.reset()

	assert.True(t, svc.Withdraw(rec.USN))
	assert.False(t, svc.IsKnown(rec.USN))
	assert.Len(t, conn.sentWith("nts", NTSByeBye), 1)
	assert.False(t, svc.Withdraw(rec.USN))
}

func TestService_AnswersRootDeviceSearch(t *testing.T) {
	svc, conn := newTestService(t, Config{})
	require.NoError(t, svc.Register(ServiceRecord{
		USN:         "uuid:ABC::upnp:rootdevice",
		ServiceType: RootDevice,
		Location:    "http://192.168.1.10:8080/device.xml",
	}))
	conn.reset()

	stop := runService(t, svc)
	conn.inject(testSearch, lanPeer)

	require.Eventually(t, func() bool {
		return len(conn.sentMessages()) == 1
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	reply := conn.sentMessages()[0]
	assert.Equal(t, lanPeer, reply.addr)

	msg, err := Parse(reply.data)
	require.NoError(t, err)
	assert.Equal(t, 200, msg.StatusCode())
	assert.Equal(t, RootDevice, msg.Header("st"))
	assert.Equal(t, "uuid:ABC::upnp:rootdevice", msg.Header("usn"))
	assert.Equal(t, "http://192.168.1.10:8080/device.xml", msg.Header("location"))
	assert.Equal(t, "max-age=1800", msg.Header("cache-control"))
}

func TestService_SearchAllHidesSilent(t *testing.T) {
	svc, conn := newTestService(t, Config{})
	silent := localRecord("ABC", "urn:ses-com:device:SatIPServer:1")
	silent.Silent = true
	require.NoError(t, svc.Register(localRecord("ABC", RootDevice)))
	require.NoError(t, svc.Register(silent))
	conn.reset()

	stop := runService(t, svc)
	conn.inject("M-SEARCH * HTTP/1.1\r\nMAN: \"ssdp:discover\"\r\nMX: 1\r\nST: ssdp:all\r\n\r\n", lanPeer)
	conn.inject("M-SEARCH * HTTP/1.1\r\nMAN: \"ssdp:discover\"\r\nMX: 1\r\nST: urn:ses-com:device:SatIPServer:1\r\n\r\n", lanPeer)

	require.Eventually(t, func() bool {
		return len(conn.sentMessages()) == 2
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	assert.Len(t, conn.sentWith("st", RootDevice), 1)
	assert.Len(t, conn.sentWith("st", silent.ServiceType), 1)
}

func TestService_FilteredSourceIsIgnored(t *testing.T) {
	svc, conn := newTestService(t, Config{Netmask: "192.168.1.0/24"})
	require.NoError(t, svc.Register(localRecord("ABC", RootDevice)))
	conn.reset()

	stop := runService(t, svc)
	conn.inject(testSearch, &net.UDPAddr{IP: net.IPv4(10, 0, 0, 7), Port: 50000})
	conn.inject(testSearch, lanPeer)

	require.Eventually(t, func() bool {
		return len(conn.sentMessages()) == 1
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	assert.Equal(t, lanPeer, conn.sentMessages()[0].addr)
}

func TestService_BadDatagramsDoNotStopLoop(t *testing.T) {
	svc, conn := newTestService(t, Config{})
	require.NoError(t, svc.Register(localRecord("ABC", RootDevice)))
	conn.reset()

	stop := runService(t, svc)
	conn.inject("\x00\x01garbage", lanPeer)
	conn.inject("M-SEARCH * HTTP/1.1\r\nST: upnp:rootdevice\r\n\r\n", lanPeer) // no MX
	conn.inject("NOTIFY * HTTP/1.1\r\nNT: upnp:rootdevice\r\nNTS: ssdp:alive\r\nUSN: uuid:OTHER\r\n\r\n", lanPeer)
	conn.inject("SUBSCRIBE /events HTTP/1.1\r\n\r\n", lanPeer)
	conn.inject(testSearch, lanPeer)

	require.Eventually(t, func() bool {
		return len(conn.sentMessages()) == 1
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	assert.False(t, svc.IsKnown("uuid:OTHER"), "NOTIFY from peers is not tracked")
}

func TestService_StaggeredReply(t *testing.T) {
	var requested atomic.Int64
	jitter := func(limit time.Duration) time.Duration {
		requested.Store(int64(limit))
		return 50 * time.Millisecond
	}
	svc, conn := newTestService(t, Config{StaggerReplies: true}, WithJitter(jitter))
	require.NoError(t, svc.Register(localRecord("ABC", RootDevice)))
	conn.reset()

	stop := runService(t, svc)
	defer func() { _ = stop() }()

	conn.inject(testSearch, lanPeer)

	require.Eventually(t, func() bool {
		return len(conn.sentMessages()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(2*time.Second), requested.Load(), "jitter bounded by MX")
}

func TestService_ShutdownDropsPendingReplies(t *testing.T) {
	jitter := func(time.Duration) time.Duration { return time.Hour }
	svc, conn := newTestService(t, Config{StaggerReplies: true}, WithJitter(jitter))
	require.NoError(t, svc.Register(localRecord("ABC", RootDevice)))
	conn.reset()

	stop := runService(t, svc)
	conn.inject(testSearch, lanPeer)
	time.Sleep(60 * time.Millisecond)

	require.NoError(t, stop())

	assert.Empty(t, conn.sentWith("st", RootDevice), "pending reply must not be sent")
	assert.Len(t, conn.sentWith("nts", NTSByeBye), 1)
}

func TestService_ReplyBacklogSendsImmediately(t *testing.T) {
	jitter := func(time.Duration) time.Duration { return time.Hour }
	svc, conn := newTestService(t, Config{StaggerReplies: true},
		WithJitter(jitter), WithMaxPendingReplies(1))
	require.NoError(t, svc.Register(localRecord("AAA", RootDevice)))
	require.NoError(t, svc.Register(localRecord("BBB", RootDevice)))
	conn.reset()

	stop := runService(t, svc)
	conn.inject(testSearch, lanPeer)

	// One reply holds the only slot; the other goes out without waiting.
	require.Eventually(t, func() bool {
		return len(conn.sentWith("st", RootDevice)) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, stop())
	assert.Len(t, conn.sentWith("st", RootDevice), 1, "held reply is dropped on shutdown")
	assert.Empty(t, svc.slots, "slots released")
}

func TestService_ListenPassesMulticastSettings(t *testing.T) {
	svc, err := New(Config{Interface: "192.168.1.10", Loopback: true, MulticastTTL: 4})
	require.NoError(t, err)

	var got transport.Config
	svc.listen = func(c transport.Config) (transport.Conn, error) {
		got = c
		return newFakeConn(), nil
	}
	require.NoError(t, svc.Listen())
	t.Cleanup(func() { _ = svc.Shutdown() })

	assert.True(t, got.Loopback)
	assert.Equal(t, 4, got.MulticastTTL)
	assert.Equal(t, "192.168.1.10", got.Interface)
	assert.Equal(t, transport.DefaultPort, got.Port)
}

func TestService_ShutdownByeByes(t *testing.T) {
	svc, conn := newTestService(t, Config{})

	silent := localRecord("ABC", "urn:ses-com:device:SatIPServer:1")
	silent.Silent = true
	remote := localRecord("XYZ", RootDevice)
	remote.Manifestation = Remote

	require.NoError(t, svc.Register(localRecord("ABC", RootDevice)))
	require.NoError(t, svc.Register(silent))
	require.NoError(t, svc.Register(remote))
	conn.reset()

	require.NoError(t, svc.Shutdown())

	byes := conn.sentWith("nts", NTSByeBye)
	require.Len(t, byes, 2)
	var usns []string
	for _, m := range byes {
		usns = append(usns, m.Header("usn"))
	}
	assert.ElementsMatch(t, []string{"uuid:ABC::upnp:rootdevice", silent.USN}, usns)
	assert.True(t, conn.isClosed())

	// Idempotent.
	require.NoError(t, svc.Shutdown())
	assert.Len(t, conn.sentWith("nts", NTSByeBye), 2)
	assert.True(t, IsNetwork(svc.Listen()))
}

func TestService_ShutdownContinuesPastSendErrors(t *testing.T) {
	svc, conn := newTestService(t, Config{})
	require.NoError(t, svc.Register(localRecord("A", RootDevice)))
	require.NoError(t, svc.Register(localRecord("B", RootDevice)))
	conn.sendErr = errors.New("network unreachable")

	require.NoError(t, svc.Shutdown())
	assert.True(t, conn.isClosed())
}

func TestService_CancelStopsLoopAndByeByes(t *testing.T) {
	svc, conn := newTestService(t, Config{})
	require.NoError(t, svc.Register(localRecord("ABC", RootDevice)))
	conn.reset()

	stop := runService(t, svc)
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, stop())

	assert.Len(t, conn.sentWith("nts", NTSByeBye), 1)
	assert.True(t, conn.isClosed())
}

func TestService_StartRegistersAndServes(t *testing.T) {
	conn := newFakeConn()
	svc, err := New(Config{}, WithConn(conn), WithPollInterval(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx, localRecord("ABC", RootDevice)) }()

	require.Eventually(t, func() bool {
		return len(conn.sentWith("nts", NTSAlive)) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	assert.Len(t, conn.sentWith("nts", NTSByeBye), 1)
}

func TestService_PeriodicReannounce(t *testing.T) {
	svc, conn := newTestService(t, Config{AnnounceInterval: 40 * time.Millisecond})
	require.NoError(t, svc.Register(localRecord("ABC", RootDevice)))
	conn.reset()

	stop := runService(t, svc)
	require.Eventually(t, func() bool {
		return len(conn.sentWith("nts", NTSAlive)) >= 2
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, stop())
}
