package transport

import (
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveInterfaceDefault(t *testing.T) {
	for _, name := range []string{"", "0.0.0.0", "  "} {
		ifi, err := ResolveInterface(name)
		require.NoError(t, err, "ResolveInterface(%q)", name)
		assert.Nil(t, ifi, "ResolveInterface(%q)", name)
	}
}

func TestResolveInterfaceUnknown(t *testing.T) {
	_, err := ResolveInterface("definitely-not-an-interface0")
	require.Error(t, err)

	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, "resolve interface", netErr.Operation)

	_, err = ResolveInterface("203.0.113.77")
	require.Error(t, err, "an address no local interface owns should not resolve")
}

func TestResolveInterfaceByAddress(t *testing.T) {
	ifaces, err := net.Interfaces()
	if err != nil {
		t.Skipf("cannot list interfaces: %v", err)
	}
	for _, ifi := range ifaces {
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			got, err := ResolveInterface(ipnet.IP.String())
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, ifi.Name, got.Name)
			return
		}
	}
	t.Skip("no interface with an IPv4 address")
}

func TestNetworkError(t *testing.T) {
	inner := errors.New("boom")
	err := &NetworkError{Operation: "send", Err: inner, Details: "239.255.255.250:1900"}

	assert.Equal(t, "send (239.255.255.250:1900): boom", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "bind", (&NetworkError{Operation: "bind"}).Error())
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(ErrTimeout))
	assert.True(t, IsTimeout(fmt.Errorf("wrapped: %w", &NetworkError{Operation: "receive", Err: ErrTimeout})))
	assert.False(t, IsTimeout(errors.New("nope")))
	assert.False(t, IsTimeout(nil))
	assert.True(t, IsClosed(&NetworkError{Operation: "receive", Err: net.ErrClosed}))
}

func TestListenRejectsNonMulticastGroup(t *testing.T) {
	_, err := Listen(Config{Group: "10.0.0.1", Port: 0})
	require.Error(t, err)

	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, "resolve group", netErr.Operation)
}

// listenOrSkip opens a real socket on an ephemeral port. Sandboxes without a
// multicast route cannot join the group, so the socket tests skip there.
func listenOrSkip(t *testing.T) *UDPv4 {
	t.Helper()
	u, err := Listen(Config{Port: 0, Loopback: true})
	if err != nil {
		t.Skipf("multicast socket unavailable: %v", err)
	}
	t.Cleanup(func() { _ = u.Close() })
	return u
}

func TestUDPv4ReceiveTimeout(t *testing.T) {
	u := listenOrSkip(t)

	start := time.Now()
	_, _, err := u.Receive(time.Now().Add(50 * time.Millisecond))
	require.Error(t, err)
	assert.True(t, IsTimeout(err), "Receive() error = %v, want timeout", err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestUDPv4SendReceiveUnicast(t *testing.T) {
	u := listenOrSkip(t)

	local, ok := u.LocalAddr().(*net.UDPAddr)
	require.True(t, ok)
	dst := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: local.Port}

	payload := []byte("M-SEARCH * HTTP/1.1\r\nST: ssdp:all\r\nMX: 1\r\n\r\n")
	require.NoError(t, u.Send(payload, dst))

	got, from, err := u.Receive(time.Now().Add(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.True(t, from.IP.IsLoopback(), "from = %v, want loopback", from)
}

func TestUDPv4ReceiveAfterClose(t *testing.T) {
	u := listenOrSkip(t)
	require.NoError(t, u.Close())

	_, _, err := u.Receive(time.Now().Add(time.Second))
	require.Error(t, err)
	assert.False(t, IsTimeout(err))
}
