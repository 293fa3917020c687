package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/ssdpd/internal/ssdp"
)

// startResponder answers every M-SEARCH it receives with the given records,
// sending each twice plus one garbage datagram.
func startResponder(t *testing.T, recs ...ssdp.ServiceRecord) (addr string, searches chan *ssdp.Message) {
	t.Helper()

	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot open loopback socket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	searches = make(chan *ssdp.Message, 8)
	go func() {
		buf := make([]byte, 2048)
		for {
			n, from, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			msg, err := ssdp.Parse(buf[:n])
			if err != nil || !msg.IsSearch() {
				continue
			}
			select {
			case searches <- msg:
			default:
			}
			conn.WriteTo([]byte("not ssdp"), from)
			for _, rec := range recs {
				resp := ssdp.BuildResponse(rec, time.Now())
				conn.WriteTo(resp, from)
				conn.WriteTo(resp, from)
			}
		}
	}()

	return conn.LocalAddr().String(), searches
}

func TestScanner_SearchUnicast(t *testing.T) {
	root := ssdp.ServiceRecord{
		USN:         "uuid:ABC::upnp:rootdevice",
		ServiceType: ssdp.RootDevice,
		Location:    "http://192.168.1.10:5004/device.xml",
	}
	media := ssdp.ServiceRecord{
		USN:         "uuid:ABC::urn:schemas-upnp-org:device:MediaServer:1",
		ServiceType: "urn:schemas-upnp-org:device:MediaServer:1",
		Location:    "http://192.168.1.10:5004/device.xml",
	}
	addr, searches := startResponder(t, media, root)

	scanner := NewScanner()
	scanner.Group = addr
	scanner.Timeout = 300 * time.Millisecond
	scanner.UserAgent = "ssdpd-test"

	devices, err := scanner.Search(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2, "duplicates collapse by USN")

	assert.Equal(t, root.USN, devices[0].USN)
	assert.Equal(t, media.USN, devices[1].USN)
	for _, d := range devices {
		assert.Equal(t, SourceSSDP, d.Source)
		assert.Equal(t, "127.0.0.1", d.IP)
		assert.Equal(t, 5004, d.Port)
		assert.Equal(t, ssdp.DefaultServer, d.Server)
		assert.Equal(t, "max-age=1800", d.CacheControl)
	}

	select {
	case msg := <-searches:
		assert.Equal(t, ssdp.SearchAll, msg.Header("st"))
		assert.Equal(t, "2", msg.Header("mx"))
		assert.Equal(t, ssdp.Discover, msg.Header("man"))
		assert.Equal(t, "ssdpd-test", msg.Header("user-agent"))
	default:
		t.Fatal("responder saw no M-SEARCH")
	}
}

func TestScanner_SearchNoAnswers(t *testing.T) {
	addr, _ := startResponder(t)

	scanner := NewScanner()
	scanner.Group = addr
	scanner.Timeout = 150 * time.Millisecond

	start := time.Now()
	devices, err := scanner.Search(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestScanner_SearchCancelled(t *testing.T) {
	addr, _ := startResponder(t)

	scanner := NewScanner()
	scanner.Group = addr
	scanner.Timeout = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	_, err := scanner.Search(ctx)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestScanner_FindUSN(t *testing.T) {
	root := ssdp.ServiceRecord{
		USN:         "uuid:ABC::upnp:rootdevice",
		ServiceType: ssdp.RootDevice,
		Location:    "http://192.168.1.10:5004/device.xml",
	}
	addr, _ := startResponder(t, root)

	scanner := NewScanner()
	scanner.Group = addr
	scanner.Timeout = 200 * time.Millisecond

	d, err := scanner.FindUSN(context.Background(), root.USN)
	require.NoError(t, err)
	assert.Equal(t, root.Location, d.Location)

	_, err = scanner.FindUSN(context.Background(), "uuid:NOPE")
	assert.ErrorIs(t, err, errNoDevices)
}

func TestScanner_InvalidGroup(t *testing.T) {
	scanner := NewScanner()
	scanner.Group = "not an address"

	_, err := scanner.Search(context.Background())
	assert.Error(t, err)
}

func TestParseResponse(t *testing.T) {
	from := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 1900}

	tests := []struct {
		name    string
		raw     string
		wantNil bool
		port    int
	}{
		{
			name: "valid",
			raw:  "HTTP/1.1 200 OK\r\nST: upnp:rootdevice\r\nUSN: uuid:X::upnp:rootdevice\r\nLOCATION: http://10.0.0.2:8080/d.xml\r\n\r\n",
			port: 8080,
		},
		{
			name: "no port in location falls back to source",
			raw:  "HTTP/1.1 200 OK\r\nUSN: uuid:X\r\nLOCATION: http://10.0.0.2/d.xml\r\n\r\n",
			port: 1900,
		},
		{name: "not ok", raw: "HTTP/1.1 404 Not Found\r\nUSN: uuid:X\r\n\r\n", wantNil: true},
		{name: "request", raw: "M-SEARCH * HTTP/1.1\r\nST: ssdp:all\r\n\r\n", wantNil: true},
		{name: "no usn", raw: "HTTP/1.1 200 OK\r\nST: upnp:rootdevice\r\n\r\n", wantNil: true},
		{name: "garbage", raw: "\x00\x01", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := parseResponse([]byte(tt.raw), from)
			if tt.wantNil {
				assert.Nil(t, d)
				return
			}
			require.NotNil(t, d)
			assert.Equal(t, "10.0.0.2", d.IP)
			assert.Equal(t, tt.port, d.Port)
		})
	}
}
