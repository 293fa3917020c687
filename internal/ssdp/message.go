package ssdp

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Start lines and methods
const (
	MethodSearch = "M-SEARCH"
	MethodNotify = "NOTIFY"

	SearchLine = "M-SEARCH * HTTP/1.1"
	NotifyLine = "NOTIFY * HTTP/1.1"
	StatusOK   = "HTTP/1.1 200 OK"

	// NTS values
	NTSAlive  = "ssdp:alive"
	NTSByeBye = "ssdp:byebye"

	// Discover is the MAN value required on M-SEARCH.
	Discover = `"ssdp:discover"`
)

const (
	crlf       = "\r\n"
	terminator = "\r\n\r\n"
)

// Message is a parsed SSDP datagram. For requests Method/Target/Proto hold
// e.g. "M-SEARCH", "*", "HTTP/1.1"; for responses they hold "HTTP/1.1",
// "200", "OK".
type Message struct {
	Method  string
	Target  string
	Proto   string
	Headers map[string]string // keys lower-cased
	Body    []byte
}

// Parse splits a datagram into start line, headers and body. Framing must use
// CRLF and the header block must be terminated by an empty line.
func Parse(raw []byte) (*Message, error) {
	idx := bytes.Index(raw, []byte(terminator))
	if idx < 0 {
		return nil, newError(ErrTypeMalformed, "missing header terminator", nil)
	}
	head := string(raw[:idx])
	body := raw[idx+len(terminator):]

	lines := strings.Split(head, crlf)
	start := strings.TrimSpace(lines[0])
	fields := strings.SplitN(start, " ", 3)
	if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
		return nil, newError(ErrTypeMalformed, fmt.Sprintf("malformed start line %q", start), nil)
	}

	msg := &Message{
		Method:  fields[0],
		Target:  fields[1],
		Headers: make(map[string]string, len(lines)-1),
	}
	if len(fields) == 3 {
		msg.Proto = strings.TrimSpace(fields[2])
	}
	if len(body) > 0 {
		msg.Body = append([]byte(nil), body...)
	}

	for _, line := range lines[1:] {
		// Only the first colon separates; values such as URLs keep theirs.
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		msg.Headers[key] = strings.TrimSpace(value)
	}

	return msg, nil
}

// Header returns the value for key (case-insensitive), or "".
func (m *Message) Header(key string) string {
	return m.Headers[strings.ToLower(key)]
}

// Has reports whether the header was present, even with an empty value.
func (m *Message) Has(key string) bool {
	_, ok := m.Headers[strings.ToLower(key)]
	return ok
}

// IsSearch reports whether the message is "M-SEARCH *".
func (m *Message) IsSearch() bool {
	return m.Method == MethodSearch && m.Target == "*"
}

// IsNotify reports whether the message is "NOTIFY *".
func (m *Message) IsNotify() bool {
	return m.Method == MethodNotify && m.Target == "*"
}

// IsResponse reports whether the message is an HTTP status response.
func (m *Message) IsResponse() bool {
	return strings.HasPrefix(m.Method, "HTTP/")
}

// StatusCode returns the response status, or 0 for requests.
func (m *Message) StatusCode() int {
	if !m.IsResponse() {
		return 0
	}
	code, err := strconv.Atoi(m.Target)
	if err != nil {
		return 0
	}
	return code
}

func (m *Message) String() string {
	return fmt.Sprintf("%s %s (%d headers)", m.Method, m.Target, len(m.Headers))
}

// Header is one ordered header line for Serialize.
type Header struct {
	Key   string
	Value string
}

// Serialize renders startLine and headers in the given order, CRLF-separated
// and terminated by an empty line. An empty value renders as "Key:".
func Serialize(startLine string, headers []Header) []byte {
	var b bytes.Buffer
	b.WriteString(startLine)
	b.WriteString(crlf)
	for _, h := range headers {
		b.WriteString(h.Key)
		b.WriteByte(':')
		if h.Value != "" {
			b.WriteByte(' ')
			b.WriteString(h.Value)
		}
		b.WriteString(crlf)
	}
	b.WriteString(crlf)
	return b.Bytes()
}

// SearchRequest builds an M-SEARCH for st. userAgent is omitted when empty.
func SearchRequest(group *net.UDPAddr, st string, mx int, userAgent string) []byte {
	headers := []Header{
		{"HOST", group.String()},
		{"MAN", Discover},
		{"MX", strconv.Itoa(mx)},
		{"ST", st},
	}
	if userAgent != "" {
		headers = append(headers, Header{"USER-AGENT", userAgent})
	}
	return Serialize(SearchLine, headers)
}
