// Package rfb implements the minimal slice of the RFB protocol needed to
// verify that a TCP endpoint is a live VNC server: reading and parsing the
// 12-byte ProtocolVersion greeting the server sends on connect.
package rfb

import (
	"context"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"time"
)

// GreetingLength is the fixed size of the RFB ProtocolVersion message.
const GreetingLength = 12

var greetingRegex = regexp.MustCompile(`^RFB (\d{3})\.(\d{3})\n$`)

// Version is the protocol version a server announced in its greeting.
type Version struct {
	Major int
	Minor int
}

// String renders the version in the RFB wire format, e.g. "RFB 003.008".
func (v Version) String() string {
	return fmt.Sprintf("RFB %03d.%03d", v.Major, v.Minor)
}

// ParseGreeting parses a ProtocolVersion message such as "RFB 003.008\n".
func ParseGreeting(greeting []byte) (Version, error) {
	m := greetingRegex.FindSubmatch(greeting)
	if m == nil {
		return Version{}, fmt.Errorf("not an RFB greeting: %q", greeting)
	}
	major, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return Version{}, fmt.Errorf("invalid RFB major version: %w", err)
	}
	minor, err := strconv.Atoi(string(m[2]))
	if err != nil {
		return Version{}, fmt.Errorf("invalid RFB minor version: %w", err)
	}
	return Version{Major: major, Minor: minor}, nil
}

// Probe connects to addr, reads the server's ProtocolVersion greeting and
// disconnects without continuing the handshake. It returns the announced
// version, or an error if the endpoint does not speak RFB within the timeout.
func Probe(ctx context.Context, addr string, timeout time.Duration) (Version, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Version{}, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Version{}, fmt.Errorf("failed to set read deadline: %w", err)
	}

	greeting := make([]byte, GreetingLength)
	if _, err := io.ReadFull(conn, greeting); err != nil {
		return Version{}, fmt.Errorf("failed to read RFB greeting from %s: %w", addr, err)
	}

	version, err := ParseGreeting(greeting)
	if err != nil {
		return Version{}, fmt.Errorf("unexpected greeting from %s: %w", addr, err)
	}
	return version, nil
}
