package models

import (
	"fmt"
	"net"
	"strconv"
)

// Endpoint identifies the remote machine an operation targets.
type Endpoint struct {
	User string // SSH account on the remote machine
	Host string // IP address or hostname
	Port int    // SSH port
}

// Addr returns the host:port form used for dialing.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// String returns the user@host form used in logs.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s@%s", e.User, e.Host)
}
