package models

import (
	"fmt"
	"time"
)

// ForwardSpec describes one local-to-remote port forwarding.
type ForwardSpec struct {
	LocalPort  int    // Port bound on the local loopback interface
	RemoteHost string // Host the remote side dials, as seen from the remote machine
	RemotePort int    // VNC port on the remote side
}

// RemoteAddr returns the forwarding destination in host:port form.
func (f ForwardSpec) RemoteAddr() string {
	return fmt.Sprintf("%s:%d", f.RemoteHost, f.RemotePort)
}

// TunnelConn describes one viewer connection currently carried by the tunnel.
type TunnelConn struct {
	ID       string    `json:"id"`        // Connection identifier
	Source   string    `json:"source"`    // Local address of the viewer side
	OpenedAt time.Time `json:"opened_at"` // When the connection was accepted
}
