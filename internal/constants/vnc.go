package constants

import "time"

const (
	// VNCBasePort is the TCP port a VNC server exposes for display :0.
	// Display :n listens on VNCBasePort+n.
	VNCBasePort = 5900

	// LocalPortBase is the first local port tried for the near end of the tunnel.
	LocalPortBase = 9900

	// MaxPortAttempts bounds the linear search for a free local port.
	MaxPortAttempts = 10

	// DefaultServerBinary is the VNC server program started on the remote machine.
	DefaultServerBinary = "x0tigervncserver"

	// DefaultViewerBinary is the viewer program launched on the local machine.
	DefaultViewerBinary = "vncviewer"

	// DefaultDisplay is the X display the server attaches to.
	DefaultDisplay = 0

	// MinServerVersion is the oldest remote server version known to accept the
	// launch flags used here.
	MinServerVersion = "1.8.0"
)

const (
	// DefaultSSHUser is the account used on the remote machine when the
	// configuration names none.
	DefaultSSHUser = "procs"

	// DefaultSSHPort is the SSH port on the remote machine.
	DefaultSSHPort = 22

	// ConnectionTimeout specifies the timeout duration for establishing the SSH connection.
	ConnectionTimeout = 10 * time.Second

	// CommandTimeout bounds a single remote command run over SSH.
	CommandTimeout = 15 * time.Second

	// SettleDelay is the pause after launching the remote server before its
	// display is assumed to be up.
	SettleDelay = 1 * time.Second

	// ProbeTimeout is how long the forwarded port may take to answer with an
	// RFB greeting before the session is abandoned.
	ProbeTimeout = 5 * time.Second

	// ProbeRetryInterval is the pause between readiness probes of the forwarded port.
	ProbeRetryInterval = 250 * time.Millisecond

	// PreflightWorkers is the size of the worker pool running the preflight
	// checks.
	PreflightWorkers = 4
)

const (
	// RFBAuthPath is the per-user file on the remote machine holding the VNC
	// password the server authenticates against. Kept in remote-shell form so
	// the remote side expands it.
	RFBAuthPath = "~/.vnc/passwd"

	// ServerConfigPath is the per-user VNC configuration file on the remote
	// machine expected to restrict the server to localhost connections.
	ServerConfigPath = "~/.vnc/config"

	// ViewerPasswdPath is the local per-user password file handed to the
	// viewer so it can skip the interactive prompt.
	ViewerPasswdPath = "~/.vnc/labs"

	// PrivateKeyPath is the default SSH private key on the local machine.
	PrivateKeyPath = "~/.ssh/id_rsa"

	// ConfigPath is the per-user configuration file read when -config is not
	// given.
	ConfigPath = "~/.config/startvnc/config.yaml"
)
