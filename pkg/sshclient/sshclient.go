// Package sshclient wraps golang.org/x/crypto/ssh with the small remote
// surface the launcher needs: one-shot commands, interactive commands on a
// PTY and direct-tcpip dialing for tunnels.
package sshclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"startvnc/pkg/file"
)

// Config holds the connection parameters for a single SSH endpoint.
type Config struct {
	User                string
	Host                string
	Port                int
	PrivateKeyPath      string
	ServerPublicKeyPath string // optional, pins the host key when set
	ConnectTimeout      time.Duration
}

// Addr returns the host:port dial address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// CommandError reports a remote command that exited with a non-zero status.
type CommandError struct {
	Cmd    string
	Status int
	Stderr string
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("remote command %q exited with status %d: %s", e.Cmd, e.Status, e.Stderr)
	}
	return fmt.Sprintf("remote command %q exited with status %d", e.Cmd, e.Status)
}

// ExitStatus extracts the remote exit status from an error returned by Output
// or Shell. The second return is false when err does not carry one.
func ExitStatus(err error) (int, bool) {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Status, true
	}
	return 0, false
}

// Client defines the interface for remote operations over an established SSH
// connection.
type Client interface {
	Output(ctx context.Context, cmd string) ([]byte, error)
	Shell(cmd string) error
	Dial(network, addr string) (net.Conn, error)
	Close() error
}

// SSHClient provides remote command execution and tunneling over a single
// SSH connection.
type SSHClient struct {
	fileClient file.FileOperations
	conn       *ssh.Client
}

// NewSSHClient creates a new SSHClient instance.
func NewSSHClient(fileClient file.FileOperations) *SSHClient {
	return &SSHClient{
		fileClient: fileClient,
	}
}

// Connect dials the endpoint described by cfg and performs the SSH handshake.
func (c *SSHClient) Connect(ctx context.Context, cfg Config) error {
	clientConfig, err := c.clientConfig(cfg)
	if err != nil {
		return err
	}

	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", cfg.Addr(), err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, cfg.Addr(), clientConfig)
	if err != nil {
		tcpConn.Close()
		return fmt.Errorf("SSH handshake with %s failed: %w", cfg.Addr(), err)
	}
	c.conn = ssh.NewClient(sshConn, chans, reqs)
	return nil
}

// clientConfig builds the ssh.ClientConfig for cfg, loading the private key
// and the optional pinned server public key through the file client.
func (c *SSHClient) clientConfig(cfg Config) (*ssh.ClientConfig, error) {
	key, err := c.fileClient.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH private key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.ServerPublicKeyPath != "" {
		raw, err := c.fileClient.ReadFileRaw(cfg.ServerPublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read server public key: %w", err)
		}
		serverKey, _, _, _, err := ssh.ParseAuthorizedKey(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse server public key: %w", err)
		}
		hostKeyCallback = ssh.FixedHostKey(serverKey)
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.ConnectTimeout,
	}, nil
}

// Output runs cmd on the remote host and returns its stdout. A non-zero exit
// comes back as a *CommandError carrying the remote status and stderr.
// Cancelling ctx tears the session down and unblocks the call.
func (c *SSHClient) Output(ctx context.Context, cmd string) ([]byte, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-done:
		}
	}()

	var stderr bytes.Buffer
	session.Stderr = &stderr

	output, err := session.Output(cmd)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("remote command %q interrupted: %w", cmd, ctx.Err())
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return output, &CommandError{
				Cmd:    cmd,
				Status: exitErr.ExitStatus(),
				Stderr: strings.TrimSpace(stderr.String()),
			}
		}
		return nil, fmt.Errorf("remote command %q failed: %w", cmd, err)
	}
	return output, nil
}

// Shell runs cmd on the remote host in a PTY session wired to the local
// stdin, stdout and stderr. It blocks until the remote command exits.
func (c *SSHClient) Shell(cmd string) error {
	session, err := c.conn.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("xterm-256color", 40, 120, modes); err != nil {
		return fmt.Errorf("failed to request PTY: %w", err)
	}

	session.Stdin = os.Stdin
	session.Stdout = os.Stdout
	session.Stderr = os.Stderr

	if err := session.Run(cmd); err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return &CommandError{Cmd: cmd, Status: exitErr.ExitStatus()}
		}
		return fmt.Errorf("interactive command %q failed: %w", cmd, err)
	}
	return nil
}

// Dial opens a connection to addr from the remote host over the SSH
// connection.
func (c *SSHClient) Dial(network, addr string) (net.Conn, error) {
	return c.conn.Dial(network, addr)
}

// Close terminates the SSH connection.
func (c *SSHClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
