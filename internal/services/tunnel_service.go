package services

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"startvnc/internal/constants"
	"startvnc/internal/models"
	"startvnc/pkg/rfb"
	"startvnc/pkg/sshclient"
)

// TunnelService forwards a local loopback port to the VNC port on the remote
// host through the SSH connection.
type TunnelService struct {
	// Configuration fields
	forward      models.ForwardSpec
	maxAttempts  int
	probeTimeout time.Duration

	// Dependencies
	sshClient sshclient.Client
	logger    zerolog.Logger

	// Internal state management
	listener    net.Listener
	localPort   int
	activeConns cmap.ConcurrentMap[string, models.TunnelConn]
	wg          sync.WaitGroup

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc
}

// NewTunnelService initializes a new TunnelService for the given forward.
func NewTunnelService(forward models.ForwardSpec, maxAttempts int, probeTimeout time.Duration,
	sshClient sshclient.Client, logger zerolog.Logger) *TunnelService {

	if maxAttempts == 0 {
		maxAttempts = constants.MaxPortAttempts
	}
	if probeTimeout == 0 {
		probeTimeout = constants.ProbeTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &TunnelService{
		forward:      forward,
		maxAttempts:  maxAttempts,
		probeTimeout: probeTimeout,
		sshClient:    sshClient,
		logger:       logger,
		activeConns:  cmap.New[models.TunnelConn](),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start binds the first free loopback port at or above the requested one and
// begins accepting viewer connections.
func (t *TunnelService) Start() error {
	var lastErr error
	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		port := t.forward.LocalPort + attempt
		listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			lastErr = err
			t.logger.Debug().Int("port", port).Err(err).Msg("Local port unavailable, trying next")
			continue
		}
		t.listener = listener
		t.localPort = listener.Addr().(*net.TCPAddr).Port
		break
	}
	if t.listener == nil {
		return fmt.Errorf("no free local port in range %d-%d: %w",
			t.forward.LocalPort, t.forward.LocalPort+t.maxAttempts-1, lastErr)
	}

	t.logger.Info().
		Int("local_port", t.localPort).
		Str("remote", t.forward.RemoteAddr()).
		Msg("Tunnel listening")

	t.wg.Add(1)
	go t.acceptConnections()
	return nil
}

// Stop closes the listener and waits for in-flight forwards to finish.
func (t *TunnelService) Stop() error {
	t.logger.Info().Msg("Stopping tunnel...")
	t.cancel()

	if t.listener != nil {
		if err := t.listener.Close(); err != nil {
			t.logger.Warn().Err(err).Msg("Error closing tunnel listener")
		}
	}

	t.wg.Wait()
	t.activeConns.Clear()
	t.logger.Info().Msg("Tunnel stopped")
	return nil
}

// LocalPort returns the loopback port the tunnel bound. Valid after Start.
func (t *TunnelService) LocalPort() int {
	return t.localPort
}

// ActiveConns returns a snapshot of the connections currently being
// forwarded.
func (t *TunnelService) ActiveConns() []models.TunnelConn {
	conns := make([]models.TunnelConn, 0, t.activeConns.Count())
	for _, conn := range t.activeConns.Items() {
		conns = append(conns, conn)
	}
	return conns
}

// WaitReady probes the tunnel until the remote endpoint answers with an RFB
// greeting, confirming the VNC server is reachable end to end.
func (t *TunnelService) WaitReady(ctx context.Context) (rfb.Version, error) {
	probeCtx, cancel := context.WithTimeout(ctx, t.probeTimeout)
	defer cancel()

	addr := fmt.Sprintf("127.0.0.1:%d", t.localPort)
	var lastErr error
	for {
		version, err := rfb.Probe(probeCtx, addr, time.Second)
		if err == nil {
			t.logger.Debug().Str("version", version.String()).Msg("VNC server reachable through tunnel")
			return version, nil
		}
		lastErr = err

		select {
		case <-probeCtx.Done():
			return rfb.Version{}, fmt.Errorf("tunnel did not become ready within %s: %w", t.probeTimeout, lastErr)
		case <-time.After(constants.ProbeRetryInterval):
		}
	}
}

// acceptConnections accepts viewer connections until the listener closes.
func (t *TunnelService) acceptConnections() {
	defer t.wg.Done()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.ctx.Err() != nil {
				t.logger.Debug().Msg("Accept loop stopped due to shutdown")
				return
			}
			t.logger.Error().Err(err).Msg("Listener accept failed")
			return
		}

		t.logger.Debug().Str("source", conn.RemoteAddr().String()).Msg("Accepted viewer connection")
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.forwardConnection(conn)
		}()
	}
}

// forwardConnection pipes one viewer connection to the remote VNC port.
func (t *TunnelService) forwardConnection(conn net.Conn) {
	defer conn.Close()

	remoteConn, err := t.sshClient.Dial("tcp", t.forward.RemoteAddr())
	if err != nil {
		t.logger.Error().Err(err).Str("remote", t.forward.RemoteAddr()).Msg("Failed to reach VNC port on remote host")
		return
	}
	defer remoteConn.Close()

	tracked := models.TunnelConn{
		ID:       uuid.New().String(),
		Source:   conn.RemoteAddr().String(),
		OpenedAt: time.Now(),
	}
	t.activeConns.Set(tracked.ID, tracked)
	defer t.activeConns.Remove(tracked.ID)

	// When either direction finishes, both sides close so the other copy
	// unblocks.
	var closeOnce sync.Once
	closeBoth := func() {
		conn.Close()
		remoteConn.Close()
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		_, err := io.Copy(remoteConn, conn)
		if err != nil && t.ctx.Err() == nil {
			t.logger.Debug().Err(err).Msg("Error forwarding local to remote")
		}
		closeOnce.Do(closeBoth)
	}()

	go func() {
		defer wg.Done()
		_, err := io.Copy(conn, remoteConn)
		if err != nil && t.ctx.Err() == nil {
			t.logger.Debug().Err(err).Msg("Error forwarding remote to local")
		}
		closeOnce.Do(closeBoth)
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-t.ctx.Done():
		closeOnce.Do(closeBoth)
		wg.Wait()
	case <-done:
	}

	t.logger.Debug().Str("source", tracked.Source).Msg("Viewer connection closed")
}
