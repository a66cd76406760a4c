package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"startvnc/internal/models"
	"startvnc/pkg/rfb"
)

// serverController is the slice of ServerService the session flow drives.
type serverController interface {
	IsRunning(ctx context.Context) (bool, error)
	Start(ctx context.Context, interactive bool) error
	Stop(ctx context.Context) error
	Preflight(ctx context.Context) models.PreflightReport
}

// Tunnel is the per-session forwarding surface the session flow drives,
// satisfied by TunnelService. Each session constructs its own tunnel through
// the factory handed to NewSessionService.
type Tunnel interface {
	Start() error
	Stop() error
	LocalPort() int
	WaitReady(ctx context.Context) (rfb.Version, error)
}

// viewerController is the slice of ViewerService the session flow drives.
type viewerController interface {
	RunningViewers() (int, error)
	Launch(ctx context.Context, port int) error
}

// SessionService orchestrates a full VNC session: remote server lifecycle,
// tunnel and local viewer, with teardown in reverse order.
type SessionService struct {
	// Configuration fields
	target        models.Endpoint
	localPortBase int
	remotePort    int
	stopOnExit    bool

	// Dependencies
	server    serverController
	viewer    viewerController
	newTunnel func(forward models.ForwardSpec) Tunnel
	logger    zerolog.Logger
}

// NewSessionService initializes a new SessionService with the given
// parameters.
func NewSessionService(target models.Endpoint, localPortBase, remotePort int, stopOnExit bool,
	server serverController, viewer viewerController,
	newTunnel func(forward models.ForwardSpec) Tunnel, logger zerolog.Logger) *SessionService {

	return &SessionService{
		target:        target,
		localPortBase: localPortBase,
		remotePort:    remotePort,
		stopOnExit:    stopOnExit,
		server:        server,
		viewer:        viewer,
		newTunnel:     newTunnel,
		logger:        logger,
	}
}

// Run executes the full session flow: make sure the server runs, tunnel to
// it, hand off to the viewer and tear everything down when the viewer exits.
// A server started by this session is stopped again on exit when configured
// to do so.
func (s *SessionService) Run(ctx context.Context, interactive bool) error {
	startedByUs, err := s.ensureServer(ctx, interactive)
	if err != nil {
		return err
	}

	sessionErr := s.runSession(ctx)

	if startedByUs && s.stopOnExit {
		if err := s.server.Stop(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("Failed to stop VNC server during teardown")
			if sessionErr == nil {
				sessionErr = err
			}
		}
	}
	return sessionErr
}

// StartServer makes sure the remote VNC server is running.
func (s *SessionService) StartServer(ctx context.Context, interactive bool) error {
	_, err := s.ensureServer(ctx, interactive)
	return err
}

// StopServer kills the remote VNC server.
func (s *SessionService) StopServer(ctx context.Context) error {
	return s.server.Stop(ctx)
}

// Connect tunnels to an already running server and launches the viewer. The
// server is left untouched on exit.
func (s *SessionService) Connect(ctx context.Context) error {
	running, err := s.server.IsRunning(ctx)
	if err != nil {
		return err
	}
	if !running {
		return fmt.Errorf("VNC server is not running on %s, start it first", s.target)
	}
	return s.runSession(ctx)
}

// Status reports the remote server state and the local viewer count.
func (s *SessionService) Status(ctx context.Context) (models.SessionStatus, error) {
	running, err := s.server.IsRunning(ctx)
	if err != nil {
		return models.SessionStatus{}, err
	}

	viewers, err := s.viewer.RunningViewers()
	if err != nil {
		return models.SessionStatus{}, err
	}

	return models.SessionStatus{
		Target:        s.target.String(),
		ServerRunning: running,
		LocalViewers:  viewers,
	}, nil
}

// ensureServer runs the preflight checks and starts the server if no process
// is up yet. It reports whether this call started the server.
func (s *SessionService) ensureServer(ctx context.Context, interactive bool) (bool, error) {
	report := s.server.Preflight(ctx)
	for _, failure := range report.Failures() {
		if !failure.Fatal {
			s.logger.Warn().Str("check", failure.Name).Msg(failure.Detail)
		}
	}
	if !report.OK() {
		return false, preflightError(report)
	}

	running, err := s.server.IsRunning(ctx)
	if err != nil {
		return false, err
	}
	if running {
		s.logger.Info().Str("target", s.target.String()).Msg("VNC server already running")
		return false, nil
	}

	if err := s.server.Start(ctx, interactive); err != nil {
		return false, err
	}
	return true, nil
}

// runSession picks a local port clear of other viewer sessions, brings the
// tunnel up, verifies the VNC endpoint answers and blocks in the viewer until
// it exits.
func (s *SessionService) runSession(ctx context.Context) error {
	viewers, err := s.viewer.RunningViewers()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Could not count running viewers, using the port base")
		viewers = 0
	}

	forward := models.ForwardSpec{
		LocalPort:  s.localPortBase + viewers,
		RemoteHost: "localhost",
		RemotePort: s.remotePort,
	}

	tunnel := s.newTunnel(forward)
	if err := tunnel.Start(); err != nil {
		return fmt.Errorf("failed to start tunnel: %w", err)
	}
	defer tunnel.Stop()

	version, err := tunnel.WaitReady(ctx)
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("target", s.target.String()).
		Int("local_port", tunnel.LocalPort()).
		Str("rfb_version", version.String()).
		Msg("Session ready")

	return s.viewer.Launch(ctx, tunnel.LocalPort())
}

// preflightError flattens the fatal preflight failures into one error.
func preflightError(report models.PreflightReport) error {
	var parts []string
	for _, check := range report.Failures() {
		if check.Fatal {
			parts = append(parts, fmt.Sprintf("%s: %s", check.Name, check.Detail))
		}
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(parts, "; "))
}
