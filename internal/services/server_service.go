package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"

	"startvnc/internal/constants"
	"startvnc/internal/models"
	"startvnc/internal/utils"
	"startvnc/pkg/sshclient"
)

// versionRegex extracts the first dotted version triple from the server's
// -version output.
var versionRegex = regexp.MustCompile(`(\d+\.\d+\.\d+)`)

// ServerService manages the VNC server process on the remote host over an
// established SSH connection.
type ServerService struct {
	// Configuration fields
	binary         string
	display        int
	rfbAuthPath    string
	configPath     string
	localhostOnly  bool
	minVersion     string
	settleDelay    time.Duration
	commandTimeout time.Duration

	// Dependencies
	sshClient  sshclient.Client
	workerPool *utils.WorkerPool
	logger     zerolog.Logger
}

// NewServerService initializes a new ServerService with the given parameters.
func NewServerService(binary string, display int, rfbAuthPath, configPath string,
	localhostOnly bool, minVersion string, settleDelay, commandTimeout time.Duration,
	sshClient sshclient.Client, workerPool *utils.WorkerPool, logger zerolog.Logger) *ServerService {

	if binary == "" {
		binary = constants.DefaultServerBinary
	}
	if rfbAuthPath == "" {
		rfbAuthPath = constants.RFBAuthPath
	}
	if minVersion == "" {
		minVersion = constants.MinServerVersion
	}
	if settleDelay == 0 {
		settleDelay = constants.SettleDelay
	}
	if commandTimeout == 0 {
		commandTimeout = constants.CommandTimeout
	}

	return &ServerService{
		binary:         binary,
		display:        display,
		rfbAuthPath:    rfbAuthPath,
		configPath:     configPath,
		localhostOnly:  localhostOnly,
		minVersion:     minVersion,
		settleDelay:    settleDelay,
		commandTimeout: commandTimeout,
		sshClient:      sshClient,
		workerPool:     workerPool,
		logger:         logger,
	}
}

// IsRunning reports whether the VNC server process exists on the remote host.
func (sv *ServerService) IsRunning(ctx context.Context) (bool, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, sv.commandTimeout)
	defer cancel()

	cmd := fmt.Sprintf("pgrep -f %s", sv.binary)
	sv.logger.Debug().Str("command", cmd).Msg("Checking VNC server state")

	_, err := sv.sshClient.Output(cmdCtx, cmd)
	if err != nil {
		// pgrep exits 1 when no process matches.
		if status, ok := sshclient.ExitStatus(err); ok && status == 1 {
			return false, nil
		}
		return false, fmt.Errorf("failed to check VNC server state: %w", err)
	}
	return true, nil
}

// Start launches the VNC server on the remote display. In interactive mode
// the command runs in a PTY wired to the local terminal so the server can
// prompt the operator; otherwise it is detached on the remote side. Start
// waits for the settle delay so the server can bind its socket before the
// caller probes it.
func (sv *ServerService) Start(ctx context.Context, interactive bool) error {
	args := fmt.Sprintf("-rfbauth %s", sv.rfbAuthPath)
	if sv.localhostOnly {
		args += " -localhost"
	}

	if interactive {
		cmd := fmt.Sprintf("DISPLAY=:%d %s %s", sv.display, sv.binary, args)
		sv.logger.Info().Str("command", cmd).Msg("Starting VNC server interactively")
		if err := sv.sshClient.Shell(cmd); err != nil {
			return fmt.Errorf("failed to start VNC server: %w", err)
		}
	} else {
		cmd := fmt.Sprintf("DISPLAY=:%d nohup %s %s >/dev/null 2>&1 &", sv.display, sv.binary, args)
		sv.logger.Info().Str("command", cmd).Msg("Starting VNC server")

		cmdCtx, cancel := context.WithTimeout(ctx, sv.commandTimeout)
		defer cancel()
		if _, err := sv.sshClient.Output(cmdCtx, cmd); err != nil {
			return fmt.Errorf("failed to start VNC server: %w", err)
		}
	}

	select {
	case <-time.After(sv.settleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	sv.logger.Info().Int("display", sv.display).Msg("VNC server started")
	return nil
}

// Stop kills the VNC server process on the remote host. A server that is not
// running is not an error.
func (sv *ServerService) Stop(ctx context.Context) error {
	cmdCtx, cancel := context.WithTimeout(ctx, sv.commandTimeout)
	defer cancel()

	cmd := fmt.Sprintf("killall %s", sv.binary)
	sv.logger.Info().Str("command", cmd).Msg("Stopping VNC server")

	if _, err := sv.sshClient.Output(cmdCtx, cmd); err != nil {
		// killall exits 1 when no process matched.
		if status, ok := sshclient.ExitStatus(err); ok && status == 1 {
			sv.logger.Debug().Msg("VNC server was not running")
			return nil
		}
		return fmt.Errorf("failed to stop VNC server: %w", err)
	}

	sv.logger.Info().Msg("VNC server stopped")
	return nil
}

// Version queries the remote server binary for its version. Some builds print
// the version to stderr or exit non-zero, so both streams are searched.
func (sv *ServerService) Version(ctx context.Context) (*semver.Version, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, sv.commandTimeout)
	defer cancel()

	cmd := fmt.Sprintf("%s -version", sv.binary)
	output, err := sv.sshClient.Output(cmdCtx, cmd)
	text := string(output)
	if err != nil {
		var cmdErr *sshclient.CommandError
		if !errors.As(err, &cmdErr) {
			return nil, fmt.Errorf("failed to query VNC server version: %w", err)
		}
		text += "\n" + cmdErr.Stderr
	}

	raw := versionRegex.FindString(text)
	if raw == "" {
		return nil, fmt.Errorf("no version found in output of %q", cmd)
	}

	version, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse VNC server version %q: %w", raw, err)
	}
	return version, nil
}

// Preflight runs the remote environment checks concurrently and collects
// their results. Fatal failures mean a session cannot work; the rest are
// advisory.
func (sv *ServerService) Preflight(ctx context.Context) models.PreflightReport {
	checks := []struct {
		name  string
		fatal bool
		run   func(ctx context.Context) (bool, string)
	}{
		{"vnc password file", true, sv.checkRFBAuth},
		{"server binary", true, sv.checkBinary},
		{"localhost-only config", false, sv.checkLocalhostConfig},
		{"server version", false, sv.checkVersion},
	}

	results := make([]models.PreflightCheck, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		sv.workerPool.Submit(func() {
			defer wg.Done()
			passed, detail := check.run(ctx)
			results[i] = models.PreflightCheck{
				Name:   check.name,
				Fatal:  check.fatal,
				Passed: passed,
				Detail: detail,
			}
		})
	}
	wg.Wait()

	for _, result := range results {
		event := sv.logger.Debug()
		if !result.Passed {
			event = sv.logger.Warn()
		}
		event.Str("check", result.Name).Bool("passed", result.Passed).Str("detail", result.Detail).Msg("Preflight check finished")
	}

	return models.PreflightReport{Checks: results}
}

func (sv *ServerService) checkRFBAuth(ctx context.Context) (bool, string) {
	cmdCtx, cancel := context.WithTimeout(ctx, sv.commandTimeout)
	defer cancel()

	cmd := fmt.Sprintf("test -r %s", sv.rfbAuthPath)
	if _, err := sv.sshClient.Output(cmdCtx, cmd); err != nil {
		if _, ok := sshclient.ExitStatus(err); ok {
			return false, fmt.Sprintf("%s is missing or unreadable, run vncpasswd on the host first", sv.rfbAuthPath)
		}
		return false, err.Error()
	}
	return true, sv.rfbAuthPath
}

func (sv *ServerService) checkBinary(ctx context.Context) (bool, string) {
	cmdCtx, cancel := context.WithTimeout(ctx, sv.commandTimeout)
	defer cancel()

	cmd := fmt.Sprintf("command -v %s", sv.binary)
	output, err := sv.sshClient.Output(cmdCtx, cmd)
	if err != nil {
		if _, ok := sshclient.ExitStatus(err); ok {
			return false, fmt.Sprintf("%s not found on the remote host", sv.binary)
		}
		return false, err.Error()
	}
	return true, strings.TrimSpace(string(output))
}

func (sv *ServerService) checkLocalhostConfig(ctx context.Context) (bool, string) {
	if sv.configPath == "" {
		return true, "no server config path configured"
	}

	cmdCtx, cancel := context.WithTimeout(ctx, sv.commandTimeout)
	defer cancel()

	cmd := fmt.Sprintf("grep -qi localhost %s", sv.configPath)
	if _, err := sv.sshClient.Output(cmdCtx, cmd); err != nil {
		if _, ok := sshclient.ExitStatus(err); ok {
			return false, fmt.Sprintf("%s does not restrict the server to localhost", sv.configPath)
		}
		return false, err.Error()
	}
	return true, "localhost restriction configured"
}

func (sv *ServerService) checkVersion(ctx context.Context) (bool, string) {
	version, err := sv.Version(ctx)
	if err != nil {
		return false, err.Error()
	}

	constraint, err := semver.NewConstraint(">= " + sv.minVersion)
	if err != nil {
		return false, fmt.Sprintf("invalid minimum version %q: %v", sv.minVersion, err)
	}
	if !constraint.Check(version) {
		return false, fmt.Sprintf("server version %s is older than %s", version, sv.minVersion)
	}
	return true, version.String()
}
