package services

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/process"

	"startvnc/internal/constants"
	"startvnc/internal/utils"
)

// ViewerService launches the local VNC viewer and counts viewer processes
// already running on this machine.
type ViewerService struct {
	// Configuration fields
	binary       string
	passwdPath   string
	extraArgs    []string
	processNames map[string]struct{}

	// Dependencies
	logger zerolog.Logger

	// listProcessNames is swappable in tests.
	listProcessNames func() ([]string, error)
}

// NewViewerService initializes a new ViewerService with the given parameters.
func NewViewerService(binary, passwdPath string, extraArgs, processNames []string, logger zerolog.Logger) *ViewerService {
	if binary == "" {
		binary = constants.DefaultViewerBinary
	}
	if len(processNames) == 0 {
		processNames = []string{binary}
	}

	lowered := make([]string, 0, len(processNames))
	for _, name := range processNames {
		lowered = append(lowered, strings.ToLower(name))
	}

	return &ViewerService{
		binary:           binary,
		passwdPath:       passwdPath,
		extraArgs:        extraArgs,
		processNames:     utils.SliceToSet(lowered),
		logger:           logger,
		listProcessNames: systemProcessNames,
	}
}

// systemProcessNames returns the names of all processes on this machine.
func systemProcessNames() ([]string, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(procs))
	for _, proc := range procs {
		name, err := proc.Name()
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// RunningViewers counts local processes that look like VNC viewers.
func (vs *ViewerService) RunningViewers() (int, error) {
	names, err := vs.listProcessNames()
	if err != nil {
		return 0, fmt.Errorf("failed to list local processes: %w", err)
	}

	count := 0
	for _, name := range names {
		if _, ok := vs.processNames[strings.ToLower(name)]; ok {
			count++
		}
	}

	vs.logger.Debug().Int("count", count).Msg("Counted running viewer processes")
	return count, nil
}

// buildArgs assembles the viewer command line. The password file is passed
// along only when it exists.
func (vs *ViewerService) buildArgs(port int) ([]string, error) {
	var args []string

	if vs.passwdPath != "" {
		passwd, err := utils.ExpandHome(vs.passwdPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve viewer password path: %w", err)
		}
		if _, err := os.Stat(passwd); err == nil {
			args = append(args, "-passwd", passwd)
		} else {
			vs.logger.Debug().Str("path", passwd).Msg("Viewer password file not found, connecting without it")
		}
	}

	args = append(args, vs.extraArgs...)
	args = append(args, fmt.Sprintf("localhost:%d", port))
	return args, nil
}

// Launch starts the viewer against the given local port and blocks until it
// exits.
func (vs *ViewerService) Launch(ctx context.Context, port int) error {
	args, err := vs.buildArgs(port)
	if err != nil {
		return err
	}

	vs.logger.Info().Str("binary", vs.binary).Strs("args", args).Msg("Launching VNC viewer")

	cmd := exec.CommandContext(ctx, vs.binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("viewer exited with error: %w", err)
	}

	vs.logger.Info().Msg("VNC viewer exited")
	return nil
}
