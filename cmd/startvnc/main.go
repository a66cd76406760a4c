package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"startvnc/internal/constants"
	"startvnc/internal/hostalias"
	"startvnc/internal/models"
	"startvnc/internal/services"
	"startvnc/internal/utils"
	"startvnc/pkg/file"
	"startvnc/pkg/sshclient"
)

const usageHeader = `Usage: startvnc [flags] <target> [operation]

Connect to a remote machine's display over VNC, carried through an SSH tunnel.

Targets:
  l184              alias for 192.168.200.184 (prefix letters are configurable)
  s57               alias for 192.168.101.57
  192.168.200.193   literal IP address
  lab-pc-3          hostname

Operations:
  (none)    make sure the server runs, tunnel to it and launch the viewer
  server    start the remote VNC server
  connect   tunnel and launch the viewer against an already running server
  stop      stop the remote VNC server
  status    report remote server and local viewer state

Flags:
`

func main() {
	var (
		configPath  = flag.String("config", constants.ConfigPath, "configuration file")
		sshUser     = flag.String("user", "", "SSH user on the remote machine")
		display     = flag.Int("display", 0, "X display the remote server attaches to")
		localPort   = flag.Int("local-port", 0, "first local port tried for the tunnel")
		remotePort  = flag.Int("remote-port", 0, "remote VNC port, default 5900+display")
		logLevel    = flag.String("log-level", "", "log level (trace, debug, info, warn, error)")
		interactive = flag.Bool("t", false, "attach the remote server start to this terminal")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usageHeader)
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	args := flag.Args()
	if len(args) < 1 || len(args) > 2 {
		flag.Usage()
		os.Exit(2)
	}
	operation := ""
	if len(args) == 2 {
		operation = args[1]
	}
	switch operation {
	case "", "server", "connect", "stop", "status":
	default:
		fmt.Fprintf(os.Stderr, "unknown operation %q\n\n", operation)
		flag.Usage()
		os.Exit(2)
	}

	fileClient := file.NewFileService()
	config, err := loadConfig(*configPath, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Flags override both the file and the environment, but only when given.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "user":
			config.SSH.User = *sshUser
		case "display":
			config.Server.Display = *display
		case "local-port":
			config.Tunnel.LocalPortBase = *localPort
		case "log-level":
			config.Log.Level = *logLevel
		}
	})

	level, err := zerolog.ParseLevel(config.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		logger.Warn().Str("level", config.Log.Level).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	resolver := hostalias.NewResolver(config.Aliases.Prefixes, config.SSH.User, config.SSH.Port)
	target, err := resolver.Resolve(args[0])
	if err != nil {
		logger.Error().Err(err).Msg("Invalid target")
		os.Exit(2)
	}

	vncPort := constants.VNCBasePort + config.Server.Display
	if *remotePort != 0 {
		vncPort = *remotePort
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sshClient := sshclient.NewSSHClient(fileClient)
	sshConfig, err := sshClientConfig(config, target)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid SSH configuration")
	}
	if err := sshClient.Connect(ctx, sshConfig); err != nil {
		logger.Fatal().Err(err).Str("target", target.String()).Msg("SSH connection failed")
	}
	defer sshClient.Close()
	logger.Info().Str("target", target.String()).Msg("SSH connection established")

	workerPool := utils.NewWorkerPool(constants.PreflightWorkers)
	defer workerPool.Shutdown()

	serverService := services.NewServerService(
		config.Server.Binary,
		config.Server.Display,
		config.Server.RFBAuthPath,
		config.Server.ConfigPath,
		config.Server.LocalhostOnly,
		config.Server.MinVersion,
		time.Duration(config.Server.SettleDelay)*time.Second,
		time.Duration(config.SSH.CommandTimeout)*time.Second,
		sshClient,
		workerPool,
		logger,
	)

	viewerService := services.NewViewerService(
		config.Viewer.Binary,
		config.Viewer.PasswdPath,
		config.Viewer.ExtraArgs,
		config.Viewer.ProcessNames,
		logger,
	)

	newTunnel := func(forward models.ForwardSpec) services.Tunnel {
		return services.NewTunnelService(
			forward,
			config.Tunnel.MaxPortAttempts,
			time.Duration(config.Tunnel.ProbeTimeout)*time.Second,
			sshClient,
			logger,
		)
	}

	sessionService := services.NewSessionService(
		target,
		config.Tunnel.LocalPortBase,
		vncPort,
		config.Server.StopOnExit,
		serverService,
		viewerService,
		newTunnel,
		logger,
	)

	if err := dispatch(ctx, operation, *interactive, sessionService); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("Interrupted, session closed")
			return
		}
		logger.Fatal().Err(err).Msg("Operation failed")
	}
}

// dispatch runs the requested operation against the session service.
func dispatch(ctx context.Context, operation string, interactive bool,
	session *services.SessionService) error {

	switch operation {
	case "":
		return session.Run(ctx, interactive)
	case "server":
		return session.StartServer(ctx, interactive)
	case "connect":
		return session.Connect(ctx)
	case "stop":
		return session.StopServer(ctx)
	case "status":
		status, err := session.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("target:         %s\n", status.Target)
		fmt.Printf("server running: %t\n", status.ServerRunning)
		fmt.Printf("local viewers:  %d\n", status.LocalViewers)
		return nil
	default:
		return fmt.Errorf("unknown operation %q", operation)
	}
}

// loadConfig reads the effective configuration from the given path, which may
// start with ~.
func loadConfig(path string, fileClient file.FileOperations) (*utils.Config, error) {
	expanded, err := utils.ExpandHome(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configuration path: %w", err)
	}
	return utils.LoadConfig(expanded, fileClient)
}

// sshClientConfig maps the loaded configuration and the resolved target onto
// the SSH connection parameters, expanding local key paths.
func sshClientConfig(config *utils.Config, target models.Endpoint) (sshclient.Config, error) {
	keyPath, err := utils.ExpandHome(config.SSH.PrivateKeyPath)
	if err != nil {
		return sshclient.Config{}, fmt.Errorf("failed to resolve the private key path: %w", err)
	}
	serverKeyPath := ""
	if config.SSH.ServerPublicKeyPath != "" {
		serverKeyPath, err = utils.ExpandHome(config.SSH.ServerPublicKeyPath)
		if err != nil {
			return sshclient.Config{}, fmt.Errorf("failed to resolve the server key path: %w", err)
		}
	}

	return sshclient.Config{
		User:                target.User,
		Host:                target.Host,
		Port:                target.Port,
		PrivateKeyPath:      keyPath,
		ServerPublicKeyPath: serverKeyPath,
		ConnectTimeout:      time.Duration(config.SSH.ConnectionTimeout) * time.Second,
	}, nil
}
