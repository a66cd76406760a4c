package utils

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"

	"startvnc/internal/constants"
	"startvnc/pkg/file"
)

// envPrefix is the prefix of the environment variables overlaying the file
// configuration, e.g. STARTVNC_SSH_USER.
const envPrefix = "startvnc"

// Config represents the structure of the configuration file.
type Config struct {
	Log struct {
		Level string `yaml:"level"` // zerolog level name (trace..error)
	} `yaml:"log"`

	SSH struct {
		User                string `yaml:"user"`                   // SSH account on the remote machine
		Port                int    `yaml:"port"`                   // SSH port on the remote machine
		PrivateKeyPath      string `yaml:"private_key_path" split_words:"true"`        // Path to the local private key
		ServerPublicKeyPath string `yaml:"server_public_key_path" split_words:"true"`  // Optional pinned host key, OpenSSH format
		ConnectionTimeout   int    `yaml:"connection_timeout" split_words:"true"`      // SSH dial timeout (in seconds)
		CommandTimeout      int    `yaml:"command_timeout" split_words:"true"`         // Per remote command timeout (in seconds)
	} `yaml:"ssh"`

	Aliases struct {
		Prefixes map[string]string `yaml:"prefixes"` // Alias letter -> first three IPv4 octets
	} `yaml:"aliases"`

	Server struct {
		Binary        string `yaml:"binary"`                                // VNC server program on the remote machine
		Display       int    `yaml:"display"`                               // X display the server attaches to
		RFBAuthPath   string `yaml:"rfbauth_path" split_words:"true"`       // Remote VNC password file (remote-shell form)
		ConfigPath    string `yaml:"config_path" split_words:"true"`        // Remote VNC configuration file (remote-shell form)
		LocalhostOnly bool   `yaml:"localhost_only" split_words:"true"`     // Pass -localhost so only tunneled connections reach the server
		MinVersion    string `yaml:"min_version" split_words:"true"`        // Oldest accepted server version
		StopOnExit    bool   `yaml:"stop_on_exit" split_words:"true"`       // Stop the server after the session iff this run started it
		SettleDelay   int    `yaml:"settle_delay" split_words:"true"`       // Pause after starting the server (in seconds)
	} `yaml:"server"`

	Tunnel struct {
		LocalPortBase   int `yaml:"local_port_base" split_words:"true"`   // First local port tried for the tunnel
		MaxPortAttempts int `yaml:"max_port_attempts" split_words:"true"` // Bound on the search for a free local port
		ProbeTimeout    int `yaml:"probe_timeout" split_words:"true"`     // Wait for the forwarded port to become ready (in seconds)
	} `yaml:"tunnel"`

	Viewer struct {
		Binary       string   `yaml:"binary"`                              // Viewer program on the local machine
		PasswdPath   string   `yaml:"passwd_path" split_words:"true"`      // Local VNC password file handed to the viewer
		ExtraArgs    []string `yaml:"extra_args" split_words:"true"`       // Additional viewer arguments
		ProcessNames []string `yaml:"process_names" split_words:"true"`    // Names counted as running viewers
	} `yaml:"viewer"`
}

// DefaultConfig returns the built-in configuration matching the lab setup the
// tool was written for.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Log.Level = "info"

	cfg.SSH.User = constants.DefaultSSHUser
	cfg.SSH.Port = constants.DefaultSSHPort
	cfg.SSH.PrivateKeyPath = constants.PrivateKeyPath
	cfg.SSH.ConnectionTimeout = int(constants.ConnectionTimeout.Seconds())
	cfg.SSH.CommandTimeout = int(constants.CommandTimeout.Seconds())

	cfg.Aliases.Prefixes = map[string]string{
		"l": "192.168.200",
		"s": "192.168.101",
	}

	cfg.Server.Binary = constants.DefaultServerBinary
	cfg.Server.Display = constants.DefaultDisplay
	cfg.Server.RFBAuthPath = constants.RFBAuthPath
	cfg.Server.ConfigPath = constants.ServerConfigPath
	cfg.Server.LocalhostOnly = true
	cfg.Server.MinVersion = constants.MinServerVersion
	cfg.Server.StopOnExit = true
	cfg.Server.SettleDelay = int(constants.SettleDelay.Seconds())

	cfg.Tunnel.LocalPortBase = constants.LocalPortBase
	cfg.Tunnel.MaxPortAttempts = constants.MaxPortAttempts
	cfg.Tunnel.ProbeTimeout = int(constants.ProbeTimeout.Seconds())

	cfg.Viewer.Binary = constants.DefaultViewerBinary
	cfg.Viewer.PasswdPath = constants.ViewerPasswdPath
	cfg.Viewer.ExtraArgs = []string{"-DotWhenNoCursor=1"}
	cfg.Viewer.ProcessNames = []string{"vncviewer", "xtigervncviewer"}

	return cfg
}

// LoadConfig builds the effective configuration: built-in defaults, overridden
// by the YAML file when it exists, overridden by STARTVNC_* environment
// variables.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	config := DefaultConfig()

	exists, err := fileClient.IsFileExists(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to check configuration file: %w", err)
	}
	if exists {
		if err := fileClient.ReadYamlFile(filename, config); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %s: %w", filename, err)
		}
	}

	if err := envconfig.Process(envPrefix, config); err != nil {
		return nil, fmt.Errorf("failed to process environment overrides: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// validate rejects configurations no operation could run with.
func (c *Config) validate() error {
	if c.SSH.User == "" {
		return fmt.Errorf("ssh.user must not be empty")
	}
	if c.SSH.Port < 1 || c.SSH.Port > 65535 {
		return fmt.Errorf("ssh.port %d out of range", c.SSH.Port)
	}
	if c.Server.Display < 0 {
		return fmt.Errorf("server.display %d must not be negative", c.Server.Display)
	}
	if c.Tunnel.LocalPortBase < 1 || c.Tunnel.LocalPortBase > 65535 {
		return fmt.Errorf("tunnel.local_port_base %d out of range", c.Tunnel.LocalPortBase)
	}
	if c.Tunnel.MaxPortAttempts < 1 {
		return fmt.Errorf("tunnel.max_port_attempts %d must be at least 1", c.Tunnel.MaxPortAttempts)
	}
	if c.Server.Binary == "" || c.Viewer.Binary == "" {
		return fmt.Errorf("server.binary and viewer.binary must not be empty")
	}
	return nil
}
