package config

import (
	"log"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":8000"`
	DataPath     string `envconfig:"DATA_PATH" default:"/var/lib/devdash"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:""`
	LogPath      string `envconfig:"LOG_PATH" default:""`
	StaticDir    string `envconfig:"STATIC_DIR" default:""`

	// AuthToken, when set, is required as a bearer token on every API call.
	AuthToken string `envconfig:"AUTH_TOKEN" default:""`

	// Dedicated tmux server for multiplexed terminals
	TmuxSocket string `envconfig:"TMUX_SOCKET" default:""`
	TmuxConfig string `envconfig:"TMUX_CONFIG" default:"/dev/null"`

	// Terminal session settings
	TerminalDefaultShell     string        `envconfig:"TERMINAL_DEFAULT_SHELL" default:""`
	TerminalPreviewLines     int           `envconfig:"TERMINAL_PREVIEW_LINES" default:"200"`
	TerminalKillGrace        time.Duration `envconfig:"TERMINAL_KILL_GRACE" default:"2s"`
	TerminalCrashedRetention time.Duration `envconfig:"TERMINAL_CRASHED_RETENTION" default:"30m"`
	TerminalRecordingDir     string        `envconfig:"TERMINAL_RECORDING_DIR" default:""`
	ProfilesPath             string        `envconfig:"PROFILES_PATH" default:""`

	AuditRetentionDays  int    `envconfig:"AUDIT_RETENTION_DAYS" default:"30"`
	MaintenanceSchedule string `envconfig:"MAINTENANCE_SCHEDULE" default:"@every 5m"`
}

var Cfg Settings

func Load() {
	if err := Process(&Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}

// Process reads DEVDASH_* variables into s and fills the paths that
// default to locations under DataPath.
func Process(s *Settings) error {
	if err := envconfig.Process("DEVDASH", s); err != nil {
		return err
	}
	if s.DatabasePath == "" {
		s.DatabasePath = filepath.Join(s.DataPath, "devdash.db")
	}
	if s.LogPath == "" {
		s.LogPath = filepath.Join(s.DataPath, "devdash.log")
	}
	if s.TmuxSocket == "" {
		s.TmuxSocket = filepath.Join(s.DataPath, "tmux.sock")
	}
	return nil
}
