package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for notesync.
type Config struct {
	// GitHub repository coordinates. Owner, Repo, and Token may also
	// come from a stored sync profile; environment values win.
	Owner string `env:"NOTESYNC_GITHUB_OWNER"`
	Repo  string `env:"NOTESYNC_GITHUB_REPO"`
	Token string `env:"NOTESYNC_GITHUB_TOKEN"`

	// APIURL is the Git Data API base. Overridable for GitHub
	// Enterprise and for tests.
	APIURL string `env:"NOTESYNC_API_URL" envDefault:"https://api.github.com"`

	// Branch is resolved first; FallbackBranch is tried when Branch
	// does not exist on the remote.
	Branch         string `env:"NOTESYNC_BRANCH" envDefault:"main"`
	FallbackBranch string `env:"NOTESYNC_FALLBACK_BRANCH" envDefault:"master"`

	// NotesDir is the local document tree under sync.
	NotesDir string `env:"NOTESYNC_NOTES_DIR"`

	// DeviceName labels sync commit messages. Defaults to system hostname.
	DeviceName string `env:"DEVICE_NAME"`

	// Service flags.
	EnableBridge  bool `env:"ENABLE_BRIDGE" envDefault:"true"`
	EnableWatcher bool `env:"ENABLE_WATCHER" envDefault:"true"`

	// ListenAddr is the host bridge address. Loopback by default; the
	// bridge carries no authentication of its own.
	ListenAddr string `env:"NOTESYNC_LISTEN_ADDR" envDefault:"127.0.0.1:8790"`

	// Passphrase unseals a stored sync profile's token. Only needed
	// when the profile was saved with sealing enabled.
	Passphrase string `env:"NOTESYNC_PASSPHRASE"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.DeviceName == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "notesync"
		}

		cfg.DeviceName = hostname
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// Resolve NotesDir to an absolute path at startup. The store's
	// traversal checks compare resolved paths against the root, which
	// only works reliably with absolute paths.
	absDir, err := filepath.Abs(cfg.NotesDir)
	if err != nil {
		return nil, fmt.Errorf("resolving notes dir to absolute path: %w", err)
	}

	cfg.NotesDir = absDir

	return cfg, nil
}

func (c *Config) validate() error {
	if c.NotesDir == "" {
		return fmt.Errorf("NOTESYNC_NOTES_DIR is required")
	}

	if c.Branch == "" {
		return fmt.Errorf("NOTESYNC_BRANCH must not be empty")
	}

	return nil
}

// Branches returns the ordered branch resolution list: the configured
// branch first, then the fallback when it differs.
func (c *Config) Branches() []string {
	if c.FallbackBranch == "" || c.FallbackBranch == c.Branch {
		return []string{c.Branch}
	}

	return []string{c.Branch, c.FallbackBranch}
}

// HasRepository reports whether the repository coordinates are fully
// configured from the environment alone.
func (c *Config) HasRepository() bool {
	return c.Owner != "" && c.Repo != "" && c.Token != ""
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
