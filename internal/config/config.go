// Package config assembles the agent's immutable startup configuration
// from the environment, an optional .env file, command-line flags and a
// YAML tuning file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/abdel0909/mc-bot/internal/world"
)

var ErrMissingHost = errors.New("MC_HOST is required")

type Config struct {
	Host      string
	Port      int
	Path      string
	Username  string
	Auth      world.AuthMode
	AuthToken string
	Version   string

	TuningPath string
	DataDir    string
	DisableDB  bool

	Tuning Tuning
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func getEnv(getenv func(string) string, key, fallback string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return fallback
}

// FromEnv reads the MC_* variables through getenv (os.Getenv in main).
func FromEnv(getenv func(string) string) (Config, error) {
	c := Config{
		Host:       getEnv(getenv, "MC_HOST", ""),
		Path:       getEnv(getenv, "MC_WS_PATH", "/v1/ws"),
		Username:   getEnv(getenv, "MC_USER", "BotDemo"),
		Auth:       ParseAuth(getenv("MC_AUTH")),
		AuthToken:  getEnv(getenv, "MC_AUTH_TOKEN", ""),
		Version:    getEnv(getenv, "MC_VERSION", ""),
		TuningPath: getEnv(getenv, "MC_TUNING", ""),
		DataDir:    getEnv(getenv, "MC_DATA_DIR", "./data"),
	}
	port, err := strconv.Atoi(getEnv(getenv, "MC_PORT", "25565"))
	if err != nil {
		return c, fmt.Errorf("MC_PORT: %w", err)
	}
	c.Port = port
	if v := getEnv(getenv, "MC_DISABLE_DB", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c, fmt.Errorf("MC_DISABLE_DB: %w", err)
		}
		c.DisableDB = b
	}
	return c, nil
}

// ParseAuth maps anything but "microsoft" to offline.
func ParseAuth(s string) world.AuthMode {
	if strings.EqualFold(strings.TrimSpace(s), string(world.AuthMicrosoft)) {
		return world.AuthMicrosoft
	}
	return world.AuthOffline
}

// Flags registers overrides on fs, defaulting to the values already in c.
// Call Apply after fs.Parse.
type Flags struct {
	c    *Config
	auth string
}

func BindFlags(fs *pflag.FlagSet, c *Config) *Flags {
	f := &Flags{c: c, auth: string(c.Auth)}
	fs.StringVar(&c.Host, "host", c.Host, "server host (MC_HOST)")
	fs.IntVar(&c.Port, "port", c.Port, "server port (MC_PORT)")
	fs.StringVar(&c.Username, "user", c.Username, "agent username (MC_USER)")
	fs.StringVar(&f.auth, "auth", f.auth, "offline or microsoft (MC_AUTH)")
	fs.StringVar(&c.Version, "version", c.Version, "pin the world version; empty negotiates (MC_VERSION)")
	fs.StringVar(&c.TuningPath, "tuning", c.TuningPath, "YAML tuning file (MC_TUNING)")
	fs.StringVar(&c.DataDir, "data", c.DataDir, "data directory (MC_DATA_DIR)")
	fs.BoolVar(&c.DisableDB, "disable-db", c.DisableDB, "disable the SQLite index (MC_DISABLE_DB)")
	return f
}

func (f *Flags) Apply() { f.c.Auth = ParseAuth(f.auth) }

// Finish validates c and loads its tuning file.
func (c *Config) Finish() error {
	c.Host = strings.TrimSpace(c.Host)
	if c.Host == "" {
		return ErrMissingHost
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if strings.TrimSpace(c.Username) == "" {
		return errors.New("username is empty")
	}
	t, err := LoadTuning(c.TuningPath)
	if err != nil {
		return fmt.Errorf("tuning: %w", err)
	}
	c.Tuning = t
	return nil
}

func (c Config) Options() world.Options {
	return world.Options{
		Host:      c.Host,
		Port:      c.Port,
		Path:      c.Path,
		Username:  c.Username,
		Auth:      c.Auth,
		AuthToken: c.AuthToken,
		Version:   c.Version,
	}
}

func (c Config) StateFile() string   { return filepath.Join(c.DataDir, "sessions.json") }
func (c Config) JournalDir() string  { return filepath.Join(c.DataDir, "journal") }
func (c Config) IndexDBPath() string { return filepath.Join(c.DataDir, "index", "agent.sqlite") }
