// Package config provides functionality for managing configuration options
// for the feature host using command-line flags, environment variables and
// an optional JSON or YAML config file.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string

	// DatabaseDSN holds the PostgreSQL connection string. When empty the
	// host falls back to StoragePath.
	DatabaseDSN string

	// StoragePath is the JSON document used when no database is configured.
	// An empty value keeps everything in memory.
	StoragePath string

	// NATSURL enables the NATS transport for cross-context messages.
	NATSURL string

	// ContextID names this host among the registered execution contexts.
	ContextID string

	// GitHubAPI is the base URL of the GitHub REST API.
	GitHubAPI string

	// LockDuration is the vault inactivity timeout.
	LockDuration time.Duration

	// ContextRetention drops registered contexts not seen for this long.
	ContextRetention time.Duration

	// LogLevel is passed to the logger.
	LogLevel string

	// CertDir holds ca.crt, ca.key, server.crt and server.key.
	CertDir string

	// Config is the path to the config file.
	Config string
}

// Default returns the built-in configuration.
func Default() *Options {
	return &Options{
		Port:             "localhost:8080",
		ContextID:        "content",
		GitHubAPI:        "https://api.github.com",
		LockDuration:     5 * time.Minute,
		ContextRetention: 24 * time.Hour,
		LogLevel:         "Info",
		CertDir:          "certs",
		Config:           "config.json",
	}
}

// Parse parses the process command line and environment. It exits on
// invalid input, like flag.Parse.
func Parse() *Options {
	opts, err := ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return opts
}

// ParseArgs builds Options from args and the environment. Precedence, lowest
// first: defaults, config file, flags, environment variables.
func ParseArgs(args []string) (*Options, error) {
	options := Default()

	fs := flag.NewFlagSet("gnoixus", flag.ContinueOnError)
	fs.StringVar(&options.Port, "a", options.Port, "run on ip:port server")
	fs.StringVar(&options.DatabaseDSN, "d", options.DatabaseDSN, "db address")
	fs.StringVar(&options.StoragePath, "s", options.StoragePath, "path to storage file")
	fs.StringVar(&options.NATSURL, "nats", options.NATSURL, "NATS server URL")
	fs.StringVar(&options.ContextID, "id", options.ContextID, "context id of this host")
	fs.StringVar(&options.GitHubAPI, "github", options.GitHubAPI, "GitHub API base URL")
	fs.DurationVar(&options.LockDuration, "lock", options.LockDuration, "vault auto-lock timeout")
	fs.DurationVar(&options.ContextRetention, "retention", options.ContextRetention, "stale context retention")
	fs.StringVar(&options.LogLevel, "log", options.LogLevel, "log level")
	fs.StringVar(&options.CertDir, "certs", options.CertDir, "directory with TLS material")
	fs.StringVar(&options.Config, "config", options.Config, "path to config file")
	fs.StringVar(&options.Config, "c", options.Config, "path to config file (shorthand)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Override flags with environment variables if set
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if err := loadFile(options.Config, options, fs); err != nil {
			return nil, err
		}
	}

	if serverAddress := os.Getenv("SERVER_ADDRESS"); serverAddress != "" {
		options.Port = serverAddress
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		options.DatabaseDSN = dsn
	}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		options.NATSURL = natsURL
	}

	if options.LockDuration <= 0 {
		return nil, errors.New("lock duration must be positive")
	}
	return options, nil
}

// fileOptions mirrors Options with durations as strings ("5m"), which is
// how both encodings spell them.
type fileOptions struct {
	Port             *string `json:"port" yaml:"port"`
	DatabaseDSN      *string `json:"database_dsn" yaml:"database_dsn"`
	StoragePath      *string `json:"storage_path" yaml:"storage_path"`
	NATSURL          *string `json:"nats_url" yaml:"nats_url"`
	ContextID        *string `json:"context_id" yaml:"context_id"`
	GitHubAPI        *string `json:"github_api" yaml:"github_api"`
	LockDuration     *string `json:"lock_duration" yaml:"lock_duration"`
	ContextRetention *string `json:"context_retention" yaml:"context_retention"`
	LogLevel         *string `json:"log_level" yaml:"log_level"`
	CertDir          *string `json:"cert_dir" yaml:"cert_dir"`
}

// loadFile applies the config file to options without overriding values
// that were set explicitly on the command line. A missing file is ignored.
func loadFile(path string, options *Options, fs *flag.FlagSet) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("error while reading config file: %w", err)
	}

	var fo fileOptions
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fo)
	default:
		err = json.Unmarshal(data, &fo)
	}
	if err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	setString := func(flagName string, dst *string, src *string) {
		if src != nil && !explicit[flagName] {
			*dst = *src
		}
	}
	setString("a", &options.Port, fo.Port)
	setString("d", &options.DatabaseDSN, fo.DatabaseDSN)
	setString("s", &options.StoragePath, fo.StoragePath)
	setString("nats", &options.NATSURL, fo.NATSURL)
	setString("id", &options.ContextID, fo.ContextID)
	setString("github", &options.GitHubAPI, fo.GitHubAPI)
	setString("log", &options.LogLevel, fo.LogLevel)
	setString("certs", &options.CertDir, fo.CertDir)

	setDuration := func(flagName string, dst *time.Duration, src *string) error {
		if src == nil || explicit[flagName] {
			return nil
		}
		d, err := time.ParseDuration(*src)
		if err != nil {
			return fmt.Errorf("error while parsing config file: %s: %w", flagName, err)
		}
		*dst = d
		return nil
	}
	if err := setDuration("lock", &options.LockDuration, fo.LockDuration); err != nil {
		return err
	}
	return setDuration("retention", &options.ContextRetention, fo.ContextRetention)
}
