package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind          string
	dataDir       string
	nukeCooldown  time.Duration
	port          int
	prefix        string
	profile       bool
	redisAddress  string
	redisPassword string
	storage       string
	tlsCert       string
	tlsKey        string
	triviaURL     string
	verbose       bool
	version       bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	switch c.storage {
	case "file", "memory", "redis":
	default:
		return fmt.Errorf("invalid storage backend (must be one of file, memory, redis): %q", c.storage)
	}
	if c.storage == "redis" && c.redisAddress == "" {
		return errors.New("--redis-address is required with --storage redis")
	}
	if c.nukeCooldown < 0 {
		return fmt.Errorf("invalid nuke cooldown: %s", c.nukeCooldown)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("WILDTRIVIA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "wildtrivia",
		Short:         "A single-room multiplayer trivia party game, driven entirely by polling clients.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: WILDTRIVIA_BIND)")
	fs.StringVar(&cfg.dataDir, "data-dir", "data", "directory for the file storage backend (env: WILDTRIVIA_DATA_DIR)")
	fs.DurationVar(&cfg.nukeCooldown, "nuke-cooldown", 0, "time after a room nuke before a new room may be created (env: WILDTRIVIA_NUKE_COOLDOWN)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: WILDTRIVIA_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: WILDTRIVIA_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: WILDTRIVIA_PROFILE)")
	fs.StringVar(&cfg.redisAddress, "redis-address", "", "host:port of the redis storage backend (env: WILDTRIVIA_REDIS_ADDRESS)")
	fs.StringVar(&cfg.redisPassword, "redis-password", "", "password for the redis storage backend (env: WILDTRIVIA_REDIS_PASSWORD)")
	fs.StringVar(&cfg.storage, "storage", "file", "room storage backend, one of file, memory, redis (env: WILDTRIVIA_STORAGE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: WILDTRIVIA_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: WILDTRIVIA_TLS_KEY)")
	fs.StringVar(&cfg.triviaURL, "trivia-url", "https://opentdb.com", "base URL of the question bank API (env: WILDTRIVIA_TRIVIA_URL)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: WILDTRIVIA_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: WILDTRIVIA_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("wildtrivia v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
