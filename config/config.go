// Package config loads a rconv2.Config from flags, environment variables
// and an optional YAML file for the cmd/rconctl demo entry point. The core
// rconv2 package never imports this: it takes a plain Config struct and
// has no opinion on where the values came from (SPEC_FULL.md §10).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ashgrove/rconv2"
)

// File is the shape decoded out of flags/env/YAML before being mapped into
// rconv2.Config. Durations are accepted as human strings ("500ms", "30s")
// via mapstructure's StringToTimeDurationHookFunc.
type File struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Password        string        `mapstructure:"password"`
	DialTimeout     time.Duration `mapstructure:"dialTimeout"`
	RequestTimeout  time.Duration `mapstructure:"requestTimeout"`
	CorrelationMode string        `mapstructure:"correlationMode"`
	PacingInterval  time.Duration `mapstructure:"pacingInterval"`
	PoolSize        int           `mapstructure:"poolSize"`
	BackoffInitial  time.Duration `mapstructure:"backoffInitial"`
	BackoffMax      time.Duration `mapstructure:"backoffMax"`
	BackoffFactor   float64       `mapstructure:"backoffFactor"`
}

// Loader wraps a *viper.Viper bound to a cobra command's flags, mirroring
// the bind-then-decode flow used throughout nabbar-golib's config
// components.
type Loader struct {
	v *viper.Viper
}

// RegisterFlags declares the connection flags on cmd. It must run at
// package init time (before cobra parses os.Args), which is why it is
// split from NewLoader: a subcommand calls this from its own init(), then
// builds a Loader from the same *cobra.Command inside RunE once flags have
// already been parsed.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("host", "127.0.0.1", "RCON server host")
	flags.Int("port", 0, "RCON server port")
	flags.String("password", "", "RCON password (prefer --password-from-keyring for interactive use)")
	flags.Duration("dial-timeout", 10*time.Second, "timeout for connecting and handshaking")
	flags.Duration("request-timeout", 0, "default per-command timeout (0 disables)")
	flags.String("correlation-mode", "ordered-queue", "response correlation mode: ordered-queue or id-indexed")
	flags.Duration("pacing-interval", 0, "minimum delay between consecutive writes (0 disables)")
	flags.Int("pool-size", 1, "number of supervised connections (pool-exec only)")
	flags.Duration("backoff-initial", 500*time.Millisecond, "initial reconnect backoff")
	flags.Duration("backoff-max", 30*time.Second, "reconnect backoff cap")
	flags.Float64("backoff-factor", 1.618, "reconnect backoff multiplier")
}

var flagNames = []string{
	"host", "port", "password", "dial-timeout", "request-timeout",
	"correlation-mode", "pacing-interval", "pool-size",
	"backoff-initial", "backoff-max", "backoff-factor",
}

// NewLoader binds a Loader to cmd's already-parsed flags. Call this from
// RunE, after RegisterFlags ran at init time.
func NewLoader(cmd *cobra.Command) (*Loader, error) {
	v := viper.New()
	flags := cmd.Flags()
	for _, name := range flagNames {
		// Bind under the camelCase key File's mapstructure tags use
		// ("dial-timeout" -> "dialTimeout").
		parts := strings.Split(name, "-")
		for i := 1; i < len(parts); i++ {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
		if err := v.BindPFlag(strings.Join(parts, ""), flags.Lookup(name)); err != nil {
			return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
		}
	}
	v.SetEnvPrefix("RCONV2")
	v.AutomaticEnv()

	return &Loader{v: v}, nil
}

// UseConfigFile points the loader at an optional YAML file and enables
// live-reload: subsequent calls to Load after a file change pick up the new
// values. A missing file is not an error; flags/env still apply.
func (l *Loader) UseConfigFile(path string, onChange func()) error {
	if path == "" {
		return nil
	}
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	l.v.WatchConfig()
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if onChange != nil {
			onChange()
		}
	})
	return nil
}

// Load decodes the currently bound flags/env/file into a rconv2.Config.
func (l *Loader) Load(log *logrus.Entry, metrics *rconv2.Metrics) (rconv2.Config, error) {
	var f File
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	)
	if err := l.v.Unmarshal(&f, viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = decodeHook
	})); err != nil {
		return rconv2.Config{}, fmt.Errorf("config: decode: %w", err)
	}

	mode := rconv2.OrderedQueue
	if f.CorrelationMode == "id-indexed" {
		mode = rconv2.IDIndexed
	}

	return rconv2.Config{
		Host:            f.Host,
		Port:            f.Port,
		Password:        f.Password,
		DialTimeout:     f.DialTimeout,
		RequestTimeout:  f.RequestTimeout,
		CorrelationMode: mode,
		PacingInterval:  f.PacingInterval,
		PoolSize:        f.PoolSize,
		Backoff: rconv2.BackoffConfig{
			Initial: f.BackoffInitial,
			Max:     f.BackoffMax,
			Factor:  f.BackoffFactor,
		},
		Logger:  log,
		Metrics: metrics,
	}, nil
}
