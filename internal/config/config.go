package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // timezone names resolve on hosts without zoneinfo

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cloudweave/internal/dirs"
	"cloudweave/internal/logging"
	"cloudweave/internal/request"
	"cloudweave/internal/stream"
	"cloudweave/internal/util"
)

// Defaults for keys that have one.
const (
	DefaultBackendURL = "http://localhost:8000"
	DefaultTimezone   = "UTC"
)

// persistentKeys maps viper keys to root persistent flag names.
var persistentKeys = map[string]string{
	"backend_url":   "backend-url",
	"stream_path":   "stream-path",
	"timezone":      "timezone",
	"player":        "player",
	"no_player":     "no-player",
	"adaptive":      "adaptive",
	"max_bandwidth": "max-bandwidth",
	"metrics_addr":  "metrics-addr",
	"log_level":     "log-level",
	"log_format":    "log-format",
	"verbose":       "verbose",
	"no_ui":         "no-ui",
}

// Init wires Viper with config paths, env, defaults, and flag bindings.
// It is non-fatal: a missing config file is not an error, a broken one is.
func Init(root *cobra.Command) error {
	_ = dirs.EnsureAll()

	if cfgDir, err := dirs.ConfigDir(); err == nil {
		viper.AddConfigPath(cfgDir)
	}
	viper.SetConfigName("config") // supports config.{yaml|yml|json|toml}

	// Environment variables: CLOUDWEAVE_*
	viper.SetEnvPrefix("CLOUDWEAVE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	SetDefaults(viper.GetViper())

	for key, flag := range persistentKeys {
		if f := root.PersistentFlags().Lookup(flag); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// SetDefaults registers every key's default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend_url", DefaultBackendURL)
	v.SetDefault("stream_path", stream.DefaultPath)
	v.SetDefault("timezone", DefaultTimezone)
	v.SetDefault("zoom", request.DefaultZoom)
	v.SetDefault("workers", request.DefaultWorkers)
	v.SetDefault("adaptive", true)
	v.SetDefault("max_bandwidth", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Settings is the resolved, validated configuration.
type Settings struct {
	BackendURL string
	StreamPath string
	Location   *time.Location

	// Zoom and Workers stay textual; the request builder validates them
	// together with the rest of the form.
	Zoom    string
	Workers string

	Player       string
	NoPlayer     bool
	Adaptive     bool
	MaxBandwidth uint32

	MetricsAddr string
	LogLevel    string
	LogFormat   string
	NoUI        bool
}

// Load resolves Settings from v (the global viper when nil).
func Load(v *viper.Viper) (Settings, error) {
	if v == nil {
		v = viper.GetViper()
	}
	base, err := util.NormalizeBaseURL(v.GetString("backend_url"))
	if err != nil {
		return Settings{}, err
	}
	tz := v.GetString("timezone")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Settings{}, fmt.Errorf("timezone %q: %w", tz, err)
	}
	level := v.GetString("log_level")
	if v.GetBool("verbose") {
		level = "debug"
	}
	if _, err := logging.ParseLevel(level); err != nil {
		return Settings{}, err
	}
	path := v.GetString("stream_path")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	bw := v.GetInt64("max_bandwidth")
	if bw < 0 || bw > int64(^uint32(0)) {
		return Settings{}, fmt.Errorf("max_bandwidth %d out of range", bw)
	}
	return Settings{
		BackendURL:   base,
		StreamPath:   path,
		Location:     loc,
		Zoom:         v.GetString("zoom"),
		Workers:      v.GetString("workers"),
		Player:       v.GetString("player"),
		NoPlayer:     v.GetBool("no_player"),
		Adaptive:     v.GetBool("adaptive"),
		MaxBandwidth: uint32(bw),
		MetricsAddr:  v.GetString("metrics_addr"),
		LogLevel:     level,
		LogFormat:    v.GetString("log_format"),
		NoUI:         v.GetBool("no_ui"),
	}, nil
}
