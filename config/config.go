package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultConfigFile is looked up in the working directory when no path is given
	DefaultConfigFile = "config.toml"
	// DefaultStateFile is the default pool state archive
	DefaultStateFile = "thermavip-state.json"
)

// Device kinds accepted in [[devices]]
const (
	KindGenerator = "generator"
	KindEvents    = "events"
	KindResource  = "resource"
	KindReplay    = "replay"
	KindRedis     = "redis"
	KindWebSocket = "websocket"
)

// FilterRange maps the raw device interval [from_start, from_end] onto [to_start, to_end]
type FilterRange struct {
	FromStart int64 `toml:"from_start"`
	FromEnd   int64 `toml:"from_end"`
	ToStart   int64 `toml:"to_start"`
	ToEnd     int64 `toml:"to_end"`
}

// DeviceConfig describes one [[devices]] entry
type DeviceConfig struct {
	Kind string `toml:"kind"`
	Name string `toml:"name"`
	// Path is the URL of network sources and the text of resource devices
	Path string `toml:"path"`

	// generator, events and replay timelines
	Start      int64    `toml:"start"`
	Count      int64    `toml:"count"`
	Sampling   Duration `toml:"sampling"`
	Timestamps []int64  `toml:"timestamps"`

	// redis
	Addr    string `toml:"addr"`
	Channel string `toml:"channel"`

	Disabled bool          `toml:"disabled"`
	Filter   []FilterRange `toml:"filter"`
}

// Duration is a time.Duration decoded from strings like "40ms"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds the whole application configuration
type Config struct {
	Debug bool `toml:"debug"`
	Log   struct {
		Filename string `toml:"filename"`
	} `toml:"log"`
	Playback struct {
		Speed        float64 `toml:"speed"`
		Repeat       bool    `toml:"repeat"`
		UsePlaySpeed bool    `toml:"use_play_speed"`
		MissFrames   bool    `toml:"miss_frames"`
		MaxFPS       int     `toml:"max_fps"`
		TimeLimits   bool    `toml:"time_limits"`
		StopBegin    *int64  `toml:"stop_begin"`
		StopEnd      *int64  `toml:"stop_end"`
		Autoplay     bool    `toml:"autoplay"`
	} `toml:"playback"`
	Buffer struct {
		LimitType string `toml:"limit_type"` // none, number, memory or number|memory
		MaxSize   int    `toml:"max_size"`
		MaxMemory int    `toml:"max_memory"`
	} `toml:"buffer"`
	WebSocket struct {
		Enabled bool `toml:"enabled"`
	} `toml:"websocket"`
	TLS struct {
		Enabled  bool   `toml:"enabled"`
		CertFile string `toml:"cert_file"`
		KeyFile  string `toml:"key_file"`
	} `toml:"tls"`
	HTTPServer struct {
		Enabled bool   `toml:"enabled"`
		Host    string `toml:"host"`
		Port    int    `toml:"port"`
		WebRoot string `toml:"web_root"`
	} `toml:"http_server"`
	State struct {
		File     string `toml:"file"`
		Format   string `toml:"format"` // json or yaml, from the extension when empty
		Autosave bool   `toml:"autosave"`
		Restore  bool   `toml:"restore"`
	} `toml:"state"`
	Devices []DeviceConfig `toml:"devices"`
}

// NewConfig returns the default configuration
func NewConfig() *Config {
	cfg := &Config{}
	cfg.Log.Filename = "thermavip.log"
	cfg.Playback.Speed = 1
	cfg.Playback.UsePlaySpeed = true
	cfg.Playback.MaxFPS = 100
	cfg.Buffer.LimitType = "memory"
	cfg.Buffer.MaxMemory = 50_000_000
	cfg.HTTPServer.Host = "localhost"
	cfg.HTTPServer.Port = 8080
	cfg.State.File = DefaultStateFile
	cfg.State.Restore = true
	return cfg
}

// LoadConfig loads the configuration, by order of priority:
//  1. the file at configPath when given
//  2. DefaultConfigFile in the working directory when it exists
//  3. the defaults
func LoadConfig(configPath string) (*Config, error) {
	config := NewConfig()

	filePath := configPath
	if filePath == "" {
		if _, err := os.Stat(DefaultConfigFile); err != nil {
			return config, nil
		}
		filePath = DefaultConfigFile
	}

	if _, err := toml.DecodeFile(filePath, config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return config, nil
}

// Validate checks the values that cannot be checked by decoding
func (c *Config) Validate() error {
	var errs []error
	if c.Playback.Speed <= 0 {
		errs = append(errs, fmt.Errorf("playback.speed must be positive, got %v", c.Playback.Speed))
	}
	if c.Playback.MaxFPS < 0 {
		errs = append(errs, fmt.Errorf("playback.max_fps must not be negative, got %d", c.Playback.MaxFPS))
	}
	switch c.State.Format {
	case "", "json", "yaml", "yml":
	default:
		errs = append(errs, fmt.Errorf("state.format: unknown format %q", c.State.Format))
	}
	for i, d := range c.Devices {
		if err := d.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("devices[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks the fields required by the device kind
func (d DeviceConfig) Validate() error {
	switch d.Kind {
	case KindGenerator, KindReplay:
		if len(d.Timestamps) == 0 && (d.Count <= 0 || d.Sampling.Duration <= 0) {
			return fmt.Errorf("%s needs timestamps or a positive count and sampling", d.Kind)
		}
	case KindEvents:
		if len(d.Timestamps) == 0 {
			return errors.New("events needs timestamps")
		}
	case KindResource:
	case KindRedis:
		if d.Path == "" && d.Addr == "" {
			return errors.New("redis needs a path or an addr")
		}
		if d.Path == "" && d.Channel == "" {
			return errors.New("redis needs a channel")
		}
	case KindWebSocket:
		if d.Path == "" {
			return errors.New("websocket needs a path")
		}
	default:
		return fmt.Errorf("unknown device kind %q", d.Kind)
	}
	for _, f := range d.Filter {
		if f.FromEnd < f.FromStart || f.ToEnd < f.ToStart {
			return fmt.Errorf("invalid filter range %+v", f)
		}
	}
	return nil
}

// ApplyCommandLineArgs overrides the configuration with the flags given on the command line
func (c *Config) ApplyCommandLineArgs(args CommandLineArgs) {
	if args.DebugSpecified {
		c.Debug = args.Debug
	}
	if args.LogFilenameSpecified {
		c.Log.Filename = args.LogFilename
	}
	// websocket
	if args.WebSocketEnabledSpecified {
		c.WebSocket.Enabled = args.WebSocketEnabled
	}
	if args.WebSocketTLSEnabledSpecified {
		c.TLS.Enabled = args.WebSocketTLSEnabled
	}
	if args.WebSocketTLSCertFileSpecified {
		c.TLS.CertFile = args.WebSocketTLSCertFile
	}
	if args.WebSocketTLSKeyFileSpecified {
		c.TLS.KeyFile = args.WebSocketTLSKeyFile
	}
	// HTTP server
	if args.HTTPServerEnabledSpecified {
		c.HTTPServer.Enabled = args.HTTPServerEnabled
	}
	if args.HTTPServerHostSpecified {
		c.HTTPServer.Host = args.HTTPServerHost
	}
	if args.HTTPServerPortSpecified {
		c.HTTPServer.Port = args.HTTPServerPort
	}
	if args.HTTPServerWebRootSpecified {
		c.HTTPServer.WebRoot = args.HTTPServerWebRoot
	}
	// playback
	if args.SpeedSpecified {
		c.Playback.Speed = args.Speed
	}
	if args.RepeatSpecified {
		c.Playback.Repeat = args.Repeat
	}
	if args.AutoplaySpecified {
		c.Playback.Autoplay = args.Autoplay
	}
	// state
	if args.StateFileSpecified {
		c.State.File = args.StateFile
	}
	if args.NoRestoreSpecified && args.NoRestore {
		c.State.Restore = false
	}
}

// CommandLineArgs holds the command line values and whether each was given
type CommandLineArgs struct {
	// Configuration file (meta setting)
	ConfigFile      string
	ConfigSpecified bool

	Debug          bool
	DebugSpecified bool

	LogFilename          string
	LogFilenameSpecified bool

	// WebSocket server
	WebSocketEnabled              bool
	WebSocketEnabledSpecified     bool
	WebSocketTLSEnabled           bool
	WebSocketTLSEnabledSpecified  bool
	WebSocketTLSCertFile          string
	WebSocketTLSCertFileSpecified bool
	WebSocketTLSKeyFile           string
	WebSocketTLSKeyFileSpecified  bool

	// HTTP server
	HTTPServerEnabled          bool
	HTTPServerEnabledSpecified bool
	HTTPServerHost             string
	HTTPServerHostSpecified    bool
	HTTPServerPort             int
	HTTPServerPortSpecified    bool
	HTTPServerWebRoot          string
	HTTPServerWebRootSpecified bool

	// Playback
	Speed             float64
	SpeedSpecified    bool
	Repeat            bool
	RepeatSpecified   bool
	Autoplay          bool
	AutoplaySpecified bool

	// State
	StateFile          string
	StateFileSpecified bool
	NoRestore          bool
	NoRestoreSpecified bool
}

// ParseCommandLineArgs parses os.Args with the default flag set
func ParseCommandLineArgs() CommandLineArgs {
	args, err := ParseArgs(flag.CommandLine, os.Args[1:])
	if err != nil {
		// flag.CommandLine exits on error
		panic(err)
	}
	return args
}

// ParseArgs defines the application flags on fs and parses arguments
func ParseArgs(fs *flag.FlagSet, arguments []string) (CommandLineArgs, error) {
	var args CommandLineArgs

	configFileFlag := fs.String("config", "", "path of the TOML configuration file")

	debugFlag := fs.Bool("debug", false, "enable debug mode")
	logFilenameFlag := fs.String("log", "thermavip.log", "log file name")

	websocketFlag := fs.Bool("websocket", false, "enable the WebSocket server")
	wsTLSFlag := fs.Bool("ws-tls", false, "enable TLS on the WebSocket server")
	wsCertFileFlag := fs.String("ws-cert-file", "", "TLS certificate file")
	wsKeyFileFlag := fs.String("ws-key-file", "", "TLS private key file")

	httpEnabledFlag := fs.Bool("http-enabled", false, "enable the HTTP API")
	httpHostFlag := fs.String("http-host", "localhost", "host of the HTTP and WebSocket server")
	httpPortFlag := fs.Int("http-port", 8080, "port of the HTTP and WebSocket server")
	httpWebRootFlag := fs.String("http-webroot", "", "directory served as static files")

	speedFlag := fs.Float64("speed", 1, "playback speed factor")
	repeatFlag := fs.Bool("repeat", false, "restart the playback at the end")
	autoplayFlag := fs.Bool("autoplay", false, "start playing once the devices are opened")

	stateFileFlag := fs.String("state", DefaultStateFile, "pool state archive (.json or .yaml)")
	noRestoreFlag := fs.Bool("no-restore", false, "do not restore the pool state at startup")

	if err := fs.Parse(arguments); err != nil {
		return args, err
	}

	specified := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { specified[f.Name] = true })

	args.ConfigFile = *configFileFlag
	args.ConfigSpecified = specified["config"]

	args.Debug = *debugFlag
	args.DebugSpecified = specified["debug"]

	args.LogFilename = *logFilenameFlag
	args.LogFilenameSpecified = specified["log"]

	args.WebSocketEnabled = *websocketFlag
	args.WebSocketEnabledSpecified = specified["websocket"]
	args.WebSocketTLSEnabled = *wsTLSFlag
	args.WebSocketTLSEnabledSpecified = specified["ws-tls"]
	args.WebSocketTLSCertFile = *wsCertFileFlag
	args.WebSocketTLSCertFileSpecified = specified["ws-cert-file"]
	args.WebSocketTLSKeyFile = *wsKeyFileFlag
	args.WebSocketTLSKeyFileSpecified = specified["ws-key-file"]

	args.HTTPServerEnabled = *httpEnabledFlag
	args.HTTPServerEnabledSpecified = specified["http-enabled"]
	args.HTTPServerHost = *httpHostFlag
	args.HTTPServerHostSpecified = specified["http-host"]
	args.HTTPServerPort = *httpPortFlag
	args.HTTPServerPortSpecified = specified["http-port"]
	args.HTTPServerWebRoot = *httpWebRootFlag
	args.HTTPServerWebRootSpecified = specified["http-webroot"]

	args.Speed = *speedFlag
	args.SpeedSpecified = specified["speed"]
	args.Repeat = *repeatFlag
	args.RepeatSpecified = specified["repeat"]
	args.Autoplay = *autoplayFlag
	args.AutoplaySpecified = specified["autoplay"]

	args.StateFile = *stateFileFlag
	args.StateFileSpecified = specified["state"]
	args.NoRestore = *noRestoreFlag
	args.NoRestoreSpecified = specified["no-restore"]

	return args, nil
}
