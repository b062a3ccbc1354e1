package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aqubia/stepgate/api"
	"github.com/aqubia/stepgate/internal/screen"
	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration for StepGate.
type Config struct {
	File *screen.File
	Path string

	ListenAddr        string
	LogDir            string
	FlowTTL           time.Duration
	SweepInterval     time.Duration
	FallbackSynthesis bool
	DefaultAction     api.Verdict
	OPAPolicy         string

	RateLimitMax    int
	RateLimitWindow time.Duration

	Telegram TelegramConfig
}

// TelegramConfig holds the operator-channel settings.
type TelegramConfig struct {
	BotToken string
	ChatID   int64
	APIBase  string
}

// Enabled reports whether the Telegram notifier can be used. Without it,
// notifications are logged only and flows are resolved manually.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != 0
}

// Load reads a YAML config file and produces a runtime Config.
func Load(path string) (*Config, error) {
	f, err := screen.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return fromFile(f, path)
}

// LoadBytes parses YAML data and produces a runtime Config.
func LoadBytes(data []byte) (*Config, error) {
	f, err := screen.LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return fromFile(f, "")
}

func fromFile(f *screen.File, path string) (*Config, error) {
	cfg := &Config{
		File:          f,
		Path:          path,
		DefaultAction: f.Settings.DefaultAction,
		OPAPolicy:     f.Settings.OPAPolicy,
	}

	cfg.ListenAddr = f.Settings.ListenAddr
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}

	cfg.LogDir = f.Settings.LogDir
	if cfg.LogDir == "" {
		cfg.LogDir = DefaultLogDir()
	}
	cfg.LogDir = expandHome(cfg.LogDir)

	var err error
	cfg.FlowTTL, err = durationSetting(f.Settings.FlowTTL, "flow_ttl", DefaultFlowTTL)
	if err != nil {
		return nil, err
	}
	cfg.SweepInterval, err = durationSetting(f.Settings.SweepInterval, "sweep_interval", DefaultSweepInterval)
	if err != nil {
		return nil, err
	}

	// Availability-over-strictness default: a status probe for an unknown
	// flow id synthesizes a pending record unless explicitly disabled.
	cfg.FallbackSynthesis = true
	if f.Settings.FallbackSynthesis != nil {
		cfg.FallbackSynthesis = *f.Settings.FallbackSynthesis
	}

	if rl := f.Settings.RateLimit; rl != nil {
		if rl.Max <= 0 {
			return nil, fmt.Errorf("rate_limit.max must be positive, got %d", rl.Max)
		}
		w, err := time.ParseDuration(rl.Window)
		if err != nil {
			return nil, fmt.Errorf("invalid rate_limit.window %q: %w", rl.Window, err)
		}
		cfg.RateLimitMax = rl.Max
		cfg.RateLimitWindow = w
	}

	if tg := f.Settings.Telegram; tg != nil {
		cfg.Telegram = TelegramConfig{
			BotToken: os.ExpandEnv(tg.BotToken),
			ChatID:   tg.ChatID,
			APIBase:  tg.APIBase,
		}
	}

	return cfg, nil
}

func durationSetting(raw, name string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return d, nil
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfig returns a config with defaults for when no config file is given.
func DefaultConfig() *Config {
	return &Config{
		File: &screen.File{
			Version: 1,
			Settings: screen.Settings{
				DefaultAction: api.VerdictAsk,
			},
		},
		ListenAddr:        DefaultListenAddr,
		LogDir:            expandHome(DefaultLogDir()),
		FlowTTL:           DefaultFlowTTL,
		SweepInterval:     DefaultSweepInterval,
		FallbackSynthesis: true,
		DefaultAction:     api.VerdictAsk,
	}
}

// MarshalYAML serializes the loaded configuration for display/export.
func (c *Config) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(c.File)
}
