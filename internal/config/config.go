package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// AppConfig is loaded from GAZEMAP_* environment variables first; command
// line flags override it.
type AppConfig struct {
	Port                int           `env:"PORT" envDefault:"8888"`
	RemoteEndpoint      string        `env:"REMOTE" envDefault:"tcp://127.0.0.1:50020"`
	LayoutFile          string        `env:"LAYOUT"`
	Debug               bool          `env:"DEBUG"`
	SimRate             float64       `env:"SIM_RATE" envDefault:"30"`
	ReplayFile          string        `env:"REPLAY"`
	ReplayLoop          bool          `env:"REPLAY_LOOP"`
	RecordDir           string        `env:"RECORD_DIR"`
	StartFramePublisher bool          `env:"START_FRAME_PUBLISHER" envDefault:"true"`
	MinConfidence       float64       `env:"MIN_CONFIDENCE" envDefault:"0.6"`
	MaxSkew             time.Duration `env:"MAX_SKEW" envDefault:"50ms"`
	IdleTimeout         time.Duration `env:"IDLE_TIMEOUT"`
	StatusInterval      time.Duration `env:"STATUS_INTERVAL" envDefault:"2s"`
	BroadcastBuffer     int           `env:"BROADCAST_BUFFER" envDefault:"64"`
	AutoStart           bool          `env:"AUTO_START"`
	LogLevel            string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat           string        `env:"LOG_FORMAT" envDefault:"text"`
	IngestLogEvery      int           `env:"INGEST_LOG_EVERY" envDefault:"100"`
}

// FromEnv returns the configuration described by the environment.
func FromEnv() (AppConfig, error) {
	var cfg AppConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "GAZEMAP_"}); err != nil {
		return AppConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c AppConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Debug && c.ReplayFile != "" {
		return fmt.Errorf("debug and replay are mutually exclusive")
	}
	if c.SimRate <= 0 {
		return fmt.Errorf("sim rate must be positive, got %v", c.SimRate)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be within [0,1], got %v", c.MinConfidence)
	}
	if c.BroadcastBuffer < 1 {
		return fmt.Errorf("broadcast buffer must be positive, got %d", c.BroadcastBuffer)
	}
	return nil
}
