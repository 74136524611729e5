package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds everything tunable about a run. Values resolve in layers:
// built-in defaults, then an optional .env file, then the yaml config file,
// then process environment, then command-line flags.
type Config struct {
	// Namespace is the default namespace for volume references without an
	// explicit @namespace fragment.
	Namespace string `yaml:"namespace"`

	// Image is the worker pod image.
	Image string `yaml:"image"`

	// Kubectl is the kubectl binary to drive; Context selects a kubeconfig
	// context, empty means the current one.
	Kubectl string `yaml:"kubectl"`
	Context string `yaml:"context"`

	// PollInterval paces worker readiness polling, SampleInterval paces
	// progress sampling during streams.
	PollInterval   time.Duration `yaml:"poll_interval"`
	SampleInterval time.Duration `yaml:"sample_interval"`

	// ReadyTimeout bounds the wait for a worker on an existing volume;
	// FreshReadyTimeout applies to freshly provisioned volumes, which either
	// bind quickly or not at all.
	ReadyTimeout      time.Duration `yaml:"ready_timeout"`
	FreshReadyTimeout time.Duration `yaml:"fresh_ready_timeout"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
	LogDir   string `yaml:"log_dir"`

	// HistoryPath is the BoltDB file recording past runs.
	HistoryPath string `yaml:"history_path"`

	// MetricsAddr, when set, serves Prometheus metrics during the run.
	MetricsAddr string `yaml:"metrics_addr"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Namespace:         "default",
		Image:             "alpine:3.20",
		Kubectl:           "kubectl",
		PollInterval:      2 * time.Second,
		SampleInterval:    time.Second,
		ReadyTimeout:      120 * time.Second,
		FreshReadyTimeout: 60 * time.Second,
		LogLevel:          "info",
		HistoryPath:       filepath.Join(home, ".pvcship", "history.db"),
	}
}

// Load builds the effective configuration. path may be empty, in which
// case only the default location is tried and a missing file is fine; an
// explicitly named file must exist.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // ignore error if .env not found

	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".pvcship", "config.yaml")
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file is a normal first run.
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	set := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set("PVCSHIP_NAMESPACE", &cfg.Namespace)
	set("PVCSHIP_IMAGE", &cfg.Image)
	set("PVCSHIP_KUBECTL", &cfg.Kubectl)
	set("PVCSHIP_CONTEXT", &cfg.Context)
	set("PVCSHIP_LOG_LEVEL", &cfg.LogLevel)
	set("PVCSHIP_LOG_DIR", &cfg.LogDir)
	set("PVCSHIP_HISTORY_PATH", &cfg.HistoryPath)
	set("PVCSHIP_METRICS_ADDR", &cfg.MetricsAddr)
}
