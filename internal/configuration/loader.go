package configuration

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"uisync/internal/configuration/util"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDir = "internal/static"

	defaultAddress       = "0.0.0.0"
	defaultPort          = 8000
	defaultPath          = "/ws"
	defaultSendQueueSize = 256
	defaultWriteTimeout  = 5000
	defaultMaxFrameBytes = 1 << 20
	defaultLogLevel      = "info"
	defaultLogFormat     = "pretty"
)

// Load reads application.yml from dir and overlays application-<profile>.yml.
// A non-empty profile argument takes precedence over app.profile from the base file.
func Load(dir, profile string) (*Properties, error) {
	cfg, err := loadBaseConfig(dir)
	if err != nil {
		return nil, err
	}

	if profile != "" {
		cfg.App.Profile = profile
	}

	if cfg.App.Profile != "" {
		if err := loadProfileConfig(dir, cfg); err != nil {
			return nil, err
		}
	}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Properties {
	cfg := &Properties{}
	applyDefaults(cfg)
	return cfg
}

func loadBaseConfig(dir string) (*Properties, error) {
	baseConfig, err := util.LoadAndExpandYaml(dir, "application")
	if err != nil {
		slog.Error("Error loading base config", "error", err)
		return nil, err
	}

	cfg := Properties{}
	if err := yaml.Unmarshal([]byte(baseConfig), &cfg); err != nil {
		slog.Error("Error parsing base config", "error", err)
		return nil, fmt.Errorf("parse base config: %w", err)
	}

	return &cfg, nil
}

func loadProfileConfig(dir string, cfg *Properties) error {
	profileConfig, err := util.LoadAndExpandYaml(dir, "application-"+cfg.App.Profile)
	if err != nil {
		slog.Error("Error loading profile config", "profile", cfg.App.Profile, "error", err)
		return err
	}

	if err := yaml.Unmarshal([]byte(profileConfig), cfg); err != nil {
		slog.Error("Error parsing profile config", "profile", cfg.App.Profile, "error", err)
		return fmt.Errorf("parse profile config: %w", err)
	}

	return nil
}

func applyDefaults(cfg *Properties) {
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaultLogLevel
	}
	if cfg.App.LogFormat == "" {
		cfg.App.LogFormat = defaultLogFormat
	}

	t := &cfg.Transport
	if t.Address == "" {
		t.Address = defaultAddress
	}
	if t.Port == 0 {
		t.Port = defaultPort
	}
	if t.Path == "" {
		t.Path = defaultPath
	}
	if !strings.HasPrefix(t.Path, "/") {
		t.Path = "/" + t.Path
	}
	if t.SendQueueSize == 0 {
		t.SendQueueSize = defaultSendQueueSize
	}
	if t.WriteTimeout == 0 {
		t.WriteTimeout = defaultWriteTimeout
	}
	if t.MaxFrameBytes == 0 {
		t.MaxFrameBytes = defaultMaxFrameBytes
	}

	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "0.0.0.0:9090"
	}
	if cfg.Admin.Address == "" {
		cfg.Admin.Address = "0.0.0.0:9091"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "uisync"
	}
}

func validate(cfg *Properties) error {
	var errs []error

	if cfg.Transport.Port < 0 || cfg.Transport.Port > 65535 {
		errs = append(errs, fmt.Errorf("transport.port must be between 0 and 65535, got %d", cfg.Transport.Port))
	}
	if cfg.Transport.Path == "/" {
		errs = append(errs, errors.New("transport.path must not be the root path"))
	}
	if cfg.Transport.SendQueueSize < 1 {
		errs = append(errs, fmt.Errorf("transport.send-queue-size must be positive, got %d", cfg.Transport.SendQueueSize))
	}
	if cfg.Transport.MaxFrameBytes < 1 {
		errs = append(errs, fmt.Errorf("transport.max-frame-bytes must be positive, got %d", cfg.Transport.MaxFrameBytes))
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("tracing.endpoint is required when tracing is enabled"))
	}
	switch strings.ToLower(cfg.App.LogFormat) {
	case "pretty", "json":
	default:
		errs = append(errs, fmt.Errorf("app.log-format must be pretty or json, got %q", cfg.App.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// LookupDir returns dir when set, otherwise $UISYNC_CONFIG_DIR, otherwise DefaultDir.
func LookupDir(dir string) string {
	if dir != "" {
		return dir
	}
	if env, ok := os.LookupEnv("UISYNC_CONFIG_DIR"); ok && env != "" {
		return env
	}
	return DefaultDir
}
