package configuration

import (
	"net"
	"strconv"
	"time"
)

type Properties struct {
	App       AppConfigurationProperties       `yaml:"app"`
	Transport TransportConfigurationProperties `yaml:"transport"`
	Session   SessionConfigurationProperties   `yaml:"session"`
	Metrics   MetricsConfigurationProperties   `yaml:"metrics"`
	Admin     AdminConfigurationProperties     `yaml:"admin"`
	Tracing   TracingConfigurationProperties   `yaml:"tracing"`
}

type AppConfigurationProperties struct {
	Profile   string `yaml:"profile"`
	LogLevel  string `yaml:"log-level"`
	LogFormat string `yaml:"log-format"`
}

type TransportConfigurationProperties struct {
	Address        string   `yaml:"address"`
	Port           int      `yaml:"port"`
	Path           string   `yaml:"path"`
	AllowedOrigins []string `yaml:"allowed-origins"`
	SendQueueSize  int      `yaml:"send-queue-size"`
	WriteTimeout   uint64   `yaml:"write-timeout"`
	MaxFrameBytes  int      `yaml:"max-frame-bytes"`
}

type SessionConfigurationProperties struct {
	SuppressEcho bool `yaml:"suppress-echo"`
}

type MetricsConfigurationProperties struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type AdminConfigurationProperties struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type TracingConfigurationProperties struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service-name"`
}

func (c *TransportConfigurationProperties) Addr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

func (c *TransportConfigurationProperties) WriteTimeoutDuration() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Millisecond
}

// AllowsAnyOrigin reports whether the origin list is empty or contains "*".
func (c *TransportConfigurationProperties) AllowsAnyOrigin() bool {
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}
