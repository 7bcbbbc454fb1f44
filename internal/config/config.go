// Package config loads kontrol's runtime configuration from environment
// variables, following the KONTROL_* convention described by the original
// kontrol.sh launcher.
package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Labels identifies the pod this process runs in.
type Labels struct {
	App  string `json:"app"`
	Role string `json:"role"`
}

// Annotations carries the comma-separated list of master IPs a slave reports to.
type Annotations struct {
	Master string `json:"kontrol.unity3d.com/master"`
}

// Masters splits the annotation's master list into individual host entries.
func (a Annotations) Masters() []string {
	if a.Master == "" {
		return nil
	}
	return strings.Split(a.Master, ",")
}

// Config holds all KONTROL_* environment configuration.
type Config struct {
	ID        string `env:"KONTROL_ID,required"`
	Etcd      string `env:"KONTROL_ETCD"`
	IP        string `env:"KONTROL_IP,required"`
	RawLabels string `env:"KONTROL_LABELS,required"`
	RawAnnot  string `env:"KONTROL_ANNOTATIONS"`
	RawMode   string `env:"KONTROL_MODE,required"`
	Damper    int    `env:"KONTROL_DAMPER" envDefault:"5"`
	TTL       int    `env:"KONTROL_TTL" envDefault:"30"`
	Fover     int    `env:"KONTROL_FOVER" envDefault:"10"`
	Callback  string `env:"KONTROL_CALLBACK"`
	Payload   string `env:"KONTROL_PAYLOAD"`
	Port      int    `env:"KONTROL_PORT" envDefault:"9000"`
	HTTPPort  int    `env:"KONTROL_HTTP_PORT" envDefault:"8000"`
	Host      string `env:"KONTROL_HOST" envDefault:"0.0.0.0"`
	Namespace string `env:"NAMESPACE,required"`

	RedisURL      string `env:"KONTROL_REDIS" envDefault:"redis://localhost:6379/0"`
	AuditDSN      string `env:"KONTROL_AUDIT_DSN"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`
	SlackToken string `env:"KONTROL_SLACK_TOKEN"`
	SlackChan  string `env:"KONTROL_SLACK_CHANNEL"`
	OTLPTarget string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat  string `env:"LOG_FORMAT" envDefault:"json"`

	Labels      Labels
	Annotations Annotations
	Modes       map[string]bool
}

// Load reads configuration from the environment and validates it, mirroring
// the assertions performed by the original launcher's up()/go() functions.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}

	if err := json.Unmarshal([]byte(cfg.RawLabels), &cfg.Labels); err != nil {
		return nil, fmt.Errorf("parsing KONTROL_LABELS: %w", err)
	}
	if cfg.Labels.App == "" || cfg.Labels.Role == "" {
		return nil, fmt.Errorf("KONTROL_LABELS missing app/role")
	}

	if cfg.RawAnnot != "" {
		if err := json.Unmarshal([]byte(cfg.RawAnnot), &cfg.Annotations); err != nil {
			return nil, fmt.Errorf("parsing KONTROL_ANNOTATIONS: %w", err)
		}
	}

	cfg.Modes = map[string]bool{}
	for _, tok := range strings.Split(cfg.RawMode, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		switch tok {
		case "slave", "master", "debug", "verbose":
			cfg.Modes[tok] = true
		default:
			return nil, fmt.Errorf("invalid $KONTROL_MODE token %q", tok)
		}
	}

	if cfg.Modes["debug"] {
		cfg.Modes["master"] = true
		cfg.Modes["slave"] = true
		if cfg.Etcd == "" {
			cfg.Etcd = "127.0.0.1"
		}
		if cfg.Annotations.Master == "" {
			cfg.Annotations.Master = cfg.IP
		}
	}

	if cfg.Modes["slave"] && len(cfg.Annotations.Masters()) == 0 {
		return nil, fmt.Errorf("invalid annotations: %q missing", "kontrol.unity3d.com/master")
	}

	return cfg, nil
}

// Prefix returns the KV prefix all of this app's keys live under:
// /kontrol/<namespace>/<app>.
func (c *Config) Prefix() string {
	return fmt.Sprintf("/kontrol/%s/%s", c.Namespace, c.Labels.App)
}

// ListenAddr returns the HTTP listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}
