package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DaemonConfig is the on-disk layout of scod.toml. An empty diag_addr
// disables the diag server.
type DaemonConfig struct {
	Name        string          `toml:"name"`
	DiagAddr    string          `toml:"diag_addr"`
	CorsOrigins []string        `toml:"cors_origins"`
	SCO         SCOConfig       `toml:"sco"`
	Adapters    []AdapterConfig `toml:"adapters"`
	Echo        []EchoConfig    `toml:"echo"`
}

// SCOConfig holds socket layer defaults; durations use time.ParseDuration
// syntax.
type SCOConfig struct {
	DefaultMTU        int    `toml:"default_mtu"`
	ConnectTimeout    string `toml:"connect_timeout"`
	DisconnectTimeout string `toml:"disconnect_timeout"`
	RecvBufferSize    int    `toml:"recv_buffer_size"`
}

type AdapterConfig struct {
	Addr         string `toml:"addr"`
	MTU          int    `toml:"mtu"`
	DevClass     string `toml:"dev_class"`
	Unresponsive bool   `toml:"unresponsive"`
}

// EchoConfig declares a listener that sends every frame back.
type EchoConfig struct {
	Addr    string `toml:"addr"`
	Backlog int    `toml:"backlog"`
}

func LoadDaemonConfig(path string) (DaemonConfig, error) {
	var cfg DaemonConfig
	if err := loadToml(path, &cfg); err != nil {
		return DaemonConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "scod"
	}
	if err := ValidateDaemonConfig(cfg); err != nil {
		return DaemonConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateDaemonConfig(cfg DaemonConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("daemon config missing name")
	}
	if err := ValidateSCOConfig(cfg.SCO); err != nil {
		return fmt.Errorf("sco invalid: %w", err)
	}
	seen := make(map[string]struct{}, len(cfg.Adapters))
	for i, a := range cfg.Adapters {
		if err := ValidateAdapter(a); err != nil {
			return fmt.Errorf("adapter[%d] invalid: %w", i, err)
		}
		key := strings.ToUpper(strings.TrimSpace(a.Addr))
		if _, dup := seen[key]; dup {
			return fmt.Errorf("adapter[%d] invalid: duplicate addr %s", i, a.Addr)
		}
		seen[key] = struct{}{}
	}
	for i, e := range cfg.Echo {
		if err := ValidateEcho(e); err != nil {
			return fmt.Errorf("echo[%d] invalid: %w", i, err)
		}
	}
	return nil
}

func ValidateSCOConfig(cfg SCOConfig) error {
	if cfg.DefaultMTU < 0 {
		return fmt.Errorf("default_mtu must not be negative")
	}
	if cfg.RecvBufferSize < 0 {
		return fmt.Errorf("recv_buffer_size must not be negative")
	}
	if _, err := parseDuration(cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("connect_timeout: %w", err)
	}
	if _, err := parseDuration(cfg.DisconnectTimeout); err != nil {
		return fmt.Errorf("disconnect_timeout: %w", err)
	}
	return nil
}

func ValidateAdapter(cfg AdapterConfig) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("addr is required")
	}
	if _, err := cfg.Link(); err != nil {
		return err
	}
	return nil
}

func ValidateEcho(cfg EchoConfig) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("addr is required")
	}
	if cfg.Backlog < 0 {
		return fmt.Errorf("backlog must not be negative")
	}
	if _, err := cfg.Listener(); err != nil {
		return err
	}
	return nil
}

// parseDuration accepts an empty string as zero.
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", raw)
	}
	return d, nil
}
