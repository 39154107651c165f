package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/scosock/internal/config"
	"github.com/danmuck/scosock/internal/daemon"
	"github.com/danmuck/scosock/internal/link"
)

// scod.toml key mapping to daemon runtime settings. Table layouts are
// shared with the config package.
type fileConfig struct {
	Name        string                 `toml:"name"`
	DiagAddr    string                 `toml:"diag_addr"`
	CorsOrigins []string               `toml:"cors_origins"`
	SCO         config.SCOConfig       `toml:"sco"`
	Adapters    []config.AdapterConfig `toml:"adapters"`
	Echo        []config.EchoConfig    `toml:"echo"`
}

// loadServiceConfig overlays the keys present in path onto the daemon
// defaults.
func loadServiceConfig(path string) (daemon.ServiceConfig, error) {
	cfg := daemon.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return daemon.ServiceConfig{}, fmt.Errorf("load scod config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return daemon.ServiceConfig{}, fmt.Errorf("load scod config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("diag_addr") {
		cfg.DiagAddr = strings.TrimSpace(raw.DiagAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}

	if err := config.ValidateSCOConfig(raw.SCO); err != nil {
		return daemon.ServiceConfig{}, fmt.Errorf("load scod config: sco: %w", err)
	}
	proto, err := raw.SCO.Protocol()
	if err != nil {
		return daemon.ServiceConfig{}, fmt.Errorf("load scod config: sco: %w", err)
	}
	if meta.IsDefined("sco", "default_mtu") {
		cfg.Protocol.DefaultMTU = proto.DefaultMTU
	}
	if meta.IsDefined("sco", "connect_timeout") {
		cfg.Protocol.ConnectTimeout = proto.ConnectTimeout
	}
	if meta.IsDefined("sco", "disconnect_timeout") {
		cfg.Protocol.DisconnectTimeout = proto.DisconnectTimeout
	}
	if meta.IsDefined("sco", "recv_buffer_size") {
		cfg.Protocol.RecvBufferSize = proto.RecvBufferSize
	}

	if meta.IsDefined("adapters") {
		cfg.Adapters = make([]link.AdapterConfig, 0, len(raw.Adapters))
		for i, a := range raw.Adapters {
			lc, err := a.Link()
			if err != nil {
				return daemon.ServiceConfig{}, fmt.Errorf("load scod config: adapter[%d]: %w", i, err)
			}
			cfg.Adapters = append(cfg.Adapters, lc)
		}
	}
	if meta.IsDefined("echo") {
		cfg.Echo = make([]daemon.EchoListener, 0, len(raw.Echo))
		for i, e := range raw.Echo {
			if err := config.ValidateEcho(e); err != nil {
				return daemon.ServiceConfig{}, fmt.Errorf("load scod config: echo[%d]: %w", i, err)
			}
			el, _ := e.Listener()
			cfg.Echo = append(cfg.Echo, daemon.EchoListener{Addr: el.Addr, Backlog: el.Backlog})
		}
	}

	if cfg.Name == "" {
		return daemon.ServiceConfig{}, fmt.Errorf("load scod config: name must not be empty")
	}
	return cfg, nil
}
