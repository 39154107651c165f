package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "daemon", "scod":
		return daemonTemplate, nil
	case "loopback":
		return loopbackTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const daemonTemplate = `name = "scod"
diag_addr = ":9300"
cors_origins = ["http://localhost:3000"]

[sco]
default_mtu = 60
connect_timeout = "40s"
disconnect_timeout = "2s"
recv_buffer_size = 65536

[[adapters]]
addr = "00:1B:DC:0F:00:01"
mtu = 60
dev_class = "0x240404"

[[adapters]]
addr = "00:1B:DC:0F:00:02"
mtu = 60
dev_class = "0x200404"

[[echo]]
addr = "00:1B:DC:0F:00:02"
backlog = 4
`

const loopbackTemplate = `name = "scod-loopback"
diag_addr = ""

[sco]
connect_timeout = "5s"

[[adapters]]
addr = "00:1B:DC:0F:00:01"

[[adapters]]
addr = "00:1B:DC:0F:00:02"

[[echo]]
addr = "00:00:00:00:00:00"
backlog = 8
`
