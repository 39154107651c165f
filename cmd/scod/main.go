package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/scosock/internal/daemon"
	"github.com/danmuck/scosock/internal/logging"
	"github.com/danmuck/scosock/internal/observability"
)

func main() {
	path := flag.String("config", "", "path to scod.toml (defaults are used when empty)")
	flag.Parse()

	logging.ConfigureRuntime()
	observability.InitLogger("scod")

	cfg := daemon.DefaultServiceConfig()
	if *path != "" {
		var err error
		cfg, err = loadServiceConfig(*path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "scod: %v\n", err)
			os.Exit(1)
		}
	}

	svc := daemon.NewServiceWithConfig(cfg)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "scod: %v\n", err)
		os.Exit(1)
	}
}
