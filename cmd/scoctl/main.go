package main

import (
	"fmt"
	"os"

	"github.com/danmuck/scosock/internal/logging"
	"github.com/danmuck/scosock/internal/observability"
)

func main() {
	logging.ConfigureRuntime()
	observability.InitLogger("scoctl")
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "scoctl: %v\n", err)
		os.Exit(1)
	}
}
