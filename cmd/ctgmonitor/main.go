package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"ctgmonitor/internal/app"
	"ctgmonitor/internal/clock"
	"ctgmonitor/internal/config"
)

// main starts the CTG monitor using file or directory config source.
// Params: CLI flags (--config-file or --config-dir); none means defaults plus env.
// Returns: process exit code 2 for config errors, 1 for runtime errors.
func main() {
	var (
		configFile = flag.String("config-file", "", "path to one TOML config file")
		configDir  = flag.String("config-dir", "", "path to directory with TOML config fragments")
	)
	flag.Parse()

	source, err := config.FromCLI(*configFile, *configDir)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	service, err := app.NewService(source, clock.RealClock{})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "service init failed:", err.Error())
		if errors.Is(err, app.ErrInvalidConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	if err := service.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "service run failed:", err.Error())
		os.Exit(1)
	}
}
