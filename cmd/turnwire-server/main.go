// turnwire-server is the standalone coordinator server binary: the serve
// path of the turnwire CLI without the rest of the command surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/turnwire/turnwire/cmd/turnwire/commands"
	"github.com/turnwire/turnwire/internal/config"
	"github.com/turnwire/turnwire/internal/logging"
)

func main() {
	port := flag.Int("port", 0, "Port to listen on")
	logLevel := flag.String("log-level", "", "Log level (debug|info|warn|error)")
	flag.Parse()

	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load(wd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	level := cfg.Log.Level
	if *logLevel != "" {
		level = *logLevel
	}
	logging.Init(logging.Config{
		Level:  logging.ParseLevel(level),
		Pretty: cfg.Log.Pretty,
	})

	if *port != 0 {
		cfg.Server.Port = *port
	}

	if err := commands.Serve(context.Background(), cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
