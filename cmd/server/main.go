/*
main.go - Application entry point

PURPOSE:
  Starts the P4P pay engine HTTP server: loads configuration, opens the
  store, wires the service, scheduler and router, and shuts down gracefully.

STARTUP SEQUENCE:
  1. Parse command-line flags, load config (.env, YAML file, P4P_* env)
  2. Build the zap logger
  3. Open the configured store (sqlite, postgres or memory)
  4. Create the service, handler and router
  5. Start the recalculation scheduler
  6. Serve until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -config  Optional YAML config file
  -port    Overrides http.port

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (an in-flight run finishes and is recorded)
  2. Stop accepting new connections, drain requests (30s timeout)
  3. Close the store

EXAMPLES:
  ./server
  P4P_STORE_DRIVER=postgres P4P_STORE_DSN=postgres://p4p@localhost/p4p ./server
  ./server -config=./p4p.yaml -port=3000

SEE ALSO:
  - config/config.go: Keys and defaults
  - api/server.go: Router configuration
  - cmd/p4pctl: Operator CLI (also has a serve command)
*/
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fieldcrew/p4p-engine/config"
	"github.com/fieldcrew/p4p-engine/server"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides http.port)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}

	if err := server.Run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		os.Exit(1)
	}
}
