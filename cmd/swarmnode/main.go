// Command swarmnode is a swarm participant: it runs the node's ledger,
// plan, and bus subsystems (wired by pkg/node) and serves a small local
// health/inspection HTTP endpoint. The server opens no bus subscription
// of its own.
// Its dispatcher shape — args[1] selects a subcommand, default falls
// through to "server" — follows the teacher's cmd/helm main.go Run
// dispatcher.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/swarmmesh/substrate/pkg/config"
	"github.com/swarmmesh/substrate/pkg/node"
	"github.com/swarmmesh/substrate/pkg/swarmerr"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable to allow mocking in tests.
var startServer = runServer

// Run is the CLI entrypoint, separated from main for testability.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		startServer()
		return 0
	}

	switch args[1] {
	case "server", "serve":
		startServer()
		return 0
	case "doctor":
		return runDoctorCmd(stdout, stderr)
	case "health":
		return runHealthCmd(stdout, stderr)
	case "version", "--version", "-v":
		_, _ = fmt.Fprintln(stdout, "swarmnode v0.1.0")
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if len(args[1]) > 0 && args[1][0] == '-' {
			startServer()
			return 0
		}
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage: swarmnode <command> [arguments]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Commands:")
	_, _ = fmt.Fprintln(w, "  server   Run the swarm node (default)")
	_, _ = fmt.Fprintln(w, "  doctor   Check configuration and environment")
	_, _ = fmt.Fprintln(w, "  health   Check health of a running node (HTTP)")
	_, _ = fmt.Fprintln(w, "  version  Show version information")
}

// runServer wires the node's subsystems and blocks until a shutdown
// signal arrives, matching the teacher's runServer shape in
// apps/helm-node/main.go: config/logger first, pkg/node.New for every
// subsystem, a health endpoint on a side port, then block on SIGINT/TERM.
func runServer() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg := config.Load()
	logger.Info("swarmnode starting", "node_id", cfg.NodeID)

	n, err := node.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("node init failed", "error", err)
		os.Exit(swarmerr.ExitCode(err))
	}
	defer func() { _ = n.Close() }()

	if os.Getenv("SHARD_COUNT") != "" {
		count := envInt("SHARD_COUNT", 1)
		n.EnableSharding(count)
		logger.Info("sharding enabled", "shards", count)
	}

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	healthMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := n.Audit.VerifyChain(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	go func() {
		logger.Info("health server listening", "addr", ":8081")
		//nolint:gosec // intentionally listening on all interfaces for container healthchecks
		if err := http.ListenAndServe(":8081", healthMux); err != nil {
			logger.Error("health server failed", "error", err)
		}
	}()

	logger.Info("swarmnode ready", "node_id", cfg.NodeID)
	logger.Info("press ctrl+c to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("swarmnode shutting down")
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}
