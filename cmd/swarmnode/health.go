package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// runHealthCmd implements `swarmnode health`, an HTTP GET against a
// running node's local health endpoint, matching the teacher's
// cmd/helm `health` subcommand's check-then-exit-code shape.
func runHealthCmd(stdout, stderr io.Writer) int {
	addr := os.Getenv("SWARMNODE_HEALTH_ADDR")
	if addr == "" {
		addr = "http://localhost:8081/health"
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(addr)
	if err != nil {
		fmt.Fprintf(stderr, "swarmnode health: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "swarmnode health: unhealthy (status %d)\n", resp.StatusCode)
		return 1
	}
	fmt.Fprintln(stdout, "swarmnode: healthy")
	return 0
}
