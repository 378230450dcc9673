package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/swarmmesh/substrate/pkg/verifier"
)

// runVerifyCmd implements `swarmctl verify`, offline-checking an
// exported evidence bundle (audit log, plan snapshot, checkpoints)
// against pkg/verifier without a live node connection.
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		bundle     string
		jsonOutput bool
	)
	cmd.StringVar(&bundle, "bundle", "", "Evidence bundle directory (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if bundle == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --bundle is required")
		return 2
	}

	report, err := verifier.VerifyBundle(bundle)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		_, _ = fmt.Fprintln(stdout, report.Summary)
		for _, c := range report.Checks {
			status := "ok"
			if !c.Pass {
				status = "FAIL"
			}
			_, _ = fmt.Fprintf(stdout, "  [%s] %s: %s%s\n", status, c.Name, c.Detail, c.Reason)
		}
	}

	if !report.Verified {
		return 1
	}
	return 0
}
