package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/swarmmesh/substrate/pkg/config"
)

// runDoctorCmd implements `swarmnode doctor`, a pre-flight environment
// check in the teacher's cmd/helm doctor style: a short list of named
// checks, each ok/warn/fail, with a nonzero exit if anything failed.
//
// Exit codes: 0 = all checks pass, 1 = one or more checks failed.
func runDoctorCmd(stdout, stderr io.Writer) int {
	type checkResult struct {
		Name   string
		Status string // "ok", "warn", "fail"
		Detail string
	}

	var results []checkResult
	allOK := true

	results = append(results, checkResult{
		Name:   "go_runtime",
		Status: "ok",
		Detail: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	})

	cfg := config.Load()

	if cfg.LedgerBackend != "memory" && os.Getenv("DATABASE_URL") == "" {
		results = append(results, checkResult{
			Name:   "database_url",
			Status: "fail",
			Detail: fmt.Sprintf("LEDGER_BACKEND=%s requires DATABASE_URL", cfg.LedgerBackend),
		})
		allOK = false
	} else {
		results = append(results, checkResult{Name: "ledger_backend", Status: "ok", Detail: cfg.LedgerBackend})
	}

	if _, err := os.Stat(cfg.PolicyBundleDir); err != nil {
		results = append(results, checkResult{
			Name:   "policy_bundle_dir",
			Status: "warn",
			Detail: fmt.Sprintf("%s does not exist (node will run with an empty policy bundle)", cfg.PolicyBundleDir),
		})
	} else {
		results = append(results, checkResult{Name: "policy_bundle_dir", Status: "ok", Detail: cfg.PolicyBundleDir})
	}

	if cfg.CASBackend == "s3" && cfg.CASBucket == "" {
		results = append(results, checkResult{Name: "cas_bucket", Status: "fail", Detail: "CAS_BACKEND=s3 requires CAS_BUCKET"})
		allOK = false
	} else {
		results = append(results, checkResult{Name: "cas_backend", Status: "ok", Detail: cfg.CASBackend})
	}

	fmt.Fprintln(stdout, "swarmnode doctor")
	fmt.Fprintln(stdout, "----------------")
	for _, r := range results {
		icon := "ok"
		if r.Status == "warn" {
			icon = "warn"
		} else if r.Status == "fail" {
			icon = "fail"
		}
		fmt.Fprintf(stdout, "  [%-4s] %-20s %s\n", icon, r.Name, r.Detail)
	}

	if allOK {
		fmt.Fprintln(stdout, "\nAll checks passed.")
		return 0
	}
	fmt.Fprintln(stderr, "\nOne or more checks failed.")
	return 1
}
