package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/swarmmesh/substrate/pkg/plan"
)

// runPlanCmd implements `swarmctl plan show`: loads a plan snapshot file
// (the byte stream produced by plan.Store.Save, exported by a node for
// offline inspection) and prints a summary by task state, or the raw
// document as JSON.
func runPlanCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "Usage: swarmctl plan <show> [options]")
		return 2
	}

	switch args[0] {
	case "show":
		return runPlanShow(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown plan subcommand: %s\n", args[0])
		return 2
	}
}

func runPlanShow(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("plan show", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		file       string
		jsonOutput bool
	)
	cmd.StringVar(&file, "file", "", "Path to an exported plan snapshot (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output raw snapshot as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if file == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --file is required")
		return 2
	}

	data, err := os.ReadFile(file)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		var pretty map[string]interface{}
		if err := json.Unmarshal(data, &pretty); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: invalid snapshot: %v\n", err)
			return 2
		}
		out, _ := json.MarshalIndent(pretty, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(out))
		return 0
	}

	store := plan.NewStore()
	if err := store.Load(data); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	view := store.TaskView()
	states := []plan.TaskState{plan.StateDraft, plan.StateDecided, plan.StateVerified, plan.StateFinal}
	_, _ = fmt.Fprintln(stdout, "Plan snapshot")
	_, _ = fmt.Fprintln(stdout, "-------------")
	for _, s := range states {
		tasks := view.ByState(s)
		_, _ = fmt.Fprintf(stdout, "  %-10s %d\n", s, len(tasks))
	}
	return 0
}
