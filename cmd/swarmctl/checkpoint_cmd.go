package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/swarmmesh/substrate/pkg/checkpoint"
	"github.com/swarmmesh/substrate/pkg/swarmerr"
)

// runCheckpointCmd implements `swarmctl checkpoint <list|show|verify>`,
// grounded on the teacher's cmd/helm verify_cmd.go flag.FlagSet /
// --json shape.
func runCheckpointCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "Usage: swarmctl checkpoint <list|show|verify> [options]")
		return 2
	}

	switch args[0] {
	case "list":
		return runCheckpointList(args[1:], stdout, stderr)
	case "show":
		return runCheckpointShow(args[1:], stdout, stderr)
	case "verify":
		return runCheckpointVerify(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown checkpoint subcommand: %s\n", args[0])
		return 2
	}
}

func runCheckpointList(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("checkpoint list", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var dir string
	cmd.StringVar(&dir, "dir", "", "Checkpoint directory (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if dir == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --dir is required")
		return 2
	}

	mgr, err := checkpoint.NewManager(dir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	epochs, err := mgr.ListCheckpoints()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	for _, e := range epochs {
		_, _ = fmt.Fprintln(stdout, e)
	}
	return 0
}

func runCheckpointShow(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("checkpoint show", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		dir        string
		epoch      int
		jsonOutput bool
	)
	cmd.StringVar(&dir, "dir", "", "Checkpoint directory (REQUIRED)")
	cmd.IntVar(&epoch, "epoch", -1, "Epoch to show (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if dir == "" || epoch < 0 {
		_, _ = fmt.Fprintln(stderr, "Error: --dir and --epoch are required")
		return 2
	}

	mgr, err := checkpoint.NewManager(dir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	signed, err := mgr.GetCheckpoint(epoch)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(signed, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}

	_, _ = fmt.Fprintf(stdout, "Epoch:        %d\n", signed.Checkpoint.Epoch)
	_, _ = fmt.Fprintf(stdout, "Merkle root:  %s\n", signed.Checkpoint.MerkleRoot)
	_, _ = fmt.Fprintf(stdout, "Signatures:   %d\n", len(signed.Signatures))
	return 0
}

func runCheckpointVerify(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("checkpoint verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		dir     string
		epoch   int
		quorum  int
		verbose bool
	)
	cmd.StringVar(&dir, "dir", "", "Checkpoint directory (REQUIRED)")
	cmd.IntVar(&epoch, "epoch", -1, "Epoch to verify (REQUIRED)")
	cmd.IntVar(&quorum, "quorum", 0, "Required number of distinct signatures (REQUIRED)")
	cmd.BoolVar(&verbose, "verbose", false, "Print additional detail")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if dir == "" || epoch < 0 || quorum <= 0 {
		_, _ = fmt.Fprintln(stderr, "Error: --dir, --epoch, and --quorum are required")
		return 2
	}

	mgr, err := checkpoint.NewManager(dir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	signed, err := mgr.GetCheckpoint(epoch)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if !signed.VerifyQuorum(quorum) {
		_, _ = fmt.Fprintf(stdout, "FAIL: epoch %d has %d signature(s), quorum %d not met\n", epoch, len(signed.Signatures), quorum)
		err := swarmerr.New(swarmerr.QuorumNotMet, fmt.Sprintf("epoch %d: %d of %d required signatures", epoch, len(signed.Signatures), quorum))
		return swarmerr.ExitCode(err)
	}
	if verbose {
		_, _ = fmt.Fprintf(stdout, "epoch %d: %d signatures, merkle_root=%s\n", epoch, len(signed.Signatures), signed.Checkpoint.MerkleRoot)
	}
	_, _ = fmt.Fprintf(stdout, "PASS: epoch %d quorum satisfied\n", epoch)
	return 0
}
