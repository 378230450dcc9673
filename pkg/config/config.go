// Package config is the node's env-driven configuration, following the
// teacher's env-var-with-default idiom: every setting has a sane local
// default so a node can start with zero configuration, and every
// policy-relevant constant named in spec.md has a field here. Of those,
// node.New passes only UnbondPeriod and ChallengeWindow on; the auction
// window and anti-snipe limits, the commit-gate margin and the checkpoint
// quorum are fixed in their own packages.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds a swarmnode's full runtime configuration.
type Config struct {
	// Identity
	NodeID   string
	LogLevel string

	// Bus
	BusURL        string
	StreamName    string
	SwarmSubjects string
	P2PEnabled    bool

	// Content-addressed storage
	CASBackend string // "file" | "s3" | "gcs"
	CASDir     string
	CASBucket  string

	// Checkpoint / sync
	CheckpointDir string

	// Policy bundle source
	PolicyBundleDir string

	// Ledger persistence
	LedgerBackend string // "memory" | "sqlite" | "postgres"
	DatabaseURL   string

	// Redis, for distributed bus rate limiting
	RedisAddr string

	// Telemetry: empty OTLPEndpoint keeps tracing/metrics disabled
	OTLPEndpoint string

	// Policy-relevant constants (spec.md §9)
	CommitGateMargin      float64       // allowed resource overshoot above claimed bounds at the commit gate
	AntiSnipeWindow       time.Duration // auction window extension trigger
	AntiSnipeMaxExtend    int           // max number of extensions
	AuctionWindow         time.Duration
	ChallengeWindow       time.Duration
	UnbondPeriod          time.Duration
	CheckpointQuorumNum   int // numerator of quorum fraction (2 of 3 -> 2)
	CheckpointQuorumDenom int // denominator of quorum fraction (2 of 3 -> 3)
}

// yamlOverlay is the subset of Config an operator may set via a checked-in
// YAML profile (CONFIG_FILE) instead of per-deployment env vars — the
// policy-relevant constants from spec.md §9, which tend to travel together
// as a named regional/operational profile rather than as individual
// env vars. Grounded on the teacher's RegionalProfile yaml-tagged structs.
type yamlOverlay struct {
	LedgerBackend         string  `yaml:"ledger_backend"`
	CommitGateMargin      float64 `yaml:"commit_gate_margin"`
	AntiSnipeWindow       string  `yaml:"anti_snipe_window"`
	AntiSnipeMaxExtend    int     `yaml:"anti_snipe_max_extend"`
	AuctionWindow         string  `yaml:"auction_window"`
	ChallengeWindow       string  `yaml:"challenge_window"`
	UnbondPeriod          string  `yaml:"unbond_period"`
	CheckpointQuorumNum   int     `yaml:"checkpoint_quorum_num"`
	CheckpointQuorumDenom int     `yaml:"checkpoint_quorum_denom"`
}

// applyYAMLOverlay loads a YAML profile and overlays its non-zero fields
// onto cfg. Durations are parsed with time.ParseDuration so a profile can
// write "30s" the same way an env var would.
func applyYAMLOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read profile %s: %w", path, err)
	}
	var overlay yamlOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("config: parse profile %s: %w", path, err)
	}

	if overlay.LedgerBackend != "" {
		cfg.LedgerBackend = overlay.LedgerBackend
	}
	if overlay.CommitGateMargin != 0 {
		cfg.CommitGateMargin = overlay.CommitGateMargin
	}
	if overlay.AntiSnipeMaxExtend != 0 {
		cfg.AntiSnipeMaxExtend = overlay.AntiSnipeMaxExtend
	}
	if overlay.CheckpointQuorumNum != 0 {
		cfg.CheckpointQuorumNum = overlay.CheckpointQuorumNum
	}
	if overlay.CheckpointQuorumDenom != 0 {
		cfg.CheckpointQuorumDenom = overlay.CheckpointQuorumDenom
	}
	for _, d := range []struct {
		raw    string
		target *time.Duration
	}{
		{overlay.AntiSnipeWindow, &cfg.AntiSnipeWindow},
		{overlay.AuctionWindow, &cfg.AuctionWindow},
		{overlay.ChallengeWindow, &cfg.ChallengeWindow},
		{overlay.UnbondPeriod, &cfg.UnbondPeriod},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config: parse duration %q: %w", d.raw, err)
		}
		*d.target = parsed
	}
	return nil
}

// Load reads configuration from the environment, applying defaults for
// everything left unset. If CONFIG_FILE is set, a YAML profile is loaded
// and overlaid on top of the env-derived defaults before returning —
// env vars always establish the baseline, the profile refines it.
func Load() *Config {
	cfg := loadFromEnv()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyYAMLOverlay(cfg, path); err != nil {
			// A malformed profile is an operator error the node should
			// surface loudly rather than silently ignore.
			panic(err)
		}
	}
	return cfg
}

func loadFromEnv() *Config {
	return &Config{
		NodeID:   envOr("NODE_ID", "swarmnode-local"),
		LogLevel: envOr("LOG_LEVEL", "INFO"),

		BusURL:        envOr("BUS_URL", "nats://localhost:4222"),
		StreamName:    envOr("STREAM_NAME", "swarm-mesh"),
		SwarmSubjects: envOr("SWARM_SUBJECTS", "swarm.>"),
		P2PEnabled:    envBool("P2P_ENABLED", false),

		CASBackend: envOr("CAS_BACKEND", "file"),
		CASDir:     envOr("CAS_DIR", "./data/cas"),
		CASBucket:  envOr("CAS_BUCKET", ""),

		CheckpointDir: envOr("CHECKPOINT_DIR", "./data/checkpoints"),

		PolicyBundleDir: envOr("POLICY_BUNDLE_DIR", "./policies"),

		LedgerBackend: envOr("LEDGER_BACKEND", "memory"),
		DatabaseURL:   envOr("DATABASE_URL", "postgres://swarm@localhost:5432/swarm?sslmode=disable"),

		RedisAddr: envOr("REDIS_ADDR", ""),

		OTLPEndpoint: envOr("OTLP_ENDPOINT", ""),

		CommitGateMargin:      envFloat("COMMIT_GATE_MARGIN", 0.10),
		AntiSnipeWindow:       envDuration("ANTI_SNIPE_WINDOW", 5*time.Second),
		AntiSnipeMaxExtend:    envInt("ANTI_SNIPE_MAX_EXTEND", 3),
		AuctionWindow:         envDuration("AUCTION_WINDOW", 30*time.Second),
		ChallengeWindow:       envDuration("CHALLENGE_WINDOW", 86400*time.Second),
		UnbondPeriod:          envDuration("UNBOND_PERIOD", 86400*time.Second),
		CheckpointQuorumNum:   envInt("CHECKPOINT_QUORUM_NUM", 2),
		CheckpointQuorumDenom: envInt("CHECKPOINT_QUORUM_DENOM", 3),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
