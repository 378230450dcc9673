package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swarmmesh/substrate/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("BUS_URL", "")
	t.Setenv("P2P_ENABLED", "")
	t.Setenv("COMMIT_GATE_MARGIN", "")
	t.Setenv("CHALLENGE_WINDOW", "")

	cfg := config.Load()

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Contains(t, cfg.BusURL, "nats://")
	assert.False(t, cfg.P2PEnabled)
	assert.InDelta(t, 0.10, cfg.CommitGateMargin, 0.0001)
	assert.Equal(t, 86400*time.Second, cfg.ChallengeWindow)
	assert.Equal(t, 2, cfg.CheckpointQuorumNum)
	assert.Equal(t, 3, cfg.CheckpointQuorumDenom)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("BUS_URL", "nats://bus.internal:4222")
	t.Setenv("P2P_ENABLED", "true")
	t.Setenv("COMMIT_GATE_MARGIN", "0.25")
	t.Setenv("AUCTION_WINDOW", "45s")
	t.Setenv("ANTI_SNIPE_MAX_EXTEND", "5")

	cfg := config.Load()

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "nats://bus.internal:4222", cfg.BusURL)
	assert.True(t, cfg.P2PEnabled)
	assert.InDelta(t, 0.25, cfg.CommitGateMargin, 0.0001)
	assert.Equal(t, 45*time.Second, cfg.AuctionWindow)
	assert.Equal(t, 5, cfg.AntiSnipeMaxExtend)
}

func TestLoad_YAMLProfileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	yamlDoc := "ledger_backend: sqlite\n" +
		"commit_gate_margin: 0.33\n" +
		"challenge_window: 12h\n" +
		"checkpoint_quorum_num: 3\n" +
		"checkpoint_quorum_denom: 5\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("COMMIT_GATE_MARGIN", "")
	t.Setenv("CHALLENGE_WINDOW", "")

	cfg := config.Load()

	assert.Equal(t, "sqlite", cfg.LedgerBackend)
	assert.InDelta(t, 0.33, cfg.CommitGateMargin, 0.0001)
	assert.Equal(t, 12*time.Hour, cfg.ChallengeWindow)
	assert.Equal(t, 3, cfg.CheckpointQuorumNum)
	assert.Equal(t, 5, cfg.CheckpointQuorumDenom)
}

func TestLoad_YAMLProfileMissingFilePanics(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Panics(t, func() { config.Load() })
}
