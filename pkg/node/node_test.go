package node_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmmesh/substrate/pkg/config"
	"github.com/swarmmesh/substrate/pkg/node"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Load()
	cfg.NodeID = "test-node"
	cfg.CASDir = t.TempDir()
	cfg.CheckpointDir = t.TempDir()
	cfg.PolicyBundleDir = t.TempDir()
	return cfg
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_WiresAllSubsystems(t *testing.T) {
	n, err := node.New(context.Background(), testConfig(t), silentLogger())
	require.NoError(t, err)

	assert.NotNil(t, n.Signer)
	assert.NotNil(t, n.Verifier)
	assert.NotNil(t, n.Identity)
	assert.NotNil(t, n.Clock)
	assert.NotNil(t, n.Audit)
	assert.NotNil(t, n.Telemetry)
	assert.NotNil(t, n.CAS)
	assert.NotNil(t, n.Ledger)
	assert.NotNil(t, n.Plan)
	assert.NotNil(t, n.Bus)
	assert.NotNil(t, n.CommitGate)
	assert.NotNil(t, n.Preflight)
	assert.NotNil(t, n.Ingress)
	assert.NotNil(t, n.Auction)
	assert.NotNil(t, n.Lease)
	assert.NotNil(t, n.Stake)
	assert.NotNil(t, n.StakePool)
	assert.NotNil(t, n.Reputation)
	assert.NotNil(t, n.Challenge)
	assert.NotNil(t, n.Slasher)
	assert.NotNil(t, n.RelatedParty)
	assert.NotNil(t, n.Distribution)
	assert.NotNil(t, n.BountyManager)
	assert.NotNil(t, n.Checkpoint)
	assert.NotNil(t, n.FastSync)
	assert.NotNil(t, n.SyncMgr)
	assert.NotNil(t, n.Discovery)

	// Sharding is opt-in; absent until EnableSharding is called.
	assert.Nil(t, n.ShardTopology)
}

func TestNew_CreateAccountOnLedger(t *testing.T) {
	n, err := node.New(context.Background(), testConfig(t), silentLogger())
	require.NoError(t, err)

	_, err = n.Ledger.CreateAccount(context.Background(), "agent-1")
	assert.NoError(t, err)
}

func TestEnableSharding_PopulatesShardFields(t *testing.T) {
	n, err := node.New(context.Background(), testConfig(t), silentLogger())
	require.NoError(t, err)

	n.EnableSharding(4)

	assert.NotNil(t, n.ShardTopology)
	assert.NotNil(t, n.ShardRegistry)
	assert.NotNil(t, n.ShardRouter)
	assert.NotNil(t, n.ShardDAG)
	assert.NotNil(t, n.Escrow)
	assert.Equal(t, 4, n.ShardTopology.NumShards)
}

func TestClose_ClosesBus(t *testing.T) {
	n, err := node.New(context.Background(), testConfig(t), silentLogger())
	require.NoError(t, err)
	assert.NoError(t, n.Close())
}
