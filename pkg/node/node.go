// Package node is the swarm node's service locator: it wires every
// subsystem package (ledger, plan, bus, auction, challenge, slashing,
// stake, checkpoint, sync, shard, policy, identity, auditlog) into one
// Node at startup, in the fixed dependency order spec.md §5 requires for
// its lock order (ledger, then plan, then bus), and threads a single
// log/slog.Logger and CAS-backed artifact store through every subsystem
// that needs one. Grounded on the teacher's apps/helm-node Services /
// NewServices service-locator (services.go): same per-subsystem
// init-then-log shape, adapted from HELM's HTTP-kernel subsystems to the
// swarm's ledger/plan/bus/auction/challenge/slashing stack. Optional
// sharding is left out of New and wired by EnableSharding.
package node

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/swarmmesh/substrate/pkg/auction"
	"github.com/swarmmesh/substrate/pkg/auditlog"
	"github.com/swarmmesh/substrate/pkg/bus"
	"github.com/swarmmesh/substrate/pkg/cas"
	"github.com/swarmmesh/substrate/pkg/challenge"
	"github.com/swarmmesh/substrate/pkg/checkpoint"
	"github.com/swarmmesh/substrate/pkg/config"
	"github.com/swarmmesh/substrate/pkg/crypto"
	"github.com/swarmmesh/substrate/pkg/envelope"
	"github.com/swarmmesh/substrate/pkg/identity"
	"github.com/swarmmesh/substrate/pkg/ledger"
	"github.com/swarmmesh/substrate/pkg/lease"
	"github.com/swarmmesh/substrate/pkg/plan"
	"github.com/swarmmesh/substrate/pkg/policy"
	"github.com/swarmmesh/substrate/pkg/policyloader"
	"github.com/swarmmesh/substrate/pkg/shard"
	"github.com/swarmmesh/substrate/pkg/slashing"
	"github.com/swarmmesh/substrate/pkg/stake"
	"github.com/swarmmesh/substrate/pkg/sync"
	"github.com/swarmmesh/substrate/pkg/telemetry"
)

// Node holds every initialized subsystem a swarm participant needs. Its
// fields are grouped to match spec.md §5's fixed lock order: Ledger,
// then Plan, then Bus. Any code path that must hold more than one of
// these subsystems' locks at once MUST acquire them in that order, to
// match every subsystem's own internal acquisition order and avoid
// cross-package deadlock.
type Node struct {
	Config *config.Config

	// --- Identity & crypto ---
	Signer   *crypto.Ed25519Signer
	Verifier *crypto.Ed25519Verifier
	Identity *identity.Registry
	Clock    *envelope.Clock

	// --- Audit & storage ---
	Audit auditlog.AuditLog
	CAS   cas.Store

	// --- Telemetry (tracing/metrics; no-op unless OTLP_ENDPOINT is set) ---
	Telemetry *telemetry.Provider

	// --- Lock order: Ledger, Plan, Bus (spec.md §5) ---
	Ledger ledger.Ledger
	Plan   *plan.Store
	Bus    *bus.Bus

	// --- Policy gates ---
	CommitGate *policy.CommitGate
	Preflight  *policy.Preflight
	Ingress    *policy.Ingress

	// --- Coordination ---
	Auction *auction.Coordinator
	Lease   *lease.Manager

	// --- Stake & economic security ---
	Stake      *stake.Manager
	StakePool  *stake.Pool
	Reputation *stake.ReputationTracker

	// --- Dispute resolution ---
	ChallengeQueue   *challenge.Queue
	ChallengeWindow  *challenge.WindowManager
	ChallengeVerify  *challenge.Verifier
	ChallengeAbuse   *challenge.AbuseTracker
	ChallengeSettler *challenge.Settler
	Challenge        *challenge.Coordinator

	// --- Slashing ---
	Slasher       *slashing.Slasher
	RelatedParty  *slashing.RelatedPartyDetector
	Distribution  *slashing.Distributor
	BountyManager *slashing.BountyManager

	// --- Checkpoint & sync ---
	Checkpoint *checkpoint.Manager
	FastSync   *sync.FastSync
	SyncMgr    *sync.SyncManager
	Discovery  *sync.PeerDiscovery

	// --- Sharding (multi-shard deployments only; nil in single-shard mode) ---
	ShardTopology *shard.ShardTopology
	ShardRegistry *shard.ShardRegistry
	ShardRouter   *shard.CrossShardRouter
	ShardDAG      *shard.DependencyDAG
	Escrow        *shard.EscrowManager
}

// New wires every subsystem from cfg, returning a ready-to-run Node. It
// follows the teacher's NewServices shape of init-then-log per subsystem.
// Any subsystem that fails to initialize makes New return an error; there
// is no degraded mode. Sharding is not set up here (see EnableSharding).
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Node, error) {
	n := &Node{Config: cfg}

	// --- 1. Identity & crypto ---
	signer, err := crypto.NewEd25519Signer(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("node: signer init: %w", err)
	}
	n.Signer = signer
	verifier, err := crypto.NewEd25519Verifier(signer.PublicKey())
	if err != nil {
		return nil, fmt.Errorf("node: verifier init: %w", err)
	}
	n.Verifier = verifier
	n.Identity = identity.NewRegistry()
	n.Clock = envelope.NewClock()
	logger.Info("subsystem ready", "component", "identity/crypto")

	// --- 2. Audit log ---
	audit := auditlog.NewMemoryLog()
	n.Audit = audit
	logger.Info("subsystem ready", "component", "auditlog")

	// --- 2b. Telemetry (no-op unless cfg.OTLPEndpoint is set) ---
	tel, err := telemetry.New(ctx, telemetry.FromNodeConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("node: telemetry init: %w", err)
	}
	n.Telemetry = tel
	logger.Info("subsystem ready", "component", "telemetry", "enabled", cfg.OTLPEndpoint != "")

	// --- 3. CAS ---
	store, err := cas.NewFromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("node: cas init: %w", err)
	}
	n.CAS = store
	logger.Info("subsystem ready", "component", "cas", "backend", cfg.CASBackend)

	// --- 4. Ledger (lock-order position 1) ---
	led, err := ledger.NewFromConfig(ctx, cfg, audit)
	if err != nil {
		return nil, fmt.Errorf("node: ledger init: %w", err)
	}
	n.Ledger = led
	logger.Info("subsystem ready", "component", "ledger", "backend", cfg.LedgerBackend)

	// --- 5. Plan (lock-order position 2) ---
	n.Plan = plan.NewStore()
	logger.Info("subsystem ready", "component", "plan")

	// --- 6. Policy gates, needed by Bus ---
	loader := policyloader.NewLoader(cfg.PolicyBundleDir)
	ingress, err := policy.NewIngress(loader)
	if err != nil {
		return nil, fmt.Errorf("node: policy ingress init: %w", err)
	}
	n.Ingress = ingress
	n.Preflight = policy.NewPreflight("1.0")
	n.CommitGate = policy.NewCommitGate("1.0")
	logger.Info("subsystem ready", "component", "policy")

	// --- 7. Bus (lock-order position 3) ---
	transport := bus.NewInMemoryTransport()
	n.Bus = bus.New(transport, n.Preflight, n.Ingress, audit, n.Clock)
	logger.Info("subsystem ready", "component", "bus")

	// --- 8. Coordination ---
	n.Auction = auction.NewCoordinator()
	n.Lease = lease.NewManager(n.Plan, cfg.NodeID)
	logger.Info("subsystem ready", "component", "auction/lease")

	// --- 9. Stake ---
	n.Stake = stake.NewManager(n.Ledger, cfg.UnbondPeriod)
	n.StakePool = stake.NewPool(n.Stake)
	n.Reputation = stake.NewReputationTracker()
	logger.Info("subsystem ready", "component", "stake")

	// --- 10. Dispute resolution ---
	n.ChallengeQueue = challenge.NewQueue()
	n.ChallengeWindow = challenge.NewWindowManager()
	n.ChallengeVerify = challenge.NewVerifier(10000)
	n.ChallengeAbuse = challenge.NewAbuseTracker()
	n.ChallengeSettler = challenge.NewSettler(n.Ledger, n.Reputation)
	n.Challenge = challenge.NewCoordinator(n.Ledger, n.ChallengeSettler)
	logger.Info("subsystem ready", "component", "challenge")

	// --- 11. Slashing ---
	n.Slasher = slashing.NewSlasher(n.Stake)
	n.RelatedParty = slashing.NewRelatedPartyDetector(n.StakePool)
	n.Distribution = slashing.NewDistributor(n.Ledger, n.Slasher)
	n.BountyManager = slashing.NewBountyManager(n.Ledger, cfg.ChallengeWindow)
	logger.Info("subsystem ready", "component", "slashing")

	// --- 12. Checkpoint & sync ---
	ckpt, err := checkpoint.NewManager(cfg.CheckpointDir)
	if err != nil {
		return nil, fmt.Errorf("node: checkpoint manager init: %w", err)
	}
	n.Checkpoint = ckpt
	n.FastSync = sync.NewFastSync(ckpt)
	n.SyncMgr = sync.NewSyncManager(n.Plan, cfg.NodeID)
	n.Discovery = sync.NewPeerDiscovery(cfg.NodeID, cfg.BusURL, []string{})
	logger.Info("subsystem ready", "component", "checkpoint/sync")

	logger.Info("subsystem ready", "component", "all subsystems initialized")
	return n, nil
}

// Close releases any subsystem resources that need an explicit shutdown:
// it shuts down Telemetry (ignoring its error) and closes the Bus's
// transport, returning the Bus's error. Other subsystems (Plan, Ledger,
// Checkpoint) hold no external resources and need no close step.
func (n *Node) Close() error {
	if n.Telemetry != nil {
		_ = n.Telemetry.Shutdown(context.Background())
	}
	if n.Bus != nil {
		return n.Bus.Close()
	}
	return nil
}

// EnableSharding wires the optional multi-shard subsystems (pkg/shard)
// into the Node. A single-shard deployment never calls this — the Shard*
// fields stay nil, matching the teacher's pattern of leaving an optional
// subsystem's field nil rather than constructing a no-op stand-in.
func (n *Node) EnableSharding(numShards int) {
	n.ShardTopology = shard.NewShardTopology(numShards)
	n.ShardRegistry = shard.NewShardRegistry()
	n.ShardRouter = shard.NewCrossShardRouter(n.ShardTopology, n.ShardRegistry)
	n.ShardDAG = shard.NewDependencyDAG()
	n.Escrow = shard.NewEscrowManager()
}
