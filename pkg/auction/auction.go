// Package auction implements the NEED → bid window → DECIDE lifecycle
// (spec.md §4.9), grounded on
// original_source/src/auction/{bidding,selection}.py.
package auction

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/swarmmesh/substrate/pkg/swarmerr"
)

var (
	ErrAuctionNotFound = errors.New("auction: not found")
	ErrAuctionNotOpen  = errors.New("auction: not open")
	ErrWindowClosed    = errors.New("auction: bid window closed")
	ErrOverBudget      = errors.New("auction: proposal cost exceeds budget")
)

// Status is an auction's lifecycle stage.
type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusClosed  Status = "CLOSED"
	StatusTimeout Status = "TIMEOUT"
)

const (
	defaultWindow = 30 * time.Second
	antiSnipe     = 5 * time.Second
	maxExtensions = 3
	extensionBump = 5 * time.Second
	maxETASeconds = 604800 // one week, for eta_score normalization
	maxCapCount   = 10     // for cap_score normalization
)

// Bid is one agent's proposal against an open auction.
type Bid struct {
	AgentID      string
	ProposalID   string
	Cost         float64
	ETASeconds   float64
	Reputation   float64
	Capabilities []string
	SubmittedAt  int64 // unix nanoseconds
}

// Auction is one NEED's bid window.
type Auction struct {
	NeedID     string
	Budget     float64
	Status     Status
	StartNs    int64
	Window     time.Duration
	Extensions int
	Bids       []Bid
}

func (a *Auction) elapsed(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, a.StartNs))
}

func (a *Auction) remaining(now time.Time) time.Duration {
	return a.Window - a.elapsed(now)
}

// Coordinator manages concurrent auctions.
type Coordinator struct {
	mu       sync.Mutex
	auctions map[string]*Auction
	clock    func() time.Time
}

func NewCoordinator() *Coordinator {
	return &Coordinator{auctions: make(map[string]*Auction), clock: time.Now}
}

func (c *Coordinator) WithClock(clock func() time.Time) *Coordinator {
	c.clock = clock
	return c
}

// StartAuction opens a bid window for needID with the default 30s
// window, zero extensions.
func (c *Coordinator) StartAuction(needID string, budget float64) *Auction {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := &Auction{NeedID: needID, Budget: budget, Status: StatusOpen, StartNs: c.clock().UnixNano(), Window: defaultWindow}
	c.auctions[needID] = a
	cp := *a
	return &cp
}

// AcceptBid validates and records a bid, extending the window if the bid
// arrives within the anti-snipe threshold.
func (c *Coordinator) AcceptBid(needID string, bid Bid) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.auctions[needID]
	if !ok {
		return ErrAuctionNotFound
	}
	if a.Status != StatusOpen {
		return ErrAuctionNotOpen
	}

	now := c.clock()
	if a.elapsed(now) > a.Window {
		return swarmerr.Wrap(swarmerr.WindowClosed, ErrWindowClosed)
	}
	if bid.Cost > a.Budget {
		return ErrOverBudget
	}

	if a.remaining(now) < antiSnipe && a.Extensions < maxExtensions {
		a.StartNs += int64(extensionBump)
		a.Extensions++
	}

	bid.SubmittedAt = now.UnixNano()
	a.Bids = append(a.Bids, bid)
	return nil
}

// CloseAuction closes needID and selects a winner by composite score, or
// returns (nil, nil) if no bids were received.
func (c *Coordinator) CloseAuction(needID string) (*Bid, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.auctions[needID]
	if !ok {
		return nil, ErrAuctionNotFound
	}
	a.Status = StatusClosed

	if len(a.Bids) == 0 {
		return nil, nil
	}
	winner := selectWinner(a.Bids, a.Budget)
	return winner, nil
}

// TimeoutAuction marks needID as timed out (used when no bids arrived
// and the caller chooses not to close normally).
func (c *Coordinator) TimeoutAuction(needID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.auctions[needID]
	if !ok {
		return ErrAuctionNotFound
	}
	a.Status = StatusTimeout
	return nil
}

func (c *Coordinator) Get(needID string) (Auction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.auctions[needID]
	if !ok {
		return Auction{}, false
	}
	return *a, true
}

// scoreBid computes the composite 0-100 score per spec.md §4.9:
// 100·(0.4·cost_score + 0.3·eta_score + 0.2·rep_score + 0.1·cap_score).
func scoreBid(b Bid, budget float64) float64 {
	var costScore float64
	if budget > 0 {
		costScore = 1.0 - math.Min(b.Cost/budget, 1.0)
	}
	etaScore := 1.0 - math.Min(b.ETASeconds/maxETASeconds, 1.0)
	repScore := math.Min(math.Max(b.Reputation, 0.0), 1.0)
	capScore := math.Min(float64(len(b.Capabilities))/maxCapCount, 1.0)

	return 100 * (0.4*costScore + 0.3*etaScore + 0.2*repScore + 0.1*capScore)
}

// selectWinner scores every bid and returns the highest, breaking ties by
// highest reputation, then earliest submission timestamp, then lexically
// smallest agent_id (spec.md §4.9's canonical tie-break chain, grounded on
// selection.py's BidEvaluator.handle_ties) — the final agent_id level
// makes the outcome fully deterministic across replaying nodes even when
// two bids share score, reputation, and submission time.
func selectWinner(bids []Bid, budget float64) *Bid {
	type scored struct {
		score float64
		bid   Bid
	}
	ranked := make([]scored, len(bids))
	for i, b := range bids {
		ranked[i] = scored{score: scoreBid(b, budget), bid: b}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].bid.Reputation != ranked[j].bid.Reputation {
			return ranked[i].bid.Reputation > ranked[j].bid.Reputation
		}
		if ranked[i].bid.SubmittedAt != ranked[j].bid.SubmittedAt {
			return ranked[i].bid.SubmittedAt < ranked[j].bid.SubmittedAt
		}
		return ranked[i].bid.AgentID < ranked[j].bid.AgentID
	})
	winner := ranked[0].bid
	return &winner
}
