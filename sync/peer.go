package sync

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zfjagann/golang-ring"

	"github.com/bft-core/engine/types"
)

// outcomeHistory bounds how many recent request outcomes feed a peer's
// score, grounded on the teacher's ring-buffered pendingMessages
// (consensus/tendermint/backend/backend.go's `pendingMessages ring.Ring`,
// generalized from gossip payload history to per-peer request outcomes).
const outcomeHistory = 20

// maxTrackedPeers caps the peer table the same way msg_store.go bounds its
// caches: a process with thousands of transient gossip peers must not grow
// this table unbounded.
const maxTrackedPeers = 256

// PeerRecord is the protocol state kept per peer (spec.md §4.7's "Protocol
// state (per process)").
type PeerRecord struct {
	Peer             types.Address
	TipHeight        types.Height
	HistoryMinHeight types.Height

	outcomes ring.Ring
}

// Score averages the recent request outcomes (1.0 success, 0.0 timeout or
// invalid response) into a single selection weight; a peer with no history
// yet scores neutrally so it gets a chance.
func (p *PeerRecord) Score() float64 {
	values := p.outcomes.Values()
	if len(values) == 0 {
		return 0.5
	}
	var sum float64
	for _, v := range values {
		sum += v.(float64)
	}
	return sum / float64(len(values))
}

func (p *PeerRecord) recordOutcome(success bool) {
	if success {
		p.outcomes.Enqueue(1.0)
	} else {
		p.outcomes.Enqueue(0.0)
	}
}

// PeerTable tracks every peer a Client has observed a Status from, bounded
// by an LRU so a large or churning peer set can't grow this without limit
// (hashicorp/golang-lru/v2, the same bounded-cache library msg_store.go
// already pulls in).
type PeerTable struct {
	mu    sync.Mutex
	peers *lru.Cache[types.Address, *PeerRecord]
}

func NewPeerTable() *PeerTable {
	c, _ := lru.New[types.Address, *PeerRecord](maxTrackedPeers)
	return &PeerTable{peers: c}
}

// Observe records or updates a peer's Status.
func (t *PeerTable) Observe(st Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.peers.Get(st.Peer)
	if !ok {
		rec = &PeerRecord{Peer: st.Peer}
		rec.outcomes.SetCapacity(outcomeHistory)
		t.peers.Add(st.Peer, rec)
	}
	rec.TipHeight = st.TipHeight
	rec.HistoryMinHeight = st.HistoryMinHeight
}

// Penalize records a failed outcome (timeout or invalid response) for peer.
func (t *PeerTable) Penalize(peer types.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.peers.Get(peer); ok {
		rec.recordOutcome(false)
	}
}

// Reward records a successful outcome for peer.
func (t *PeerTable) Reward(peer types.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.peers.Get(peer); ok {
		rec.recordOutcome(true)
	}
}

// BestAhead returns the highest-scoring peer whose TipHeight exceeds
// height. TipHeight only filters and does not rank; among equal scores the
// first peer in the table's key order wins. spec.md §4.7 speaks of "peer
// selected by score (randomized within top band)" — determinism over pure
// random choice keeps this
// reproducible in tests; a host embedding this in a live network can swap
// in its own jitter.
func (t *PeerTable) BestAhead(height types.Height) (types.Address, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var best types.Address
	var bestScore float64
	found := false
	for _, peer := range t.peers.Keys() {
		rec, ok := t.peers.Peek(peer)
		if !ok || rec.TipHeight <= height {
			continue
		}
		score := rec.Score()
		if !found || score > bestScore {
			best, bestScore, found = peer, score, true
		}
	}
	return best, found
}
