package core

import (
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/bloomfilter/v2"

	"github.com/bft-core/engine/message"
	"github.com/bft-core/engine/types"
)

// dedupCacheBytes sizes the fastcache seen-hash cache; grounded on
// handler.go's c.msgCache usage pattern (store-by-hash before reprocessing).
const dedupCacheBytes = 8 * 1024 * 1024

// bloomM/bloomK size the probabilistic pre-filter: cheap enough to check on
// every inbound message before the exact fastcache/map lookup, cutting
// lock contention on a flood of already-seen gossip.
const (
	bloomM = 1 << 20
	bloomK = 4
)

// MsgStore buffers accepted proposals and votes per (height, round, code,
// sender), generalized from the teacher's
// consensus/tendermint/core/msg_store.go (map[height]map[round]map[type]map[address][]*Message)
// onto types.Address/message.Msg. Retaining a list per sender (rather than
// overwriting) is what lets a second, differing message from the same
// sender surface as equivocation evidence.
type MsgStore struct {
	mu          sync.RWMutex
	firstHeight types.Height
	messages    map[types.Height]map[types.Round]map[message.MsgCode]map[types.Address][]message.Msg

	dedupBloom *bloomfilter.Filter
	dedup      *fastcache.Cache
	recent     *lru.Cache[types.ValueID, struct{}]
}

func NewMsgStore() *MsgStore {
	bf, _ := bloomfilter.New(bloomM, bloomK)
	recent, _ := lru.New[types.ValueID, struct{}](4096)
	return &MsgStore{
		messages:   map[types.Height]map[types.Round]map[message.MsgCode]map[types.Address][]message.Msg{},
		dedupBloom: bf,
		dedup:      fastcache.New(dedupCacheBytes),
		recent:     recent,
	}
}

// Seen reports whether hash has already been recorded as processed,
// checking the cheap bloom filter before falling back to the exact cache
// (handler.go's "already processed" short-circuit, generalized).
func (ms *MsgStore) Seen(hash types.ValueID) bool {
	key := hash.Bytes()
	if !ms.dedupBloom.Contains(bloomHash(key)) {
		return false
	}
	_, ok := ms.dedup.HasGet(nil, key)
	return ok
}

// MarkSeen records hash as processed so a later re-delivery short-circuits.
func (ms *MsgStore) MarkSeen(hash types.ValueID) {
	key := hash.Bytes()
	ms.dedupBloom.Add(bloomHash(key))
	ms.dedup.Set(key, []byte{1})
	ms.recent.Add(hash, struct{}{})
}

// bloomHash folds a 32-byte hash into the four uint64 lanes
// bloomfilter.Filter's Add/Contains take.
func bloomHash(b []byte) bloomfilter.Hash {
	var h bloomfilter.Hash
	for i := 0; i < len(b); i++ {
		h[i%4] = h[i%4]*31 + uint64(b[i])
	}
	return h
}

// Save stores m under (h, r, code, sender), appending rather than
// overwriting so a second, distinct message from the same sender is
// retained as equivocation evidence (spec.md §4.1/§4.3).
func (ms *MsgStore) Save(m message.Msg) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.firstHeight == 0 {
		ms.firstHeight = m.H()
	}

	roundMap, ok := ms.messages[m.H()]
	if !ok {
		roundMap = map[types.Round]map[message.MsgCode]map[types.Address][]message.Msg{}
		ms.messages[m.H()] = roundMap
	}
	codeMap, ok := roundMap[m.R()]
	if !ok {
		codeMap = map[message.MsgCode]map[types.Address][]message.Msg{}
		roundMap[m.R()] = codeMap
	}
	addrMap, ok := codeMap[m.Code()]
	if !ok {
		addrMap = map[types.Address][]message.Msg{}
		codeMap[m.Code()] = addrMap
	}
	addrMap[m.Sender()] = append(addrMap[m.Sender()], m)
}

// Get returns every message stored for (h, r, code, sender); len > 1
// indicates equivocation.
func (ms *MsgStore) Get(h types.Height, r types.Round, code message.MsgCode, sender types.Address) []message.Msg {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	roundMap, ok := ms.messages[h]
	if !ok {
		return nil
	}
	codeMap, ok := roundMap[r]
	if !ok {
		return nil
	}
	return codeMap[code][sender]
}

// AllForRound returns every distinct sender's first-retained message of
// code at (h, r), used to assemble an aggregate signature for a
// certificate.
func (ms *MsgStore) AllForRound(h types.Height, r types.Round, code message.MsgCode) map[types.Address]message.Msg {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	out := map[types.Address]message.Msg{}
	roundMap, ok := ms.messages[h]
	if !ok {
		return out
	}
	codeMap, ok := roundMap[r]
	if !ok {
		return out
	}
	for addr, msgs := range codeMap[code] {
		if len(msgs) > 0 {
			out[addr] = msgs[0]
		}
	}
	return out
}

func (ms *MsgStore) FirstHeightBuffered() types.Height {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.firstHeight
}

// DeleteMsgsBeforeHeight prunes every stored message at or below height,
// mirroring the teacher's DeleteMsgsBeforeHeight.
func (ms *MsgStore) DeleteMsgsBeforeHeight(height types.Height) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for h := range ms.messages {
		if h <= height {
			delete(ms.messages, h)
		}
	}
}
