// Package sync implements C7 (Value Sync): the catch-up client/server pair
// that lets a lagging process request previously-decided values and their
// commit certificates from ahead peers, generalized off the teacher's
// syncLoop/AskSync/SyncPeer shape (consensus/tendermint/core/handler.go)
// onto an explicit request/response protocol with peer scoring.
package sync

import (
	"github.com/bft-core/engine/message"
	"github.com/bft-core/engine/types"
)

// Status is broadcast periodically to directly-connected peers only (no
// forwarding), so a request issued in response to one is guaranteed a
// routable peer (spec.md §4.7's "Status broadcasting").
type Status struct {
	Peer             types.Address
	TipHeight        types.Height
	HistoryMinHeight types.Height
}

// GetValueRequest asks a peer for every decided value in [FromHeight,
// ToHeight], identified by RequestID so the response can be matched back to
// the request that issued it.
type GetValueRequest struct {
	RequestID  string
	FromHeight types.Height
	ToHeight   types.Height
}

// DecidedValue pairs one height's decided value with the commit certificate
// that externalized it, the unit the server replies with per height.
type DecidedValue struct {
	Height      types.Height
	Value       types.ValueID
	Certificate *message.Certificate
}

// GetValueResponse answers a GetValueRequest; Values may be shorter than
// the requested range (bounded response size, §4.7 "Server side") and MAY
// be empty if the server has nothing in range.
type GetValueResponse struct {
	RequestID string
	Values    []DecidedValue
}

// VoteSetRequest asks a peer for its vote set at (Height, Round), answered
// by the kernel's InputVoteSetRequest/EffectSendVoteSetResponse path
// (core/kernel.go), not by this package; Client has no code path for it.
type VoteSetRequest struct {
	RequestID string
	Height    types.Height
	Round     types.Round
}

// VoteSetResponse carries back whatever votes the peer had stored for the
// requested (height, round).
type VoteSetResponse struct {
	RequestID string
	Votes     []*message.Vote
}

// maxResponseValues bounds how many decided values a single
// GetValueResponse may carry, keeping one reply message-size sane
// regardless of how wide a range was requested.
const maxResponseValues = 64
