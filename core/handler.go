package core

import (
	"context"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"github.com/bft-core/engine/types"
)

// Transport is the narrow network/storage surface the host's event loop
// calls into to perform an Effect; the kernel itself never touches it.
// Implementations are expected to wrap the actual p2p/WAL/application
// plumbing (out of this module's scope — spec.md's Non-goals exclude
// defining the wire transport).
type Transport interface {
	Perform(ctx context.Context, eff Effect) Resume
}

// MessageEvent carries an inbound gossip payload, mirroring the teacher's
// events.MessageEvent posted onto the backend's event.TypeMux
// (consensus/tendermint/core/handler.go's subscribeEvents/mainEventLoop).
type MessageEvent struct {
	Payload []byte
}

// TimeoutEvent signals a previously scheduled timer firing.
type TimeoutEvent struct {
	Kind  TimeoutKind
	Round int64
}

// Host wires a Kernel to go-ethereum's event.TypeMux the way the teacher's
// core.Start/mainEventLoop does: one goroutine drains the kernel's Effects
// channel and performs them via Transport, another subscribes to inbound
// network/timeout events and turns them into kernel Inputs.
type Host struct {
	kernel    *Kernel
	mux       *event.TypeMux
	transport Transport
	log       log.Logger

	messageSub *event.TypeMuxSubscription
	timeoutSub *event.TypeMuxSubscription

	cancel context.CancelFunc
	stopped chan struct{}
}

// NewHost constructs a Host. mux is the event bus the surrounding node
// already runs (go-ethereum's event.TypeMux), matching
// eth/ethconfig/config.go's convention of threading one shared TypeMux
// through every subsystem.
func NewHost(kernel *Kernel, mux *event.TypeMux, transport Transport, logger log.Logger) *Host {
	return &Host{kernel: kernel, mux: mux, transport: transport, log: logger, stopped: make(chan struct{}, 2)}
}

// Start begins the kernel's processing goroutine and the host's two
// I/O-facing loops, directly generalizing
// consensus/tendermint/core/handler.go's Start/mainEventLoop/subscribeEvents.
func (h *Host) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	h.subscribeEvents()

	h.kernel.Run(ctx)

	go h.effectLoop(ctx)
	go h.mainEventLoop(ctx)
}

// Stop cancels both loops and waits for their exit, mirroring the
// teacher's Stop draining c.stopped twice.
func (h *Host) Stop() {
	h.log.Info("stopping bft core")
	h.cancel()
	h.unsubscribeEvents()
	<-h.stopped
	<-h.stopped
}

func (h *Host) subscribeEvents() {
	h.messageSub = h.mux.Subscribe(MessageEvent{})
	h.timeoutSub = h.mux.Subscribe(TimeoutEvent{})
}

func (h *Host) unsubscribeEvents() {
	h.messageSub.Unsubscribe()
	h.timeoutSub.Unsubscribe()
}

// effectLoop drains Kernel.Effects() and performs each via Transport,
// resuming the kernel before reading the next one — the host half of the
// C4 coroutine contract.
func (h *Host) effectLoop(ctx context.Context) {
	defer func() { h.stopped <- struct{}{} }()
	for {
		select {
		case eff, ok := <-h.kernel.Effects():
			if !ok {
				return
			}
			resume := h.transport.Perform(ctx, eff)
			h.kernel.Resume(resume)
		case <-ctx.Done():
			return
		}
	}
}

// mainEventLoop turns inbound TypeMux events into kernel Inputs, the same
// dispatch shape as the teacher's mainEventLoop switch on
// messageEventSub/timeoutEventSub.
func (h *Host) mainEventLoop(ctx context.Context) {
	defer func() { h.stopped <- struct{}{} }()
	for {
		select {
		case ev, ok := <-h.messageSub.Chan():
			if !ok {
				return
			}
			if _, ok := ev.Data.(MessageEvent); ok {
				// Decoding raw payloads into Vote/Proposal Inputs is an
				// application-layer concern (the wire codec in message/
				// only defines the bytes, not which transport frames
				// carry them); Transport implementations submit decoded
				// Inputs directly via Kernel.Submit instead of routing
				// through this event, which exists for parity with the
				// teacher's subscription shape.
				h.log.Debug("mainEventLoop: raw message event observed")
			}
		case ev, ok := <-h.timeoutSub.Chan():
			if !ok {
				return
			}
			if te, ok := ev.Data.(TimeoutEvent); ok {
				h.kernel.Submit(Input{Kind: InputTimeoutElapsed, TimeoutKind: te.Kind, TimeoutRound: types.Round(te.Round)})
			}
		case <-ctx.Done():
			return
		}
	}
}
