package core

import (
	"context"

	"github.com/ethereum/go-ethereum/log"
	gethmetrics "github.com/ethereum/go-ethereum/metrics"

	"github.com/bft-core/engine/driver"
	"github.com/bft-core/engine/message"
	"github.com/bft-core/engine/metrics"
	"github.com/bft-core/engine/signing"
	"github.com/bft-core/engine/statemachine"
	"github.com/bft-core/engine/types"
	"github.com/bft-core/engine/votekeeper"
	"github.com/bft-core/engine/wal"
)

// InputKind tags one of the kernel's accepted inputs (spec.md §4.5's
// "Input set").
type InputKind uint8

const (
	InputStartHeight InputKind = iota
	InputVote
	InputProposal
	InputPropose
	InputProposedValue
	InputTimeoutElapsed
	InputPolkaCertificate
	InputRoundCertificate
	InputCommitCertificate
	InputSyncValueResponse
	InputVoteSetRequest
	InputWalReplayEntry
	InputWalReplayDone
)

// ProposedValueOrigin distinguishes a value delivered through ordinary
// consensus message flow from one fetched via Value Sync (spec.md §4.5).
type ProposedValueOrigin uint8

const (
	OriginConsensus ProposedValueOrigin = iota
	OriginSync
)

// Input is the flat sum type fed to Kernel.Submit; only fields relevant to
// Kind are populated, mirroring Effect's own shape.
type Input struct {
	Kind InputKind

	Height       types.Height
	ValidatorSet *types.ValidatorSet
	Recovering   bool // StartHeight: host's verdict from inspecting the WAL header

	Vote     *message.Vote
	Proposal *message.Proposal

	Round      types.Round
	Value      types.ValueID
	ValidRound types.Round
	Valid      bool
	Origin     ProposedValueOrigin

	TimeoutKind  TimeoutKind
	TimeoutRound types.Round

	Certificate *message.Certificate

	RequestID string
	Peer      string

	WalEntry *wal.Entry
}

// Kernel implements C5: the consensus kernel. It owns nothing about
// transport or storage directly — every externally-visible action is an
// Effect the host performs and resumes (C4). It is single-threaded: inputs
// are processed one at a time by a dedicated goroutine, matching the
// "cooperative" contract of spec.md §4.4.
type Kernel struct {
	self   types.Address
	cfg    *Config
	scheme signing.Scheme
	log    log.Logger

	msgStore *MsgStore
	metrics  *metrics.Handle

	height types.Height
	set    *types.ValidatorSet
	vk     *votekeeper.Keeper
	driver *driver.Driver

	started    bool
	decided    bool
	recovering bool
	pending    []Input

	inputs  chan Input
	effects chan Effect
	resumes chan Resume
}

// NewKernel constructs a Kernel. scheme is used only for verification and
// signature aggregation — signing itself stays a host-owned effect since it
// requires custody of the private key (spec.md §1 Non-goals).
func NewKernel(self types.Address, cfg *Config, scheme signing.Scheme, logger log.Logger) *Kernel {
	return &Kernel{
		self:     self,
		cfg:      cfg,
		scheme:   scheme,
		log:      logger,
		msgStore: NewMsgStore(),
		metrics:  metrics.New(gethmetrics.NewRegistry()),
		vk:       votekeeper.New(cfg.MaxFutureHeights),
		inputs:   make(chan Input, 64),
		effects:  make(chan Effect),
		resumes:  make(chan Resume),
	}
}

// Effects is the channel the host drains: for every Effect received, the
// host performs it and calls Resume with the matching result before
// reading the next Effect (spec.md §4.4's (c)-(d) steps).
func (k *Kernel) Effects() <-chan Effect { return k.effects }

// Submit enqueues an Input for processing. It never blocks the caller
// beyond the channel buffer.
func (k *Kernel) Submit(in Input) { k.inputs <- in }

// Resume answers the most recently yielded Effect.
func (k *Kernel) Resume(r Resume) { k.resumes <- r }

// Run starts the kernel's single processing goroutine; it exits when ctx
// is cancelled, closing the Effects channel.
func (k *Kernel) Run(ctx context.Context) {
	go func() {
		defer close(k.effects)
		for {
			select {
			case in := <-k.inputs:
				k.process(in)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// yield sends eff to the host and blocks until Resume is called — the
// coroutine-suspension point of the effect/resume contract.
func (k *Kernel) yield(eff Effect) Resume {
	k.effects <- eff
	return <-k.resumes
}

func (k *Kernel) process(in Input) {
	if k.recovering && in.Kind != InputWalReplayEntry && in.Kind != InputWalReplayDone {
		k.pending = append(k.pending, in)
		return
	}
	switch in.Kind {
	case InputStartHeight:
		k.handleStartHeight(in)
	case InputVote:
		k.ingestVote(in.Vote, false)
	case InputProposal:
		k.ingestProposal(in.Proposal, false)
	case InputPropose:
		k.ingestPropose(in.Height, in.Round, in.Value, false, nil)
	case InputProposedValue:
		k.ingestProposedValue(in.Height, in.Round, in.Value, in.Valid, false)
	case InputTimeoutElapsed:
		k.ingestTimeout(in.TimeoutKind, in.TimeoutRound, false)
	case InputPolkaCertificate:
		k.handlePolkaCertificate(in)
	case InputRoundCertificate:
		k.handleRoundCertificate(in)
	case InputCommitCertificate, InputSyncValueResponse:
		k.handleCommitCertificate(in)
	case InputVoteSetRequest:
		k.handleVoteSetRequest(in)
	case InputWalReplayEntry:
		k.handleWalReplayEntry(in)
	case InputWalReplayDone:
		k.handleWalReplayDone()
	}
}

func (k *Kernel) handleStartHeight(in Input) {
	k.height = in.Height
	k.set = in.ValidatorSet
	k.metrics.Height.Update(int64(in.Height))
	k.vk.SetValidatorSet(in.Height, in.ValidatorSet)
	k.vk.SetHeight(in.Height, 0)
	k.driver = driver.New(in.Height, in.ValidatorSet, k.self, k.vk)
	k.decided = false
	k.started = false

	if in.Recovering {
		k.recovering = true
		return
	}
	k.beginRound(0)
}

func (k *Kernel) beginRound(r types.Round) {
	k.metrics.Round.Update(int64(r))
	k.vk.SetHeight(k.height, r)
	actions := k.driver.StartRound(r)
	k.started = true
	k.emitActions(actions)
}

func (k *Kernel) handleWalReplayEntry(in Input) {
	e := in.WalEntry
	switch e.Kind {
	case wal.EntryProposal:
		k.ingestProposal(e.Proposal, true)
	case wal.EntryVote:
		k.ingestVote(e.Vote, true)
	case wal.EntryProposedOwnValue:
		k.ingestPropose(e.Height, e.Round, e.Value, true, e.Proposal)
	case wal.EntryProposedValue:
		k.ingestProposedValue(e.Height, e.Round, e.Value, e.Valid, true)
	case wal.EntryTimeoutElapsed:
		k.ingestTimeout(TimeoutKind(e.TimeoutKind), e.TimeoutRound, true)
	}
}

func (k *Kernel) handleWalReplayDone() {
	k.recovering = false
	if !k.started {
		k.beginRound(0)
	}
	pending := k.pending
	k.pending = nil
	for _, p := range pending {
		k.process(p)
	}
}

func (k *Kernel) ingestVote(v *message.Vote, fromReplay bool) {
	validator, ok := k.set.Get(v.Voter)
	if !ok {
		return // B3: signer not in the height's validator set
	}
	sig, err := k.scheme.Decode(v.Signature)
	if err != nil {
		return
	}
	if !k.scheme.Verify(validator.PublicKey, signing.VoteSignBytes(uint8(v.Kind), v.Height, v.Round, v.Value), sig) {
		k.log.Debug("dropping vote with invalid signature", "voter", v.Voter)
		return
	}
	if !fromReplay {
		k.yield(Effect{Kind: EffectWalAppend, WalEntry: &wal.Entry{Kind: wal.EntryVote, Height: v.Height, Round: v.Round, Vote: v}})
	}
	k.msgStore.Save(v)

	if v.Kind == message.KindPrevote {
		k.metrics.Prevotes.Inc(1)
	} else {
		k.metrics.Precommits.Inc(1)
	}
	events, equiv := k.vk.AddVote(v.Height, v.Round, v.Kind, v.Voter, v.Value)
	if equiv != nil {
		k.metrics.Equivocations.Inc(1)
		k.log.Warn("equivocating vote observed", "signer", equiv.Signer, "height", equiv.Height, "round", equiv.Round)
	}
	for _, ev := range events {
		k.emitActions(k.driver.ReceiveThresholdEvent(ev))
	}
	k.emitActions(k.driver.PollPolkaPrevious(v.Round))
}

func (k *Kernel) ingestProposal(p *message.Proposal, fromReplay bool) {
	validator, ok := k.set.Get(p.Proposer)
	if !ok {
		return
	}
	sig, err := k.scheme.Decode(p.Signature)
	if err != nil {
		return
	}
	if !k.scheme.Verify(validator.PublicKey, signing.ProposalSignBytes(p.Height, p.Round, p.Value, p.ValidRound), sig) {
		k.log.Debug("dropping proposal with invalid signature", "proposer", p.Proposer)
		return
	}
	if !fromReplay {
		k.yield(Effect{Kind: EffectWalAppend, WalEntry: &wal.Entry{Kind: wal.EntryProposal, Height: p.Height, Round: p.Round, Proposal: p}})
	}
	k.msgStore.Save(p)
	k.metrics.Proposals.Inc(1)

	actions, err := k.driver.ReceiveProposal(p)
	if err != nil {
		k.log.Debug("dropping proposal", "err", err)
		return
	}
	k.emitActions(actions)
}

// ingestPropose handles the host's response to a prior GetValue effect
// (existing is nil) or a replayed own-proposed-value entry (existing is
// the already-signed proposal).
func (k *Kernel) ingestPropose(h types.Height, r types.Round, value types.ValueID, fromReplay bool, existing *message.Proposal) {
	var proposal *message.Proposal
	if fromReplay {
		proposal = existing
	} else {
		_, validRound, reuse := k.driver.ValueToPropose()
		if !reuse {
			validRound = types.NoRound
		}
		resume := k.yield(Effect{Kind: EffectSignProposal, ProposalToSign: &message.Proposal{
			Height: h, Round: r, Value: value, ValidRound: validRound, Proposer: k.self,
		}})
		proposal = resume.SignedProposal
		if proposal == nil {
			return
		}
		k.yield(Effect{Kind: EffectWalAppend, WalEntry: &wal.Entry{Kind: wal.EntryProposedOwnValue, Height: h, Round: r, Value: value, Proposal: proposal}})
	}

	k.msgStore.Save(proposal)
	k.yield(Effect{Kind: EffectWalFlush})
	k.yield(Effect{Kind: EffectPublish, SignedMsg: proposal})

	actions, _ := k.driver.ReceiveProposal(proposal)
	k.emitActions(actions)
	k.emitActions(k.driver.ReceiveProposedValue(h, r, value, true))
}

func (k *Kernel) ingestProposedValue(h types.Height, r types.Round, value types.ValueID, valid bool, fromReplay bool) {
	if !fromReplay {
		k.yield(Effect{Kind: EffectWalAppend, WalEntry: &wal.Entry{Kind: wal.EntryProposedValue, Height: h, Round: r, Value: value, Valid: valid}})
	}
	k.emitActions(k.driver.ReceiveProposedValue(h, r, value, valid))
	k.emitActions(k.driver.PollPolkaPrevious(r))
}

func (k *Kernel) ingestTimeout(kind TimeoutKind, scheduledRound types.Round, fromReplay bool) {
	k.metrics.Timeouts.Inc(1)
	if !fromReplay {
		k.yield(Effect{Kind: EffectWalAppend, WalEntry: &wal.Entry{
			Kind: wal.EntryTimeoutElapsed, Height: k.height, Round: scheduledRound,
			TimeoutKind: uint8(kind), TimeoutRound: scheduledRound,
		}})
	}
	var evKind statemachine.EventKind
	switch kind {
	case TimeoutPropose:
		evKind = statemachine.EvTimeoutPropose
	case TimeoutPrevote:
		evKind = statemachine.EvTimeoutPrevote
	case TimeoutPrecommit:
		evKind = statemachine.EvTimeoutPrecommit
	}
	k.emitActions(k.driver.TimeoutElapsed(evKind, scheduledRound))
}

func (k *Kernel) handlePolkaCertificate(in Input) {
	resume := k.yield(Effect{Kind: EffectVerifyPolkaCertificate, Certificate: in.Certificate})
	if resume.Err != nil {
		return
	}
	ev := votekeeper.ThresholdEvent{Kind: votekeeper.PolkaValue, Height: in.Certificate.Height, Round: in.Certificate.Round, Value: in.Certificate.Value}
	k.emitActions(k.driver.ReceiveThresholdEvent(ev))
}

func (k *Kernel) handleRoundCertificate(in Input) {
	resume := k.yield(Effect{Kind: EffectVerifyPolkaCertificate, Certificate: in.Certificate})
	if resume.Err != nil {
		return
	}
	ev := votekeeper.ThresholdEvent{Kind: votekeeper.SkipRound, Height: in.Certificate.Height, Round: in.Certificate.Round}
	k.emitActions(k.driver.ReceiveThresholdEvent(ev))
}

func (k *Kernel) handleCommitCertificate(in Input) {
	if in.Certificate.Height < k.height {
		return // stale; a Sync server request answers this instead of the kernel
	}
	resume := k.yield(Effect{Kind: EffectVerifyCommitCertificate, Certificate: in.Certificate})
	if resume.Err != nil {
		return
	}
	k.decideWith(in.Certificate.Height, in.Certificate.Round, in.Certificate.Value, in.Certificate)
}

func (k *Kernel) handleVoteSetRequest(in Input) {
	k.yield(Effect{Kind: EffectWalFlush})
	prevotes := k.msgStore.AllForRound(in.Height, in.Round, message.PrevoteCode)
	precommits := k.msgStore.AllForRound(in.Height, in.Round, message.PrecommitCode)
	votes := make([]*message.Vote, 0, len(prevotes)+len(precommits))
	for _, m := range prevotes {
		if v, ok := m.(*message.Vote); ok {
			votes = append(votes, v)
		}
	}
	for _, m := range precommits {
		if v, ok := m.(*message.Vote); ok {
			votes = append(votes, v)
		}
	}
	k.yield(Effect{Kind: EffectSendVoteSetResponse, RequestID: in.RequestID, Peer: in.Peer, Votes: votes})
}

// decideWith externalizes a decision: WAL flush, then Decide, exactly once
// per height (spec.md §4.5's "Decision path" steps 1-2; steps 3-4 are the
// host's responsibility, triggered by its own StartHeight(h+1) call after
// observing the Decide effect).
func (k *Kernel) decideWith(h types.Height, r types.Round, value types.ValueID, cert *message.Certificate) {
	if k.decided {
		return
	}
	k.decided = true
	k.metrics.Decisions.Inc(1)
	k.yield(Effect{Kind: EffectWalFlush})
	k.yield(Effect{Kind: EffectDecide, CommitCertificate: cert})
}

// emitActions lowers statemachine Actions into Effects, yields each to the
// host, folds back any resume that demands further kernel-side work (e.g. a
// signed vote must still be stored, flushed and published), and handles
// ActionDecide by assembling a commit certificate from locally observed
// precommits.
func (k *Kernel) emitActions(actions []statemachine.Action) {
	if len(actions) == 0 {
		return
	}
	for _, a := range actions {
		if a.Kind == statemachine.ActionDecide {
			cert := k.assembleCommitCertificate(a.Round, a.Value)
			k.decideWith(k.height, a.Round, a.Value, cert)
			continue
		}
		if a.Kind == statemachine.ActionStartRound {
			// The machine only signals that the round advanced; the kernel
			// must itself drive the new round's NewRound transition
			// (propose timeout, proposer value request) via beginRound, or
			// a height that doesn't decide in round 0 simply hangs.
			k.yield(Effect{Kind: EffectStartRound, Height: k.height, Round: a.Round})
			k.beginRound(a.Round)
			continue
		}
		for _, eff := range k.actionsToEffects([]statemachine.Action{a}) {
			resume := k.yield(eff)
			k.consumeResume(eff, resume)
		}
	}
}

// consumeResume performs the kernel-side bookkeeping that must follow a
// particular Effect's resume: a freshly signed vote must still be WAL
// appended, flushed, published, and folded back into the vote keeper (a
// process's own vote counts toward quorum exactly like any peer's).
func (k *Kernel) consumeResume(eff Effect, r Resume) {
	if eff.Kind != EffectSignVote {
		return
	}
	vote := r.SignedVote
	if vote == nil {
		return
	}
	k.yield(Effect{Kind: EffectWalAppend, WalEntry: &wal.Entry{Kind: wal.EntryVote, Height: vote.Height, Round: vote.Round, Vote: vote}})
	k.msgStore.Save(vote)
	k.yield(Effect{Kind: EffectWalFlush})
	k.yield(Effect{Kind: EffectPublish, SignedMsg: vote})

	events, _ := k.vk.AddVote(vote.Height, vote.Round, vote.Kind, vote.Voter, vote.Value)
	for _, ev := range events {
		k.emitActions(k.driver.ReceiveThresholdEvent(ev))
	}
}

// assembleCommitCertificate aggregates every stored precommit for (round,
// value) into one Certificate, addressed by a Signers bitset over the
// height's validator set (message/certificate.go, grounded on
// core/types/bft_test.go's AggregateSignature shape).
func (k *Kernel) assembleCommitCertificate(r types.Round, value types.ValueID) *message.Certificate {
	precommits := k.msgStore.AllForRound(k.height, r, message.PrecommitCode)
	signers := message.NewSigners(k.set.Len())
	var sigs []signing.Signature
	for addr, m := range precommits {
		v, ok := m.(*message.Vote)
		if !ok || v.Value != value {
			continue
		}
		idx, ok := k.set.IndexOf(addr)
		if !ok {
			continue
		}
		sig, err := k.scheme.Decode(v.Signature)
		if err != nil {
			continue
		}
		signers.Set(idx)
		sigs = append(sigs, sig)
	}
	var sigBytes []byte
	if agg, err := k.scheme.Aggregate(sigs); err == nil && agg != nil {
		sigBytes = agg.Bytes()
	}
	cert := message.CommitCertificate(k.height, r, value, message.AggregateSignature{Signature: sigBytes, Signers: signers})
	return &cert
}
