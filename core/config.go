package core

import (
	"os"
	"time"

	"github.com/naoina/toml"

	"github.com/bft-core/engine/types"
)

// ValuePayloadMode selects how a proposed value traverses the wire
// (spec.md §6).
type ValuePayloadMode uint8

const (
	ValuePayloadProposalOnly ValuePayloadMode = iota
	ValuePayloadPartsOnly
	ValuePayloadProposalAndParts
)

// VoteSyncMode selects the liveness-recovery strategy for votes that may
// not have reached everyone (spec.md §6).
type VoteSyncMode uint8

const (
	VoteSyncRepublishOnTimeout VoteSyncMode = iota
	VoteSyncRequestResponse
)

// Config holds every tunable spec.md §6 names, following the teacher's
// eth/ethconfig/config.go pattern of a flat struct plus a Defaults
// literal, loaded/overridden via naoina/toml.
type Config struct {
	ValuePayload ValuePayloadMode
	VoteSyncMode VoteSyncMode

	TimeoutPropose   time.Duration
	TimeoutPrevote   time.Duration
	TimeoutPrecommit time.Duration
	TimeoutDelta     time.Duration

	MaxFutureRounds  types.Round
	MaxFutureHeights types.Height

	SyncRequestTimeout    time.Duration
	SyncParallelRequests  int
	SyncStatusInterval    time.Duration

	VoteExtensionsEnabled bool
}

// Defaults mirrors the teacher's Defaults = Config{...} convention
// (eth/ethconfig/config.go).
var Defaults = Config{
	ValuePayload: ValuePayloadProposalOnly,
	VoteSyncMode: VoteSyncRequestResponse,

	TimeoutPropose:   3 * time.Second,
	TimeoutPrevote:   1 * time.Second,
	TimeoutPrecommit: 1 * time.Second,
	TimeoutDelta:     500 * time.Millisecond,

	MaxFutureRounds:  10,
	MaxFutureHeights: 5,

	SyncRequestTimeout:   5 * time.Second,
	SyncParallelRequests: 4,
	SyncStatusInterval:   10 * time.Second,

	VoteExtensionsEnabled: false,
}

// GetValueTimeoutMillis is timeout_propose(r) = timeout_propose(0) +
// r*timeout_delta (spec.md §6's additive-increase schedule), used to size
// the GetValue effect's deadline hint.
func (c *Config) GetValueTimeoutMillis(r types.Round) uint64 {
	d := c.TimeoutPropose + time.Duration(r)*c.TimeoutDelta
	return uint64(d.Milliseconds())
}

func (c *Config) timeoutFor(kind TimeoutKind, r types.Round) time.Duration {
	delta := time.Duration(r) * c.TimeoutDelta
	switch kind {
	case TimeoutPropose:
		return c.TimeoutPropose + delta
	case TimeoutPrevote:
		return c.TimeoutPrevote + delta
	case TimeoutPrecommit:
		return c.TimeoutPrecommit + delta
	default:
		return c.TimeoutPropose
	}
}

// LoadConfig reads a TOML file into a copy of Defaults, the way
// eth/ethconfig's node config loader layers file overrides onto the
// package Defaults literal.
func LoadConfig(path string) (*Config, error) {
	cfg := Defaults
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
