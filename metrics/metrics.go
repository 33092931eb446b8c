// Package metrics wraps go-ethereum/metrics into the handful of gauges and
// counters the consensus kernel reports, grounded on the teacher fork's own
// "tendermint/height/change", "tendermint/round/change",
// "tendermint/timer/propose" style metric names
// (consensus/tendermint/core/core_test.go in the pack's markall93-autonity
// fork). The handle is constructed once and injected at kernel
// construction rather than reached for globally, so multiple Kernels in the
// same process (as in tests) never collide on one registry.
package metrics

import "github.com/ethereum/go-ethereum/metrics"

// Handle is the metrics surface a Kernel reports through. Every field is a
// go-ethereum/metrics handle already registered against the Registry passed
// to New; nil fields never occur, callers always get working (possibly
// disabled, per metrics.Enabled) meters.
type Handle struct {
	Height     metrics.Gauge
	Round      metrics.Gauge
	Decisions  metrics.Counter
	Proposals  metrics.Counter
	Prevotes   metrics.Counter
	Precommits metrics.Counter
	Timeouts   metrics.Counter
	Equivocations metrics.Counter
}

// New registers and returns a fresh Handle against r. Passing
// metrics.NewRegistry() gives each Kernel (e.g. each in a test or each
// height-shard in a multi-chain host) its own isolated set of meters;
// passing metrics.DefaultRegistry wires into the process-wide registry a
// host's metrics HTTP endpoint already serves.
func New(r metrics.Registry) *Handle {
	return &Handle{
		Height:        metrics.NewRegisteredGauge("consensus/height", r),
		Round:         metrics.NewRegisteredGauge("consensus/round", r),
		Decisions:     metrics.NewRegisteredCounter("consensus/decisions", r),
		Proposals:     metrics.NewRegisteredCounter("consensus/proposals", r),
		Prevotes:      metrics.NewRegisteredCounter("consensus/votes/prevote", r),
		Precommits:    metrics.NewRegisteredCounter("consensus/votes/precommit", r),
		Timeouts:      metrics.NewRegisteredCounter("consensus/timeouts", r),
		Equivocations: metrics.NewRegisteredCounter("consensus/equivocations", r),
	}
}
