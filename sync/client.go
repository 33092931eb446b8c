package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bft-core/engine/types"
)

// rangeChunkSize bounds how many heights one GetValueRequest asks for, so
// a wide catch-up range is split across several parallel requests instead
// of one unbounded one.
const rangeChunkSize = 16

// RequestTransport is the network surface Client calls into; a host wires
// this to its actual peer connections the same way core.Transport is the
// seam for the kernel's own effects.
type RequestTransport interface {
	SendGetValueRequest(ctx context.Context, peer types.Address, req GetValueRequest) (GetValueResponse, error)
}

// CertificateVerifier checks a DecidedValue's commit certificate against
// the validator set for its height; Client discards the whole response on
// the first invalid entry (spec.md §4.7 "Validation").
type CertificateVerifier func(dv DecidedValue) error

// ClientConfig mirrors core.Config's sync_* fields (core/config.go), kept
// separate so this package doesn't import core.
type ClientConfig struct {
	ParallelRequests int
	RequestTimeout   time.Duration
}

// Client is the catch-up side of Value Sync (spec.md §4.7): it tracks peers
// via Status broadcasts and, once behind, fetches decided ranges from
// whichever peer scores best.
type Client struct {
	self      types.Address
	cfg       ClientConfig
	peers     *PeerTable
	transport RequestTransport
	verify    CertificateVerifier
	deliver   func(DecidedValue)

	tipHeight types.Height
}

// NewClient constructs a Client. deliver is called once per verified
// DecidedValue, in height order within a single range fetch; a host wires
// it to submit core.Input{Kind: InputSyncValueResponse, ...} to the kernel.
func NewClient(self types.Address, cfg ClientConfig, transport RequestTransport, verify CertificateVerifier, deliver func(DecidedValue)) *Client {
	return &Client{
		self:      self,
		cfg:       cfg,
		peers:     NewPeerTable(),
		transport: transport,
		verify:    verify,
		deliver:   deliver,
	}
}

// Status folds an observed peer Status into the peer table.
func (c *Client) Status(st Status) { c.peers.Observe(st) }

// Decided advances the client's known tip, matching spec.md §4.7's "On
// Decided(h): update tip_height".
func (c *Client) Decided(h types.Height) {
	if h > c.tipHeight {
		c.tipHeight = h
	}
}

// CatchUpTo fetches every decided value in (tipHeight, target] from
// whichever peers score best, splitting the range into rangeChunkSize-wide
// requests bounded to cfg.ParallelRequests concurrent in flight
// (golang.org/x/sync/errgroup, same bounded-fan-out idiom the rest of the
// pack uses for worker pools). Each chunk is sent to one peer (the
// best-scoring peer ahead of the chunk's end, else ahead of its start); a
// chunk whose request fails, times out or carries an invalid certificate
// penalizes that peer and is not re-sent to another peer within this call.
// It returns once every chunk's single request has completed.
func (c *Client) CatchUpTo(ctx context.Context, target types.Height) error {
	if target <= c.tipHeight {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	limit := c.cfg.ParallelRequests
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for from := c.tipHeight + 1; from <= target; from += rangeChunkSize {
		from := from
		to := from + rangeChunkSize - 1
		if to > target {
			to = target
		}
		g.Go(func() error {
			return c.fetchRange(ctx, from, to)
		})
	}
	return g.Wait()
}

func (c *Client) fetchRange(ctx context.Context, from, to types.Height) error {
	peer, ok := c.peers.BestAhead(to)
	if !ok {
		peer, ok = c.peers.BestAhead(from)
	}
	if !ok {
		return nil // no ahead peer known yet; a later CatchUpTo call retries
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout())
	defer cancel()

	resp, err := c.transport.SendGetValueRequest(reqCtx, peer, GetValueRequest{
		RequestID:  uuid.NewString(),
		FromHeight: from,
		ToHeight:   to,
	})
	if err != nil {
		c.peers.Penalize(peer)
		return nil // a timed-out/failed range is left for a later CatchUpTo call, not fatal to the group
	}

	for _, dv := range resp.Values {
		if err := c.verify(dv); err != nil {
			c.peers.Penalize(peer)
			return nil // whole response discarded on first invalid certificate (§4.7)
		}
	}
	c.peers.Reward(peer)
	for _, dv := range resp.Values {
		c.deliver(dv)
	}
	return nil
}

func (c *Client) requestTimeout() time.Duration {
	if c.cfg.RequestTimeout <= 0 {
		return 5 * time.Second
	}
	return c.cfg.RequestTimeout
}
