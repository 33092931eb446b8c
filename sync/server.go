package sync

import (
	"golang.org/x/time/rate"

	"github.com/bft-core/engine/message"
	"github.com/bft-core/engine/types"
)

// ValueStore is the read-only view into the application's decided-value
// store a Server answers requests from (spec.md §4.7 "Server side": "fetch
// the decided value and its commit certificate... from the application's
// store"). The consensus kernel itself never serves these directly — this
// mirrors §5's "Application store... read-only from this process's
// consensus kernel via effect", generalized to the sync server's own
// read path.
type ValueStore interface {
	Decided(h types.Height) (types.ValueID, *message.Certificate, bool)
}

// Server answers GetValueRequests and produces Status broadcasts, both
// rate-limited with golang.org/x/time/rate so a flood of catch-up peers
// can't turn this process into their bottleneck.
type Server struct {
	self  types.Address
	store ValueStore

	requestLimiter *rate.Limiter
	statusLimiter  *rate.Limiter
}

// NewServer constructs a Server. requestsPerSecond throttles
// GetValueRequest servicing; statusesPerSecond throttles how often
// BuildStatus will actually produce a broadcast.
func NewServer(self types.Address, store ValueStore, requestsPerSecond, statusesPerSecond float64) *Server {
	return &Server{
		self:           self,
		store:          store,
		requestLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		statusLimiter:  rate.NewLimiter(rate.Limit(statusesPerSecond), 1),
	}
}

// HandleGetValueRequest answers req with every decided value it has in
// range, bounded to maxResponseValues (spec.md §4.7 "Bounded response
// size"). A rate-limited or unknown-range request gets an empty response
// rather than an error, matching "respond with a list (possibly empty)".
func (s *Server) HandleGetValueRequest(req GetValueRequest) GetValueResponse {
	resp := GetValueResponse{RequestID: req.RequestID}
	if !s.requestLimiter.Allow() {
		return resp
	}
	for h := req.FromHeight; h <= req.ToHeight; h++ {
		if len(resp.Values) >= maxResponseValues {
			break
		}
		value, cert, ok := s.store.Decided(h)
		if !ok {
			break // no gaps: stop at the first height we don't have
		}
		resp.Values = append(resp.Values, DecidedValue{Height: h, Value: value, Certificate: cert})
	}
	return resp
}

// BuildStatus reports whether a Status broadcast should fire right now and,
// if so, the Status to send (spec.md §4.7 "Status broadcasting").
func (s *Server) BuildStatus(tip, historyMin types.Height) (Status, bool) {
	if !s.statusLimiter.Allow() {
		return Status{}, false
	}
	return Status{Peer: s.self, TipHeight: tip, HistoryMinHeight: historyMin}, true
}
