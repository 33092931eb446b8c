package metrics

import (
	"testing"

	gethmetrics "github.com/ethereum/go-ethereum/metrics"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersDistinctMetersPerRegistry(t *testing.T) {
	r1 := gethmetrics.NewRegistry()
	r2 := gethmetrics.NewRegistry()

	h1 := New(r1)
	h2 := New(r2)

	h1.Height.Update(10)
	h2.Height.Update(20)

	require.EqualValues(t, 10, h1.Height.Value())
	require.EqualValues(t, 20, h2.Height.Value())

	h1.Decisions.Inc(1)
	require.EqualValues(t, 1, h1.Decisions.Count())
	require.EqualValues(t, 0, h2.Decisions.Count())
}
