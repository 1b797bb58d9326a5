package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparse-blobpool/blobsim/sim/protocol"
)

func TestPrometheusSink_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	tx := protocol.TxHash{1}
	s.RecordBandwidth("a", "b", protocol.KindCells, 300)
	s.RecordBandwidth("b", "a", protocol.KindGetCells, 200)
	s.RecordTxSeen("a", tx, protocol.RoleProvider)
	s.RecordCellsHeld("b", tx, protocol.MaskOf(1, 2, 3))
	s.RecordTxSeen("b", tx, protocol.RoleSampler)
	s.RecordTxSeen("c", tx, protocol.RoleSampler)
	s.RecordFetchResult(tx, true)
	s.RecordFetchResult(tx, false)
	s.RecordInclusion(tx, 1)

	assert.Equal(t, 300.0, testutil.ToFloat64(s.bandwidthBytes.WithLabelValues("data")))
	assert.Equal(t, 200.0, testutil.ToFloat64(s.bandwidthBytes.WithLabelValues("control")))
	assert.Equal(t, 3.0, testutil.ToFloat64(s.cellsHeld))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.messages))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.txSeen.WithLabelValues("sampler")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.fetchResults.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.inclusions))

	snap, err := Snapshot(reg)
	require.NoError(t, err)
	assert.Equal(t, 300.0, snap["blobsim_bandwidth_bytes_total{class=data}"])
	assert.Equal(t, 200.0, snap["blobsim_bandwidth_bytes_total{class=control}"])
	assert.Equal(t, 1.0, snap["blobsim_tx_seen_total{role=provider}"])
	assert.Equal(t, 1.0, snap["blobsim_fetch_results_total{result=success}"])
}

func TestPrometheusSink_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	assert.Error(t, err)
}
