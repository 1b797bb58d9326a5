package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/sparse-blobpool/blobsim/sim"
	"github.com/sparse-blobpool/blobsim/sim/protocol"
)

// PrometheusSink exports sink calls as Prometheus counters.
type PrometheusSink struct {
	bandwidthBytes *prometheus.CounterVec
	messages       prometheus.Counter
	txSeen         *prometheus.CounterVec
	cellsHeld      prometheus.Counter
	fetchResults   *prometheus.CounterVec
	inclusions     prometheus.Counter
}

// NewPrometheusSink creates the counters and registers them on reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	s := &PrometheusSink{
		bandwidthBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blobsim",
			Name:      "bandwidth_bytes_total",
			Help:      "Bytes handed to the transport, by control or data class.",
		}, []string{"class"}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blobsim",
			Name:      "messages_total",
			Help:      "Messages handed to the transport.",
		}),
		txSeen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blobsim",
			Name:      "tx_seen_total",
			Help:      "First sightings of a transaction by a node, by assigned role.",
		}, []string{"role"}),
		cellsHeld: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blobsim",
			Name:      "cells_held_total",
			Help:      "Columns held by nodes when a transaction became available there.",
		}),
		fetchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blobsim",
			Name:      "fetch_results_total",
			Help:      "Completed fetches by outcome.",
		}, []string{"result"}),
		inclusions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blobsim",
			Name:      "inclusions_total",
			Help:      "Blob transactions included in a block.",
		}),
	}
	for _, c := range []prometheus.Collector{s.bandwidthBytes, s.messages, s.txSeen, s.cellsHeld, s.fetchResults, s.inclusions} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering blobsim metrics: %w", err)
		}
	}
	return s, nil
}

// RecordBandwidth implements Sink.
func (s *PrometheusSink) RecordBandwidth(_, _ sim.ActorID, kind string, size int) {
	class := "control"
	if protocol.IsDataKind(kind) {
		class = "data"
	}
	s.bandwidthBytes.WithLabelValues(class).Add(float64(size))
	s.messages.Inc()
}

// RecordTxSeen implements Sink.
func (s *PrometheusSink) RecordTxSeen(_ sim.ActorID, _ protocol.TxHash, role protocol.Role) {
	s.txSeen.WithLabelValues(role.String()).Inc()
}

// RecordCellsHeld implements Sink.
func (s *PrometheusSink) RecordCellsHeld(_ sim.ActorID, _ protocol.TxHash, held protocol.CellMask) {
	s.cellsHeld.Add(float64(held.Count()))
}

// RecordFetchResult implements Sink.
func (s *PrometheusSink) RecordFetchResult(_ protocol.TxHash, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	s.fetchResults.WithLabelValues(result).Inc()
}

// RecordInclusion implements Sink.
func (s *PrometheusSink) RecordInclusion(protocol.TxHash, uint64) {
	s.inclusions.Inc()
}

// Snapshot gathers every counter from g as "name{label=value}" → value.
func Snapshot(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("gathering metrics: %w", err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			out[seriesName(mf, m)] = m.GetCounter().GetValue()
		}
	}
	return out, nil
}

func seriesName(mf *dto.MetricFamily, m *dto.Metric) string {
	labels := m.GetLabel()
	if len(labels) == 0 {
		return mf.GetName()
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, l.GetName()+"="+l.GetValue())
	}
	sort.Strings(parts)
	return mf.GetName() + "{" + strings.Join(parts, ",") + "}"
}
