// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"errors"

	"github.com/luxfi/metric"

	utilmetric "github.com/luxfi/photon/utils/metric"
	"github.com/luxfi/photon/utils/wrappers"
)

type relayerMetrics struct {
	submissions metric.CounterVec
	executed    metric.Counter
	failed      metric.Counter
	inFlight    metric.Gauge
	// nanoseconds from dequeue to the final status
	duration utilmetric.Averager
}

func newRelayerMetrics(registerer metric.Registerer) (*relayerMetrics, error) {
	m := &relayerMetrics{
		submissions: metric.NewCounterVec(metric.CounterOpts{
			Name: "photon_relay_submissions",
			Help: "Number of transactions submitted, by step",
		}, []string{"step"}),
		executed: metric.NewCounter(metric.CounterOpts{
			Name: "photon_relay_executed",
			Help: "Number of operations that reached Executed",
		}),
		failed: metric.NewCounter(metric.CounterOpts{
			Name: "photon_relay_failed",
			Help: "Number of operations the relay gave up on",
		}),
		inFlight: metric.NewGauge(metric.GaugeOpts{
			Name: "photon_relay_in_flight",
			Help: "Number of operations being processed",
		}),
	}

	errs := wrappers.Errs{}
	m.duration = utilmetric.NewAveragerWithErrs(
		"photon_relay_op_duration",
		"time (in ns) spent driving an operation",
		registerer,
		&errs,
	)
	errs.Add(
		registerer.Register(metric.AsCollector(m.submissions)),
		registerer.Register(metric.AsCollector(m.executed)),
		registerer.Register(metric.AsCollector(m.failed)),
		registerer.Register(metric.AsCollector(m.inFlight)),
	)
	return m, errs.Err
}

type listenerMetrics struct {
	received metric.Counter
	skipped  metric.Counter
}

func newListenerMetrics(registerer metric.Registerer) (*listenerMetrics, error) {
	m := &listenerMetrics{
		received: metric.NewCounter(metric.CounterOpts{
			Name: "photon_relay_received",
			Help: "Number of proposals read from the source journal",
		}),
		skipped: metric.NewCounter(metric.CounterOpts{
			Name: "photon_relay_skipped",
			Help: "Number of proposals not addressed to this chain or malformed",
		}),
	}

	err := errors.Join(
		registerer.Register(metric.AsCollector(m.received)),
		registerer.Register(metric.AsCollector(m.skipped)),
	)
	return m, err
}
