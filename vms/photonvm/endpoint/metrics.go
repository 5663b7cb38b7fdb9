// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"errors"

	"github.com/luxfi/metric"
)

type metrics struct {
	loaded           metric.Counter
	approved         metric.Counter
	executed         metric.Counter
	handlerFailures  metric.Counter
	proposals        metric.Counter
	acceptedSigners  metric.Counter
	rejectedRequests metric.CounterVec
}

func newMetrics(registerer metric.Registerer) (*metrics, error) {
	m := &metrics{
		loaded: metric.NewCounter(metric.CounterOpts{
			Name: "photon_operations_loaded",
			Help: "Number of operations loaded",
		}),
		approved: metric.NewCounter(metric.CounterOpts{
			Name: "photon_operations_approved",
			Help: "Number of operations that reached consensus",
		}),
		executed: metric.NewCounter(metric.CounterOpts{
			Name: "photon_operations_executed",
			Help: "Number of operations marked executed",
		}),
		handlerFailures: metric.NewCounter(metric.CounterOpts{
			Name: "photon_handler_failures",
			Help: "Number of failed handler invocations",
		}),
		proposals: metric.NewCounter(metric.CounterOpts{
			Name: "photon_proposals",
			Help: "Number of outbound proposals emitted",
		}),
		acceptedSigners: metric.NewCounter(metric.CounterOpts{
			Name: "photon_accepted_signers",
			Help: "Number of unique transmitter signatures recorded",
		}),
		rejectedRequests: metric.NewCounterVec(metric.CounterOpts{
			Name: "photon_rejected_requests",
			Help: "Number of endpoint calls that failed, by call",
		}, []string{"call"}),
	}

	err := errors.Join(
		registerer.Register(metric.AsCollector(m.loaded)),
		registerer.Register(metric.AsCollector(m.approved)),
		registerer.Register(metric.AsCollector(m.executed)),
		registerer.Register(metric.AsCollector(m.handlerFailures)),
		registerer.Register(metric.AsCollector(m.proposals)),
		registerer.Register(metric.AsCollector(m.acceptedSigners)),
		registerer.Register(metric.AsCollector(m.rejectedRequests)),
	)
	return m, err
}

func (m *metrics) reject(call string, err error) error {
	if err != nil {
		m.rejectedRequests.WithLabelValues(call).Inc()
	}
	return err
}
