// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utilmetric

import (
	"errors"

	"github.com/luxfi/metric"

	"github.com/luxfi/photon/utils/wrappers"
)

var ErrFailedRegistering = errors.New("failed registering metric")

type Averager interface {
	Observe(float64)
}

type averager struct {
	count metric.Counter
	sum   metric.Gauge
}

func NewAverager(name, desc string, registerer metric.Registerer) (Averager, error) {
	errs := wrappers.Errs{}
	a := NewAveragerWithErrs(name, desc, registerer, &errs)
	return a, errs.Err
}

func NewAveragerWithErrs(name, desc string, registerer metric.Registerer, errs *wrappers.Errs) Averager {
	a := averager{
		count: metric.NewCounter(metric.CounterOpts{
			Name: AppendNamespace(name, "count"),
			Help: "Total # of observations of " + desc,
		}),
		sum: metric.NewGauge(metric.GaugeOpts{
			Name: AppendNamespace(name, "sum"),
			Help: "Sum of " + desc,
		}),
	}

	if err := registerer.Register(metric.AsCollector(a.count)); err != nil {
		errs.Add(errors.Join(ErrFailedRegistering, err))
	}
	if err := registerer.Register(metric.AsCollector(a.sum)); err != nil {
		errs.Add(errors.Join(ErrFailedRegistering, err))
	}
	return &a
}

func (a *averager) Observe(v float64) {
	a.count.Inc()
	a.sum.Add(v)
}

// AppendNamespace joins a metric namespace and name with an underscore.
func AppendNamespace(namespace, name string) string {
	switch {
	case namespace == "":
		return name
	case name == "":
		return namespace
	default:
		return namespace + "_" + name
	}
}
