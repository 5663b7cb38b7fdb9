// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utilmetric

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/rpc/v2"
	"github.com/luxfi/metric"

	"github.com/luxfi/photon/utils/wrappers"
)

type APIInterceptor interface {
	InterceptRequest(i *rpc.RequestInfo) *http.Request
	AfterRequest(i *rpc.RequestInfo)
}

type contextKey int

const requestTimestampKey contextKey = iota

type apiInterceptor struct {
	requestDurationCount metric.CounterVec
	requestDurationSum   metric.GaugeVec
	requestErrors        metric.CounterVec
}

func NewAPIInterceptor(namespace string, registerer metric.Registerer) (APIInterceptor, error) {
	a := &apiInterceptor{
		requestDurationCount: metric.NewCounterVec(
			metric.CounterOpts{
				Name: AppendNamespace(namespace, "request_duration_count"),
				Help: "Number of times this type of request was made",
			},
			[]string{"method"},
		),
		requestDurationSum: metric.NewGaugeVec(
			metric.GaugeOpts{
				Name: AppendNamespace(namespace, "request_duration_sum"),
				Help: "Amount of time in nanoseconds that has been spent handling this type of request",
			},
			[]string{"method"},
		),
		requestErrors: metric.NewCounterVec(
			metric.CounterOpts{
				Name: AppendNamespace(namespace, "request_error_count"),
				Help: "Number of request errors",
			},
			[]string{"method"},
		),
	}

	errs := wrappers.Errs{}
	errs.Add(
		registerer.Register(metric.AsCollector(a.requestDurationCount)),
		registerer.Register(metric.AsCollector(a.requestDurationSum)),
		registerer.Register(metric.AsCollector(a.requestErrors)),
	)
	return a, errs.Err
}

func (*apiInterceptor) InterceptRequest(i *rpc.RequestInfo) *http.Request {
	ctx := i.Request.Context()
	ctx = context.WithValue(ctx, requestTimestampKey, time.Now())
	return i.Request.WithContext(ctx)
}

func (apr *apiInterceptor) AfterRequest(i *rpc.RequestInfo) {
	timestampIntf := i.Request.Context().Value(requestTimestampKey)
	timestamp, ok := timestampIntf.(time.Time)
	if !ok {
		return
	}

	labels := metric.Labels{
		"method": i.Method,
	}
	apr.requestDurationCount.With(labels).Inc()

	duration := time.Since(timestamp)
	apr.requestDurationSum.With(labels).Add(float64(duration))

	if i.Error != nil {
		apr.requestErrors.With(labels).Inc()
	}
}
