// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utilmetric

import (
	"testing"

	"github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestAverager(t *testing.T) {
	require := require.New(t)

	registry := metric.NewRegistry()
	a, err := NewAverager("test_latency", "test latency", registry)
	require.NoError(err)

	a.Observe(2)
	a.Observe(4)

	avg := a.(*averager)
	require.InDelta(2, testutil.ToFloat64(metric.AsCollector(avg.count)), 0)
	require.InDelta(6, testutil.ToFloat64(metric.AsCollector(avg.sum)), 0)

	_, err = NewAverager("test_latency", "test latency", registry)
	require.ErrorIs(err, ErrFailedRegistering)
}

func TestAPIInterceptorRegistersOnce(t *testing.T) {
	require := require.New(t)

	registry := metric.NewRegistry()
	_, err := NewAPIInterceptor("test_api", registry)
	require.NoError(err)

	_, err = NewAPIInterceptor("test_api", registry)
	require.Error(err) //nolint:forbidigo // duplicate registration error is not exported
}

func TestAppendNamespace(t *testing.T) {
	require := require.New(t)

	require.Equal("a_b", AppendNamespace("a", "b"))
	require.Equal("b", AppendNamespace("", "b"))
	require.Equal("a", AppendNamespace("a", ""))
}
