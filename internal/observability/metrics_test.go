package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveLoad(t *testing.T) {
	m := NewMetricsForTesting()

	m.ObserveLoad(nil, time.Second, 209557)
	m.ObserveLoad(errors.New("boom"), time.Second, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Loads.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Loads.WithLabelValues("error")))
	assert.Equal(t, 209557.0, testutil.ToFloat64(m.Records))
}

func TestObserveQueryAndCache(t *testing.T) {
	m := NewMetricsForTesting()

	m.ObserveQuery("prefix", time.Millisecond, 3)
	m.ObserveQuery("prefix", time.Millisecond, 0)
	m.ObserveQuery("all", time.Millisecond, 10)
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Queries.WithLabelValues("prefix")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Queries.WithLabelValues("all")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cache.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Cache.WithLabelValues("miss")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.QueryResults))
}

func TestObserveMutation(t *testing.T) {
	m := NewMetricsForTesting()

	m.ObserveMutation("insert", true, 5)
	m.ObserveMutation("remove", false, 5)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Mutations.WithLabelValues("insert", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Mutations.WithLabelValues("remove", "ignored")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Records))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveLoad(nil, time.Second, 1)
		m.ObserveQuery("prefix", time.Second, 1)
		m.ObserveCache(true)
		m.ObserveMutation("insert", true, 1)
	})
}
