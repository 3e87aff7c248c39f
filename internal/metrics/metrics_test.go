package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NilRegisterer(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	// nil receivers are safe
	m.Transfer(ResultUploaded)
	m.Delete(errors.New("x"))
	m.Orphans(2)
	m.Uploaded(10)
	m.Observe("uploadOne", time.Now())
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.Transfer(ResultUploaded)
	m.Transfer(ResultUploaded)
	m.Transfer(ResultPassthrough)
	m.Delete(nil)
	m.Delete(errors.New("denied"))
	m.Orphans(3)
	m.Orphans(0)
	m.Uploaded(512)
	m.Observe("uploadMany", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transfers.WithLabelValues(ResultUploaded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transfers.WithLabelValues(ResultPassthrough)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deletes.WithLabelValues(ResultDeleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deletes.WithLabelValues(ResultFailed)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.orphans))
	assert.Equal(t, 512.0, testutil.ToFloat64(m.uploadedBytes))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestNew_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(reg)
	require.NoError(t, err)
	second, err := New(reg)
	require.NoError(t, err)

	first.Orphans(1)
	second.Orphans(1)
	assert.Equal(t, 2.0, testutil.ToFloat64(first.orphans))
}
