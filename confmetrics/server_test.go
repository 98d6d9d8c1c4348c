package confmetrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuildsServer(t *testing.T) {
	srv, err := New("confchannel_test_a", "127.0.0.1:0")
	require.NoError(t, err)
	assert.NotNil(t, srv)
}

func TestNewSessionMetricsRegistersDistinctNamespace(t *testing.T) {
	m := NewSessionMetrics("confchannel_test_b")
	require.NotNil(t, m)
	m.KeyRequestsTotal.WithLabelValues("ok").Inc()
	m.RequestsTotal.WithLabelValues("ok").Inc()
	m.KeyRolloversTotal.Inc()
	m.RequestDuration.Observe(0.01)
}
