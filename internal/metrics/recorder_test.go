package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ephemcp/internal/api"
)

func TestPrometheus_Transition(t *testing.T) {
	p := NewPrometheus()

	p.Transition("", api.StatePending)
	p.Transition(api.StatePending, api.StateReady)
	p.Transition("", api.StatePending)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.servers.WithLabelValues("Pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.servers.WithLabelValues("Ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.transitions.WithLabelValues("Pending", "Ready")))

	// eviction
	p.Transition(api.StateReady, "")
	assert.Equal(t, 0.0, testutil.ToFloat64(p.servers.WithLabelValues("Ready")))
}

func TestPrometheus_Operation(t *testing.T) {
	p := NewPrometheus()

	p.Operation("spawn", nil)
	p.Operation("spawn", api.NewInvalidSpecError("bad port"))
	p.Operation("delete", errors.New("plain"))

	assert.Equal(t, 1.0, testutil.ToFloat64(p.operations.WithLabelValues("spawn", ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.operations.WithLabelValues("spawn", string(api.KindInvalidSpec))))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.operations.WithLabelValues("delete", ResultError)))
}

func TestPrometheus_Handler(t *testing.T) {
	p := NewPrometheus()
	p.ReadyLatency(3 * time.Second)
	p.Retry("CreateComputeUnit")
	p.Reaped("max-lifetime")

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)

	for _, want := range []string{
		"ephemcp_ready_seconds_count 1",
		`ephemcp_control_plane_retries_total{op="CreateComputeUnit"} 1`,
		`ephemcp_reaped_total{reason="max-lifetime"} 1`,
		"go_goroutines",
	} {
		assert.True(t, strings.Contains(text, want), "missing %q", want)
	}
}

func TestNewPrometheus_IndependentRegistries(t *testing.T) {
	a := NewPrometheus()
	b := NewPrometheus()
	a.Retry("x")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.retries.WithLabelValues("x")))
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	r.Transition(api.StatePending, api.StateReady)
	r.Operation("spawn", nil)
	r.ReadyLatency(time.Second)
	r.Retry("x")
	r.Reaped("idle")
}
