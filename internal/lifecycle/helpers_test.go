package lifecycle

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ephemcp/internal/api"
	"ephemcp/internal/config"
	"ephemcp/internal/resolver"
	"ephemcp/internal/testing/mock"
	"ephemcp/internal/workload"
)

const testNamespace = "mcp"

func testConfig() config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Namespace = testNamespace
	cfg.Lifecycle.PollInterval = 10 * time.Millisecond
	cfg.Lifecycle.ReadyTimeout = 2 * time.Second
	cfg.Lifecycle.CreateTimeout = 2 * time.Second
	cfg.Lifecycle.DeleteTimeout = 2 * time.Second
	cfg.Lifecycle.Backoff = config.BackoffConfig{
		Initial: time.Millisecond,
		Factor:  1.0,
		Steps:   3,
		Cap:     5 * time.Millisecond,
	}
	cfg.Resolver.HostTemplate = "{{ .Name }}.svc"
	return cfg
}

// sequentialIDs returns a generator yielding the given ids first and
// srv-<n> afterwards.
func sequentialIDs(ids ...string) IDGenerator {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		if n <= len(ids) {
			return ids[n-1]
		}
		return fmt.Sprintf("srv-%d", n)
	}
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []api.StateChangeEvent
}

func (r *recordingEmitter) Emit(ev api.StateChangeEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

func (r *recordingEmitter) snapshot() []api.StateChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]api.StateChangeEvent(nil), r.events...)
}

func (r *recordingEmitter) statesFor(id string) []api.State {
	var out []api.State
	for _, ev := range r.snapshot() {
		if ev.ServerID == id {
			out = append(out, ev.To)
		}
	}
	return out
}

type countingRecorder struct {
	readyObserved atomic.Int32
	reaped        sync.Map
}

func (c *countingRecorder) Transition(api.State, api.State) {}
func (c *countingRecorder) Operation(string, error)         {}
func (c *countingRecorder) ReadyLatency(time.Duration)      { c.readyObserved.Add(1) }
func (c *countingRecorder) Retry(string)                    {}
func (c *countingRecorder) Reaped(reason string)            { c.reaped.Store(reason, true) }

func newTestManager(t *testing.T, mutate ...func(*config.Config, *Options)) (*Manager, *mock.Cluster) {
	t.Helper()

	cfg := testConfig()
	res, err := resolver.New(cfg.Resolver)
	require.NoError(t, err)

	opts := Options{
		Translator:  workload.NewTranslator(workload.OptionsFromConfig(cfg), workload.DefaultNamer{}),
		Resolver:    res,
		IDGenerator: sequentialIDs(),
	}
	for _, fn := range mutate {
		fn(&cfg, &opts)
	}
	opts.Config = cfg.Lifecycle

	fake := mock.NewCluster()
	m, err := NewManager(fake, opts)
	require.NoError(t, err)
	return m, fake
}

func fetchSpec() api.ServerSpec {
	return api.ServerSpec{Image: "mcp/fetch", Port: 8080}
}
