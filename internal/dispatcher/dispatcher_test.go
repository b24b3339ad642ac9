package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(core, maxWorkers, queue int) Config {
	return Config{
		CoreWorkers:   core,
		MaxWorkers:    maxWorkers,
		QueueCapacity: queue,
		KeepAlive:     time.Minute,
		ShutdownGrace: time.Minute,
	}
}

// gate blocks tasks until released and records which ids ran.
type gate struct {
	release chan struct{}
	mu      sync.Mutex
	ran     []string
}

func newGate() *gate {
	return &gate{release: make(chan struct{})}
}

func (g *gate) task(ctx context.Context, id string) error {
	<-g.release
	g.mu.Lock()
	g.ran = append(g.ran, id)
	g.mu.Unlock()
	return nil
}

func (g *gate) ranIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.ran...)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, testConfig(0, 1, 1).Validate())
	assert.Error(t, testConfig(3, 2, 1).Validate())
	assert.Error(t, testConfig(1, 1, -1).Validate())

	_, err := New(testConfig(2, 1, 1), func(context.Context, string) error { return nil }, nil, nil)
	assert.Error(t, err)
}

func TestDispatcher_RunsEverySubmittedTask(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup

	d, err := New(testConfig(3, 5, 50), func(ctx context.Context, id string) error {
		defer wg.Done()
		mu.Lock()
		seen[id] = true
		mu.Unlock()
		return nil
	}, nil, nil)
	require.NoError(t, err)

	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	wg.Add(len(ids))
	for _, id := range ids {
		require.NoError(t, d.Submit(id))
	}
	wg.Wait()

	for _, id := range ids {
		assert.True(t, seen[id], "task %s did not run", id)
	}
	require.NoError(t, d.Shutdown(context.Background()))
}

func TestDispatcher_BurstThenBackpressure(t *testing.T) {
	g := newGate()
	d, err := New(testConfig(1, 2, 1), g.task, nil, nil)
	require.NoError(t, err)

	require.NoError(t, d.Submit("a"))
	require.Eventually(t, func() bool { return d.Stats().Running == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, d.Submit("b"), "queue has room")
	require.NoError(t, d.Submit("c"), "queue full, burst worker available")
	assert.Equal(t, 2, d.Stats().Workers)

	err = d.Submit("d")
	assert.ErrorIs(t, err, ErrBackpressure)

	close(g.release)
	require.NoError(t, d.Shutdown(context.Background()))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, g.ranIDs())
}

func TestDispatcher_RejectsDuplicateIDWhileScheduled(t *testing.T) {
	g := newGate()
	d, err := New(testConfig(1, 1, 5), g.task, nil, nil)
	require.NoError(t, err)

	require.NoError(t, d.Submit("x"))
	require.Eventually(t, func() bool { return d.Stats().Running == 1 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, d.Submit("x"), ErrAlreadyScheduled)

	require.NoError(t, d.Submit("y"))
	assert.ErrorIs(t, d.Submit("y"), ErrAlreadyScheduled)

	close(g.release)
	require.Eventually(t, func() bool { return len(g.ranIDs()) == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return d.Stats().Running == 0 }, time.Second, 5*time.Millisecond)

	assert.NoError(t, d.Submit("x"), "finished ids may be submitted again")
	require.NoError(t, d.Shutdown(context.Background()))
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	type failure struct {
		id  string
		err error
	}
	failures := make(chan failure, 2)
	var ran sync.WaitGroup
	ran.Add(1)

	d, err := New(testConfig(1, 1, 5), func(ctx context.Context, id string) error {
		switch id {
		case "boom":
			panic("bad data")
		case "err":
			return errors.New("stage failed")
		}
		ran.Done()
		return nil
	}, func(ctx context.Context, id string, err error) {
		failures <- failure{id, err}
	}, nil)
	require.NoError(t, err)

	require.NoError(t, d.Submit("boom"))
	require.NoError(t, d.Submit("err"))
	require.NoError(t, d.Submit("ok"))
	ran.Wait()

	first := <-failures
	assert.Equal(t, "boom", first.id)
	assert.ErrorIs(t, first.err, ErrTaskPanicked)
	second := <-failures
	assert.Equal(t, "err", second.id)

	require.NoError(t, d.Shutdown(context.Background()))
}

func TestDispatcher_ShutdownReportsUnfinished(t *testing.T) {
	g := newGate()
	defer close(g.release)
	d, err := New(testConfig(1, 1, 5), g.task, nil, nil)
	require.NoError(t, err)

	require.NoError(t, d.Submit("a"))
	require.NoError(t, d.Submit("b"))
	require.Eventually(t, func() bool { return d.Stats().Running == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = d.Shutdown(ctx)

	var shutdownErr *ShutdownError
	require.ErrorAs(t, err, &shutdownErr)
	assert.Equal(t, []string{"a", "b"}, shutdownErr.Unfinished)
	assert.ErrorIs(t, d.Submit("c"), ErrDispatcherClosed)
}

func TestDispatcher_ShutdownDrainsQueue(t *testing.T) {
	g := newGate()
	d, err := New(testConfig(1, 1, 5), g.task, nil, nil)
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, d.Submit(id))
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(g.release)
	}()

	require.NoError(t, d.Shutdown(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, g.ranIDs())
}

func TestDispatcher_BurstWorkerRetiresWhenIdle(t *testing.T) {
	g := newGate()
	cfg := testConfig(1, 2, 0)
	cfg.KeepAlive = 20 * time.Millisecond
	d, err := New(cfg, g.task, nil, nil)
	require.NoError(t, err)

	// Without a queue a submit lands only on a waiting core worker or a new
	// burst worker.
	require.NoError(t, d.Submit("a"))
	require.Eventually(t, func() bool { return d.Submit("b") == nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, d.Stats().Workers)

	close(g.release)
	require.Eventually(t, func() bool { return d.Stats().Workers == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, d.Shutdown(context.Background()))
}
