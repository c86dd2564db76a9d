package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/adaptord/internal/fsm"
)

// fakeAdaptor records command execution windows so interleaving can be
// asserted.
type fakeAdaptor struct {
	mu        sync.Mutex
	intervals [][2]time.Time
	hold      time.Duration

	startErr error
	runErr   error
	stopErr  error

	started  int
	runs     int
	stops    int
	cleanups int
}

func (f *fakeAdaptor) record(body func()) {
	begin := time.Now()
	if f.hold > 0 {
		time.Sleep(f.hold)
	}
	body()
	end := time.Now()

	f.mu.Lock()
	f.intervals = append(f.intervals, [2]time.Time{begin, end})
	f.mu.Unlock()
}

func (f *fakeAdaptor) Start(context.Context) error {
	var err error
	f.record(func() { f.started++; err = f.startErr })
	return err
}

func (f *fakeAdaptor) Run(ctx context.Context, _ map[string]any) (map[string]any, error) {
	var err error
	f.record(func() {
		f.runs++
		err = f.runErr
	})
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return map[string]any{"done": true}, err
}

func (f *fakeAdaptor) Stop(context.Context) error {
	var err error
	f.record(func() { f.stops++; err = f.stopErr })
	return err
}

func (f *fakeAdaptor) Cleanup(context.Context) error {
	f.mu.Lock()
	f.cleanups++
	f.mu.Unlock()
	return nil
}

func TestRunnerLifecycle(t *testing.T) {
	fake := &fakeAdaptor{}
	r := New(nil, fake)
	ctx := context.Background()

	require.Equal(t, fsm.StateNotStarted, r.State())
	require.NoError(t, r.Start(ctx))
	require.Equal(t, fsm.StateStarted, r.State())

	result, err := r.Run(ctx, map[string]any{"frame": "0001"})
	require.NoError(t, err)
	require.Equal(t, true, result["done"])
	require.Equal(t, fsm.StateStarted, r.State())

	require.NoError(t, r.Stop(ctx))
	require.Equal(t, fsm.StateStopped, r.State())
	require.NoError(t, r.Cleanup(ctx))

	require.Equal(t, 1, fake.started)
	require.Equal(t, 1, fake.runs)
	require.Equal(t, 1, fake.stops)
	require.Equal(t, 1, fake.cleanups)
}

func TestRunnerRunBeforeStart(t *testing.T) {
	r := New(nil, &fakeAdaptor{})

	_, err := r.Run(context.Background(), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not started")
}

func TestRunnerDoubleStart(t *testing.T) {
	r := New(nil, &fakeAdaptor{})
	ctx := context.Background()

	require.NoError(t, r.Start(ctx))
	err := r.Start(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already started")
}

func TestRunnerStartFailureLeavesNotStarted(t *testing.T) {
	fake := &fakeAdaptor{startErr: errors.New("boom")}
	r := New(nil, fake)

	err := r.Start(context.Background())
	require.Error(t, err)
	require.Equal(t, fsm.StateNotStarted, r.State())

	// A corrected adaptor can start afterwards.
	fake.startErr = nil
	require.NoError(t, r.Start(context.Background()))
}

func TestRunnerRunFailureStillAllowsStop(t *testing.T) {
	fake := &fakeAdaptor{runErr: errors.New("render failed")}
	r := New(nil, fake)
	ctx := context.Background()

	require.NoError(t, r.Start(ctx))
	_, err := r.Run(ctx, nil)
	require.Error(t, err)
	require.Equal(t, fsm.StateStarted, r.State())
	require.NoError(t, r.Stop(ctx))
}

func TestRunnerCommandsAreMutuallyExclusive(t *testing.T) {
	fake := &fakeAdaptor{hold: 10 * time.Millisecond}
	r := New(nil, fake)
	ctx := context.Background()

	require.NoError(t, r.Start(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Run(ctx, nil)
		}()
	}
	wg.Wait()
	require.NoError(t, r.Stop(ctx))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	intervals := fake.intervals
	for i := 1; i < len(intervals); i++ {
		prev, cur := intervals[i-1], intervals[i]
		require.False(t, cur[0].Before(prev[1]),
			"command %d began at %v before command %d ended at %v", i, cur[0], i-1, prev[1])
	}
}

// blockingAdaptor parks Run until its context is canceled.
type blockingAdaptor struct {
	fakeAdaptor
	running chan struct{}
}

func (b *blockingAdaptor) Run(ctx context.Context, _ map[string]any) (map[string]any, error) {
	close(b.running)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunnerCancelInterruptsRunThenStopSucceeds(t *testing.T) {
	fake := &blockingAdaptor{running: make(chan struct{})}
	r := New(nil, fake)
	ctx := context.Background()

	require.NoError(t, r.Start(ctx))

	runDone := make(chan error, 1)
	go func() {
		_, err := r.Run(ctx, nil)
		runDone <- err
	}()

	select {
	case <-fake.running:
	case <-time.After(2 * time.Second):
		t.Fatal("run never began")
	}
	r.Cancel()

	select {
	case err := <-runDone:
		require.Error(t, err)
		require.Contains(t, err.Error(), "run canceled")
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not interrupt run")
	}

	require.Equal(t, fsm.StateCanceled, r.State())
	require.NoError(t, r.Stop(ctx))
	require.Equal(t, fsm.StateStopped, r.State())
}

func TestRunnerCancelWithoutRunIsNoop(t *testing.T) {
	r := New(nil, &fakeAdaptor{})
	r.Cancel()
	require.Equal(t, fsm.StateNotStarted, r.State())
}
