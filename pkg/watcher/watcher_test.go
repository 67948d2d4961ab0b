package watcher_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roambot/blecore/internal/platform"
	"github.com/roambot/blecore/internal/testutils"
	"github.com/roambot/blecore/pkg/watcher"
)

func newStartedWatcher(t *testing.T) (*watcher.Watcher, *testutils.FakeStack) {
	t.Helper()
	helper := testutils.NewTestHelper(t)

	stack := testutils.NewFakeStack()
	w := watcher.New(stack, helper.Logger)
	require.NoError(t, w.Start())
	return w, stack
}

func strPtr(s string) *string { return &s }

func TestWatcher_StartIsIdempotent(t *testing.T) {
	w, stack := newStartedWatcher(t)

	require.NoError(t, w.Start())
	require.NoError(t, w.Start())

	assert.Equal(t, 1, stack.Watcher.StartCalls())
	assert.Equal(t, watcher.StateStarted, w.State())
}

func TestWatcher_StartAfterStopFails(t *testing.T) {
	w, _ := newStartedWatcher(t)

	require.NoError(t, w.Stop())
	assert.ErrorIs(t, w.Start(), watcher.ErrWatcherStopped)
	assert.Equal(t, watcher.StateStopped, w.State())
}

func TestWatcher_StartReportsDiscoveryError(t *testing.T) {
	helper := testutils.NewTestHelper(t)

	stack := testutils.NewFakeStack()
	stack.WatcherErr = errors.New("radio off")

	w := watcher.New(stack, helper.Logger)
	err := w.Start()
	require.Error(t, err)

	var de *watcher.DiscoveryError
	require.ErrorAs(t, err, &de)
	assert.ErrorContains(t, de.Err, "radio off")
}

func TestWatcher_AddUpdateRemove(t *testing.T) {
	w, stack := newStartedWatcher(t)
	fw := stack.Watcher

	fw.EmitAdded(platform.DeviceInfo{ID: "dev-a", Name: "Alpha", Address: "11:11:11:11:11:11"})
	assert.Equal(t, 1, w.Len())

	t.Run("duplicate add is an idempotent upsert", func(t *testing.T) {
		fw.EmitAdded(platform.DeviceInfo{ID: "dev-a", Name: "Alpha2", Address: "11:11:11:11:11:11"})
		assert.Equal(t, 1, w.Len())
	})

	t.Run("update mutates the entry in place", func(t *testing.T) {
		fw.EmitUpdated(platform.DeviceUpdate{ID: "dev-a", Name: strPtr("Alpha Prime")})
		assert.Equal(t, 1, w.Len())
	})

	t.Run("update for an unknown id is a no-op", func(t *testing.T) {
		fw.EmitUpdated(platform.DeviceUpdate{ID: "dev-missing", Name: strPtr("Ghost")})
		assert.Equal(t, 1, w.Len())
	})

	t.Run("remove erases the entry", func(t *testing.T) {
		fw.EmitRemoved("dev-a")
		assert.Equal(t, 0, w.Len())
	})

	t.Run("remove for an absent id is a no-op", func(t *testing.T) {
		fw.EmitRemoved("dev-a")
		assert.Equal(t, 0, w.Len())
	})
}

func TestWatcher_TableUniquenessUnderConcurrentEvents(t *testing.T) {
	w, stack := newStartedWatcher(t)
	fw := stack.Watcher

	const ids = 8
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := fmt.Sprintf("dev-%d", i%ids)
				switch i % 3 {
				case 0:
					fw.EmitAdded(platform.DeviceInfo{ID: id, Name: id, Address: id})
				case 1:
					fw.EmitUpdated(platform.DeviceUpdate{ID: id, Name: strPtr("renamed")})
				case 2:
					fw.EmitRemoved(id)
				}
			}
		}()
	}
	wg.Wait()

	// At most one entry per id, whatever the interleaving was.
	assert.LessOrEqual(t, w.Len(), ids)
}

func TestWatcher_ScanBlocksUntilEnumerationCompletes(t *testing.T) {
	w, stack := newStartedWatcher(t)
	fw := stack.Watcher

	fw.EmitAdded(platform.DeviceInfo{ID: "dev-a", Name: "Alpha", Address: "11:11:11:11:11:11"})

	type scanResult struct {
		devs []watcher.DeviceSummary
		err  error
	}
	results := make(chan scanResult, 1)
	go func() {
		devs, err := w.Scan(context.Background())
		results <- scanResult{devs, err}
	}()

	// Scan must still be blocked: no completion signal yet.
	select {
	case <-results:
		t.Fatal("scan returned before enumeration completed")
	case <-time.After(50 * time.Millisecond):
	}

	fw.CompleteEnumeration()

	select {
	case res := <-results:
		require.NoError(t, res.err)
		require.Len(t, res.devs, 1)
		assert.Equal(t, "11:11:11:11:11:11", res.devs[0].Address)
	case <-time.After(time.Second):
		t.Fatal("scan did not return after enumeration completed")
	}

	assert.Equal(t, watcher.StateEnumerationComplete, w.State())
}

func TestWatcher_RepeatedScansReturnImmediately(t *testing.T) {
	w, stack := newStartedWatcher(t)
	stack.Watcher.CompleteEnumeration()

	// The latch is broadcast-style: both calls must come back within a
	// short bound instead of deadlocking on a consumed signal.
	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := w.Scan(ctx)
		cancel()
		require.NoError(t, err, "scan %d should not block", i+1)
	}
}

func TestWatcher_ScanTimesOutViaContext(t *testing.T) {
	w, _ := newStartedWatcher(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := w.Scan(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWatcher_ScanBeforeStart(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	w := watcher.New(testutils.NewFakeStack(), helper.Logger)

	_, err := w.Scan(context.Background())
	assert.ErrorIs(t, err, watcher.ErrNotStarted)
}

func TestWatcher_StopWakesBlockedScan(t *testing.T) {
	w, _ := newStartedWatcher(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := w.Scan(context.Background())
		errCh <- err
	}()

	// Give the scan goroutine a moment to block on the latch.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, w.Stop())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, watcher.ErrWatcherStopped)
	case <-time.After(time.Second):
		t.Fatal("stop did not wake the blocked scan")
	}
}

func TestWatcher_ScanAfterStop(t *testing.T) {
	w, stack := newStartedWatcher(t)
	stack.Watcher.CompleteEnumeration()
	require.NoError(t, w.Stop())

	_, err := w.Scan(context.Background())
	assert.ErrorIs(t, err, watcher.ErrWatcherStopped)
}

func TestWatcher_StopIsIdempotentAndDeregisters(t *testing.T) {
	w, stack := newStartedWatcher(t)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	assert.Equal(t, 1, stack.Watcher.StopCalls())
	assert.False(t, stack.Watcher.Running())
}

func TestWatcher_LookupAddress(t *testing.T) {
	w, stack := newStartedWatcher(t)
	fw := stack.Watcher

	fw.EmitAdded(platform.DeviceInfo{ID: "dev-a", Name: "Alpha", Address: "11:11:11:11:11:11"})
	fw.EmitAdded(platform.DeviceInfo{ID: "dev-b", Name: "Beta", Address: "22:22:22:22:22:22"})

	id, ok := w.LookupAddress("22:22:22:22:22:22")
	require.True(t, ok)
	assert.Equal(t, "dev-b", id)

	_, ok = w.LookupAddress("33:33:33:33:33:33")
	assert.False(t, ok)
}

func TestWatcher_EventStream(t *testing.T) {
	w, stack := newStartedWatcher(t)
	fw := stack.Watcher

	fw.EmitAdded(platform.DeviceInfo{ID: "dev-a", Name: "Alpha", Address: "11:11:11:11:11:11"})
	fw.EmitUpdated(platform.DeviceUpdate{ID: "dev-a", Name: strPtr("Alpha Prime")})
	fw.EmitRemoved("dev-a")

	types := make([]watcher.EventType, 0, 3)
	for i := 0; i < 3; i++ {
		select {
		case ev := <-w.Events():
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("missing discovery event")
		}
	}

	assert.Equal(t, []watcher.EventType{watcher.EventAdded, watcher.EventUpdated, watcher.EventRemoved}, types)
}
