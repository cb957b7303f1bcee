package workerpool_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cug2104518294/quartz-explained/internal/workerpool"
)

func TestRunInThread_BoundsConcurrencyToPoolSize(t *testing.T) {
	p := workerpool.New(2, nil)
	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 6; i++ {
		wg.Add(1)
		ok, err := p.RunInThread(func() {
			defer wg.Done()
			n := atomic.AddInt32(&active, 1)
			for {
				cur := atomic.LoadInt32(&maxActive)
				if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		})
		if err != nil || !ok {
			t.Fatalf("RunInThread: ok=%v err=%v", ok, err)
		}
	}
	wg.Wait()

	if maxActive > 2 {
		t.Errorf("max concurrent workers = %d, want <= 2", maxActive)
	}
}

func TestRunInThread_NilRunnableReturnsFalse(t *testing.T) {
	p := workerpool.New(1, nil)
	ok, err := p.RunInThread(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected false for nil runnable")
	}
}

func TestZeroSizePool_RejectsRunInThread(t *testing.T) {
	p := workerpool.New(0, nil)
	_, err := p.RunInThread(func() {})
	if err == nil {
		t.Error("expected error from zero-size pool")
	}
	_, err = p.BlockForAvailableThreads()
	if err == nil {
		t.Error("expected error from zero-size pool")
	}
}

func TestShutdown_HandoffRunsLastJobOnExtraWorker(t *testing.T) {
	p := workerpool.New(1, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	ok, err := p.RunInThread(func() {
		close(started)
		<-release
	})
	if err != nil || !ok {
		t.Fatalf("RunInThread: ok=%v err=%v", ok, err)
	}
	<-started

	done := make(chan struct{})
	go func() {
		p.Shutdown(true)
		close(done)
	}()

	handoffDone := make(chan struct{})
	go func() {
		ok, err := p.RunInThread(func() { close(handoffDone) })
		if err != nil || !ok {
			t.Errorf("handoff RunInThread: ok=%v err=%v", ok, err)
		}
	}()

	close(release)
	select {
	case <-handoffDone:
	case <-time.After(time.Second):
		t.Fatal("handoff job never ran")
	}
	<-done
}

func TestBlockForAvailableThreads_ReturnsCurrentCount(t *testing.T) {
	p := workerpool.New(3, nil)
	n, err := p.BlockForAvailableThreads()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("available = %d, want 3", n)
	}
}
