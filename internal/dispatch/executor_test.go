package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func startExecutor(t *testing.T) (*Executor, context.CancelFunc) {
	t.Helper()
	e := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)
	t.Cleanup(cancel)
	return e, cancel
}

func TestExecutor_PreservesOrder(t *testing.T) {
	e, _ := startExecutor(t)

	var got []int
	var wg sync.WaitGroup
	wg.Add(100)
	for i := 0; i < 100; i++ {
		i := i
		if err := e.Post(func() {
			got = append(got, i)
			wg.Done()
		}); err != nil {
			t.Fatalf("Post() error = %v", err)
		}
	}
	wg.Wait()

	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestExecutor_Call(t *testing.T) {
	e, _ := startExecutor(t)

	ran := false
	if err := e.Call(context.Background(), func() { ran = true }); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if !ran {
		t.Error("Call() returned before fn ran")
	}
}

func TestExecutor_RecoversPanic(t *testing.T) {
	e, _ := startExecutor(t)

	_ = e.Post(func() { panic("boom") })

	ran := false
	if err := e.Call(context.Background(), func() { ran = true }); err != nil {
		t.Fatalf("Call() after panic error = %v", err)
	}
	if !ran {
		t.Error("executor did not survive panic")
	}
}

func TestExecutor_PostAfterStop(t *testing.T) {
	e, cancel := startExecutor(t)
	cancel()

	select {
	case <-e.Stopped():
	case <-time.After(time.Second):
		t.Fatal("executor did not stop")
	}

	if err := e.Post(func() {}); !errors.Is(err, ErrExecutorStopped) {
		t.Errorf("Post() error = %v, want ErrExecutorStopped", err)
	}
	if err := e.Call(context.Background(), func() {}); !errors.Is(err, ErrExecutorStopped) {
		t.Errorf("Call() error = %v, want ErrExecutorStopped", err)
	}
}

func TestExecutor_AfterFunc(t *testing.T) {
	e, _ := startExecutor(t)

	done := make(chan struct{})
	e.AfterFunc(10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AfterFunc did not fire")
	}

	stopped := false
	timer := e.AfterFunc(time.Hour, func() { stopped = true })
	timer.Stop()
	if stopped {
		t.Error("stopped timer should not run")
	}
}

func TestInline_Post(t *testing.T) {
	var i Inline
	ran := false
	if err := i.Post(func() { ran = true }); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if !ran {
		t.Error("Inline.Post should run synchronously")
	}
}
