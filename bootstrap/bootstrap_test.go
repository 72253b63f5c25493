package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/momentics/hioload-actor/log"
)

func TestRunExitsCleanlyOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	done := make(chan struct {
		code int
		err  error
	}, 1)
	go func() {
		code, err := Run(ctx, Options{WorkerCount: 1, LogLevel: log.Error}, nil)
		done <- struct {
			code int
			err  error
		}{code, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("unexpected error: %v", res.err)
		}
		if res.code != 0 {
			t.Fatalf("expected exit code 0, got %d", res.code)
		}
	case <-time.After(4 * time.Second):
		t.Fatal("timed out waiting for Run to exit")
	}
}
