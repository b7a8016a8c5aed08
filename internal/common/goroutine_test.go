package common

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
)

func TestSafeGo_RecoversPanic(t *testing.T) {
	logger := arbor.NewLogger()
	done := make(chan struct{})

	SafeGo(logger, "panicker", func() {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestSafeGoWithContext_SkipsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	SafeGoWithContext(ctx, arbor.NewLogger(), "skipped", func() {
		ran.Store(true)
	})

	time.Sleep(50 * time.Millisecond)
	assert.False(t, ran.Load())
}
