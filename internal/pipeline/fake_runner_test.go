package pipeline

import (
	"context"
	"strings"
	"sync"
)

// fakeRunner records invocations and delegates to handle
type fakeRunner struct {
	mu     sync.Mutex
	calls  []string
	handle func(ctx context.Context, name string, args []string) ([]byte, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	f.mu.Unlock()
	return f.handle(ctx, name, args)
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
