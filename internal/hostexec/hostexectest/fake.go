// Package hostexectest provides a recording hostexec.Runner for tests.
package hostexectest

import (
	"context"
	"strings"
	"sync"

	"github.com/pandeptwidyaop/trp-api/internal/hostexec"
)

// FakeRunner records commands without running them. Handler, when set,
// decides the output and error of each call.
type FakeRunner struct {
	Handler func(cmdline string) (string, error)

	mu    sync.Mutex
	calls []string
}

func (f *FakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	cmdline := hostexec.CommandLine(name, args...)

	f.mu.Lock()
	f.calls = append(f.calls, cmdline)
	f.mu.Unlock()

	if f.Handler != nil {
		return f.Handler(cmdline)
	}
	return "", nil
}

// Calls returns every command line seen so far.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Ran reports whether any recorded command line contains substr.
func (f *FakeRunner) Ran(substr string) bool {
	return f.Index(substr) >= 0
}

// Index returns the position of the first command line containing substr,
// or -1.
func (f *FakeRunner) Index(substr string) int {
	for i, c := range f.Calls() {
		if strings.Contains(c, substr) {
			return i
		}
	}
	return -1
}
