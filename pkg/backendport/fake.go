package backendport

import (
	"context"
	"fmt"
	"sync"
)

// Fake is a scripted in-memory Runner used by the pkg/mergeengine tests,
// playing the same role as the teacher's
// agentic_engine_interface_test.go fakes for AgenticEngine: every call
// consumes the next scripted Response/error pair (or falls back to a
// default) and records the request for assertions.
type Fake struct {
	mu sync.Mutex

	NameValue string
	Scripted  []FakeResult
	Calls     []Request

	// OnRun, if set, is invoked for every call instead of consuming
	// Scripted; useful for tests that need to react to the request (e.g.
	// the CI/CD auto-fix loop creating a file).
	OnRun func(req Request) (Response, error)
}

// FakeResult is a single scripted Run outcome.
type FakeResult struct {
	Response Response
	Err      error
}

// NewFake returns a Fake backend named name.
func NewFake(name string) *Fake {
	return &Fake{NameValue: name}
}

func (f *Fake) Name() string { return f.NameValue }

func (f *Fake) Run(ctx context.Context, req Request) (Response, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, req)
	onRun := f.OnRun
	var next *FakeResult
	if onRun == nil {
		if len(f.Scripted) > 0 {
			r := f.Scripted[0]
			f.Scripted = f.Scripted[1:]
			next = &r
		}
	}
	f.mu.Unlock()

	if onRun != nil {
		return onRun(req)
	}
	if next != nil {
		return next.Response, next.Err
	}
	return Response{}, fmt.Errorf("fake backend %s: no scripted response for capability %q", f.NameValue, req.Capability)
}

func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

var _ Runner = (*Fake)(nil)
