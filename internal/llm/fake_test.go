package llm

import (
	"context"
	"sync/atomic"
	"time"
)

type fakeBackend struct {
	name   string
	model  string
	text   string
	in     int
	out    int
	err    error
	delay  time.Duration
	panics bool
	calls  atomic.Int32
	last   *Request
}

func (f *fakeBackend) Name() string  { return f.name }
func (f *fakeBackend) Model() string { return f.model }

func (f *fakeBackend) Complete(ctx context.Context, req *Request) (*Completion, error) {
	f.calls.Add(1)
	f.last = req
	if f.panics {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &Completion{Text: f.text, InputTokens: f.in, OutputTokens: f.out}, nil
}
