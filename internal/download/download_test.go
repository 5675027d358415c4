package download

import (
	"context"
	"testing"
	"time"
)

type fakeHandle struct {
	total    int64
	step     int64
	done     bool
	released bool
}

func (h *fakeHandle) Poll(ctx context.Context) (PollResult, error) {
	h.step += h.total / 4
	if h.step >= h.total {
		h.step = h.total
		h.done = true
	}
	return PollResult{BytesDone: h.step, TotalBytes: h.total, Done: h.done}, nil
}

func (h *fakeHandle) Release() { h.released = true }

type fakeTransport struct {
	handles map[string]*fakeHandle
}

func (t *fakeTransport) Start(ctx context.Context, req Request) (Handle, error) {
	h := &fakeHandle{total: 100}
	t.handles[req.ID] = h
	return h, nil
}

func TestManagerRespectsConcurrencyCeiling(t *testing.T) {
	transport := &fakeTransport{handles: make(map[string]*fakeHandle)}
	m := New(transport, 2, time.Second, nil)

	for i := 0; i < 5; i++ {
		m.Enqueue(Request{ID: string(rune('a' + i))})
	}

	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.mu.Lock()
	inFlight := len(m.inFlight)
	pending := len(m.pending)
	m.mu.Unlock()

	if inFlight != 2 {
		t.Fatalf("expected 2 in-flight (ceiling), got %d", inFlight)
	}
	if pending != 3 {
		t.Fatalf("expected 3 still pending, got %d", pending)
	}
}

func TestManagerFinalizesOnSuccessAndReleases(t *testing.T) {
	transport := &fakeTransport{handles: make(map[string]*fakeHandle)}
	m := New(transport, 10, time.Second, nil)

	var events []Event
	m.Subscribe(func(ev Event) { events = append(events, ev) })

	m.Enqueue(Request{ID: "only"})
	for i := 0; i < 5; i++ {
		if err := m.Tick(context.Background()); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	h := transport.handles["only"]
	if h == nil || !h.released {
		t.Fatalf("expected handle released on finalize")
	}

	var sawTerminal bool
	for _, ev := range events {
		if ev.Done && ev.Status == StatusSuccess {
			sawTerminal = true
		}
	}
	if !sawTerminal {
		t.Fatalf("expected a terminal success event, got %+v", events)
	}
}
