package events

import (
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFireInvokesRegisteredHandlersInOrder(t *testing.T) {
	b := New(testLogger())
	var order []int
	b.Register("restrict", func(args ...any) { order = append(order, 1) })
	b.Register("restrict", func(args ...any) { order = append(order, 2) })

	b.Fire("restrict")

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("handlers fired out of order: %v", order)
	}
}

func TestFirePassesArgsThrough(t *testing.T) {
	b := New(testLogger())
	var got []any
	b.Register("announcement", func(args ...any) { got = args })

	b.Fire("announcement", "server restarting", 42)

	if len(got) != 2 || got[0] != "server restarting" || got[1] != 42 {
		t.Fatalf("handler received %v, want [server restarting 42]", got)
	}
}

func TestFireUnknownEventIsNoop(t *testing.T) {
	b := New(testLogger())
	b.Fire("nonexistent_event", "whatever")
}

func TestFireRecoversFromPanickingHandler(t *testing.T) {
	b := New(testLogger())
	calledAfterPanic := false
	b.Register("shutdown", func(args ...any) { panic("boom") })
	b.Register("shutdown", func(args ...any) { calledAfterPanic = true })

	b.Fire("shutdown")

	if !calledAfterPanic {
		t.Fatal("expected handler after the panicking one to still run")
	}
}
