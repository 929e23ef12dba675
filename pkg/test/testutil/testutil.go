package testutil

import (
	"context"
	"testing"
	"time"

	logging "github.com/KonishchevDmitry/go-easy-logging"
	"go.uber.org/zap/zaptest"
)

func Context(t *testing.T) context.Context {
	return logging.WithLogger(t.Context(), zaptest.NewLogger(t).Sugar())
}

// WaitTimeout is the time tests wait for asynchronous events before failing.
const WaitTimeout = 5 * time.Second

// Receive waits for a value from the channel failing the test on timeout.
func Receive[T any](t *testing.T, channel <-chan T) T {
	t.Helper()

	select {
	case value := <-channel:
		return value
	case <-time.After(WaitTimeout):
		t.Fatalf("Timed out waiting for %T.", *new(T))
		panic("unreachable")
	}
}

// NoReceive checks that nothing arrives to the channel within the specified period.
func NoReceive[T any](t *testing.T, channel <-chan T, period time.Duration) {
	t.Helper()

	select {
	case value := <-channel:
		t.Fatalf("Got an unexpected %T: %v.", value, value)
	case <-time.After(period):
	}
}
