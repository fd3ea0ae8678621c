//go:build test

package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type outcome[T any] struct {
	v   T
	err error
}

// async runs fn on its own goroutine and returns its outcome channel.
func async[T any](fn func() (T, error)) <-chan outcome[T] {
	ch := make(chan outcome[T], 1)
	go func() {
		v, err := fn()
		ch <- outcome[T]{v: v, err: err}
	}()
	return ch
}

func asyncErr(fn func() error) <-chan outcome[struct{}] {
	return async(func() (struct{}, error) { return struct{}{}, fn() })
}

func await[T any](t *testing.T, ch <-chan outcome[T]) outcome[T] {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(2 * time.Second):
		require.FailNow(t, "operation did not complete")
		return outcome[T]{}
	}
}

func requirePending[T any](t *testing.T, ch <-chan outcome[T]) {
	t.Helper()
	select {
	case o := <-ch:
		require.FailNow(t, "operation completed early", "%+v", o)
	case <-time.After(20 * time.Millisecond):
	}
}
