package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUpdaterWithoutPool(t *testing.T) {
	u := NewUpdater(nil, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		u.Start(context.Background())
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	u.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("updater did not stop")
	}
}

func TestUpdaterStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	u := NewUpdater(nil, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		u.Start(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("updater did not stop on context cancel")
	}
}

func TestNewUpdaterDefaultInterval(t *testing.T) {
	u := NewUpdater(nil, 0)
	assert.Equal(t, 15*time.Second, u.interval)
}
