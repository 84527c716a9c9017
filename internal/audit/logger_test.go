package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogger_EnqueueAndClose(t *testing.T) {
	logger := NewLogger(16)

	logger.LogReserveAdjustment("", "7", 2500, "donor grant")
	logger.LogSettlement("set-1", "prov-88", 5000, "CLEARED")
	logger.LogError("set-2", "7", errors.New("boom"))

	logger.Close()
	// Close is idempotent.
	logger.Close()
}

func TestLogger_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	// No drain goroutine: the queue can only fill up.
	logger := &Logger{
		events: make(chan Event, 1),
		done:   make(chan struct{}),
	}

	done := make(chan struct{})
	go func() {
		logger.LogSettlement("set-1", "", 100, "CLEARED")
		logger.LogSettlement("set-2", "", 200, "CLEARED")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}

	logger.mu.Lock()
	dropped := logger.dropped
	logger.mu.Unlock()
	assert.Equal(t, int64(1), dropped)
}

func TestNewLogger_DefaultsQueueSize(t *testing.T) {
	logger := NewLogger(0)
	defer logger.Close()

	assert.Equal(t, 256, cap(logger.events))
}
