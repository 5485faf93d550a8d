package server

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

const (
	DefaultMinDelay = 100 * time.Millisecond
	DefaultMaxDelay = 500 * time.Millisecond
)

// EchoHandler answers each request with its path after a uniformly random
// delay in [MinDelay, MaxDelay].
type EchoHandler struct {
	minDelay time.Duration
	maxDelay time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewEchoHandler returns an EchoHandler. An inverted range is swapped.
func NewEchoHandler(minDelay, maxDelay time.Duration) *EchoHandler {
	if minDelay < 0 {
		minDelay = 0
	}
	if maxDelay < minDelay {
		minDelay, maxDelay = maxDelay, minDelay
		if minDelay < 0 {
			minDelay = 0
		}
	}
	return &EchoHandler{
		minDelay: minDelay,
		maxDelay: maxDelay,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Invoke sleeps for the random delay, returning early with ctx.Err() if the
// stream is cancelled, then echoes the request path.
func (h *EchoHandler) Invoke(ctx context.Context, r *http.Request) ([]byte, error) {
	if d := h.delay(); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return []byte(r.URL.Path), nil
}

func (h *EchoHandler) delay() time.Duration {
	span := h.maxDelay - h.minDelay
	if span <= 0 {
		return h.minDelay
	}
	h.mu.Lock()
	n := h.rnd.Int63n(int64(span) + 1)
	h.mu.Unlock()
	return h.minDelay + time.Duration(n)
}
