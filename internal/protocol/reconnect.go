// internal/protocol/reconnect.go
package protocol

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reconnector is an opt-in policy that calls Connect again after a handler
// dropped to Disconnected or Error. Handlers never do this on their own.
// Subscribe Handle to the handler and call Stop before closing it.
type Reconnector struct {
	handler     Handler
	delay       time.Duration
	maxAttempts int
	logger      *zap.Logger

	mu       sync.Mutex
	attempts int
	timer    *time.Timer
	stopped  bool

	// pending counts scheduled or running attempts; Stop waits for it
	pending sync.WaitGroup
}

// NewReconnector creates a reconnect policy. maxAttempts <= 0 retries forever.
func NewReconnector(h Handler, delay time.Duration, maxAttempts int, logger *zap.Logger) *Reconnector {
	return &Reconnector{
		handler:     h,
		delay:       delay,
		maxAttempts: maxAttempts,
		logger:      logger.With(zap.String("component", "reconnector")),
	}
}

// Handle is an EventHandler
func (r *Reconnector) Handle(ev Event) {
	switch ev.Type {
	case EventConnected:
		r.mu.Lock()
		r.attempts = 0
		r.mu.Unlock()
	case EventDisconnected, EventError:
		r.schedule()
	}
}

func (r *Reconnector) schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped || r.timer != nil {
		return
	}
	if r.maxAttempts > 0 && r.attempts >= r.maxAttempts {
		r.logger.Warn("Reconnect attempts exhausted", zap.Int("attempts", r.attempts))
		return
	}
	r.attempts++
	attempt := r.attempts

	r.pending.Add(1)
	r.timer = time.AfterFunc(r.delay, func() {
		defer r.pending.Done()

		r.mu.Lock()
		r.timer = nil
		stopped := r.stopped
		r.mu.Unlock()
		if stopped {
			return
		}
		r.reconnect(attempt)
	})
}

func (r *Reconnector) reconnect(attempt int) {
	switch r.handler.State() {
	case StateDisconnected:
	case StateError:
		if err := r.handler.Close(); err != nil {
			r.logger.Warn("Close before reconnect failed", zap.Error(err))
		}
	default:
		// still connecting or connected, e.g. a server waiting for its next client
		return
	}

	r.logger.Info("Reconnecting", zap.Int("attempt", attempt))
	if err := r.handler.Connect(context.Background()); err != nil {
		r.logger.Warn("Reconnect failed", zap.Error(err))
	}
}

// Stop cancels any pending attempt and disables the policy. It returns once
// an attempt already in progress has finished, so no Connect follows it.
// Stop must not be called from the handler's EventHandler.
func (r *Reconnector) Stop() {
	r.mu.Lock()
	r.stopped = true
	if r.timer != nil {
		if r.timer.Stop() {
			r.pending.Done()
		}
		r.timer = nil
	}
	r.mu.Unlock()

	r.pending.Wait()
}
