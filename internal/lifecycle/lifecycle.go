package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var shuttingDown atomic.Bool

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

type closer struct {
	name string
	fn   func() error
}

// Closers releases connections opened during startup (cache clients, event
// log database) in reverse registration order.
type Closers struct {
	mu      sync.Mutex
	closers []closer
	closed  bool
}

// Add registers fn under name. A nil fn is ignored.
func (c *Closers) Add(name string, fn func() error) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

// Close runs every registered closer once, last added first. Failures are
// logged and joined; a failing closer does not stop the rest.
func (c *Closers) Close(logger *zap.Logger) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	closers := c.closers
	c.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		cl := closers[i]
		if err := cl.fn(); err != nil {
			logger.Error("close failed", zap.String("resource", cl.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", cl.name, err))
			continue
		}
		logger.Debug("closed", zap.String("resource", cl.name))
	}
	return errors.Join(errs...)
}
