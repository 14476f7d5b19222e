package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rickgao/routerx/route"
)

var errNoReason = errors.New("interrupted without reason")

// chain is the state of one request moving through the interceptors.
type chain struct {
	ctx          context.Context
	req          *route.Request
	interceptors []named
	latch        *Latch
	logger       *slog.Logger

	// closed is set once the pipeline stops waiting; callbacks after that are ignored.
	closed atomic.Bool

	mu  sync.Mutex
	why error
}

func (c *chain) reason() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.why == nil {
		return errNoReason
	}
	return c.why
}

// invoke hands the request to interceptor i.
func (c *chain) invoke(i int) {
	if i >= len(c.interceptors) || c.closed.Load() || c.ctx.Err() != nil {
		return
	}

	n := c.interceptors[i]
	cb := &callback{chain: c, index: i}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("interceptor panicked", "interceptor", n.name, "panic", r)
			cb.Interrupt(fmt.Errorf("interceptor %q panicked: %v", n.name, r))
		}
	}()

	n.Process(c.ctx, c.req, cb)
}

// callback is handed to exactly one interceptor; only its first call counts.
type callback struct {
	chain *chain
	index int
	fired atomic.Bool
}

// Continue moves the request on to the next interceptor.
func (cb *callback) Continue(*route.Request) {
	c := cb.chain
	if !cb.fired.CompareAndSwap(false, true) || c.closed.Load() || c.ctx.Err() != nil {
		return
	}
	c.latch.CountDown()
	c.invoke(cb.index + 1)
}

// Interrupt stops the chain and records reason.
func (cb *callback) Interrupt(reason error) {
	c := cb.chain
	if !cb.fired.CompareAndSwap(false, true) || c.closed.Load() {
		return
	}
	if reason == nil {
		reason = errNoReason
	}

	c.mu.Lock()
	c.why = reason
	c.mu.Unlock()

	c.latch.Cancel()
}
