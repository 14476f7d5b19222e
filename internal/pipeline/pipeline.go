package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/routerx/internal/registry"
	"github.com/rickgao/routerx/route"
)

// DefaultInitWait bounds how long Dispatch waits for interceptor initialization.
const DefaultInitWait = 10 * time.Second

// Submitter runs tasks off the caller's goroutine.
type Submitter interface {
	Submit(name string, fn func()) error
}

// Config holds pipeline settings.
type Config struct {
	InitWait time.Duration
}

// Pipeline runs requests through the registered interceptors in ascending
// priority order, one interceptor at a time.
type Pipeline interface {
	// Init constructs and initializes every interceptor once, asynchronously.
	Init(ctx context.Context, entries []registry.Entry) error

	// Dispatch filters req and reports the outcome through exactly one of
	// onContinue or onInterrupted. Green-channel requests and empty chains
	// continue synchronously; everything else reports from a worker.
	Dispatch(ctx context.Context, req *route.Request, onContinue func(*route.Request), onInterrupted func(error))

	// Ready reports whether initialization has finished, successfully or not.
	Ready() bool

	// Err returns the initialization error, if any.
	Err() error

	// Len returns the number of registered interceptors.
	Len() int
}

// Observer receives chain timings. It may be nil.
type Observer interface {
	ObserveChain(outcome string, elapsed time.Duration)
}

// Chain outcomes reported to the Observer.
const (
	OutcomeContinue  = "continue"
	OutcomeInterrupt = "interrupt"
	OutcomeTimeout   = "timeout"
)

type pipeline struct {
	cfg      Config
	exec     Submitter
	observer Observer
	logger   *slog.Logger

	initOnce sync.Once
	count    atomic.Int32
	ready    chan struct{}

	// Written once before ready is closed.
	interceptors []named
	initErr      error
}

type named struct {
	name string
	route.Interceptor
}

// New creates a Pipeline that runs its work on exec.
func New(cfg Config, exec Submitter, observer Observer, logger *slog.Logger) Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InitWait <= 0 {
		cfg.InitWait = DefaultInitWait
	}
	return &pipeline{
		cfg:      cfg,
		exec:     exec,
		observer: observer,
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// Init submits interceptor construction to the executor. Construction follows
// priority order; Init hooks run concurrently and any failure is fatal.
func (p *pipeline) Init(ctx context.Context, entries []registry.Entry) error {
	err := fmt.Errorf("%w: interceptor pipeline initialized twice", route.ErrInitialization)
	p.initOnce.Do(func() {
		err = nil
		p.count.Store(int32(len(entries)))

		submitErr := p.exec.Submit("interceptor-init", func() {
			p.finishInit(p.build(ctx, entries))
		})
		if submitErr != nil {
			p.finishInit(nil, fmt.Errorf("%w: schedule interceptor init: %w", route.ErrInitialization, submitErr))
			err = p.initErr
		}
	})
	return err
}

func (p *pipeline) finishInit(list []named, err error) {
	p.interceptors = list
	p.initErr = err
	close(p.ready)

	if err != nil {
		p.logger.Error("interceptor init failed", "error", err)
		return
	}
	p.logger.Info("interceptors initialized", "count", len(list))
}

func (p *pipeline) build(ctx context.Context, entries []registry.Entry) ([]named, error) {
	list := make([]named, 0, len(entries))
	for _, e := range entries {
		icpt, err := instantiate(e)
		if err != nil {
			return nil, err
		}
		list = append(list, named{name: e.Name, Interceptor: icpt})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, n := range list {
		g.Go(func() error {
			if err := n.Init(gctx); err != nil {
				return fmt.Errorf("%w: init interceptor %q: %w", route.ErrInitialization, n.name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return list, nil
}

func instantiate(e registry.Entry) (icpt route.Interceptor, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: construct interceptor %q: panic: %v", route.ErrInitialization, e.Name, r)
		}
	}()

	v := e.New()
	icpt, ok := v.(route.Interceptor)
	if !ok {
		return nil, fmt.Errorf("%w: %q (%T) does not implement route.Interceptor", route.ErrInitialization, e.Name, v)
	}
	return icpt, nil
}

// Ready reports whether initialization has finished.
func (p *pipeline) Ready() bool {
	select {
	case <-p.ready:
		return true
	default:
		return false
	}
}

// Err returns the initialization error.
func (p *pipeline) Err() error {
	if !p.Ready() {
		return nil
	}
	return p.initErr
}

// Len returns the number of registered interceptors.
func (p *pipeline) Len() int {
	return int(p.count.Load())
}

// Dispatch filters req through the interceptor chain.
func (p *pipeline) Dispatch(ctx context.Context, req *route.Request, onContinue func(*route.Request), onInterrupted func(error)) {
	if req.GreenChannel || p.Len() == 0 {
		onContinue(req)
		return
	}

	if err := p.awaitReady(ctx); err != nil {
		onInterrupted(err)
		return
	}

	err := p.exec.Submit("interceptor-chain", func() {
		p.run(ctx, req, onContinue, onInterrupted)
	})
	if err != nil {
		onInterrupted(fmt.Errorf("%w: schedule interceptor chain: %w", route.ErrInterrupted, err))
	}
}

// awaitReady blocks until initialization finishes, failing past InitWait.
func (p *pipeline) awaitReady(ctx context.Context) error {
	if !p.Ready() {
		timer := time.NewTimer(p.cfg.InitWait)
		defer timer.Stop()

		select {
		case <-p.ready:
		case <-timer.C:
			return fmt.Errorf("%w: interceptors took more than %s to initialize", route.ErrInitialization, p.cfg.InitWait)
		case <-ctx.Done():
			return fmt.Errorf("%w: waiting for interceptors: %w", route.ErrInterrupted, ctx.Err())
		}
	}
	if p.initErr != nil {
		return p.initErr
	}
	return nil
}

// run drives one chain and reports its outcome. It blocks a worker until the
// latch opens or the request timeout expires.
func (p *pipeline) run(parent context.Context, req *route.Request, onContinue func(*route.Request), onInterrupted func(error)) {
	start := time.Now()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = route.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(parent, timeout)

	c := &chain{
		ctx:          ctx,
		req:          req,
		interceptors: p.interceptors,
		latch:        NewLatch(len(p.interceptors)),
		logger:       p.logger,
	}
	// The chain runs on its own goroutine so the deadline holds even against
	// an interceptor that blocks without watching ctx.
	go c.invoke(0)

	waitErr := c.latch.Await(ctx)

	// Late callbacks become no-ops before the outcome is read, then interceptors
	// still running are told to stop.
	c.closed.Store(true)
	expired := errors.Is(ctx.Err(), context.DeadlineExceeded)
	cancel()

	var outcome string
	var err error
	switch {
	case errors.Is(waitErr, context.DeadlineExceeded),
		waitErr == nil && expired && !c.latch.Cancelled():
		outcome = OutcomeTimeout
		err = fmt.Errorf("%w after %s with %d interceptor(s) pending", route.ErrTimeout, timeout, c.latch.Count())
	case c.latch.Cancelled():
		outcome = OutcomeInterrupt
		err = fmt.Errorf("%w: %w", route.ErrInterrupted, c.reason())
	case waitErr != nil:
		outcome = OutcomeInterrupt
		err = fmt.Errorf("%w: %w", route.ErrInterrupted, waitErr)
	default:
		outcome = OutcomeContinue
	}

	if p.observer != nil {
		p.observer.ObserveChain(outcome, time.Since(start))
	}

	if err != nil {
		req.InterruptReason = interruptReason(c, outcome, err)
		p.logger.Debug("navigation interrupted",
			"path", req.Path,
			"reason", req.InterruptReason,
			"duration", time.Since(start),
		)
		onInterrupted(err)
		return
	}
	onContinue(req)
}

func interruptReason(c *chain, outcome string, err error) string {
	if outcome == OutcomeInterrupt && c.latch.Cancelled() {
		return c.reason().Error()
	}
	return err.Error()
}
