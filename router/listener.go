package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/rickgao/routerx/route"
)

// Listener observes one navigation. OnFound fires after resolution; exactly
// one of OnLost, OnArrived or OnInterrupted fires at the end, except for
// kinds that return a value instead of arriving.
type Listener interface {
	OnFound(req *route.Request)
	OnLost(req *route.Request)
	OnArrived(req *route.Request)
	OnInterrupted(req *route.Request)
}

// ListenerFuncs adapts optional functions to Listener.
type ListenerFuncs struct {
	Found       func(*route.Request)
	Lost        func(*route.Request)
	Arrived     func(*route.Request)
	Interrupted func(*route.Request)
}

func (l ListenerFuncs) OnFound(req *route.Request) {
	if l.Found != nil {
		l.Found(req)
	}
}

func (l ListenerFuncs) OnLost(req *route.Request) {
	if l.Lost != nil {
		l.Lost(req)
	}
}

func (l ListenerFuncs) OnArrived(req *route.Request) {
	if l.Arrived != nil {
		l.Arrived(req)
	}
}

func (l ListenerFuncs) OnInterrupted(req *route.Request) {
	if l.Interrupted != nil {
		l.Interrupted(req)
	}
}

// Host performs the platform launch of activities and services. Both methods
// are only ever called from the router's main loop.
type Host interface {
	Launch(ctx context.Context, req *route.Request) error
	LaunchForResult(ctx context.Context, req *route.Request, requestCode int) error
}

// logHost is the default Host; it only logs.
type logHost struct {
	logger *slog.Logger
}

func (h logHost) Launch(ctx context.Context, req *route.Request) error {
	h.logger.Info("launch", "path", req.Path, "target", req.Target, "kind", req.Kind)
	return nil
}

func (h logHost) LaunchForResult(ctx context.Context, req *route.Request, requestCode int) error {
	h.logger.Info("launch for result", "path", req.Path, "target", req.Target, "request_code", requestCode)
	return nil
}

// Navigation outcomes reported to the Observer.
const (
	OutcomeDispatched  = "dispatched"
	OutcomeLost        = "lost"
	OutcomeInterrupted = "interrupted"
	OutcomeError       = "error"
)

// Observer receives navigation and interceptor chain measurements.
type Observer interface {
	ObserveNavigation(outcome string, kind route.Kind, elapsed time.Duration)
	ObserveChain(outcome string, elapsed time.Duration)
}
