package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rickgao/routerx/route"
)

// Navigate resolves req, filters it through the interceptors and dispatches
// it. It blocks until the outcome is known. Provider, fragment, broadcast and
// content provider kinds return their instance; activities and services
// return nil once the host has launched them. listener may be nil.
func (r *Router) Navigate(ctx context.Context, req *route.Request, listener Listener) (any, error) {
	if err := r.checkStarted(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: request is nil", route.ErrHandler)
	}
	if st := req.State(); st != route.StateBuilt {
		return nil, fmt.Errorf("%w: request %s is %s, build a new one", route.ErrHandler, req.ID, st)
	}

	ctx, span := r.tracer.Start(ctx, "routerx.navigate",
		trace.WithAttributes(
			attribute.String("routerx.request_id", req.ID.String()),
			attribute.String("routerx.path", req.Path),
			attribute.String("routerx.group", req.Group),
		),
	)
	defer span.End()

	start := time.Now()
	result, outcome, err := r.navigate(ctx, req, listener)
	elapsed := time.Since(start)

	span.SetAttributes(
		attribute.String("routerx.kind", req.Kind.String()),
		attribute.String("routerx.state", req.State().String()),
		attribute.Bool("routerx.green_channel", req.GreenChannel),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	if r.observer != nil {
		r.observer.ObserveNavigation(outcome, req.Kind, elapsed)
	}
	r.logger.Debug("navigation finished",
		"path", req.Path,
		"kind", req.Kind,
		"outcome", outcome,
		"duration", elapsed,
	)
	return result, err
}

func (r *Router) navigate(ctx context.Context, req *route.Request, listener Listener) (any, string, error) {
	if err := r.complete(ctx, req); err != nil {
		if errors.Is(err, route.ErrRouteNotFound) {
			_ = req.Advance(route.StateLost)
			r.lost(ctx, req, listener)
			return nil, OutcomeLost, err
		}
		// A group that failed to load or a provider that failed to build
		// still ends the request.
		_ = req.Advance(route.StateLost)
		return nil, OutcomeError, err
	}

	if listener != nil {
		listener.OnFound(req)
	}

	if req.GreenChannel {
		if err := req.Advance(route.StateFiltered); err != nil {
			return nil, OutcomeError, err
		}
		return r.dispatch(ctx, req, listener)
	}

	// The pipeline reports exactly once, and its chain ends when ctx does,
	// so this wait is bounded by ctx and the request timeout.
	done := make(chan error, 1)
	r.pipe.Dispatch(ctx, req,
		func(*route.Request) { done <- nil },
		func(err error) { done <- err },
	)

	if chainErr := <-done; chainErr != nil {
		if req.InterruptReason == "" {
			req.InterruptReason = chainErr.Error()
		}
		_ = req.Advance(route.StateInterrupted)
		r.logger.Info("navigation interrupted", "path", req.Path, "reason", req.InterruptReason)
		if listener != nil {
			listener.OnInterrupted(req)
		}
		return nil, OutcomeInterrupted, chainErr
	}

	if err := req.Advance(route.StateFiltered); err != nil {
		return nil, OutcomeError, err
	}
	return r.dispatch(ctx, req, listener)
}

// complete fills req from its route and moves it to Resolved.
func (r *Router) complete(ctx context.Context, req *route.Request) error {
	meta, err := r.reg.ResolvePath(req.Path, req.Group)
	if err != nil {
		return err
	}

	req.Target = meta.Target
	req.New = meta.New
	req.Kind = meta.Kind
	req.Priority = meta.Priority
	req.Extras = meta.Extras
	req.ParamKinds = meta.Params

	if req.URI != nil {
		r.inflate(ctx, req, meta)
	}

	switch meta.Kind {
	case route.KindProvider:
		inst, err := r.reg.BindProvider(ctx, meta)
		if err != nil {
			return err
		}
		req.Provider = inst
		req.GreenChannel = true
	case route.KindFragment:
		req.GreenChannel = true
	}

	return req.Advance(route.StateResolved)
}

// inflate copies the URI query parameters the route declares into req.Params,
// converted to their declared kinds. Values that fail to convert are skipped.
func (r *Router) inflate(ctx context.Context, req *route.Request, meta route.Meta) {
	if req.Params == nil {
		req.Params = make(route.Params)
	}
	query := req.URI.Query()

	for name, kind := range meta.Params {
		if !query.Has(name) {
			continue
		}
		raw := query.Get(name)

		if kind == route.DataAny {
			s := r.serialization(ctx)
			if s == nil {
				r.logger.Warn("no serialization service, skipping parameter", "path", req.Path, "param", name)
				continue
			}
			var v any
			if err := s.Parse(raw, &v); err != nil {
				r.logger.Warn("skipping unparseable parameter", "path", req.Path, "param", name, "error", err)
				continue
			}
			req.Params[name] = v
			continue
		}

		v, err := kind.Convert(raw)
		if err != nil {
			r.logger.Warn("skipping unparseable parameter", "path", req.Path, "param", name, "kind", kind, "error", err)
			continue
		}
		req.Params[name] = v
	}

	req.Params[route.KeyAutoInject] = meta.ParamNames()
	req.Params[route.KeyRawURI] = req.URI.String()
}

// dispatch hands a Filtered request to its target.
func (r *Router) dispatch(ctx context.Context, req *route.Request, listener Listener) (any, string, error) {
	switch req.Kind {
	case route.KindActivity, route.KindService:
		err := r.loop.Call(ctx, func() error {
			var err error
			if req.RequestCode > 0 {
				err = r.host.LaunchForResult(ctx, req, req.RequestCode)
			} else {
				err = r.host.Launch(ctx, req)
			}
			if err != nil {
				return err
			}
			if err := req.Advance(route.StateDispatched); err != nil {
				return err
			}
			if listener != nil {
				listener.OnArrived(req)
			}
			return nil
		})
		if err != nil {
			// Cancellation is reported as is; a dropped launch leaves the request Filtered.
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return nil, OutcomeError, err
			}
			return nil, OutcomeError, fmt.Errorf("%w: launch %s: %w", route.ErrHandler, req.Target, err)
		}
		return nil, OutcomeDispatched, nil

	case route.KindProvider:
		if err := req.Advance(route.StateDispatched); err != nil {
			return nil, OutcomeError, err
		}
		return req.Provider, OutcomeDispatched, nil

	case route.KindFragment, route.KindBroadcast, route.KindContentProvider:
		inst, err := instantiate(req)
		if err != nil {
			return nil, OutcomeError, err
		}
		if recv, ok := inst.(route.ParamsReceiver); ok && req.Kind == route.KindFragment {
			recv.SetParams(req.Params)
		}
		if err := req.Advance(route.StateDispatched); err != nil {
			return nil, OutcomeError, err
		}
		return inst, OutcomeDispatched, nil

	case route.KindMethod, route.KindUnknown:
		return nil, OutcomeError, fmt.Errorf("%w: %s targets cannot be navigated to (%s)", route.ErrHandler, req.Kind, req.Path)

	default:
		return nil, OutcomeError, fmt.Errorf("%w: unknown kind %d at %s", route.ErrHandler, int(req.Kind), req.Path)
	}
}

func instantiate(req *route.Request) (inst any, err error) {
	if req.New == nil {
		return nil, fmt.Errorf("%w: %s has no constructor", route.ErrHandler, req.Target)
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: construct %s: panic: %v", route.ErrHandler, req.Target, rec)
		}
	}()
	return req.New(), nil
}

// lost reports a request that matched no route. The listener wins over the
// demotion service.
func (r *Router) lost(ctx context.Context, req *route.Request, listener Listener) {
	if r.cfg.Debug {
		r.logger.Warn("there's no route matched",
			"path", req.Path,
			"group", req.Group,
			"tip", "check that the route is annotated and its module's tables are linked in",
		)
	}

	if listener != nil {
		listener.OnLost(req)
		return
	}
	if d := r.demotion(ctx); d != nil {
		d.OnLost(ctx, req)
	}
}
