package host

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/rickgao/routerx/route"
)

// Launch is one launch seen by a Recorder.
type Launch struct {
	Path        string
	Target      string
	Kind        route.Kind
	RequestCode int
	Params      route.Params
}

// Recorder is an in-process Host that records launches. Err, when set, fails
// every launch.
type Recorder struct {
	Err    error
	logger *slog.Logger

	mu       sync.Mutex
	launches []Launch
}

// NewRecorder creates a Recorder.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{logger: logger}
}

func (r *Recorder) Launch(ctx context.Context, req *route.Request) error {
	return r.record(req, 0)
}

func (r *Recorder) LaunchForResult(ctx context.Context, req *route.Request, requestCode int) error {
	return r.record(req, requestCode)
}

func (r *Recorder) record(req *route.Request, requestCode int) error {
	if r.Err != nil {
		return r.Err
	}

	r.mu.Lock()
	r.launches = append(r.launches, Launch{
		Path:        req.Path,
		Target:      req.Target,
		Kind:        req.Kind,
		RequestCode: requestCode,
		Params:      maps.Clone(req.Params),
	})
	r.mu.Unlock()

	r.logger.Info("launched", "path", req.Path, "target", req.Target, "request_code", requestCode)
	return nil
}

// Launches returns a copy of the recorded launches in order.
func (r *Recorder) Launches() []Launch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Launch(nil), r.launches...)
}
