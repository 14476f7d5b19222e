package route

import (
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds the interceptor chain of a request.
const DefaultTimeout = 300 * time.Second

// State is the lifecycle position of a Request.
type State int32

const (
	StateBuilt State = iota
	StateResolved
	StateFiltered
	StateDispatched
	StateLost
	StateInterrupted
)

var stateNames = [...]string{
	StateBuilt:       "built",
	StateResolved:    "resolved",
	StateFiltered:    "filtered",
	StateDispatched:  "dispatched",
	StateLost:        "lost",
	StateInterrupted: "interrupted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is allowed from s.
func (s State) Terminal() bool {
	return s == StateDispatched || s == StateLost || s == StateInterrupted
}

// transitions lists the legal next states.
var transitions = map[State][]State{
	StateBuilt:    {StateResolved, StateLost},
	StateResolved: {StateFiltered, StateInterrupted},
	StateFiltered: {StateDispatched},
}

// Request is the mutable descriptor threaded through one navigation. It is
// enriched in place by resolution and must be rebuilt after reaching a
// terminal state.
type Request struct {
	ID     uuid.UUID
	Path   string
	Group  string
	URI    *url.URL
	Params Params

	// Filled by resolution.
	Target     string
	New        Factory
	Kind       Kind
	Priority   int
	Extras     int
	ParamKinds map[string]DataKind
	Provider   any

	Timeout         time.Duration
	GreenChannel    bool
	InterruptReason string

	// Host hints.
	Flags       int
	Action      string
	RequestCode int

	state atomic.Int32
}

// NewRequest returns a Built request for path and group.
func NewRequest(path, group string) *Request {
	return &Request{
		ID:       uuid.New(),
		Path:     path,
		Group:    group,
		Params:   make(Params),
		Kind:     KindUnknown,
		Priority: Unset,
		Extras:   Unset,
		Timeout:  DefaultTimeout,
		Flags:    Unset,
	}
}

// State returns the current lifecycle state. Safe for concurrent use.
func (r *Request) State() State {
	return State(r.state.Load())
}

// Advance moves the request to next, rejecting transitions the lifecycle does not allow.
func (r *Request) Advance(next State) error {
	for {
		cur := State(r.state.Load())
		if !allowed(cur, next) {
			return fmt.Errorf("%w: request %s cannot move from %s to %s", ErrHandler, r.ID, cur, next)
		}
		if r.state.CompareAndSwap(int32(cur), int32(next)) {
			return nil
		}
	}
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (r *Request) String() string {
	return fmt.Sprintf("Request{id=%s, path=%s, group=%s, kind=%s, state=%s}",
		r.ID, r.Path, r.Group, r.Kind, r.State())
}

// WithString sets a string parameter.
func (r *Request) WithString(key, value string) *Request {
	r.Params[key] = value
	return r
}

// WithInt sets an int parameter.
func (r *Request) WithInt(key string, value int) *Request {
	r.Params[key] = value
	return r
}

// WithInt64 sets an int64 parameter.
func (r *Request) WithInt64(key string, value int64) *Request {
	r.Params[key] = value
	return r
}

// WithBool sets a bool parameter.
func (r *Request) WithBool(key string, value bool) *Request {
	r.Params[key] = value
	return r
}

// WithFloat64 sets a float64 parameter.
func (r *Request) WithFloat64(key string, value float64) *Request {
	r.Params[key] = value
	return r
}

// WithObject sets an arbitrary value.
func (r *Request) WithObject(key string, value any) *Request {
	r.Params[key] = value
	return r
}

// WithTimeout overrides the interceptor chain timeout.
func (r *Request) WithTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

// WithGreenChannel makes the request skip every interceptor.
func (r *Request) WithGreenChannel() *Request {
	r.GreenChannel = true
	return r
}

// WithFlags sets host launch flags.
func (r *Request) WithFlags(flags int) *Request {
	r.Flags = flags
	return r
}

// WithAction sets the host action string.
func (r *Request) WithAction(action string) *Request {
	r.Action = action
	return r
}

// ForResult asks the host to launch the target expecting a result under code.
func (r *Request) ForResult(code int) *Request {
	r.RequestCode = code
	return r
}
