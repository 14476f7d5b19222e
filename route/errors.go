package route

import "errors"

// Errors
var (
	// ErrRouteNotFound means no path, group or provider matched after lazy loading.
	ErrRouteNotFound = errors.New("route not found")

	// ErrHandler covers malformed input and broken invariants, such as a path
	// without separators or a group loader that crashed.
	ErrHandler = errors.New("route handler error")

	// ErrInitialization means the router was used before start-up completed
	// or start-up itself failed.
	ErrInitialization = errors.New("router not initialized")

	// ErrDuplicatePriority is returned when two interceptors claim one priority.
	ErrDuplicatePriority = errors.New("duplicate interceptor priority")

	// ErrDuplicateRoute is returned when a path is claimed twice.
	ErrDuplicateRoute = errors.New("duplicate route")

	// ErrInterrupted is the outcome of an interceptor calling Interrupt.
	ErrInterrupted = errors.New("navigation interrupted")

	// ErrTimeout is reported when the interceptor chain outlives the request timeout.
	ErrTimeout = errors.New("interceptor chain timed out")

	// ErrTableNotFound is returned by a Catalog for an unknown table name.
	ErrTableNotFound = errors.New("route table not found")
)
