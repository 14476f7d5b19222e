package route

import (
	"context"
	"net/url"
)

// Provider is implemented by targets that need one-time initialization after
// construction. Providers and interceptors are initialized exactly once.
type Provider interface {
	Init(ctx context.Context) error
}

// Callback carries the outcome of one interceptor. Only the first call counts.
type Callback interface {
	// Continue hands the request to the next interceptor.
	Continue(req *Request)

	// Interrupt stops the chain and records reason on the request.
	Interrupt(reason error)
}

// Interceptor filters requests before dispatch. Process must eventually call
// exactly one method of cb; ctx is cancelled once the chain no longer waits
// for it.
type Interceptor interface {
	Provider
	Process(ctx context.Context, req *Request, cb Callback)
}

// Provider names under which the router looks up optional services.
const (
	ServicePathReplace   = "routerx.service.PathReplace"
	ServiceDemote        = "routerx.service.Demote"
	ServiceSerialization = "routerx.service.Serialization"
)

// PathReplacer rewrites paths and URIs before a request is built.
type PathReplacer interface {
	ForString(path string) string
	ForURI(uri *url.URL) *url.URL
}

// Demoter handles lost requests when the caller passed no listener.
type Demoter interface {
	OnLost(ctx context.Context, req *Request)
}

// Serializer converts "any" parameters.
type Serializer interface {
	ToJSON(v any) (string, error)
	Parse(data string, into any) error
}
