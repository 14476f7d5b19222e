// Package demo holds a small application's route tables, written the way the
// code generator emits them. The CLI serves it when no other tables are linked in.
package demo

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rickgao/routerx/internal/serial"
	"github.com/rickgao/routerx/route"
)

// ExtraLogin marks routes that require a signed-in session.
const ExtraLogin = 1

// ErrLoginRequired interrupts navigation to a login-only route.
var ErrLoginRequired = errors.New("login required")

// Interceptor and provider names.
const (
	InterceptorAudit = "demo.Audit"
	InterceptorLogin = "demo.Login"
	ProviderGreeter  = "demo.Greeter"
)

// Session is the signed-in state the login interceptor checks.
type Session struct {
	user atomic.Pointer[string]
}

// SignIn records user as signed in.
func (s *Session) SignIn(user string) { s.user.Store(&user) }

// SignOut clears the session.
func (s *Session) SignOut() { s.user.Store(nil) }

// User returns the signed-in user, if any.
func (s *Session) User() (string, bool) {
	u := s.user.Load()
	if u == nil {
		return "", false
	}
	return *u, true
}

// App is the demo application. Register its tables with Register.
type App struct {
	Session *Session
	Demoter *Demoter
	logger  *slog.Logger
}

// New creates the demo application.
func New(logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		Session: &Session{},
		Demoter: &Demoter{logger: logger},
		logger:  logger,
	}
}

// Register adds the root, interceptor and provider tables of module to c.
func (a *App) Register(c *route.Catalog, module string) {
	c.RegisterRoot(module, a.root)
	c.RegisterInterceptors(module, a.interceptors)
	c.RegisterProviders(module, a.providers)
}

func (a *App) root(idx route.GroupIndex) error {
	if err := idx.AddGroup("user", userGroup); err != nil {
		return err
	}
	if err := idx.AddGroup("shop", shopGroup); err != nil {
		return err
	}
	return idx.AddGroup("svc", a.svcGroup)
}

func userGroup() ([]route.Meta, error) {
	return []route.Meta{
		{
			Kind:     route.KindActivity,
			Target:   "demo.ProfileActivity",
			Path:     "/user/profile",
			Priority: route.Unset,
			Extras:   route.Unset,
			Params: map[string]route.DataKind{
				"id":   route.DataLong,
				"name": route.DataString,
			},
		},
		{
			Kind:     route.KindActivity,
			Target:   "demo.LoginActivity",
			Path:     "/user/login",
			Priority: route.Unset,
			Extras:   route.Unset,
		},
		{
			Kind:     route.KindFragment,
			Target:   "demo.SettingsFragment",
			New:      func() any { return &SettingsFragment{} },
			Path:     "/user/settings",
			Priority: route.Unset,
			Extras:   route.Unset,
			Params: map[string]route.DataKind{
				"tab": route.DataString,
			},
		},
	}, nil
}

func shopGroup() ([]route.Meta, error) {
	return []route.Meta{
		{
			Kind:     route.KindActivity,
			Target:   "demo.CartActivity",
			Path:     "/shop/cart",
			Priority: 10,
			Extras:   ExtraLogin,
		},
		{
			Kind:     route.KindActivity,
			Target:   "demo.OrderActivity",
			Path:     "/shop/order",
			Priority: 10,
			Extras:   ExtraLogin,
			Params: map[string]route.DataKind{
				"order": route.DataLong,
				"items": route.DataAny,
			},
		},
		{
			Kind:     route.KindBroadcast,
			Target:   "demo.PriceReceiver",
			New:      func() any { return &PriceReceiver{} },
			Path:     "/shop/prices",
			Priority: route.Unset,
			Extras:   route.Unset,
		},
	}, nil
}

func (a *App) svcGroup() ([]route.Meta, error) {
	return []route.Meta{
		{Kind: route.KindProvider, Target: "demo.Greeter", New: func() any { return &Greeter{} }, Path: "/svc/greeter", Priority: route.Unset, Extras: route.Unset},
		{Kind: route.KindProvider, Target: "demo.JSON", New: func() any { return serial.New() }, Path: "/svc/json", Priority: route.Unset, Extras: route.Unset},
		{Kind: route.KindProvider, Target: "demo.Demoter", New: func() any { return a.Demoter }, Path: "/svc/demote", Priority: route.Unset, Extras: route.Unset},
		{Kind: route.KindProvider, Target: "demo.Paths", New: func() any { return NewPathRewriter(legacyPrefixes) }, Path: "/svc/paths", Priority: route.Unset, Extras: route.Unset},
	}, nil
}

func (a *App) interceptors(idx route.InterceptorIndex) error {
	if err := idx.AddInterceptor(1, InterceptorAudit, func() any { return &Audit{logger: a.logger} }); err != nil {
		return err
	}
	return idx.AddInterceptor(7, InterceptorLogin, func() any { return &Login{session: a.Session} })
}

func (a *App) providers(idx route.ProviderIndex) error {
	provided := []struct {
		name   string
		target string
		path   string
	}{
		{ProviderGreeter, "demo.Greeter", "/svc/greeter"},
		{route.ServiceSerialization, "demo.JSON", "/svc/json"},
		{route.ServiceDemote, "demo.Demoter", "/svc/demote"},
		{route.ServicePathReplace, "demo.Paths", "/svc/paths"},
	}
	for _, p := range provided {
		meta := route.Meta{Kind: route.KindProvider, Target: p.target, Path: p.path, Priority: route.Unset, Extras: route.Unset}
		if err := idx.AddProvider(p.name, meta); err != nil {
			return err
		}
	}
	return nil
}

// Audit logs every request that enters the chain.
type Audit struct {
	logger *slog.Logger
}

func (a *Audit) Init(ctx context.Context) error { return nil }

func (a *Audit) Process(ctx context.Context, req *route.Request, cb route.Callback) {
	a.logger.Debug("navigation", "path", req.Path, "target", req.Target, "request_id", req.ID)
	cb.Continue(req)
}

// Login interrupts requests for login-only routes while signed out.
type Login struct {
	session *Session
}

func (l *Login) Init(ctx context.Context) error { return nil }

func (l *Login) Process(ctx context.Context, req *route.Request, cb route.Callback) {
	if req.Extras != route.Unset && req.Extras&ExtraLogin != 0 {
		if _, ok := l.session.User(); !ok {
			cb.Interrupt(ErrLoginRequired)
			return
		}
	}
	cb.Continue(req)
}

// Greeter is a sample provider.
type Greeter struct {
	ready atomic.Bool
}

func (g *Greeter) Init(ctx context.Context) error {
	g.ready.Store(true)
	return nil
}

// Greet returns a greeting for name.
func (g *Greeter) Greet(name string) string {
	if !g.ready.Load() {
		return ""
	}
	return "hello, " + name
}

// SettingsFragment receives its params on dispatch.
type SettingsFragment struct {
	Params route.Params
}

func (f *SettingsFragment) SetParams(p route.Params) { f.Params = p }

// PriceReceiver is a sample broadcast receiver.
type PriceReceiver struct{}

// Demoter records lost paths.
type Demoter struct {
	logger *slog.Logger

	mu   sync.Mutex
	lost []string
}

func (d *Demoter) OnLost(ctx context.Context, req *route.Request) {
	d.logger.Warn("route lost, nothing to demote to", "path", req.Path, "group", req.Group)
	d.mu.Lock()
	d.lost = append(d.lost, req.Path)
	d.mu.Unlock()
}

// Lost returns the paths reported so far.
func (d *Demoter) Lost() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lost...)
}

var legacyPrefixes = map[string]string{
	"/account/": "/user/",
	"/store/":   "/shop/",
}

// PathRewriter maps legacy path prefixes to their current groups.
type PathRewriter struct {
	prefixes map[string]string
}

// NewPathRewriter creates a rewriter for the given old to new prefixes.
func NewPathRewriter(prefixes map[string]string) *PathRewriter {
	return &PathRewriter{prefixes: prefixes}
}

func (p *PathRewriter) ForString(path string) string {
	for old, repl := range p.prefixes {
		if rest, ok := strings.CutPrefix(path, old); ok {
			return repl + rest
		}
	}
	return path
}

func (p *PathRewriter) ForURI(uri *url.URL) *url.URL {
	out := *uri
	out.Path = p.ForString(uri.Path)
	return &out
}
