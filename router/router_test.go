package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/rickgao/routerx/internal/serial"
	"github.com/rickgao/routerx/route"
)

type recordingHost struct {
	mu       sync.Mutex
	launches []string
	codes    []int
	err      error
}

func (h *recordingHost) Launch(ctx context.Context, req *route.Request) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.launches = append(h.launches, req.Path)
	return nil
}

func (h *recordingHost) LaunchForResult(ctx context.Context, req *route.Request, requestCode int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.launches = append(h.launches, req.Path)
	h.codes = append(h.codes, requestCode)
	return nil
}

func (h *recordingHost) Launches() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.launches...)
}

// gate blocks the shop cart and lets everything else through.
type gate struct {
	calls atomic.Int32
}

func (g *gate) Init(ctx context.Context) error { return nil }

func (g *gate) Process(ctx context.Context, req *route.Request, cb route.Callback) {
	g.calls.Add(1)
	if req.Path == "/shop/cart" {
		cb.Interrupt(errors.New("blocked"))
		return
	}
	cb.Continue(req)
}

type helloService struct {
	inits atomic.Int32
}

func (h *helloService) Init(ctx context.Context) error {
	h.inits.Add(1)
	return nil
}

func (h *helloService) Hello() string { return "hello" }

type settingsFragment struct {
	params route.Params
}

func (f *settingsFragment) SetParams(p route.Params) { f.params = p }

type receiver struct{}

type recordingListener struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingListener) record(event string) {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

func (l *recordingListener) OnFound(*route.Request)       { l.record("found") }
func (l *recordingListener) OnLost(*route.Request)        { l.record("lost") }
func (l *recordingListener) OnArrived(*route.Request)     { l.record("arrived") }
func (l *recordingListener) OnInterrupted(*route.Request) { l.record("interrupted") }

func (l *recordingListener) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type recordingDemoter struct {
	lost atomic.Int32
}

func (d *recordingDemoter) OnLost(ctx context.Context, req *route.Request) { d.lost.Add(1) }

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
	chains   []string
}

func (o *recordingObserver) ObserveNavigation(outcome string, kind route.Kind, elapsed time.Duration) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, outcome)
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveChain(outcome string, elapsed time.Duration) {
	o.mu.Lock()
	o.chains = append(o.chains, outcome)
	o.mu.Unlock()
}

// prefixReplacer rewrites the legacy /old group to /user.
type prefixReplacer struct{}

func (prefixReplacer) ForString(path string) string {
	if rest, ok := strings.CutPrefix(path, "/old/"); ok {
		return "/user/" + rest
	}
	return path
}

func (p prefixReplacer) ForURI(uri *url.URL) *url.URL {
	out := *uri
	out.Path = p.ForString(uri.Path)
	return &out
}

type fixture struct {
	r     *Router
	host  *recordingHost
	gate  *gate
	hello *helloService
}

func (f *fixture) catalog() *route.Catalog {
	c := route.NewCatalog()
	c.RegisterRoot("test", func(idx route.GroupIndex) error {
		err := idx.AddGroup("user", func() ([]route.Meta, error) {
			return []route.Meta{
				{
					Kind:   route.KindActivity,
					Target: "test.Profile",
					Path:   "/user/profile",
					Params: map[string]route.DataKind{
						"id":   route.DataInt,
						"name": route.DataString,
						"vip":  route.DataBool,
						"tags": route.DataAny,
					},
				},
				{Kind: route.KindFragment, Target: "test.Settings", Path: "/user/settings", New: func() any { return &settingsFragment{} }},
			}, nil
		})
		if err != nil {
			return err
		}
		err = idx.AddGroup("shop", func() ([]route.Meta, error) {
			return []route.Meta{
				{Kind: route.KindActivity, Target: "test.Cart", Path: "/shop/cart"},
				{Kind: route.KindBroadcast, Target: "test.Receiver", Path: "/shop/receiver", New: func() any { return &receiver{} }},
				{Kind: route.KindMethod, Target: "test.Compute", Path: "/shop/compute"},
			}, nil
		})
		if err != nil {
			return err
		}
		return idx.AddGroup("svc", func() ([]route.Meta, error) {
			return []route.Meta{
				{Kind: route.KindProvider, Target: "test.Hello", Path: "/svc/hello", New: func() any { return f.hello }},
				{Kind: route.KindProvider, Target: "test.JSON", Path: "/svc/json", New: func() any { return serial.New() }},
			}, nil
		})
	})
	c.RegisterInterceptors("test", func(idx route.InterceptorIndex) error {
		return idx.AddInterceptor(1, "test.Gate", func() any { return f.gate })
	})
	c.RegisterProviders("test", func(idx route.ProviderIndex) error {
		if err := idx.AddProvider("test.Hello", route.Meta{Kind: route.KindProvider, Target: "test.Hello", Path: "/svc/hello"}); err != nil {
			return err
		}
		return idx.AddProvider(route.ServiceSerialization, route.Meta{Kind: route.KindProvider, Target: "test.JSON", Path: "/svc/json"})
	})
	return c
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{host: &recordingHost{}, gate: &gate{}, hello: &helloService{}}
	base := []Option{
		WithCatalog(f.catalog()),
		WithHost(f.host),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	f.r = New(cfg, append(base, opts...)...)

	require.NoError(t, f.r.Start(context.Background()))
	t.Cleanup(func() {
		_ = f.r.Stop(context.Background())
	})
	return f
}

func (f *fixture) build(t *testing.T, path string) *route.Request {
	t.Helper()
	req, err := f.r.Build(context.Background(), path)
	require.NoError(t, err)
	return req
}

func TestNavigate_BeforeStart(t *testing.T) {
	r := New(Config{}, WithCatalog(route.NewCatalog()))
	_, err := r.Navigate(context.Background(), route.NewRequest("/user/profile", "user"), nil)
	assert.ErrorIs(t, err, route.ErrInitialization)
}

func TestStart_Twice(t *testing.T) {
	f := newFixture(t, Config{})
	assert.ErrorIs(t, f.r.Start(context.Background()), route.ErrInitialization)
}

func TestNavigate_Activity(t *testing.T) {
	f := newFixture(t, Config{})
	l := &recordingListener{}

	req := f.build(t, "/user/profile")
	result, err := f.r.Navigate(context.Background(), req, l)
	require.NoError(t, err)

	assert.Nil(t, result)
	assert.Equal(t, route.StateDispatched, req.State())
	assert.Equal(t, "test.Profile", req.Target)
	assert.Equal(t, route.KindActivity, req.Kind)
	assert.Equal(t, []string{"/user/profile"}, f.host.Launches())
	assert.Equal(t, []string{"found", "arrived"}, l.Events())
	assert.Equal(t, int32(1), f.gate.calls.Load())
}

func TestNavigate_ForResult(t *testing.T) {
	f := newFixture(t, Config{})

	req := f.build(t, "/user/profile").ForResult(42)
	_, err := f.r.Navigate(context.Background(), req, nil)
	require.NoError(t, err)

	f.host.mu.Lock()
	defer f.host.mu.Unlock()
	assert.Equal(t, []int{42}, f.host.codes)
}

func TestNavigate_HostFailure(t *testing.T) {
	f := newFixture(t, Config{})
	f.host.err = errors.New("shell gone")

	_, err := f.r.Navigate(context.Background(), f.build(t, "/user/profile"), nil)
	assert.ErrorIs(t, err, route.ErrHandler)
}

func TestNavigate_InflatesURI(t *testing.T) {
	f := newFixture(t, Config{})

	uri, err := url.Parse(`/user/profile?id=42&name=alice&vip=true&junk=x&tags=%5B%22a%22%2C%22b%22%5D`)
	require.NoError(t, err)
	req, err := f.r.BuildURI(context.Background(), uri)
	require.NoError(t, err)

	_, err = f.r.Navigate(context.Background(), req, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(42), req.Params["id"])
	assert.Equal(t, "alice", req.Params["name"])
	assert.Equal(t, true, req.Params["vip"])
	assert.Equal(t, []any{"a", "b"}, req.Params["tags"])
	assert.NotContains(t, req.Params, "junk")
	assert.Equal(t, []string{"id", "name", "tags", "vip"}, req.Params[route.KeyAutoInject])
	assert.Equal(t, uri.String(), req.Params[route.KeyRawURI])
}

func TestNavigate_UnparseableParamSkipped(t *testing.T) {
	f := newFixture(t, Config{})

	uri, _ := url.Parse("/user/profile?id=abc&vip=yes&name=bob")
	req, err := f.r.BuildURI(context.Background(), uri)
	require.NoError(t, err)

	_, err = f.r.Navigate(context.Background(), req, nil)
	require.NoError(t, err)

	assert.NotContains(t, req.Params, "id")
	assert.NotContains(t, req.Params, "vip")
	assert.Equal(t, "bob", req.Params["name"])
}

func TestNavigate_Lost(t *testing.T) {
	t.Run("listener", func(t *testing.T) {
		d := &recordingDemoter{}
		f := newFixture(t, Config{Debug: true}, WithDemoter(d))
		l := &recordingListener{}

		req := f.build(t, "/user/ghost")
		_, err := f.r.Navigate(context.Background(), req, l)

		assert.ErrorIs(t, err, route.ErrRouteNotFound)
		assert.Equal(t, route.StateLost, req.State())
		assert.Equal(t, []string{"lost"}, l.Events())
		assert.Zero(t, d.lost.Load())
	})

	t.Run("demoter", func(t *testing.T) {
		d := &recordingDemoter{}
		f := newFixture(t, Config{}, WithDemoter(d))

		_, err := f.r.Navigate(context.Background(), f.build(t, "/nowhere/at/all"), nil)
		assert.ErrorIs(t, err, route.ErrRouteNotFound)
		assert.Equal(t, int32(1), d.lost.Load())
	})

	t.Run("no demoter", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.r.Navigate(context.Background(), f.build(t, "/nowhere/at/all"), nil)
		assert.ErrorIs(t, err, route.ErrRouteNotFound)
	})
}

func TestNavigate_Interrupted(t *testing.T) {
	f := newFixture(t, Config{})
	l := &recordingListener{}

	req := f.build(t, "/shop/cart")
	_, err := f.r.Navigate(context.Background(), req, l)

	assert.ErrorIs(t, err, route.ErrInterrupted)
	assert.Equal(t, route.StateInterrupted, req.State())
	assert.Equal(t, "blocked", req.InterruptReason)
	assert.Equal(t, []string{"found", "interrupted"}, l.Events())
	assert.Empty(t, f.host.Launches())
}

func TestNavigate_GreenChannelSkipsInterceptors(t *testing.T) {
	f := newFixture(t, Config{})

	req := f.build(t, "/shop/cart").WithGreenChannel()
	_, err := f.r.Navigate(context.Background(), req, nil)
	require.NoError(t, err)

	assert.Zero(t, f.gate.calls.Load())
	assert.Equal(t, []string{"/shop/cart"}, f.host.Launches())
}

func TestNavigate_Provider(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	viaPath, err := f.r.Navigate(ctx, f.build(t, "/svc/hello"), nil)
	require.NoError(t, err)

	viaName, err := f.r.Provider(ctx, "test.Hello")
	require.NoError(t, err)

	typed, err := ProviderOf[*helloService](ctx, f.r, "test.Hello")
	require.NoError(t, err)

	assert.Same(t, f.hello, viaPath)
	assert.Same(t, f.hello, viaName)
	assert.Same(t, f.hello, typed)
	assert.Equal(t, int32(1), f.hello.inits.Load())
	assert.Zero(t, f.gate.calls.Load())
}

func TestProviderOf_WrongType(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := ProviderOf[route.Demoter](context.Background(), f.r, "test.Hello")
	assert.ErrorIs(t, err, route.ErrHandler)
}

func TestProvider_Unknown(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.r.Provider(context.Background(), "test.Missing")
	assert.ErrorIs(t, err, route.ErrRouteNotFound)
}

func TestNavigate_Fragment(t *testing.T) {
	f := newFixture(t, Config{})

	req := f.build(t, "/user/settings").WithString("tab", "privacy")
	result, err := f.r.Navigate(context.Background(), req, nil)
	require.NoError(t, err)

	frag, ok := result.(*settingsFragment)
	require.True(t, ok)
	assert.Equal(t, "privacy", frag.params["tab"])
	assert.True(t, req.GreenChannel)
	assert.Zero(t, f.gate.calls.Load())
}

func TestNavigate_Broadcast(t *testing.T) {
	f := newFixture(t, Config{})

	result, err := f.r.Navigate(context.Background(), f.build(t, "/shop/receiver"), nil)
	require.NoError(t, err)
	assert.IsType(t, &receiver{}, result)
}

func TestNavigate_MethodRejected(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.r.Navigate(context.Background(), f.build(t, "/shop/compute"), nil)
	assert.ErrorIs(t, err, route.ErrHandler)
}

func TestNavigate_TerminalRequestRejected(t *testing.T) {
	f := newFixture(t, Config{})

	req := f.build(t, "/user/profile")
	_, err := f.r.Navigate(context.Background(), req, nil)
	require.NoError(t, err)

	_, err = f.r.Navigate(context.Background(), req, nil)
	assert.ErrorIs(t, err, route.ErrHandler)
	assert.Len(t, f.host.Launches(), 1)
}

func TestNavigate_Concurrent(t *testing.T) {
	f := newFixture(t, Config{})

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := f.r.Build(context.Background(), "/user/profile")
			if err != nil {
				failures.Add(1)
				return
			}
			if _, err := f.r.Navigate(context.Background(), req, nil); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Len(t, f.host.Launches(), 32)
	stats := f.r.Stats().Registry
	assert.Equal(t, 2, stats.Routes)
	assert.Equal(t, int64(1), stats.GroupsLoaded)
}

func TestBuild(t *testing.T) {
	f := newFixture(t, Config{}, WithPathReplacer(prefixReplacer{}))
	ctx := context.Background()

	req, err := f.r.Build(ctx, "/old/profile")
	require.NoError(t, err)
	assert.Equal(t, "/user/profile", req.Path)
	assert.Equal(t, "user", req.Group)

	req, err = f.r.BuildGroup(ctx, "/old/profile", "custom")
	require.NoError(t, err)
	assert.Equal(t, "/user/profile", req.Path)
	assert.Equal(t, "custom", req.Group)

	uri, _ := url.Parse("/old/profile?id=1")
	req, err = f.r.BuildURI(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, "/user/profile", req.URI.Path)
	assert.Equal(t, "/old/profile", uri.Path)

	_, err = f.r.Build(ctx, "")
	assert.ErrorIs(t, err, route.ErrHandler)
	_, err = f.r.Build(ctx, "nogroup")
	assert.ErrorIs(t, err, route.ErrHandler)
	_, err = f.r.BuildGroup(ctx, "/user/profile", "")
	assert.ErrorIs(t, err, route.ErrHandler)
}

func TestInject(t *testing.T) {
	f := newFixture(t, Config{})

	var target struct {
		ID   int    `param:"id"`
		Name string `param:"name"`
	}
	req := f.build(t, "/user/profile").WithString("id", "7").WithString("name", "eve")
	require.NoError(t, f.r.Inject(&target, req))
	assert.Equal(t, 7, target.ID)
	assert.Equal(t, "eve", target.Name)

	frag := &settingsFragment{}
	require.NoError(t, f.r.Inject(frag, req))
	assert.Equal(t, "eve", frag.params["name"])

	assert.ErrorIs(t, f.r.Inject(nil, req), route.ErrHandler)
}

func TestDestroy(t *testing.T) {
	t.Run("release mode", func(t *testing.T) {
		f := newFixture(t, Config{})
		assert.ErrorIs(t, f.r.Destroy(context.Background()), route.ErrHandler)
	})

	t.Run("debug mode", func(t *testing.T) {
		f := newFixture(t, Config{Debug: true})
		require.NoError(t, f.r.Destroy(context.Background()))

		assert.Zero(t, f.r.Stats().Registry.PendingGroups)
		_, err := f.r.Navigate(context.Background(), route.NewRequest("/user/profile", "user"), nil)
		assert.ErrorIs(t, err, route.ErrInitialization)
	})
}

func TestObserverAndTracing(t *testing.T) {
	obs := &recordingObserver{}
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t, Config{}, WithObserver(obs), WithTracer(tp.Tracer("test")))
	ctx := context.Background()

	_, err := f.r.Navigate(ctx, f.build(t, "/user/profile"), nil)
	require.NoError(t, err)
	_, err = f.r.Navigate(ctx, f.build(t, "/user/ghost"), nil)
	require.Error(t, err)

	obs.mu.Lock()
	assert.Equal(t, []string{OutcomeDispatched, OutcomeLost}, obs.outcomes)
	assert.Equal(t, []string{"continue"}, obs.chains)
	obs.mu.Unlock()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "routerx.navigate", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestListenerFuncs_NilSafe(t *testing.T) {
	var called bool
	l := ListenerFuncs{Arrived: func(*route.Request) { called = true }}

	req := route.NewRequest("/a/b", "a")
	l.OnFound(req)
	l.OnLost(req)
	l.OnInterrupted(req)
	l.OnArrived(req)
	assert.True(t, called)
}

func TestResolve(t *testing.T) {
	f := newFixture(t, Config{}, WithPathReplacer(prefixReplacer{}))
	ctx := context.Background()

	meta, err := f.r.Resolve(ctx, "/old/profile")
	require.NoError(t, err)
	assert.Equal(t, "test.Profile", meta.Target)
	assert.Equal(t, route.KindActivity, meta.Kind)

	_, err = f.r.Resolve(ctx, "/user/ghost")
	assert.ErrorIs(t, err, route.ErrRouteNotFound)
	assert.Zero(t, f.gate.calls.Load(), "resolve must not run interceptors")
}

func TestLoadAll(t *testing.T) {
	f := newFixture(t, Config{})
	require.NotEmpty(t, f.r.PendingGroups())

	require.NoError(t, f.r.LoadAll(context.Background()))
	assert.Empty(t, f.r.PendingGroups())
	assert.Len(t, f.r.Routes(), 7)
}

func TestRequestTimeoutFromConfig(t *testing.T) {
	f := newFixture(t, Config{Timeout: 3 * time.Second})
	req := f.build(t, "/user/profile")
	assert.Equal(t, 3*time.Second, req.Timeout)
}

// slowHost takes delay to launch and ignores ctx while doing so.
type slowHost struct {
	recordingHost
	delay time.Duration
}

func (h *slowHost) Launch(ctx context.Context, req *route.Request) error {
	time.Sleep(h.delay)
	return h.recordingHost.Launch(ctx, req)
}

func TestNavigate_StartedLaunchOutlivesContext(t *testing.T) {
	host := &slowHost{delay: 300 * time.Millisecond}
	f := newFixture(t, Config{}, WithHost(host))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := f.build(t, "/user/profile")
	_, err := f.r.Navigate(ctx, req, nil)
	require.NoError(t, err)

	assert.Equal(t, route.StateDispatched, req.State())
	assert.Equal(t, []string{"/user/profile"}, host.Launches())

	// The request is spent, so a retry cannot launch twice.
	_, err = f.r.Navigate(context.Background(), req, nil)
	assert.ErrorIs(t, err, route.ErrHandler)
	assert.Len(t, host.Launches(), 1)
}

// blockingHost holds the first launch until release is closed.
type blockingHost struct {
	recordingHost
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (h *blockingHost) Launch(ctx context.Context, req *route.Request) error {
	first := false
	h.once.Do(func() { first = true })
	if first {
		close(h.entered)
		<-h.release
	}
	return h.recordingHost.Launch(ctx, req)
}

func TestNavigate_QueuedLaunchDroppedOnCancel(t *testing.T) {
	host := &blockingHost{entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, Config{}, WithHost(host))

	held := f.build(t, "/user/profile")
	first := make(chan error, 1)
	go func() {
		_, err := f.r.Navigate(context.Background(), held, nil)
		first <- err
	}()
	<-host.entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := f.build(t, "/user/profile")
	_, err := f.r.Navigate(ctx, req, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, route.ErrHandler)
	assert.Equal(t, route.StateFiltered, req.State())

	close(host.release)
	require.NoError(t, <-first)
	// Anything still queued on the loop has run once this returns.
	require.NoError(t, f.r.loop.Call(context.Background(), func() error { return nil }))

	assert.Len(t, host.Launches(), 1)
}

func TestNavigate_GroupLoadFailureEndsRequest(t *testing.T) {
	c := route.NewCatalog()
	c.RegisterRoot("broken", func(idx route.GroupIndex) error {
		return idx.AddGroup("broken", func() ([]route.Meta, error) {
			return nil, errors.New("generated table is corrupt")
		})
	})
	f := newFixture(t, Config{}, WithCatalog(c))
	l := &recordingListener{}

	req := route.NewRequest("/broken/page", "broken")
	_, err := f.r.Navigate(context.Background(), req, l)
	require.Error(t, err)
	assert.ErrorIs(t, err, route.ErrHandler)
	assert.NotErrorIs(t, err, route.ErrRouteNotFound)
	assert.Equal(t, route.StateLost, req.State())
	assert.True(t, req.State().Terminal())
	assert.Empty(t, l.Events())

	_, err = f.r.Navigate(context.Background(), req, nil)
	assert.ErrorIs(t, err, route.ErrHandler)
	assert.Empty(t, f.host.Launches())
}
