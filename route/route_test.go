package route

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractGroup(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "two segments", path: "/user/profile", want: "user"},
		{name: "deep path", path: "/shop/cart/items", want: "shop"},
		{name: "empty", path: "", wantErr: true},
		{name: "no leading slash", path: "user/profile", wantErr: true},
		{name: "single segment", path: "/user", wantErr: true},
		{name: "empty group", path: "//profile", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractGroup(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrHandler)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewMeta_DerivesGroup(t *testing.T) {
	params := map[string]DataKind{"id": DataLong}
	m, err := NewMeta(KindActivity, "app.Profile", nil, "/user/profile", "", 0, Unset, params)
	require.NoError(t, err)

	assert.Equal(t, "user", m.Group)
	assert.Equal(t, 0, m.Priority)

	// The normalized copy must not share the caller's map.
	params["name"] = DataString
	assert.NotContains(t, m.Params, "name")
}

func TestNewMeta_Invalid(t *testing.T) {
	_, err := NewMeta(KindActivity, "app.X", nil, "", "", 0, 0, nil)
	assert.ErrorIs(t, err, ErrHandler)

	_, err = NewMeta(KindActivity, "app.X", nil, "relative/path", "g", 0, 0, nil)
	assert.ErrorIs(t, err, ErrHandler)

	_, err = NewMeta(KindActivity, "app.X", nil, "/lonely", "", 0, 0, nil)
	assert.ErrorIs(t, err, ErrHandler)
}

func TestNewMeta_ExplicitGroupKept(t *testing.T) {
	m, err := NewMeta(KindFragment, "app.F", nil, "/lonely", "custom", 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "custom", m.Group)
}

func TestSortMetas(t *testing.T) {
	metas := []Meta{{Path: "/b/x"}, {Path: "/a/z"}, {Path: "/a/b"}}
	SortMetas(metas)
	assert.Equal(t, []string{"/a/b", "/a/z", "/b/x"}, []string{metas[0].Path, metas[1].Path, metas[2].Path})
}

func TestKind_RoundTrip(t *testing.T) {
	for k := KindActivity; k <= KindUnknown; k++ {
		assert.Equal(t, k, ParseKind(k.String()))
	}
	assert.Equal(t, KindUnknown, ParseKind("spaceship"))
	assert.Equal(t, KindProvider, ParseKind(" Provider "))
}

func TestDataKind_Convert(t *testing.T) {
	tests := []struct {
		kind    DataKind
		raw     string
		want    any
		wantErr bool
	}{
		{kind: DataBool, raw: "true", want: true},
		{kind: DataBool, raw: "maybe", wantErr: true},
		{kind: DataByte, raw: "12", want: int8(12)},
		{kind: DataByte, raw: "300", wantErr: true},
		{kind: DataShort, raw: "-7", want: int16(-7)},
		{kind: DataInt, raw: "42", want: int32(42)},
		{kind: DataInt, raw: "forty", wantErr: true},
		{kind: DataLong, raw: "9000000000", want: int64(9000000000)},
		{kind: DataChar, raw: "x", want: 'x'},
		{kind: DataChar, raw: "xy", wantErr: true},
		{kind: DataFloat, raw: "1.5", want: float32(1.5)},
		{kind: DataDouble, raw: "2.25", want: 2.25},
		{kind: DataString, raw: "hello", want: "hello"},
		{kind: DataAny, raw: "{}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String()+"/"+tt.raw, func(t *testing.T) {
			got, err := tt.kind.Convert(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequest_Defaults(t *testing.T) {
	req := NewRequest("/user/profile", "user")

	assert.Equal(t, StateBuilt, req.State())
	assert.Equal(t, DefaultTimeout, req.Timeout)
	assert.Equal(t, Unset, req.Priority)
	assert.Equal(t, Unset, req.Flags)
	assert.False(t, req.GreenChannel)
	assert.NotEmpty(t, req.ID.String())
}

func TestRequest_Advance(t *testing.T) {
	tests := []struct {
		name  string
		steps []State
		fail  State
	}{
		{name: "dispatched", steps: []State{StateResolved, StateFiltered, StateDispatched}, fail: StateResolved},
		{name: "lost", steps: []State{StateLost}, fail: StateResolved},
		{name: "interrupted", steps: []State{StateResolved, StateInterrupted}, fail: StateFiltered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewRequest("/a/b", "a")
			for _, s := range tt.steps {
				require.NoError(t, req.Advance(s))
			}
			assert.True(t, req.State().Terminal())

			err := req.Advance(tt.fail)
			assert.ErrorIs(t, err, ErrHandler)
		})
	}
}

func TestRequest_AdvanceSkipsRejected(t *testing.T) {
	req := NewRequest("/a/b", "a")
	assert.ErrorIs(t, req.Advance(StateDispatched), ErrHandler)
	assert.Equal(t, StateBuilt, req.State())
}

func TestRequest_Builders(t *testing.T) {
	req := NewRequest("/a/b", "a").
		WithString("name", "ann").
		WithInt("age", 30).
		WithBool("vip", true).
		WithTimeout(time.Second).
		WithGreenChannel().
		ForResult(7)

	name, ok := req.Params.String("name")
	assert.True(t, ok)
	assert.Equal(t, "ann", name)

	age, ok := req.Params.Int("age")
	assert.True(t, ok)
	assert.Equal(t, int64(30), age)

	vip, ok := req.Params.Bool("vip")
	assert.True(t, ok)
	assert.True(t, vip)

	assert.Equal(t, time.Second, req.Timeout)
	assert.True(t, req.GreenChannel)
	assert.Equal(t, 7, req.RequestCode)
	assert.Equal(t, []string{"age", "name", "vip"}, req.Params.Keys())
}

func TestParams_Bind(t *testing.T) {
	var target struct {
		ID      int64         `param:"id"`
		Name    string        `param:"name"`
		Wait    time.Duration `param:"wait"`
		Missing string        `param:"missing"`
	}

	p := Params{"id": "42", "name": "ann", "wait": "2s"}
	require.NoError(t, p.Bind(&target))

	assert.Equal(t, int64(42), target.ID)
	assert.Equal(t, "ann", target.Name)
	assert.Equal(t, 2*time.Second, target.Wait)
	assert.Empty(t, target.Missing)
}

func TestParams_BindRejectsNonPointer(t *testing.T) {
	var target struct{}
	assert.Error(t, Params{"a": 1}.Bind(target))
}

type recordingIndex struct {
	groups       []string
	interceptors []string
	providers    []string
}

func (r *recordingIndex) AddGroup(name string, _ GroupFunc) error {
	r.groups = append(r.groups, name)
	return nil
}

func (r *recordingIndex) AddInterceptor(_ int, name string, _ Factory) error {
	r.interceptors = append(r.interceptors, name)
	return nil
}

func (r *recordingIndex) AddProvider(name string, _ Meta) error {
	r.providers = append(r.providers, name)
	return nil
}

func TestCatalog_Load(t *testing.T) {
	c := NewCatalog()
	root := c.RegisterRoot("app", func(idx GroupIndex) error {
		return idx.AddGroup("user", func() ([]Meta, error) { return nil, nil })
	})
	icpt := c.RegisterInterceptors("app", func(idx InterceptorIndex) error {
		return idx.AddInterceptor(1, "app.Login", func() any { return nil })
	})
	prov := c.RegisterProviders("app", func(idx ProviderIndex) error {
		return idx.AddProvider("app.Hello", Meta{Path: "/svc/hello"})
	})

	assert.Equal(t, "routerx.root.app", root)
	assert.Equal(t, []string{icpt, prov, root}, c.Names())

	idx := &recordingIndex{}
	for _, n := range c.Names() {
		require.NoError(t, c.Load(n, idx))
	}

	assert.Equal(t, []string{"user"}, idx.groups)
	assert.Equal(t, []string{"app.Login"}, idx.interceptors)
	assert.Equal(t, []string{"app.Hello"}, idx.providers)
}

func TestCatalog_LoadUnknown(t *testing.T) {
	c := NewCatalog()
	err := c.Load("routerx.root.ghost", &recordingIndex{})
	assert.True(t, errors.Is(err, ErrTableNotFound))
}
