package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/plugflow/app"
	"github.com/BaSui01/plugflow/plugin"
)

func setupCache(t *testing.T) (*miniredis.Miniredis, *app.App, *Cache) {
	t.Helper()

	mr := miniredis.RunT(t)

	p, err := New()
	require.NoError(t, err)
	c := p.(*Cache)
	require.NoError(t, c.Configure(map[string]any{
		"addr":        mr.Addr(),
		"default_ttl": "1m",
	}))

	a := app.New(nil, nil)
	require.NoError(t, c.InitApp(a))
	t.Cleanup(func() { _ = c.OnUnload() })

	return mr, a, c
}

func TestCache_InitApp_PublishesService(t *testing.T) {
	_, a, _ := setupCache(t)

	svc, ok := FromApp(a)
	require.True(t, ok)
	assert.NotNil(t, svc)
}

func TestCache_InitApp_ConnectionRefused(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	c := p.(*Cache)
	require.NoError(t, c.Configure(map[string]any{"addr": "127.0.0.1:1"}))

	err = c.InitApp(app.New(nil, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to redis")
}

func TestCache_Configure_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  map[string]any
	}{
		{name: "empty addr", cfg: map[string]any{"addr": ""}},
		{name: "addr wrong type", cfg: map[string]any{"addr": 42}},
		{name: "db wrong type", cfg: map[string]any{"db": "two"}},
		{name: "bad ttl", cfg: map[string]any{"default_ttl": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New()
			require.NoError(t, err)
			assert.Error(t, p.Configure(tt.cfg))
		})
	}
}

func TestService_SetAndGet(t *testing.T) {
	_, a, _ := setupCache(t)
	svc, _ := FromApp(a)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "greeting", "hello", time.Minute))

	val, err := svc.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello", val)
}

func TestService_GetMiss(t *testing.T) {
	_, a, _ := setupCache(t)
	svc, _ := FromApp(a)

	_, err := svc.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestService_JSONRoundTrip(t *testing.T) {
	_, a, _ := setupCache(t)
	svc, _ := FromApp(a)
	ctx := context.Background()

	type payload struct {
		ID    int    `json:"id"`
		Label string `json:"label"`
	}
	require.NoError(t, svc.SetJSON(ctx, "obj", payload{ID: 7, Label: "seven"}, 0))

	var got payload
	require.NoError(t, svc.GetJSON(ctx, "obj", &got))
	assert.Equal(t, payload{ID: 7, Label: "seven"}, got)
}

func TestService_Delete(t *testing.T) {
	_, a, _ := setupCache(t)
	svc, _ := FromApp(a)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "doomed", "bye", 0))
	require.NoError(t, svc.Delete(ctx, "doomed"))

	_, err := svc.Get(ctx, "doomed")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestService_DefaultTTL(t *testing.T) {
	mr, a, _ := setupCache(t)
	svc, _ := FromApp(a)

	require.NoError(t, svc.Set(context.Background(), "expiring", "v", 0))
	assert.Greater(t, mr.TTL("expiring"), time.Duration(0))
}

func TestCache_Healthcheck(t *testing.T) {
	mr, _, c := setupCache(t)

	status, err := c.Healthcheck()
	require.NoError(t, err)
	assert.Equal(t, plugin.HealthOK, status.Status)
	assert.Equal(t, Name, status.Plugin)

	// A downed backend surfaces as an error.
	mr.Close()
	_, err = c.Healthcheck()
	assert.Error(t, err)
}

func TestCache_Healthcheck_BeforeInit(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	_, err = p.Healthcheck()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}

func TestCache_OnUnload_ClosesService(t *testing.T) {
	_, a, c := setupCache(t)
	svc, _ := FromApp(a)

	require.NoError(t, c.OnUnload())

	err := svc.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")

	// Idempotent.
	assert.NoError(t, c.OnUnload())
}
