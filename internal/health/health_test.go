package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
	"github.com/John-Robertt/ammds-bridge/internal/servers"
	"github.com/John-Robertt/ammds-bridge/internal/store"
)

type fakeChecker struct {
	calls atomic.Int32
	down  map[string]bool
}

func (f *fakeChecker) HealthCheck(_ context.Context, baseURL string) (bool, error) {
	f.calls.Add(1)
	if f.down[baseURL] {
		return false, errors.New("connection refused")
	}
	return true, nil
}

func newRegistry(t *testing.T) *servers.Registry {
	t.Helper()
	reg := servers.New(store.NewMemory())
	ctx := context.Background()
	require.NoError(t, reg.Add(ctx, domain.ServerRegistration{URL: "http://a.test:8080", Enabled: true, Preferred: true}))
	require.NoError(t, reg.Add(ctx, domain.ServerRegistration{URL: "http://b.test:8080", Enabled: true}))
	require.NoError(t, reg.Add(ctx, domain.ServerRegistration{URL: "http://c.test:8080", Enabled: false}))
	return reg
}

func TestCheckAll_WritesStatus(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	chk := &fakeChecker{down: map[string]bool{"http://b.test:8080": true}}
	p := &Prober{Servers: reg, Checker: chk, Logger: zerolog.Nop()}

	out, err := p.CheckAll(ctx)
	require.NoError(t, err)
	require.Len(t, out, 2, "未启用的登记不参与探测")
	assert.EqualValues(t, 2, chk.calls.Load())

	a, _, _ := reg.Get(ctx, "http://a.test:8080")
	require.NotNil(t, a.Status)
	assert.True(t, *a.Status)

	b, _, _ := reg.Get(ctx, "http://b.test:8080")
	require.NotNil(t, b.Status)
	assert.False(t, *b.Status)

	c, _, _ := reg.Get(ctx, "http://c.test:8080")
	assert.Nil(t, c.Status)

	assert.Len(t, p.Last(), 2)
}

func TestStart_RunsImmediately(t *testing.T) {
	reg := newRegistry(t)
	chk := &fakeChecker{}
	p := &Prober{Servers: reg, Checker: chk, Interval: time.Hour, Logger: zerolog.Nop()}

	require.NoError(t, p.Start(context.Background()))
	defer func() { _ = p.Stop() }()

	assert.Eventually(t, func() bool { return chk.calls.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)
}
