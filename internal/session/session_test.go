package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
	"github.com/John-Robertt/ammds-bridge/internal/relay"
	"github.com/John-Robertt/ammds-bridge/internal/store"
)

type recordNotifier struct {
	mu   sync.Mutex
	sent []domain.TabInfo
}

func (r *recordNotifier) Notify(_ context.Context, name string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == relay.MsgTabActive {
		r.sent = append(r.sent, data.(domain.TabInfo))
	}
	return nil
}

func TestTracker_ActivateAndPersist(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	n := &recordNotifier{}
	tr, err := New(ctx, kv, n, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, tr.UpdateTab(ctx, 1, domain.TabInfo{Title: "a", URL: "https://a.test"}))
	require.NoError(t, tr.UpdateTab(ctx, 2, domain.TabInfo{Title: "b", URL: "https://b.test"}))
	require.NoError(t, tr.Activate(ctx, 1, 9))
	require.NoError(t, tr.Activate(ctx, 2, 0))

	st := tr.State()
	assert.Equal(t, 2, st.ActiveTabID)
	assert.Equal(t, 1, st.PreviousTabID)
	assert.Equal(t, 9, st.WindowID)
	assert.Equal(t, "https://b.test", st.URL)
	assert.Equal(t, domain.TabInfo{Title: "a", URL: "https://a.test"}, tr.ActiveTab(0))
	assert.Equal(t, []domain.TabInfo{{Title: "a", URL: "https://a.test"}, {Title: "b", URL: "https://b.test"}}, n.sent)

	fav, err := tr.ToggleFavorited(ctx)
	require.NoError(t, err)
	assert.True(t, fav)

	// 重新加载后状态仍在。
	tr2, err := New(ctx, kv, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, tr2.State().ActiveTabID)
	assert.True(t, tr2.State().IsFavorited)

	raw, ok, err := kv.Get(ctx, store.KeyState)
	require.NoError(t, err)
	require.True(t, ok)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Contains(t, m, "activateTabId")
}

func TestTracker_RelayAccessors(t *testing.T) {
	ctx := context.Background()
	restricted, privileged := relay.Pipe(zerolog.Nop())
	defer restricted.Close()

	tr, err := New(ctx, store.NewMemory(), privileged, zerolog.Nop())
	require.NoError(t, err)
	tr.Register(privileged)

	require.NoError(t, tr.UpdateTab(ctx, 5, domain.TabInfo{Title: "five", URL: "https://five.test"}))

	raw, err := restricted.Call(ctx, relay.MsgGetTab, relay.TabQuery{TabID: 5})
	require.NoError(t, err)
	var info domain.TabInfo
	require.NoError(t, json.Unmarshal(raw, &info))
	assert.Equal(t, "five", info.Title)

	raw, err = restricted.Call(ctx, relay.MsgGetActiveTab, nil)
	require.NoError(t, err)
	info = domain.TabInfo{}
	require.NoError(t, json.Unmarshal(raw, &info))
	assert.Empty(t, info.Title)
}
