package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
	"github.com/John-Robertt/ammds-bridge/internal/handler"
	"github.com/John-Robertt/ammds-bridge/internal/handler/all"
	"github.com/John-Robertt/ammds-bridge/internal/relay"
	"github.com/John-Robertt/ammds-bridge/internal/servers"
	"github.com/John-Robertt/ammds-bridge/internal/session"
	"github.com/John-Robertt/ammds-bridge/internal/store"
)

type fixture struct {
	srv     *Server
	ts      *httptest.Server
	servers *servers.Registry
	tracker *session.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	kv := store.NewMemory()
	tracker, err := session.New(ctx, kv, nil, zerolog.Nop())
	require.NoError(t, err)

	hub := relay.NewHub(zerolog.Nop(), func(p *relay.Peer) { tracker.Register(p) })
	tracker.SetNotifier(hub)

	s := &Server{
		Logger:   zerolog.Nop(),
		Hub:      hub,
		Servers:  servers.New(kv),
		Session:  tracker,
		Handlers: handler.NewRegistry(zerolog.Nop(), all.Modules()...),
	}
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return &fixture{srv: s, ts: ts, servers: s.Servers, tracker: tracker}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "ok", out["status"])
	assert.EqualValues(t, 0, out["relays"])
}

func TestServersCRUD(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/servers", domain.ServerRegistration{URL: "http://nas:8080", Enabled: true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var got domain.ServerRegistration
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, domain.DefaultServerName, got.Name)

	resp = f.do(t, http.MethodPost, "/api/v1/servers", domain.ServerRegistration{URL: "http://nas:8080/"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/api/v1/servers/default", urlBody{URL: "http://nas:8080"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	reg, ok, err := f.servers.Preferred(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "http://nas:8080", reg.URL)

	resp = f.do(t, http.MethodPut, "/api/v1/servers/default", urlBody{URL: "http://other:1"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/api/v1/servers?url=http://nas:8080", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	all, err := f.servers.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSessionRoutes(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPut, "/api/v1/session/tabs/7", domain.TabInfo{Title: "t", URL: "https://www.javbus.com/ABC-123"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/v1/session/tabs/7/activate?windowId=3", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st domain.SessionState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, 7, st.ActiveTabID)
	assert.Equal(t, 3, st.WindowID)
	assert.Equal(t, "https://www.javbus.com/ABC-123", st.URL)

	resp = f.do(t, http.MethodPost, "/api/v1/session/tabs/abc/activate", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlersAndExtract(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/v1/handlers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hs []handlerInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&hs))
	names := make([]string, 0, len(hs))
	for _, h := range hs {
		names = append(names, h.Name)
	}
	assert.Equal(t, []string{"javbus", "javdb", "avdanyuwiki"}, names)

	resp = f.do(t, http.MethodPost, "/api/v1/extract", map[string]string{"url": "https://unknown.test/x", "html": "<html/>"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/v1/extract", map[string]string{"url": "https://www.javbus.com/ABC-123", "html": "<html><title>x</title></html>"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestRelayOverWebsocket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.tracker.UpdateTab(ctx, 9, domain.TabInfo{Title: "nine", URL: "https://nine.test"}))

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/api/v1/relay"
	p, err := relay.DialWS(ctx, wsURL, nil, zerolog.Nop())
	require.NoError(t, err)
	defer p.Close()

	notified := make(chan domain.TabInfo, 1)
	p.Handle(relay.MsgTabActive, func(_ context.Context, m relay.Message) (any, error) {
		var info domain.TabInfo
		_ = json.Unmarshal(m.Data, &info)
		notified <- info
		return nil, nil
	})

	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	raw, err := p.Call(callCtx, relay.MsgGetTab, relay.TabQuery{TabID: 9})
	require.NoError(t, err)
	var info domain.TabInfo
	require.NoError(t, json.Unmarshal(raw, &info))
	assert.Equal(t, "nine", info.Title)

	require.Eventually(t, func() bool { return f.srv.Hub.Count() == 1 }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, f.tracker.Activate(ctx, 9, 0))
	select {
	case got := <-notified:
		assert.Equal(t, "https://nine.test", got.URL)
	case <-time.After(3 * time.Second):
		t.Fatal("未收到 tab-active 通知")
	}
}
