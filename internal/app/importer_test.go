package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
	"github.com/John-Robertt/ammds-bridge/internal/handler"
	"github.com/John-Robertt/ammds-bridge/internal/relay"
)

type fakeHandler struct {
	matches atomic.Int32
	meta    domain.Metadata
	err     error
}

func (h *fakeHandler) Name() string { return "fake" }

func (h *fakeHandler) Matches(rawURL string) bool {
	h.matches.Add(1)
	return strings.HasPrefix(rawURL, "https://fake.test/")
}

func (h *fakeHandler) Extract(_ context.Context, p handler.Page) (domain.Metadata, error) {
	if h.err != nil {
		return domain.Metadata{}, h.err
	}
	return h.meta, nil
}

func (h *fakeHandler) Author() domain.Author { return domain.OfficialAuthor }
func (h *fakeHandler) View() handler.View    { return handler.View{} }

func (h *fakeHandler) Automate(ctx context.Context, p handler.Page, cb handler.AutomateFunc) error {
	return handler.AutomateWith(ctx, h, p, cb)
}

type fakeServers struct{ ok bool }

func (s fakeServers) Preferred(context.Context) (domain.ServerRegistration, bool, error) {
	if !s.ok {
		return domain.ServerRegistration{}, false, nil
	}
	return domain.ServerRegistration{Name: "AMMDS", URL: "http://127.0.0.1:8080", Enabled: true, Preferred: true}, true, nil
}

type fakeAPI struct {
	mu     sync.Mutex
	got    []domain.Metadata
	fail   error
	reject bool
}

func (a *fakeAPI) ImportMovie(_ context.Context, meta domain.Metadata) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail != nil {
		return false, a.fail
	}
	a.got = append(a.got, meta)
	return !a.reject, nil
}

type fakeSession struct{ fav, sub int }

func (s *fakeSession) ToggleFavorited(context.Context) (bool, error) {
	s.fav++
	return s.fav%2 == 1, nil
}

func (s *fakeSession) ToggleSubscribed(context.Context) (bool, error) {
	s.sub++
	return s.sub%2 == 1, nil
}

type fakeAssets map[string][]byte

func (f fakeAssets) Download(_ context.Context, rawURL, _ string) ([]byte, string, error) {
	b, ok := f[rawURL]
	if !ok {
		return nil, "", errors.New("not found")
	}
	return b, "image/jpeg", nil
}

func newImporter(t *testing.T, h *fakeHandler, configured bool) (*Importer, *fakeAPI) {
	t.Helper()
	reg := handler.NewRegistry(zerolog.Nop())
	require.NoError(t, reg.Register(h))
	api := &fakeAPI{}
	return &Importer{
		Servers:  fakeServers{ok: configured},
		Registry: reg,
		API:      api,
		Logger:   zerolog.Nop(),
	}, api
}

func sampleMeta() domain.Metadata {
	return domain.Metadata{UniqueID: "ABC-123", OriginalTitle: "title", FanartURL: []string{"https://img.test/cover.jpg"}}
}

func TestImport_ConfigurationErrorBeforeResolution(t *testing.T) {
	h := &fakeHandler{meta: sampleMeta()}
	im, api := newImporter(t, h, false)

	_, err := im.Import(context.Background(), handler.Page{URL: "https://fake.test/ABC-123"})
	var ce *relay.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.EqualValues(t, 0, h.matches.Load(), "配置错误时不应解析 handler")
	assert.Empty(t, api.got)

	err = im.Automate(context.Background(), handler.Page{URL: "https://fake.test/ABC-123"})
	require.ErrorAs(t, err, &ce)
	assert.EqualValues(t, 0, h.matches.Load())
}

func TestImport_NoHandler(t *testing.T) {
	im, api := newImporter(t, &fakeHandler{meta: sampleMeta()}, true)
	_, err := im.Import(context.Background(), handler.Page{URL: "https://other.test/x"})
	require.ErrorIs(t, err, handler.ErrNoHandler)
	assert.Empty(t, api.got)
}

func TestImport_ExtractionFailureNotSubmitted(t *testing.T) {
	h := &fakeHandler{err: &handler.UnmatchedPageError{Handler: "fake", Reason: "verify"}}
	im, api := newImporter(t, h, true)
	_, err := im.Import(context.Background(), handler.Page{URL: "https://fake.test/x"})
	assert.True(t, handler.IsUnmatchedPage(err))
	assert.Empty(t, api.got)
}

func TestFavoriteAndSubscribe(t *testing.T) {
	im, api := newImporter(t, &fakeHandler{meta: sampleMeta()}, true)
	sess := &fakeSession{}
	im.Session = sess

	r, err := im.Favorite(context.Background(), handler.Page{URL: "https://fake.test/ABC-123"})
	require.NoError(t, err)
	assert.Equal(t, ActionFavorite, r.Action)
	assert.Equal(t, "fake", r.Handler)

	_, err = im.Subscribe(context.Background(), handler.Page{URL: "https://fake.test/ABC-123"})
	require.NoError(t, err)

	require.Len(t, api.got, 2)
	assert.True(t, api.got[0].Favorite)
	assert.False(t, api.got[0].Subscribe)
	assert.True(t, api.got[1].Subscribe)
	assert.Equal(t, 1, sess.fav)
	assert.Equal(t, 1, sess.sub)
}

func TestImport_APIErrorPropagates(t *testing.T) {
	im, api := newImporter(t, &fakeHandler{meta: sampleMeta()}, true)
	api.fail = &relay.ApplicationError{Code: 500, Message: "boom"}
	_, err := im.Import(context.Background(), handler.Page{URL: "https://fake.test/ABC-123"})
	var ae *relay.ApplicationError
	require.ErrorAs(t, err, &ae)
}

func TestImport_RejectedByServer(t *testing.T) {
	im, api := newImporter(t, &fakeHandler{meta: sampleMeta()}, true)
	api.reject = true

	_, err := im.Import(context.Background(), handler.Page{URL: "https://fake.test/ABC-123"})
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "导入失败")

	im.Session = &fakeSession{}
	_, err = im.Favorite(context.Background(), handler.Page{URL: "https://fake.test/ABC-123"})
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "收藏失败")

	var item domain.ItemResult
	fail(&item, err)
	assert.Equal(t, domain.StatusFailed, item.Status)
	assert.Equal(t, domain.ErrCodeApplication, item.ErrorCode)
}

func TestImport_SynthesizesPosterFromWideCover(t *testing.T) {
	im, api := newImporter(t, &fakeHandler{meta: sampleMeta()}, true)
	im.Attachments = true
	im.Assets = fakeAssets{"https://img.test/cover.jpg": jpegOf(t, 400, 200)}

	_, err := im.Import(context.Background(), handler.Page{URL: "https://fake.test/ABC-123"})
	require.NoError(t, err)
	require.Len(t, api.got, 1)

	m := api.got[0]
	require.Len(t, m.Fanart, 1)
	assert.Equal(t, "fanart.jpg", m.Fanart[0].Name)
	require.Len(t, m.Poster, 1)
	assert.Equal(t, "image/jpeg", m.Poster[0].MimeType)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(m.Poster[0].Data))
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Width)
	assert.Equal(t, 200, cfg.Height)
}

func TestImport_MissingAssetsOnlyWarn(t *testing.T) {
	im, api := newImporter(t, &fakeHandler{meta: sampleMeta()}, true)
	im.Attachments = true
	im.Assets = fakeAssets{}

	_, err := im.Import(context.Background(), handler.Page{URL: "https://fake.test/ABC-123"})
	require.NoError(t, err)
	require.Len(t, api.got, 1)
	assert.Empty(t, api.got[0].Poster)
	assert.Empty(t, api.got[0].Fanart)
}

func TestAutomate_SubmitsCallbackMetadata(t *testing.T) {
	im, api := newImporter(t, &fakeHandler{meta: sampleMeta()}, true)
	require.NoError(t, im.Automate(context.Background(), handler.Page{URL: "https://fake.test/ABC-123"}))
	require.Len(t, api.got, 1)
	assert.Equal(t, "ABC-123", api.got[0].UniqueID)
}

func jpegOf(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}
