package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"createtree/internal/http/handlers"
	"createtree/internal/infra"
	"createtree/internal/jobs"
	"createtree/internal/middleware"
	"createtree/internal/providers/image"
	"createtree/internal/providers/music"
	"createtree/internal/storage"
)

const validKey = "sk-test-0123456789abcdef"

// 1x1 transparent PNG
const tinyPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

type stubImageGen struct {
	name       string
	url        string
	err        error
	calls      int
	lastSource *image.SourceImage
}

func (g *stubImageGen) Name() string { return g.name }

func (g *stubImageGen) Generate(ctx context.Context, req image.GenerateRequest) (*image.Asset, error) {
	g.calls++
	g.lastSource = req.Source
	if g.err != nil {
		return nil, g.err
	}
	return &image.Asset{URL: g.url}, nil
}

// photoFetcher serves tinyPNG for every URL.
type photoFetcher struct {
	urls []string
}

func (f *photoFetcher) Fetch(ctx context.Context, rawURL string) (*image.SourceImage, error) {
	f.urls = append(f.urls, rawURL)
	data, err := base64.StdEncoding.DecodeString(tinyPNG)
	if err != nil {
		return nil, err
	}
	return &image.SourceImage{Data: data, MIME: "image/png", URL: rawURL}, nil
}

type failingMusic struct{ err error }

func (failingMusic) Name() string { return "suno" }

func (g failingMusic) Generate(ctx context.Context, req music.Request, progress music.ProgressFunc) (*music.Track, error) {
	return nil, g.err
}

type blockingMusic struct{}

func (blockingMusic) Name() string { return "blocking" }

func (blockingMusic) Generate(ctx context.Context, req music.Request, progress music.ProgressFunc) (*music.Track, error) {
	progress(5)
	<-ctx.Done()
	return nil, ctx.Err()
}

type testEnv struct {
	app     *handlers.App
	handler http.Handler
	store   *storage.FileStore
}

type envOption func(*handlers.App)

func withImages(credential string, primary, secondary image.Generator) envOption {
	return func(a *handlers.App) {
		a.Images = image.NewOrchestrator(image.OrchestratorOptions{
			Credential: credential,
			Primary:    primary,
			Secondary:  secondary,
			Assets:     a.Assets,
			Fetcher:    &photoFetcher{},
		})
	}
}

func withMusic(gen music.Generator) envOption {
	return func(a *handlers.App) { a.Music = gen }
}

func withJWT(secret string) envOption {
	return func(a *handlers.App) { a.Config.JWTSecret = secret }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	assets, err := storage.NewFileStore(t.TempDir(), "http://localhost:8080/static")
	require.NoError(t, err)
	repo := jobs.NewMemoryStore()
	logger := *infra.NopLogger()
	runner := jobs.NewRunner(repo, logger, 0)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = runner.Shutdown(ctx)
	})

	app := &handlers.App{
		Config: &infra.Config{DefaultLocale: "en", RateLimitPerMin: 1000},
		Logger: logger,
		Jobs:   repo,
		Runner: runner,
		Assets: assets,
	}
	app.Music = music.NewSyntheticGenerator(assets, nil)
	app.Images = image.NewOrchestrator(image.OrchestratorOptions{Assets: assets})
	for _, opt := range opts {
		opt(app)
	}
	return &testEnv{app: app, handler: NewRouter(app), store: assets}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type statusBody struct {
	JobID    string `json:"jobId"`
	Kind     string `json:"kind"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	AudioURL string `json:"audioUrl"`
	ImageURL string `json:"imageUrl"`
	Duration int    `json:"duration"`
	Title    string `json:"title"`
	Message  string `json:"message"`
}

type errBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *testEnv) submit(t *testing.T, path string, body any, header ...string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, path, body, header...)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	id := decodeBody[map[string]string](t, rec)["jobId"]
	require.NotEmpty(t, id)
	return id
}

func (e *testEnv) waitTerminal(t *testing.T, id string, header ...string) statusBody {
	t.Helper()
	var last statusBody
	require.Eventually(t, func() bool {
		rec := e.do(t, http.MethodGet, "/v1/jobs/"+id, nil, header...)
		if rec.Code != http.StatusOK {
			return false
		}
		last = decodeBody[statusBody](t, rec)
		return last.Status == "completed" || last.Status == "failed"
	}, 5*time.Second, 10*time.Millisecond)
	return last
}

func TestMusicJobEndToEnd(t *testing.T) {
	env := newTestEnv(t)

	id := env.submit(t, "/v1/music/jobs", map[string]any{"prompt": "a calm lullaby", "duration": "120"})

	// the record exists as soon as the submit call returns
	rec := env.do(t, http.MethodGet, "/v1/jobs/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got := env.waitTerminal(t, id)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, "music", got.Kind)
	assert.Equal(t, 100, got.Progress)
	assert.NotEmpty(t, got.AudioURL)
	assert.Equal(t, 120, got.Duration)
	assert.Equal(t, "A Calm Lullaby", got.Title)
	assert.Empty(t, got.Message)

	// polling a terminal job is idempotent
	again := decodeBody[statusBody](t, env.do(t, http.MethodGet, "/v1/jobs/"+id, nil))
	assert.Equal(t, got, again)

	// the generated track is served from the asset store
	path := strings.TrimPrefix(got.AudioURL, "http://localhost:8080")
	audio := env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, audio.Code)
	assert.Equal(t, "RIFF", audio.Body.String()[:4])
}

func TestMusicSubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []map[string]any{
		{"prompt": ""},
		{"prompt": "song", "duration": 10},
		{"prompt": "song", "duration": "ten"},
		{"prompt": "song", "vocal": "choir"},
		{"prompt": strings.Repeat("a", 3001)},
	}
	for _, body := range cases {
		rec := env.do(t, http.MethodPost, "/v1/music/jobs", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "%v", body)
		assert.Equal(t, "bad_request", decodeBody[errBody](t, rec).Error.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/music/jobs", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobStatusUnknown(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/jobs/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeBody[errBody](t, rec).Error.Code)
}

func TestCancelMusicJob(t *testing.T) {
	env := newTestEnv(t, withMusic(blockingMusic{}))
	id := env.submit(t, "/v1/music/jobs", map[string]any{"prompt": "endless"})

	require.Eventually(t, func() bool { return env.app.Runner.Running(id) }, time.Second, 5*time.Millisecond)
	rec := env.do(t, http.MethodDelete, "/v1/jobs/"+id, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	got := env.waitTerminal(t, id)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, jobs.CancelledMessage, got.Message)

	rec = env.do(t, http.MethodDelete, "/v1/jobs/"+id, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTransformWithoutCredentialReturnsPlaceholder(t *testing.T) {
	primary := &stubImageGen{name: "gpt-image-1", url: "https://img.example.com/p.png"}
	env := newTestEnv(t, withImages("not-a-key", primary, primary))

	rec := env.do(t, http.MethodPost, "/v1/images/transform", map[string]any{"image": tinyPNG, "style": "ghibli"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, image.PlaceholderFor(image.OutcomeUnavailable), body["imageUrl"])
	assert.Equal(t, "unavailable", body["outcome"])
	assert.Zero(t, primary.calls)
}

func TestTransformFallsBackToSecondary(t *testing.T) {
	primary := &stubImageGen{name: "gpt-image-1", err: errors.New("openai status 500")}
	secondary := &stubImageGen{name: "dall-e-3", url: "https://img.example.com/s.png"}
	env := newTestEnv(t, withImages(validKey, primary, secondary))

	dataURL := "data:image/png;base64," + tinyPNG
	rec := env.do(t, http.MethodPost, "/v1/images/transform", map[string]any{"image": dataURL, "style": "neon-dream"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "https://img.example.com/s.png", body["imageUrl"])
	assert.Equal(t, "success", body["outcome"])
	assert.Equal(t, "dall-e-3", body["provider"])
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestTransformRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, withImages(validKey, &stubImageGen{name: "p"}, &stubImageGen{name: "s"}))
	cases := []map[string]any{
		{"style": "ghibli"},
		{"image": tinyPNG},
		{"image": "%%%not-base64", "style": "ghibli"},
		{"image": base64.StdEncoding.EncodeToString([]byte("plain text, not an image")), "style": "ghibli"},
		{"imageUrl": "ftp://example.com/a.png", "style": "ghibli"},
		{"image": tinyPNG, "style": "ghibli", "model": "midjourney"},
	}
	for _, body := range cases {
		rec := env.do(t, http.MethodPost, "/v1/images/transform", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "%v: %s", body, rec.Body.String())
	}
}

func TestImageJobCompletes(t *testing.T) {
	primary := &stubImageGen{name: "gpt-image-1", url: "https://img.example.com/p.png"}
	env := newTestEnv(t, withImages(validKey, primary, &stubImageGen{name: "dall-e-3"}))

	id := env.submit(t, "/v1/images/jobs", map[string]any{"imageUrl": "https://photos.example.com/me.jpg", "style": "ghibli"})
	got := env.waitTerminal(t, id)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, "image", got.Kind)
	assert.Equal(t, "https://img.example.com/p.png", got.ImageURL)
	assert.Empty(t, got.AudioURL)
	require.True(t, primary.lastSource.HasData(), "the photo behind imageUrl reaches the provider")
	assert.Equal(t, "image/png", primary.lastSource.MIME)
	assert.Equal(t, "https://photos.example.com/me.jpg", primary.lastSource.URL)
}

func TestImageJobSafetyRejectionKeepsPlaceholder(t *testing.T) {
	primary := &stubImageGen{name: "gpt-image-1", err: errors.New("openai status 400: moderation_blocked")}
	secondary := &stubImageGen{name: "dall-e-3", url: "https://img.example.com/s.png"}
	env := newTestEnv(t, withImages(validKey, primary, secondary))

	id := env.submit(t, "/v1/images/jobs", map[string]any{"image": tinyPNG, "style": "ghibli"})
	got := env.waitTerminal(t, id)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, image.PlaceholderFor(image.OutcomePolicyRejected), got.ImageURL)
	assert.Contains(t, got.Message, "safety")
	assert.Zero(t, secondary.calls)
}

func TestJobsAreScopedToOwner(t *testing.T) {
	const secret = "router-secret"
	env := newTestEnv(t, withJWT(secret))

	tokenFor := func(sub string) string {
		tok, err := middleware.SignJWT(secret, middleware.TokenClaims{Sub: sub, Exp: time.Now().Add(time.Hour).Unix()})
		require.NoError(t, err)
		return "Bearer " + tok
	}
	alice, bob := tokenFor("alice"), tokenFor("bob")

	id := env.submit(t, "/v1/music/jobs", map[string]any{"prompt": "a calm lullaby", "duration": 30}, "Authorization", alice)
	got := env.waitTerminal(t, id, "Authorization", alice)
	assert.Equal(t, "completed", got.Status)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/jobs/"+id, nil, "Authorization", bob).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/jobs/"+id, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/v1/jobs/"+id, nil, "Authorization", "Bearer junk").Code)
}

func TestStylesAndHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/styles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	styles := decodeBody[[]map[string]string](t, rec)
	require.NotEmpty(t, styles)
	for i := 1; i < len(styles); i++ {
		assert.Less(t, styles[i-1]["key"], styles[i]["key"])
	}

	health := decodeBody[map[string]string](t, env.do(t, http.MethodGet, "/v1/healthz", nil))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "unavailable", health["images"])
	assert.Equal(t, "synthetic", health["music"])

	rec = env.do(t, http.MethodGet, "/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticDoesNotListDirectories(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.store.Write(context.Background(), "music/x.wav", []byte("RIFF"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/static/music/x.wav", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/static/music/", nil).Code)
}

func TestOpenAPIDocument(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/openapi.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decodeBody[map[string]any](t, rec)
	assert.Contains(t, doc, "paths")
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec = env.do(t, http.MethodGet, "/v1/openapi.json", nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/docs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `spec-url="/v1/openapi.json"`)
}

func TestMusicJobFailureKeepsProviderMessage(t *testing.T) {
	env := newTestEnv(t, withMusic(failingMusic{err: errors.New("suno: lyrics rejected by moderation")}))

	id := env.submit(t, "/v1/music/jobs", map[string]any{"prompt": "a calm lullaby"})
	got := env.waitTerminal(t, id)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, "suno: lyrics rejected by moderation", got.Message)
}
