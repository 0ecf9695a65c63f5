package music

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"createtree/internal/infra"
	"createtree/internal/storage"
)

type fakeSuno struct {
	submits   atomic.Int32
	polls     atomic.Int32
	lastBody  atomic.Value
	readyPoll int32
	status    string
	message   string
}

func (f *fakeSuno) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer suno-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "bad key"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/custom_generate":
			f.submits.Add(1)
			var body sunoGenerateRequest
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.lastBody.Store(body)
			_ = json.NewEncoder(w).Encode([]sunoClip{{ID: "clip-1", Status: "submitted"}})
		case "/api/get":
			n := f.polls.Add(1)
			clip := sunoClip{ID: r.URL.Query().Get("ids"), Status: "streaming"}
			if f.readyPoll > 0 && n >= f.readyPoll {
				clip.Status = f.status
				clip.ErrorMessage = f.message
				if f.status == sunoStatusComplete {
					clip.AudioURL = "https://cdn.example.com/clip-1.mp3"
					clip.Title = "Moonlit Crib"
				}
			}
			_ = json.NewEncoder(w).Encode([]sunoClip{clip})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSunoClientPollsUntilComplete(t *testing.T) {
	fake := &fakeSuno{readyPoll: 3, status: sunoStatusComplete}
	srv := fake.server(t)
	client := NewSunoClient(SunoOptions{APIKey: "suno-key", BaseURL: srv.URL, PollInterval: 5 * time.Millisecond})

	var last atomic.Int32
	track, err := client.Generate(context.Background(), Request{
		Prompt:          "a calm lullaby",
		Style:           "lullaby",
		DurationSeconds: 120,
		Vocal:           "female",
	}, func(p int) { last.Store(int32(p)) })
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/clip-1.mp3", track.URL)
	assert.Equal(t, 120, track.DurationSeconds, "duration falls back to the requested one")
	assert.Equal(t, "Moonlit Crib", track.Title)
	assert.Equal(t, "suno", track.Provider)
	assert.EqualValues(t, 1, fake.submits.Load())
	assert.EqualValues(t, 3, fake.polls.Load())
	assert.GreaterOrEqual(t, last.Load(), int32(submitProgress))

	body := fake.lastBody.Load().(sunoGenerateRequest)
	assert.Contains(t, body.Tags, "female vocals")
	assert.Contains(t, body.Tags, "lullaby")
}

func TestSunoClientReportsClipError(t *testing.T) {
	fake := &fakeSuno{readyPoll: 1, status: sunoStatusError, message: "lyrics rejected"}
	srv := fake.server(t)
	client := NewSunoClient(SunoOptions{APIKey: "suno-key", BaseURL: srv.URL, PollInterval: 5 * time.Millisecond})

	_, err := client.Generate(context.Background(), Request{Prompt: "x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lyrics rejected")
}

func TestSunoClientTimesOut(t *testing.T) {
	fake := &fakeSuno{}
	srv := fake.server(t)
	client := NewSunoClient(SunoOptions{
		APIKey:       "suno-key",
		BaseURL:      srv.URL,
		PollInterval: 5 * time.Millisecond,
		MaxWait:      60 * time.Millisecond,
	})

	_, err := client.Generate(context.Background(), Request{Prompt: "never ends"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGenerationTimeout), "got %v", err)
}

func TestSunoClientHonorsCancellation(t *testing.T) {
	fake := &fakeSuno{}
	srv := fake.server(t)
	client := NewSunoClient(SunoOptions{APIKey: "suno-key", BaseURL: srv.URL, PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)
	_, err := client.Generate(ctx, Request{Prompt: "x"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrGenerationTimeout))
}

func TestSunoClientSurfacesHTTPErrors(t *testing.T) {
	fake := &fakeSuno{}
	srv := fake.server(t)
	client := NewSunoClient(SunoOptions{APIKey: "wrong", BaseURL: srv.URL})

	_, err := client.Generate(context.Background(), Request{Prompt: "x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "bad key")
	assert.True(t, strings.HasPrefix(err.Error(), "suno"))
}

func TestSyntheticGeneratorWritesWAV(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir(), "http://localhost:8080/static")
	require.NoError(t, err)
	gen := NewSyntheticGenerator(store, nil)

	var seen []int
	track, err := gen.Generate(context.Background(), Request{
		Prompt:          "a calm lullaby",
		DurationSeconds: 30,
		Title:           "A Calm Lullaby",
		RequestID:       "job-1",
	}, func(p int) { seen = append(seen, p) })
	require.NoError(t, err)

	assert.Equal(t, 30, track.DurationSeconds)
	assert.Equal(t, "A Calm Lullaby", track.Title)
	assert.True(t, strings.HasPrefix(track.URL, "http://localhost:8080/static/music/synthetic-"), track.URL)
	assert.Equal(t, []int{20, 80}, seen)

	key := strings.TrimPrefix(track.URL, "http://localhost:8080/static/")
	data, err := store.Read(context.Background(), key)
	require.NoError(t, err)
	require.Greater(t, len(data), 44)
	assert.Equal(t, "RIFF", string(data[:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Equal(t, uint32(sampleRate), binary.LittleEndian.Uint32(data[24:28]))
	assert.Equal(t, 44+30*sampleRate*2, len(data))
}

func TestSyntheticGeneratorDefaultsDuration(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir(), "")
	require.NoError(t, err)
	track, err := NewSyntheticGenerator(store, nil).Generate(context.Background(), Request{Prompt: "hum"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 120, track.DurationSeconds)
}

func TestNewGeneratorSelection(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir(), "")
	require.NoError(t, err)

	gen := NewGenerator(infra.MusicConfig{Provider: infra.MusicProviderSuno, SunoAPIKey: "k"}, store, nil)
	assert.Equal(t, "suno", gen.Name())

	gen = NewGenerator(infra.MusicConfig{Provider: infra.MusicProviderSuno}, store, nil)
	assert.Equal(t, "synthetic", gen.Name())

	gen = NewGenerator(infra.MusicConfig{Provider: infra.MusicProviderSynthetic, SunoAPIKey: "k"}, store, nil)
	assert.Equal(t, "synthetic", gen.Name())
}
