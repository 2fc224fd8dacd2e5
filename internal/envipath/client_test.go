package envipath

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanshika/cts-envipath/internal/domain"
	"github.com/vanshika/cts-envipath/internal/logging"
)

const testPackage = "pkg-1"

func newTestClient(t *testing.T, srv *httptest.Server, mutate func(*Options)) *Client {
	t.Helper()
	opts := Options{
		BaseURL:      srv.URL,
		PackageID:    testPackage,
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  time.Second,
		Settings:     map[string]string{"cts-d1-n16": "setting-1"},
		Logger:       logging.Discard(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	client, err := New(opts)
	require.NoError(t, err)
	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestNew_RequiresBaseAndPackage(t *testing.T) {
	_, err := New(Options{PackageID: "p"})
	assert.Error(t, err)

	_, err = New(Options{BaseURL: "http://example.org"})
	assert.Error(t, err)
}

func TestLogin_PostsCredentials(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		got = map[string]string{
			"hiddenMethod":  r.PostForm.Get("hiddenMethod"),
			"loginusername": r.PostForm.Get("loginusername"),
			"loginpassword": r.PostForm.Get("loginpassword"),
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, func(o *Options) {
		o.Username = "user"
		o.Password = "secret"
	})
	require.NoError(t, client.Login(context.Background()))
	assert.Equal(t, map[string]string{
		"hiddenMethod":  "login",
		"loginusername": "user",
		"loginpassword": "secret",
	}, got)
}

func TestLogin_WithoutCredentialsIsNoop(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	client := newTestClient(t, srv, nil)
	require.NoError(t, client.Login(context.Background()))
	assert.Zero(t, calls.Load())
}

func TestPredict_ReturnsLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/package/"+testPackage+"/pathway", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "CCO", r.PostForm.Get("smilesinput"))
		assert.Equal(t, "http://"+r.Host+"/setting/setting-1", r.PostForm.Get("selectedSetting"))
		w.Header().Set("Location", "/package/"+testPackage+"/pathway/pw-9")
		w.WriteHeader(http.StatusSeeOther)
	}))
	defer srv.Close()

	client := newTestClient(t, srv, nil)
	location, err := client.Predict(context.Background(), PredictRequest{Smiles: "CCO", Setting: "cts-d1-n16"})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/package/"+testPackage+"/pathway/pw-9", location)
}

func TestPredict_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	client := newTestClient(t, srv, nil)

	_, err := client.Predict(context.Background(), PredictRequest{Smiles: "CCO"})
	assert.ErrorIs(t, err, ErrNoLocation)

	_, err = client.Predict(context.Background(), PredictRequest{Smiles: "CCO", Setting: "cts-d9-n1"})
	assert.ErrorIs(t, err, ErrUnknownSetting)
}

func TestWaitForPathway_PollsUntilComplete(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		doc := domain.PathwayDocument{ID: "pw", Completed: domain.CompletedFalse}
		if polls.Add(1) >= 3 {
			doc.Completed = domain.CompletedTrue
		}
		writeJSON(t, w, doc)
	}))
	defer srv.Close()

	var hooked atomic.Int32
	client := newTestClient(t, srv, func(o *Options) {
		o.OnPoll = func() { hooked.Add(1) }
	})

	doc, err := client.WaitForPathway(context.Background(), srv.URL+"/pathway/pw")
	require.NoError(t, err)
	assert.Equal(t, domain.CompletedTrue, doc.Completed)
	assert.EqualValues(t, 3, polls.Load())
	assert.EqualValues(t, 3, hooked.Load())
}

func TestWaitForPathway_ReturnsFailedPrediction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, domain.PathwayDocument{Completed: domain.CompletedError})
	}))
	defer srv.Close()

	doc, err := newTestClient(t, srv, nil).WaitForPathway(context.Background(), srv.URL+"/pathway/pw")
	require.NoError(t, err)
	assert.Equal(t, domain.CompletedError, doc.Completed)
}

func TestWaitForPathway_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, domain.PathwayDocument{Completed: domain.CompletedFalse})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, func(o *Options) {
		o.PollTimeout = 30 * time.Millisecond
	})
	_, err := client.WaitForPathway(context.Background(), srv.URL+"/pathway/pw")
	assert.ErrorIs(t, err, ErrPollTimeout)
}

func TestWaitForPathway_CallerCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, domain.PathwayDocument{Completed: domain.CompletedFalse})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := newTestClient(t, srv, func(o *Options) {
		o.OnPoll = cancel
	})
	_, err := client.WaitForPathway(ctx, srv.URL+"/pathway/pw")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrPollTimeout))
}

func TestReactionRules(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, domain.ReactionDocument{
			ID: "r1",
			Rules: []domain.RuleSummary{
				{ID: "a", Name: "Hydroxylation bt0063"},
				{ID: "b", Name: "bt0001"},
			},
		})
	}))
	defer srv.Close()

	names, err := newTestClient(t, srv, nil).ReactionRules(context.Background(), srv.URL+"/reaction/r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Hydroxylation bt0063", "bt0001"}, names)
}

func TestStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, nil).FetchPathway(context.Background(), srv.URL+"/pathway/x")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(t, srv, nil)
	var err error
	for i := 0; i < 7; i++ {
		_, err = client.FetchPathway(context.Background(), srv.URL+"/pathway/x")
	}
	assert.EqualValues(t, 5, calls.Load())
	assert.True(t, IsUpstreamError(err))
}

func TestIsUpstreamError(t *testing.T) {
	assert.True(t, IsUpstreamError(&StatusError{Method: http.MethodGet, URL: "x", StatusCode: 503}))
	assert.True(t, IsUpstreamError(fmt.Errorf("fetch pathway: %w", ErrPollTimeout)))
	assert.True(t, IsUpstreamError(ErrNoLocation))
	assert.False(t, IsUpstreamError(nil))
	assert.False(t, IsUpstreamError(ErrUnknownSetting))
	assert.False(t, IsUpstreamError(context.Canceled))
}

func TestSettingName(t *testing.T) {
	assert.Equal(t, "cts-d2-n32", SettingName(2, 32))
	for gen := 1; gen <= 3; gen++ {
		_, ok := DefaultSettings[SettingName(gen, 16)]
		assert.True(t, ok, "generation %d", gen)
	}
}

func TestCheckSettings(t *testing.T) {
	client, err := New(Options{BaseURL: "http://envipath.test", PackageID: testPackage, Logger: logging.Discard()})
	require.NoError(t, err)

	assert.NoError(t, client.CheckSettings(16, 1, 3))
	assert.NoError(t, client.CheckSettings(32, 1, 3))
	assert.NoError(t, client.CheckSettings(64, 2, 3))

	err = client.CheckSettings(64, 1, 3)
	require.ErrorIs(t, err, ErrUnknownSetting)
	assert.Contains(t, err.Error(), "cts-d1-n64")
	assert.NotContains(t, err.Error(), "cts-d2-n64")

	err = client.CheckSettings(128, 1, 3)
	require.ErrorIs(t, err, ErrUnknownSetting)
	assert.Contains(t, err.Error(), "cts-d1-n128, cts-d2-n128")
}
