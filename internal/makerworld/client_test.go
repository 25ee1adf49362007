package makerworld

import (
	"context"
	"errors"
	"makerworld-stats/internal/chrono"
	"makerworld-stats/internal/snapshot"
	"makerworld-stats/internal/telemetry"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testPage = `<html><body><script id="__NEXT_DATA__" type="application/json">{"props":{}}</script></body></html>`

type recorder struct {
	mu   sync.Mutex
	hits map[string]int
}

func (r *recorder) hit(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hits == nil {
		r.hits = map[string]int{}
	}
	r.hits[path]++
}

func (r *recorder) count(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits[path]
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.hits {
		total += n
	}
	return total
}

type testHandler func(rec *recorder, w http.ResponseWriter, r *http.Request)

func newTestClient(t *testing.T, handler testHandler) (*Client, *recorder, *telemetry.MemoryAPI) {
	t.Helper()
	return newTestClientWithTimeout(t, 2*time.Second, handler)
}

func newTestClientWithTimeout(t *testing.T, timeout time.Duration, handler testHandler) (*Client, *recorder, *telemetry.MemoryAPI) {
	t.Helper()
	rec := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.hit(r.URL.Path)
		handler(rec, w, r)
	}))
	t.Cleanup(server.Close)

	tel := &telemetry.MemoryAPI{}
	client, err := NewClient(Options{
		BaseURL:           server.URL,
		Timeout:           timeout,
		RetryWait:         time.Millisecond,
		RetryMaxWait:      5 * time.Millisecond,
		RequestsPerSecond: 1000,
	}, chrono.NewManualTime(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)), tel)
	require.NoError(t, err)
	return client, rec, tel
}

var creds = Credentials{
	Username:  "maker",
	Cookie:    "token=abc; other=1",
	UserAgent: "test-agent/1.0",
}

func TestFetchProfilePassesCredentials(t *testing.T) {
	client, rec, _ := newTestClient(t, func(_ *recorder, w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "token=abc; other=1" || r.Header.Get("User-Agent") != "test-agent/1.0" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Path != "/en/@maker" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(testPage))
	})

	page, err := client.FetchProfilePage(context.Background(), creds)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.Status)
	require.Equal(t, testPage, string(page.Body))
	require.Contains(t, page.URL, "/en/@maker")
	require.Equal(t, 1, rec.total())
}

func TestFetchDefaultUserAgent(t *testing.T) {
	client, _, _ := newTestClient(t, func(_ *recorder, w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != DefaultUserAgent {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(testPage))
	})

	_, err := client.FetchUploadPage(context.Background(), Credentials{Username: "maker", Cookie: "a=b"})
	require.NoError(t, err)
}

func TestFetchMissingCredentialsMakesNoRequest(t *testing.T) {
	client, rec, _ := newTestClient(t, func(_ *recorder, w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testPage))
	})

	_, err := client.FetchProfilePage(context.Background(), Credentials{Username: "maker"})
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)

	_, err = client.FetchModelPage(context.Background(), Credentials{Username: "maker", Cookie: "  "}, snapshot.ModelRef{ID: 1})
	require.ErrorAs(t, err, &authErr)

	_, err = client.FetchUploadPage(context.Background(), Credentials{Cookie: "a=b"})
	require.ErrorAs(t, err, &authErr)

	require.Equal(t, 0, rec.total())
}

func TestFetchFallsThroughCandidates(t *testing.T) {
	cases := []struct {
		name   string
		status int
	}{
		{name: "not found", status: http.StatusNotFound},
		{name: "forbidden", status: http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, rec, _ := newTestClient(t, func(_ *recorder, w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/en/@maker/upload" {
					w.WriteHeader(tc.status)
					return
				}
				w.Write([]byte(testPage))
			})

			page, err := client.FetchUploadPage(context.Background(), creds)
			require.NoError(t, err)
			require.Contains(t, page.URL, "/@maker/upload")
			require.Equal(t, 1, rec.count("/en/@maker/upload"))
			require.Equal(t, 1, rec.count("/@maker/upload"))
		})
	}
}

func TestFetchAllForbiddenIsAuthError(t *testing.T) {
	client, rec, tel := newTestClient(t, func(_ *recorder, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.FetchProfilePage(context.Background(), creds)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, http.StatusForbidden, authErr.Status)
	require.Equal(t, 2, rec.total())
	require.True(t, tel.Has(telemetry.LevelWarning, report_client_fetch_profile))
}

func TestFetchAllNotFoundIsNotRetried(t *testing.T) {
	client, rec, _ := newTestClient(t, func(_ *recorder, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.FetchProfilePage(context.Background(), creds)
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	require.Equal(t, http.StatusNotFound, netErr.Status)
	require.Equal(t, 1, rec.count("/en/@maker"))
	require.Equal(t, 1, rec.count("/@maker"))
}

func TestFetchUnauthorizedStopsImmediately(t *testing.T) {
	client, rec, _ := newTestClient(t, func(_ *recorder, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.FetchProfilePage(context.Background(), creds)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, 1, rec.total())
}

func TestFetchRetriesServerErrors(t *testing.T) {
	client, rec, _ := newTestClient(t, func(_ *recorder, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.FetchProfilePage(context.Background(), creds)
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	require.Equal(t, http.StatusServiceUnavailable, netErr.Status)
	require.Equal(t, 3, netErr.Attempts)
	// a network error ends the candidate search
	require.Equal(t, 3, rec.count("/en/@maker"))
	require.Equal(t, 0, rec.count("/@maker"))
}

func TestFetchRetriesDroppedConnections(t *testing.T) {
	client, rec, _ := newTestClient(t, func(_ *recorder, w http.ResponseWriter, r *http.Request) {
		hijacker, ok := w.(http.Hijacker)
		if !ok {
			t.Error("response writer cannot be hijacked")
			return
		}
		conn, _, err := hijacker.Hijack()
		if err != nil {
			t.Error(err)
			return
		}
		conn.Close()
	})

	_, err := client.FetchProfilePage(context.Background(), creds)
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	require.Zero(t, netErr.Status)
	require.Error(t, netErr.Err)
	require.Equal(t, 3, netErr.Attempts)
	require.Equal(t, 3, rec.count("/en/@maker"))
	require.Equal(t, 0, rec.count("/@maker"))
}

func TestFetchRetriesTimeouts(t *testing.T) {
	client, rec, _ := newTestClientWithTimeout(t, 50*time.Millisecond, func(_ *recorder, w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	_, err := client.FetchProfilePage(context.Background(), creds)
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	require.Equal(t, 3, netErr.Attempts)
	require.Equal(t, 3, rec.count("/en/@maker"))
	require.False(t, errors.Is(err, context.Canceled))
}

func TestFetchRecoversAfterRetry(t *testing.T) {
	client, rec, _ := newTestClient(t, func(rec *recorder, w http.ResponseWriter, r *http.Request) {
		if rec.count(r.URL.Path) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(testPage))
	})

	page, err := client.FetchProfilePage(context.Background(), creds)
	require.NoError(t, err)
	require.Equal(t, testPage, string(page.Body))
	require.Equal(t, 2, rec.total())
}

func TestFetchRateLimited(t *testing.T) {
	client, rec, _ := newTestClient(t, func(_ *recorder, w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.FetchProfilePage(context.Background(), creds)
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	require.Equal(t, 2*time.Minute, rateErr.RetryAfter)
	require.Equal(t, 1, rec.total())
}

func TestFetchRateLimitMarker(t *testing.T) {
	client, _, _ := newTestClient(t, func(_ *recorder, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Too Many Requests, slow down"}`))
	})

	_, err := client.FetchProfilePage(context.Background(), creds)
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	require.Zero(t, rateErr.RetryAfter)
}

func TestFetchLoginRedirect(t *testing.T) {
	client, rec, _ := newTestClient(t, func(_ *recorder, w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/en/login" {
			w.Write([]byte("<html>login form</html>"))
			return
		}
		http.Redirect(w, r, "/en/login?redirect=%2Fen%2F%40maker", http.StatusFound)
	})

	_, err := client.FetchProfilePage(context.Background(), creds)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, http.StatusFound, authErr.Status)
	require.Equal(t, 0, rec.count("/en/login"))
}

func TestFetchChallengePage(t *testing.T) {
	client, _, _ := newTestClient(t, func(_ *recorder, w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Just a moment...</title></head><body><script src="/cdn-cgi/challenge-platform/x.js"></script></body></html>`))
	})

	_, err := client.FetchProfilePage(context.Background(), creds)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestFetchModelPage(t *testing.T) {
	client, rec, _ := newTestClient(t, func(_ *recorder, w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testPage))
	})

	page, err := client.FetchModelPage(context.Background(), creds, snapshot.ModelRef{ID: 12, Slug: "benchy"})
	require.NoError(t, err)
	require.Contains(t, page.URL, "/en/models/12-benchy")
	require.Equal(t, 1, rec.count("/en/models/12-benchy"))

	_, err = client.FetchModelPage(context.Background(), creds, snapshot.ModelRef{ID: 13})
	require.NoError(t, err)
	require.Equal(t, 1, rec.count("/en/models/13"))
}

func TestFetchModelPageEscapesSlugOnce(t *testing.T) {
	var mu sync.Mutex
	var escaped []string
	client, rec, _ := newTestClient(t, func(_ *recorder, w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		escaped = append(escaped, r.URL.EscapedPath())
		mu.Unlock()
		w.Write([]byte(testPage))
	})

	_, err := client.FetchModelPage(context.Background(), creds, snapshot.ModelRef{ID: 125, Slug: "café-mount"})
	require.NoError(t, err)
	require.Equal(t, 1, rec.count("/en/models/125-café-mount"))
	require.Equal(t, []string{"/en/models/125-caf%C3%A9-mount"}, escaped)
}

func TestFetchCanceled(t *testing.T) {
	client, _, _ := newTestClient(t, func(_ *recorder, w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testPage))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.FetchProfilePage(ctx, creds)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestFetchDumpsExchanges(t *testing.T) {
	dir := t.TempDir() + "/dumps"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testPage))
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Options{BaseURL: server.URL, DumpDir: dir}, chrono.NewStandardTime(), &telemetry.MemoryAPI{})
	require.NoError(t, err)
	_, err = client.FetchProfilePage(context.Background(), creds)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	contents, err := os.ReadFile(dir + "/" + entries[0].Name())
	require.NoError(t, err)
	require.NotContains(t, string(contents), "token=abc")
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.Equal(t, 30*time.Second, ParseRetryAfter("30", now))
	require.Equal(t, 90*time.Second, ParseRetryAfter("Wed, 01 May 2024 12:01:30 GMT", now))
	require.Zero(t, ParseRetryAfter("Wed, 01 May 2024 11:00:00 GMT", now))
	require.Zero(t, ParseRetryAfter("", now))
	require.Zero(t, ParseRetryAfter("-5", now))
	require.Zero(t, ParseRetryAfter("soon", now))
}

func TestLimitModels(t *testing.T) {
	refs := []snapshot.ModelRef{{ID: 30}, {ID: 10}, {ID: 20}}
	require.Equal(t, []snapshot.ModelRef{{ID: 10}, {ID: 20}}, LimitModels(refs, 2))
	require.Equal(t, []snapshot.ModelRef{{ID: 10}, {ID: 20}, {ID: 30}}, LimitModels(refs, 0))
	require.Equal(t, []snapshot.ModelRef{{ID: 10}, {ID: 20}, {ID: 30}}, LimitModels(refs, 10))
	// the input is left untouched
	require.Equal(t, int64(30), refs[0].ID)
}
