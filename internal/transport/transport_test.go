package transport

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/types"
)

type testLogger struct{}

func (l *testLogger) Debug(msg string, fields ...interface{}) {}
func (l *testLogger) Info(msg string, fields ...interface{})  {}
func (l *testLogger) Warn(msg string, fields ...interface{})  {}
func (l *testLogger) Error(msg string, fields ...interface{}) {}
func (l *testLogger) With(fields ...interface{}) types.Logger { return l }

func newTestClient(profile string) *Client {
	cfg := &types.Config{}
	cfg.Transport.Profile = profile
	cfg.Transport.DialTimeout = 2 * time.Second
	cfg.Transport.KeepAlive = 30 * time.Second
	cfg.Transport.MaxIdleConns = 10
	cfg.Transport.MaxIdleConnsPerHost = 2
	cfg.Transport.IdleConnTimeout = 30 * time.Second
	cfg.Proxies.Scheme = "http"
	cfg.Proxies.FetchTimeout = 5 * time.Second
	return New(cfg, &testLogger{})
}

func gzipCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecodeBody(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")

	tests := []struct {
		name     string
		encoding string
		compress func(t *testing.T) []byte
	}{
		{
			name:     "gzip",
			encoding: "gzip",
			compress: func(t *testing.T) []byte {
				return gzipCompress(t, payload)
			},
		},
		{
			name:     "deflate",
			encoding: "deflate",
			compress: func(t *testing.T) []byte {
				var buf bytes.Buffer
				w, err := flate.NewWriter(&buf, flate.DefaultCompression)
				require.NoError(t, err)
				_, err = w.Write(payload)
				require.NoError(t, err)
				require.NoError(t, w.Close())
				return buf.Bytes()
			},
		},
		{
			name:     "brotli",
			encoding: "br",
			compress: func(t *testing.T) []byte {
				var buf bytes.Buffer
				w := brotli.NewWriter(&buf)
				_, err := w.Write(payload)
				require.NoError(t, err)
				require.NoError(t, w.Close())
				return buf.Bytes()
			},
		},
		{
			name:     "zstd",
			encoding: "zstd",
			compress: func(t *testing.T) []byte {
				var buf bytes.Buffer
				w, err := zstd.NewWriter(&buf)
				require.NoError(t, err)
				_, err = w.Write(payload)
				require.NoError(t, err)
				require.NoError(t, w.Close())
				return buf.Bytes()
			},
		},
		{
			name:     "identity passes through",
			encoding: "identity",
			compress: func(t *testing.T) []byte { return payload },
		},
		{
			name:     "empty encoding passes through",
			encoding: "",
			compress: func(t *testing.T) []byte { return payload },
		},
		{
			name:     "unknown encoding passes through",
			encoding: "snappy",
			compress: func(t *testing.T) []byte { return payload },
		},
		{
			name:     "encoding name is case insensitive",
			encoding: " GZIP ",
			compress: func(t *testing.T) []byte {
				return gzipCompress(t, payload)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, err := decodeBody(bytes.NewReader(tt.compress(t)), tt.encoding)
			require.NoError(t, err)

			decoded, err := io.ReadAll(reader)
			require.NoError(t, err)
			assert.Equal(t, payload, decoded)
		})
	}
}

type fakeTimeoutError struct{}

func (fakeTimeoutError) Error() string   { return "i/o timeout" }
func (fakeTimeoutError) Timeout() bool   { return true }
func (fakeTimeoutError) Temporary() bool { return true }

func TestErrOutcome(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		want         types.OutcomeClass
		wantSentinel error
	}{
		{
			name:         "deadline exceeded is a timeout",
			err:          context.DeadlineExceeded,
			want:         types.OutcomeTimeout,
			wantSentinel: types.ErrAttemptTimeout,
		},
		{
			name:         "wrapped deadline is a timeout",
			err:          fmt.Errorf("request failed: %w", context.DeadlineExceeded),
			want:         types.OutcomeTimeout,
			wantSentinel: types.ErrAttemptTimeout,
		},
		{
			name:         "network timeout is a timeout",
			err:          fakeTimeoutError{},
			want:         types.OutcomeTimeout,
			wantSentinel: types.ErrAttemptTimeout,
		},
		{
			name:         "connection refused is a network error",
			err:          errors.New("connect: connection refused"),
			want:         types.OutcomeNetworkError,
			wantSentinel: types.ErrNetworkFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := errOutcome(tt.err, 42*time.Millisecond)
			assert.Equal(t, tt.want, outcome.Class)
			assert.Equal(t, 42*time.Millisecond, outcome.Elapsed)
			assert.ErrorIs(t, outcome.Err, tt.wantSentinel)
		})
	}
}

func TestClassifyBody(t *testing.T) {
	start := time.Now()

	t.Run("2xx counts as success", func(t *testing.T) {
		header := http.Header{"X-Thing": {"yes"}}
		outcome := classifyBody(201, header, bytes.NewReader([]byte("created")), "", start)

		assert.Equal(t, types.OutcomeOK, outcome.Class)
		assert.Equal(t, 201, outcome.Status)
		assert.Equal(t, []byte("created"), outcome.Body)
		assert.Equal(t, "yes", outcome.Header.Get("X-Thing"))
	})

	t.Run("non-2xx keeps the body for the caller", func(t *testing.T) {
		outcome := classifyBody(404, http.Header{}, bytes.NewReader([]byte("not found")), "", start)

		assert.Equal(t, types.OutcomeHTTPError, outcome.Class)
		assert.Equal(t, 404, outcome.Status)
		assert.Equal(t, []byte("not found"), outcome.Body)
	})

	t.Run("compressed bodies are decoded", func(t *testing.T) {
		compressed := gzipCompress(t, []byte("hidden payload"))
		outcome := classifyBody(200, http.Header{}, bytes.NewReader(compressed), "gzip", start)

		assert.Equal(t, types.OutcomeOK, outcome.Class)
		assert.Equal(t, []byte("hidden payload"), outcome.Body)
	})

	t.Run("headers are cloned out of the response", func(t *testing.T) {
		header := http.Header{"X-Thing": {"original"}}
		outcome := classifyBody(200, header, bytes.NewReader(nil), "", start)

		outcome.Header.Set("X-Thing", "mutated")
		assert.Equal(t, "original", header.Get("X-Thing"))
	})
}

func TestGet(t *testing.T) {
	client := newTestClient("chrome_120")

	t.Run("successful response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "pong")
		}))
		defer srv.Close()

		outcome := client.Get(context.Background(), srv.URL)
		assert.Equal(t, types.OutcomeOK, outcome.Class)
		assert.Equal(t, []byte("pong"), outcome.Body)
	})

	t.Run("server error is classified, not failed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		outcome := client.Get(context.Background(), srv.URL)
		assert.Equal(t, types.OutcomeHTTPError, outcome.Class)
		assert.Equal(t, http.StatusInternalServerError, outcome.Status)
	})

	t.Run("context deadline becomes a timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(2 * time.Second)
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		outcome := client.Get(ctx, srv.URL)
		assert.Equal(t, types.OutcomeTimeout, outcome.Class)
	})
}

func TestPostForm(t *testing.T) {
	client := newTestClient("chrome_120")

	var gotContentType, gotInput, gotLang atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType.Store(r.Header.Get("Content-Type"))
		_ = r.ParseForm()
		gotInput.Store(r.FormValue("input"))
		gotLang.Store(r.FormValue("lang"))
		io.WriteString(w, "seven four nine")
	}))
	defer srv.Close()

	form := url.Values{"input": {"https://audio.example/payload"}, "lang": {"en-US"}}
	outcome := client.PostForm(context.Background(), srv.URL, form)

	require.Equal(t, types.OutcomeOK, outcome.Class)
	assert.Equal(t, []byte("seven four nine"), outcome.Body)
	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType.Load())
	assert.Equal(t, "https://audio.example/payload", gotInput.Load())
	assert.Equal(t, "en-US", gotLang.Load())
}

func TestFetchDirect(t *testing.T) {
	client := newTestClient("chrome_120")

	t.Run("sends browser headers and defaults to GET", func(t *testing.T) {
		var gotMethod, gotUA, gotEncoding atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod.Store(r.Method)
			gotUA.Store(r.Header.Get("User-Agent"))
			gotEncoding.Store(r.Header.Get("Accept-Encoding"))
			io.WriteString(w, "page")
		}))
		defer srv.Close()

		outcome := client.FetchDirect(context.Background(), &types.FetchRequest{URL: srv.URL})

		require.Equal(t, types.OutcomeOK, outcome.Class)
		assert.Equal(t, []byte("page"), outcome.Body)
		assert.Equal(t, http.MethodGet, gotMethod.Load())
		assert.Contains(t, gotUA.Load(), "Chrome")
		assert.Contains(t, gotEncoding.Load(), "zstd")
	})

	t.Run("forwards method, body and caller headers", func(t *testing.T) {
		var gotMethod, gotSession, gotBody atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod.Store(r.Method)
			gotSession.Store(r.Header.Get("X-Session"))
			data, _ := io.ReadAll(r.Body)
			gotBody.Store(string(data))
			w.WriteHeader(http.StatusCreated)
		}))
		defer srv.Close()

		outcome := client.FetchDirect(context.Background(), &types.FetchRequest{
			URL:     srv.URL,
			Method:  "post",
			Headers: map[string]string{"X-Session": "abc123"},
			Body:    []byte(`{"coins":1}`),
		})

		require.Equal(t, types.OutcomeOK, outcome.Class)
		assert.Equal(t, http.StatusCreated, outcome.Status)
		assert.Equal(t, http.MethodPost, gotMethod.Load())
		assert.Equal(t, "abc123", gotSession.Load())
		assert.Equal(t, `{"coins":1}`, gotBody.Load())
	})

	t.Run("decodes a compressed response", func(t *testing.T) {
		compressed := gzipCompress(t, []byte("compressed page"))
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Encoding", "gzip")
			w.Write(compressed)
		}))
		defer srv.Close()

		outcome := client.FetchDirect(context.Background(), &types.FetchRequest{URL: srv.URL})

		require.Equal(t, types.OutcomeOK, outcome.Class)
		assert.Equal(t, []byte("compressed page"), outcome.Body)
	})
}

func TestFetchVia(t *testing.T) {
	t.Run("plain profile routes through the proxy", func(t *testing.T) {
		var gotURI, gotHost atomic.Value
		proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotURI.Store(r.RequestURI)
			gotHost.Store(r.Host)
			io.WriteString(w, "proxied")
		}))
		defer proxy.Close()

		client := newTestClient("none")
		ep := &types.Endpoint{Address: proxy.Listener.Addr().String()}

		outcome := client.FetchVia(context.Background(), ep, &types.FetchRequest{URL: "http://origin.test/path"})

		require.Equal(t, types.OutcomeOK, outcome.Class)
		assert.Equal(t, []byte("proxied"), outcome.Body)
		assert.Equal(t, "http://origin.test/path", gotURI.Load(), "forward proxies get the absolute URI")
		assert.Equal(t, "origin.test", gotHost.Load())
	})

	t.Run("proxy clients are cached per endpoint", func(t *testing.T) {
		proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "proxied")
		}))
		defer proxy.Close()

		client := newTestClient("none")
		ep := &types.Endpoint{Address: proxy.Listener.Addr().String()}

		client.FetchVia(context.Background(), ep, &types.FetchRequest{URL: "http://origin.test/"})
		client.FetchVia(context.Background(), ep, &types.FetchRequest{URL: "http://origin.test/again"})

		client.mu.Lock()
		assert.Len(t, client.proxied, 1)
		client.mu.Unlock()
	})

	t.Run("dropping a proxy evicts its cached client", func(t *testing.T) {
		proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "proxied")
		}))
		defer proxy.Close()

		client := newTestClient("none")
		addr := proxy.Listener.Addr().String()

		client.FetchVia(context.Background(), &types.Endpoint{Address: addr}, &types.FetchRequest{URL: "http://origin.test/"})

		client.mu.Lock()
		_, cached := client.proxied[addr]
		client.mu.Unlock()
		require.True(t, cached)

		client.DropProxy(addr)

		client.mu.Lock()
		_, cached = client.proxied[addr]
		client.mu.Unlock()
		assert.False(t, cached)
	})

	t.Run("unreachable proxy is a network error", func(t *testing.T) {
		client := newTestClient("none")
		ep := &types.Endpoint{Address: "127.0.0.1:1"}

		outcome := client.FetchVia(context.Background(), ep, &types.FetchRequest{URL: "http://origin.test/"})
		assert.Equal(t, types.OutcomeNetworkError, outcome.Class)
	})
}

func TestMethod(t *testing.T) {
	assert.Equal(t, http.MethodGet, method(""))
	assert.Equal(t, http.MethodGet, method("  "))
	assert.Equal(t, http.MethodPost, method("post"))
	assert.Equal(t, http.MethodPut, method(" PUT "))
}
