// Package transport builds the outbound HTTP clients used for solver
// calls, latency probes and proxied fetches, and classifies the result
// of every attempt.
package transport

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	xproxy "golang.org/x/net/proxy"

	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/types"
)

// Client is the outbound HTTP layer. Solver calls, probes and direct
// fetches run over a tuned plain transport; proxied fetches run over
// per-endpoint clients with a browser TLS profile. Clients are cached
// by proxy address and evicted when the endpoint leaves the pool.
type Client struct {
	cfg    *types.Config
	logger types.Logger
	plain  *http.Client

	mu      sync.Mutex
	proxied map[string]proxyFetcher
}

// proxyFetcher runs one fetch through a fixed proxy endpoint
type proxyFetcher interface {
	Fetch(ctx context.Context, req *types.FetchRequest) *types.Outcome
}

// New creates the outbound client layer
func New(cfg *types.Config, logger types.Logger) *Client {
	plainTransport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Transport.DialTimeout,
			KeepAlive: cfg.Transport.KeepAlive,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.Transport.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.Transport.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.Transport.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	return &Client{
		cfg:     cfg,
		logger:  logger,
		plain:   &http.Client{Transport: plainTransport},
		proxied: make(map[string]proxyFetcher),
	}
}

// PostForm sends a URL-encoded form over the plain transport. The
// caller bounds the attempt through the context.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) *types.Outcome {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errOutcome(err, time.Since(start))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.plain.Do(req)
	if err != nil {
		return errOutcome(err, time.Since(start))
	}

	return classifyResponse(resp, start)
}

// Get runs a plain GET, used by the latency probe
func (c *Client) Get(ctx context.Context, rawURL string) *types.Outcome {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errOutcome(err, time.Since(start))
	}

	resp, err := c.plain.Do(req)
	if err != nil {
		return errOutcome(err, time.Since(start))
	}

	return classifyResponse(resp, start)
}

// FetchDirect runs a fetch over the plain transport with no proxy
func (c *Client) FetchDirect(ctx context.Context, freq *types.FetchRequest) *types.Outcome {
	return (&plainFetcher{client: c.plain}).Fetch(ctx, freq)
}

// FetchVia runs a fetch through the given proxy endpoint
func (c *Client) FetchVia(ctx context.Context, ep *types.Endpoint, freq *types.FetchRequest) *types.Outcome {
	fetcher, err := c.proxyClient(ep)
	if err != nil {
		c.logger.Warn("Failed to build proxy client", "address", ep.Address, "error", err)
		return errOutcome(err, 0)
	}

	return fetcher.Fetch(ctx, freq)
}

// DropProxy evicts the cached client for a removed endpoint
func (c *Client) DropProxy(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.proxied, address)
}

// proxyClient returns the cached fetcher for an endpoint, building it
// on first use
func (c *Client) proxyClient(ep *types.Endpoint) (proxyFetcher, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fetcher, exists := c.proxied[ep.Address]; exists {
		return fetcher, nil
	}

	var fetcher proxyFetcher
	var err error
	if c.cfg.Transport.Profile == "none" {
		fetcher, err = c.newPlainProxyFetcher(ep)
	} else {
		fetcher, err = c.newTLSFetcher(ep)
	}
	if err != nil {
		return nil, err
	}

	c.proxied[ep.Address] = fetcher
	return fetcher, nil
}

// newTLSFetcher builds a browser-profile client bound to one proxy
func (c *Client) newTLSFetcher(ep *types.Endpoint) (proxyFetcher, error) {
	jar := tls_client.NewCookieJar()
	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(int(c.cfg.Proxies.FetchTimeout.Seconds())),
		tls_client.WithClientProfile(clientProfile(c.cfg.Transport.Profile)),
		tls_client.WithCookieJar(jar),
		tls_client.WithProxyUrl(ep.ProxyURL(c.cfg.Proxies.Scheme)),
	}

	client, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
	if err != nil {
		return nil, err
	}

	return &tlsFetcher{client: client}, nil
}

// newPlainProxyFetcher builds a plain client bound to one proxy, used
// when browser impersonation is disabled
func (c *Client) newPlainProxyFetcher(ep *types.Endpoint) (proxyFetcher, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   c.cfg.Transport.DialTimeout,
			KeepAlive: c.cfg.Transport.KeepAlive,
		}).DialContext,
		MaxIdleConns:          c.cfg.Transport.MaxIdleConns,
		MaxIdleConnsPerHost:   c.cfg.Transport.MaxIdleConnsPerHost,
		IdleConnTimeout:       c.cfg.Transport.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	if c.cfg.Proxies.Scheme == "socks5" {
		var auth *xproxy.Auth
		if ep.HasAuth() {
			auth = &xproxy.Auth{User: ep.Username, Password: ep.Password}
		}

		dialer, err := xproxy.SOCKS5("tcp", ep.Address, auth, &net.Dialer{
			Timeout:   c.cfg.Transport.DialTimeout,
			KeepAlive: c.cfg.Transport.KeepAlive,
		})
		if err != nil {
			return nil, err
		}

		if ctxDialer, ok := dialer.(xproxy.ContextDialer); ok {
			transport.DialContext = ctxDialer.DialContext
		}
	} else {
		proxyURL, err := url.Parse(ep.ProxyURL(c.cfg.Proxies.Scheme))
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &plainFetcher{client: &http.Client{Transport: transport}}, nil
}

// clientProfile maps a configured profile name onto a TLS fingerprint
func clientProfile(name string) profiles.ClientProfile {
	switch name {
	case "chrome_120":
		return profiles.Chrome_120
	case "firefox_120":
		return profiles.Firefox_120
	case "safari_16_0":
		return profiles.Safari_16_0
	default:
		return profiles.Chrome_120
	}
}

// tlsFetcher runs fetches over a browser-profile client. The client
// decompresses response bodies itself.
type tlsFetcher struct {
	client tls_client.HttpClient
}

func (f *tlsFetcher) Fetch(ctx context.Context, freq *types.FetchRequest) *types.Outcome {
	start := time.Now()

	var body *bytes.Reader
	if len(freq.Body) > 0 {
		body = bytes.NewReader(freq.Body)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := fhttp.NewRequestWithContext(ctx, method(freq.Method), freq.URL, body)
	if err != nil {
		return errOutcome(err, time.Since(start))
	}

	req.Header = browserHeaders(freq.Headers)

	resp, err := f.client.Do(req)
	if err != nil {
		return errOutcome(err, time.Since(start))
	}
	defer resp.Body.Close()

	return classifyBody(resp.StatusCode, http.Header(resp.Header), resp.Body, "", start)
}

// plainFetcher runs fetches over a plain client, decoding compressed
// bodies itself
type plainFetcher struct {
	client *http.Client
}

func (f *plainFetcher) Fetch(ctx context.Context, freq *types.FetchRequest) *types.Outcome {
	start := time.Now()

	var body *bytes.Reader
	if len(freq.Body) > 0 {
		body = bytes.NewReader(freq.Body)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method(freq.Method), freq.URL, body)
	if err != nil {
		return errOutcome(err, time.Since(start))
	}

	setPlainBrowserHeaders(req.Header, freq.Headers)

	resp, err := f.client.Do(req)
	if err != nil {
		return errOutcome(err, time.Since(start))
	}
	defer resp.Body.Close()

	return classifyBody(resp.StatusCode, resp.Header, resp.Body, resp.Header.Get("Content-Encoding"), start)
}

// method normalizes an HTTP method, defaulting to GET
func method(m string) string {
	m = strings.ToUpper(strings.TrimSpace(m))
	if m == "" {
		return http.MethodGet
	}
	return m
}
