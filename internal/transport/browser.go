package transport

import (
	"net/http"

	fhttp "github.com/bogdanfinn/fhttp"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// browserHeaders builds ordered Chrome headers for the TLS-profile
// path, with caller headers layered on top
func browserHeaders(extra map[string]string) fhttp.Header {
	h := fhttp.Header{
		"Accept":             {"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"},
		"Accept-Language":    {"en-US,en;q=0.9"},
		"Cache-Control":      {"no-cache"},
		"Pragma":             {"no-cache"},
		"Sec-Ch-Ua":          {`"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`},
		"Sec-Ch-Ua-Mobile":   {"?0"},
		"Sec-Ch-Ua-Platform": {`"Windows"`},
		"Sec-Fetch-Dest":     {"document"},
		"Sec-Fetch-Mode":     {"navigate"},
		"Sec-Fetch-Site":     {"none"},
		"User-Agent":         {userAgent},
	}

	for name, value := range extra {
		h.Set(name, value)
	}

	h[fhttp.HeaderOrderKey] = []string{
		"Accept",
		"Accept-Language",
		"Cache-Control",
		"Content-Type",
		"Pragma",
		"Sec-Ch-Ua",
		"Sec-Ch-Ua-Mobile",
		"Sec-Ch-Ua-Platform",
		"Sec-Fetch-Dest",
		"Sec-Fetch-Mode",
		"Sec-Fetch-Site",
		"User-Agent",
	}

	return h
}

// setPlainBrowserHeaders applies the same surface on the plain path.
// Accept-Encoding is set by hand here, so the response body is decoded
// by decodeBody rather than by the transport.
func setPlainBrowserHeaders(h http.Header, extra map[string]string) {
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	h.Set("Accept-Encoding", "gzip, deflate, br, zstd")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("User-Agent", userAgent)

	for name, value := range extra {
		h.Set(name, value)
	}
}
