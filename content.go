package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxBodySize bounds snapshot and content responses
const maxBodySize = 16 << 20

// endpoints derives the server URLs from the configured base URL
type endpoints struct {
	base *url.URL
}

func newEndpoints(baseURL string) (endpoints, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return endpoints{}, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return endpoints{}, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return endpoints{}, fmt.Errorf("invalid base URL %q: missing host", baseURL)
	}
	return endpoints{base: u}, nil
}

func (e endpoints) join(elem ...string) *url.URL {
	u := *e.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.Join(elem, "/")
	u.RawPath = ""
	return &u
}

func (e endpoints) tree() string {
	return e.join("tree.json").String()
}

// ws maps http to ws and https to wss
func (e endpoints) ws() string {
	u := e.join("ws")
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

func (e endpoints) content(path string) string {
	return e.join("content", path).String()
}

// FetchError describes a failed HTTP fetch. StatusCode is zero when the
// request never got a response.
type FetchError struct {
	URL        string
	StatusCode int
	Status     string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// retryable reports whether another attempt could succeed
func (e *FetchError) retryable() bool {
	switch {
	case e.StatusCode == 0:
		return !errors.Is(e.Err, context.Canceled)
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return e.StatusCode >= 500
	}
}

// httpGet fetches url and returns the body of a 2xx response
func httpGet(ctx context.Context, client *http.Client, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := strings.TrimSpace(string(body))
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return nil, &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Err:        errors.New(detail),
		}
	}
	if err != nil {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Status: resp.Status, Err: err}
	}
	return body, nil
}

// contentClient fetches rendered document bodies
type contentClient struct {
	http      *http.Client
	endpoints endpoints
}

func newContentClient(e endpoints, timeout time.Duration) *contentClient {
	return &contentClient{http: &http.Client{Timeout: timeout}, endpoints: e}
}

func (c *contentClient) fetch(ctx context.Context, path string) (string, error) {
	body, err := httpGet(ctx, c.http, c.endpoints.content(path), "text/html")
	if err != nil {
		return "", err
	}
	return string(body), nil
}
