package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ariefcatur/renu-clearing/internal/failure"
)

// Doer is satisfied by *http.Client; tests swap in their own.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	HTTP Doer
}

func New(timeout time.Duration) *Client {
	return &Client{HTTP: &http.Client{Timeout: timeout}}
}

// Options describes one outbound request. At most one of Form, JSON or Raw is sent.
type Options struct {
	Method  string
	Headers map[string]string
	Form    url.Values
	JSON    any
	Raw     []byte
}

type Response struct {
	URL    string
	Status int
	body   []byte
}

func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

func (r *Response) Text() string { return string(r.body) }

func (r *Response) Bytes() []byte { return r.body }

func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.body, v)
}

// ExpectOK turns a non-2xx status into a BadStatus error.
func (r *Response) ExpectOK() error {
	if r.OK() {
		return nil
	}
	body := r.Text()
	if len(body) > 512 {
		body = body[:512]
	}
	return &failure.BadStatus{URL: r.URL, Status: r.Status, Body: body}
}

// Request issues exactly one HTTP call. Transport failures come back as
// *failure.RequestFailed; any HTTP status, 2xx or not, is returned as a Response.
func (c *Client) Request(ctx context.Context, rawURL string, opt Options) (*Response, error) {
	method := opt.Method
	if method == "" {
		method = http.MethodGet
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case opt.Form != nil:
		body = strings.NewReader(opt.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case opt.JSON != nil:
		b, err := json.Marshal(opt.JSON)
		if err != nil {
			return nil, &failure.RequestFailed{URL: rawURL, Err: err}
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	case opt.Raw != nil:
		body = bytes.NewReader(opt.Raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, &failure.RequestFailed{URL: rawURL, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json, text/xml, */*")
	for k, v := range opt.Headers {
		req.Header.Set(k, v)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &failure.RequestFailed{URL: rawURL, Err: err}
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &failure.RequestFailed{URL: rawURL, Err: err}
	}
	return &Response{URL: rawURL, Status: res.StatusCode, body: b}, nil
}
