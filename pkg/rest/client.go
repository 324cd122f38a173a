// Package rest issues venue REST calls through a shared throttler, signing
// private requests and turning error bodies into typed API errors.
package rest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"connector/pkg/exception"
	"connector/pkg/throttle"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v5"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	HeaderAPIKey = "X-MBX-APIKEY"

	_defaultTimeout  = 15 * time.Second
	_defaultMaxTries = 3
)

// Option configures a Client.
type Option struct {
	APIKey     string
	Secret     string
	Timeout    time.Duration
	MaxTries   uint
	RecvWindow time.Duration
	HTTPClient *http.Client
	Throttler  *throttle.Throttler
}

// Request describes one REST call. Params are sent in the query string.
type Request struct {
	Method string
	URL    string
	Params url.Values
	Header http.Header
	// Signed adds timestamp, signature and the api key header.
	Signed bool
	// WithKey adds only the api key header.
	WithKey bool
}

// Response is a completed call with any status.
type Response struct {
	Body   []byte
	Status int
	Header http.Header
}

// Client calls the venue. It holds no business state.
type Client struct {
	apiKey     string
	secret     string
	timeout    time.Duration
	maxTries   uint
	recvWindow time.Duration
	http       *http.Client
	throttler  *throttle.Throttler
	now        func() time.Time
}

// New builds a Client; a nil throttler gets a fresh one.
func New(opt Option) *Client {
	if opt.Timeout <= 0 {
		opt.Timeout = _defaultTimeout
	}
	if opt.MaxTries == 0 {
		opt.MaxTries = _defaultMaxTries
	}
	if opt.HTTPClient == nil {
		opt.HTTPClient = &http.Client{}
	}
	if opt.Throttler == nil {
		opt.Throttler = throttle.New()
	}

	return &Client{
		apiKey:     opt.APIKey,
		secret:     opt.Secret,
		timeout:    opt.Timeout,
		maxTries:   opt.MaxTries,
		recvWindow: opt.RecvWindow,
		http:       opt.HTTPClient,
		throttler:  opt.Throttler,
		now:        time.Now,
	}
}

// Throttler returns the throttler shared by every call of this client.
func (c *Client) Throttler() *throttle.Throttler {
	return c.throttler
}

// Call sends the request, retrying transport failures and 5xx responses with
// exponential backoff. Venue errors come back as *exception.APIError and are
// never retried here.
func (c *Client) Call(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	attempt := 0
	operation := func() (Response, error) {
		attempt++
		resp, err := c.do(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil || !transient(resp, err) {
			return resp, backoff.Permanent(err)
		}
		logs.Warnf("rest call transient failure, attempt: %d, url: %s, err: %+v", attempt, req.URL, err)
		return resp, err
	}

	return backoff.Retry(ctx, operation, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
}

// Decode calls the venue and unmarshals a successful body into T.
func Decode[T any](ctx context.Context, c *Client, req Request) (T, error) {
	var result T
	resp, err := c.Call(ctx, req)
	if err != nil {
		return result, err
	}
	if err := sonic.Unmarshal(resp.Body, &result); err != nil {
		return result, errors.Wrap(err, "decode response body").With("url", req.URL)
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, req Request) (Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := req.URL
	if query := c.query(req); query != "" {
		target += "?" + query
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return Response{}, backoff.Permanent(errors.Wrap(err, "new request"))
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if req.Signed || req.WithKey {
		httpReq.Header.Set(HeaderAPIKey, c.apiKey)
	}

	release, err := c.throttler.Acquire(ctx)
	if err != nil {
		return Response{}, err
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		release(nil)
		return Response{}, errors.Wrap(err, "send request").With("url", req.URL)
	}
	defer httpResp.Body.Close()
	release(httpResp.Header)

	body, err := io.ReadAll(httpResp.Body)
	resp := Response{
		Body:   body,
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
	}
	if err != nil {
		return resp, errors.Wrap(err, "read response body").With("url", req.URL)
	}

	if resp.Status < 200 || resp.Status >= 300 {
		return resp, parseAPIError(resp, req.URL)
	}
	return resp, nil
}

func (c *Client) query(req Request) string {
	params := url.Values{}
	for key, values := range req.Params {
		params[key] = append([]string(nil), values...)
	}
	if !req.Signed {
		return params.Encode()
	}

	if c.recvWindow > 0 {
		params.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
	}
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	payload := params.Encode()
	return payload + "&signature=" + Sign(payload, c.secret)
}

// Sign returns the hex HMAC-SHA256 of payload keyed by secret.
func Sign(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

type errorBody struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func parseAPIError(resp Response, target string) error {
	var body errorBody
	if err := sonic.Unmarshal(resp.Body, &body); err != nil || body.Msg == "" {
		body.Msg = string(resp.Body)
	}
	return exception.NewAPIError(resp.Status, body.Code, body.Msg, target)
}

func transient(resp Response, err error) bool {
	var apiErr *exception.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	return resp.Status == 0 || resp.Status >= http.StatusInternalServerError
}
