package simulate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// ErrBackpressure is returned when retries on 429 run out.
var ErrBackpressure = errors.New("server kept answering 429")

// statusError is a non-2xx answer.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, strings.TrimSpace(e.body))
}

// client talks JSON to the scoreboard API.
type client struct {
	base    string
	token   string
	timeout time.Duration
	retries int
	http    *fasthttp.Client

	onBackpressure func()
}

func newClient(cfg Config) *client {
	return &client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		retries: cfg.Retries,
		http: &fasthttp.Client{
			MaxConnsPerHost:     cfg.Workers * 2,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: time.Minute,
		},
		onBackpressure: func() {},
	}
}

// login opens an admin session and keeps its token for later calls.
func (c *client) login(ctx context.Context, username, password string) error {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, fasthttp.MethodPost, "/api/admin/login", body, &out); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.token = out.Token
	return nil
}

// do sends in as JSON and decodes the answer into out. 429 answers are
// retried after Retry-After until the retry budget is spent.
func (c *client) do(ctx context.Context, method, path string, in, out any, headers ...string) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		payload = b
	}

	for attempt := 0; ; attempt++ {
		status, body, wait, err := c.once(ctx, method, path, payload, headers)
		if err != nil {
			return err
		}
		if status == fasthttp.StatusTooManyRequests {
			c.onBackpressure()
			if attempt >= c.retries {
				return ErrBackpressure
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		if status < 200 || status > 299 {
			return &statusError{status: status, body: string(body)}
		}
		if out == nil || len(body) == 0 {
			return nil
		}
		return json.Unmarshal(body, out)
	}
}

func (c *client) once(ctx context.Context, method, path string, payload []byte, headers []string) (int, []byte, time.Duration, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.base + path)
	req.Header.SetMethod(method)
	if payload != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return 0, nil, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}

	wait := 100 * time.Millisecond
	if s, err := strconv.Atoi(string(resp.Header.Peek("Retry-After"))); err == nil && s > 0 {
		wait = time.Duration(s) * time.Second
	}
	body := append([]byte(nil), resp.Body()...)
	return resp.StatusCode(), body, wait, nil
}
