package datadog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"k8s.io/klog/v2"

	"github.com/Chichichkin/dd-logs-sink/internal/logging/compress"
)

const inputPath = "/v1/input/"

// Client posts gzip-compressed payloads to the Datadog logs intake at
// https://{host}:{port}/v1/input/{apiKey}. It makes exactly one attempt per
// payload.
type Client struct {
	url        string
	redacted   string
	httpClient *http.Client
}

type Endpoint struct {
	Host   string
	Port   int
	APIKey string
}

// Response is a successful (2xx) intake reply.
type Response struct {
	StatusCode int
	Status     string
	Body       string
}

type Option func(*Client)

// WithHTTPClient replaces the default client. The default client has no
// timeout of its own; deadlines come from the request context.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(endpoint Endpoint, opts ...Option) *Client {
	c := &Client{
		url:        endpointURL(endpoint, endpoint.APIKey),
		redacted:   endpointURL(endpoint, "<redacted>"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func endpointURL(endpoint Endpoint, key string) string {
	return "https://" + net.JoinHostPort(endpoint.Host, strconv.Itoa(endpoint.Port)) + inputPath + key
}

// URL returns the intake URL with the API key redacted.
func (c *Client) URL() string {
	return c.redacted
}

// Send implements logging.Sender.
func (c *Client) Send(ctx context.Context, payload string) error {
	resp, err := c.Post(ctx, payload)
	if err != nil {
		return err
	}

	klog.V(4).Infof("Response code: %d, %s", resp.StatusCode, resp.Status)
	klog.V(4).Infof("Response content: %s", resp.Body)
	return nil
}

// Post compresses payload, submits it and classifies the reply. Any non-2xx
// status or I/O failure is returned as a *DeliveryError.
func (c *Client) Post(ctx context.Context, payload string) (*Response, error) {
	body, err := compress.Gzip(payload)
	if err != nil {
		return nil, c.failure(payload, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, c.failure(payload, fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.failure(payload, fmt.Errorf("failed to send request: %w", stripURL(err)))
	}
	defer resp.Body.Close()

	klog.V(4).Infof("Submitted payload: %s", payload)

	responseBody, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errorBody := string(responseBody)
		if readErr != nil {
			klog.V(4).Infof("Failed to read error response body: %v", readErr)
			errorBody += fmt.Sprintf(" (body truncated: %v)", readErr)
		}
		return nil, &DeliveryError{
			URL:        c.redacted,
			StatusCode: resp.StatusCode,
			Status:     statusMessage(resp),
			Body:       errorBody,
			Payload:    payload,
		}
	}

	if readErr != nil {
		return nil, c.failure(payload, fmt.Errorf("failed to read response body: %w", readErr))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Status:     statusMessage(resp),
		Body:       string(responseBody),
	}, nil
}

func (c *Client) failure(payload string, err error) *DeliveryError {
	return &DeliveryError{
		URL:     c.redacted,
		Payload: payload,
		Err:     err,
	}
}

// statusMessage returns the reason phrase, e.g. "Too Many Requests".
func statusMessage(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}

// stripURL drops the request URL, which carries the API key, from transport
// errors.
func stripURL(err error) error {
	if urlErr, ok := err.(*url.Error); ok {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
