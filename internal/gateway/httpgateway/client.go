// Package httpgateway submits orders and validates promo codes against the
// checkout API over HTTP.
package httpgateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/marketplace-checkout/internal/checkout"
	"github.com/xenking/marketplace-checkout/internal/domain/promo"
	"github.com/xenking/marketplace-checkout/internal/wire"
)

const (
	defaultTimeout    = 15 * time.Second
	idempotencyHeader = "Idempotency-Key"
	apiKeyHeader      = "api_key"
	maxBody           = 1 << 20
)

var (
	_ checkout.Gateway        = (*Client)(nil)
	_ checkout.PromoValidator = (*Client)(nil)
)

// Options configure a Client. All fields are optional.
type Options struct {
	APIKey         string
	Timeout        time.Duration
	Transport      http.RoundTripper
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Client talks to the checkout API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient constructs a client for the API rooted at baseURL
// (e.g. http://localhost:8080/api).
func NewClient(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}

	var otelOpts []otelhttp.Option
	if opts.TracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(opts.TracerProvider))
	}
	if opts.MeterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(opts.MeterProvider))
	}

	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  opts.APIKey,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(opts.Transport, otelOpts...),
		},
	}
}

// SubmitOrder posts the order. A 422 is a business rejection and comes back
// as a failure response; other client errors carrying a message become a
// *checkout.RejectedError; server and transport errors are returned as is.
func (c *Client) SubmitOrder(ctx context.Context, req checkout.OrderRequest) (checkout.OrderResponse, error) {
	status, body, err := c.post(ctx, "orders", wire.EncodeOrderRequest(req), req.IdempotencyKey)
	if err != nil {
		return checkout.OrderResponse{}, err
	}

	switch {
	case status >= 200 && status < 300:
		resp, err := wire.DecodeOrderResponse(body)
		if err != nil {
			return checkout.OrderResponse{}, errors.Wrap(err, "decode order response")
		}
		return resp, nil
	case status == http.StatusUnprocessableEntity:
		apiErr, err := wire.DecodeError(body)
		if err != nil {
			return checkout.OrderResponse{}, errors.Wrap(err, "decode order rejection")
		}
		return checkout.OrderResponse{Status: checkout.StatusFailure, Reason: apiErr.Message}, nil
	default:
		return checkout.OrderResponse{}, statusError("submit order", status, body)
	}
}

// Validate asks the API whether code applies to subtotal.
func (c *Client) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (promo.Result, error) {
	payload := wire.EncodePromoRequest(wire.PromoRequest{Code: code, Subtotal: subtotal})
	status, body, err := c.post(ctx, "promo/validate", payload, "")
	if err != nil {
		return promo.Result{}, err
	}
	if status != http.StatusOK {
		return promo.Result{}, statusError("validate promo", status, body)
	}

	res, err := wire.DecodePromoResult(body)
	if err != nil {
		return promo.Result{}, errors.Wrap(err, "decode promo result")
	}
	return res, nil
}

func (c *Client) post(ctx context.Context, path string, payload []byte, key string) (int, []byte, error) {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return 0, nil, errors.Wrap(err, "build url")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set(apiKeyHeader, c.apiKey)
	}
	if key != "" {
		httpReq.Header.Set(idempotencyHeader, key)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "post %s", path)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return 0, nil, errors.Wrap(err, "read response")
	}
	return resp.StatusCode, body, nil
}

// statusError converts an unexpected status into an error. Client errors
// with a readable message are surfaced to the buyer, except authentication
// and throttling which are operator problems.
func statusError(op string, status int, body []byte) error {
	apiErr, decErr := wire.DecodeError(body)
	if decErr != nil || apiErr.Message == "" {
		return fmt.Errorf("%s: status %d: %s", op, status, strings.TrimSpace(string(body)))
	}

	err := fmt.Errorf("%s: status %d: %s", op, status, apiErr.Message)
	if status >= 400 && status < 500 &&
		status != http.StatusUnauthorized && status != http.StatusTooManyRequests {
		return &checkout.RejectedError{Reason: apiErr.Message, Err: err}
	}
	return err
}
