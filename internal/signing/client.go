package signing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/keyfort/provider-bridge/internal/eip1193"
)

// maxErrorBodyBytes bounds how much of an upstream error body is retained.
const maxErrorBodyBytes = 64 * 1024

// ResponseError is a non-2xx signer response. It keeps the raw body so the
// bridge's normalizer can surface upstream error messages.
type ResponseError struct {
	StatusCode int
	Body       []byte
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("signer responded with status %d", e.StatusCode)
}

// ResponseBody implements eip1193.BodyCarrier.
func (e *ResponseError) ResponseBody() []byte {
	return e.Body
}

// ClientConfig configures the signer daemon client.
type ClientConfig struct {
	BaseURL string
	// Timeout bounds one signer call. The default is generous because
	// transaction submission waits on operator confirmation and chain
	// inclusion.
	Timeout time.Duration
}

// Client talks to the wallet's signer daemon over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient creates a signer client for the given daemon address.
func NewClient(cfg ClientConfig, log *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("signer base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}, nil
}

type rpcEnvelope struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
	Origin string          `json:"origin"`
}

type rpcResult struct {
	Result json.RawMessage `json:"result"`
}

// RouteSafeRequest implements Backend. Transport faults surface as the
// canonical disconnected error; non-2xx responses carry the raw body for
// the normalizer. Calls are never retried here: retry policy belongs to the
// signer itself.
func (c *Client) RouteSafeRequest(ctx context.Context, method string, params json.RawMessage, origin string) (json.RawMessage, error) {
	payload, err := json.Marshal(rpcEnvelope{Method: method, Params: params, Origin: origin})
	if err != nil {
		return nil, errors.Wrap(err, "encoding signer request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rpc", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "building signer request")
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug("forwarding capability request to signer",
		zap.String("method", method),
		zap.String("origin", origin),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.WithMessagef(eip1193.ErrDisconnected, "signer unreachable: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return nil, errors.WithMessagef(eip1193.ErrDisconnected, "reading signer response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ResponseError{StatusCode: resp.StatusCode, Body: body}
	}

	var result rpcResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.Wrap(err, "decoding signer response")
	}
	return result.Result, nil
}

// Healthy pings the signer daemon, retrying transient failures with
// exponential backoff. Used at startup and by the health surface.
func (c *Client) Healthy(ctx context.Context) error {
	probe := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errors.Errorf("signer health returned status %d", resp.StatusCode)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(probe, policy); err != nil {
		return errors.Wrap(err, "signer health check failed")
	}
	return nil
}
