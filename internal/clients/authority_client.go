// Package clients contains thin wrappers around external services.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/loyaltyx/demoledger/internal/domain"
	"github.com/loyaltyx/demoledger/pkg/retrier"
)

const (
	defaultTimeout = 10 * time.Second

	createPath  = "/api/demo/create"
	summaryPath = "/api/demo/summary"
	exitPath    = "/api/demo/exit"
	resetPath   = "/api/demo/reset"
)

// AuthorityClient talks to the remote summary authority that owns the
// server-side view of demo accounts.
type AuthorityClient struct {
	baseURL    string
	httpClient *http.Client
	retrier    *retrier.Retrier
}

// NewAuthorityClient creates a client for the given base URL.
func NewAuthorityClient(baseURL string, timeout time.Duration) *AuthorityClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &AuthorityClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retrier:    retrier.New(retrier.WithInitialInterval(time.Second)),
	}
}

type handleRequest struct {
	WalletAddress string `json:"wallet_address"`
}

// envelope is the authority's response wrapper. Create and reset nest
// the account summary; exit carries only the ack fields.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error,omitempty"`
	Summary *domain.Summary `json:"summary,omitempty"`
}

// Create registers the handle as a demo account and returns the initial
// summary.
func (c *AuthorityClient) Create(ctx context.Context, handle string) (*domain.Summary, error) {
	return retrier.DoWithData(c.retrier, ctx, func(ctx context.Context) (*domain.Summary, error) {
		env, err := c.post(ctx, createPath, handle)
		if err != nil {
			return nil, errors.Wrap(err, "create demo account")
		}
		if env.Summary == nil {
			return nil, errors.New("authority create response carried no summary")
		}
		return env.Summary, nil
	})
}

// Summary fetches the current consolidated view for the handle.
func (c *AuthorityClient) Summary(ctx context.Context, handle string) (*domain.Summary, error) {
	return retrier.DoWithData(c.retrier, ctx, func(ctx context.Context) (*domain.Summary, error) {
		endpoint := fmt.Sprintf("%s%s?address=%s", c.baseURL, summaryPath, url.QueryEscape(handle))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, errors.Wrap(err, "build summary request")
		}

		body, err := c.send(req)
		if err != nil {
			return nil, errors.Wrap(err, "fetch demo summary")
		}

		var summary domain.Summary
		if err := json.Unmarshal(body, &summary); err != nil {
			return nil, errors.Wrap(err, "decode demo summary")
		}
		return &summary, nil
	})
}

// Exit tells the authority the demo session is over. Single attempt:
// callers treat teardown notification as best-effort.
func (c *AuthorityClient) Exit(ctx context.Context, handle string) error {
	if _, err := c.post(ctx, exitPath, handle); err != nil {
		return errors.Wrap(err, "exit demo mode")
	}
	return nil
}

// Reset asks the authority to restore the default grant and returns the
// refreshed summary.
func (c *AuthorityClient) Reset(ctx context.Context, handle string) (*domain.Summary, error) {
	return retrier.DoWithData(c.retrier, ctx, func(ctx context.Context) (*domain.Summary, error) {
		env, err := c.post(ctx, resetPath, handle)
		if err != nil {
			return nil, errors.Wrap(err, "reset demo account")
		}
		if env.Summary == nil {
			return nil, errors.New("authority reset response carried no summary")
		}
		return env.Summary, nil
	})
}

func (c *AuthorityClient) post(ctx context.Context, path, handle string) (*envelope, error) {
	payload, err := json.Marshal(handleRequest{WalletAddress: handle})
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.send(req)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	if env.Error != "" {
		return nil, fmt.Errorf("authority rejected request: %s", env.Error)
	}
	return &env, nil
}

func (c *AuthorityClient) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "http request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("authority returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
