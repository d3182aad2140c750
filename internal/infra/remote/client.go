// Package remote is the device-side client of the remote consumption/history API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vietddude/payverify/internal/core/domain"
	"github.com/vietddude/payverify/internal/infra/rpc/routing"
	"github.com/vietddude/payverify/internal/metrics"
)

// Config holds remote API settings.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

// Client talks to the remote API with a bearer token. Transport failures and
// 5xx responses are retried; every other failure is returned at once.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retry      routing.RetryConfig
	log        *slog.Logger
}

// NewClient creates a remote API client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retry: routing.NewRetryConfig(cfg.MaxRetries),
		log:   slog.With("component", "remote"),
	}
}

// httpError is a non-2xx answer from the API.
type httpError struct {
	StatusCode int
	Message    string
}

func (e *httpError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// MarkConsumed asks the server to record hash as consumed by claimID.
// Returns domain.ErrAlreadyConsumed when another claim owns the hash and
// domain.ErrRemoteUnreachable for transport and auth failures.
func (c *Client) MarkConsumed(ctx context.Context, hash domain.TxHash, amount string, at time.Time, claimID string) error {
	body := MarkConsumedRequest{
		Hash:      hash.String(),
		Amount:    amount,
		Timestamp: at.UnixMilli(),
		ClaimID:   claimID,
	}

	var resp Response
	err := c.do(ctx, http.MethodPost, PathMarkConsumed, body, &resp)

	var herr *httpError
	if errors.As(err, &herr) && herr.StatusCode == http.StatusConflict {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyConsumed, hash)
	}
	if err != nil {
		return c.unreachable("mark_consumed", err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s: %s", domain.ErrAlreadyConsumed, hash, resp.Message)
	}
	return nil
}

// IsConsumed asks the server whether any claim owns hash.
func (c *Client) IsConsumed(ctx context.Context, hash domain.TxHash) (bool, error) {
	var resp IsConsumedResponse
	if err := c.do(ctx, http.MethodGet, PathIsConsumed+hash.String(), nil, &resp); err != nil {
		return false, c.unreachable("is_consumed", err)
	}
	if !resp.Success {
		return false, c.unreachable("is_consumed", errors.New(resp.Message))
	}
	return resp.Consumed, nil
}

// SaveTransfer upserts a history record on the server.
func (c *Client) SaveTransfer(ctx context.Context, rec domain.TransferRecord) error {
	var resp Response
	if err := c.do(ctx, http.MethodPost, PathSave, rec, &resp); err != nil {
		return c.unreachable("save", err)
	}
	if !resp.Success {
		return c.unreachable("save", errors.New(resp.Message))
	}
	return nil
}

// History fetches the account's full history, newest first.
func (c *Client) History(ctx context.Context) ([]domain.TransferRecord, error) {
	var resp HistoryResponse
	if err := c.do(ctx, http.MethodGet, PathHistory, nil, &resp); err != nil {
		return nil, c.unreachable("history", err)
	}
	if !resp.Success {
		return nil, c.unreachable("history", errors.New(resp.Message))
	}
	if resp.Data == nil {
		resp.Data = []domain.TransferRecord{}
	}
	return resp.Data, nil
}

func (c *Client) unreachable(op string, err error) error {
	metrics.RemoteErrorsTotal.WithLabelValues(op).Inc()
	c.log.Warn("Remote call failed", "operation", op, "error", err)
	return fmt.Errorf("%w: %s: %w", domain.ErrRemoteUnreachable, op, err)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	attempts := max(c.retry.MaxAttempts, 1)
	for attempt := 0; attempt < attempts; attempt++ {
		retryable, err := c.once(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable || ctx.Err() != nil || attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return errors.Join(ctx.Err(), lastErr)
		case <-time.After(c.retry.Delay(attempt)):
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, out any) (retryable bool, err error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		herr := &httpError{StatusCode: resp.StatusCode}
		var envelope Response
		if json.Unmarshal(data, &envelope) == nil && envelope.Message != "" {
			herr.Message = envelope.Message
		} else {
			herr.Message = strings.TrimSpace(string(data))
		}
		return resp.StatusCode >= 500, herr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return false, fmt.Errorf("parse response: %w", err)
		}
	}
	return false, nil
}
