package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/http2"

	"github.com/mbarrios/gastosync/internal/config"
	"github.com/mbarrios/gastosync/internal/events"
	"github.com/mbarrios/gastosync/internal/models"
)

// HTTPClient implements Client against the document-store REST API.
type HTTPClient struct {
	client    *http.Client
	baseURL   string
	userAgent string
	token     string
	logger    *events.Logger

	maxRetries int
	retryDelay time.Duration
}

// NewHTTPClient creates an HTTP client from config.
func NewHTTPClient(cfg *config.APIConfig, logger *events.Logger) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			NextProtos: []string{"h2", "http/1.1"},
		},
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		logger.WithError(err).Warn("Failed to configure HTTP/2")
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		token:      cfg.Token,
		maxRetries: cfg.MaxRetries,
		retryDelay: time.Second,
		logger:     logger.WithField("component", "remote_client"),
	}
}

// SetToken installs the identity token.
func (c *HTTPClient) SetToken(token string) {
	c.token = token
}

// Close releases transport resources.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// Categories

func (c *HTTPClient) CreateCategory(ctx context.Context, ownerID string, doc CategoryDoc) (CreateResult, error) {
	var res CreateResult
	path := fmt.Sprintf("/v1/users/%s/categories", url.PathEscape(ownerID))
	err := c.doJSON(ctx, http.MethodPost, path, doc, &res)
	return res, err
}

func (c *HTTPClient) UpdateCategory(ctx context.Context, ownerID, remoteID string, doc CategoryDoc) error {
	path := fmt.Sprintf("/v1/users/%s/categories/%s", url.PathEscape(ownerID), url.PathEscape(remoteID))
	return c.doJSON(ctx, http.MethodPut, path, doc, nil)
}

func (c *HTTPClient) CategoriesUpdatedAfter(ctx context.Context, ownerID string, sinceMillis int64) ([]CategoryRecord, error) {
	var res struct {
		Documents []CategoryRecord `json:"documents"`
	}
	path := fmt.Sprintf("/v1/users/%s/categories?updated_after=%s",
		url.PathEscape(ownerID), strconv.FormatInt(sinceMillis, 10))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res.Documents, nil
}

func (c *HTTPClient) DeleteCategory(ctx context.Context, ownerID, remoteID string) error {
	path := fmt.Sprintf("/v1/users/%s/categories/%s", url.PathEscape(ownerID), url.PathEscape(remoteID))
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// Expenses

func (c *HTTPClient) CreateExpense(ctx context.Context, ownerID string, doc ExpenseDoc) (CreateResult, error) {
	var res CreateResult
	path := fmt.Sprintf("/v1/users/%s/expenses", url.PathEscape(ownerID))
	err := c.doJSON(ctx, http.MethodPost, path, doc, &res)
	return res, err
}

func (c *HTTPClient) UpdateExpense(ctx context.Context, ownerID, remoteID string, doc ExpenseDoc) error {
	path := fmt.Sprintf("/v1/users/%s/expenses/%s", url.PathEscape(ownerID), url.PathEscape(remoteID))
	return c.doJSON(ctx, http.MethodPut, path, doc, nil)
}

func (c *HTTPClient) ExpensesUpdatedAfter(ctx context.Context, ownerID string, sinceMillis int64) ([]ExpenseRecord, error) {
	var res struct {
		Documents []ExpenseRecord `json:"documents"`
	}
	path := fmt.Sprintf("/v1/users/%s/expenses?updated_after=%s",
		url.PathEscape(ownerID), strconv.FormatInt(sinceMillis, 10))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res.Documents, nil
}

func (c *HTTPClient) DeleteExpense(ctx context.Context, ownerID, remoteID string) error {
	path := fmt.Sprintf("/v1/users/%s/expenses/%s", url.PathEscape(ownerID), url.PathEscape(remoteID))
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// User profile

func (c *HTTPClient) GetUser(ctx context.Context, ownerID string) (*UserDoc, error) {
	var doc UserDoc
	path := fmt.Sprintf("/v1/users/%s", url.PathEscape(ownerID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &doc); err != nil {
		var apiErr *models.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, models.ErrRecordNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (c *HTTPClient) UpdateUser(ctx context.Context, ownerID string, doc UserDoc) error {
	path := fmt.Sprintf("/v1/users/%s", url.PathEscape(ownerID))
	return c.doJSON(ctx, http.MethodPut, path, doc, nil)
}

// Plan catalog

func (c *HTTPClient) Plans(ctx context.Context) ([]PlanRecord, error) {
	var res struct {
		Documents []PlanRecord `json:"documents"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/plans", nil, &res); err != nil {
		return nil, err
	}
	return res.Documents, nil
}

// doJSON executes one API call with retry. Connectivity failures and
// retryable statuses are retried with exponential backoff and, once
// exhausted, wrapped as models.ErrUnreachable. Non-retryable statuses
// become *models.APIError.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	fullURL := c.baseURL + path

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"method": method,
		"url":    fullURL,
	}).Debug("Sending request")

	var respBody []byte
	err := c.retry(ctx, func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrUnreachable, err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: read response: %v", models.ErrUnreachable, err)
		}

		if isRetryable(resp.StatusCode) {
			return fmt.Errorf("%w: server error %d", models.ErrUnreachable, resp.StatusCode)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &models.APIError{StatusCode: resp.StatusCode}
			if jsonErr := json.Unmarshal(respBody, apiErr); jsonErr != nil || apiErr.Message == "" {
				apiErr.Message = string(respBody)
			}
			return apiErr
		}

		return nil
	})
	if err != nil {
		return err
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}

	return nil
}

// retry executes fn with exponential backoff. Rejections (API errors)
// are returned immediately; only connectivity-class failures retry.
func (c *HTTPClient) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := c.retryDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(map[string]interface{}{
				"attempt": attempt,
				"delay":   delay,
			}).Debug("Retrying request")

			select {
			case <-time.After(delay):
				delay *= 2
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", models.ErrUnreachable, ctx.Err())
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !models.IsTransient(err) {
			return err
		}
	}

	return lastErr
}

func isRetryable(status int) bool {
	return status == http.StatusTooManyRequests ||
		(status >= 500 && status < 600)
}

