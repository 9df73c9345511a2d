// Package countsync is a client for the stockcount HTTP API.
package countsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/service/counting"
	"github.com/mamadbah2/stockcount/internal/service/engine"
)

// Client exposes the session operations a scanner station uses.
type Client interface {
	OpenSession(ctx context.Context) (*engine.Status, error)
	CloseSession(ctx context.Context) error
	Status(ctx context.Context) (*engine.Status, error)
	Scan(ctx context.Context, barcode string) (*engine.ScanResult, error)
	Delta(ctx context.Context, barcode string, delta int) (*counting.Result, error)
	Set(ctx context.Context, barcode, value string) (*counting.Result, error)
	Pending(ctx context.Context) (*models.PendingConfirmation, error)
	Confirm(ctx context.Context) (*counting.Result, error)
	Cancel(ctx context.Context) error
	SelectWarehouse(ctx context.Context, id string) error
}

// Config holds client settings.
type Config struct {
	BaseURL string
	UserID  string
	Timeout time.Duration
}

// APIClient is a resty-backed implementation of Client.
type APIClient struct {
	httpClient *resty.Client
}

// NewClient builds an API client scoped to one user.
func NewClient(cfg Config) *APIClient {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	restyClient := resty.New()
	restyClient.
		SetBaseURL(fmt.Sprintf("%s/api/users/%s", base, url.PathEscape(cfg.UserID))).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	return &APIClient{httpClient: restyClient}
}

// APIError is a non-2xx answer of the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stockcount api error: status=%d, message=%s", e.Status, e.Message)
}

// Is maps API statuses back onto the model sentinels.
func (e *APIError) Is(target error) bool {
	switch e.Status {
	case http.StatusBadRequest:
		return target == models.ErrInvalidInput
	case http.StatusNotFound:
		return target == models.ErrNotFound
	case http.StatusConflict:
		return target == models.ErrConflictPending
	case http.StatusServiceUnavailable:
		return target == models.ErrUnavailable
	}
	return false
}

type apiError struct {
	Error string `json:"error"`
}

func (c *APIClient) do(ctx context.Context, method, path string, body, result any) error {
	apiErr := new(apiError)
	req := c.httpClient.R().
		SetContext(ctx).
		SetError(apiErr)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return &APIError{Status: resp.StatusCode(), Message: apiErr.Error}
	}
	return nil
}

func (c *APIClient) OpenSession(ctx context.Context) (*engine.Status, error) {
	status := new(engine.Status)
	if err := c.do(ctx, http.MethodPost, "/session", nil, status); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *APIClient) CloseSession(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/session", nil, nil)
}

func (c *APIClient) Status(ctx context.Context) (*engine.Status, error) {
	status := new(engine.Status)
	if err := c.do(ctx, http.MethodGet, "/status", nil, status); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *APIClient) Scan(ctx context.Context, barcode string) (*engine.ScanResult, error) {
	res := new(engine.ScanResult)
	if err := c.do(ctx, http.MethodPost, "/scan", map[string]any{"barcode": barcode}, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *APIClient) Delta(ctx context.Context, barcode string, delta int) (*counting.Result, error) {
	res := new(counting.Result)
	path := fmt.Sprintf("/items/%s/delta", url.PathEscape(barcode))
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"field": models.FieldCount, "delta": delta}, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *APIClient) Set(ctx context.Context, barcode, value string) (*counting.Result, error) {
	res := new(counting.Result)
	path := fmt.Sprintf("/items/%s/set", url.PathEscape(barcode))
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"field": models.FieldCount, "value": value}, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Pending returns nil without error when nothing awaits confirmation.
func (c *APIClient) Pending(ctx context.Context) (*models.PendingConfirmation, error) {
	p := new(models.PendingConfirmation)
	err := c.do(ctx, http.MethodGet, "/confirmation", nil, p)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (c *APIClient) Confirm(ctx context.Context) (*counting.Result, error) {
	res := new(counting.Result)
	if err := c.do(ctx, http.MethodPost, "/confirmation/confirm", nil, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *APIClient) Cancel(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/confirmation/cancel", nil, nil)
}

func (c *APIClient) SelectWarehouse(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/warehouses/current", map[string]any{"id": id}, nil)
}
