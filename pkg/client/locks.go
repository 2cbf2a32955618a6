package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"wasteops/pkg/model"
)

// ErrLockConflict is returned by Reserve when the resource is already held.
var ErrLockConflict = errors.New("resource is already reserved")

// LockClient talks to the planning-locks HTTP API.
type LockClient struct {
	httpClient *HttpClient
}

func NewLockClient(baseURL, token string) *LockClient {
	hc := NewHttpClient(baseURL)
	hc.Token = token
	return &LockClient{httpClient: hc}
}

func (c *LockClient) Reserve(ctx context.Context, req model.LockRequest) error {
	resp, err := c.httpClient.POST(ctx, "/api/v1/locks/reserve", req)
	if err != nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusConflict:
		return ErrLockConflict
	default:
		return fmt.Errorf("reserve failed with status %d: %s", resp.StatusCode, GetErrorMessage(resp))
	}
}

func (c *LockClient) Release(ctx context.Context, req model.LockRequest) error {
	resp, err := c.httpClient.POST(ctx, "/api/v1/locks/release", req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("release failed with status %d: %s", resp.StatusCode, GetErrorMessage(resp))
	}
	return nil
}

func (c *LockClient) Query(ctx context.Context, date string) (model.LockSet, error) {
	resp, err := c.httpClient.GET(ctx, "/api/v1/locks?date="+url.QueryEscape(date))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query failed with status %d: %s", resp.StatusCode, GetErrorMessage(resp))
	}
	var set model.LockSet
	if err := resp.DecodeJSON(&set); err != nil {
		return nil, fmt.Errorf("failed to decode lock set: %w", err)
	}
	return set, nil
}
