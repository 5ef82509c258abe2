package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/DIvanCode/rwlatch/internal/api"
	. "github.com/DIvanCode/rwlatch/pkg/errors"
	"github.com/DIvanCode/rwlatch/pkg/latch"
)

type Client struct {
	endpoint string
}

func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
	}
}

func (c *Client) Latches(ctx context.Context) (map[string]latch.Stats, error) {
	var resp api.LatchesResponse
	if err := c.get(ctx, "/latches", &resp); err != nil {
		return nil, err
	}
	return resp.Latches, nil
}

func (c *Client) Latch(ctx context.Context, name string) (latch.Stats, error) {
	segments := strings.Split(name, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}

	var resp api.LatchResponse
	if err := c.get(ctx, "/latches/"+strings.Join(segments, "/"), &resp); err != nil {
		return latch.Stats{}, err
	}
	return resp.Stats, nil
}

func (c *Client) get(ctx context.Context, path string, resp any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return err
	}

	httpClient := http.Client{}
	httpResp, err := httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		content, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return err
		}
		if httpResp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrLatchNotFound, string(content))
		}
		return errors.New(string(content))
	}

	if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
