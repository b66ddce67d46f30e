// Package upstash implements the command store over the Upstash Redis REST
// protocol: every operation is a single POST carrying an ordered command
// array, answered with {"result": ..., "error": ...}.
package upstash

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/brasaforge/forge/internal/core/ports"
)

type Client struct {
	httpClient *http.Client
	url        string
	token      string
}

var _ ports.CommandStore = (*Client)(nil)

func NewClient(url, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		url:        url,
		token:      token,
	}
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

// request performs one command round trip. Command elements are always
// sent as strings, matching the REST contract.
func (c *Client) request(ctx context.Context, command ...string) (json.RawMessage, error) {
	body, err := json.Marshal(map[string][]string{"command": command})
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create store request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("store request failed (%d): %s", resp.StatusCode, string(payload))
	}

	var parsed response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode store response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("store error: %s", parsed.Error)
	}

	return parsed.Result, nil
}

func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	raw, err := c.request(ctx, "GET", key)
	if err != nil {
		return "", false, err
	}
	if isNull(raw) {
		return "", false, nil
	}

	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false, fmt.Errorf("unexpected GET result: %w", err)
	}
	return value, true, nil
}

func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl > 0 {
		_, err := c.request(ctx, "SET", key, value, "EX", strconv.FormatInt(int64(ttl.Seconds()), 10))
		return err
	}
	_, err := c.request(ctx, "SET", key, value)
	return err
}

func (c *Client) Del(ctx context.Context, key string) error {
	_, err := c.request(ctx, "DEL", key)
	return err
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	raw, err := c.request(ctx, "INCR", key)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := json.Unmarshal(raw, &count); err != nil {
		return 0, fmt.Errorf("unexpected INCR result: %w", err)
	}
	return count, nil
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	_, err := c.request(ctx, "EXPIRE", key, strconv.FormatInt(int64(ttl.Seconds()), 10))
	return err
}

func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	_, err := c.request(ctx, "ZADD", key, strconv.FormatFloat(score, 'f', -1, 64), member)
	return err
}

func (c *Client) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	raw, err := c.request(ctx, "ZRANGE", key, strconv.FormatInt(start, 10), strconv.FormatInt(stop, 10))
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}

	var members []string
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, fmt.Errorf("unexpected ZRANGE result: %w", err)
	}
	return members, nil
}

func (c *Client) ZRem(ctx context.Context, key, member string) error {
	_, err := c.request(ctx, "ZREM", key, member)
	return err
}

func (c *Client) HSet(ctx context.Context, key string, fields map[string]string) error {
	command := make([]string, 0, 2+len(fields)*2)
	command = append(command, "HSET", key)
	for field, value := range fields {
		command = append(command, field, value)
	}
	_, err := c.request(ctx, command...)
	return err
}

func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	raw, err := c.request(ctx, "HGETALL", key)
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}

	// The REST protocol returns hashes as a flat field/value array.
	var flat []string
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("unexpected HGETALL result: %w", err)
	}
	if len(flat) == 0 {
		return nil, nil
	}

	hash := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		hash[flat[i]] = flat[i+1]
	}
	return hash, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
