package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/iudanet/zfswitness/pkg/api"
)

// Client представляет HTTP клиент агента для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string // ключ ноды, пустой до регистрации
}

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetAPIKey задает ключ ноды для последующих запросов
func (c *Client) SetAPIKey(apiKey string) {
	c.apiKey = apiKey
}

// Login получает административный JWT. Нужен только для регистрации ноды.
func (c *Client) Login(ctx context.Context, password string) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	req := api.LoginRequest{Password: password}
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", req, &resp, nil); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// RegisterNode регистрирует ноду от имени администратора.
// Возвращенный APIKey показывается один раз, сервер хранит только хеш.
func (c *Client) RegisterNode(ctx context.Context, adminToken string, req api.RegisterNodeRequest) (*api.RegisterNodeResponse, error) {
	var resp api.RegisterNodeResponse
	headers := map[string]string{"Authorization": "Bearer " + adminToken}
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/nodes", req, &resp, headers); err != nil {
		return nil, fmt.Errorf("register node request failed: %w", err)
	}
	return &resp, nil
}

// Report отправляет отчет об инвентаре снапшотов
func (c *Client) Report(ctx context.Context, req api.ReportRequest) (*api.ReportResponse, error) {
	var resp api.ReportResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/snapshots/report", req, &resp, c.nodeHeaders()); err != nil {
		return nil, fmt.Errorf("report request failed: %w", err)
	}
	return &resp, nil
}

// Instructions запрашивает инструкции репликации для этой ноды
func (c *Client) Instructions(ctx context.Context, diagnostics bool) (*api.InstructionsResponse, error) {
	path := "/api/v1/sync/instructions"
	if diagnostics {
		path += "?diagnostics=true"
	}
	var resp api.InstructionsResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp, c.nodeHeaders()); err != nil {
		return nil, fmt.Errorf("instructions request failed: %w", err)
	}
	return &resp, nil
}

// UpdateSyncState сообщает серверу результат выполнения инструкции
func (c *Client) UpdateSyncState(ctx context.Context, req api.UpdateSyncStateRequest) error {
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/sync/state", req, nil, c.nodeHeaders()); err != nil {
		return fmt.Errorf("state update request failed: %w", err)
	}
	return nil
}

// ListSnapshots возвращает инвентарь ноды глазами сервера
func (c *Client) ListSnapshots(ctx context.Context, pool, dataset string) (*api.SnapshotListResponse, error) {
	q := url.Values{}
	if pool != "" {
		q.Set("pool", pool)
	}
	if dataset != "" {
		q.Set("dataset", dataset)
	}
	path := "/api/v1/snapshots"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp api.SnapshotListResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp, c.nodeHeaders()); err != nil {
		return nil, fmt.Errorf("list snapshots request failed: %w", err)
	}
	return &resp, nil
}

func (c *Client) nodeHeaders() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"X-API-Key": c.apiKey}
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}, headers map[string]string) error {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
