package device

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pv/telemetry-viewer-go/internal/telemetry"
)

// Client клиент REST API телеметрии одного устройства
type Client struct {
	baseURL    string
	deviceID   string
	httpClient *http.Client
}

// NewClient создает клиента. Таймаут задаётся контекстом каждого запроса.
func NewClient(baseURL, deviceID string) *Client {
	// Убираем trailing slash
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &Client{
		baseURL:    baseURL,
		deviceID:   deviceID,
		httpClient: &http.Client{},
	}
}

// DeviceID возвращает идентификатор устройства
func (c *Client) DeviceID() string {
	return c.deviceID
}

// FetchLocation GET /api/location/{deviceId}
func (c *Client) FetchLocation(ctx context.Context) ([]byte, error) {
	return c.doGet(ctx, "api/location/"+url.PathEscape(c.deviceID), nil)
}

// FetchLocationHistory GET /api/location/{deviceId}/history?limit=N
func (c *Client) FetchLocationHistory(ctx context.Context, limit int) ([]byte, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	return c.doGet(ctx, "api/location/"+url.PathEscape(c.deviceID)+"/history", q)
}

// FetchData GET /api/data?device_id={deviceId}
func (c *Client) FetchData(ctx context.Context) ([]byte, error) {
	q := url.Values{}
	q.Set("device_id", c.deviceID)
	return c.doGet(ctx, "api/data", q)
}

// FetchSensorHistory GET /api/sensor-data/history?device_id=&limit=
func (c *Client) FetchSensorHistory(ctx context.Context, limit int) ([]byte, error) {
	q := url.Values{}
	q.Set("device_id", c.deviceID)
	q.Set("limit", strconv.Itoa(limit))
	return c.doGet(ctx, "api/sensor-data/history", q)
}

// FetchGPSHistory GET /api/gps-data/history?device_id=&limit=
func (c *Client) FetchGPSHistory(ctx context.Context, limit int) ([]byte, error) {
	q := url.Values{}
	q.Set("device_id", c.deviceID)
	q.Set("limit", strconv.Itoa(limit))
	return c.doGet(ctx, "api/gps-data/history", q)
}

// doGet выполняет запрос; любые ошибки транспорта и не-2xx статусы
// оборачиваются в telemetry.ErrNetwork
func (c *Client) doGet(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := fmt.Sprintf("%s/%s", c.baseURL, path)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request %s: %v", telemetry.ErrNetwork, u, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request %s: %w", telemetry.ErrNetwork, u, err)
	}

	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("%w: read response from %s: %w", telemetry.ErrNetwork, u, readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: status %d (%s)", telemetry.ErrNetwork, u, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}
