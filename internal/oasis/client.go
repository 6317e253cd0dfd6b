package oasis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oasis-climate/oasis-bridge/internal/infrastructure/config"
)

// defaultTimeout is used when the config does not specify a request timeout.
const defaultTimeout = 10 * time.Second

// Logger defines the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Client is the OASIS backend API client.
//
// It is a thin container composing per-resource services that share one
// HTTP client and auth configuration:
//
//	client := oasis.New(cfg.Oasis)
//	homes, err := client.Homes.List(ctx)
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     Logger

	User        *UserService
	Homes       *HomesService
	Thermostats *ThermostatsService
	Sensors     *SensorsService
	Telemetry   *TelemetryService
}

// New creates a new OASIS API client from configuration.
func New(cfg config.OasisConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		apiKey:     cfg.APIKey,
		logger:     noopLogger{},
	}

	c.User = &UserService{c: c}
	c.Homes = &HomesService{c: c}
	c.Thermostats = &ThermostatsService{c: c}
	c.Sensors = &SensorsService{c: c}
	c.Telemetry = &TelemetryService{c: c}

	return c
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// ValidateAuth verifies the API key by fetching the current user.
//
// Returns ErrAuthFailed (wrapped) if the backend rejects the key.
func (c *Client) ValidateAuth(ctx context.Context) error {
	if _, err := c.User.Me(ctx); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
			return fmt.Errorf("%w: %s", ErrAuthFailed, apiErr.Detail)
		}
		return err
	}
	return nil
}

// SendTelemetry sends a batch of readings routed through the given thermostat
// device id. Each reading carries its own sensor device id; the backend keys
// ingestion by the per-reading id, the envelope id identifies the reporting
// gateway.
//
// The envelope timestamp is left null so the backend stamps arrival time.
func (c *Client) SendTelemetry(ctx context.Context, deviceID string, readings []Reading) error {
	payload := telemetryBatch{
		DeviceID: deviceID,
		Readings: readings,
	}
	return c.Telemetry.SendBatch(ctx, payload)
}

// do executes an HTTP request against the backend.
//
// body (if non-nil) is JSON-encoded; out (if non-nil) receives the decoded
// JSON response. Responses with status >= 400 are decoded into *APIError.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("oasis: encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("oasis: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.decodeError(resp)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("oasis: decoding response: %w", err)
		}
		return nil
	}

	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// decodeError builds an *APIError from a 4xx/5xx response.
//
// The backend emits RFC 7807 problem documents; a non-JSON body falls back
// to the raw text as the detail.
func (c *Client) decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var p problem
	if err := json.Unmarshal(data, &p); err != nil || p.Title == "" {
		p.Title = fmt.Sprintf("Error %d", resp.StatusCode)
		p.Detail = strings.TrimSpace(string(data))
	}

	apiErr := &APIError{
		Status: resp.StatusCode,
		Title:  p.Title,
		Detail: p.Detail,
	}

	c.logger.Debug("backend request failed",
		"status", resp.StatusCode,
		"title", apiErr.Title,
	)

	return apiErr
}
