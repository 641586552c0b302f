package adapters

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

	"iot-dashboard/application"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

const (
	ConfigStoreDefaultTimeout          = 10 * time.Second
	ConfigStoreDefaultFailureThreshold = 3
	ConfigStoreDefaultResetTimeout     = 30 * time.Second

	configPath = "/config"
)

var (
	ErrConfigNotFound         = fmt.Errorf("config not found")
	ErrConfigStoreUnavailable = fmt.Errorf("config store unavailable")
)

type ConfigStoreClientParams struct {
	BaseURL string

	Timeout          time.Duration
	FailureThreshold uint32
	ResetTimeout     time.Duration

	HTTPClient *http.Client

	Log zerolog.Logger
}

func (p *ConfigStoreClientParams) EnsureDefaults() {
	if p.Timeout == 0 {
		p.Timeout = ConfigStoreDefaultTimeout
	}
	if p.FailureThreshold == 0 {
		p.FailureThreshold = ConfigStoreDefaultFailureThreshold
	}
	if p.ResetTimeout == 0 {
		p.ResetTimeout = ConfigStoreDefaultResetTimeout
	}
	if p.HTTPClient == nil {
		p.HTTPClient = &http.Client{Timeout: p.Timeout}
	}
}

// ConfigStoreClient talks to the remote configuration manager. Requests go
// through a circuit breaker so an unreachable store fails fast.
type ConfigStoreClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker

	log zerolog.Logger
}

func NewConfigStoreClient(params ConfigStoreClientParams) (*ConfigStoreClient, error) {
	params.EnsureDefaults()

	if params.BaseURL == "" {
		return nil, fmt.Errorf("config store url is required")
	}

	c := &ConfigStoreClient{
		baseURL: strings.TrimRight(params.BaseURL, "/"),
		http:    params.HTTPClient,
		log:     params.Log,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "config-store",
		MaxRequests: 1,
		Timeout:     params.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= params.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrConfigStoreUnavailable)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return c, nil
}

func (c *ConfigStoreClient) List(ctx context.Context) ([]application.ConfigRecord, error) {
	var records []application.ConfigRecord
	if err := c.do(ctx, http.MethodGet, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *ConfigStoreClient) Save(ctx context.Context, record application.ConfigRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return c.do(ctx, http.MethodPost, body, nil)
}

func (c *ConfigStoreClient) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, nil, nil)
}

func (c *ConfigStoreClient) do(ctx context.Context, method string, body []byte, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.request(ctx, method, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrConfigStoreUnavailable, err)
	}
	return err
}

func (c *ConfigStoreClient) request(ctx context.Context, method string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+configPath, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigStoreUnavailable, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrConfigStoreUnavailable, err)
	}

	c.log.Debug().Str("method", method).Int("status", resp.StatusCode).Msg("config store request")

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out != nil && len(bytes.TrimSpace(b)) > 0 {
			if err := json.Unmarshal(b, out); err != nil {
				return fmt.Errorf("decode: %w", err)
			}
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrConfigNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", ErrConfigStoreUnavailable, resp.Status)
	default:
		return errors.New(resp.Status)
	}
}

var _ application.ConfigStore = &ConfigStoreClient{}
