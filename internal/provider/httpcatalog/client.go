// Package httpcatalog reads the external product catalog over HTTP.
package httpcatalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/avstrong/rentals/internal/catalog"
)

var tracer = otel.Tracer("github.com/avstrong/rentals/internal/provider/httpcatalog")

var ErrUnexpectedStatus = errors.New("unexpected catalog response status")

const maxErrorBody = 512

type Config struct {
	BaseURL string
	Timeout time.Duration
	// Client defaults to a client with Timeout.
	Client *http.Client
}

type Client struct {
	baseURL string
	client  *http.Client
}

func New(conf Config) *Client {
	client := conf.Client
	if client == nil {
		timeout := conf.Timeout
		if timeout <= 0 {
			timeout = 3 * time.Second
		}

		client = &http.Client{Timeout: timeout}
	}

	return &Client{baseURL: strings.TrimRight(conf.BaseURL, "/"), client: client}
}

type listResponse struct {
	Products []catalog.ExternalProduct `json:"products"`
}

// ListProducts fetches GET {BaseURL}/products.
func (c *Client) ListProducts(ctx context.Context) ([]catalog.ExternalProduct, error) {
	ctx, span := tracer.Start(ctx, "httpcatalog.ListProducts")
	defer span.End()

	url := c.baseURL + "/products"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", url, err)
	}

	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return nil, fmt.Errorf("get %s: %w: %d %s", url, ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}

	span.SetAttributes(attribute.Int("catalog.products", len(out.Products)))

	return out.Products, nil
}
