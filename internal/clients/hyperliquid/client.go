// Package hyperliquid provides the REST and WebSocket clients for the
// exchange's public info API, plus the payload guards shared by every
// collector that parses account state.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hynous/hynous-data/internal/domain"
	"github.com/hynous/hynous-data/internal/utils"
)

const requestTimeout = 10 * time.Second

// Client is the REST client for the exchange info endpoint. All queries
// go to POST /info with a JSON body selecting the request type.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a REST client for the given API base URL.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		log:        log.With().Str("component", "hyperliquid-rest").Logger(),
	}
}

// post sends one info request and decodes the response into out.
func (c *Client) post(ctx context.Context, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal info request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build info request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Errorf(domain.ErrTransient, "info request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Errorf(domain.ErrTransient, "failed to read info response")
	}

	if resp.StatusCode >= 500 {
		return domain.Errorf(domain.ErrTransient, "info request returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("info request returned %d: %s", resp.StatusCode, string(data))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return domain.Errorf(domain.ErrCorruptPayload, "failed to decode info response")
	}

	return nil
}

// Meta returns the names of every perpetual instrument the exchange
// advertises.
func (c *Client) Meta(ctx context.Context) ([]string, error) {
	var meta wireMeta
	if err := c.post(ctx, map[string]string{"type": "meta"}, &meta); err != nil {
		return nil, err
	}

	coins := make([]string, 0, len(meta.Universe))
	for _, instrument := range meta.Universe {
		if instrument.Name != "" {
			coins = append(coins, instrument.Name)
		}
	}

	if len(coins) == 0 {
		return nil, domain.Errorf(domain.ErrCorruptPayload, "meta response listed no instruments")
	}

	return coins, nil
}

// AllMids returns the current mid price per instrument. Non-numeric mids
// are dropped.
func (c *Client) AllMids(ctx context.Context) (map[string]float64, error) {
	var raw map[string]interface{}
	if err := c.post(ctx, map[string]string{"type": "allMids"}, &raw); err != nil {
		return nil, err
	}

	mids := make(map[string]float64, len(raw))
	for coin, value := range raw {
		mid := utils.SafeFloat(value, 0)
		if mid > 0 {
			mids[coin] = mid
		}
	}

	return mids, nil
}

// UserState fetches and parses the clearinghouse state for one address.
func (c *Client) UserState(ctx context.Context, address string) (*domain.AccountState, error) {
	var raw wireUserState
	req := map[string]string{"type": "clearinghouseState", "user": address}
	if err := c.post(ctx, req, &raw); err != nil {
		return nil, err
	}

	return ParseUserState(address, &raw), nil
}

// UserFills fetches the address's recent fills, oldest first.
func (c *Client) UserFills(ctx context.Context, address string) ([]domain.Fill, error) {
	var raw []wireFill
	req := map[string]string{"type": "userFills", "user": address}
	if err := c.post(ctx, req, &raw); err != nil {
		return nil, err
	}

	fills := make([]domain.Fill, 0, len(raw))
	for _, wf := range raw {
		fill, ok := parseFill(wf)
		if !ok {
			continue
		}
		fills = append(fills, fill)
	}

	// The exchange returns newest first; profiling wants time order.
	for i, j := 0, len(fills)-1; i < j; i, j = i+1, j-1 {
		fills[i], fills[j] = fills[j], fills[i]
	}

	return fills, nil
}
