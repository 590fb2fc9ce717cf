// Package auctionapi is a thin client for the auction platform's REST
// API. Responses are passed through as raw JSON; interpreting them is
// the caller's concern.
package auctionapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/cashsys/auction-chat/agent/contract"
)

const maxResponseBytes = 1 << 20

type Config struct {
	BaseURL string        `envconfig:"BASE_URL" split_words:"true" default:"http://localhost:8080"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("auction api base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// CreateItemInput mirrors the platform's item creation body. Field names
// follow the platform's JSON casing.
type CreateItemInput struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	StartingPrice int64  `json:"startingPrice"`
	DurationHours int64  `json:"durationHours"`
}

func (c *Client) ListItems(ctx context.Context, caller contractx.CallerContext) (json.RawMessage, error) {
	return c.do(ctx, caller, http.MethodGet, "/api/catalogue/items", nil, nil)
}

func (c *Client) CreateItem(ctx context.Context, caller contractx.CallerContext, in CreateItemInput) (json.RawMessage, error) {
	return c.do(ctx, caller, http.MethodPost, "/api/catalogue/items", nil, in)
}

func (c *Client) SearchItems(ctx context.Context, caller contractx.CallerContext, keyword string) (json.RawMessage, error) {
	query := url.Values{"keyword": []string{keyword}}
	return c.do(ctx, caller, http.MethodGet, "/api/catalogue/search", query, nil)
}

func (c *Client) GetItem(ctx context.Context, caller contractx.CallerContext, itemID int64) (json.RawMessage, error) {
	return c.do(ctx, caller, http.MethodGet, fmt.Sprintf("/api/catalogue/items/%d", itemID), nil, nil)
}

func (c *Client) StartAuction(ctx context.Context, caller contractx.CallerContext, catalogueID int64) (json.RawMessage, error) {
	return c.do(ctx, caller, http.MethodPost, fmt.Sprintf("/api/auctions/%d/start", catalogueID), nil, nil)
}

func (c *Client) PlaceBid(ctx context.Context, caller contractx.CallerContext, catalogueID, bidAmount int64) (json.RawMessage, error) {
	body := map[string]int64{"bidAmount": bidAmount}
	return c.do(ctx, caller, http.MethodPost, fmt.Sprintf("/api/auctions/%d/bid", catalogueID), nil, body)
}

func (c *Client) GetAuctionWinner(ctx context.Context, caller contractx.CallerContext, catalogueID int64) (json.RawMessage, error) {
	return c.do(ctx, caller, http.MethodGet, fmt.Sprintf("/api/auctions/%d/winner", catalogueID), nil, nil)
}

func (c *Client) GetAuctionStatus(ctx context.Context, caller contractx.CallerContext, catalogueID int64) (json.RawMessage, error) {
	return c.do(ctx, caller, http.MethodGet, fmt.Sprintf("/api/auctions/%d/status", catalogueID), nil, nil)
}

func (c *Client) GetAuctionEndTime(ctx context.Context, caller contractx.CallerContext, catalogueID int64) (json.RawMessage, error) {
	return c.do(ctx, caller, http.MethodGet, fmt.Sprintf("/api/auctions/%d/end", catalogueID), nil, nil)
}

func (c *Client) GetPaymentReceipt(ctx context.Context, caller contractx.CallerContext, paymentID string) (json.RawMessage, error) {
	return c.do(ctx, caller, http.MethodGet, "/api/payments/"+url.PathEscape(paymentID), nil, nil)
}

func (c *Client) GetMyPaymentHistory(ctx context.Context, caller contractx.CallerContext) (json.RawMessage, error) {
	return c.do(ctx, caller, http.MethodGet, "/api/payments/history", nil, nil)
}

func (c *Client) do(
	ctx context.Context,
	caller contractx.CallerContext,
	method, path string,
	query url.Values,
	body any,
) (json.RawMessage, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller.Token != "" {
		req.Header.Set("Authorization", "Bearer "+caller.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &contractx.APIError{
			Status:  resp.StatusCode,
			Message: apiErrorMessage(raw),
		}
	}

	if len(raw) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.RawMessage(raw), nil
}

// apiErrorMessage pulls a human-readable message out of an error body,
// falling back to the raw text.
func apiErrorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
