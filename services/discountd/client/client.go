// Package client talks to the discountd admin API.
package client

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cpswap/crypto"
	"cpswap/native/discount"
	"cpswap/services/discountd/api"
)

// APIError is returned for non-2xx responses.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("discountd: http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("discountd: %s (http %d): %s", e.Code, e.Status, e.Message)
}

// Client is a thin JSON client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	now        func() time.Time
}

// New constructs a client for baseURL such as http://127.0.0.1:7081.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if _, err := url.ParseRequestURI(trimmed); err != nil || trimmed == "" {
		return nil, fmt.Errorf("discountd: invalid base url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: trimmed, httpClient: httpClient, now: time.Now}, nil
}

// WithToken sets the bearer token sent on every request.
func (c *Client) WithToken(token string) *Client {
	c.token = strings.TrimSpace(token)
	return c
}

// Get fetches a participant's record.
func (c *Client) Get(ctx context.Context, user [20]byte) (api.Discount, error) {
	var out api.Discount
	err := c.do(ctx, http.MethodGet, userPath(user), nil, &out)
	return out, err
}

// Create materialises a participant's record.
func (c *Client) Create(ctx context.Context, user, payer [20]byte) (api.Discount, error) {
	var out api.Discount
	body := api.CreateRequest{}
	if payer != ([20]byte{}) {
		body.Payer = crypto.FormatAccount(payer)
	}
	err := c.do(ctx, http.MethodPost, userPath(user), body, &out)
	return out, err
}

// Set signs and submits a new numerator for user. ttl bounds the signature
// lifetime and must not exceed the server's maximum age.
func (c *Client) Set(ctx context.Context, key *crypto.PrivateKey, user [20]byte, record discount.Address, numerator uint64, ttl time.Duration) (api.Discount, error) {
	if key == nil {
		return api.Discount{}, errors.New("discountd: signing key required")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	expiry := c.now().Add(ttl).Unix()
	sig, err := key.Sign(api.UpdateDigest(user, record, numerator, expiry))
	if err != nil {
		return api.Discount{}, fmt.Errorf("discountd: sign update: %w", err)
	}
	body := api.UpdateRequest{
		Record:    record.String(),
		Numerator: numerator,
		Caller:    key.PubKey().Address().String(),
		Expiry:    expiry,
		Signature: "0x" + hex.EncodeToString(sig),
	}
	var out api.Discount
	err = c.do(ctx, http.MethodPut, userPath(user), body, &out)
	return out, err
}

// Fee quotes the effective fee for baseFee.
func (c *Client) Fee(ctx context.Context, user [20]byte, baseFee uint64) (api.Fee, error) {
	var out api.Fee
	err := c.do(ctx, http.MethodGet, userPath(user)+"/fee?base_fee="+strconv.FormatUint(baseFee, 10), nil, &out)
	return out, err
}

// History returns the audit trail; it needs a token with the audit scope when
// the server enforces authentication.
func (c *Client) History(ctx context.Context, user [20]byte, limit int) ([]api.HistoryEntry, error) {
	path := userPath(user) + "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Entries []api.HistoryEntry `json:"entries"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Entries, err
}

func userPath(user [20]byte) string {
	return "/v1/discounts/" + crypto.FormatAccount(user)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("discountd: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discountd: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope api.Error
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
			apiErr.Code = envelope.Code
			apiErr.Message = envelope.Message
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("discountd: decode response: %w", err)
	}
	return nil
}
