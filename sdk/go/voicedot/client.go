// Package voicedot is a Go client for the VoiceDot HTTP API.
package voicedot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 30 * time.Second

// Client wraps the HTTP interactions with the VoiceDot REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// Item is a single transfer inside a parsed intent.
type Item struct {
	Action           string `json:"action"`
	Amount           string `json:"amount"`
	Token            string `json:"token"`
	Recipient        string `json:"recipient"`
	OriginChain      string `json:"origin_chain,omitempty"`
	DestinationChain string `json:"destination_chain,omitempty"`
}

// Intent is the normalized payment intent extracted from a command.
type Intent struct {
	Type      string  `json:"type"`
	Language  string  `json:"language"`
	Items     []Item  `json:"items"`
	Schedule  *string `json:"schedule"`
	Condition *string `json:"condition"`
}

// Audio is a synthesized prompt, optionally sealed with AES-GCM.
type Audio struct {
	AudioBase64 string `json:"audio_base64"`
	IV          string `json:"iv"`
	Format      string `json:"format"`
}

// ProcessResult is returned by ProcessText.
type ProcessResult struct {
	SessionID              string   `json:"session_id"`
	Transcript             string   `json:"transcript"`
	TransactionIDs         []string `json:"transaction_ids"`
	Intent                 *Intent  `json:"intent"`
	ConfirmationPromptText string   `json:"confirmation_prompt_text"`
	ConfirmationAudio      *Audio   `json:"confirmation_audio,omitempty"`
}

// ConfirmResult is returned by Confirm. Status is confirmed, cancelled or
// clarification.
type ConfirmResult struct {
	SessionID         string   `json:"session_id"`
	Transcript        string   `json:"transcript"`
	Status            string   `json:"status"`
	TransactionIDs    []string `json:"transaction_ids"`
	ResponseText      string   `json:"response_text"`
	ConfirmationAudio *Audio   `json:"confirmation_audio,omitempty"`
}

// Transaction mirrors a ledger record.
type Transaction struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	VoiceCommand     string          `json:"voice_command"`
	ParsedIntent     json.RawMessage `json:"parsed_intent"`
	RecipientAddress string          `json:"recipient_address"`
	Amount           string          `json:"amount"`
	TokenSymbol      string          `json:"token_symbol"`
	TransactionHash  *string         `json:"transaction_hash,omitempty"`
	Status           string          `json:"status"`
	CreatedAt        int64           `json:"created_at"`
	ConfirmedAt      *int64          `json:"confirmed_at,omitempty"`
	UpdatedAt        int64           `json:"updated_at"`
}

// ListOptions filters ListTransactions.
type ListOptions struct {
	UserID   string
	Statuses []string
	Limit    int
	Offset   int
}

// BuildRequest describes a transfer to build or estimate.
type BuildRequest struct {
	Token            string `json:"token"`
	Amount           string `json:"amount"`
	Recipient        string `json:"recipient"`
	OriginChain      string `json:"origin_chain,omitempty"`
	DestinationChain string `json:"destination_chain,omitempty"`
	MinReceive       string `json:"min_receive,omitempty"`
	SlippageBps      *int   `json:"slippage_bps,omitempty"`
}

// BuildResult carries the unsigned call and its estimated fee.
type BuildResult struct {
	CallHex          string `json:"call_hex"`
	Fee              string `json:"fee"`
	FeeToken         string `json:"fee_token"`
	Kind             string `json:"kind"`
	Token            string `json:"token"`
	OriginChain      string `json:"origin_chain"`
	DestinationChain string `json:"destination_chain"`
	AmountUnits      string `json:"amount_units"`
}

// Estimate is the fee quote returned by EstimateXCM.
type Estimate struct {
	Fee              string `json:"fee"`
	FeeToken         string `json:"fee_token"`
	Kind             string `json:"kind"`
	OriginChain      string `json:"origin_chain"`
	DestinationChain string `json:"destination_chain"`
}

// ExecuteRequest submits a signed extrinsic for a confirmed transaction.
type ExecuteRequest struct {
	TransactionID   string `json:"transaction_id"`
	SignedExtrinsic string `json:"signed_extrinsic"`
	UserID          string `json:"user_id,omitempty"`
	Chain           string `json:"chain,omitempty"`
	Token           string `json:"token,omitempty"`
	MinReceive      string `json:"min_receive,omitempty"`
	SlippageBps     *int   `json:"slippage_bps,omitempty"`
}

// ExecuteResult is returned by Execute.
type ExecuteResult struct {
	TransactionHash string `json:"transaction_hash"`
	Status          string `json:"status"`
}

// Health is the liveness probe response.
type Health struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	Time    string `json:"time"`
}

// APIError represents a non-2xx response.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("voicedot api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("voicedot api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the VoiceDot API. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url: %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// AccessToken returns the currently stored bearer token.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken sets the bearer token sent with every request.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// ProcessText submits a text payment command.
func (c *Client) ProcessText(ctx context.Context, userID, text string) (ProcessResult, error) {
	var out ProcessResult
	err := c.post(ctx, "/voice/process", map[string]string{"user_id": userID, "text": text}, &out)
	return out, err
}

// Confirm answers the confirmation prompt for the given transactions.
func (c *Client) Confirm(ctx context.Context, userID, text string, ids []string) (ConfirmResult, error) {
	var out ConfirmResult
	err := c.post(ctx, "/voice/confirm", map[string]any{
		"user_id":         userID,
		"text":            text,
		"transaction_ids": ids,
	}, &out)
	return out, err
}

// ListTransactions returns the user's transactions, newest first.
func (c *Client) ListTransactions(ctx context.Context, opts ListOptions) ([]Transaction, error) {
	q := url.Values{}
	if opts.UserID != "" {
		q.Set("user_id", opts.UserID)
	}
	if len(opts.Statuses) > 0 {
		q.Set("status", strings.Join(opts.Statuses, ","))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	var out struct {
		Items []Transaction `json:"items"`
	}
	if err := c.get(ctx, "/transactions", q, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// GetTransaction fetches a transaction by identifier.
func (c *Client) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	var out Transaction
	err := c.get(ctx, "/transactions/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Build composes an unsigned transfer call.
func (c *Client) Build(ctx context.Context, req BuildRequest) (BuildResult, error) {
	var out BuildResult
	err := c.post(ctx, "/transactions/build", req, &out)
	return out, err
}

// EstimateXCM quotes the origin-chain fee of a transfer.
func (c *Client) EstimateXCM(ctx context.Context, req BuildRequest) (Estimate, error) {
	q := url.Values{}
	q.Set("token", req.Token)
	q.Set("amount", req.Amount)
	q.Set("recipient", req.Recipient)
	if req.OriginChain != "" {
		q.Set("origin_chain", req.OriginChain)
	}
	if req.DestinationChain != "" {
		q.Set("destination_chain", req.DestinationChain)
	}
	var out Estimate
	err := c.get(ctx, "/transactions/xcm/estimate", q, &out)
	return out, err
}

// Execute submits a signed extrinsic.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	var out ExecuteResult
	err := c.post(ctx, "/transactions/execute", req, &out)
	return out, err
}

// Balance returns decimal balances keyed by token symbol.
func (c *Client) Balance(ctx context.Context, address string, symbols ...string) (map[string]string, error) {
	q := url.Values{}
	q.Set("wallet_address", address)
	if len(symbols) > 0 {
		q.Set("token_symbols", strings.Join(symbols, ","))
	}
	var out struct {
		Balances map[string]string `json:"balances"`
	}
	if err := c.get(ctx, "/wallet/balance", q, &out); err != nil {
		return nil, err
	}
	return out.Balances, nil
}

// Health calls the liveness probe.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.get(ctx, "/health", nil, &out)
	return out, err
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, endpoint)
	u.RawQuery = query.Encode()
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: apiErr})
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
