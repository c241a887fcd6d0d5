// Package oxventa provides a small Go client for the OxVenta custody REST API.
package oxventa

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. Confirm calls may stream for as long as the server waits
// for a receipt, so it is generous.
const DefaultHTTPTimeout = 3 * time.Minute

// Client wraps the HTTP interactions with the OxVenta custody REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Wallet is the API view of a custodial wallet. Encrypted key material never
// leaves the server.
type Wallet struct {
	UUID          string `json:"uuid"`
	UserUUID      string `json:"user_uuid"`
	NetworkFamily string `json:"network_family"`
	Address       string `json:"address"`
	Name          string `json:"name"`
	CreatedAt     int64  `json:"created_at"`
}

// CreatedWallet carries the one-time plaintext key returned on creation.
type CreatedWallet struct {
	Wallet       Wallet `json:"wallet"`
	PlaintextKey string `json:"plaintext_key"`
}

// CreateWalletRequest is the payload for CreateWallet.
type CreateWalletRequest struct {
	UserUUID      string `json:"user_uuid"`
	NetworkFamily string `json:"network_family"`
	Name          string `json:"name,omitempty"`
}

// ProposeRequest stages an action for later confirmation.
type ProposeRequest struct {
	Topic    string            `json:"topic"`
	UserUUID string            `json:"user_uuid"`
	Network  string            `json:"network"`
	Payload  map[string]string `json:"payload"`
}

// StagedAction mirrors the server's staged-action record.
type StagedAction struct {
	UUID     string            `json:"uuid"`
	Topic    string            `json:"topic"`
	UserUUID string            `json:"user_uuid"`
	Network  string            `json:"network"`
	Payload  map[string]string `json:"payload"`
	Summary  string            `json:"summary"`
}

// Proposal is the server's answer to a propose call: a human-readable summary
// plus two opaque tokens for the confirm and cancel buttons.
type Proposal struct {
	Action       *StagedAction `json:"action"`
	Summary      string        `json:"summary"`
	ConfirmToken string        `json:"confirm_token"`
	CancelToken  string        `json:"cancel_token"`
}

// Decision is the result of acting on a proposal token.
type Decision struct {
	// Status is "cancelled", "queued", or "confirmed".
	Status string
	// Progress holds the streamed progress lines when the server executed the
	// confirmation synchronously.
	Progress []string
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("oxventa api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("oxventa api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the OxVenta custody API. When httpClient
// is nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// CreateWallet creates a custodial wallet for the user under the given network
// family. The plaintext key in the response is returned exactly once.
func (c *Client) CreateWallet(ctx context.Context, req CreateWalletRequest) (CreatedWallet, error) {
	var created CreatedWallet
	if err := c.post(ctx, "/api/v1/wallets", req, &created); err != nil {
		return CreatedWallet{}, err
	}
	return created, nil
}

// WalletAddress returns the user's wallet address for a network family.
func (c *Client) WalletAddress(ctx context.Context, userUUID, networkFamily string) (string, error) {
	endpoint := fmt.Sprintf("/api/v1/wallets/address?user_uuid=%s&network_family=%s",
		url.QueryEscape(userUUID), url.QueryEscape(networkFamily))
	var out struct {
		Address string `json:"address"`
	}
	if err := c.get(ctx, endpoint, &out); err != nil {
		return "", err
	}
	return out.Address, nil
}

// Propose validates and stages an action, returning the confirmation proposal.
func (c *Client) Propose(ctx context.Context, req ProposeRequest) (Proposal, error) {
	var proposal Proposal
	if err := c.post(ctx, "/api/v1/actions/propose", req, &proposal); err != nil {
		return Proposal{}, err
	}
	return proposal, nil
}

// Pending returns the currently staged action for a topic and user.
func (c *Client) Pending(ctx context.Context, topic, userUUID string) (StagedAction, error) {
	endpoint := fmt.Sprintf("/api/v1/actions/pending?topic=%s&user_uuid=%s",
		url.QueryEscape(topic), url.QueryEscape(userUUID))
	var act StagedAction
	if err := c.get(ctx, endpoint, &act); err != nil {
		return StagedAction{}, err
	}
	return act, nil
}

// Decide submits a confirm or cancel token. When the server streams progress
// lines, they are collected into Decision.Progress.
func (c *Client) Decide(ctx context.Context, token string) (Decision, error) {
	body, err := json.Marshal(struct {
		Token string `json:"token"`
	}{Token: token})
	if err != nil {
		return Decision{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/actions/decide", bytes.NewReader(body))
	if err != nil {
		return Decision{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Decision{}, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Decision{}, readAPIError(resp)
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		var progress []string
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				progress = append(progress, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return Decision{}, fmt.Errorf("read progress stream: %w", err)
		}
		return Decision{Status: "confirmed", Progress: progress}, nil
	}

	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Decision{}, fmt.Errorf("decode response: %w", err)
	}
	return Decision{Status: out.Status}, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parts := strings.SplitN(endpoint, "?", 2)
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parts[0])}
	if len(parts) == 2 {
		rel.RawQuery = parts[1]
	}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
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
		return readAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read error response: %w", err)
	}
	if len(data) > 0 {
		wrapper := struct {
			Error *APIError `json:"error"`
		}{Error: apiErr}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			_ = json.Unmarshal(data, apiErr)
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = string(bytes.TrimSpace(data))
	}
	return apiErr
}
