package bountysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Bounty Board HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Bounty represents the API bounty model.
type Bounty struct {
	ID                int64    `json:"id"`
	Company           string   `json:"company"`
	Title             string   `json:"title"`
	Description       string   `json:"description,omitempty"`
	RequiredSkills    []string `json:"required_skills"`
	PaymentAmount     int64    `json:"payment_amount"`
	PaymentAsset      string   `json:"payment_asset"`
	Status            string   `json:"status"`
	AssignedDeveloper *string  `json:"assigned_developer,omitempty"`
	CreatedAt         string   `json:"created_at"`
	Deadline          string   `json:"deadline,omitempty"`
}

// Developer represents a developer profile.
type Developer struct {
	Developer         string   `json:"developer"`
	Skills            []string `json:"skills"`
	Bio               string   `json:"bio,omitempty"`
	CompletedBounties int      `json:"completed_bounties"`
	Rating            int      `json:"rating"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

// Balance is a token balance of one account in one asset.
type Balance struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  int64  `json:"amount"`
}

// Transfer is a ledger journal entry.
type Transfer struct {
	ID       int64  `json:"id"`
	Asset    string `json:"asset"`
	From     string `json:"from"`
	To       string `json:"to"`
	Amount   int64  `json:"amount"`
	Kind     string `json:"kind"`
	BountyID *int64 `json:"bounty_id,omitempty"`
	TS       string `json:"ts"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedBounties wraps bounty listings with cursors.
type PaginatedBounties struct {
	Items      []Bounty `json:"items"`
	NextCursor string   `json:"next_cursor"`
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateBountyRequest holds the fields to post a bounty.
type CreateBountyRequest struct {
	Company        string   `json:"company"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	RequiredSkills []string `json:"required_skills,omitempty"`
	PaymentAmount  int64    `json:"payment_amount"`
	PaymentAsset   string   `json:"payment_asset,omitempty"`
	Deadline       string   `json:"deadline,omitempty"`
}

// RegisterDeveloper creates or fully replaces a developer profile.
func (c *Client) RegisterDeveloper(ctx context.Context, developer string, skills []string, bio string) (Developer, error) {
	body := map[string]any{
		"developer": developer,
		"skills":    skills,
	}
	if bio != "" {
		body["bio"] = bio
	}
	var resp Developer
	err := c.do(ctx, http.MethodPost, "v0/developers", body, &resp)
	return resp, err
}

// UpdateSkills replaces a developer's skill list.
func (c *Client) UpdateSkills(ctx context.Context, developer string, skills []string) (Developer, error) {
	body := map[string]any{"skills": skills}
	var resp Developer
	endpoint := fmt.Sprintf("v0/developers/%s/skills", url.PathEscape(developer))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// GetDeveloper fetches a developer profile.
func (c *Client) GetDeveloper(ctx context.Context, developer string) (Developer, error) {
	var resp Developer
	endpoint := fmt.Sprintf("v0/developers/%s", url.PathEscape(developer))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// DeveloperBounties returns the ids of bounties a developer has taken on.
func (c *Client) DeveloperBounties(ctx context.Context, developer string) ([]int64, error) {
	var resp struct {
		BountyIDs []int64 `json:"bounty_ids"`
	}
	endpoint := fmt.Sprintf("v0/developers/%s/bounties", url.PathEscape(developer))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.BountyIDs, err
}

// CreateBounty posts a bounty and locks the payment in escrow.
func (c *Client) CreateBounty(ctx context.Context, req CreateBountyRequest) (Bounty, error) {
	var resp Bounty
	err := c.do(ctx, http.MethodPost, "v0/bounties", req, &resp)
	return resp, err
}

// GetBounty fetches a bounty by id.
func (c *Client) GetBounty(ctx context.Context, id int64) (Bounty, error) {
	var resp Bounty
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/bounties/%d", id), nil, &resp)
	return resp, err
}

// ListBounties returns a paginated bounty listing. Empty filter values are omitted.
func (c *Client) ListBounties(ctx context.Context, company, developer, status string, limit int, cursor string) (PaginatedBounties, error) {
	q := url.Values{}
	if company != "" {
		q.Set("company", company)
	}
	if developer != "" {
		q.Set("developer", developer)
	}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/bounties"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedBounties
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AssignBounty claims an open bounty for a developer.
func (c *Client) AssignBounty(ctx context.Context, id int64, developer string) (Bounty, error) {
	body := map[string]any{"developer": developer}
	var resp Bounty
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/bounties/%d/assign", id), body, &resp)
	return resp, err
}

// SubmitWork marks an assigned bounty as submitted for review.
func (c *Client) SubmitWork(ctx context.Context, id int64, developer string) (Bounty, error) {
	body := map[string]any{"developer": developer}
	var resp Bounty
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/bounties/%d/submit", id), body, &resp)
	return resp, err
}

// ApproveBounty approves submitted work and releases the escrow.
func (c *Client) ApproveBounty(ctx context.Context, id int64) (Bounty, error) {
	var resp Bounty
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/bounties/%d/approve", id), nil, &resp)
	return resp, err
}

// CancelBounty cancels an open bounty and refunds the escrow.
func (c *Client) CancelBounty(ctx context.Context, id int64) (Bounty, error) {
	var resp Bounty
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/bounties/%d/cancel", id), nil, &resp)
	return resp, err
}

// DisputeBounty freezes a bounty pending arbitration.
func (c *Client) DisputeBounty(ctx context.Context, id int64) (Bounty, error) {
	var resp Bounty
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/bounties/%d/dispute", id), nil, &resp)
	return resp, err
}

// RateDeveloper rates the developer for completed work.
func (c *Client) RateDeveloper(ctx context.Context, id int64, rating int) (Developer, error) {
	body := map[string]any{"rating": rating}
	var resp Developer
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/bounties/%d/rating", id), body, &resp)
	return resp, err
}

// BountyTransfers returns the token movements recorded for a bounty.
func (c *Client) BountyTransfers(ctx context.Context, id int64) ([]Transfer, error) {
	var resp []Transfer
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/bounties/%d/transfers", id), nil, &resp)
	return resp, err
}

// CompanyBounties returns the ids of bounties a company has posted.
func (c *Client) CompanyBounties(ctx context.Context, company string) ([]int64, error) {
	var resp struct {
		BountyIDs []int64 `json:"bounty_ids"`
	}
	endpoint := fmt.Sprintf("v0/companies/%s/bounties", url.PathEscape(company))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.BountyIDs, err
}

// Balances returns the token balances of an account.
func (c *Client) Balances(ctx context.Context, account string) ([]Balance, error) {
	var resp []Balance
	endpoint := fmt.Sprintf("v0/accounts/%s/balances", url.PathEscape(account))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// MintTokens issues tokens to an account. The caller must be the issuer.
func (c *Client) MintTokens(ctx context.Context, account, asset string, amount int64) error {
	body := map[string]any{
		"account": account,
		"amount":  amount,
	}
	if asset != "" {
		body["asset"] = asset
	}
	return c.do(ctx, http.MethodPost, "v0/tokens/mint", body, nil)
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// DevLogin mints a JWT through the dev-only login endpoint and stores it
// on the client for subsequent calls.
func (c *Client) DevLogin(ctx context.Context, actorID string) (string, error) {
	body := map[string]any{"actor_id": actorID}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "v0/auth/dev/login", body, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
