// Package pcoapi is a thin client for the Planning Center API, scoped to
// the calls this integration makes. A Client wraps one bearer token;
// distinct tokens get distinct, independent clients.
package pcoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	apperrors "github.com/planningcenter/pco-oauth-bridge/internal/errors"
)

const requestTimeout = 15 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
}

// New wraps a bearer token and base URL into an API client. Pure
// construction: no state beyond the token-bearing transport.
func New(ctx context.Context, baseURL string, tok *oauth2.Token) *Client {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	httpClient.Timeout = requestTimeout
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// MeResponse is the authenticated person, including the owning organization
// in meta.parent.
type MeResponse struct {
	Data struct {
		ID         string         `json:"id"`
		Attributes map[string]any `json:"attributes"`
	} `json:"data"`
	Meta struct {
		Parent struct {
			ID string `json:"id"`
		} `json:"parent"`
	} `json:"meta"`
}

// Name returns the person's display name, best effort.
func (m *MeResponse) Name() string {
	name, _ := m.Data.Attributes["name"].(string)
	return name
}

// OrganizationID resolves the numeric id of the organization that owns the
// authenticated person.
func (m *MeResponse) OrganizationID() (int64, error) {
	id, err := strconv.ParseInt(m.Meta.Parent.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("pcoapi: organization id %q: %w", m.Meta.Parent.ID, err)
	}
	return id, nil
}

func (c *Client) Me(ctx context.Context) (*MeResponse, error) {
	var me MeResponse
	if err := c.do(ctx, http.MethodGet, "/people/v2/me", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// CreateBackgroundCheck records a cleared background check for the person.
func (c *Client) CreateBackgroundCheck(ctx context.Context, personID string) error {
	body := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"status": "report_clear",
			},
		},
	}
	path := "/people/v2/people/" + personID + "/background_checks"
	return c.do(ctx, http.MethodPost, path, body, nil)
}

type BackgroundCheck struct {
	ID string `json:"id"`
}

func (c *Client) ListBackgroundChecks(ctx context.Context, personID string) ([]BackgroundCheck, error) {
	var resp struct {
		Data []BackgroundCheck `json:"data"`
	}
	path := "/people/v2/people/" + personID + "/background_checks"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) DeleteBackgroundCheck(ctx context.Context, personID, checkID string) error {
	path := "/people/v2/people/" + personID + "/background_checks/" + checkID
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// RevokeToken invalidates the access token upstream. Uses the bare client
// credentials rather than the token-bearing transport so a half-dead token
// can still be revoked.
func RevokeToken(ctx context.Context, baseURL, accessToken, clientID, clientSecret string) error {
	body, err := json.Marshal(map[string]string{
		"token":         accessToken,
		"client_id":     clientID,
		"client_secret": clientSecret,
	})
	if err != nil {
		return fmt.Errorf("pcoapi: marshal revoke body: %w", err)
	}

	url := strings.TrimRight(baseURL, "/") + "/oauth/revoke"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("pcoapi: build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: requestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("pcoapi: revoke: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("pcoapi: revoke: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		serialized, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("pcoapi: marshal body: %w", err)
		}
		reader = bytes.NewReader(serialized)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("pcoapi: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pcoapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return apperrors.Wrapf(apperrors.ErrUpstreamUnauthorized, "%s %s", method, path)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("pcoapi: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("pcoapi: decode %s %s: %w", method, path, err)
	}
	return nil
}
