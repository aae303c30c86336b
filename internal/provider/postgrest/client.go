package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"counseling-portal-be/internal/entity"
	"counseling-portal-be/internal/mapper"
	"counseling-portal-be/internal/provider/contract"

	"github.com/google/uuid"
)

const profilesCollection = "profiles"

// Client implements the data-store contract against a PostgREST-style REST
// endpoint: GET /{collection}?field=eq.value.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{},
	}
}

func (c *Client) FetchProfile(ctx context.Context, identityId uuid.UUID) (*entity.Profile, error) {
	rows, err := c.Query(ctx, profilesCollection, contract.Filter{"identity_id": identityId.String()})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, contract.ErrNotFound
	}
	return mapper.ProfileFromRow(rows[0])
}

func (c *Client) UpdateProfile(ctx context.Context, identityId uuid.UUID, fields map[string]interface{}) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/%s?identity_id=eq.%s", c.baseURL, profilesCollection, identityId)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("profile update failed: %s", string(raw))
	}
	return nil
}

func (c *Client) Query(ctx context.Context, collection string, filter contract.Filter) ([]map[string]interface{}, error) {
	params := url.Values{}
	for field, value := range filter {
		params.Set(field, fmt.Sprintf("eq.%v", value))
	}

	endpoint := fmt.Sprintf("%s/%s", c.baseURL, collection)
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query %s failed: %s", collection, string(raw))
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
