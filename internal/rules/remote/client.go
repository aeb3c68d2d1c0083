// Package remote implements the HTTP data sources for the rule, value set,
// booster rule and country distribution endpoints.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"certpass/internal/rules"
)

const defaultTimeout = 30 * time.Second

// Client talks to one distribution host. Business rules, value sets and
// countries share a host; booster rules live on a distinct one, so wire two
// instances.
type Client struct {
	baseURL string
	http    *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient swaps the underlying HTTP client, for tests and custom
// transports.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.http = httpClient }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RuleIdentifiers fetches the business rule manifest.
func (c *Client) RuleIdentifiers(ctx context.Context) ([]rules.RuleIdentifier, error) {
	var identifiers []rules.RuleIdentifier
	if err := c.getJSON(ctx, "/rules", &identifiers); err != nil {
		return nil, err
	}
	return identifiers, nil
}

// Rule fetches one business rule body by country and content hash.
func (c *Client) Rule(ctx context.Context, country, hash string) (rules.Rule, error) {
	var rule rules.Rule
	path := "/rules/" + url.PathEscape(country) + "/" + url.PathEscape(hash)
	if err := c.getJSON(ctx, path, &rule); err != nil {
		return rules.Rule{}, err
	}
	return rule, nil
}

// ValueSetIdentifiers fetches the value set manifest.
func (c *Client) ValueSetIdentifiers(ctx context.Context) ([]rules.ValueSetIdentifier, error) {
	var identifiers []rules.ValueSetIdentifier
	if err := c.getJSON(ctx, "/valuesets", &identifiers); err != nil {
		return nil, err
	}
	return identifiers, nil
}

// ValueSet fetches one value set body by content hash.
func (c *Client) ValueSet(ctx context.Context, hash string) (rules.ValueSet, error) {
	var set rules.ValueSet
	if err := c.getJSON(ctx, "/valuesets/"+url.PathEscape(hash), &set); err != nil {
		return rules.ValueSet{}, err
	}
	return set, nil
}

// BoosterRuleIdentifiers fetches the booster rule manifest.
func (c *Client) BoosterRuleIdentifiers(ctx context.Context) ([]rules.RuleIdentifier, error) {
	var identifiers []rules.RuleIdentifier
	if err := c.getJSON(ctx, "/rules", &identifiers); err != nil {
		return nil, err
	}
	return identifiers, nil
}

// BoosterRule fetches one booster rule body by content hash.
func (c *Client) BoosterRule(ctx context.Context, hash string) (rules.Rule, error) {
	var rule rules.Rule
	if err := c.getJSON(ctx, "/rules/"+url.PathEscape(hash), &rule); err != nil {
		return rules.Rule{}, err
	}
	return rule, nil
}

// Countries fetches the country list.
func (c *Client) Countries(ctx context.Context) ([]string, error) {
	var countries []string
	if err := c.getJSON(ctx, "/countrylist", &countries); err != nil {
		return nil, err
	}
	return countries, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode response: %w", path, err)
	}
	return nil
}
