package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	domainoauth "github.com/7HR4IZ3/ai-video-creator/internal/domain/oauth"
)

// DefaultGraphURL is the Facebook Graph API root used for page lookups.
const DefaultGraphURL = "https://graph.facebook.com/v18.0"

// ProviderClient encapsulates outbound HTTP calls to the platforms' OAuth endpoints.
type ProviderClient interface {
	// Exchange POSTs a form-encoded grant to the provider's token endpoint.
	Exchange(ctx context.Context, provider domainoauth.ProviderConfig, form url.Values) (*domainoauth.TokenSet, error)
	// FetchPages lists the Facebook pages a user token can manage.
	FetchPages(ctx context.Context, accessToken string) ([]domainoauth.FacebookPage, error)
}

// ProviderError carries the provider's own description of a failed call.
type ProviderError struct {
	Status      int
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	switch {
	case e.Description != "":
		return e.Description
	case e.Code != "":
		return e.Code
	default:
		return fmt.Sprintf("provider responded with status %d", e.Status)
	}
}

// HTTPProviderClient is the default HTTP implementation.
type HTTPProviderClient struct {
	httpClient *http.Client
	graphURL   string
}

// NewHTTPProviderClient constructs the default ProviderClient.
func NewHTTPProviderClient(client *http.Client, graphURL string) *HTTPProviderClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	graphURL = strings.TrimRight(strings.TrimSpace(graphURL), "/")
	if graphURL == "" {
		graphURL = DefaultGraphURL
	}
	return &HTTPProviderClient{httpClient: client, graphURL: graphURL}
}

// Exchange performs an authorization-code or refresh-token grant.
func (c *HTTPProviderClient) Exchange(ctx context.Context, provider domainoauth.ProviderConfig, form url.Values) (*domainoauth.TokenSet, error) {
	if strings.TrimSpace(provider.TokenURL) == "" {
		return nil, fmt.Errorf("token url missing")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	raw, err := c.doJSON(req)
	if err != nil {
		return nil, err
	}
	// Some providers (TikTok v2) report errors with a 200 status.
	if code := stringValue(raw["error"]); code != "" && stringValue(raw["access_token"]) == "" {
		return nil, &ProviderError{Status: http.StatusOK, Code: code, Description: describe(raw)}
	}

	tokens := &domainoauth.TokenSet{
		AccessToken:  stringValue(raw["access_token"]),
		RefreshToken: stringValue(raw["refresh_token"]),
		TokenType:    stringValue(raw["token_type"]),
		Scope:        stringValue(raw["scope"]),
	}
	if exp := raw["expires_in"]; exp != nil {
		tokens.ExpiresIn = int64Value(exp)
	}
	return tokens, nil
}

// FetchPages calls /me/accounts on the Graph API.
func (c *HTTPProviderClient) FetchPages(ctx context.Context, accessToken string) ([]domainoauth.FacebookPage, error) {
	q := url.Values{}
	q.Set("access_token", accessToken)
	q.Set("fields", "access_token,name,id")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.graphURL+"/me/accounts?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build pages request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pages request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read pages response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, providerErrorFrom(resp.StatusCode, body)
	}

	var payload struct {
		Data []domainoauth.FacebookPage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode pages response: %w", err)
	}
	return payload.Data, nil
}

func (c *HTTPProviderClient) doJSON(req *http.Request) (map[string]any, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, providerErrorFrom(resp.StatusCode, body)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return raw, nil
}

func providerErrorFrom(status int, body []byte) *ProviderError {
	perr := &ProviderError{Status: status}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		perr.Description = strings.TrimSpace(string(body))
		return perr
	}
	switch v := raw["error"].(type) {
	case string:
		perr.Code = v
	case map[string]any:
		// Graph API nests {"error":{"message":..,"type":..}}.
		perr.Code = stringValue(coalesce(v["type"], v["code"]))
		perr.Description = stringValue(v["message"])
	}
	if perr.Description == "" {
		perr.Description = describe(raw)
	}
	return perr
}

func describe(raw map[string]any) string {
	return stringValue(coalesce(raw["error_description"], raw["message"], raw["description"]))
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func int64Value(input any) int64 {
	switch v := input.(type) {
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func coalesce(values ...any) any {
	for _, v := range values {
		switch val := v.(type) {
		case string:
			if strings.TrimSpace(val) != "" {
				return v
			}
		case nil:
			continue
		default:
			return v
		}
	}
	return nil
}
