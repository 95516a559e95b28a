package microsoft

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

	"golang.org/x/oauth2"

	"github.com/nhle/formpoll/internal/model"
	"github.com/nhle/formpoll/internal/source"
)

// DefaultBaseURL is the Microsoft Graph v1.0 root.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// Client is a thin, read-only HTTP client for the Microsoft Graph mail API.
// Each call is authorized with the caller's access token and retried with
// exponential backoff on HTTP 429.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// NewClient creates a Graph client. A nil httpClient uses a client with a
// 30 second timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		maxRetries: 3,
	}
}

// ListMessagesFrom returns up to top messages sent by sender, with bodies
// rendered as plain text.
func (c *Client) ListMessagesFrom(
	ctx context.Context,
	accessToken string,
	sender string,
	top int,
) (*MessageList, error) {
	filter := fmt.Sprintf(
		"from/emailAddress/address eq '%s'",
		strings.ReplaceAll(sender, "'", "''"),
	)
	path := "/me/messages" +
		"?$filter=" + queryEscape(filter) +
		"&$top=" + strconv.Itoa(top) +
		"&$select=id,subject,receivedDateTime,from,body"

	var list MessageList
	if err := c.get(ctx, accessToken, path, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// get performs an authorized GET and unmarshals the JSON response.
func (c *Client) get(
	ctx context.Context,
	accessToken string,
	path string,
	result any,
) error {
	if accessToken == "" {
		return &source.AuthError{
			Provider: model.ProviderMicrosoft,
			Message:  "session has no access token",
		}
	}

	httpClient := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, c.httpClient),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
	)
	target := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Prefer", `outlook.body-content-type="text"`)

		resp, err := httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing request GET %s: %w", path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429) on GET %s", path)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryAfterDuration(resp, attempt)):
				continue
			}
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return &source.AuthError{
				Provider: model.ProviderMicrosoft,
				Message:  "access token rejected (401): " + graphMessage(respBody),
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf(
				"graph API error (%d) on GET %s: %s",
				resp.StatusCode, path, graphMessage(respBody),
			)
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response from GET %s: %w", path, err)
		}
		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// graphMessage extracts the error message from a Graph error body.
func graphMessage(body []byte) string {
	var gerr ErrorResponse
	if json.Unmarshal(body, &gerr) == nil && gerr.Error.Message != "" {
		return gerr.Error.Code + ": " + gerr.Error.Message
	}
	return string(body)
}

// queryEscape escapes an OData expression for use in a query string.
// Graph does not read '+' as a space, so spaces are percent-encoded.
func queryEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
