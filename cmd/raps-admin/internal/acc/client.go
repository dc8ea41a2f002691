package acc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://developer.api.autodesk.com"

// Options configures the REST clients.
type Options struct {
	// BaseURL overrides the API endpoint (default: DefaultBaseURL).
	BaseURL string
	// HTTPClient overrides the HTTP client (default: 30 s timeout).
	HTTPClient *http.Client
}

func (o Options) baseURL() string {
	if o.BaseURL != "" {
		return o.BaseURL
	}
	return DefaultBaseURL
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// APIError is a non-2xx response from the upstream API. Its string form
// carries the HTTP status so the retry classifier can inspect it.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed (%s): %s", e.Status, e.Body)
}

// IsNotFound reports whether the error is an upstream 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return pkgerrors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// restClient holds the pieces shared by the concrete API clients.
type restClient struct {
	baseURL string
	tokens  oauth2.TokenSource
	http    *http.Client
}

func newRESTClient(tokens oauth2.TokenSource, opts Options) restClient {
	return restClient{
		baseURL: opts.baseURL(),
		tokens:  tokens,
		http:    opts.httpClient(),
	}
}

// doJSON sends one authenticated request and decodes the JSON response
// into out when out is non-nil. Non-2xx responses become *APIError.
func (c *restClient) doJSON(
	ctx context.Context,
	method, url string,
	body, out any,
) error {
	token, err := c.tokens.Token()
	if err != nil {
		return pkgerrors.Wrap(err, "acquiring access token")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(err, "encoding request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return pkgerrors.Wrap(err, "building request")
	}
	token.SetAuthHeader(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(err, "sending request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(bytes.TrimSpace(data)),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return pkgerrors.Wrap(err, "decoding response")
		}
	}
	return nil
}
