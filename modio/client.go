package modio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"modio-repo/config"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 1 << 12
)

var (
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("modio: not found")
	// ErrNoRedirect is returned when a download URL does not redirect anywhere.
	ErrNoRedirect = errors.New("modio: download url did not redirect")
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api request failed: status %d, body: %s", e.StatusCode, e.Body)
}

// Client handles communication with the mod.io API.
type Client struct {
	BaseURL     string
	DownloadURL string // fmt template taking the file id
	APIKey      string
	AccessToken string
	UserAgent   string
	HTTPClient  *http.Client
}

// NewClient creates a new mod.io API client using the provided configuration.
func NewClient(cfg config.Config) (*Client, error) {
	if cfg.ModioAPIKey == "" {
		return nil, fmt.Errorf("MODIO_API_KEY is not configured")
	}
	if cfg.UserAgent == "" {
		// Should be handled by LoadConfig default, but double-check
		return nil, fmt.Errorf("USERAGENT is not configured")
	}

	return &Client{
		BaseURL:     cfg.ModioAPIURL,
		DownloadURL: cfg.ModioDownloadURL,
		APIKey:      cfg.ModioAPIKey,
		AccessToken: cfg.ModioAccessToken,
		UserAgent:   cfg.UserAgent,
		HTTPClient:  &http.Client{Timeout: defaultTimeout},
	}, nil
}

// redirectlessClient shares HTTPClient's transport but stops at the first redirect.
func (c *Client) redirectlessClient() *http.Client {
	return &http.Client{
		Transport: c.HTTPClient.Transport,
		Timeout:   c.HTTPClient.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (c *Client) newRequest(ctx context.Context, method, fullURL string, query url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}
	req.Header.Set("User-Agent", c.UserAgent)
	if c.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	}
	return req, nil
}

// getJSON performs a GET against the API and decodes the body into target.
// Transport errors and 5xx responses are retried.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, target any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", c.APIKey)

	return withRetries(ctx, func() error {
		req, err := c.newRequest(ctx, http.MethodGet, c.BaseURL+path, query)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return &RetryableError{Err: fmt.Errorf("failed to execute request: %w", err)}
		}
		defer resp.Body.Close()

		if err := checkStatus(resp); err != nil {
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to decode json response: %w", err)
		}
		return nil
	})
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, statusErr)
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RetryableError{Err: statusErr, After: retryAfter(resp.Header, time.Now())}
	case resp.StatusCode >= 500:
		return &RetryableError{Err: statusErr}
	default:
		return statusErr
	}
}

// GetMods fetches one page of the game's mods starting at offset.
func (c *Client) GetMods(ctx context.Context, gameID int64, offset, limit int) (*ModPage, error) {
	params := url.Values{}
	params.Set("_offset", strconv.Itoa(offset))
	params.Set("_limit", strconv.Itoa(limit))

	var page ModPage
	if err := c.getJSON(ctx, fmt.Sprintf("/games/%d/mods", gameID), params, &page); err != nil {
		return nil, fmt.Errorf("failed to get mods of game %d at offset %d: %w", gameID, offset, err)
	}
	return &page, nil
}

// GetModFiles returns up to limit of the mod's newest files, newest first.
func (c *Client) GetModFiles(ctx context.Context, gameID, modID int64, limit int) ([]File, error) {
	params := url.Values{}
	// Files are sorted by id ascending by default; "-id" puts the newest first.
	params.Set("_sort", "-id")
	params.Set("_limit", strconv.Itoa(limit))

	var page FilePage
	if err := c.getJSON(ctx, fmt.Sprintf("/games/%d/mods/%d/files", gameID, modID), params, &page); err != nil {
		return nil, fmt.Errorf("failed to get files of mod %d: %w", modID, err)
	}
	return page.Data, nil
}

// ResolveDownload issues a HEAD request against a file's download URL and
// returns the redirect target without following it.
func (c *Client) ResolveDownload(ctx context.Context, downloadURL string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodHead, downloadURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.redirectlessClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", downloadURL, err)
	}
	defer resp.Body.Close()

	location := resp.Header.Get("Location")
	if resp.StatusCode < 300 || resp.StatusCode >= 400 || location == "" {
		return "", fmt.Errorf("%w: %s answered %d", ErrNoRedirect, downloadURL, resp.StatusCode)
	}
	loc, err := resp.Request.URL.Parse(location)
	if err != nil {
		return "", fmt.Errorf("invalid redirect location %q: %w", location, err)
	}
	return loc.String(), nil
}

// DownloadFile fetches a file's archive into memory. Redirects are followed.
// The caller bounds the download time through ctx; it is never retried.
func (c *Client) DownloadFile(ctx context.Context, fileID int64) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf(c.DownloadURL, fileID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/octet-stream")

	// The archive can take longer than an API call; ctx carries the limit.
	httpClient := *c.HTTPClient
	httpClient.Timeout = 0
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to start download of file %d: %w", fileID, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("failed to download file %d: %w", fileID, err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %d: %w", fileID, err)
	}
	return data, nil
}
