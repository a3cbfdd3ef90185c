package media

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultAPIBase    = "https://api.cloudinary.com"
	defaultTimeout    = 15 * time.Second
	maxResultsPerPage = 500
	maxListPages      = 20
)

// Credentials identify a Cloudinary account.
type Credentials struct {
	CloudName string
	APIKey    string
	APISecret string
}

// APIError is a non-2xx answer from the media host.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message == "" {
		return fmt.Sprintf("cloudinary returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("cloudinary returned status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the media host.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Resource is one video as described by the Admin API.
type Resource struct {
	PublicID  string          `json:"public_id"`
	SecureURL string          `json:"secure_url"`
	CreatedAt time.Time       `json:"created_at"`
	Tags      []string        `json:"tags"`
	Context   resourceContext `json:"context"`
}

type resourceContext struct {
	Custom map[string]string `json:"custom"`
}

// ContextValue returns a custom context entry and whether it is set.
func (r Resource) ContextValue(key string) (string, bool) {
	if r.Context.Custom == nil {
		return "", false
	}
	value, ok := r.Context.Custom[key]
	return value, ok
}

func (r Resource) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

type listResponse struct {
	Resources  []Resource `json:"resources"`
	NextCursor string     `json:"next_cursor"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the Cloudinary Admin and Upload APIs.
type Client struct {
	client *resty.Client
	creds  Credentials
	now    func() time.Time
}

func NewClient(baseURL string, creds Credentials) (*Client, error) {
	client := resty.New()
	client.SetTimeout(defaultTimeout)
	client.SetRetryCount(0)

	return NewClientWithResty(baseURL, creds, client)
}

func NewClientWithResty(baseURL string, creds Credentials, client *resty.Client) (*Client, error) {
	if creds.CloudName == "" || creds.APIKey == "" || creds.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials are required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = defaultAPIBase
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid cloudinary api base: %w", err)
	}

	client.SetBaseURL(fmt.Sprintf("%s/v1_1/%s", base, url.PathEscape(creds.CloudName)))

	return &Client{
		client: client,
		creds:  creds,
		now:    time.Now,
	}, nil
}

// ListVideos returns every uploaded video under prefix, following pagination cursors.
func (c *Client) ListVideos(ctx context.Context, prefix string) ([]Resource, error) {
	var all []Resource
	cursor := ""

	for page := 0; page < maxListPages; page++ {
		params := map[string]string{
			"prefix":      prefix,
			"tags":        "true",
			"context":     "true",
			"max_results": strconv.Itoa(maxResultsPerPage),
		}
		if cursor != "" {
			params["next_cursor"] = cursor
		}

		var result listResponse
		response, err := c.client.R().
			SetContext(ctx).
			SetBasicAuth(c.creds.APIKey, c.creds.APISecret).
			SetQueryParams(params).
			SetResult(&result).
			Get("/resources/video/upload")
		if err := checkResponse(response, err); err != nil {
			return nil, err
		}

		all = append(all, result.Resources...)
		if result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor
	}

	return all, nil
}

func (c *Client) AddTag(ctx context.Context, publicID, tag string) error {
	return c.tags(ctx, "add", publicID, tag)
}

func (c *Client) RemoveTag(ctx context.Context, publicID, tag string) error {
	return c.tags(ctx, "remove", publicID, tag)
}

func (c *Client) tags(ctx context.Context, command, publicID, tag string) error {
	return c.signedPost(ctx, "/video/tags", map[string]string{
		"command":    command,
		"public_ids": publicID,
		"tag":        tag,
	})
}

// UpdateContext replaces the title and description of a video. Empty values clear them.
func (c *Client) UpdateContext(ctx context.Context, publicID, title, description string) error {
	value := fmt.Sprintf("title=%s|description=%s", escapeContextValue(title), escapeContextValue(description))
	return c.signedPost(ctx, "/video/context", map[string]string{
		"command":    "add",
		"context":    value,
		"public_ids": publicID,
	})
}

func (c *Client) Rename(ctx context.Context, fromPublicID, toPublicID string) error {
	return c.signedPost(ctx, "/video/rename", map[string]string{
		"from_public_id": fromPublicID,
		"to_public_id":   toPublicID,
	})
}

func (c *Client) signedPost(ctx context.Context, path string, params map[string]string) error {
	params["timestamp"] = strconv.FormatInt(c.now().Unix(), 10)
	signature := Sign(params, c.creds.APISecret)

	form := url.Values{}
	for key, value := range params {
		if key == "public_ids" {
			form.Add("public_ids[]", value)
			continue
		}
		form.Set(key, value)
	}
	form.Set("api_key", c.creds.APIKey)
	form.Set("signature", signature)

	response, err := c.client.R().
		SetContext(ctx).
		SetFormDataFromValues(form).
		Post(path)
	return checkResponse(response, err)
}

// Sign computes the Upload API signature: sha1 over the sorted key=value
// pairs joined by "&", followed by the API secret.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for key, value := range params {
		if value == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+params[key])
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

func escapeContextValue(value string) string {
	replacer := strings.NewReplacer(`|`, `\|`, `=`, `\=`)
	return replacer.Replace(value)
}

func checkResponse(response *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("cloudinary request failed: %w", err)
	}
	if response == nil {
		return &APIError{Message: "empty response"}
	}
	if response.IsSuccess() {
		return nil
	}

	apiErr := &APIError{StatusCode: response.StatusCode()}
	var body errorResponse
	if decodeErr := json.Unmarshal(response.Body(), &body); decodeErr == nil {
		apiErr.Message = body.Error.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(response.String())
	}
	return apiErr
}
